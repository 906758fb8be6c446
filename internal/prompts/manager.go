// Package prompts loads the prompt texts used in conversations.
package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	textTemplate "text/template"

	"gopkg.in/yaml.v3"
)

// Prompt names
const (
	ChatSystemPrompt    = "chat_system_prompt"
	ToolResultTruncated = "tool_result_truncated"
)

//go:embed defaults/*.yaml
var defaultPrompts embed.FS

var requiredPrompts = []string{
	ChatSystemPrompt,
	ToolResultTruncated,
}

// Manager handles loading and rendering prompt templates
type Manager struct {
	prompts map[string]string
	sources map[string]string // Track which file provided each prompt (for debugging)
}

// NewManager creates a prompt manager from the built-in prompts
func NewManager() (*Manager, error) {
	return NewManagerWithOverrides("")
}

// NewManagerWithOverrides loads the built-in prompts, then any YAML files in
// overrideDir on top. A missing overrideDir is not an error.
func NewManagerWithOverrides(overrideDir string) (*Manager, error) {
	pm := &Manager{
		prompts: make(map[string]string),
		sources: make(map[string]string),
	}

	// 1. Built-in prompts first (baseline)
	if err := pm.loadFS(defaultPrompts, "defaults", "builtin"); err != nil {
		return nil, fmt.Errorf("failed to load built-in prompts: %w", err)
	}

	// 2. Overrides if the directory exists
	if overrideDir != "" {
		if _, err := os.Stat(overrideDir); err == nil {
			if err := pm.loadFS(os.DirFS(overrideDir), ".", "override"); err != nil {
				return nil, fmt.Errorf("failed to load prompt overrides: %w", err)
			}
		}
	}

	// 3. Validate required prompts exist
	if err := pm.validateRequiredPrompts(); err != nil {
		return nil, err
	}

	return pm, nil
}

// loadFS loads all YAML files from dir in fsys
func (pm *Manager) loadFS(fsys fs.FS, dir, source string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		ext := path.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		filePath := path.Join(dir, entry.Name())
		data, err := fs.ReadFile(fsys, filePath)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", filePath, err)
		}

		var prompts map[string]string
		if err := yaml.Unmarshal(data, &prompts); err != nil {
			return fmt.Errorf("failed to parse %s: %w", filePath, err)
		}

		// Merge into main map (later loads override earlier)
		for key, value := range prompts {
			pm.prompts[key] = value
			pm.sources[key] = fmt.Sprintf("%s:%s", source, entry.Name())
		}
	}

	return nil
}

// validateRequiredPrompts ensures critical prompts exist and are not blank
func (pm *Manager) validateRequiredPrompts() error {
	var missing []string
	for _, key := range requiredPrompts {
		if strings.TrimSpace(pm.prompts[key]) == "" {
			missing = append(missing, key)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required prompts: %v", missing)
	}

	return nil
}

// NewManagerFromMap creates a prompt manager from a map (useful for testing)
func NewManagerFromMap(prompts map[string]string) *Manager {
	sources := make(map[string]string)
	for key := range prompts {
		sources[key] = "test:map"
	}
	return &Manager{
		prompts: prompts,
		sources: sources,
	}
}

// Get returns a raw prompt by name
func (pm *Manager) Get(name string) (string, error) {
	prompt, ok := pm.prompts[name]
	if !ok {
		return "", fmt.Errorf("prompt '%s' not found (available: %v)", name, pm.getAvailableNames())
	}
	return prompt, nil
}

// Render renders a prompt template with the given variables
func (pm *Manager) Render(name string, vars map[string]any) (string, error) {
	promptTemplate, err := pm.Get(name)
	if err != nil {
		return "", err
	}

	// Parse and execute template
	tmpl, err := textTemplate.New(name).Option("missingkey=error").Parse(promptTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse template '%s': %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", name, err)
	}

	return buf.String(), nil
}

// getAvailableNames returns the sorted prompt names
func (pm *Manager) getAvailableNames() []string {
	names := make([]string, 0, len(pm.prompts))
	for name := range pm.prompts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasPrompt checks if a prompt exists
func (pm *Manager) HasPrompt(name string) bool {
	_, ok := pm.prompts[name]
	return ok
}

// GetSource returns which file provided a prompt (for debugging)
func (pm *Manager) GetSource(name string) string {
	if source, ok := pm.sources[name]; ok {
		return source
	}
	return "unknown"
}

// ListOverrides returns the sorted names of prompts replaced from the override directory
func (pm *Manager) ListOverrides() []string {
	var overrides []string
	for key, source := range pm.sources {
		if strings.HasPrefix(source, "override:") {
			overrides = append(overrides, key)
		}
	}
	sort.Strings(overrides)
	return overrides
}

// CountPrompts returns the total number of loaded prompts
func (pm *Manager) CountPrompts() int {
	return len(pm.prompts)
}
