package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/user/emrchat/internal/errors"
)

const envPrefix = "EMRCHAT"

// Loader handles loading configuration from multiple sources
type Loader struct {
	v *viper.Viper
}

// LoadOptions controls where configuration is read from
type LoadOptions struct {
	ConfigFile string         // explicit --config path
	WorkDir    string         // directory searched for emrchat.yaml
	Overrides  map[string]any // CLI flag overrides keyed by dotted path
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	applyLegacyEnv(v)

	return &Loader{v: v}
}

// Load reads configuration.
// Precedence: CLI > EMRCHAT_* env > config file > legacy env > defaults
func Load(opts LoadOptions) (*Config, error) {
	return NewLoader().Load(opts)
}

// Load reads configuration using this loader's viper instance
func (l *Loader) Load(opts LoadOptions) (*Config, error) {
	if err := l.loadGlobalConfig(); err != nil {
		return nil, err
	}

	if err := l.loadProjectConfig(opts.ConfigFile, opts.WorkDir); err != nil {
		return nil, err
	}

	l.applyCLIOverrides(opts.Overrides)

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           cfg,
		TagName:          "mapstructure",
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create config decoder: %w", err)
	}

	if err := decoder.Decode(l.v.AllSettings()); err != nil {
		return nil, errors.NewConfigurationError(fmt.Sprintf("failed to decode config: %v", err))
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.cors_origin", "http://localhost:3000")
	v.SetDefault("server.request_timeout", 120*time.Second)

	v.SetDefault("llm.provider", "groq")
	v.SetDefault("llm.model", "llama-3.3-70b-versatile")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.final_temperature", 0.3)
	v.SetDefault("llm.retry.max_attempts", 1)
	v.SetDefault("llm.retry.multiplier", 1)
	v.SetDefault("llm.retry.max_wait_per_attempt", 10)
	v.SetDefault("llm.retry.max_total_wait", 30)

	v.SetDefault("fhir.base_url", "http://localhost:8081/fhir")
	v.SetDefault("fhir.auth_token", "")
	v.SetDefault("fhir.timeout", 30*time.Second)
	v.SetDefault("fhir.identifier_system", "http://nphies.sa/identifier/")

	v.SetDefault("worker.mode", WorkerModeProcess)
	v.SetDefault("worker.command", "")
	v.SetDefault("worker.args", []string{})
	v.SetDefault("worker.timeout", 30*time.Second)
	v.SetDefault("worker.max_concurrency", 4)
	v.SetDefault("worker.pool_size", 0)

	v.SetDefault("chat.max_tool_result_tokens", 15000)
	v.SetDefault("chat.prompts_dir", "")

	v.SetDefault("logging.log_dir", ".emrchat/logs")
	v.SetDefault("logging.file_level", "info")
	v.SetDefault("logging.console_level", "info")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "emrchat")
}

// legacyEnv maps the unprefixed variables used by earlier deployments.
// They sit just above the defaults so any config file or EMRCHAT_* value wins.
var legacyEnv = map[string]string{
	"GROQ_API_KEY":    "llm.api_key",
	"FHIR_SERVER_URL": "fhir.base_url",
	"FHIR_AUTH_TOKEN": "fhir.auth_token",
	"PORT":            "server.port",
	"CORS_ORIGIN":     "server.cors_origin",
}

func applyLegacyEnv(v *viper.Viper) {
	for env, key := range legacyEnv {
		if val := os.Getenv(env); val != "" {
			v.SetDefault(key, val)
		}
	}
}

// loadGlobalConfig loads configuration from ~/.emrchat.yaml
func (l *Loader) loadGlobalConfig() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil // Not a fatal error
	}

	globalConfig := filepath.Join(homeDir, ".emrchat.yaml")
	if _, err := os.Stat(globalConfig); err != nil {
		return nil // File doesn't exist, skip
	}

	l.v.SetConfigFile(globalConfig)
	if err := l.v.MergeInConfig(); err != nil {
		return errors.NewConfigFileError(globalConfig, err)
	}

	return nil
}

// loadProjectConfig loads an explicit config file, or emrchat.yaml from workDir
func (l *Loader) loadProjectConfig(explicit, workDir string) error {
	configPath := explicit
	if configPath == "" {
		if workDir == "" {
			workDir = "."
		}
		configPath = filepath.Join(workDir, "emrchat.yaml")
		if _, err := os.Stat(configPath); err != nil {
			return nil // File doesn't exist, skip
		}
	}

	l.v.SetConfigFile(configPath)
	if err := l.v.MergeInConfig(); err != nil {
		return errors.NewConfigFileError(configPath, err)
	}

	return nil
}

// applyCLIOverrides applies CLI flag overrides
func (l *Loader) applyCLIOverrides(overrides map[string]any) {
	for key, value := range overrides {
		// Only set if value is not nil
		if value != nil {
			l.v.Set(key, value)
		}
	}
}

func validate(cfg *Config) error {
	switch cfg.Worker.Mode {
	case WorkerModeProcess, WorkerModePooled, WorkerModeInProcess:
	default:
		return errors.NewInvalidEnvVarError(envPrefix+"_WORKER_MODE", cfg.Worker.Mode, "Must be one of: process, pooled, inprocess")
	}

	if cfg.FHIR.BaseURL == "" {
		return errors.NewMissingEnvVarError(envPrefix+"_FHIR_BASE_URL", "Base URL of the FHIR record server")
	}
	if !strings.HasPrefix(cfg.FHIR.BaseURL, "http://") && !strings.HasPrefix(cfg.FHIR.BaseURL, "https://") {
		return errors.NewInvalidEnvVarError(envPrefix+"_FHIR_BASE_URL", cfg.FHIR.BaseURL, "Must be an http(s) URL")
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return errors.NewInvalidEnvVarError(envPrefix+"_SERVER_PORT", strconv.Itoa(cfg.Server.Port), "Must be a valid TCP port")
	}

	return nil
}

// ValidateLLM checks the settings needed to talk to the LLM provider.
// The worker subcommand never calls it.
func (c *Config) ValidateLLM() error {
	return validateLLMConfig(&c.LLM)
}

// validateLLMConfig validates LLM configuration
func validateLLMConfig(cfg *LLMConfig) error {
	validProviders := map[string]bool{
		"groq":   true,
		"openai": true,
	}

	if !validProviders[cfg.Provider] {
		return errors.NewInvalidEnvVarError(envPrefix+"_LLM_PROVIDER", cfg.Provider, "Must be one of: groq, openai")
	}

	if cfg.APIKey == "" {
		return errors.NewMissingEnvVarError(envPrefix+"_LLM_API_KEY", "API key for LLM provider (GROQ_API_KEY is also accepted)")
	}

	if cfg.Timeout <= 0 {
		return errors.NewInvalidEnvVarError(envPrefix+"_LLM_TIMEOUT", cfg.Timeout.String(), "Must be a positive duration")
	}

	return nil
}
