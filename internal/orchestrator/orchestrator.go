// Package orchestrator runs one chat turn: a tool-selection completion,
// the requested tool calls, and an answer completion over their results.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/user/emrchat/internal/config"
	"github.com/user/emrchat/internal/llm"
	"github.com/user/emrchat/internal/llmtypes"
	"github.com/user/emrchat/internal/logging"
	"github.com/user/emrchat/internal/prompts"
	"github.com/user/emrchat/internal/tools"
	"github.com/user/emrchat/internal/worker_pool"
)

const tracerName = "github.com/user/emrchat/internal/orchestrator"

// ToolExecutor runs a named tool. *dispatcher.Dispatcher implements it.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, args any) (json.RawMessage, error)
}

// Settings tune a conversation turn
type Settings struct {
	MaxTokens           int
	Temperature         float64 // tool selection round
	FinalTemperature    float64 // answer round
	LLMTimeout          time.Duration
	MaxConcurrency      int
	MaxToolResultTokens int
}

// SettingsFrom extracts orchestration settings from the loaded config
func SettingsFrom(cfg *config.Config) Settings {
	return Settings{
		MaxTokens:           cfg.LLM.MaxTokens,
		Temperature:         cfg.LLM.Temperature,
		FinalTemperature:    cfg.LLM.FinalTemperature,
		LLMTimeout:          cfg.LLM.Timeout,
		MaxConcurrency:      cfg.Worker.GetMaxConcurrency(),
		MaxToolResultTokens: cfg.Chat.MaxToolResultTokens,
	}
}

// Orchestrator drives chat turns. It holds no per-conversation state and
// is safe for concurrent use.
type Orchestrator struct {
	llmClient    llm.LLMClient
	tools        ToolExecutor
	pool         *worker_pool.WorkerPool
	budget       *tokenBudget
	logger       *logging.Logger
	tracer       trace.Tracer
	systemPrompt string
	toolDefs     []llm.ToolDefinition
	settings     Settings
	newCallID    func() string
}

// New creates an orchestrator
func New(llmClient llm.LLMClient, executor ToolExecutor, pm *prompts.Manager, settings Settings, logger *logging.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	systemPrompt, err := pm.Get(prompts.ChatSystemPrompt)
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		llmClient:    llmClient,
		tools:        executor,
		pool:         worker_pool.NewWorkerPool(settings.MaxConcurrency),
		budget:       newTokenBudget(settings.MaxToolResultTokens, pm, logger),
		logger:       logger,
		tracer:       otel.Tracer(tracerName),
		systemPrompt: systemPrompt,
		toolDefs:     tools.Definitions(),
		settings:     settings,
		newCallID:    func() string { return "call_" + uuid.NewString() },
	}, nil
}

// Chat answers userMessage in the context of history. history is not
// modified. LLM failures abort the turn; tool failures are reported to the
// model as tool results and never abort it.
func (o *Orchestrator) Chat(ctx context.Context, history []llm.Message, userMessage string) (*Result, error) {
	if strings.TrimSpace(userMessage) == "" {
		return nil, ErrEmptyMessage
	}

	ctx, span := o.tracer.Start(ctx, "chat", trace.WithAttributes(
		attribute.Int("chat.history_messages", len(history)),
	))
	defer span.End()

	userMsg := llm.Message{Role: llmtypes.RoleUser, Content: userMessage}
	working := make([]llm.Message, 0, len(history)+4)
	working = append(working, history...)
	working = append(working, userMsg)

	first, err := o.complete(ctx, "tools", llm.CompletionRequest{
		SystemPrompt: o.systemPrompt,
		Messages:     working,
		Tools:        o.toolDefs,
		MaxTokens:    o.settings.MaxTokens,
		Temperature:  o.settings.Temperature,
	})
	if err != nil {
		return nil, o.fail(span, err)
	}

	var results []ToolResult
	answer := first.Content

	if len(first.ToolCalls) > 0 {
		calls := o.assignCallIDs(first.ToolCalls)
		working = append(working, llm.Message{
			Role:      llmtypes.RoleAssistant,
			Content:   first.Content,
			ToolCalls: calls,
		})

		results, err = correlate(calls, o.runTools(ctx, calls))
		if err != nil {
			return nil, o.fail(span, err)
		}
		for _, r := range results {
			working = append(working, llm.Message{
				Role:    llmtypes.RoleTool,
				Content: o.budget.apply(r.Name, r.Content()),
				ToolID:  r.CallID,
			})
		}

		second, err := o.complete(ctx, "answer", llm.CompletionRequest{
			SystemPrompt: o.systemPrompt,
			Messages:     working,
			MaxTokens:    o.settings.MaxTokens,
			Temperature:  o.settings.FinalTemperature,
		})
		if err != nil {
			return nil, o.fail(span, err)
		}
		answer = second.Content
	}

	assistantMsg := llm.Message{Role: llmtypes.RoleAssistant, Content: answer}

	updated := make([]llm.Message, 0, len(history)+2)
	updated = append(updated, history...)
	updated = append(updated, userMsg, assistantMsg)

	span.SetAttributes(attribute.Int("chat.tool_calls", len(results)))
	return &Result{
		Response:    answer,
		History:     updated,
		Transcript:  append(working, assistantMsg),
		ToolResults: results,
	}, nil
}

// complete runs one completion under the LLM timeout
func (o *Orchestrator) complete(ctx context.Context, round string, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	ctx, span := o.tracer.Start(ctx, "llm.completion", trace.WithAttributes(
		attribute.String("llm.round", round),
		attribute.String("llm.provider", o.llmClient.GetProvider()),
		attribute.Int("llm.tools", len(req.Tools)),
	))
	defer span.End()

	if o.settings.LLMTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.settings.LLMTimeout)
		defer cancel()
	}

	o.logger.Info("Calling LLM",
		logging.String("round", round),
		logging.Int("history_messages", len(req.Messages)),
		logging.Int("tool_count", len(req.Tools)))

	resp, err := o.llmClient.GenerateCompletion(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return resp, err
	}

	o.logger.Info("LLM response received",
		logging.String("round", round),
		logging.Int("input_tokens", resp.Usage.InputTokens),
		logging.Int("output_tokens", resp.Usage.OutputTokens),
		logging.Int("tool_calls", len(resp.ToolCalls)))
	return resp, nil
}

// assignCallIDs gives every call a unique id so results can be correlated.
// Missing or repeated ids are replaced.
func (o *Orchestrator) assignCallIDs(calls []llm.ToolCall) []llm.ToolCall {
	out := make([]llm.ToolCall, len(calls))
	seen := make(map[string]bool, len(calls))
	for i, c := range calls {
		if c.ID == "" || seen[c.ID] {
			c.ID = o.newCallID()
		}
		seen[c.ID] = true
		out[i] = c
	}
	return out
}

// runTools executes all calls concurrently; results come back in call order
func (o *Orchestrator) runTools(ctx context.Context, calls []llm.ToolCall) []ToolResult {
	tasks := make([]worker_pool.Task[ToolResult], len(calls))
	for i, call := range calls {
		tasks[i] = func(ctx context.Context) (ToolResult, error) {
			return o.runTool(ctx, call), nil
		}
	}

	results := make([]ToolResult, len(calls))
	for i, r := range worker_pool.Run(ctx, o.pool, tasks) {
		if r.Error != nil {
			results[i] = ToolResult{CallID: calls[i].ID, Name: calls[i].Name, Err: r.Error}
			continue
		}
		results[i] = r.Value
	}
	return results
}

func (o *Orchestrator) runTool(ctx context.Context, call llm.ToolCall) ToolResult {
	o.logger.Info("Executing tool",
		logging.String("tool", call.Name),
		logging.String("call_id", call.ID))

	payload, err := o.tools.Execute(ctx, call.Name, call.Arguments)
	if err != nil {
		o.logger.Error("Tool execution failed",
			logging.String("tool", call.Name),
			logging.String("call_id", call.ID),
			logging.Error(err))
		return ToolResult{CallID: call.ID, Name: call.Name, Err: err}
	}
	return ToolResult{CallID: call.ID, Name: call.Name, OK: true, Payload: payload}
}

func (o *Orchestrator) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// correlate orders results by their calls. Every result must name exactly
// one call of the round and every call must have exactly one result.
func correlate(calls []llm.ToolCall, results []ToolResult) ([]ToolResult, error) {
	if len(results) != len(calls) {
		return nil, fmt.Errorf("%w: %d results for %d calls", ErrUnmatchedToolResult, len(results), len(calls))
	}

	byID := make(map[string]ToolResult, len(results))
	for _, r := range results {
		if _, dup := byID[r.CallID]; dup {
			return nil, fmt.Errorf("%w: duplicate result for %q", ErrUnmatchedToolResult, r.CallID)
		}
		byID[r.CallID] = r
	}

	ordered := make([]ToolResult, len(calls))
	for i, c := range calls {
		r, ok := byID[c.ID]
		if !ok {
			return nil, fmt.Errorf("%w: no result for %q", ErrUnmatchedToolResult, c.ID)
		}
		ordered[i] = r
	}
	return ordered, nil
}
