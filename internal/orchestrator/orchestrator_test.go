package orchestrator

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/user/emrchat/internal/dispatcher"
	"github.com/user/emrchat/internal/errors"
	"github.com/user/emrchat/internal/llm"
	"github.com/user/emrchat/internal/prompts"
	testHelpers "github.com/user/emrchat/internal/testing"
	"github.com/user/emrchat/internal/tools"
	"github.com/user/emrchat/internal/worker"
)

// fakeTools answers tool calls from a table and records what it saw
type fakeTools struct {
	mu      sync.Mutex
	calls   []string
	answers map[string]json.RawMessage
	errs    map[string]error
	delays  map[string]time.Duration
}

func (f *fakeTools) Execute(ctx context.Context, name string, args any) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fmt.Sprintf("%s %v", name, args))
	f.mu.Unlock()

	if d := f.delays[name]; d > 0 {
		time.Sleep(d)
	}
	if err := f.errs[name]; err != nil {
		return nil, err
	}
	if answer, ok := f.answers[name]; ok {
		return answer, nil
	}
	return nil, errors.NewUnknownToolError(name)
}

func (f *fakeTools) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestOrchestrator(t *testing.T, client llm.LLMClient, executor ToolExecutor, settings Settings) *Orchestrator {
	t.Helper()
	pm, err := prompts.NewManager()
	if err != nil {
		t.Fatalf("prompts: %v", err)
	}
	if settings.MaxConcurrency == 0 {
		settings.MaxConcurrency = 4
	}
	o, err := New(client, executor, pm, settings, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return o
}

func priorHistory() []llm.Message {
	return []llm.Message{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "Hello, how can I help?"},
	}
}

func TestChat_NoToolCalls(t *testing.T) {
	client := testHelpers.NewMockLLMClient(testHelpers.TextResponse("Hello! Ask me about a patient."))
	executor := &fakeTools{}
	o := newTestOrchestrator(t, client, executor, Settings{MaxTokens: 1024})

	history := priorHistory()
	result, err := o.Chat(context.Background(), history, "hello")
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	if result.Response != "Hello! Ask me about a patient." {
		t.Errorf("response = %q", result.Response)
	}
	if client.CallCount != 1 {
		t.Errorf("expected 1 completion, got %d", client.CallCount)
	}
	if executor.count() != 0 {
		t.Errorf("expected no tool calls, got %d", executor.count())
	}
	if len(result.History) != len(history)+2 {
		t.Fatalf("history grew by %d, want 2", len(result.History)-len(history))
	}
	last := result.History[len(result.History)-1]
	if last.Role != "assistant" || last.Content != result.Response {
		t.Errorf("last history entry = %+v", last)
	}

	req := client.Requests()[0]
	if len(req.Tools) != len(tools.All()) {
		t.Errorf("first completion should offer %d tools, got %d", len(tools.All()), len(req.Tools))
	}
	if !strings.Contains(req.SystemPrompt, "NEVER make up") {
		t.Errorf("system prompt missing: %q", req.SystemPrompt)
	}
	if len(req.Messages) != 3 || req.Messages[2].Content != "hello" {
		t.Errorf("composed messages = %+v", req.Messages)
	}
}

func TestChat_VitalsScenario(t *testing.T) {
	observations := `[{"id":"obs-1","type":"Heart rate","value":"72 beats/minute","effectiveDateTime":"2024-03-01","status":"final"},` +
		`{"id":"obs-2","type":"Body temperature","value":"37.1 Cel","effectiveDateTime":"2024-03-01","status":"final"}]`
	executor := &fakeTools{answers: map[string]json.RawMessage{
		"get_patient_observations": json.RawMessage(observations),
	}}
	client := testHelpers.NewMockLLMClient(
		testHelpers.ToolCallResponse(llm.ToolCall{ID: "call_vitals", Name: "get_patient_observations", Arguments: `{"patientId":"10868"}`}),
		testHelpers.TextResponse("Heart rate 72 beats/minute and body temperature 37.1 Cel."),
	)
	o := newTestOrchestrator(t, client, executor, Settings{Temperature: 0, FinalTemperature: 0.3})

	history := priorHistory()
	result, err := o.Chat(context.Background(), history, "show vitals for patient 10868")
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	if !strings.Contains(result.Response, "72 beats/minute") || !strings.Contains(result.Response, "37.1 Cel") {
		t.Errorf("response = %q", result.Response)
	}
	if len(result.History) != len(history)+2 {
		t.Errorf("history grew by %d, want 2", len(result.History)-len(history))
	}
	if executor.count() != 1 {
		t.Fatalf("expected 1 tool call, got %d", executor.count())
	}

	requests := client.Requests()
	if len(requests) != 2 {
		t.Fatalf("expected 2 completions, got %d", len(requests))
	}
	second := requests[1]
	if len(second.Tools) != 0 {
		t.Errorf("answer round must not offer tools, got %d", len(second.Tools))
	}
	if second.Temperature != 0.3 {
		t.Errorf("answer round temperature = %v", second.Temperature)
	}

	msgs := second.Messages
	n := len(msgs)
	assistant, tool := msgs[n-2], msgs[n-1]
	if assistant.Role != "assistant" || len(assistant.ToolCalls) != 1 || assistant.ToolCalls[0].ID != "call_vitals" {
		t.Errorf("assistant tool-call message = %+v", assistant)
	}
	if tool.Role != "tool" || tool.ToolID != "call_vitals" || tool.Content != observations {
		t.Errorf("tool message = %+v", tool)
	}

	// Transcript: prior + user + assistant(tool calls) + tool + final answer
	if len(result.Transcript) != len(history)+4 {
		t.Errorf("transcript length = %d", len(result.Transcript))
	}
}

func TestChat_MixedOutcomesKeepOrder(t *testing.T) {
	executor := &fakeTools{
		answers: map[string]json.RawMessage{
			"get_patient_conditions": json.RawMessage(`[{"id":"c1","code":"Diabetes"}]`),
			"get_patient_allergies":  json.RawMessage(`[]`),
		},
		errs: map[string]error{
			"get_patient_medications": errors.NewToolExecutionError("get_patient_medications",
				errors.NewToolTransportError("worker exited with status 2", 2, "boom", nil)),
		},
		delays: map[string]time.Duration{"get_patient_conditions": 30 * time.Millisecond},
	}
	client := testHelpers.NewMockLLMClient(
		testHelpers.ToolCallResponse(
			llm.ToolCall{ID: "a", Name: "get_patient_conditions", Arguments: `{"patientId":"123"}`},
			llm.ToolCall{ID: "b", Name: "get_patient_medications", Arguments: `{"patientId":"123"}`},
			llm.ToolCall{ID: "c", Name: "lookup_billing", Arguments: `{}`},
			llm.ToolCall{ID: "d", Name: "get_patient_allergies", Arguments: `{"patientId":"123"}`},
		),
		testHelpers.TextResponse("Summary"),
	)
	o := newTestOrchestrator(t, client, executor, Settings{})

	result, err := o.Chat(context.Background(), nil, "summarize patient 123")
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	wantIDs := []string{"a", "b", "c", "d"}
	wantOK := []bool{true, false, false, true}
	if len(result.ToolResults) != len(wantIDs) {
		t.Fatalf("expected %d results, got %d", len(wantIDs), len(result.ToolResults))
	}
	for i, r := range result.ToolResults {
		if r.CallID != wantIDs[i] || r.OK != wantOK[i] {
			t.Errorf("result %d = {%s ok=%v}, want {%s ok=%v}", i, r.CallID, r.OK, wantIDs[i], wantOK[i])
		}
	}

	msgs := client.Requests()[1].Messages
	toolMsgs := msgs[len(msgs)-4:]
	for i, m := range toolMsgs {
		if m.Role != "tool" || m.ToolID != wantIDs[i] {
			t.Errorf("tool message %d = %+v", i, m)
		}
	}

	var failure map[string]string
	if err := json.Unmarshal([]byte(toolMsgs[1].Content), &failure); err != nil {
		t.Fatalf("failure payload is not JSON: %v", err)
	}
	if !strings.Contains(failure["error"], "boom") {
		t.Errorf("failure payload should carry worker stderr, got %q", failure["error"])
	}
	if !strings.Contains(toolMsgs[2].Content, "Unknown tool: lookup_billing") {
		t.Errorf("unknown tool payload = %q", toolMsgs[2].Content)
	}
}

func TestChat_EndToEndThroughDispatcher(t *testing.T) {
	store, err := testHelpers.NewStubRecordStoreFromFixtures()
	if err != nil {
		t.Fatalf("fixtures: %v", err)
	}
	d := dispatcher.New(worker.NewInProcessWorker(tools.NewExecutor(store, nil)))

	client := testHelpers.NewMockLLMClient(
		testHelpers.ToolCallResponse(llm.ToolCall{ID: "call_1", Name: "search_patients", Arguments: `{"name":"Ahmed"}`}),
		testHelpers.TextResponse("Found Ahmed Al-Harbi (MRN-0042)."),
	)
	o := newTestOrchestrator(t, client, d, Settings{MaxToolResultTokens: 15000})

	result, err := o.Chat(context.Background(), nil, "find patient Ahmed")
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if !result.ToolResults[0].OK {
		t.Fatalf("tool failed: %v", result.ToolResults[0].Err)
	}

	msgs := client.Requests()[1].Messages
	tool := msgs[len(msgs)-1]
	if !strings.Contains(tool.Content, "Ahmed Al-Harbi") || !strings.Contains(tool.Content, `"total":2`) {
		t.Errorf("tool message = %s", tool.Content)
	}
	if store.LastPatientSearch.Name != "Ahmed" {
		t.Errorf("record search = %+v", store.LastPatientSearch)
	}
}

func TestChat_AssignsMissingCallIDs(t *testing.T) {
	executor := &fakeTools{answers: map[string]json.RawMessage{"get_patient_details": json.RawMessage(`{"id":"123"}`)}}
	client := testHelpers.NewMockLLMClient(
		testHelpers.ToolCallResponse(
			llm.ToolCall{Name: "get_patient_details", Arguments: `{"patientId":"123"}`},
			llm.ToolCall{ID: "dup", Name: "get_patient_details", Arguments: `{"patientId":"123"}`},
			llm.ToolCall{ID: "dup", Name: "get_patient_details", Arguments: `{"patientId":"123"}`},
		),
		testHelpers.TextResponse("ok"),
	)
	o := newTestOrchestrator(t, client, executor, Settings{})

	result, err := o.Chat(context.Background(), nil, "details for 123")
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	seen := map[string]bool{}
	for _, r := range result.ToolResults {
		if r.CallID == "" || seen[r.CallID] {
			t.Errorf("call id %q is empty or repeated", r.CallID)
		}
		seen[r.CallID] = true
	}
	if !strings.HasPrefix(result.ToolResults[0].CallID, "call_") {
		t.Errorf("generated id = %q", result.ToolResults[0].CallID)
	}
	if result.ToolResults[1].CallID != "dup" {
		t.Errorf("first id should be kept, got %q", result.ToolResults[1].CallID)
	}
}

func TestChat_LLMFailures(t *testing.T) {
	for _, failOn := range []int{1, 2} {
		t.Run(fmt.Sprintf("call %d", failOn), func(t *testing.T) {
			client := testHelpers.NewMockLLMClient(
				testHelpers.ToolCallResponse(llm.ToolCall{ID: "x", Name: "get_patient_details", Arguments: `{"patientId":"1"}`}),
				testHelpers.TextResponse("unreachable"),
			)
			client.SetError(errors.NewLLMConnectionError("groq", stderrors.New("connection refused")))
			client.ErrorOnCall = failOn

			executor := &fakeTools{answers: map[string]json.RawMessage{"get_patient_details": json.RawMessage(`{}`)}}
			o := newTestOrchestrator(t, client, executor, Settings{})

			_, err := o.Chat(context.Background(), nil, "details for 1")
			var connErr *errors.LLMConnectionError
			if !stderrors.As(err, &connErr) {
				t.Fatalf("expected LLMConnectionError, got %T: %v", err, err)
			}
		})
	}
}

// slowLLM blocks until its context ends
type slowLLM struct{}

func (slowLLM) GenerateCompletion(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	<-ctx.Done()
	return llm.CompletionResponse{}, errors.NewLLMConnectionError("slow", ctx.Err())
}
func (slowLLM) SupportsTools() bool { return true }
func (slowLLM) GetProvider() string { return "slow" }

func TestChat_LLMTimeout(t *testing.T) {
	o := newTestOrchestrator(t, slowLLM{}, &fakeTools{}, Settings{LLMTimeout: 50 * time.Millisecond})

	start := time.Now()
	_, err := o.Chat(context.Background(), nil, "hello")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !stderrors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline in chain, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Errorf("timeout not applied")
	}
}

func TestChat_EmptyMessage(t *testing.T) {
	client := testHelpers.NewMockLLMClient(testHelpers.TextResponse("x"))
	o := newTestOrchestrator(t, client, &fakeTools{}, Settings{})

	if _, err := o.Chat(context.Background(), nil, "   "); !stderrors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if client.CallCount != 0 {
		t.Error("LLM should not be called for an empty message")
	}
}

func TestChat_DoesNotMutateHistory(t *testing.T) {
	history := make([]llm.Message, 2, 10)
	copy(history, priorHistory())

	client := testHelpers.NewMockLLMClient(
		testHelpers.ToolCallResponse(llm.ToolCall{ID: "x", Name: "get_patient_details", Arguments: `{"patientId":"1"}`}),
		testHelpers.TextResponse("done"),
	)
	executor := &fakeTools{answers: map[string]json.RawMessage{"get_patient_details": json.RawMessage(`{}`)}}
	o := newTestOrchestrator(t, client, executor, Settings{})

	if _, err := o.Chat(context.Background(), history, "details"); err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	extended := history[:cap(history)]
	for i := len(history); i < len(extended); i++ {
		if extended[i].Role != "" {
			t.Fatalf("caller backing array was written at %d: %+v", i, extended[i])
		}
	}
}

func TestChat_TruncatesLargeToolResults(t *testing.T) {
	big := make([]string, 2000)
	for i := range big {
		big[i] = fmt.Sprintf(`{"id":"obs-%d","type":"Glucose","value":"%d mg/dL"}`, i, 90+i%50)
	}
	payload := json.RawMessage("[" + strings.Join(big, ",") + "]")

	executor := &fakeTools{answers: map[string]json.RawMessage{"get_patient_observations": payload}}
	client := testHelpers.NewMockLLMClient(
		testHelpers.ToolCallResponse(llm.ToolCall{ID: "x", Name: "get_patient_observations", Arguments: `{"patientId":"1"}`}),
		testHelpers.TextResponse("many readings"),
	)
	o := newTestOrchestrator(t, client, executor, Settings{MaxToolResultTokens: 100})

	if _, err := o.Chat(context.Background(), nil, "glucose"); err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	msgs := client.Requests()[1].Messages
	content := msgs[len(msgs)-1].Content
	if len(content) >= len(payload) {
		t.Fatalf("payload was not truncated (%d bytes)", len(content))
	}
	if !strings.Contains(content, "[truncated:") || !strings.Contains(content, "get_patient_observations") {
		t.Errorf("missing truncation notice: %q", content[len(content)-120:])
	}
}

func TestCorrelate(t *testing.T) {
	calls := []llm.ToolCall{{ID: "a"}, {ID: "b"}}

	ordered, err := correlate(calls, []ToolResult{{CallID: "b"}, {CallID: "a"}})
	if err != nil {
		t.Fatalf("correlate failed: %v", err)
	}
	if ordered[0].CallID != "a" || ordered[1].CallID != "b" {
		t.Errorf("order = %s,%s", ordered[0].CallID, ordered[1].CallID)
	}

	bad := [][]ToolResult{
		{{CallID: "a"}},
		{{CallID: "a"}, {CallID: "z"}},
		{{CallID: "a"}, {CallID: "a"}},
	}
	for i, results := range bad {
		if _, err := correlate(calls, results); !stderrors.Is(err, ErrUnmatchedToolResult) {
			t.Errorf("case %d: expected ErrUnmatchedToolResult, got %v", i, err)
		}
	}
}

func TestToolResultContent(t *testing.T) {
	ok := ToolResult{OK: true, Payload: json.RawMessage(`{"total":0,"results":[]}`)}
	if ok.Content() != `{"total":0,"results":[]}` {
		t.Errorf("success content = %s", ok.Content())
	}

	failed := ToolResult{Err: stderrors.New(`bad "quote"`)}
	var decoded map[string]string
	if err := json.Unmarshal([]byte(failed.Content()), &decoded); err != nil {
		t.Fatalf("failure content is not JSON: %v", err)
	}
	if decoded["error"] != `bad "quote"` {
		t.Errorf("error = %q", decoded["error"])
	}
}
