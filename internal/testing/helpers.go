package testing

import (
	"context"
	"fmt"
	"sync"

	"github.com/user/emrchat/internal/llm"
)

// MockLLMClient implements llm.LLMClient for testing
type MockLLMClient struct {
	mu             sync.Mutex
	Responses      []llm.CompletionResponse
	CallCount      int
	LastRequest    llm.CompletionRequest
	ShouldError    bool
	ErrorToReturn  error
	ErrorOnCall    int // when > 0, only that 1-based call fails
	RequestHistory []llm.CompletionRequest
}

// NewMockLLMClient creates a new mock LLM client with predefined responses
func NewMockLLMClient(responses ...llm.CompletionResponse) *MockLLMClient {
	return &MockLLMClient{
		Responses:      responses,
		RequestHistory: make([]llm.CompletionRequest, 0),
	}
}

// GenerateCompletion implements llm.LLMClient
func (m *MockLLMClient) GenerateCompletion(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LastRequest = req
	m.RequestHistory = append(m.RequestHistory, cloneRequest(req))
	m.CallCount++

	if m.ShouldError && (m.ErrorOnCall == 0 || m.ErrorOnCall == m.CallCount) {
		return llm.CompletionResponse{}, m.ErrorToReturn
	}

	if err := ctx.Err(); err != nil {
		return llm.CompletionResponse{}, err
	}

	if len(m.Responses) == 0 {
		return llm.CompletionResponse{}, fmt.Errorf("no responses configured")
	}
	if m.CallCount > len(m.Responses) {
		// Return last response if we've exhausted the list
		return m.Responses[len(m.Responses)-1], nil
	}
	return m.Responses[m.CallCount-1], nil
}

// SupportsTools implements llm.LLMClient
func (m *MockLLMClient) SupportsTools() bool {
	return true
}

// GetProvider implements llm.LLMClient
func (m *MockLLMClient) GetProvider() string {
	return "mock"
}

// Requests returns a copy of the recorded requests
func (m *MockLLMClient) Requests() []llm.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]llm.CompletionRequest(nil), m.RequestHistory...)
}

// Reset resets the mock state
func (m *MockLLMClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCount = 0
	m.LastRequest = llm.CompletionRequest{}
	m.RequestHistory = make([]llm.CompletionRequest, 0)
	m.ShouldError = false
	m.ErrorToReturn = nil
	m.ErrorOnCall = 0
}

// SetError configures the mock to return an error
func (m *MockLLMClient) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ShouldError = true
	m.ErrorToReturn = err
}

// cloneRequest copies the message slice so later appends by the caller do
// not rewrite recorded history.
func cloneRequest(req llm.CompletionRequest) llm.CompletionRequest {
	req.Messages = append([]llm.Message(nil), req.Messages...)
	req.Tools = append([]llm.ToolDefinition(nil), req.Tools...)
	return req
}

// TextResponse builds a completion with plain assistant text
func TextResponse(content string) llm.CompletionResponse {
	return llm.CompletionResponse{Content: content, FinishReason: "stop"}
}

// ToolCallResponse builds a completion that requests the given tool calls
func ToolCallResponse(calls ...llm.ToolCall) llm.CompletionResponse {
	return llm.CompletionResponse{ToolCalls: calls, FinishReason: "tool_calls"}
}
