// Package llm talks to OpenAI-compatible chat completion APIs.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/user/emrchat/internal/llmtypes"
)

// The provider-neutral types live in llmtypes so test helpers can share them
type (
	Message            = llmtypes.Message
	ToolCall           = llmtypes.ToolCall
	CompletionRequest  = llmtypes.CompletionRequest
	CompletionResponse = llmtypes.CompletionResponse
	TokenUsage         = llmtypes.TokenUsage
	ToolDefinition     = llmtypes.ToolDefinition
)

// LLMClient produces one chat completion per call
type LLMClient interface {
	GenerateCompletion(ctx context.Context, req CompletionRequest) (CompletionResponse, error)

	// SupportsTools reports whether the client sends tool definitions
	SupportsTools() bool

	GetProvider() string
}

// BaseLLMClient holds the HTTP plumbing shared by provider clients
type BaseLLMClient struct {
	retryClient *RetryClient
}

// NewBaseLLMClient wraps retryClient. A nil client gets the default retry config.
func NewBaseLLMClient(retryClient *RetryClient) *BaseLLMClient {
	if retryClient == nil {
		retryClient = NewRetryClient(nil)
	}
	return &BaseLLMClient{retryClient: retryClient}
}

// postJSON sends payload as a JSON body. The caller closes resp.Body and
// checks the status code.
func (b *BaseLLMClient) postJSON(ctx context.Context, url string, headers map[string]string, payload any) (*http.Response, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := b.retryClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}
