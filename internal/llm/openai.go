package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/user/emrchat/internal/config"
	"github.com/user/emrchat/internal/errors"
	"github.com/user/emrchat/internal/llmtypes"
)

// maxErrorBody bounds how much of an error response is kept
const maxErrorBody = 2048

// OpenAIClient implements LLMClient for OpenAI-compatible APIs (OpenAI, Groq)
type OpenAIClient struct {
	*BaseLLMClient
	provider string
	apiKey   string
	baseURL  string
	model    string
}

// openaiRequest represents the request body for the chat completions API
type openaiRequest struct {
	Model       string          `json:"model"`
	Messages    []openaiMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature"`
	Tools       []openaiTool    `json:"tools,omitempty"`
	ToolChoice  string          `json:"tool_choice,omitempty"`
}

// openaiMessage represents a message in OpenAI format. Content is null on
// assistant messages that only carry tool calls.
type openaiMessage struct {
	Role       string           `json:"role"`
	Content    *string          `json:"content"`
	ToolCalls  []openaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

// openaiTool represents a tool definition in OpenAI format
type openaiTool struct {
	Type     string             `json:"type"`
	Function openaiToolFunction `json:"function"`
}

// openaiToolFunction represents tool function parameters
type openaiToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// openaiToolCall represents a tool call in OpenAI format
type openaiToolCall struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function openaiToolCallFunc `json:"function"`
}

// openaiToolCallFunc represents function call details
type openaiToolCallFunc struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// openaiResponse represents the response from the chat completions API
type openaiResponse struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []openaiChoice     `json:"choices"`
	Usage   openaiUsage        `json:"usage"`
	Error   *openaiErrorDetail `json:"error,omitempty"`
}

// openaiChoice represents a choice in the response
type openaiChoice struct {
	Index        int           `json:"index"`
	Message      openaiMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

// openaiUsage represents token usage
type openaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// openaiErrorDetail represents an API error. Code is a string on OpenAI and
// sometimes absent on Groq.
type openaiErrorDetail struct {
	Message string          `json:"message"`
	Type    string          `json:"type"`
	Code    json.RawMessage `json:"code,omitempty"`
}

// NewOpenAIClient creates a new OpenAI-compatible client
func NewOpenAIClient(cfg config.LLMConfig, retryClient *RetryClient) *OpenAIClient {
	provider := cfg.Provider
	if provider == "" {
		provider = ProviderOpenAI
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL(provider)
	}

	return &OpenAIClient{
		BaseLLMClient: NewBaseLLMClient(retryClient),
		provider:      provider,
		apiKey:        cfg.APIKey,
		baseURL:       baseURL,
		model:         cfg.Model,
	}
}

// GenerateCompletion generates a chat completion
func (c *OpenAIClient) GenerateCompletion(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	headers := map[string]string{
		"Authorization": fmt.Sprintf("Bearer %s", c.apiKey),
	}

	resp, err := c.postJSON(ctx, c.baseURL+"/chat/completions", headers, c.convertRequest(req))
	if err != nil {
		return CompletionResponse{}, errors.NewLLMConnectionError(c.provider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return CompletionResponse{}, errors.NewLLMConnectionError(c.provider, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return CompletionResponse{}, errors.NewLLMResponseError(c.provider,
			fmt.Sprintf("API error: status %d, body: %s", resp.StatusCode, truncate(body, maxErrorBody)))
	}

	var oaResp openaiResponse
	if err := json.Unmarshal(body, &oaResp); err != nil {
		return CompletionResponse{}, errors.NewLLMResponseError(c.provider, fmt.Sprintf("failed to parse response: %v", err))
	}

	if oaResp.Error != nil {
		return CompletionResponse{}, errors.NewLLMResponseError(c.provider, "API error: "+oaResp.Error.Message)
	}
	if len(oaResp.Choices) == 0 {
		return CompletionResponse{}, errors.NewLLMResponseError(c.provider, "response has no choices")
	}

	return c.convertResponse(oaResp), nil
}

// SupportsTools returns true
func (c *OpenAIClient) SupportsTools() bool {
	return true
}

// GetProvider returns the provider name
func (c *OpenAIClient) GetProvider() string {
	return c.provider
}

// convertRequest converts internal request to OpenAI format
func (c *OpenAIClient) convertRequest(req CompletionRequest) openaiRequest {
	messages := make([]openaiMessage, 0, len(req.Messages)+1)

	// Add system prompt if provided
	if req.SystemPrompt != "" {
		messages = append(messages, openaiMessage{
			Role:    llmtypes.RoleSystem,
			Content: strptr(req.SystemPrompt),
		})
	}

	for _, msg := range req.Messages {
		om := openaiMessage{
			Role:       msg.Role,
			Content:    strptr(msg.Content),
			ToolCallID: msg.ToolID,
		}
		if len(msg.ToolCalls) > 0 {
			om.ToolCalls = make([]openaiToolCall, len(msg.ToolCalls))
			for i, tc := range msg.ToolCalls {
				om.ToolCalls[i] = openaiToolCall{
					ID:       tc.ID,
					Type:     "function",
					Function: openaiToolCallFunc{Name: tc.Name, Arguments: tc.Arguments},
				}
			}
			if msg.Content == "" {
				om.Content = nil
			}
		}
		messages = append(messages, om)
	}

	oaReq := openaiRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}

	// Add tools if provided
	if len(req.Tools) > 0 {
		oaReq.Tools = make([]openaiTool, len(req.Tools))
		for i, tool := range req.Tools {
			oaReq.Tools[i] = openaiTool{
				Type: "function",
				Function: openaiToolFunction{
					Name:        tool.Name,
					Description: tool.Description,
					Parameters:  tool.Parameters,
				},
			}
		}
		oaReq.ToolChoice = "auto"
	}

	return oaReq
}

// convertResponse converts OpenAI response to internal format
func (c *OpenAIClient) convertResponse(resp openaiResponse) CompletionResponse {
	choice := resp.Choices[0]
	result := CompletionResponse{
		FinishReason: choice.FinishReason,
		Usage: TokenUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}
	if choice.Message.Content != nil {
		result.Content = *choice.Message.Content
	}

	// Arguments stay as the raw string the model produced
	if len(choice.Message.ToolCalls) > 0 {
		result.ToolCalls = make([]ToolCall, len(choice.Message.ToolCalls))
		for i, tc := range choice.Message.ToolCalls {
			result.ToolCalls[i] = ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			}
		}
	}

	return result
}

func strptr(s string) *string {
	return &s
}

func truncate(body []byte, n int) string {
	if len(body) <= n {
		return string(body)
	}
	return string(body[:n]) + "..."
}
