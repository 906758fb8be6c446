package errors

import (
	"fmt"
)

// LLMConnectionError is raised when connection to LLM provider fails
type LLMConnectionError struct {
	*AppError
}

// NewLLMConnectionError creates a new LLM connection error
func NewLLMConnectionError(provider string, cause error) *LLMConnectionError {
	return &LLMConnectionError{
		AppError: &AppError{
			Message: fmt.Sprintf("Failed to connect to LLM provider: %s", provider),
			Cause:   cause,
			Context: &ErrorContext{
				Operation: "LLM API Call",
				Component: "LLM Client",
				Details: map[string]any{
					"provider": provider,
				},
				Suggestions: []string{
					"Verify the API endpoint is accessible",
					"Check if the API key is valid",
					"Try again later (service may be unavailable)",
				},
				Recoverable: true,
			},
			ExitCode: ExitLLMError,
		},
	}
}

// LLMResponseError is raised when LLM response is invalid or cannot be parsed
type LLMResponseError struct {
	*AppError
}

// NewLLMResponseError creates a new LLM response error
func NewLLMResponseError(provider, reason string) *LLMResponseError {
	return &LLMResponseError{
		AppError: &AppError{
			Message: fmt.Sprintf("Invalid response from LLM provider: %s", provider),
			Context: &ErrorContext{
				Operation: "Parsing LLM Response",
				Component: "LLM Client",
				Details: map[string]any{
					"provider": provider,
					"reason":   reason,
				},
				Suggestions: []string{
					"Check if the model name is correct",
					"Check that the model supports tool calling",
				},
				Recoverable: true,
			},
			ExitCode: ExitLLMError,
		},
	}
}
