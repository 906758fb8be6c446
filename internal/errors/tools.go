package errors

import (
	"fmt"
	"strings"
)

// UnknownToolError is raised when a tool name is not part of the catalog
type UnknownToolError struct {
	*AppError
	Name string
}

// NewUnknownToolError creates a new unknown tool error
func NewUnknownToolError(name string) *UnknownToolError {
	return &UnknownToolError{
		AppError: &AppError{
			Message:  fmt.Sprintf("Unknown tool: %s", name),
			ExitCode: ExitToolError,
		},
		Name: name,
	}
}

// InvalidToolArgumentsError is raised when tool arguments cannot be decoded or validated
type InvalidToolArgumentsError struct {
	*AppError
	Tool string
}

// NewInvalidToolArgumentsError creates a new invalid tool arguments error
func NewInvalidToolArgumentsError(tool, reason string, cause error) *InvalidToolArgumentsError {
	return &InvalidToolArgumentsError{
		AppError: &AppError{
			Message: fmt.Sprintf("Invalid arguments for tool '%s': %s", tool, reason),
			Cause:   cause,
			Context: &ErrorContext{
				Operation: "Decoding tool arguments",
				Component: tool,
			},
			ExitCode: ExitToolError,
		},
		Tool: tool,
	}
}

// ToolTransportError is raised when the worker process could not be driven
// to a well-formed JSON-RPC response.
type ToolTransportError struct {
	*AppError
	ExitStatus int
	Stderr     string
}

// NewToolTransportError creates a new tool transport error. Stderr is kept
// verbatim and echoed in the message so callers can surface worker output.
func NewToolTransportError(reason string, exitStatus int, stderr string, cause error) *ToolTransportError {
	msg := fmt.Sprintf("Worker transport failure: %s", reason)
	if s := strings.TrimSpace(stderr); s != "" {
		msg += ": " + s
	}
	return &ToolTransportError{
		AppError: &AppError{
			Message:  msg,
			Cause:    cause,
			ExitCode: ExitWorkerError,
		},
		ExitStatus: exitStatus,
		Stderr:     stderr,
	}
}

// ToolProtocolError carries a JSON-RPC error object returned by a worker
type ToolProtocolError struct {
	*AppError
	Code int
	RPC  string
}

// NewToolProtocolError creates a new tool protocol error
func NewToolProtocolError(code int, message string) *ToolProtocolError {
	return &ToolProtocolError{
		AppError: &AppError{
			Message:  message,
			ExitCode: ExitToolError,
		},
		Code: code,
		RPC:  message,
	}
}

// ToolExecutionError is raised when a tool invocation fails
type ToolExecutionError struct {
	*AppError
	Tool string
}

// NewToolExecutionError creates a new tool execution error
func NewToolExecutionError(toolName string, cause error) *ToolExecutionError {
	return &ToolExecutionError{
		AppError: &AppError{
			Message: fmt.Sprintf("Tool '%s' execution failed", toolName),
			Cause:   cause,
			Context: &ErrorContext{
				Operation: "Tool Execution",
				Component: toolName,
				Details: map[string]any{
					"tool": toolName,
				},
				Suggestions: []string{
					"Check that the worker command is runnable",
					"Check the record server logs",
				},
				Recoverable: true,
			},
			ExitCode: ExitToolError,
		},
		Tool: toolName,
	}
}
