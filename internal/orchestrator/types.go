package orchestrator

import (
	"encoding/json"
	stderrors "errors"

	"github.com/user/emrchat/internal/llm"
)

// ErrUnmatchedToolResult is returned when a tool result cannot be paired
// with exactly one tool call of the same round.
var ErrUnmatchedToolResult = stderrors.New("tool result does not match exactly one tool call")

// ErrEmptyMessage is returned when the user message is blank
var ErrEmptyMessage = stderrors.New("message must not be empty")

// Result is the outcome of one chat turn
type Result struct {
	// Response is the final assistant text
	Response string
	// History is the caller's history plus the user message and the final
	// assistant message
	History []llm.Message
	// Transcript is every message exchanged with the model in this turn,
	// tool calls and tool results included
	Transcript []llm.Message
	// ToolResults holds one entry per tool call, in call order
	ToolResults []ToolResult
}

// ToolResult is the outcome of one tool call
type ToolResult struct {
	CallID  string
	Name    string
	OK      bool
	Payload json.RawMessage
	Err     error
}

// Content renders the result as the text of a tool message
func (r ToolResult) Content() string {
	if r.OK {
		return string(r.Payload)
	}
	msg := "tool failed"
	if r.Err != nil {
		msg = r.Err.Error()
	}
	data, _ := json.Marshal(map[string]string{"error": msg})
	return string(data)
}
