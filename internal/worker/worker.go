// Package worker runs tool calls in a separate process over a line-delimited
// JSON-RPC 2.0 protocol, and hosts the worker side of that protocol.
package worker

import (
	"context"
	"encoding/json"

	"github.com/user/emrchat/internal/errors"
)

// Worker executes one tool call and returns the raw JSON result.
// Failures are *errors.ToolTransportError or *errors.ToolProtocolError.
type Worker interface {
	Invoke(ctx context.Context, req Request) (json.RawMessage, error)
	Close() error
}

// resultOf converts a decoded response into the Worker return shape
func resultOf(req Request, resp Response) (json.RawMessage, error) {
	if !sameID(req.ID, resp.ID) && resp.Error == nil {
		return nil, errors.NewToolTransportError("response id does not match request id", 0, "", nil)
	}
	if resp.Error != nil {
		return nil, errors.NewToolProtocolError(resp.Error.Code, resp.Error.Message)
	}
	return resp.Result, nil
}

// InProcessWorker answers requests in the calling process. It shares the
// request handling of a real worker and is used for tests and single-binary
// deployments.
type InProcessWorker struct {
	runner ToolRunner
}

// NewInProcessWorker wraps runner as a Worker
func NewInProcessWorker(runner ToolRunner) *InProcessWorker {
	return &InProcessWorker{runner: runner}
}

// Invoke handles req directly
func (w *InProcessWorker) Invoke(ctx context.Context, req Request) (json.RawMessage, error) {
	// Round-trip through the wire form so arguments look exactly as a
	// worker process would see them.
	data, err := json.Marshal(req)
	if err != nil {
		return nil, errors.NewToolTransportError("failed to encode request", 0, "", err)
	}
	return resultOf(req, handleLine(ctx, w.runner, data))
}

// Close is a no-op
func (w *InProcessWorker) Close() error { return nil }
