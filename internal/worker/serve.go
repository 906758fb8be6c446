package worker

import (
	"bufio"
	"context"
	"encoding/json"
	stderrors "errors"
	"io"

	"github.com/user/emrchat/internal/errors"
	"github.com/user/emrchat/internal/tools"
)

// maxLineSize bounds a single request or response line.
const maxLineSize = 16 << 20

// ToolRunner executes a tool by kind. *tools.Executor implements it.
type ToolRunner interface {
	Execute(ctx context.Context, kind tools.Kind, args map[string]any) (any, error)
}

// Handle answers one request. It never fails; every problem becomes a
// JSON-RPC error object.
func Handle(ctx context.Context, runner ToolRunner, req Request) Response {
	resp := Response{JSONRPC: Version, ID: req.ID}
	if len(resp.ID) == 0 {
		resp.ID = json.RawMessage("null")
	}

	if req.Method != MethodToolsCall {
		resp.Error = &RPCError{Code: CodeMethodNotFound, Message: "Method not found: " + req.Method}
		return resp
	}

	kind, err := tools.ParseKind(req.Params.Name)
	if err != nil {
		resp.Error = &RPCError{Code: CodeMethodNotFound, Message: err.Error()}
		return resp
	}

	result, err := runner.Execute(ctx, kind, req.Params.Arguments)
	if err != nil {
		resp.Error = errorObject(err)
		return resp
	}

	data, err := json.Marshal(result)
	if err != nil {
		resp.Error = &RPCError{Code: CodeInternalError, Message: "failed to encode result: " + err.Error()}
		return resp
	}
	resp.Result = data
	return resp
}

func errorObject(err error) *RPCError {
	var invalid *errors.InvalidToolArgumentsError
	if stderrors.As(err, &invalid) {
		return &RPCError{Code: CodeInvalidParams, Message: err.Error()}
	}
	var unknown *errors.UnknownToolError
	if stderrors.As(err, &unknown) {
		return &RPCError{Code: CodeMethodNotFound, Message: err.Error()}
	}
	return &RPCError{Code: CodeInternalError, Message: err.Error()}
}

// ServeOnce reads one request from in and answers it. A result goes to out
// and the return value is 0; an error object goes to errOut and the return
// value is 1. The caller uses the return value as the process exit code.
func ServeOnce(ctx context.Context, runner ToolRunner, in io.Reader, out, errOut io.Writer) int {
	data, err := io.ReadAll(io.LimitReader(in, maxLineSize))
	if err != nil {
		writeResponse(errOut, Response{
			JSONRPC: Version,
			Error:   &RPCError{Code: CodeInternalError, Message: "failed to read request: " + err.Error()},
			ID:      json.RawMessage("null"),
		})
		return 1
	}

	resp := handleLine(ctx, runner, data)
	if resp.Error != nil {
		writeResponse(errOut, resp)
		return 1
	}
	writeResponse(out, resp)
	return 0
}

// ServeLoop answers newline-delimited requests until in is exhausted or ctx
// is cancelled. Every response, success or error, is one line on out.
func ServeLoop(ctx context.Context, runner ToolRunner, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := writeResponse(out, handleLine(ctx, runner, line)); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func handleLine(ctx context.Context, runner ToolRunner, data []byte) Response {
	req, err := decodeRequest(data)
	if err != nil {
		return Response{
			JSONRPC: Version,
			Error:   &RPCError{Code: CodeParseError, Message: "Parse error: " + err.Error()},
			ID:      json.RawMessage("null"),
		}
	}
	return Handle(ctx, runner, req)
}

func writeResponse(w io.Writer, resp Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	_, err = w.Write(append(data, '\n'))
	return err
}
