package worker

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const (
	Version         = "2.0"
	MethodToolsCall = "tools/call"

	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Request is a single tool call sent to a worker as one line of JSON.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  CallParams      `json:"params"`
	ID      json.RawMessage `json:"id"`
}

// CallParams names the tool and carries its arguments
type CallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Response carries exactly one of Result or Error.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// RPCError is a JSON-RPC error object
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// NewRequest builds a tools/call request with a string id
func NewRequest(id, tool string, args map[string]any) Request {
	if args == nil {
		args = map[string]any{}
	}
	rawID, _ := json.Marshal(id)
	return Request{
		JSONRPC: Version,
		Method:  MethodToolsCall,
		Params:  CallParams{Name: tool, Arguments: args},
		ID:      rawID,
	}
}

// decodeRequest parses one request, keeping argument numbers as json.Number
func decodeRequest(data []byte) (Request, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var req Request
	if err := dec.Decode(&req); err != nil {
		return Request{}, err
	}
	return req, nil
}

// decodeResponse parses the last non-empty line of data as a Response.
// Workers may print other lines first; the protocol answer is always last.
func decodeResponse(data []byte) (Response, error) {
	lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
	last := bytes.TrimSpace(lines[len(lines)-1])
	if len(last) == 0 {
		return Response{}, fmt.Errorf("empty output")
	}

	var resp Response
	if err := json.Unmarshal(last, &resp); err != nil {
		return Response{}, err
	}
	if resp.JSONRPC != Version {
		return Response{}, fmt.Errorf("unexpected jsonrpc version %q", resp.JSONRPC)
	}
	if resp.Error == nil && resp.Result == nil {
		return Response{}, fmt.Errorf("response has neither result nor error")
	}
	return resp, nil
}

func sameID(a, b json.RawMessage) bool {
	return len(a) == 0 || len(b) == 0 || bytes.Equal(bytes.TrimSpace(a), bytes.TrimSpace(b))
}
