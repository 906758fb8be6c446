package worker

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/user/emrchat/internal/errors"
	"github.com/user/emrchat/internal/logging"
)

// DefaultTimeout bounds a single worker invocation
const DefaultTimeout = 30 * time.Second

// Option configures a process-backed worker
type Option func(*processOptions)

type processOptions struct {
	timeout time.Duration
	env     []string
	logger  *logging.Logger
}

// WithTimeout sets the per-call deadline. Zero keeps the default.
func WithTimeout(d time.Duration) Option {
	return func(o *processOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithEnv appends entries to the inherited environment of worker processes
func WithEnv(env ...string) Option {
	return func(o *processOptions) {
		o.env = append(o.env, env...)
	}
}

// WithLogger sets the logger
func WithLogger(logger *logging.Logger) Option {
	return func(o *processOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func buildOptions(opts []Option) processOptions {
	o := processOptions{timeout: DefaultTimeout, logger: logging.NewNopLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o processOptions) environ() []string {
	if len(o.env) == 0 {
		return nil
	}
	return append(os.Environ(), o.env...)
}

// ProcessWorker spawns one process per call. The request is written to the
// child's stdin; the child prints a result on stdout and exits 0, or prints
// an error object on stderr and exits 1.
type ProcessWorker struct {
	command string
	args    []string
	opts    processOptions
}

// NewProcessWorker creates a spawn-per-call worker
func NewProcessWorker(command string, args []string, opts ...Option) *ProcessWorker {
	return &ProcessWorker{
		command: command,
		args:    args,
		opts:    buildOptions(opts),
	}
}

// Invoke runs one worker process for req
func (w *ProcessWorker) Invoke(ctx context.Context, req Request) (json.RawMessage, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, errors.NewToolTransportError("failed to encode request", 0, "", err)
	}

	ctx, cancel := context.WithTimeout(ctx, w.opts.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, w.command, w.args...)
	cmd.Env = w.opts.environ()
	cmd.Stdin = bytes.NewReader(append(payload, '\n'))
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	start := time.Now()
	runErr := cmd.Run()
	w.opts.logger.Debug("worker process finished",
		logging.String("tool", req.Params.Name),
		logging.Duration("elapsed", time.Since(start)),
		logging.Bool("failed", runErr != nil))

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, errors.NewToolTransportError(
			fmt.Sprintf("worker did not answer within %s", w.opts.timeout), -1, stderr.String(), ctxErr)
	}
	return interpretExit(req, runErr, stdout.Bytes(), stderr.Bytes())
}

// interpretExit maps a finished worker process onto a result or a typed error
func interpretExit(req Request, runErr error, stdout, stderr []byte) (json.RawMessage, error) {
	status := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if !stderrors.As(runErr, &exitErr) {
			return nil, errors.NewToolTransportError("failed to start worker", -1, string(stderr), runErr)
		}
		status = exitErr.ExitCode()
	}

	switch status {
	case 0:
		resp, err := decodeResponse(stdout)
		if err != nil {
			return nil, errors.NewToolTransportError("worker wrote an unparsable response", 0, string(stderr), err)
		}
		return resultOf(req, resp)

	case 1:
		resp, err := decodeResponse(stderr)
		if err != nil || resp.Error == nil {
			return nil, errors.NewToolTransportError("worker exited with status 1", 1, string(stderr), err)
		}
		return nil, errors.NewToolProtocolError(resp.Error.Code, resp.Error.Message)
	}

	return nil, errors.NewToolTransportError(
		fmt.Sprintf("worker exited with status %d", status), status, string(stderr), runErr)
}

// Close is a no-op; no process outlives a call
func (w *ProcessWorker) Close() error { return nil }
