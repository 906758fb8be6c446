// Package dispatcher validates tool calls and hands them to a worker.
package dispatcher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/user/emrchat/internal/errors"
	"github.com/user/emrchat/internal/logging"
	"github.com/user/emrchat/internal/tools"
	"github.com/user/emrchat/internal/worker"
)

const tracerName = "github.com/user/emrchat/internal/dispatcher"

// Dispatcher turns a named tool call into a worker request
type Dispatcher struct {
	worker  worker.Worker
	timeout time.Duration
	logger  *logging.Logger
	tracer  trace.Tracer
	newID   func() string
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithTimeout bounds each worker call. Zero means only the caller's deadline applies.
func WithTimeout(d time.Duration) Option {
	return func(disp *Dispatcher) { disp.timeout = d }
}

// WithLogger sets the logger
func WithLogger(logger *logging.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// New creates a dispatcher in front of w
func New(w worker.Worker, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		worker: w,
		logger: logging.NewNopLogger(),
		tracer: otel.Tracer(tracerName),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Execute runs the named tool with args and returns its JSON result.
//
// Unknown names fail with *errors.UnknownToolError and bad arguments with
// *errors.InvalidToolArgumentsError, both before any worker is involved.
// Worker failures come back as *errors.ToolExecutionError.
func (d *Dispatcher) Execute(ctx context.Context, name string, args any) (json.RawMessage, error) {
	kind, err := tools.ParseKind(name)
	if err != nil {
		return nil, err
	}

	parsed, err := tools.ParseArguments(kind, args)
	if err != nil {
		return nil, err
	}
	if err := tools.Validate(kind, parsed); err != nil {
		return nil, err
	}

	id := d.newID()
	ctx, span := d.tracer.Start(ctx, "tool "+name, trace.WithAttributes(
		attribute.String("tool.name", name),
		attribute.String("rpc.request_id", id),
	))
	defer span.End()

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := d.worker.Invoke(ctx, worker.NewRequest(id, name, parsed))
	elapsed := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.logger.Warn("tool call failed",
			logging.String("tool", name),
			logging.String("request_id", id),
			logging.Duration("elapsed", elapsed),
			logging.Error(err))
		return nil, errors.NewToolExecutionError(name, err)
	}

	d.logger.Debug("tool call completed",
		logging.String("tool", name),
		logging.String("request_id", id),
		logging.Duration("elapsed", elapsed),
		logging.Int("bytes", len(result)))
	return result, nil
}
