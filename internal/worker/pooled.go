package worker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/user/emrchat/internal/errors"
	"github.com/user/emrchat/internal/logging"
)

// PooledWorker keeps up to size long-lived worker processes, each serving
// newline-delimited requests one at a time. A process that misbehaves is
// killed and replaced on the next call.
type PooledWorker struct {
	command string
	args    []string
	opts    processOptions

	slots chan struct{}
	idle  chan *pooledProcess

	mu     sync.Mutex
	live   map[*pooledProcess]struct{}
	closed bool
}

type pooledProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	out    *os.File
	stdout *bufio.Reader
	stderr *lockedBuffer
	exited chan struct{}
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type readResult struct {
	line []byte
	err  error
}

// NewPooledWorker creates a pool of at most size persistent processes.
// Processes start lazily.
func NewPooledWorker(command string, args []string, size int, opts ...Option) *PooledWorker {
	if size < 1 {
		size = 1
	}
	return &PooledWorker{
		command: command,
		args:    args,
		opts:    buildOptions(opts),
		slots:   make(chan struct{}, size),
		idle:    make(chan *pooledProcess, size),
		live:    make(map[*pooledProcess]struct{}),
	}
}

// Invoke sends req to an idle process, starting one if needed
func (w *PooledWorker) Invoke(ctx context.Context, req Request) (json.RawMessage, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, errors.NewToolTransportError("failed to encode request", 0, "", err)
	}

	select {
	case w.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, errors.NewToolTransportError("no worker became available", -1, "", ctx.Err())
	}
	defer func() { <-w.slots }()

	proc, err := w.acquire()
	if err != nil {
		return nil, err
	}

	result, healthy, err := w.roundTrip(ctx, proc, payload, req)
	if healthy {
		w.release(proc)
	} else {
		w.discard(proc)
	}
	return result, err
}

func (w *PooledWorker) acquire() (*pooledProcess, error) {
	for {
		select {
		case proc := <-w.idle:
			select {
			case <-proc.exited:
				w.discard(proc)
				continue
			default:
				return proc, nil
			}
		default:
			return w.spawn()
		}
	}
}

func (w *PooledWorker) spawn() (*pooledProcess, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, errors.NewToolTransportError("worker pool is closed", -1, "", nil)
	}

	cmd := exec.Command(w.command, w.args...)
	cmd.Env = w.opts.environ()
	stderr := &lockedBuffer{}
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.NewToolTransportError("failed to open worker stdin", -1, "", err)
	}
	// A plain pipe keeps the read end open after Wait, so a response
	// written just before exit is still readable.
	out, outWriter, err := os.Pipe()
	if err != nil {
		_ = stdin.Close()
		return nil, errors.NewToolTransportError("failed to open worker stdout", -1, "", err)
	}
	cmd.Stdout = outWriter
	err = cmd.Start()
	_ = outWriter.Close()
	if err != nil {
		_ = stdin.Close()
		_ = out.Close()
		return nil, errors.NewToolTransportError("failed to start worker", -1, "", err)
	}

	proc := &pooledProcess{
		cmd:    cmd,
		stdin:  stdin,
		out:    out,
		stdout: bufio.NewReaderSize(out, 64*1024),
		stderr: stderr,
		exited: make(chan struct{}),
	}
	go func() {
		_ = cmd.Wait()
		close(proc.exited)
	}()

	w.live[proc] = struct{}{}
	w.opts.logger.Debug("started persistent worker", logging.Int("pid", cmd.Process.Pid))
	return proc, nil
}

// roundTrip writes one request line and reads one response line. healthy
// reports whether proc can serve further requests.
func (w *PooledWorker) roundTrip(ctx context.Context, proc *pooledProcess, payload []byte, req Request) (json.RawMessage, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, w.opts.timeout)
	defer cancel()

	if _, err := proc.stdin.Write(append(payload, '\n')); err != nil {
		return nil, false, errors.NewToolTransportError("failed to write request to worker", -1, proc.stderr.String(), err)
	}

	read := make(chan readResult, 1)
	go func() {
		line, err := proc.stdout.ReadBytes('\n')
		read <- readResult{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, false, errors.NewToolTransportError(
			fmt.Sprintf("worker did not answer within %s", w.opts.timeout), -1, proc.stderr.String(), ctx.Err())

	case r := <-read:
		if r.err != nil {
			status := -1
			select {
			case <-proc.exited:
				status = proc.cmd.ProcessState.ExitCode()
			case <-time.After(500 * time.Millisecond):
			}
			return nil, false, errors.NewToolTransportError(
				fmt.Sprintf("worker closed its output (status %d)", status), status, proc.stderr.String(), r.err)
		}

		resp, err := decodeResponse(r.line)
		if err != nil {
			return nil, false, errors.NewToolTransportError("worker wrote an unparsable response", 0, proc.stderr.String(), err)
		}
		result, err := resultOf(req, resp)
		if err != nil && resp.Error == nil {
			return nil, false, err
		}
		return result, true, err
	}
}

func (w *PooledWorker) release(proc *pooledProcess) {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		w.discard(proc)
		return
	}
	select {
	case w.idle <- proc:
	default:
		w.discard(proc)
	}
}

func (w *PooledWorker) discard(proc *pooledProcess) {
	w.mu.Lock()
	delete(w.live, proc)
	w.mu.Unlock()

	proc.stop()
}

func (p *pooledProcess) stop() {
	_ = p.stdin.Close()
	select {
	case <-p.exited:
	case <-time.After(200 * time.Millisecond):
		_ = p.cmd.Process.Kill()
		<-p.exited
	}
	_ = p.out.Close()
}

// Close stops every worker process. In-flight calls fail.
func (w *PooledWorker) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	procs := make([]*pooledProcess, 0, len(w.live))
	for proc := range w.live {
		procs = append(procs, proc)
	}
	w.mu.Unlock()

	for _, proc := range procs {
		_ = proc.cmd.Process.Kill()
		proc.stop()
	}

	for {
		select {
		case <-w.idle:
		default:
			return nil
		}
	}
}
