// Package runner executes the target program against a seed payload and
// reports what happened: exit status, timing, output, and whether the
// process crashed or hung.
//
// Grounded on internal/requester/client.go's Client/Request/Response shape
// from the teacher repo, with the HTTP round trip swapped for a subprocess
// invocation — same options-struct-plus-Do() convention, different wire.
package runner

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"

	"github.com/fluxcore/fluxcore/internal/memory"
)

// Options configures a Runner.
type Options struct {
	Command      []string
	WorkDir      string
	Env          []string
	Timeout      time.Duration
	MaxOutputLen int
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		Timeout:      5 * time.Second,
		MaxOutputLen: 1 << 16,
	}
}

// Runner invokes the target command once per Run call, feeding the seed
// payload on stdin.
type Runner struct {
	opts Options
	bufs *memory.BufferPool
}

// New creates a Runner. The command must name an executable and its
// arguments; it is not passed through a shell.
func New(opts Options) (*Runner, error) {
	if len(opts.Command) == 0 {
		return nil, errors.New("runner: command must not be empty")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}
	maxOutputLen := opts.MaxOutputLen
	if maxOutputLen <= 0 {
		maxOutputLen = DefaultOptions().MaxOutputLen
	}
	return &Runner{
		opts: opts,
		bufs: memory.NewBufferPool(4096, maxOutputLen*4),
	}, nil
}

// Result is the outcome of one execution.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Duration time.Duration
	TimedOut bool
	Crashed  bool // non-zero/signal exit not caused by our own timeout kill
	Err      error
}

// Run executes the target once against payload, fed on stdin.
func (r *Runner) Run(ctx context.Context, payload []byte) *Result {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.opts.Command[0], r.opts.Command[1:]...)
	cmd.Dir = r.opts.WorkDir
	cmd.Env = r.opts.Env
	cmd.Stdin = bytes.NewReader(payload)

	stdout, stderr := r.bufs.Get(), r.bufs.Get()
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	duration := time.Since(start)

	result := &Result{
		Stdout:   truncate(stdout.Bytes(), r.opts.MaxOutputLen),
		Stderr:   truncate(stderr.Bytes(), r.opts.MaxOutputLen),
		Duration: duration,
	}
	r.bufs.Put(stdout)
	r.bufs.Put(stderr)

	if ctx.Err() == context.DeadlineExceeded {
		result.TimedOut = true
		return result
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			result.Crashed = exitErr.ExitCode() != 0
		} else {
			result.Err = err
		}
		return result
	}

	return result
}

// BufferPoolStats returns effectiveness stats for the Runner's internal
// stdout/stderr buffer pool.
func (r *Runner) BufferPoolStats() memory.PoolStats {
	return r.bufs.Stats()
}

// truncate copies data (capped at max bytes) into a fresh slice. A copy is
// required, not a reslice: the source buffer is returned to a pool right
// after this runs and its backing array will be overwritten by a later
// execution.
func truncate(data []byte, max int) []byte {
	if max > 0 && len(data) > max {
		data = data[:max]
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out
}
