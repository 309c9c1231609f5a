// Package fleet runs seed executions concurrently: a bounded goroutine pool
// runs the Job funcs its caller submits and rate-limits how fast new jobs
// start. It does not talk to a seedsched.Scheduler itself; each Job
// delivers its own result.
//
// Grounded on internal/requester/worker_pool.go's ants.Pool wrapper and
// internal/requester/requester.go's rate.Limiter usage from the teacher
// repo. The teacher's internal/cluster package (HTTP master/worker
// coordination across machines) is deliberately not ported here: this
// package stays in-process. See DESIGN.md for why — multi-machine
// coordination is out of scope.
package fleet

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"golang.org/x/time/rate"
)

// Options configures a Pool.
type Options struct {
	Workers      int
	MaxBlocking  int
	RatePerSec   float64
	Burst        int
	Backpressure *BackpressureConfig // nil disables adaptive queue-pressure throttling
}

// DefaultOptions returns sensible defaults: one worker per logical
// execution slot, generous queueing, and rate limiting disabled (RatePerSec
// <= 0 means unlimited).
func DefaultOptions() Options {
	return Options{Workers: 8, MaxBlocking: 1000}
}

// Pool runs Job funcs concurrently, bounded by Workers, optionally
// rate-limited at the point a goroutine is about to start a job.
type Pool struct {
	pool    *ants.Pool
	limiter *rate.Limiter
	backp   *Backpressure
	wg      sync.WaitGroup

	submitted atomic.Int64
	completed atomic.Int64
	errors    atomic.Int64
	dropped   atomic.Int64
}

// Job is one unit of fleet work: execute a seed lease and report back.
type Job func(ctx context.Context) error

// New creates a Pool sized by opts.
func New(opts Options) (*Pool, error) {
	if opts.Workers <= 0 {
		opts.Workers = DefaultOptions().Workers
	}
	if opts.MaxBlocking <= 0 {
		opts.MaxBlocking = DefaultOptions().MaxBlocking
	}

	antsPool, err := ants.NewPool(opts.Workers, ants.WithMaxBlockingTasks(opts.MaxBlocking))
	if err != nil {
		return nil, err
	}

	p := &Pool{pool: antsPool}
	if opts.RatePerSec > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), burst)
	}
	if opts.Backpressure != nil {
		p.backp = NewBackpressure(*opts.Backpressure)
	}
	return p, nil
}

// Submit runs job on the pool. If rate limiting is configured, the job
// waits for a token before starting; ctx cancellation unblocks that wait.
// If adaptive backpressure is configured, Submit first observes the pool's
// current queue pressure and sleeps the computed delay before queueing.
// Returns an error immediately if the pool's queue is full.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	if p.backp != nil {
		p.backp.Observe(p.pool.Running(), p.pool.Cap())
		if delay := p.backp.Delay(); delay > 0 && p.backp.IsPressured() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	p.submitted.Add(1)
	p.wg.Add(1)

	err := p.pool.Submit(func() {
		defer p.wg.Done()

		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				p.errors.Add(1)
				return
			}
		}

		if err := job(ctx); err != nil {
			p.errors.Add(1)
			return
		}
		p.completed.Add(1)
	})
	if err != nil {
		// ants never ran the closure above, so its deferred p.wg.Done()
		// never fires; release the Add(1) here or Wait hangs forever.
		p.wg.Done()
	}
	return err
}

// Wait blocks until every submitted job has finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Release stops accepting new work and waits for in-flight jobs to drain.
func (p *Pool) Release() {
	p.Wait()
	p.pool.Release()
}

// Stats is a point-in-time snapshot of pool activity.
type Stats struct {
	Running        int
	Capacity       int
	Submitted      int64
	Completed      int64
	Errors         int64
	PressureEvents int64
}

// Stats returns the current pool statistics.
func (p *Pool) Stats() Stats {
	s := Stats{
		Running:   p.pool.Running(),
		Capacity:  p.pool.Cap(),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Errors:    p.errors.Load(),
	}
	if p.backp != nil {
		s.PressureEvents = p.backp.PressureEvents()
	}
	return s
}

// Tune dynamically adjusts pool capacity, mirroring ants.Pool.Tune.
func (p *Pool) Tune(size int) {
	p.pool.Tune(size)
}
