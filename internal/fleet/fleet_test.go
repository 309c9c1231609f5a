package fleet

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestPool_RunsAllJobs(t *testing.T) {
	p, err := New(Options{Workers: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer p.Release()

	var count atomic.Int64
	for i := 0; i < 20; i++ {
		if err := p.Submit(context.Background(), func(ctx context.Context) error {
			count.Add(1)
			return nil
		}); err != nil {
			t.Fatalf("submit failed: %v", err)
		}
	}
	p.Wait()

	if count.Load() != 20 {
		t.Errorf("expected 20 jobs to run, got %d", count.Load())
	}
	if p.Stats().Completed != 20 {
		t.Errorf("Stats().Completed = %d, want 20", p.Stats().Completed)
	}
}

func TestPool_ErrorsAreCounted(t *testing.T) {
	p, err := New(Options{Workers: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer p.Release()

	p.Submit(context.Background(), func(ctx context.Context) error { return context.Canceled })
	p.Wait()

	if p.Stats().Errors != 1 {
		t.Errorf("Stats().Errors = %d, want 1", p.Stats().Errors)
	}
}

func TestPool_SubmitErrorDoesNotLeakWaitGroup(t *testing.T) {
	p, err := New(Options{Workers: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p.pool.Release() // every subsequent ants.Pool.Submit call now fails synchronously

	if err := p.Submit(context.Background(), func(ctx context.Context) error { return nil }); err == nil {
		t.Fatal("expected an error submitting to a released pool")
	}

	done := make(chan struct{})
	go func() {
		p.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait() hung after a rejected Submit: wg.Add(1) was never balanced by a wg.Done()")
	}
}

func TestPool_RateLimiterThrottles(t *testing.T) {
	p, err := New(Options{Workers: 4, RatePerSec: 10, Burst: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer p.Release()

	start := time.Now()
	for i := 0; i < 3; i++ {
		p.Submit(context.Background(), func(ctx context.Context) error { return nil })
	}
	p.Wait()

	// 3 jobs at 10/s with burst 1: the first starts at once, the second and
	// third wait for tokens at ~100ms and ~200ms. 150ms is a loose lower
	// bound that an unthrottled pool would not reach.
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Errorf("rate-limited jobs took %v, want at least 150ms", elapsed)
	}
}
