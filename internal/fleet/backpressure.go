// Backpressure gives a Pool a second throttle beyond the rate.Limiter in
// fleet.go: instead of a fixed rate, it watches how full the pool's queue
// is and slows submissions down when the target can't keep up, then speeds
// back up once the queue drains.
//
// Grounded on internal/parallel/backpressure.go's BackpressureController
// from the teacher repo. The teacher's Strategy options (Drop,
// DropOldest) assumed a caller-owned queue it could evict from directly;
// ants.Pool owns its own queue and exposes no eviction hook, so this
// adaptation keeps only the Adaptive strategy (slow down, never drop) and
// drops the others. The teacher's standalone RateLimiter/Throttle types
// duplicated golang.org/x/time/rate, which fleet.go already uses, and are
// not carried over.
package fleet

import (
	"sync"
	"sync/atomic"
	"time"
)

// BackpressureConfig configures a Backpressure throttle.
type BackpressureConfig struct {
	HighWatermark float64 // queue fullness ratio above which we start slowing down
	LowWatermark  float64 // queue fullness ratio below which we resume full speed
	MinDelay      time.Duration
	MaxDelay      time.Duration
}

// DefaultBackpressureConfig returns sensible defaults.
func DefaultBackpressureConfig() BackpressureConfig {
	return BackpressureConfig{
		HighWatermark: 0.8,
		LowWatermark:  0.5,
		MinDelay:      time.Millisecond,
		MaxDelay:      100 * time.Millisecond,
	}
}

// Backpressure tracks queue pressure and hands out a delay for Pool.Submit
// to sleep before queueing the next job.
type Backpressure struct {
	cfg         BackpressureConfig
	currentNs   int64
	pressured   int32
	mu          sync.Mutex
	pressureEvt int64
}

// NewBackpressure creates a Backpressure throttle from cfg.
func NewBackpressure(cfg BackpressureConfig) *Backpressure {
	if cfg.MinDelay <= 0 || cfg.MaxDelay <= 0 || cfg.MaxDelay < cfg.MinDelay {
		cfg = DefaultBackpressureConfig()
	}
	return &Backpressure{cfg: cfg, currentNs: cfg.MinDelay.Nanoseconds()}
}

// Observe reports the pool's current running count and capacity, updating
// the internal delay estimate accordingly.
func (b *Backpressure) Observe(running, capacity int) {
	if capacity <= 0 {
		return
	}
	pressure := float64(running) / float64(capacity)

	switch {
	case pressure > b.cfg.HighWatermark:
		if atomic.CompareAndSwapInt32(&b.pressured, 0, 1) {
			atomic.AddInt64(&b.pressureEvt, 1)
		}
		b.adjust(true)
	case pressure < b.cfg.LowWatermark:
		atomic.StoreInt32(&b.pressured, 0)
		b.adjust(false)
	}
}

func (b *Backpressure) adjust(slowDown bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	current := atomic.LoadInt64(&b.currentNs)
	minNs, maxNs := b.cfg.MinDelay.Nanoseconds(), b.cfg.MaxDelay.Nanoseconds()

	if slowDown {
		next := current * 2
		if next > maxNs {
			next = maxNs
		}
		atomic.StoreInt64(&b.currentNs, next)
		return
	}
	next := current / 2
	if next < minNs {
		next = minNs
	}
	atomic.StoreInt64(&b.currentNs, next)
}

// Delay returns how long the caller should wait before submitting the next
// job, given the pressure last observed.
func (b *Backpressure) Delay() time.Duration {
	return time.Duration(atomic.LoadInt64(&b.currentNs))
}

// IsPressured reports whether the pool was over its high watermark as of
// the last Observe call.
func (b *Backpressure) IsPressured() bool {
	return atomic.LoadInt32(&b.pressured) == 1
}

// PressureEvents returns how many times the pool has crossed into high
// pressure.
func (b *Backpressure) PressureEvents() int64 {
	return atomic.LoadInt64(&b.pressureEvt)
}
