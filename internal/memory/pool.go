// Package memory reduces per-execution allocation pressure for the fuzzing
// loop: a reusable bytes.Buffer pool for subprocess stdout/stderr capture,
// and a runtime memory monitor the dashboards can poll.
//
// Grounded on internal/memory/pool.go and internal/memory/monitor.go from
// the teacher repo. The teacher's ByteSlicePool and stream.go (chunked
// reading of HTTP response bodies) have no analog over a subprocess's
// bounded, already-buffered stdout/stderr and are not carried over; see
// DESIGN.md. The teacher's package-level global pool singletons are also
// dropped in favor of one Runner-owned BufferPool, consistent with this
// module never relying on global mutable state.
package memory

import (
	"bytes"
	"sync"
)

// BufferPool is a pool of reusable byte buffers, sized to avoid re-growing
// a fresh buffer on every subprocess execution.
type BufferPool struct {
	pool    sync.Pool
	maxSize int
	statsMu sync.Mutex
	stats   PoolStats
}

// PoolStats tracks buffer pool effectiveness.
type PoolStats struct {
	Gets     int64
	Puts     int64
	News     int64
	Discards int64
}

// NewBufferPool creates a pool whose buffers start at initialSize capacity;
// buffers larger than maxSize are discarded instead of recycled, so one
// abnormally large output doesn't pin that much memory for the life of the
// pool.
func NewBufferPool(initialSize, maxSize int) *BufferPool {
	bp := &BufferPool{maxSize: maxSize}
	bp.pool.New = func() interface{} {
		bp.statsMu.Lock()
		bp.stats.News++
		bp.statsMu.Unlock()
		return bytes.NewBuffer(make([]byte, 0, initialSize))
	}
	return bp
}

// Get retrieves a reset, ready-to-write buffer from the pool.
func (bp *BufferPool) Get() *bytes.Buffer {
	bp.statsMu.Lock()
	bp.stats.Gets++
	bp.statsMu.Unlock()

	buf := bp.pool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// Put returns buf to the pool for reuse, unless it has grown past maxSize.
func (bp *BufferPool) Put(buf *bytes.Buffer) {
	if buf == nil {
		return
	}

	bp.statsMu.Lock()
	defer bp.statsMu.Unlock()

	if buf.Cap() > bp.maxSize {
		bp.stats.Discards++
		return
	}
	bp.stats.Puts++
	buf.Reset()
	bp.pool.Put(buf)
}

// Stats returns a snapshot of pool effectiveness.
func (bp *BufferPool) Stats() PoolStats {
	bp.statsMu.Lock()
	defer bp.statsMu.Unlock()
	return bp.stats
}
