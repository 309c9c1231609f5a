// Package execcache memoizes runner.Result by exact payload hash, so a
// mutation that happens to reproduce a byte-identical input the loop has
// already executed doesn't pay for a second subprocess spawn.
//
// Grounded on internal/cache/memory.go's MemoryCache (LRU, size-bounded,
// TTL-expiring) from the teacher repo. The teacher's ResponseCache and
// BaselineCache wrappers around it were HTTP-specific (URL+method cache
// keys, status/content-length baseline diffing) and are not carried over;
// only the generic LRU core survives, re-keyed on a payload's content hash.
package execcache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// Stats tracks cache effectiveness.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int64
	ItemCount int
}

// Options configures a Cache.
type Options struct {
	Capacity int64         // max total result size in bytes
	TTL      time.Duration // entries older than this are treated as misses
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{Capacity: 64 * 1024 * 1024, TTL: 10 * time.Minute}
}

type entry struct {
	key       string
	result    []byte
	size      int64
	createdAt time.Time
	expiresAt time.Time
}

// Cache is an in-memory LRU of runner.Result payloads, keyed by the SHA256
// of the mutated input that produced them.
type Cache struct {
	mu          sync.Mutex
	capacity    int64
	currentSize int64
	ttl         time.Duration
	items       map[string]*list.Element
	order       *list.List
	stats       Stats
}

// New creates a Cache with the given options.
func New(opts Options) *Cache {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultOptions().Capacity
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultOptions().TTL
	}
	return &Cache{
		capacity: opts.Capacity,
		ttl:      opts.TTL,
		items:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

// KeyOf derives the cache key for a payload.
func KeyOf(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Get retrieves a previously cached serialized result for a payload,
// promoting it to most-recently-used on a hit.
func (c *Cache) Get(payload []byte) ([]byte, bool) {
	key := KeyOf(payload)

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}

	e := elem.Value.(*entry)
	if time.Now().After(e.expiresAt) {
		c.removeElement(elem)
		c.stats.Misses++
		return nil, false
	}

	c.order.MoveToFront(elem)
	c.stats.Hits++
	return e.result, true
}

// Put stores the serialized result for payload, evicting the
// least-recently-used entries as needed to stay within capacity.
func (c *Cache) Put(payload, result []byte) {
	key := KeyOf(payload)
	size := int64(len(result))

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
	for c.currentSize+size > c.capacity && c.order.Len() > 0 {
		c.evictOldest()
	}

	e := &entry{
		key:       key,
		result:    result,
		size:      size,
		createdAt: time.Now(),
		expiresAt: time.Now().Add(c.ttl),
	}
	elem := c.order.PushFront(e)
	c.items[key] = elem
	c.currentSize += size
	c.stats.Size = c.currentSize
	c.stats.ItemCount = len(c.items)
}

// Stats returns a snapshot of cache effectiveness.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Size = c.currentSize
	s.ItemCount = len(c.items)
	return s
}

func (c *Cache) removeElement(elem *list.Element) {
	e := elem.Value.(*entry)
	delete(c.items, e.key)
	c.order.Remove(elem)
	c.currentSize -= e.size
}

func (c *Cache) evictOldest() {
	elem := c.order.Back()
	if elem != nil {
		c.removeElement(elem)
		c.stats.Evictions++
	}
}
