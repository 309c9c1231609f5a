package execcache

import (
	"testing"
	"time"
)

func TestCache_HitAndMiss(t *testing.T) {
	c := New(Options{Capacity: 1024, TTL: time.Second})
	payload := []byte("mutated-input")

	if _, ok := c.Get(payload); ok {
		t.Error("expected a miss before Put")
	}

	c.Put(payload, []byte("serialized-result"))
	got, ok := c.Get(payload)
	if !ok {
		t.Fatal("expected a hit after Put")
	}
	if string(got) != "serialized-result" {
		t.Errorf("Get() = %q, want %q", got, "serialized-result")
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("stats = %+v, want 1 hit and 1 miss", stats)
	}
}

func TestCache_TTLExpires(t *testing.T) {
	c := New(Options{Capacity: 1024, TTL: 20 * time.Millisecond})
	payload := []byte("input")

	c.Put(payload, []byte("result"))
	if _, ok := c.Get(payload); !ok {
		t.Fatal("expected a hit before TTL elapses")
	}

	time.Sleep(40 * time.Millisecond)
	if _, ok := c.Get(payload); ok {
		t.Error("expected a miss after TTL elapses")
	}
}

func TestCache_EvictsLeastRecentlyUsedOverCapacity(t *testing.T) {
	c := New(Options{Capacity: 10, TTL: time.Minute})

	c.Put([]byte("a"), []byte("0123456789")) // fills capacity exactly
	c.Put([]byte("b"), []byte("0123456789")) // evicts "a"

	if _, ok := c.Get([]byte("a")); ok {
		t.Error("expected \"a\" to be evicted once capacity was exceeded")
	}
	if _, ok := c.Get([]byte("b")); !ok {
		t.Error("expected \"b\" to still be cached")
	}
	if c.Stats().Evictions != 1 {
		t.Errorf("Evictions = %d, want 1", c.Stats().Evictions)
	}
}

func TestKeyOf_IsStableAndContentAddressed(t *testing.T) {
	a := KeyOf([]byte("same"))
	b := KeyOf([]byte("same"))
	c := KeyOf([]byte("different"))

	if a != b {
		t.Error("KeyOf should be deterministic for identical payloads")
	}
	if a == c {
		t.Error("KeyOf should differ for different payloads")
	}
}
