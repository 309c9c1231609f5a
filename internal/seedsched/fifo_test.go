package seedsched

import "testing"

// Scenario A — FIFO round-robin.
func TestFIFOScheduler_RoundRobin(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Kind = KindQueue
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s.Add(Seed{ID: 1}, nil)
	s.Add(Seed{ID: 2}, nil)
	s.Add(Seed{ID: 3}, nil)

	want := []SeedID{1, 2, 3, 1}
	for i, w := range want {
		item, ok := s.Next()
		if !ok {
			t.Fatalf("call %d: Next() returned empty, want seed %d", i, w)
		}
		if item.Seed.ID != w {
			t.Errorf("call %d: got seed %d, want %d", i, item.Seed.ID, w)
		}
	}
}

func TestFIFOScheduler_EmptyReturnsFalse(t *testing.T) {
	s, _ := New(DefaultConfig())
	if !s.Empty() {
		t.Fatal("fresh scheduler should be empty")
	}
	if _, ok := s.Next(); ok {
		t.Fatal("Next() on empty scheduler should return false")
	}
}

func TestFIFOScheduler_NoStarvation(t *testing.T) {
	s, _ := New(DefaultConfig())
	for i := SeedID(1); i <= 5; i++ {
		s.Add(Seed{ID: i}, nil)
	}

	seen := make(map[SeedID]bool)
	for i := 0; i < s.Len(); i++ {
		item, ok := s.Next()
		if !ok {
			t.Fatal("unexpected empty")
		}
		seen[item.Seed.ID] = true
	}
	if len(seen) != 5 {
		t.Errorf("expected every seed visited once within |scheduler| calls, saw %d", len(seen))
	}
}

func TestFIFOScheduler_StaleUpdateIsNoop(t *testing.T) {
	s, _ := New(DefaultConfig())
	s.Add(Seed{ID: 1}, nil)

	item, _ := s.Next()
	if err := s.Update(item, 0.5, RunResult{}); err != nil {
		t.Fatalf("first update should succeed: %v", err)
	}
	if err := s.Update(item, 0.9, RunResult{}); err == nil {
		t.Fatal("second update with the same stale item should fail")
	}
}

func TestFIFOScheduler_AddIdempotentSize(t *testing.T) {
	s, _ := New(DefaultConfig())
	s.Add(Seed{ID: 1}, nil)
	before := s.Stats().Size
	s.Add(Seed{ID: 2}, nil)
	after := s.Stats().Size
	if after != before+1 {
		t.Errorf("size should grow by 1 per new seed: before=%d after=%d", before, after)
	}

	s.Add(Seed{ID: 2}, nil) // duplicate id
	if s.Stats().Size != after {
		t.Errorf("duplicate add should not change size: got %d, want %d", s.Stats().Size, after)
	}
}
