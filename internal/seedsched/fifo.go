package seedsched

import "time"

// fifoScheduler is the cyclic queue backend: Next rotates the head to the
// tail after leasing, so every seed is revisited round-robin. Update counts
// the execution on SeedStats (FuzzCount, coverage bitmap) and never
// reorders; the interestingness score is not stored. No-starvation is
// structural, not a property that needs separate bookkeeping.
type fifoScheduler struct {
	order []SeedID
	byID  map[SeedID]*fifoEntry

	nextItemID int64
	nextSeq    int64

	totalLeased  int64
	totalUpdated int64

	outstanding map[int64]fifoLease // itemID -> lease record
}

type fifoEntry struct {
	seed  Seed
	stats SeedStats
}

type fifoLease struct {
	seedID   SeedID
	sequence int64
	issuedAt time.Time
}

func newFIFOScheduler(cfg Config) *fifoScheduler {
	return &fifoScheduler{
		order:       make([]SeedID, 0),
		byID:        make(map[SeedID]*fifoEntry),
		outstanding: make(map[int64]fifoLease),
	}
}

func (s *fifoScheduler) Add(seed Seed, signals *RunResult) {
	if entry, exists := s.byID[seed.ID]; exists {
		entry.seed = seed
		return
	}
	s.byID[seed.ID] = &fifoEntry{seed: seed, stats: SeedStats{SeedID: seed.ID}}
	s.order = append(s.order, seed.ID)
}

func (s *fifoScheduler) Next() (*SchedulerItem, bool) {
	if len(s.order) == 0 {
		return nil, false
	}

	id := s.order[0]
	s.order = append(s.order[1:], id)

	entry := s.byID[id]
	s.nextItemID++
	s.nextSeq++
	itemID := s.nextItemID
	seq := s.nextSeq

	s.outstanding[itemID] = fifoLease{seedID: id, sequence: seq, issuedAt: time.Now()}
	s.totalLeased++

	return &SchedulerItem{
		ItemID:   itemID,
		Seed:     entry.seed,
		Sequence: seq,
		path:     id,
	}, true
}

func (s *fifoScheduler) Update(item *SchedulerItem, interestingScore float64, signals RunResult) error {
	lease, ok := s.outstanding[item.ItemID]
	if !ok || lease.sequence != item.Sequence {
		return &StaleLeaseError{ItemID: item.ItemID}
	}
	delete(s.outstanding, item.ItemID)

	entry, ok := s.byID[lease.seedID]
	if !ok {
		return &StaleLeaseError{ItemID: item.ItemID}
	}

	entry.stats.FuzzCount++
	if len(signals.CoverageBitmap) > 0 {
		entry.stats.CoverageBitmap = signals.CoverageBitmap
	}
	s.totalUpdated++
	return nil
}

func (s *fifoScheduler) Empty() bool { return len(s.order) == 0 }
func (s *fifoScheduler) Len() int    { return len(s.order) }

func (s *fifoScheduler) Stats() Stats {
	return Stats{
		Kind:         string(KindQueue),
		Size:         len(s.order),
		TotalLeased:  s.totalLeased,
		TotalUpdated: s.totalUpdated,
		Extra: map[string]any{
			"outstanding": len(s.outstanding),
		},
	}
}

func (s *fifoScheduler) DebugDump(limit int) DebugView {
	view := DebugView{Kind: string(KindQueue)}
	for i, id := range s.order {
		if limit > 0 && i >= limit {
			break
		}
		entry := s.byID[id]
		view.Entries = append(view.Entries, DebugEntry{
			SeedID:    id,
			FuzzCount: entry.stats.FuzzCount,
			Path:      "queue",
		})
	}
	return view
}

// SweepAbandoned reclaims leases older than maxAgeNanos that were never
// updated. The FIFO order is unaffected (the seed is already back in the
// rotation); this only clears stale outstanding-lease bookkeeping.
func (s *fifoScheduler) SweepAbandoned(maxAgeNanos int64) int {
	cutoff := time.Now().Add(-time.Duration(maxAgeNanos))
	removed := 0
	for id, lease := range s.outstanding {
		if lease.issuedAt.Before(cutoff) {
			delete(s.outstanding, id)
			removed++
		}
	}
	return removed
}
