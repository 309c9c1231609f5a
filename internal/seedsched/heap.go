package seedsched

import (
	"container/heap"
	"sort"
	"time"
)

// heapScheduler is the priority heap backend. Each seed's priority derives
// from its interestingness history (avg_score or last_score). Next pops the
// max-priority seed and immediately re-inserts it with a decayed priority
// (p <- p*gamma) so it is revisited, but later than seeds that haven't been
// tried yet. Ties break on older add time (FIFO).
type heapScheduler struct {
	cfg   Config
	h     heapArray
	byID  map[SeedID]*heapEntry
	addCt int64

	nextItemID int64
	nextSeq    int64

	totalLeased  int64
	totalUpdated int64
}

type heapEntry struct {
	seed Seed

	priority   float64
	addSeq     int64
	sumScore   float64
	countScore int64
	fuzzCount  int64
	leaseSeq   int64
	index      int // maintained by container/heap
}

type heapArray []*heapEntry

func (a heapArray) Len() int { return len(a) }
func (a heapArray) Less(i, j int) bool {
	if a[i].priority != a[j].priority {
		return a[i].priority > a[j].priority // max-heap
	}
	return a[i].addSeq < a[j].addSeq // older add time wins ties
}
func (a heapArray) Swap(i, j int) {
	a[i], a[j] = a[j], a[i]
	a[i].index = i
	a[j].index = j
}
func (a *heapArray) Push(x any) {
	e := x.(*heapEntry)
	e.index = len(*a)
	*a = append(*a, e)
}
func (a *heapArray) Pop() any {
	old := *a
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*a = old[:n-1]
	return e
}

func newHeapScheduler(cfg Config) *heapScheduler {
	if cfg.HeapDecay <= 0 {
		cfg.HeapDecay = 0.9
	}
	return &heapScheduler{
		cfg:  cfg,
		h:    make(heapArray, 0),
		byID: make(map[SeedID]*heapEntry),
	}
}

func (s *heapScheduler) meanPriority() float64 {
	if len(s.h) == 0 {
		return 0.5
	}
	var sum float64
	for _, e := range s.h {
		sum += e.priority
	}
	return sum / float64(len(s.h))
}

func (s *heapScheduler) Add(seed Seed, signals *RunResult) {
	if entry, exists := s.byID[seed.ID]; exists {
		entry.seed = seed
		return
	}

	priority := s.meanPriority()
	if signals != nil && signals.InterestingScore != nil {
		priority = *signals.InterestingScore
	}

	s.addCt++
	entry := &heapEntry{
		seed:     seed,
		priority: priority,
		addSeq:   s.addCt,
	}
	s.byID[seed.ID] = entry
	heap.Push(&s.h, entry)
}

func (s *heapScheduler) Next() (*SchedulerItem, bool) {
	if len(s.h) == 0 {
		return nil, false
	}

	entry := heap.Pop(&s.h).(*heapEntry)

	s.nextItemID++
	s.nextSeq++
	itemID := s.nextItemID
	seq := s.nextSeq
	entry.leaseSeq = seq
	s.totalLeased++

	item := &SchedulerItem{
		ItemID:   itemID,
		Seed:     entry.seed,
		Sequence: seq,
		path:     entry.seed.ID,
	}

	// Re-insert immediately with decayed priority so it will be revisited,
	// but lower than fresher seeds.
	entry.priority *= s.cfg.HeapDecay
	heap.Push(&s.h, entry)

	return item, true
}

func (s *heapScheduler) Update(item *SchedulerItem, interestingScore float64, signals RunResult) error {
	entry, ok := s.byID[item.Seed.ID]
	if !ok || entry.leaseSeq != item.Sequence {
		return &StaleLeaseError{ItemID: item.ItemID}
	}
	// Sequences start at 1, so clearing to 0 makes a repeat Update stale.
	entry.leaseSeq = 0

	switch s.cfg.PriorityMode {
	case PriorityLastScore:
		entry.priority = interestingScore
	default: // PriorityAvgScore
		entry.sumScore += interestingScore
		entry.countScore++
		entry.priority = entry.sumScore / float64(entry.countScore)
	}
	entry.fuzzCount++
	if len(signals.CoverageBitmap) > 0 {
		// Stats tracked but coverage bitmap itself isn't needed by the heap
		// backend beyond updating fuzz count; the corpus owns the bitmap.
	}

	heap.Fix(&s.h, entry.index)
	s.totalUpdated++
	return nil
}

func (s *heapScheduler) Empty() bool { return len(s.h) == 0 }
func (s *heapScheduler) Len() int    { return len(s.h) }

func (s *heapScheduler) Stats() Stats {
	return Stats{
		Kind:         string(KindHeap),
		Size:         len(s.h),
		TotalLeased:  s.totalLeased,
		TotalUpdated: s.totalUpdated,
		Extra: map[string]any{
			"mean_priority": s.meanPriority(),
			"priority_mode": string(s.cfg.PriorityMode),
		},
	}
}

func (s *heapScheduler) DebugDump(limit int) DebugView {
	entries := make([]*heapEntry, len(s.h))
	copy(entries, s.h)
	sort.Slice(entries, func(i, j int) bool { return entries[i].priority > entries[j].priority })

	view := DebugView{Kind: string(KindHeap)}
	for i, e := range entries {
		if limit > 0 && i >= limit {
			break
		}
		view.Entries = append(view.Entries, DebugEntry{
			SeedID:    e.seed.ID,
			Priority:  e.priority,
			FuzzCount: e.fuzzCount,
			Path:      "heap",
		})
	}
	return view
}

// SweepAbandoned is a no-op for the heap backend: a seed whose lease is
// abandoned simply sits in the heap at its decayed priority and will be
// leased again naturally. There is no separate outstanding-lease table to
// reclaim.
func (s *heapScheduler) SweepAbandoned(maxAgeNanos int64) int {
	_ = time.Duration(maxAgeNanos)
	return 0
}
