package seedsched

import (
	"fmt"
	"math"

	"github.com/fluxcore/fluxcore/internal/digest"
)

// ucbTreeScheduler is the bandit backend: a three-level tree, root →
// coverage bucket → bug bucket, where each bug-bucket node also holds the
// leaf seed-list (capped at MaxSeedsPerLeaf). Selection descends by UCB1;
// at the leaf, the seed with the fewest fuzz attempts is picked. Reward
// from Update is propagated along the stored path.
type ucbTreeScheduler struct {
	cfg  Config
	root *ucbNode

	byID map[SeedID]*ucbSeedRecord

	nextItemID int64
	nextSeq    int64
	nodeCount  int
	totalSeeds int

	totalLeased  int64
	totalUpdated int64
}

type ucbNode struct {
	key      string
	fullPath string
	parent   *ucbNode
	children map[string]*ucbNode
	childOrd []string

	n int64
	q float64

	// seeds is populated only on leaf (bug-bucket) nodes.
	seeds []SeedID
}

type ucbSeedRecord struct {
	seed     Seed
	stats    SeedStats
	leaf     *ucbNode
	leaseSeq int64
}

func newUCBTreeScheduler(cfg Config) *ucbTreeScheduler {
	if cfg.UCBExplorationConstant == 0 {
		cfg.UCBExplorationConstant = 1.0
	}
	if cfg.MaxSeedsPerLeaf <= 0 {
		cfg.MaxSeedsPerLeaf = 8
	}
	root := &ucbNode{fullPath: "root", children: make(map[string]*ucbNode)}
	return &ucbTreeScheduler{
		cfg:       cfg,
		root:      root,
		byID:      make(map[SeedID]*ucbSeedRecord),
		nodeCount: 1,
	}
}

func (s *ucbTreeScheduler) childNode(parent *ucbNode, key string) *ucbNode {
	if n, ok := parent.children[key]; ok {
		return n
	}
	n := &ucbNode{
		key:      key,
		fullPath: parent.fullPath + "/" + key,
		parent:   parent,
		children: make(map[string]*ucbNode),
	}
	parent.children[key] = n
	parent.childOrd = append(parent.childOrd, key)
	s.nodeCount++
	return n
}

// deriveCoverageKey and deriveBugKey implement the bucket-placement
// precedence from spec section 4.4.3.
func deriveCoverageKey(s *RunResult) string {
	if s == nil {
		return "none"
	}
	if s.CoverageKey != "" {
		return s.CoverageKey
	}
	if s.CoverageSignature != "" {
		return s.CoverageSignature
	}
	if len(s.CoverageBitmap) > 0 {
		return digest.DigestExact(s.CoverageBitmap)
	}
	return "none"
}

func deriveBugKey(s *RunResult) string {
	if s == nil {
		return "none"
	}
	if s.BugKey != "" {
		return s.BugKey
	}
	if s.BugSignature != nil {
		bs := s.BugSignature
		return fmt.Sprintf("%s:%s:%s:%d", bs.Kind, bs.MessageDigest, bs.File, bs.Line)
	}
	switch s.Status {
	case StatusBug, StatusCrash, StatusTimeout:
		return "status:" + string(s.Status)
	}
	return "none"
}

// leafFor finds (creating if necessary) the leaf with room for one more
// seed, splitting by discriminator suffix when the target leaf is full.
func (s *ucbTreeScheduler) leafFor(covKey, bugKey string) *ucbNode {
	covNode := s.childNode(s.root, covKey)

	suffix := 0
	for {
		key := bugKey
		if suffix > 0 {
			key = fmt.Sprintf("%s#%d", bugKey, suffix+1)
		}
		leaf := s.childNode(covNode, key)
		if len(leaf.seeds) < s.cfg.MaxSeedsPerLeaf {
			return leaf
		}
		suffix++
	}
}

func (s *ucbTreeScheduler) Add(seed Seed, signals *RunResult) {
	if _, exists := s.byID[seed.ID]; exists {
		s.byID[seed.ID].seed = seed
		return
	}

	covKey := deriveCoverageKey(signals)
	bugKey := deriveBugKey(signals)
	leaf := s.leafFor(covKey, bugKey)

	record := &ucbSeedRecord{
		seed:  seed,
		stats: SeedStats{SeedID: seed.ID},
		leaf:  leaf,
	}
	s.byID[seed.ID] = record
	leaf.seeds = append(leaf.seeds, seed.ID)
	s.totalSeeds++
}

// ucb1 scores a child given its parent's visit count. Unvisited children
// are scored +Inf so they are always explored first.
func ucb1(parentN int64, child *ucbNode, c float64) float64 {
	if child.n == 0 {
		return math.Inf(1)
	}
	return child.q + c*math.Sqrt(math.Log(float64(parentN))/float64(child.n))
}

func selectChild(node *ucbNode, c float64) *ucbNode {
	var best *ucbNode
	bestScore := math.Inf(-1)
	for _, key := range node.childOrd {
		child := node.children[key]
		score := ucb1(node.n, child, c)
		if score > bestScore {
			bestScore = score
			best = child
		}
	}
	return best
}

func (s *ucbTreeScheduler) Next() (*SchedulerItem, bool) {
	if s.totalSeeds == 0 {
		return nil, false
	}

	covNode := selectChild(s.root, s.cfg.UCBExplorationConstant)
	leaf := selectChild(covNode, s.cfg.UCBExplorationConstant)

	// Pick the seed with fewest fuzz attempts at this leaf; ties break FIFO
	// (earliest-inserted wins, i.e. first match in insertion order).
	var chosen SeedID
	var chosenRecord *ucbSeedRecord
	for _, id := range leaf.seeds {
		rec := s.byID[id]
		if chosenRecord == nil || rec.stats.FuzzCount < chosenRecord.stats.FuzzCount {
			chosen = id
			chosenRecord = rec
		}
	}

	s.nextItemID++
	s.nextSeq++
	chosenRecord.leaseSeq = s.nextSeq
	s.totalLeased++

	return &SchedulerItem{
		ItemID:   s.nextItemID,
		Seed:     chosenRecord.seed,
		Sequence: s.nextSeq,
		path:     chosen,
	}, true
}

func (s *ucbTreeScheduler) Update(item *SchedulerItem, interestingScore float64, signals RunResult) error {
	record, ok := s.byID[item.Seed.ID]
	if !ok || record.leaseSeq != item.Sequence {
		return &StaleLeaseError{ItemID: item.ItemID}
	}
	// Sequences start at 1, so clearing to 0 makes a repeat Update stale.
	record.leaseSeq = 0

	var reward float64
	if signals.NewCoverage {
		reward += 1
	}
	if signals.NewBug {
		reward += 2
	}
	if signals.Crash || signals.Timeout {
		reward += 3
	}

	for node := record.leaf; node != nil; node = node.parent {
		node.n++
		node.q += (reward - node.q) / float64(node.n)
	}

	record.stats.FuzzCount++
	if len(signals.CoverageBitmap) > 0 {
		record.stats.CoverageBitmap = signals.CoverageBitmap
	}
	s.totalUpdated++
	return nil
}

func (s *ucbTreeScheduler) Empty() bool { return s.totalSeeds == 0 }
func (s *ucbTreeScheduler) Len() int    { return s.totalSeeds }

func (s *ucbTreeScheduler) Stats() Stats {
	return Stats{
		Kind:         string(KindUCBTree),
		Size:         s.totalSeeds,
		TotalLeased:  s.totalLeased,
		TotalUpdated: s.totalUpdated,
		Extra: map[string]any{
			"tree_nodes": s.nodeCount,
			"root_n":     s.root.n,
			"root_q":     s.root.q,
		},
	}
}

func (s *ucbTreeScheduler) DebugDump(limit int) DebugView {
	view := DebugView{Kind: string(KindUCBTree)}
	count := 0
	var walk func(node *ucbNode)
	walk = func(node *ucbNode) {
		if limit > 0 && count >= limit {
			return
		}
		for _, id := range node.seeds {
			if limit > 0 && count >= limit {
				return
			}
			rec := s.byID[id]
			view.Entries = append(view.Entries, DebugEntry{
				SeedID:    id,
				Priority:  node.q,
				FuzzCount: rec.stats.FuzzCount,
				Path:      node.fullPath,
			})
			count++
		}
		for _, key := range node.childOrd {
			walk(node.children[key])
		}
	}
	walk(s.root)
	return view
}

// SweepAbandoned is a no-op for the UCB backend: an abandoned lease simply
// means FuzzCount and reward were never updated for that attempt, which is
// exactly "never happened" per spec section 5 — there is no separate
// outstanding-lease table to reclaim.
func (s *ucbTreeScheduler) SweepAbandoned(maxAgeNanos int64) int {
	return 0
}
