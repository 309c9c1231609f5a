// Package seedsched is the long-lived seed scheduler: it holds seeds,
// leases the next one to a worker, and folds worker feedback back into its
// bookkeeping. Three interchangeable backends (cyclic FIFO, priority heap,
// and a UCB1 bandit tree) implement the same Scheduler interface, dispatched
// at construction time — the caller holds one handle regardless of backend.
//
// All operations here are synchronous and non-blocking; the scheduler is
// single-owner and is not internally synchronized. See internal/fleet for
// the concurrent worker collaborator that sits on the other side of a lease.
package seedsched

import "fmt"

// SeedID uniquely identifies a Seed. IDs are assumed dense enough to index
// arrays/slices directly where a backend finds that convenient.
type SeedID int64

// Seed is an immutable input unit. It is created by the corpus loader or
// synthesized from a worker's interesting mutation, and is never mutated
// after construction.
type Seed struct {
	ID       SeedID
	Payload  []byte
	Bucket   string // e.g. "valid", "string_stress", "near_valid"
	Family   string // target tag
	ParentID *SeedID
	Metadata map[string]string
}

// SeedStats is the scheduler's per-seed mutable bookkeeping.
type SeedStats struct {
	SeedID         SeedID
	AvgExecMs      *float64
	CoverageBitmap []uint32 // ordered; non-zero entries mark an edge hit
	FuzzCount      int64
}

// Status classifies the outcome of a lease.
type Status string

const (
	StatusOK      Status = "ok"
	StatusBug     Status = "bug"
	StatusCrash   Status = "crash"
	StatusTimeout Status = "timeout"
)

// BugSignature identifies a class of bug for UCB bucketing and dedup.
type BugSignature struct {
	Kind          string
	MessageDigest string
	File          string
	Line          int
}

// RunResult is the worker's lease summary, and also doubles as the Signals
// schema accepted by Update and normalized by internal/signalcodec.
type RunResult struct {
	NewCoverage bool
	NewBug      bool
	Crash       bool
	Timeout     bool
	Status      Status

	// CoverageKey takes precedence; then CoverageSignature; then a digest of
	// CoverageBitmap; then the literal "none". See deriveCoverageKey in
	// ucbtree.go.
	CoverageKey       string
	CoverageSignature string
	CoverageBitmap    []uint32

	BugSignature *BugSignature
	BugKey       string

	// InterestingScore is optionally supplied by the worker; heap backends
	// consume it directly, the UCB backend recomputes its own reward from
	// the booleans above instead.
	InterestingScore *float64
}

// SchedulerItem is the handle returned by Next and consumed by Update. path
// is opaque to callers and is resolved by the owning backend.
type SchedulerItem struct {
	ItemID   int64
	Seed     Seed
	Sequence int64
	path     any
}

// Kind selects a SeedScheduler backend.
type Kind string

const (
	KindQueue   Kind = "queue"
	KindHeap    Kind = "heap"
	KindUCBTree Kind = "ucb_tree"
)

// PriorityMode selects how the heap backend derives priority. Heap-only.
type PriorityMode string

const (
	PriorityAvgScore  PriorityMode = "avg_score"
	PriorityLastScore PriorityMode = "last_score"
)

// Config is the configuration surface recognized by New.
type Config struct {
	Kind         Kind
	PriorityMode PriorityMode // heap only

	UCBExplorationConstant float64 // ucb_tree only; default 1.0
	MaxSeedsPerLeaf        int     // ucb_tree only; default 8

	HeapDecay float64 // heap only; gamma applied on lease, default 0.9

	// RNGSeed seeds the scheduler's own RNG. Nil means time-derived.
	RNGSeed *int64

	// SweepInterval is carried for configuration only: New starts no
	// periodic sweep and nothing in this package reads it. Abandoned leases
	// are reclaimed only when a caller invokes Sweeper.SweepAbandoned.
	SweepInterval int64 // nanoseconds
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Kind:                   KindQueue,
		PriorityMode:           PriorityAvgScore,
		UCBExplorationConstant: 1.0,
		MaxSeedsPerLeaf:        8,
		HeapDecay:              0.9,
	}
}

func (c Config) validate() error {
	switch c.Kind {
	case KindQueue, KindHeap, KindUCBTree:
	default:
		return &ConfigurationError{Reason: fmt.Sprintf("unknown scheduler kind %q", c.Kind)}
	}
	if c.Kind == KindHeap {
		switch c.PriorityMode {
		case PriorityAvgScore, PriorityLastScore:
		default:
			return &ConfigurationError{Reason: fmt.Sprintf("unknown priority mode %q", c.PriorityMode)}
		}
	}
	if c.Kind == KindUCBTree && c.MaxSeedsPerLeaf <= 0 {
		return &ConfigurationError{Reason: "max_seeds_per_leaf must be positive"}
	}
	return nil
}

// Stats is the backend-agnostic shape returned by Stats(), with room for
// backend-specific fields (mean_priority, tree_nodes, ...).
type Stats struct {
	Kind        string
	Size        int
	TotalLeased int64
	TotalUpdated int64
	Extra       map[string]any
}

// DebugEntry is one row of a DebugDump view.
type DebugEntry struct {
	SeedID    SeedID
	Priority  float64
	FuzzCount int64
	Path      string
}

// DebugView is a structured, backend-agnostic dump of scheduler state,
// capped at the caller-requested limit.
type DebugView struct {
	Kind    string
	Entries []DebugEntry
}

// Scheduler is the common operation vocabulary across all three backends.
type Scheduler interface {
	// Add registers a new seed. signals may be nil; when present, its
	// CoverageKey/BugKey (or their fallbacks) seed bucket placement for
	// backends that need it (ucb_tree). Duplicate seed IDs are a
	// deterministic no-op: metadata is refreshed but the seed is not
	// duplicated.
	Add(seed Seed, signals *RunResult)

	// Next selects the next seed to lease. Returns (nil, false) iff empty.
	Next() (*SchedulerItem, bool)

	// Update applies worker feedback for a previously leased item. Stale
	// items (sequence mismatch, or seed no longer tracked) are discarded
	// and reported via StaleLeaseError; the scheduler remains valid.
	Update(item *SchedulerItem, interestingScore float64, signals RunResult) error

	Empty() bool
	Len() int
	Stats() Stats
	DebugDump(limit int) DebugView
}

// Sweeper is implemented by backends that track outstanding leases and can
// reclaim ones abandoned by a worker that never called Update. A lease
// reclaimed this way is treated as never having happened: it does not touch
// reward/priority bookkeeping, only the outstanding-lease tracking.
type Sweeper interface {
	SweepAbandoned(maxAgeNanos int64) int
}

// New constructs a Scheduler of the requested kind. Configuration errors are
// signalled eagerly and are fatal: the caller should not proceed with a nil
// Scheduler.
func New(cfg Config) (Scheduler, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	switch cfg.Kind {
	case KindHeap:
		return newHeapScheduler(cfg), nil
	case KindUCBTree:
		return newUCBTreeScheduler(cfg), nil
	default:
		return newFIFOScheduler(cfg), nil
	}
}
