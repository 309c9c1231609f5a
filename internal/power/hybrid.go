package power

import (
	"math"
	"sync"

	"github.com/fluxcore/fluxcore/internal/seedsched"
)

// HybridMode is the HybridPowerScheduler's current phase.
type HybridMode string

const (
	ModeExploration HybridMode = "exploration"
	ModeFAST        HybridMode = "fast"
)

// HybridConfig holds the tunables from spec section 6.
type HybridConfig struct {
	MinEnergy     int
	MaxEnergy     int // M, the hard energy cap
	PlateauK      int // cycles of no new path before Exploration -> FAST
	FastWindowW   int // cycles per FAST breakthrough-counting window
	BreakthroughB int // new-path threshold that flips FAST -> Exploration
	Alpha         float64
	SCap          int // generation depth cap in the FAST formula
}

// DefaultHybridConfig returns the documented defaults, with Alpha calibrated
// to MinEnergy*8 as the spec suggests.
func DefaultHybridConfig(minEnergy, maxEnergy int) HybridConfig {
	return HybridConfig{
		MinEnergy:     minEnergy,
		MaxEnergy:     maxEnergy,
		PlateauK:      8,
		FastWindowW:   16,
		BreakthroughB: 5,
		Alpha:         float64(minEnergy * 8),
		SCap:          14,
	}
}

// HybridState is a read-only snapshot of the hybrid scheduler's internal
// bookkeeping, exposed for stats()/debug_dump() rendering.
type HybridState struct {
	Mode                HybridMode
	PlateauCounter      int
	BreakthroughCounter int
	CyclesInWindow      int
	PathFrequency       map[string]int64
	SeedGeneration      map[seedsched.SeedID]int
}

// HybridPowerScheduler wraps the uniform PowerScheduler with the
// Exploration/FAST state machine from spec section 4.3.
type HybridPowerScheduler struct {
	cfg HybridConfig
	mu  sync.Mutex

	mode HybridMode

	plateauCounter      int
	breakthroughCounter int
	cyclesInWindow      int

	pathFreq   map[string]int64
	pathOf     map[seedsched.SeedID]string
	generation map[seedsched.SeedID]int
}

// NewHybridPowerScheduler creates a scheduler starting in Exploration mode.
func NewHybridPowerScheduler(cfg HybridConfig) *HybridPowerScheduler {
	if cfg.PlateauK <= 0 {
		cfg.PlateauK = 8
	}
	if cfg.FastWindowW <= 0 {
		cfg.FastWindowW = 16
	}
	if cfg.BreakthroughB <= 0 {
		cfg.BreakthroughB = 5
	}
	if cfg.SCap <= 0 {
		cfg.SCap = 14
	}
	return &HybridPowerScheduler{
		cfg:        cfg,
		mode:       ModeExploration,
		pathFreq:   make(map[string]int64),
		pathOf:     make(map[seedsched.SeedID]string),
		generation: make(map[seedsched.SeedID]int),
	}
}

// Mode returns the current phase.
func (h *HybridPowerScheduler) Mode() HybridMode {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.mode
}

// OnNewPathDiscovered records a freshly reached execution path: it resets
// the plateau counter (progress is still happening) and, while in FAST,
// advances the breakthrough counter — a burst of these within the current
// window flips the scheduler back to Exploration.
func (h *HybridPowerScheduler) OnNewPathDiscovered(pathID string, parentSeedID *seedsched.SeedID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.pathFreq[pathID]++
	h.plateauCounter = 0

	if h.mode == ModeFAST {
		h.breakthroughCounter++
		if h.breakthroughCounter > h.cfg.BreakthroughB {
			h.transitionToExploration()
		}
	}
}

// RecordPathHit increments a known path's exercise frequency without
// touching plateau/breakthrough bookkeeping. The owner loop calls this for
// every execution that reaches an already-discovered path, so f(i) in the
// FAST formula reflects ongoing traffic, not just first discovery.
func (h *HybridPowerScheduler) RecordPathHit(pathID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pathFreq[pathID]++
}

// OnLoopCompleted drives the state machine's plateau/window counters.
func (h *HybridPowerScheduler) OnLoopCompleted(foundNewPath bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.mode {
	case ModeExploration:
		if foundNewPath {
			h.plateauCounter = 0
			return
		}
		h.plateauCounter++
		if h.plateauCounter >= h.cfg.PlateauK {
			h.transitionToFAST()
		}
	case ModeFAST:
		h.cyclesInWindow++
		if h.cyclesInWindow >= h.cfg.FastWindowW {
			h.cyclesInWindow = 0
			h.breakthroughCounter = 0
		}
	}
}

// AddNewSeed registers a derived seed's generation depth (0 for corpus
// seeds, parent+1 for derived ones) and the path it was discovered from.
func (h *HybridPowerScheduler) AddNewSeed(seed seedsched.Seed, pathID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	gen := 0
	if seed.ParentID != nil {
		gen = h.generation[*seed.ParentID] + 1
	}
	h.generation[seed.ID] = gen
	h.pathOf[seed.ID] = pathID
}

// AssignEnergy returns the current energy for a seed according to mode.
func (h *HybridPowerScheduler) AssignEnergy(seedID seedsched.SeedID) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.mode == ModeExploration {
		return int(math.Round(h.cfg.Alpha))
	}

	sI := h.generation[seedID]
	if sI > h.cfg.SCap {
		sI = h.cfg.SCap
	}

	fI := h.pathFreq[h.pathOf[seedID]]
	if fI < 1 {
		fI = 1
	}

	rho := h.meanPathFrequencyLocked()

	energy := h.cfg.Alpha / rho * math.Pow(2, float64(sI)) / float64(fI)
	if energy > float64(h.cfg.MaxEnergy) {
		energy = float64(h.cfg.MaxEnergy)
	}
	if energy < float64(h.cfg.MinEnergy) {
		energy = float64(h.cfg.MinEnergy)
	}
	return int(math.Round(energy))
}

func (h *HybridPowerScheduler) meanPathFrequencyLocked() float64 {
	if len(h.pathFreq) == 0 {
		return 1.0
	}
	var sum int64
	for _, f := range h.pathFreq {
		sum += f
	}
	rho := float64(sum) / float64(len(h.pathFreq))
	if rho < 1 {
		rho = 1
	}
	return rho
}

func (h *HybridPowerScheduler) transitionToFAST() {
	h.mode = ModeFAST
	h.plateauCounter = 0
	h.breakthroughCounter = 0
	h.cyclesInWindow = 0
}

func (h *HybridPowerScheduler) transitionToExploration() {
	h.mode = ModeExploration
	h.plateauCounter = 0
	h.breakthroughCounter = 0
	h.cyclesInWindow = 0
}

// State returns a snapshot for stats()/debug_dump() rendering.
func (h *HybridPowerScheduler) State() HybridState {
	h.mu.Lock()
	defer h.mu.Unlock()

	freq := make(map[string]int64, len(h.pathFreq))
	for k, v := range h.pathFreq {
		freq[k] = v
	}
	gen := make(map[seedsched.SeedID]int, len(h.generation))
	for k, v := range h.generation {
		gen[k] = v
	}

	return HybridState{
		Mode:                h.mode,
		PlateauCounter:      h.plateauCounter,
		BreakthroughCounter: h.breakthroughCounter,
		CyclesInWindow:      h.cyclesInWindow,
		PathFrequency:       freq,
		SeedGeneration:      gen,
	}
}
