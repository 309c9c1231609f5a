package ownerloop

import (
	"context"
	"sync"
	"testing"

	"github.com/fluxcore/fluxcore/internal/corpus"
	"github.com/fluxcore/fluxcore/internal/execcache"
	"github.com/fluxcore/fluxcore/internal/fleet"
	"github.com/fluxcore/fluxcore/internal/mutator"
	"github.com/fluxcore/fluxcore/internal/power"
	"github.com/fluxcore/fluxcore/internal/runner"
	"github.com/fluxcore/fluxcore/internal/seedsched"
)

// fakeScheduler hands out a fixed seed a bounded number of times, then
// reports empty. It records every Update/Add call for assertions.
type fakeScheduler struct {
	mu       sync.Mutex
	seed     seedsched.Seed
	leases   int
	maxLease int
	updates  []seedsched.RunResult
	added    []seedsched.Seed
}

func (f *fakeScheduler) Add(seed seedsched.Seed, signals *seedsched.RunResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, seed)
}

func (f *fakeScheduler) Next() (*seedsched.SchedulerItem, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.leases >= f.maxLease {
		return nil, false
	}
	f.leases++
	return &seedsched.SchedulerItem{ItemID: int64(f.leases), Seed: f.seed, Sequence: int64(f.leases)}, true
}

func (f *fakeScheduler) Update(item *seedsched.SchedulerItem, score float64, signals seedsched.RunResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, signals)
	return nil
}

func (f *fakeScheduler) Empty() bool { return false }
func (f *fakeScheduler) Len() int    { return 1 }
func (f *fakeScheduler) Stats() seedsched.Stats {
	return seedsched.Stats{}
}
func (f *fakeScheduler) DebugDump(limit int) seedsched.DebugView { return seedsched.DebugView{} }

// markFirstSignaler flags the first execution as new coverage and every
// later one as not, so the loop's corpus/scheduler Add path gets exercised
// exactly once.
type markFirstSignaler struct {
	mu   sync.Mutex
	seen int
}

func (s *markFirstSignaler) Signals(res *runner.Result, mutated []byte) seedsched.RunResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen++
	return seedsched.RunResult{NewCoverage: s.seen == 1, CoverageKey: "cov:test"}
}

func newTestRunner(t *testing.T) *runner.Runner {
	t.Helper()
	r, err := runner.New(runner.Options{Command: []string{"cat"}})
	if err != nil {
		t.Fatalf("runner.New failed: %v", err)
	}
	return r
}

func TestLoop_RunsUntilSchedulerEmpty(t *testing.T) {
	sched := &fakeScheduler{
		seed:     seedsched.Seed{ID: 1, Payload: []byte("seed")},
		maxLease: 2,
	}
	c, err := corpus.New(t.TempDir())
	if err != nil {
		t.Fatalf("corpus.New failed: %v", err)
	}
	reg := mutator.NewRegistry()
	reg.Register(mutator.BitFlip{FlipBits: 1})
	engine := mutator.NewEngine(reg, mutator.EngineConfig{Strategy: mutator.RandomStrategy{}, MinSteps: 1, MaxSteps: 1})

	seed := int64(42)
	cfg := Config{MutationsPerSeed: 3, RNGSeed: &seed}
	loop := New(cfg, sched, c, engine, newTestRunner(t), &markFirstSignaler{}, nil)

	loop.Run(context.Background())

	stats := loop.Stats()
	if stats.Executions != 6 {
		t.Errorf("Executions = %d, want 6 (2 leases * 3 mutations)", stats.Executions)
	}
	if stats.InterestingInputs != 1 {
		t.Errorf("InterestingInputs = %d, want 1", stats.InterestingInputs)
	}
	if len(sched.added) != 1 {
		t.Errorf("expected exactly one seed added back to the scheduler, got %d", len(sched.added))
	}
}

func TestLoop_MaxExecutionsStopsEarly(t *testing.T) {
	sched := &fakeScheduler{
		seed:     seedsched.Seed{ID: 1, Payload: []byte("seed")},
		maxLease: 1000,
	}
	c, err := corpus.New(t.TempDir())
	if err != nil {
		t.Fatalf("corpus.New failed: %v", err)
	}
	reg := mutator.NewRegistry()
	reg.Register(mutator.BitFlip{FlipBits: 1})
	engine := mutator.NewEngine(reg, mutator.DefaultEngineConfig())

	cfg := Config{MutationsPerSeed: 5, MaxExecutions: 7}
	loop := New(cfg, sched, c, engine, newTestRunner(t), &markFirstSignaler{}, nil)

	loop.Run(context.Background())

	if loop.Stats().Executions < 7 {
		t.Errorf("Executions = %d, want at least 7 before MaxExecutions stops the loop", loop.Stats().Executions)
	}
}

func TestLoop_CachedExecutionSkipsSecondSpawn(t *testing.T) {
	sched := &fakeScheduler{seed: seedsched.Seed{ID: 1, Payload: []byte("seed")}}
	c, err := corpus.New(t.TempDir())
	if err != nil {
		t.Fatalf("corpus.New failed: %v", err)
	}
	reg := mutator.NewRegistry()
	reg.Register(mutator.BitFlip{FlipBits: 1})
	engine := mutator.NewEngine(reg, mutator.DefaultEngineConfig())

	loop := New(Config{}, sched, c, engine, newTestRunner(t), &markFirstSignaler{}, nil)
	cache := execcache.New(execcache.DefaultOptions())
	loop.WithCache(cache)

	first := loop.runCached(context.Background(), []byte("same-payload"))
	second := loop.runCached(context.Background(), []byte("same-payload"))

	if string(first.Stdout) != string(second.Stdout) {
		t.Errorf("cached result mismatch: %q vs %q", first.Stdout, second.Stdout)
	}
	stats := cache.Stats()
	if stats.Misses != 1 || stats.Hits != 1 {
		t.Errorf("cache stats = %+v, want exactly 1 miss and 1 hit", stats)
	}
}

func TestLoop_RunsConcurrentlyThroughFleet(t *testing.T) {
	sched := &fakeScheduler{
		seed:     seedsched.Seed{ID: 1, Payload: []byte("seed")},
		maxLease: 3,
	}
	c, err := corpus.New(t.TempDir())
	if err != nil {
		t.Fatalf("corpus.New failed: %v", err)
	}
	reg := mutator.NewRegistry()
	reg.Register(mutator.BitFlip{FlipBits: 1})
	engine := mutator.NewEngine(reg, mutator.DefaultEngineConfig())

	pool, err := fleet.New(fleet.Options{Workers: 4, MaxBlocking: 100})
	if err != nil {
		t.Fatalf("fleet.New failed: %v", err)
	}
	defer pool.Release()

	cfg := Config{MutationsPerSeed: 4}
	loop := New(cfg, sched, c, engine, newTestRunner(t), &markFirstSignaler{}, nil).WithFleet(pool)

	loop.Run(context.Background())

	if got := loop.Stats().Executions; got != 12 {
		t.Errorf("Executions = %d, want 12 (3 leases * 4 mutations)", got)
	}
	if len(sched.added) != 1 {
		t.Errorf("expected exactly one seed added back to the scheduler, got %d", len(sched.added))
	}
}

func TestLoop_UniformPowerScheduleReplacesFixedMutationCount(t *testing.T) {
	sched := &fakeScheduler{
		seed:     seedsched.Seed{ID: 1, Payload: []byte("seed")},
		maxLease: 1,
	}
	c, err := corpus.New(t.TempDir())
	if err != nil {
		t.Fatalf("corpus.New failed: %v", err)
	}
	reg := mutator.NewRegistry()
	reg.Register(mutator.BitFlip{FlipBits: 1})
	engine := mutator.NewEngine(reg, mutator.DefaultEngineConfig())

	cfg := Config{MutationsPerSeed: 3}
	loop := New(cfg, sched, c, engine, newTestRunner(t), &markFirstSignaler{}, nil).
		WithPower("uniform", power.Config{MinEnergy: 5, MaxEnergy: 5}, power.HybridConfig{})

	loop.Run(context.Background())

	if got := loop.Stats().Executions; got != 5 {
		t.Errorf("Executions = %d, want 5 (uniform schedule clamped to [5,5], ignoring MutationsPerSeed=3)", got)
	}
}

func TestLoop_HybridSchedulerObservesLoop(t *testing.T) {
	sched := &fakeScheduler{
		seed:     seedsched.Seed{ID: 1, Payload: []byte("seed")},
		maxLease: 2,
	}
	c, err := corpus.New(t.TempDir())
	if err != nil {
		t.Fatalf("corpus.New failed: %v", err)
	}
	reg := mutator.NewRegistry()
	reg.Register(mutator.BitFlip{FlipBits: 1})
	engine := mutator.NewEngine(reg, mutator.DefaultEngineConfig())

	hybridCfg := power.HybridConfig{
		MinEnergy: 1, MaxEnergy: 128,
		PlateauK: 8, FastWindowW: 16, BreakthroughB: 5,
		Alpha: 3, SCap: 14,
	}
	cfg := Config{MutationsPerSeed: 999}
	loop := New(cfg, sched, c, engine, newTestRunner(t), &markFirstSignaler{}, nil).
		WithPower("hybrid", power.Config{}, hybridCfg)

	loop.Run(context.Background())

	// Exploration mode always hands out Alpha energy per lease, regardless
	// of MutationsPerSeed: 2 leases * 3 = 6 executions.
	if got := loop.Stats().Executions; got != 6 {
		t.Errorf("Executions = %d, want 6 (2 leases * Alpha=3 energy)", got)
	}

	state := loop.HybridState()
	if state == nil {
		t.Fatal("HybridState() = nil, want a snapshot once WithPower(\"hybrid\", ...) is attached")
	}
	if state.Mode != power.ModeExploration {
		t.Errorf("Mode = %q, want exploration (plateau counter of 5 is below PlateauK=8)", state.Mode)
	}
	// The first of 6 executions reports new coverage (plateau reset); the
	// other 5 report a repeat hit on the same path (plateau increments).
	if state.PlateauCounter != 5 {
		t.Errorf("PlateauCounter = %d, want 5", state.PlateauCounter)
	}
	if state.PathFrequency["cov:test"] == 0 {
		t.Error("expected cov:test to accumulate path frequency from OnNewPathDiscovered/RecordPathHit")
	}
}

func TestLoop_EnergyForGatesOnPickSeedIDDraw(t *testing.T) {
	sched := &fakeScheduler{seed: seedsched.Seed{ID: 1, Payload: []byte("seed")}}
	c, err := corpus.New(t.TempDir())
	if err != nil {
		t.Fatalf("corpus.New failed: %v", err)
	}
	reg := mutator.NewRegistry()
	engine := mutator.NewEngine(reg, mutator.DefaultEngineConfig())

	seed := int64(42)
	cfg := Config{MutationsPerSeed: 1, RNGSeed: &seed}
	loop := New(cfg, sched, c, engine, newTestRunner(t), &markFirstSignaler{}, nil).
		WithPower("uniform", power.Config{MinEnergy: 2, MaxEnergy: 10}, power.HybridConfig{})

	// Two equally-weighted seeds: ComputePowerSchedule assigns both the same
	// full energy (6, midway between MinEnergy/MaxEnergy). PickSeedID then
	// draws one of the two with equal probability each call, so across many
	// lease calls item 1 should see both its full energy (when the draw
	// favors it) and the MinEnergy floor (when it doesn't).
	loop.seedStats[1] = &seedsched.SeedStats{SeedID: 1}
	loop.seedStats[2] = &seedsched.SeedStats{SeedID: 2}

	item := &seedsched.SchedulerItem{Seed: seedsched.Seed{ID: 1}}

	sawFull, sawFloor := false, false
	for i := 0; i < 50; i++ {
		switch e := loop.energyFor(item); e {
		case 6:
			sawFull = true
		case 2:
			sawFloor = true
		default:
			t.Fatalf("energyFor = %d, want 6 (full schedule) or 2 (MinEnergy floor)", e)
		}
	}
	if !sawFull {
		t.Error("expected at least one draw to favor the leased seed and return its full energy")
	}
	if !sawFloor {
		t.Error("expected at least one draw to favor the other seed and return the MinEnergy floor")
	}
}

func TestLoop_NoPowerModeKeepsFixedMutationCount(t *testing.T) {
	sched := &fakeScheduler{
		seed:     seedsched.Seed{ID: 1, Payload: []byte("seed")},
		maxLease: 2,
	}
	c, err := corpus.New(t.TempDir())
	if err != nil {
		t.Fatalf("corpus.New failed: %v", err)
	}
	reg := mutator.NewRegistry()
	reg.Register(mutator.BitFlip{FlipBits: 1})
	engine := mutator.NewEngine(reg, mutator.DefaultEngineConfig())

	cfg := Config{MutationsPerSeed: 4}
	loop := New(cfg, sched, c, engine, newTestRunner(t), &markFirstSignaler{}, nil)

	loop.Run(context.Background())

	if got := loop.Stats().Executions; got != 8 {
		t.Errorf("Executions = %d, want 8 (2 leases * 4 mutations, no power strategy attached)", got)
	}
	if loop.HybridState() != nil {
		t.Error("HybridState() should be nil when WithPower was never called")
	}
}

func TestLoop_ContextCancelStopsLoop(t *testing.T) {
	sched := &fakeScheduler{
		seed:     seedsched.Seed{ID: 1, Payload: []byte("seed")},
		maxLease: 1000,
	}
	c, err := corpus.New(t.TempDir())
	if err != nil {
		t.Fatalf("corpus.New failed: %v", err)
	}
	reg := mutator.NewRegistry()
	reg.Register(mutator.BitFlip{FlipBits: 1})
	engine := mutator.NewEngine(reg, mutator.DefaultEngineConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := Config{MutationsPerSeed: 5}
	loop := New(cfg, sched, c, engine, newTestRunner(t), &markFirstSignaler{}, nil)
	loop.Run(ctx)

	if loop.Stats().Executions != 0 {
		t.Errorf("Executions = %d, want 0 when context is already cancelled", loop.Stats().Executions)
	}
}
