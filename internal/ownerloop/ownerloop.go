// Package ownerloop is the single-owner driver: the one goroutine that
// calls into seedsched, power, mutator, and runner without any locking of
// its own. Work fans out to internal/fleet for concurrent execution, but
// every read-modify-write against the scheduler happens here, sequentially.
//
// Grounded on internal/coverage/feedback.go's FeedbackLoop.run from the
// teacher repo: lease a seed, mutate it, execute it, record what came
// back, repeat until a stop condition fires.
package ownerloop

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/fluxcore/fluxcore/internal/corpus"
	"github.com/fluxcore/fluxcore/internal/execcache"
	"github.com/fluxcore/fluxcore/internal/fleet"
	"github.com/fluxcore/fluxcore/internal/mutator"
	"github.com/fluxcore/fluxcore/internal/power"
	"github.com/fluxcore/fluxcore/internal/runner"
	"github.com/fluxcore/fluxcore/internal/scoring"
	"github.com/fluxcore/fluxcore/internal/seedsched"
)

// Signaler reduces a runner.Result plus the corpus's own bookkeeping into
// the RunResult the scheduler wants. cmd/fluxcore's signaler is one, built
// on signalcodec.Normalize for wire-format targets; others can be supplied
// in-process for targets that expose coverage through a Go API directly.
type Signaler interface {
	Signals(res *runner.Result, mutated []byte) seedsched.RunResult
}

// Config configures a Loop.
type Config struct {
	MutationsPerSeed int
	MaxExecutions    int64
	Timeout          time.Duration
	RNGSeed          *int64
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{MutationsPerSeed: 10, MaxExecutions: 1_000_000, Timeout: time.Hour}
}

// Stats is a point-in-time snapshot of loop progress.
type Stats struct {
	Executions        int64
	InterestingInputs int64
	Crashes           int64
	Timeouts          int64
}

// Loop drives the fuzzing cycle: lease, mutate, run, score, update.
type Loop struct {
	cfg       Config
	scheduler seedsched.Scheduler
	corpus    *corpus.Corpus
	engine    *mutator.Engine
	run       *runner.Runner
	signaler  Signaler
	rng       *rand.Rand
	log       *slog.Logger
	cache     *execcache.Cache
	pool      *fleet.Pool

	powerMode string // "", "uniform", "weighted", or "hybrid"; "" keeps the fixed MutationsPerSeed count
	powerCfg  power.Config
	hybrid    *power.HybridPowerScheduler
	seedStats map[seedsched.SeedID]*seedsched.SeedStats

	stats Stats
}

// New builds a Loop from its collaborators. rng, if nil, is seeded from
// cfg.RNGSeed (or time, if that's also nil) so the whole run is
// reproducible from one number.
func New(cfg Config, scheduler seedsched.Scheduler, c *corpus.Corpus, engine *mutator.Engine, r *runner.Runner, signaler Signaler, logger *slog.Logger) *Loop {
	if cfg.MutationsPerSeed <= 0 {
		cfg.MutationsPerSeed = DefaultConfig().MutationsPerSeed
	}
	if logger == nil {
		logger = slog.Default()
	}

	var seed int64
	if cfg.RNGSeed != nil {
		seed = *cfg.RNGSeed
	} else {
		seed = time.Now().UnixNano()
	}

	return &Loop{
		cfg:       cfg,
		scheduler: scheduler,
		corpus:    c,
		engine:    engine,
		run:       r,
		signaler:  signaler,
		rng:       rand.New(rand.NewSource(seed)),
		log:       logger,
	}
}

// WithCache attaches an execcache.Cache so that a mutation byte-identical
// to one already executed this run replays the cached result instead of
// spawning the target again. Every execution whose Result.Err is nil is
// cached, crashes and timeouts included; a spawn failure is always retried.
func (l *Loop) WithCache(c *execcache.Cache) *Loop {
	l.cache = c
	return l
}

// WithFleet attaches a fleet.Pool so executions for a leased seed's
// mutations run concurrently across Pool.Workers goroutines instead of one
// at a time. Mutation (which touches l.rng) and every scheduler/corpus
// read-modify-write still happen on Run's own goroutine; only the
// runner.Run/Signaler.Signals pair is handed off.
func (l *Loop) WithFleet(p *fleet.Pool) *Loop {
	l.pool = p
	return l
}

// WithPower attaches a power-scheduling strategy that replaces the fixed
// MutationsPerSeed mutation count with a per-lease energy budget. mode is
// "uniform" or "weighted" (internal/power's stateless PowerScheduleResult,
// recomputed from this Loop's own running per-seed bookkeeping) or "hybrid"
// (internal/power's stateful exploration/FAST scheduler, which also
// receives every new-coverage/loop-completion notification from
// recordOutcome). Any other mode leaves the fixed count in place.
func (l *Loop) WithPower(mode string, cfg power.Config, hybridCfg power.HybridConfig) *Loop {
	switch mode {
	case "uniform", "weighted", "hybrid":
		l.powerMode = mode
	default:
		return l
	}
	l.powerCfg = cfg
	l.seedStats = make(map[seedsched.SeedID]*seedsched.SeedStats)
	if mode == "hybrid" {
		l.hybrid = power.NewHybridPowerScheduler(hybridCfg)
	}
	return l
}

// HybridState returns a snapshot of the attached HybridPowerScheduler's
// state, or nil if WithPower wasn't called with mode "hybrid".
func (l *Loop) HybridState() *power.HybridState {
	if l.hybrid == nil {
		return nil
	}
	s := l.hybrid.State()
	return &s
}

// cachedResult is the subset of runner.Result that round-trips through
// execcache: Err isn't serializable, so a failed spawn is never cached in
// the first place and this type carries none of it.
type cachedResult struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Duration time.Duration
	TimedOut bool
	Crashed  bool
}

func toCachedResult(res *runner.Result) cachedResult {
	return cachedResult{
		ExitCode: res.ExitCode,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		Duration: res.Duration,
		TimedOut: res.TimedOut,
		Crashed:  res.Crashed,
	}
}

func (c cachedResult) toResult() *runner.Result {
	return &runner.Result{
		ExitCode: c.ExitCode,
		Stdout:   c.Stdout,
		Stderr:   c.Stderr,
		Duration: c.Duration,
		TimedOut: c.TimedOut,
		Crashed:  c.Crashed,
	}
}

// Run drives the loop until ctx is cancelled, MaxExecutions is reached, or
// Timeout elapses since the call to Run. If a fleet.Pool is attached via
// WithFleet, executions for each leased seed's mutations run concurrently;
// otherwise they run one at a time on this goroutine.
func (l *Loop) Run(ctx context.Context) {
	if l.pool != nil {
		l.runConcurrent(ctx)
		return
	}
	l.runSequential(ctx)
}

func (l *Loop) runSequential(ctx context.Context) {
	start := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if l.cfg.MaxExecutions > 0 && atomic.LoadInt64(&l.stats.Executions) >= l.cfg.MaxExecutions {
			return
		}
		if l.cfg.Timeout > 0 && time.Since(start) > l.cfg.Timeout {
			return
		}

		item, ok := l.scheduler.Next()
		if !ok {
			return
		}

		energy := l.energyFor(item)
		for i := 0; i < energy; i++ {
			mutated := l.engine.Mutate(l.rng, item.Seed.Payload)
			l.recordOutcome(l.computeOutcome(ctx, item, mutated))
		}
	}
}

// runConcurrent mirrors runSequential's lease/stop bookkeeping, but hands
// each mutation's execution to l.pool and lets a single drain goroutine
// apply recordOutcome as results arrive, keeping every scheduler/corpus
// mutation on one goroutine regardless of how many workers ran the target.
func (l *Loop) runConcurrent(ctx context.Context) {
	start := time.Now()

	results := make(chan execOutcome, l.cfg.MutationsPerSeed*2)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for o := range results {
			l.recordOutcome(o)
		}
	}()

	for {
		if ctx.Err() != nil {
			break
		}
		if l.cfg.MaxExecutions > 0 && atomic.LoadInt64(&l.stats.Executions) >= l.cfg.MaxExecutions {
			break
		}
		if l.cfg.Timeout > 0 && time.Since(start) > l.cfg.Timeout {
			break
		}

		item, ok := l.scheduler.Next()
		if !ok {
			break
		}

		energy := l.energyFor(item)
		for i := 0; i < energy; i++ {
			mutated := l.engine.Mutate(l.rng, item.Seed.Payload)
			leaseItem := item
			err := l.pool.Submit(ctx, func(ctx context.Context) error {
				o := l.computeOutcome(ctx, leaseItem, mutated)
				select {
				case results <- o:
				case <-ctx.Done():
				}
				return nil
			})
			if err != nil {
				l.log.Warn("fleet submit failed", "error", err)
			}
		}
	}

	l.pool.Wait()
	close(results)
	<-drained
}

// execOutcome is one completed execution, still awaiting the owner
// goroutine's scheduler/corpus bookkeeping.
type execOutcome struct {
	item    *seedsched.SchedulerItem
	mutated []byte
	res     *runner.Result
	signals seedsched.RunResult
}

// computeOutcome runs the target and reduces its result to a RunResult. It
// touches no scheduler or corpus state, so it's safe to call from any
// fleet worker goroutine.
func (l *Loop) computeOutcome(ctx context.Context, item *seedsched.SchedulerItem, mutated []byte) execOutcome {
	res := l.runCached(ctx, mutated)
	signals := l.signaler.Signals(res, mutated)
	if res.TimedOut {
		signals.Timeout = true
	}
	if res.Crashed {
		signals.Crash = true
	}
	return execOutcome{item: item, mutated: mutated, res: res, signals: signals}
}

// recordOutcome applies one outcome's bookkeeping: stats, crash corpus,
// scheduler update, seed promotion on new coverage, and power-scheduling
// feedback. Must only be called from the loop's single owner goroutine.
func (l *Loop) recordOutcome(o execOutcome) {
	atomic.AddInt64(&l.stats.Executions, 1)

	if o.signals.Timeout {
		atomic.AddInt64(&l.stats.Timeouts, 1)
	}
	if o.signals.Crash {
		atomic.AddInt64(&l.stats.Crashes, 1)
		l.corpus.AddCrash(o.mutated, o.res.Stderr, o.res.ExitCode)
	}

	l.trackSeedStats(o)
	l.notifyHybrid(o)

	score := scoring.Score(o.signals)
	if err := l.scheduler.Update(o.item, score, o.signals); err != nil {
		l.log.Warn("stale scheduler update", "error", err)
	}

	if o.signals.NewCoverage {
		atomic.AddInt64(&l.stats.InterestingInputs, 1)
		seed, added := l.corpus.AddSeed(o.mutated, o.item.Seed.Bucket, o.item.Seed.Family)
		if added {
			l.scheduler.Add(seed, &o.signals)
			if l.hybrid != nil {
				l.hybrid.AddNewSeed(seed, o.signals.CoverageKey)
			}
		}
	}
}

// trackSeedStats maintains this Loop's own seedsched.SeedStats bookkeeping,
// the batch view ComputePowerSchedule/ComputeWeightedPowerSchedule need and
// that the Scheduler interface itself has no way to hand back. Hybrid mode
// doesn't use it: AssignEnergy queries per-seed state directly.
func (l *Loop) trackSeedStats(o execOutcome) {
	if l.powerMode == "" || l.hybrid != nil {
		return
	}

	st := l.ensureSeedStats(o.item.Seed.ID)
	st.FuzzCount++

	ms := float64(o.res.Duration.Microseconds()) / 1000.0
	if st.AvgExecMs == nil {
		st.AvgExecMs = &ms
	} else {
		avg := (*st.AvgExecMs*float64(st.FuzzCount-1) + ms) / float64(st.FuzzCount)
		st.AvgExecMs = &avg
	}
	if len(o.signals.CoverageBitmap) > len(st.CoverageBitmap) {
		st.CoverageBitmap = o.signals.CoverageBitmap
	}
}

func (l *Loop) ensureSeedStats(id seedsched.SeedID) *seedsched.SeedStats {
	st, ok := l.seedStats[id]
	if !ok {
		st = &seedsched.SeedStats{SeedID: id}
		l.seedStats[id] = st
	}
	return st
}

// notifyHybrid feeds one execution's outcome into the attached
// HybridPowerScheduler, if any: every execution is one completed cycle for
// the plateau/FAST-window state machine, and every outcome that lands on a
// known coverage path (new or repeat) updates path frequency.
func (l *Loop) notifyHybrid(o execOutcome) {
	if l.hybrid == nil {
		return
	}

	if o.signals.NewCoverage {
		parent := o.item.Seed.ID
		l.hybrid.OnNewPathDiscovered(o.signals.CoverageKey, &parent)
	} else if o.signals.CoverageKey != "" {
		l.hybrid.RecordPathHit(o.signals.CoverageKey)
	}
	l.hybrid.OnLoopCompleted(o.signals.NewCoverage)
}

// energyFor picks how many mutations to run against one lease. With no
// power strategy attached, it's the fixed MutationsPerSeed count; otherwise
// it defers to the attached PowerScheduler/HybridPowerScheduler and only
// falls back to the fixed count when that strategy yields nothing for this
// seed (a hybrid energy of zero, a zero uniform/weighted energy, or a
// scheduling error). Uniform/weighted mode also runs the
// batch's result through PickSeedID so the energy a lease actually gets
// reflects this cycle's weighted draw, not just its static map entry.
func (l *Loop) energyFor(item *seedsched.SchedulerItem) int {
	if l.powerMode == "" {
		return l.cfg.MutationsPerSeed
	}

	if l.hybrid != nil {
		if e := l.hybrid.AssignEnergy(item.Seed.ID); e > 0 {
			return e
		}
		return l.cfg.MutationsPerSeed
	}

	l.ensureSeedStats(item.Seed.ID)
	stats := l.seedStatsSnapshot()

	var (
		result power.PowerScheduleResult
		err    error
	)
	if l.powerMode == "weighted" {
		result, err = power.ComputeWeightedPowerSchedule(stats, l.powerCfg)
	} else {
		result, err = power.ComputePowerSchedule(stats, l.powerCfg)
	}
	if err != nil {
		l.log.Warn("power schedule failed, falling back to fixed mutation count", "error", err)
		return l.cfg.MutationsPerSeed
	}

	// PickSeedID draws a seed with probability proportional to its energy;
	// when this cycle's weighted draw favors a different seed than the one
	// the scheduler leased, this lease only gets the configured floor so a
	// single hot seed can't starve the rest of the batch of execution time.
	if picked, ok := power.PickSeedID(result, l.rng); ok && picked != item.Seed.ID {
		if l.powerCfg.MinEnergy > 0 {
			return l.powerCfg.MinEnergy
		}
		return 1
	}

	if e, ok := result.Energies[item.Seed.ID]; ok && e > 0 {
		return e
	}
	return l.cfg.MutationsPerSeed
}

func (l *Loop) seedStatsSnapshot() []seedsched.SeedStats {
	out := make([]seedsched.SeedStats, 0, len(l.seedStats))
	for _, st := range l.seedStats {
		out = append(out, *st)
	}
	return out
}

// runCached checks the execution cache (if one is attached) before
// spawning the target, and populates it afterward on a clean run.
func (l *Loop) runCached(ctx context.Context, mutated []byte) *runner.Result {
	if l.cache == nil {
		return l.run.Run(ctx, mutated)
	}

	if cached, ok := l.cache.Get(mutated); ok {
		var cr cachedResult
		if err := json.Unmarshal(cached, &cr); err == nil {
			return cr.toResult()
		}
		l.log.Warn("execcache: corrupt entry, re-executing", "key", execcache.KeyOf(mutated))
	}

	res := l.run.Run(ctx, mutated)
	if res.Err == nil {
		if encoded, err := json.Marshal(toCachedResult(res)); err == nil {
			l.cache.Put(mutated, encoded)
		}
	}
	return res
}

// Stats returns a snapshot of loop progress.
func (l *Loop) Stats() Stats {
	return Stats{
		Executions:        atomic.LoadInt64(&l.stats.Executions),
		InterestingInputs: atomic.LoadInt64(&l.stats.InterestingInputs),
		Crashes:           atomic.LoadInt64(&l.stats.Crashes),
		Timeouts:          atomic.LoadInt64(&l.stats.Timeouts),
	}
}
