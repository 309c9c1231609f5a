// Package power turns a batch of seed statistics into a per-seed mutation
// energy budget, plus a probability-weighted picker. It is the baseline
// PowerScheduler from spec section 4.2; internal/power also hosts the
// stateful HybridPowerScheduler (hybrid.go) that wraps it with a two-phase
// exploration/FAST state machine.
package power

import (
	"math"
	"math/rand"

	"github.com/fluxcore/fluxcore/internal/seedsched"
)

// Config bounds the energy a single seed may receive in one lease.
type Config struct {
	MinEnergy int
	MaxEnergy int
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{MinEnergy: 1, MaxEnergy: 128}
}

func (c Config) validate() error {
	if c.MinEnergy < 0 || c.MaxEnergy < 0 {
		return &ConfigurationError{Reason: "energy bounds must be non-negative"}
	}
	if c.MinEnergy > c.MaxEnergy {
		return &ConfigurationError{Reason: "min_energy must not exceed max_energy"}
	}
	return nil
}

// ConfigurationError is raised eagerly when bounds are invalid.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string { return "power: configuration error: " + e.Reason }

// PowerScheduleResult is the ephemeral output of one scheduling cycle.
type PowerScheduleResult struct {
	Energies        map[seedsched.SeedID]int
	EdgeFrequencies []int
	Config          Config
	TotalWeight     float64
}

// ComputeEdgeFrequencies returns a vector where index e holds the number of
// seeds whose coverage bitmap has a non-zero entry at e. Seeds with no
// bitmap are skipped. The vector length is the longest bitmap observed.
// Pure function: identical input always yields identical output.
func ComputeEdgeFrequencies(seeds []seedsched.SeedStats) []int {
	maxLen := 0
	for _, s := range seeds {
		if len(s.CoverageBitmap) > maxLen {
			maxLen = len(s.CoverageBitmap)
		}
	}
	freq := make([]int, maxLen)
	for _, s := range seeds {
		for e, v := range s.CoverageBitmap {
			if v != 0 {
				freq[e]++
			}
		}
	}
	return freq
}

// ComputePowerSchedule implements the uniform scheduling algorithm: every
// seed gets a base weight of 1.0, energies are scaled so the mean lands
// midway between MinEnergy and MaxEnergy, then clamped per-seed. FuzzCount
// and AvgExecMs are carried on SeedStats but intentionally unused here —
// see ComputeWeightedPowerSchedule for the alternative policy the spec leaves
// open.
func ComputePowerSchedule(seeds []seedsched.SeedStats, cfg Config) (PowerScheduleResult, error) {
	if err := cfg.validate(); err != nil {
		return PowerScheduleResult{}, err
	}

	result := PowerScheduleResult{
		Energies:        make(map[seedsched.SeedID]int),
		EdgeFrequencies: ComputeEdgeFrequencies(seeds),
		Config:          cfg,
	}

	if len(seeds) == 0 {
		return result, nil
	}

	weights := make([]float64, len(seeds))
	var totalWeight float64
	for i := range seeds {
		weights[i] = 1.0
		totalWeight += weights[i]
	}
	result.TotalWeight = totalWeight

	meanWeight := totalWeight / float64(len(seeds))
	targetMean := float64(cfg.MinEnergy+cfg.MaxEnergy) / 2.0

	for i, s := range seeds {
		scaled := weights[i] * (targetMean / meanWeight)
		energy := clampRound(scaled, cfg.MinEnergy, cfg.MaxEnergy)
		result.Energies[s.SeedID] = energy
	}

	return result, nil
}

func clampRound(v float64, lo, hi int) int {
	if v < float64(lo) {
		v = float64(lo)
	}
	if v > float64(hi) {
		v = float64(hi)
	}
	return int(math.Round(v))
}

// PickSeedID draws a seed id with probability proportional to its assigned
// energy. Returns (0, false) when the result has no seeds.
func PickSeedID(r PowerScheduleResult, rng *rand.Rand) (seedsched.SeedID, bool) {
	if len(r.Energies) == 0 {
		return 0, false
	}

	var total int
	for _, e := range r.Energies {
		total += e
	}
	if total <= 0 {
		// Every seed clamped to zero energy (MaxEnergy==0): fall back to a
		// uniform pick so the caller still makes progress.
		ids := make([]seedsched.SeedID, 0, len(r.Energies))
		for id := range r.Energies {
			ids = append(ids, id)
		}
		return ids[rng.Intn(len(ids))], true
	}

	target := rng.Intn(total)
	// Map iteration order is not stable in Go; sort ids for determinism so
	// identical RNG draws yield identical picks across runs.
	ids := sortedSeedIDs(r.Energies)
	cursor := 0
	for _, id := range ids {
		cursor += r.Energies[id]
		if target < cursor {
			return id, true
		}
	}
	return ids[len(ids)-1], true
}

func sortedSeedIDs(m map[seedsched.SeedID]int) []seedsched.SeedID {
	ids := make([]seedsched.SeedID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	// simple insertion sort; these batches are small (one fuzzing cycle)
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j] < ids[j-1]; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
	return ids
}
