package power

import (
	"math"

	"github.com/fluxcore/fluxcore/internal/seedsched"
)

// ComputeWeightedPowerSchedule is the alternative policy the spec's Open
// Question allows: FuzzCount and coverage are incorporated into the weight
// instead of being ignored. Seeds with more discovered edges get more
// energy (mirrors the teacher's InputScheduler.UpdatePriority, which scales
// weight by log2(edges_covered+1)); seeds that have already been fuzzed
// many times get proportionally less, so the budget drifts toward
// under-explored seeds. The uniform ComputePowerSchedule remains the
// default — this is opt-in for callers who want the refinement.
func ComputeWeightedPowerSchedule(seeds []seedsched.SeedStats, cfg Config) (PowerScheduleResult, error) {
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
	for i, s := range seeds {
		edges := countCoveredEdges(s.CoverageBitmap)
		w := math.Log2(float64(edges)+1) + 1
		w /= float64(s.FuzzCount + 1)
		weights[i] = w
		totalWeight += w
	}
	result.TotalWeight = totalWeight

	meanWeight := totalWeight / float64(len(seeds))
	targetMean := float64(cfg.MinEnergy+cfg.MaxEnergy) / 2.0

	for i, s := range seeds {
		scaled := weights[i] * (targetMean / meanWeight)
		result.Energies[s.SeedID] = clampRound(scaled, cfg.MinEnergy, cfg.MaxEnergy)
	}

	return result, nil
}

func countCoveredEdges(bitmap []uint32) int {
	count := 0
	for _, v := range bitmap {
		if v != 0 {
			count++
		}
	}
	return count
}
