package power

import (
	"math/rand"
	"testing"

	"github.com/fluxcore/fluxcore/internal/seedsched"
)

func TestComputePowerSchedule_Empty(t *testing.T) {
	result, err := ComputePowerSchedule(nil, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Energies) != 0 {
		t.Errorf("expected empty energies, got %v", result.Energies)
	}
	if result.TotalWeight != 0 {
		t.Errorf("expected zero total weight, got %v", result.TotalWeight)
	}
	if _, ok := PickSeedID(result, rand.New(rand.NewSource(1))); ok {
		t.Error("PickSeedID on empty result should return false")
	}
}

// Scenario B — Uniform power schedule.
func TestComputePowerSchedule_Uniform(t *testing.T) {
	seeds := []seedsched.SeedStats{
		{SeedID: 0},
		{SeedID: 1},
		{SeedID: 2},
	}
	cfg := Config{MinEnergy: 1, MaxEnergy: 128}

	result, err := ComputePowerSchedule(seeds, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Energies) != 3 {
		t.Fatalf("expected 3 energies, got %d", len(result.Energies))
	}

	var sum int
	first := result.Energies[0]
	for id, e := range result.Energies {
		if e < cfg.MinEnergy || e > cfg.MaxEnergy {
			t.Errorf("seed %d energy %d out of bounds [%d,%d]", id, e, cfg.MinEnergy, cfg.MaxEnergy)
		}
		if e != first {
			t.Errorf("uniform baseline should assign equal energy to all seeds, got %d vs %d", e, first)
		}
		sum += e
	}

	wantEach := clampRound((float64(cfg.MinEnergy+cfg.MaxEnergy) / 2.0), cfg.MinEnergy, cfg.MaxEnergy)
	if first != wantEach {
		t.Errorf("energy = %d, want %d", first, wantEach)
	}
	if sum != wantEach*3 {
		t.Errorf("sum = %d, want %d", sum, wantEach*3)
	}
}

func TestComputePowerSchedule_InvalidConfig(t *testing.T) {
	_, err := ComputePowerSchedule(nil, Config{MinEnergy: 10, MaxEnergy: 1})
	if err == nil {
		t.Fatal("expected configuration error when min_energy > max_energy")
	}
}

// Invariant 2 from spec section 8.
func TestComputePowerSchedule_Invariant(t *testing.T) {
	seeds := make([]seedsched.SeedStats, 10)
	for i := range seeds {
		seeds[i] = seedsched.SeedStats{SeedID: seedsched.SeedID(i)}
	}
	cfg := Config{MinEnergy: 2, MaxEnergy: 50}

	result, err := ComputePowerSchedule(seeds, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var sum int
	for _, e := range result.Energies {
		if e < cfg.MinEnergy || e > cfg.MaxEnergy {
			t.Fatalf("energy %d out of bounds", e)
		}
		sum += e
	}
	if sum < len(seeds)*cfg.MinEnergy {
		t.Errorf("sum %d below n*min_energy %d", sum, len(seeds)*cfg.MinEnergy)
	}
}

func TestComputeEdgeFrequencies(t *testing.T) {
	seeds := []seedsched.SeedStats{
		{SeedID: 0, CoverageBitmap: []uint32{1, 0, 3}},
		{SeedID: 1, CoverageBitmap: []uint32{0, 2}},
		{SeedID: 2}, // no bitmap, skipped
	}
	freq := ComputeEdgeFrequencies(seeds)
	if len(freq) != 3 {
		t.Fatalf("expected vector length 3, got %d", len(freq))
	}
	want := []int{1, 1, 1}
	for i, w := range want {
		if freq[i] != w {
			t.Errorf("freq[%d] = %d, want %d", i, freq[i], w)
		}
	}
}

func TestComputeEdgeFrequencies_Pure(t *testing.T) {
	seeds := []seedsched.SeedStats{{SeedID: 0, CoverageBitmap: []uint32{1, 1, 0}}}
	a := ComputeEdgeFrequencies(seeds)
	b := ComputeEdgeFrequencies(seeds)
	if len(a) != len(b) {
		t.Fatal("not pure")
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("not pure")
		}
	}
}

func TestPickSeedID_Deterministic(t *testing.T) {
	seeds := []seedsched.SeedStats{{SeedID: 0}, {SeedID: 1}, {SeedID: 2}}
	result, _ := ComputePowerSchedule(seeds, DefaultConfig())

	r1 := rand.New(rand.NewSource(42))
	r2 := rand.New(rand.NewSource(42))

	for i := 0; i < 20; i++ {
		a, _ := PickSeedID(result, r1)
		b, _ := PickSeedID(result, r2)
		if a != b {
			t.Fatalf("same seed should yield identical picks: %v != %v", a, b)
		}
	}
}

func TestComputeWeightedPowerSchedule_FavorsLessFuzzed(t *testing.T) {
	seeds := []seedsched.SeedStats{
		{SeedID: 0, CoverageBitmap: []uint32{1, 1, 1}, FuzzCount: 0},
		{SeedID: 1, CoverageBitmap: []uint32{1, 1, 1}, FuzzCount: 100},
	}
	result, err := ComputeWeightedPowerSchedule(seeds, Config{MinEnergy: 1, MaxEnergy: 128})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Energies[0] <= result.Energies[1] {
		t.Errorf("less-fuzzed seed should get more energy: seed0=%d seed1=%d", result.Energies[0], result.Energies[1])
	}
}
