// Package mutator provides mutation strategies for seed payloads. It
// implements a trimmed set of AFL-style byte mutations plus the
// registry/selector/engine scaffolding used to chain them, all driven by a
// caller-supplied *rand.Rand so a run stays reproducible end to end.
//
// Grounded on internal/mutator/mutator.go's Registry/Selector/Engine shape
// from the teacher repo, with crypto/rand's secureRandomInt replaced by the
// owner loop's own math/rand source and the HTTP-payload-specific
// InputType/TypeDetector machinery dropped (a subprocess fuzzer's input is
// an opaque byte stream, not a typed web parameter).
package mutator

import (
	"math/rand"
	"sync"
)

// Mutator transforms an input into a new candidate input using rng for any
// randomness it needs.
type Mutator interface {
	Name() string
	Mutate(rng *rand.Rand, input []byte) []byte
}

// Registry stores and manages available mutators, preserving insertion
// order so iteration (and therefore weighted selection) is deterministic.
type Registry struct {
	mu       sync.RWMutex
	mutators map[string]Mutator
	order    []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{mutators: make(map[string]Mutator)}
}

// Register adds a mutator, or replaces one already registered under the
// same name without disturbing its position in iteration order.
func (r *Registry) Register(m Mutator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := m.Name()
	if _, exists := r.mutators[name]; !exists {
		r.order = append(r.order, name)
	}
	r.mutators[name] = m
}

// All returns every registered mutator in insertion order.
func (r *Registry) All() []Mutator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Mutator, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.mutators[name])
	}
	return out
}

// Count returns the number of registered mutators.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Strategy selects a mutator from a pool given an RNG.
type Strategy interface {
	SelectMutator(rng *rand.Rand, mutators []Mutator) Mutator
}

// RandomStrategy picks uniformly among the available mutators.
type RandomStrategy struct{}

func (RandomStrategy) SelectMutator(rng *rand.Rand, mutators []Mutator) Mutator {
	if len(mutators) == 0 {
		return nil
	}
	return mutators[rng.Intn(len(mutators))]
}

// WeightedStrategy picks proportionally to a per-name weight, defaulting to
// weight 1.0 for any mutator without an explicit entry.
type WeightedStrategy struct {
	Weights map[string]float64
}

func (w WeightedStrategy) SelectMutator(rng *rand.Rand, mutators []Mutator) Mutator {
	if len(mutators) == 0 {
		return nil
	}
	var total float64
	for _, m := range mutators {
		total += w.weightOf(m.Name())
	}
	if total <= 0 {
		return mutators[rng.Intn(len(mutators))]
	}

	target := rng.Float64() * total
	var cumulative float64
	for _, m := range mutators {
		cumulative += w.weightOf(m.Name())
		if cumulative > target {
			return m
		}
	}
	return mutators[len(mutators)-1]
}

func (w WeightedStrategy) weightOf(name string) float64 {
	if v, ok := w.Weights[name]; ok {
		if v > 0 {
			return v
		}
		return 0
	}
	return 1.0
}

// Engine orchestrates a chain of mutations over a registry, using a
// strategy to pick each step.
type Engine struct {
	registry *Registry
	strategy Strategy
	minSteps int
	maxSteps int
}

// EngineConfig configures an Engine.
type EngineConfig struct {
	Strategy Strategy
	MinSteps int
	MaxSteps int
}

// DefaultEngineConfig returns a single-step random-strategy configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{Strategy: RandomStrategy{}, MinSteps: 1, MaxSteps: 1}
}

// NewEngine creates an Engine over registry with the given configuration.
func NewEngine(registry *Registry, cfg EngineConfig) *Engine {
	if cfg.Strategy == nil {
		cfg.Strategy = RandomStrategy{}
	}
	if cfg.MinSteps <= 0 {
		cfg.MinSteps = 1
	}
	if cfg.MaxSteps < cfg.MinSteps {
		cfg.MaxSteps = cfg.MinSteps
	}
	return &Engine{registry: registry, strategy: cfg.Strategy, minSteps: cfg.MinSteps, maxSteps: cfg.MaxSteps}
}

// Mutate applies between MinSteps and MaxSteps mutations (inclusive,
// uniformly chosen) to input and returns the result.
func (e *Engine) Mutate(rng *rand.Rand, input []byte) []byte {
	mutators := e.registry.All()
	if len(mutators) == 0 {
		return input
	}

	steps := e.minSteps
	if e.maxSteps > e.minSteps {
		steps += rng.Intn(e.maxSteps - e.minSteps + 1)
	}

	out := input
	for i := 0; i < steps; i++ {
		if len(out) == 0 {
			break
		}
		m := e.strategy.SelectMutator(rng, mutators)
		if m == nil {
			break
		}
		out = m.Mutate(rng, out)
	}
	return out
}

// Registry exposes the underlying registry so callers can inspect or
// extend it.
func (e *Engine) Registry() *Registry { return e.registry }
