// Package config handles configuration loading and management for FluxCore.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fluxcore/fluxcore/internal/fleet"
	"github.com/fluxcore/fluxcore/internal/power"
	"github.com/fluxcore/fluxcore/internal/seedsched"
)

// Config is the top-level configuration surface. Every fuzzing run is driven
// by one of these, either loaded from YAML or built from DefaultConfig.
type Config struct {
	Target    TargetConfig    `yaml:"target"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Power     PowerConfig     `yaml:"power"`
	Fleet     FleetConfig     `yaml:"fleet"`
	Output    OutputConfig    `yaml:"output"`
}

// TargetConfig describes the subprocess under test.
type TargetConfig struct {
	Command         []string          `yaml:"command"`
	WorkDir         string            `yaml:"work_dir"`
	Env             map[string]string `yaml:"env"`
	Timeout         time.Duration     `yaml:"timeout"`
	CorpusDirs      []string          `yaml:"corpus_dirs"`
	CacheExecutions bool              `yaml:"cache_executions"`

	// CorpusSampleRatio, if non-zero, thins each loaded corpus directory to
	// roughly this fraction of its seeds instead of loading all of them.
	// Must be in (0, 1].
	CorpusSampleRatio float64 `yaml:"corpus_sample_ratio"`
}

// SchedulerConfig maps directly onto seedsched.Config, using the wire-friendly
// string/duration forms a YAML file can express.
type SchedulerConfig struct {
	Kind                   string        `yaml:"kind"` // queue, heap, ucb_tree
	PriorityMode           string        `yaml:"priority_mode"`
	UCBExplorationConstant float64       `yaml:"ucb_exploration_constant"`
	MaxSeedsPerLeaf        int           `yaml:"max_seeds_per_leaf"`
	HeapDecay              float64       `yaml:"heap_decay"`
	RNGSeed                *int64        `yaml:"rng_seed"`
	SweepInterval          time.Duration `yaml:"sweep_interval"`
}

// PowerConfig maps onto power.Config plus the hybrid scheduler's knobs.
type PowerConfig struct {
	MinEnergy int    `yaml:"min_energy"`
	MaxEnergy int    `yaml:"max_energy"`
	Mode      string `yaml:"mode"` // uniform, weighted, hybrid

	PlateauK      int     `yaml:"plateau_k"`
	FastWindowW   int     `yaml:"fast_window_w"`
	BreakthroughB int     `yaml:"breakthrough_b"`
	Alpha         float64 `yaml:"alpha"`
	SCap          int     `yaml:"s_cap"`
}

// FleetConfig sizes the concurrent worker pool.
type FleetConfig struct {
	Workers      int           `yaml:"workers"`
	RatePerSec   float64       `yaml:"rate_per_sec"`
	BurstSize    int           `yaml:"burst_size"`
	LeaseTimeout time.Duration `yaml:"lease_timeout"`
}

// OutputConfig controls what gets rendered while a run is in progress.
type OutputConfig struct {
	Format    string `yaml:"format"` // json, html
	StatsFile string `yaml:"stats_file"`
	EnableTUI bool   `yaml:"enable_tui"`
	EnableWeb bool   `yaml:"enable_web"`
	WebAddr   string `yaml:"web_addr"`
	Quiet     bool   `yaml:"quiet"`
}

// DefaultConfig returns the documented defaults, the same values
// seedsched.DefaultConfig and power.DefaultConfig produce, except that
// SweepInterval is 30s here where seedsched.DefaultConfig leaves it zero.
func DefaultConfig() *Config {
	return &Config{
		Target: TargetConfig{
			Timeout: 5 * time.Second,
		},
		Scheduler: SchedulerConfig{
			Kind:                   "queue",
			PriorityMode:           "avg_score",
			UCBExplorationConstant: 1.0,
			MaxSeedsPerLeaf:        8,
			HeapDecay:              0.9,
			SweepInterval:          30 * time.Second,
		},
		Power: PowerConfig{
			MinEnergy:     1,
			MaxEnergy:     128,
			Mode:          "uniform",
			PlateauK:      8,
			FastWindowW:   16,
			BreakthroughB: 5,
			Alpha:         8,
			SCap:          14,
		},
		Fleet: FleetConfig{
			Workers:      8,
			RatePerSec:   50,
			BurstSize:    10,
			LeaseTimeout: 10 * time.Second,
		},
		Output: OutputConfig{
			Format:    "json",
			EnableTUI: true,
		},
	}
}

// Load reads and parses a YAML configuration file, starting from
// DefaultConfig and overlaying whatever the file specifies.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes. Unknown fields are rejected:
// a typo in a config file should fail loudly, not silently no-op.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()

	decoder := yaml.NewDecoder(strings.NewReader(string(data)))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that YAML decoding alone can't
// enforce, and reports the first violation found.
func (c *Config) Validate() error {
	if len(c.Target.Command) == 0 {
		return fmt.Errorf("target.command must not be empty")
	}
	if c.Power.MinEnergy > c.Power.MaxEnergy {
		return fmt.Errorf("power.min_energy (%d) must not exceed power.max_energy (%d)", c.Power.MinEnergy, c.Power.MaxEnergy)
	}
	switch c.Power.Mode {
	case "uniform", "weighted", "hybrid":
	default:
		return fmt.Errorf("power.mode must be one of uniform, weighted, hybrid, got %q", c.Power.Mode)
	}
	if c.Target.CorpusSampleRatio < 0 || c.Target.CorpusSampleRatio > 1 {
		return fmt.Errorf("target.corpus_sample_ratio must be in (0, 1], got %v", c.Target.CorpusSampleRatio)
	}
	return nil
}

// SeedSchedConfig converts the wire config into seedsched.Config.
func (c *Config) SeedSchedConfig() seedsched.Config {
	return seedsched.Config{
		Kind:                   seedsched.Kind(c.Scheduler.Kind),
		PriorityMode:           seedsched.PriorityMode(c.Scheduler.PriorityMode),
		UCBExplorationConstant: c.Scheduler.UCBExplorationConstant,
		MaxSeedsPerLeaf:        c.Scheduler.MaxSeedsPerLeaf,
		HeapDecay:              c.Scheduler.HeapDecay,
		RNGSeed:                c.Scheduler.RNGSeed,
		SweepInterval:          c.Scheduler.SweepInterval.Nanoseconds(),
	}
}

// PowerScheduleConfig converts the wire config into power.Config.
func (c *Config) PowerScheduleConfig() power.Config {
	return power.Config{MinEnergy: c.Power.MinEnergy, MaxEnergy: c.Power.MaxEnergy}
}

// FleetPoolConfig converts the wire config into fleet.Options. RatePerSec
// <= 0 leaves rate limiting disabled, matching fleet.DefaultOptions.
func (c *Config) FleetPoolConfig() fleet.Options {
	return fleet.Options{
		Workers:     c.Fleet.Workers,
		MaxBlocking: 1000,
		RatePerSec:  c.Fleet.RatePerSec,
		Burst:       c.Fleet.BurstSize,
	}
}

// HybridConfig converts the wire config into power.HybridConfig.
func (c *Config) HybridConfig() power.HybridConfig {
	return power.HybridConfig{
		MinEnergy:     c.Power.MinEnergy,
		MaxEnergy:     c.Power.MaxEnergy,
		PlateauK:      c.Power.PlateauK,
		FastWindowW:   c.Power.FastWindowW,
		BreakthroughB: c.Power.BreakthroughB,
		Alpha:         c.Power.Alpha,
		SCap:          c.Power.SCap,
	}
}
