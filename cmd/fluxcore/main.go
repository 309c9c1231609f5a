// fluxcore is a coverage-guided fuzzer for subprocess targets.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fluxcore/fluxcore/internal/config"
	"github.com/fluxcore/fluxcore/internal/corpus"
	"github.com/fluxcore/fluxcore/internal/digest"
	"github.com/fluxcore/fluxcore/internal/execcache"
	"github.com/fluxcore/fluxcore/internal/fleet"
	"github.com/fluxcore/fluxcore/internal/memory"
	"github.com/fluxcore/fluxcore/internal/mutator"
	"github.com/fluxcore/fluxcore/internal/ownerloop"
	"github.com/fluxcore/fluxcore/internal/runner"
	"github.com/fluxcore/fluxcore/internal/seedsched"
	"github.com/fluxcore/fluxcore/internal/signalcodec"
	"github.com/fluxcore/fluxcore/internal/statsdump"
	"github.com/fluxcore/fluxcore/internal/tui"
	"github.com/fluxcore/fluxcore/internal/webdash"
)

var (
	version = "0.1.0-dev"

	configPath string
	corpusDir  string
	outputDir  string
	verbose    bool
	webAddr    string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "fluxcore",
		Short: "fluxcore - coverage-guided fuzzer for subprocess targets",
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&corpusDir, "corpus", "", "corpus directory (overrides config)")
	rootCmd.PersistentFlags().StringVar(&outputDir, "output", "", "stats output directory (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("fluxcore version %s\n", version)
		},
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.DefaultConfig(), nil
	}
	return config.Load(configPath)
}

// buildRun wires a Loop from config: corpus, scheduler, mutation engine,
// subprocess runner, and the feedback codec, ready to Run or be driven by
// watch/serve.
func buildRun(cfg *config.Config, loopCfg ownerloop.Config, log *slog.Logger) (*ownerloop.Loop, *corpus.Corpus, seedsched.Scheduler, error) {
	dir := corpusDir
	if dir == "" && len(cfg.Target.CorpusDirs) > 0 {
		dir = cfg.Target.CorpusDirs[0]
	}
	c, err := corpus.New(dir)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("corpus: %w", err)
	}

	scheduler, err := seedsched.New(cfg.SeedSchedConfig())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("scheduler: %w", err)
	}

	sampleRNG := rand.New(rand.NewSource(time.Now().UnixNano()))
	for _, seedDir := range cfg.Target.CorpusDirs {
		seeds, err := corpus.LoadDir(seedDir, "seed", "initial")
		if err != nil {
			log.Warn("skipping corpus dir", "dir", seedDir, "error", err)
			continue
		}
		if cfg.Target.CorpusSampleRatio > 0 {
			sampled, err := corpus.SampleByRatio(seeds, cfg.Target.CorpusSampleRatio, sampleRNG)
			if err != nil {
				log.Warn("corpus sampling failed, loading full directory", "dir", seedDir, "error", err)
			} else {
				seeds = sampled
			}
		}
		for _, s := range seeds {
			scheduler.Add(s, nil)
		}
	}

	reg := mutator.NewRegistry()
	for _, m := range []mutator.Mutator{
		mutator.BitFlip{FlipBits: 1},
		mutator.ByteFlip{FlipBytes: 1},
		mutator.Arithmetic{Width: 1, MaxDelta: 35},
		mutator.Arithmetic{Width: 2, MaxDelta: 35},
		mutator.Arithmetic{Width: 4, MaxDelta: 35},
		mutator.InterestingValue{Width: 1},
		mutator.InterestingValue{Width: 2},
		mutator.InterestingValue{Width: 4},
		mutator.Delete{MaxDelete: 16},
		mutator.Insert{MaxInsert: 16},
		mutator.DefaultHavoc(),
	} {
		reg.Register(m)
	}
	engine := mutator.NewEngine(reg, mutator.DefaultEngineConfig())

	r, err := runner.New(runner.Options{
		Command: cfg.Target.Command,
		WorkDir: cfg.Target.WorkDir,
		Env:     envSlice(cfg.Target.Env),
		Timeout: cfg.Target.Timeout,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("runner: %w", err)
	}

	if loopCfg.RNGSeed == nil {
		loopCfg.RNGSeed = cfg.Scheduler.RNGSeed
	}
	loop := ownerloop.New(loopCfg, scheduler, c, engine, r, signaler{}, log)
	loop = loop.WithPower(cfg.Power.Mode, cfg.PowerScheduleConfig(), cfg.HybridConfig())
	if cfg.Target.CacheExecutions {
		loop = loop.WithCache(execcache.New(execcache.DefaultOptions()))
	}
	if cfg.Fleet.Workers > 1 {
		pool, err := fleet.New(cfg.FleetPoolConfig())
		if err != nil {
			return nil, nil, nil, fmt.Errorf("fleet: %w", err)
		}
		loop = loop.WithFleet(pool)
	}

	return loop, c, scheduler, nil
}

func envSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

// signaler reduces a target's stdout to a seedsched.RunResult: it first
// tries signalcodec.Normalize for a structured feedback line, and falls
// back to a digest of the combined stdout+stderr length and the exit code
// as a coverage proxy when the target emits nothing the codec recognizes.
type signaler struct{}

func (signaler) Signals(res *runner.Result, mutated []byte) seedsched.RunResult {
	if len(res.Stdout) > 0 {
		if signals, warnings := signalcodec.Normalize(res.Stdout); len(warnings) == 0 || signals.CoverageKey != "" {
			return signals
		}
	}

	combined := append(append([]byte{}, res.Stdout...), res.Stderr...)
	key := digest.DigestExact([]uint32{uint32(len(combined)), uint32(res.ExitCode)})
	return seedsched.RunResult{CoverageKey: key}
}

func runCmd() *cobra.Command {
	var maxExecs int64
	var runTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "run",
		Short: "run the fuzzing loop until it stops or is interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			loopCfg := ownerloop.DefaultConfig()
			if maxExecs > 0 {
				loopCfg.MaxExecutions = maxExecs
			}
			if runTimeout > 0 {
				loopCfg.Timeout = runTimeout
			}

			loop, _, _, err := buildRun(cfg, loopCfg, log)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				log.Info("shutting down")
				cancel()
			}()

			loop.Run(ctx)
			stats := loop.Stats()
			fmt.Printf("executions=%d interesting=%d crashes=%d timeouts=%d\n",
				stats.Executions, stats.InterestingInputs, stats.Crashes, stats.Timeouts)
			return nil
		},
	}
	cmd.Flags().Int64Var(&maxExecs, "max-executions", 0, "stop after this many executions (0 = unbounded)")
	cmd.Flags().DurationVar(&runTimeout, "timeout", 0, "stop after this long (0 = unbounded)")
	return cmd
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "run the fuzzing loop with a terminal dashboard attached",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			loop, c, scheduler, err := buildRun(cfg, ownerloop.DefaultConfig(), log)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			start := time.Now()
			source := func() statsdump.Snapshot {
				return statsdump.Snapshot{
					Title:       "fluxcore",
					GeneratedAt: time.Now(),
					Uptime:      time.Since(start),
					Loop:        loop.Stats(),
					Scheduler:   scheduler.Stats(),
					Debug:       scheduler.DebugDump(20),
					Crashes:     c.CrashCount(),
					Memory:      memory.Current(),
					Hybrid:      loop.HybridState(),
				}
			}

			go loop.Run(ctx)

			dashboard := tui.NewDashboard(source, time.Second)
			if err := tui.Run(dashboard); err != nil {
				return err
			}
			cancel()
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the fuzzing loop with the live web dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			addr := webAddr
			if addr == "" {
				addr = cfg.Output.WebAddr
			}

			loop, c, scheduler, err := buildRun(cfg, ownerloop.DefaultConfig(), log)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			start := time.Now()
			source := func() statsdump.Snapshot {
				return statsdump.Snapshot{
					Title:       "fluxcore",
					GeneratedAt: time.Now(),
					Uptime:      time.Since(start),
					Loop:        loop.Stats(),
					Scheduler:   scheduler.Stats(),
					Debug:       scheduler.DebugDump(20),
					Crashes:     c.CrashCount(),
					Memory:      memory.Current(),
					Hybrid:      loop.HybridState(),
				}
			}

			server := webdash.New(webdash.Options{Addr: addr}, source, log)
			go func() {
				if err := server.Listen(); err != nil {
					log.Error("web server stopped", "error", err)
				}
			}()
			log.Info("web dashboard listening", "addr", addr)

			go loop.Run(ctx)

			<-sigCh
			log.Info("shutting down")
			cancel()
			return server.Stop()
		},
	}
	cmd.Flags().StringVar(&webAddr, "addr", "", "web dashboard listen address (overrides config)")
	return cmd
}
