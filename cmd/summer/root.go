package main

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/go-summer/internal/config"
	"github.com/example/go-summer/internal/mixer"
	"github.com/example/go-summer/internal/runtime/tensor"
)

var (
	cfgFile   string
	activeCfg config.Config
)

func NewRootCmd() *cobra.Command {
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:           "summer",
		Short:         "Linear-cost token mixer command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load(config.LoadOptions{
				Cmd:        cmd,
				ConfigFile: cfgFile,
				Defaults:   defaults,
			})
			if err != nil {
				return err
			}

			if err := loaded.Validate(); err != nil {
				return err
			}

			activeCfg = loaded
			setupLogger(loaded.LogLevel)

			// Zero means one kernel worker per CPU.
			workers := loaded.Runtime.Workers
			if workers == 0 {
				workers = runtime.GOMAXPROCS(0)
			}

			tensor.SetWorkers(workers)

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Optional config file (yaml|toml|json)")
	config.RegisterFlags(cmd.PersistentFlags(), defaults)

	cmd.AddCommand(newMixCmd())
	cmd.AddCommand(newScanCmd())
	cmd.AddCommand(newBenchCmd())
	cmd.AddCommand(newCheckCmd())

	return cmd
}

// ParseLogLevel converts a case-insensitive level string to slog.Level.
// An empty string returns slog.LevelInfo. Unknown strings return an error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug|info|warn|error)", s)
	}
}

// setupLogger configures the process-wide slog default logger.
func setupLogger(levelStr string) {
	lvl, err := ParseLogLevel(levelStr)
	if err != nil {
		lvl = slog.LevelInfo
	}

	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(h))
}

func requireConfig() (config.Config, error) {
	if activeCfg.Model.DModel == 0 {
		return config.Config{}, errors.New("configuration not loaded")
	}

	return activeCfg, nil
}

// newLayer builds a Summer from the active configuration.
func newLayer(opts ...mixer.Option) (*mixer.Summer, error) {
	cfg, err := requireConfig()
	if err != nil {
		return nil, err
	}

	opts = append([]mixer.Option{mixer.WithLogger(slog.Default())}, opts...)

	return mixer.New(mixer.FromConfig(cfg), opts...)
}

// randomSequence draws a (batch, length, d) input uniform in [-1, 1).
func randomSequence(seed uint64, batch, length, d int) (*tensor.Tensor, error) {
	if batch < 1 || length < 1 {
		return nil, fmt.Errorf("--batch and --length must be at least 1, got %d and %d", batch, length)
	}

	rng := rand.New(rand.NewPCG(seed, 0x1a7e))

	return tensor.FromFunc([]int64{int64(batch), int64(length), int64(d)}, func(int) float64 {
		return 2*rng.Float64() - 1
	})
}
