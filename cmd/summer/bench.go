package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime/pprof"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/example/go-summer/internal/bench"
	"github.com/example/go-summer/internal/bench/stageprof"
	"github.com/example/go-summer/internal/mixer"
	"github.com/example/go-summer/internal/runtime/tensor"
)

type benchOptions struct {
	runs       int
	batch      int
	length     int
	format     string
	threshold  float64
	progress   bool
	stages     bool
	cpuProfile string
}

func newBenchCmd() *cobra.Command {
	var opts benchOptions

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark forward-pass latency and token throughput",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.runs < 1 {
				return fmt.Errorf("--runs must be at least 1")
			}

			if opts.format != "table" && opts.format != "json" {
				return fmt.Errorf("--format must be 'table' or 'json'")
			}

			return runBenchCmd(cmd.Context(), opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().IntVar(&opts.runs, "runs", 5, "Number of forward passes")
	cmd.Flags().IntVar(&opts.batch, "batch", 1, "Batch size of the random input")
	cmd.Flags().IntVar(&opts.length, "length", 1024, "Sequence length of the random input")
	cmd.Flags().StringVar(&opts.format, "format", "table", "Output format: table|json")
	cmd.Flags().Float64Var(&opts.threshold, "min-throughput", 0, "Exit non-zero if mean tokens/s is below this value (0 = disabled)")
	cmd.Flags().BoolVar(&opts.progress, "progress", true, "Show a progress bar on stderr")
	cmd.Flags().BoolVar(&opts.stages, "stages", false, "Report per-stage timings")
	cmd.Flags().StringVar(&opts.cpuProfile, "cpuprofile", "", "Write a CPU profile labelled by stage to this file")

	return cmd
}

func runBenchCmd(ctx context.Context, opts benchOptions, stdout, stderr io.Writer) error {
	prof := stageprof.New()

	layer, err := newLayer(mixer.WithTracer(prof))
	if err != nil {
		return err
	}

	x, err := randomSequence(activeCfg.Model.Seed, opts.batch, opts.length, activeCfg.Model.DModel)
	if err != nil {
		return err
	}

	if opts.cpuProfile != "" {
		f, err := os.Create(opts.cpuProfile)
		if err != nil {
			return fmt.Errorf("create cpu profile: %w", err)
		}
		defer f.Close()

		if err := pprof.StartCPUProfile(f); err != nil {
			return fmt.Errorf("start cpu profile: %w", err)
		}
		defer pprof.StopCPUProfile()
	}

	var bar *progressbar.ProgressBar
	if opts.progress {
		bar = progressbar.NewOptions(opts.runs,
			progressbar.OptionSetWriter(stderr),
			progressbar.OptionSetDescription("Mixing"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
	}

	results, err := runBench(ctx, layer, x, opts.runs, func(r bench.RunResult) {
		if r.Cold {
			// Stage timings cover warm runs only.
			prof.Reset()
		}

		if bar != nil {
			bar.Describe(fmt.Sprintf("Mixing [%.0f tok/s]", r.Throughput))
			_ = bar.Add(1)
		}
	})

	if bar != nil {
		_ = bar.Finish()
	}

	if err != nil {
		return err
	}

	durations := make([]time.Duration, len(results))
	for i, r := range results {
		durations[i] = r.Duration
	}

	stats := bench.ComputeStats(durations)

	switch opts.format {
	case "json":
		bench.FormatJSON(results, stats, stdout)
	default:
		bench.FormatTable(results, stats, stdout)
	}

	if opts.stages {
		prof.Report(stdout)
	}

	return bench.CheckThroughputThreshold(bench.MeanThroughput(results), opts.threshold)
}

// runBench times runs forward passes of layer over x. done is called after
// every run.
func runBench(ctx context.Context, layer *mixer.Summer, x *tensor.Tensor, runs int, done func(bench.RunResult)) ([]bench.RunResult, error) {
	results := make([]bench.RunResult, 0, runs)
	tokens := int(x.Dim(0) * x.Dim(1))

	for i := range runs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()

		if _, err := layer.Forward(x, nil); err != nil {
			return nil, fmt.Errorf("run %d failed: %w", i+1, err)
		}

		dur := time.Since(start)

		r := bench.RunResult{
			Index:      i,
			Cold:       i == 0,
			Duration:   dur,
			Tokens:     tokens,
			Throughput: bench.CalcThroughput(tokens, dur),
		}
		results = append(results, r)

		if done != nil {
			done(r)
		}
	}

	return results, nil
}
