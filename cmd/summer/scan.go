package main

import (
	"fmt"
	"io"
	"math"
	"math/cmplx"
	"math/rand/v2"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/go-summer/internal/runtime/tensor"
	"github.com/example/go-summer/internal/scan"
)

type scanOptions struct {
	batch      int
	length     int
	channels   int
	runs       int
	sequential bool
}

func newScanCmd() *cobra.Command {
	var opts scanOptions

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Time the complex recurrence scan on random inputs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := requireConfig(); err != nil {
				return err
			}

			return runScan(cmd, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVar(&opts.batch, "batch", 1, "Batch size")
	cmd.Flags().IntVar(&opts.length, "length", 4096, "Sequence length N")
	cmd.Flags().IntVar(&opts.channels, "channels", 64, "Channels per position")
	cmd.Flags().IntVar(&opts.runs, "runs", 5, "Number of timed runs")
	cmd.Flags().BoolVar(&opts.sequential, "sequential", false, "Also time the sequential reference and report the largest deviation")

	return cmd
}

func runScan(cmd *cobra.Command, opts scanOptions, w io.Writer) error {
	if opts.batch < 1 || opts.length < 1 || opts.channels < 1 {
		return fmt.Errorf("--batch, --length and --channels must be at least 1")
	}

	if opts.runs < 1 {
		return fmt.Errorf("--runs must be at least 1")
	}

	shape := []int64{int64(opts.batch), int64(opts.length), int64(opts.channels)}
	rng := rand.New(rand.NewPCG(activeCfg.Model.Seed, 0x5ca4))

	fs := make([]complex128, opts.batch*opts.length*opts.channels)
	for i := range fs {
		fs[i] = cmplx.Rect(0.9+0.099*rng.Float64(), 2*math.Pi*rng.Float64())
	}

	uniform := func(int) float64 { return 2*rng.Float64() - 1 }

	inRe, err := tensor.FromFunc(shape, uniform)
	if err != nil {
		return err
	}

	inIm, _ := tensor.FromFunc(shape, uniform)
	fRe, _ := tensor.FromFunc(shape, func(i int) float64 { return real(fs[i]) })
	fIm, _ := tensor.FromFunc(shape, func(i int) float64 { return imag(fs[i]) })

	scanOpts := []scan.Option{scan.WithBlockSize(activeCfg.Scan.BlockSize), scan.WithWorkers(tensor.Workers())}

	var outRe, outIm *tensor.Tensor

	durations := make([]time.Duration, 0, opts.runs)

	for i := range opts.runs {
		if err := cmd.Context().Err(); err != nil {
			return err
		}

		start := time.Now()

		outRe, outIm, err = scan.Complex(inRe, inIm, fRe, fIm, scanOpts...)
		if err != nil {
			return fmt.Errorf("run %d failed: %w", i+1, err)
		}

		durations = append(durations, time.Since(start))
	}

	best := durations[0]
	for _, d := range durations[1:] {
		best = min(best, d)
	}

	_, _ = fmt.Fprintf(w, "shape: %v\nworkers: %d\nblock_size: %d\n", shape, tensor.Workers(), activeCfg.Scan.BlockSize)
	_, _ = fmt.Fprintf(w, "best_ms: %.3f\n", best.Seconds()*1000)

	if !opts.sequential {
		return nil
	}

	start := time.Now()

	seqRe, seqIm, err := scan.Sequential(inRe, inIm, fRe, fIm)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(w, "sequential_ms: %.3f\n", time.Since(start).Seconds()*1000)
	_, _ = fmt.Fprintf(w, "max_abs_diff: %.3g\n", max(maxAbsDiff(outRe, seqRe), maxAbsDiff(outIm, seqIm)))

	return nil
}

func maxAbsDiff(a, b *tensor.Tensor) float64 {
	var m float64

	bd := b.RawData()
	for i, v := range a.RawData() {
		m = max(m, math.Abs(v-bd[i]))
	}

	return m
}
