// Package bench provides benchmarking primitives for the summer bench command.
package bench

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"
)

// ---------------------------------------------------------------------------
// Run result and stats
// ---------------------------------------------------------------------------

// RunResult holds the timing of a single forward pass.
type RunResult struct {
	Index    int
	Cold     bool // true for the first run (cold-start)
	Duration time.Duration
	// Tokens is batch*N, the number of positions mixed by the run.
	Tokens     int
	Throughput float64 // tokens per second
}

// Stats holds aggregate timing statistics across all runs.
type Stats struct {
	Min    time.Duration
	Max    time.Duration
	Mean   time.Duration
	Median time.Duration
	StdDev time.Duration
}

// ComputeStats calculates min, max, mean, median and sample standard
// deviation over a slice of durations. An empty slice gives zero Stats.
func ComputeStats(durations []time.Duration) Stats {
	if len(durations) == 0 {
		return Stats{}
	}

	xs := make([]float64, len(durations))
	for i, d := range durations {
		xs[i] = float64(d)
	}

	slices.Sort(xs)

	s := Stats{
		Min:    time.Duration(xs[0]),
		Max:    time.Duration(xs[len(xs)-1]),
		Mean:   time.Duration(stat.Mean(xs, nil)),
		Median: time.Duration(stat.Quantile(0.5, stat.Empirical, xs, nil)),
	}

	if len(xs) > 1 {
		s.StdDev = time.Duration(stat.StdDev(xs, nil))
	}

	return s
}

// ---------------------------------------------------------------------------
// Throughput helpers
// ---------------------------------------------------------------------------

// CalcThroughput returns tokens per second. Returns 0 if d is zero to avoid
// division by zero.
func CalcThroughput(tokens int, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}

	return float64(tokens) / d.Seconds()
}

// MeanThroughput averages the per-run throughput, skipping the cold run
// when warm runs exist.
func MeanThroughput(runs []RunResult) float64 {
	var xs []float64

	for _, r := range runs {
		if !r.Cold {
			xs = append(xs, r.Throughput)
		}
	}

	if len(xs) == 0 {
		for _, r := range runs {
			xs = append(xs, r.Throughput)
		}
	}

	if len(xs) == 0 {
		return 0
	}

	return stat.Mean(xs, nil)
}

// ---------------------------------------------------------------------------
// Throughput threshold gate
// ---------------------------------------------------------------------------

// CheckThroughputThreshold returns an error if mean < threshold.
// A threshold of 0 disables the gate.
func CheckThroughputThreshold(mean, threshold float64) error {
	if threshold <= 0 {
		return nil
	}

	if mean < threshold {
		return fmt.Errorf("mean throughput %.1f tokens/s below threshold %.1f", mean, threshold)
	}

	return nil
}

// ---------------------------------------------------------------------------
// Output formatters
// ---------------------------------------------------------------------------

// FormatTable writes a human-readable ASCII table of bench results to w.
func FormatTable(runs []RunResult, stats Stats, w io.Writer) {
	sb := &strings.Builder{}

	fmt.Fprintf(sb, "%-5s  %-5s  %10s  %10s  %14s\n", "Run", "Cold", "MS", "Tokens", "Tokens/s")
	fmt.Fprintln(sb, strings.Repeat("-", 52))

	for _, r := range runs {
		cold := ""
		if r.Cold {
			cold = "yes"
		}

		fmt.Fprintf(sb, "%-5d  %-5s  %10.3f  %10d  %14.1f\n",
			r.Index+1,
			cold,
			ms(r.Duration),
			r.Tokens,
			r.Throughput,
		)
	}

	fmt.Fprintln(sb, strings.Repeat("-", 52))
	fmt.Fprintf(sb, "%-5s  %-5s  %10.3f  (min)\n", "", "", ms(stats.Min))
	fmt.Fprintf(sb, "%-5s  %-5s  %10.3f  (median)\n", "", "", ms(stats.Median))
	fmt.Fprintf(sb, "%-5s  %-5s  %10.3f  (mean)\n", "", "", ms(stats.Mean))
	fmt.Fprintf(sb, "%-5s  %-5s  %10.3f  (max)\n", "", "", ms(stats.Max))
	fmt.Fprintf(sb, "%-5s  %-5s  %10.3f  (stddev)\n", "", "", ms(stats.StdDev))

	fmt.Fprint(w, sb.String())
}

func ms(d time.Duration) float64 {
	return d.Seconds() * 1000
}

// jsonReport is the top-level JSON structure emitted by FormatJSON.
type jsonReport struct {
	Runs  []jsonRun `json:"runs"`
	Stats jsonStats `json:"stats"`
}

type jsonRun struct {
	Index      int     `json:"index"`
	Cold       bool    `json:"cold"`
	DurationMS float64 `json:"duration_ms"`
	Tokens     int     `json:"tokens"`
	Throughput float64 `json:"tokens_per_sec"`
}

type jsonStats struct {
	MinMS    float64 `json:"min_ms"`
	MedianMS float64 `json:"median_ms"`
	MeanMS   float64 `json:"mean_ms"`
	MaxMS    float64 `json:"max_ms"`
	StdDevMS float64 `json:"stddev_ms"`
}

// FormatJSON writes a JSON report of bench results to w.
func FormatJSON(runs []RunResult, stats Stats, w io.Writer) {
	jr := jsonReport{
		Runs: make([]jsonRun, len(runs)),
		Stats: jsonStats{
			MinMS:    ms(stats.Min),
			MedianMS: ms(stats.Median),
			MeanMS:   ms(stats.Mean),
			MaxMS:    ms(stats.Max),
			StdDevMS: ms(stats.StdDev),
		},
	}
	for i, r := range runs {
		jr.Runs[i] = jsonRun{
			Index:      r.Index,
			Cold:       r.Cold,
			DurationMS: ms(r.Duration),
			Tokens:     r.Tokens,
			Throughput: r.Throughput,
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(jr)
}
