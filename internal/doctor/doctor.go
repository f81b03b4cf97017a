// Package doctor runs the numeric properties of the mixer against the live
// build and reports each one as a pass/fail line.
package doctor

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"time"

	"github.com/example/go-summer/internal/scan"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// Check is one property. Run gets a generator seeded for that check alone
// and the scan options under test.
type Check struct {
	Name string
	Run  func(rng *rand.Rand, opts []scan.Option) error
}

// Config holds injectable dependencies for a doctor run.
type Config struct {
	// Seed derives the per-check generators.
	Seed uint64
	// ScanOptions are passed to every scan a check performs.
	ScanOptions []scan.Option
	// Checks defaults to DefaultChecks when nil.
	Checks []Check
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
	elapsed  time.Duration
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

// AddFailure appends an external failure message to the result.
func (r *Result) AddFailure(msg string) { r.failures = append(r.failures, msg) }

// Elapsed is the total time spent in checks.
func (r *Result) Elapsed() time.Duration { return r.elapsed }

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Run executes the configured checks in order and writes one line per check
// to w. Cancelling ctx stops before the next check and records the cause.
func Run(ctx context.Context, cfg Config, w io.Writer) Result {
	var res Result

	checks := cfg.Checks
	if checks == nil {
		checks = DefaultChecks()
	}

	for i, c := range checks {
		if err := ctx.Err(); err != nil {
			res.fail(fmt.Sprintf("%s: %v", c.Name, err))
			fmt.Fprintf(w, "%s %s: not run (%v)\n", FailMark, c.Name, err)

			continue
		}

		rng := rand.New(rand.NewPCG(cfg.Seed, uint64(i)+1))
		start := time.Now()
		err := c.Run(rng, cfg.ScanOptions)
		took := time.Since(start)
		res.elapsed += took

		if err != nil {
			res.fail(fmt.Sprintf("%s: %v", c.Name, err))
			fmt.Fprintf(w, "%s %s: %v\n", FailMark, c.Name, err)

			continue
		}

		fmt.Fprintf(w, "%s %s (%s)\n", PassMark, c.Name, took.Round(time.Microsecond))
	}

	return res
}
