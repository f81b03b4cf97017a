// Package testutil provides shared helpers for the numeric tests: seeded
// random tensors, tolerance assertions and skip helpers for long-running
// property checks.
//
// Typical usage:
//
//	func TestScanParity(t *testing.T) {
//	    testutil.RequireLongTests(t)
//	    rng := testutil.Rand(7)
//	    x := testutil.RandTensor(t, rng, []int64{2, 1024, 4}, -1, 1)
//	    ...
//	}
package testutil

import (
	"math/rand/v2"
	"os"
	"testing"

	"github.com/example/go-summer/internal/runtime/tensor"
)

// Rand returns a deterministic generator for seed.
func Rand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// RandTensor returns a tensor of the given shape with values uniform in
// [lo, hi).
func RandTensor(tb testing.TB, rng *rand.Rand, shape []int64, lo, hi float64) *tensor.Tensor {
	tb.Helper()

	t, err := tensor.FromFunc(shape, func(int) float64 { return lo + (hi-lo)*rng.Float64() })
	if err != nil {
		tb.Fatalf("RandTensor(%v): %v", shape, err)
	}

	return t
}

// MustTensor wraps tensor.New and fails the test on error.
func MustTensor(tb testing.TB, data []float64, shape []int64) *tensor.Tensor {
	tb.Helper()

	t, err := tensor.New(data, shape)
	if err != nil {
		tb.Fatalf("tensor.New(%v): %v", shape, err)
	}

	return t
}

// RequireLongTests skips the test under -short unless SUMMER_LONG_TESTS is
// set, so the 10k-sample property checks stay out of quick runs.
func RequireLongTests(tb testing.TB) {
	tb.Helper()

	if testing.Short() && os.Getenv("SUMMER_LONG_TESTS") == "" {
		tb.Skipf("long-running property test skipped in -short mode; set SUMMER_LONG_TESTS=1 to override")
	}
}
