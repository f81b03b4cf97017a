package testutil

import (
	"math"
	"testing"

	"github.com/example/go-summer/internal/runtime/ops"
	"github.com/example/go-summer/internal/runtime/tensor"
)

// AssertClose fails when any element of got is outside tol of want. The
// first offending index is reported.
func AssertClose(tb testing.TB, name string, got, want []float64, tol ops.Tolerance) {
	tb.Helper()

	if len(got) != len(want) {
		tb.Fatalf("%s: length %d, want %d", name, len(got), len(want))
		return
	}

	for i := range got {
		if !tol.Within(got[i], want[i]) {
			tb.Fatalf("%s[%d] = %.12g, want %.12g (abs %g, rel %g)", name, i, got[i], want[i], tol.Abs, tol.Rel)
		}
	}
}

// AssertTensorClose compares shapes and values of two tensors.
func AssertTensorClose(tb testing.TB, name string, got, want *tensor.Tensor, tol ops.Tolerance) {
	tb.Helper()

	if !tensor.SameShape(got, want) {
		tb.Fatalf("%s: shape %v, want %v", name, got.Shape(), want.Shape())
		return
	}

	AssertClose(tb, name, got.RawData(), want.RawData(), tol)
}

// AssertFinite fails on the first NaN or Inf in data.
func AssertFinite(tb testing.TB, name string, data []float64) {
	tb.Helper()

	for i, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			tb.Fatalf("%s[%d] = %v, want finite", name, i, v)
		}
	}
}
