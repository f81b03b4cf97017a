package tensor

import (
	"sync/atomic"
	"testing"
)

func TestParallelForCoversRangeOnce(t *testing.T) {
	for _, tc := range []struct {
		n, workers int
	}{
		{0, 4}, {1, 4}, {7, 1}, {7, 3}, {100, 8}, {5, 50},
	} {
		hits := make([]atomic.Int32, tc.n)

		ParallelFor(tc.n, tc.workers, func(lo, hi int) {
			for i := lo; i < hi; i++ {
				hits[i].Add(1)
			}
		})

		for i := range hits {
			if got := hits[i].Load(); got != 1 {
				t.Fatalf("n=%d workers=%d: index %d visited %d times", tc.n, tc.workers, i, got)
			}
		}
	}
}

func TestSetWorkersClamps(t *testing.T) {
	defer SetWorkers(1)

	SetWorkers(-3)
	if got := Workers(); got != 1 {
		t.Fatalf("Workers() = %d, want 1", got)
	}

	SetWorkers(6)
	if got := Workers(); got != 6 {
		t.Fatalf("Workers() = %d, want 6", got)
	}
}
