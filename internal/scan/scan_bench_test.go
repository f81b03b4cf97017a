package scan

import (
	"fmt"
	"testing"

	"github.com/example/go-summer/internal/testutil"
)

func BenchmarkComplex(b *testing.B) {
	for _, n := range []int{1024, 16384} {
		rng := testutil.Rand(1)
		shape := []int64{2, int64(n), 16}
		xr := testutil.RandTensor(b, rng, shape, -1, 1)
		xi := testutil.RandTensor(b, rng, shape, -1, 1)
		fr := testutil.RandTensor(b, rng, shape, -0.7, 0.7)
		fi := testutil.RandTensor(b, rng, shape, -0.7, 0.7)

		b.Run(fmt.Sprintf("parallel/n=%d", n), func(b *testing.B) {
			for range b.N {
				if _, _, err := Complex(xr, xi, fr, fi); err != nil {
					b.Fatal(err)
				}
			}
		})

		b.Run(fmt.Sprintf("sequential/n=%d", n), func(b *testing.B) {
			for range b.N {
				if _, _, err := Sequential(xr, xi, fr, fi); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
