package mixer

import (
	"math"
	"math/rand/v2"

	"github.com/example/go-summer/internal/runtime/tensor"
)

// uniformInit fills shape with values uniform in [-1/sqrt(fanIn), 1/sqrt(fanIn)),
// the default range for linear and convolution layers.
func uniformInit(rng *rand.Rand, shape []int64, fanIn int) (*tensor.Tensor, error) {
	bound := 1 / math.Sqrt(float64(fanIn))

	return tensor.FromFunc(shape, func(int) float64 {
		return (2*rng.Float64() - 1) * bound
	})
}
