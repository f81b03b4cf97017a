package ops

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/example/go-summer/internal/runtime/tensor"
)

// SiLU returns x*sigmoid(x) elementwise.
func SiLU(x *tensor.Tensor) *tensor.Tensor {
	return x.Map(silu)
}

func silu(x float64) float64 {
	return x / (1 + math.Exp(-x))
}

// GateRepeat multiplies x [..., k*w] by gate [..., w], reusing the gate for
// each of the k channel groups of x.
func GateRepeat(x, gate *tensor.Tensor) (*tensor.Tensor, error) {
	if x == nil || gate == nil {
		return nil, errors.New("ops: gate requires non-nil inputs")
	}

	xShape := x.Shape()
	gShape := gate.Shape()

	if len(xShape) != len(gShape) || len(xShape) == 0 {
		return nil, fmt.Errorf("ops: gate rank mismatch %v vs %v", xShape, gShape)
	}

	last := len(xShape) - 1
	for i := range last {
		if xShape[i] != gShape[i] {
			return nil, fmt.Errorf("ops: gate shape %v incompatible with %v", gShape, xShape)
		}
	}

	w := int(gShape[last])
	if w == 0 || int(xShape[last])%w != 0 {
		return nil, fmt.Errorf("ops: gate width %d does not divide input width %d", w, xShape[last])
	}

	width := int(xShape[last])
	out := x.Clone()
	data := out.RawData()
	g := gate.RawData()

	for r := range len(data) / width {
		row := data[r*width : (r+1)*width]
		gRow := g[r*w : (r+1)*w]

		for i := range row {
			row[i] *= gRow[i%w]
		}
	}

	return out, nil
}

// Dropout zeroes each element with probability p and rescales the survivors
// by 1/(1-p). p == 0 returns a copy of x.
func Dropout(x *tensor.Tensor, p float64, rng *rand.Rand) (*tensor.Tensor, error) {
	if x == nil {
		return nil, errors.New("ops: dropout input is nil")
	}

	if p < 0 || p >= 1 {
		return nil, fmt.Errorf("ops: dropout probability must be in [0, 1), got %v", p)
	}

	out := x.Clone()
	if p == 0 {
		return out, nil
	}

	if rng == nil {
		return nil, errors.New("ops: dropout requires a random source")
	}

	keep := 1 / (1 - p)
	data := out.RawData()

	for i := range data {
		if rng.Float64() < p {
			data[i] = 0
		} else {
			data[i] *= keep
		}
	}

	return out, nil
}
