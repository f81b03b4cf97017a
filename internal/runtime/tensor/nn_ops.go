package tensor

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/floats"
)

// Softmax applies softmax along dim.
func Softmax(x *Tensor, dim int) (*Tensor, error) {
	if x == nil {
		return nil, errors.New("tensor: softmax on nil tensor")
	}

	if len(x.shape) == 0 {
		return nil, errors.New("tensor: softmax requires rank >= 1")
	}

	dim, err := normalizeDim(dim, len(x.shape))
	if err != nil {
		return nil, fmt.Errorf("tensor: softmax: %w", err)
	}

	axis := x.shape[dim]
	if axis <= 0 {
		return nil, fmt.Errorf("tensor: softmax axis dimension must be > 0, got %d", axis)
	}

	outer, inner := splitAround(x.shape, dim)
	out := x.Clone()

	var zeroSum atomic.Bool

	ParallelFor(int(outer*inner), Workers(), func(lo, hi int) {
		for lane := lo; lane < hi; lane++ {
			o := int64(lane) / inner
			in := int64(lane) % inner
			base := o*axis*inner + in
			maxV := math.Inf(-1)

			for k := range axis {
				if v := out.data[base+k*inner]; v > maxV {
					maxV = v
				}
			}

			var sum float64

			for k := range axis {
				i := base + k*inner
				e := math.Exp(out.data[i] - maxV)
				out.data[i] = e
				sum += e
			}

			if sum == 0 {
				zeroSum.Store(true)
				continue
			}

			inv := 1 / sum
			for k := range axis {
				out.data[base+k*inner] *= inv
			}
		}
	})

	if zeroSum.Load() {
		return nil, errors.New("tensor: softmax encountered zero normalization sum")
	}

	return out, nil
}

// RMSNorm scales each vector along the last dimension by the reciprocal of
// its root mean square. No mean is subtracted. weight is optional.
func RMSNorm(x, weight *Tensor, eps float64) (*Tensor, error) {
	if x == nil {
		return nil, errors.New("tensor: rmsnorm input is nil")
	}

	if x.Rank() < 1 {
		return nil, errors.New("tensor: rmsnorm requires rank >= 1")
	}

	if eps <= 0 {
		return nil, errors.New("tensor: rmsnorm eps must be > 0")
	}

	d := int(x.shape[len(x.shape)-1])
	if d <= 0 {
		return nil, errors.New("tensor: rmsnorm last dimension must be > 0")
	}

	if weight != nil && (weight.Rank() != 1 || int(weight.shape[0]) != d) {
		return nil, fmt.Errorf("tensor: rmsnorm weight shape %v does not match last dimension %d", weight.shape, d)
	}

	out := x.Clone()
	rows := len(out.data) / d

	ParallelFor(rows, Workers(), func(lo, hi int) {
		for r := lo; r < hi; r++ {
			row := out.data[r*d : (r+1)*d]
			ms := floats.Dot(row, row) / float64(d)
			floats.Scale(1/math.Sqrt(ms+eps), row)

			if weight != nil {
				floats.Mul(row, weight.data)
			}
		}
	})

	return out, nil
}

// Linear applies y = x * W^T + b where weight shape is [out, in].
func Linear(x, weight, bias *Tensor) (*Tensor, error) {
	if x == nil || weight == nil {
		return nil, errors.New("tensor: linear requires non-nil x and weight")
	}

	if x.Rank() < 1 {
		return nil, errors.New("tensor: linear requires x rank >= 1")
	}

	if weight.Rank() != 2 {
		return nil, fmt.Errorf("tensor: linear weight must be rank 2, got %d", weight.Rank())
	}

	in := x.shape[x.Rank()-1]

	out := weight.shape[0]
	if weight.shape[1] != in {
		return nil, fmt.Errorf("tensor: linear mismatch: x last dim %d, weight in dim %d", in, weight.shape[1])
	}

	if in <= 0 || out <= 0 {
		return nil, fmt.Errorf("tensor: linear requires positive dims, got in=%d out=%d", in, out)
	}

	if bias != nil {
		if bias.Rank() != 1 || bias.shape[0] != out {
			return nil, fmt.Errorf("tensor: linear bias shape %v does not match out dim %d", bias.shape, out)
		}
	}

	inI := int(in)
	outI := int(out)
	rows := len(x.data) / inI
	outData := make([]float64, rows*outI)

	w := blas64.General{Rows: outI, Cols: inI, Stride: inI, Data: weight.data}

	// Rows are independent, so each worker runs its own GEMM on a row band.
	ParallelFor(rows, Workers(), func(lo, hi int) {
		xs := blas64.General{Rows: hi - lo, Cols: inI, Stride: inI, Data: x.data[lo*inI : hi*inI]}
		ys := blas64.General{Rows: hi - lo, Cols: outI, Stride: outI, Data: outData[lo*outI : hi*outI]}
		blas64.Gemm(blas.NoTrans, blas.Trans, 1, xs, w, 0, ys)

		if bias != nil {
			for r := lo; r < hi; r++ {
				floats.Add(outData[r*outI:(r+1)*outI], bias.data)
			}
		}
	})

	outShape := make([]int64, x.Rank())
	copy(outShape, x.shape[:x.Rank()-1])
	outShape[x.Rank()-1] = out

	return newOwned(outData, outShape), nil
}

// Scale returns x multiplied by s.
func Scale(x *Tensor, s float64) *Tensor {
	if x == nil {
		return nil
	}

	out := x.Clone()
	floats.Scale(s, out.data)

	return out
}
