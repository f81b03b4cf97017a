package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// BroadcastAdd performs element-wise add with NumPy-style broadcasting.
func BroadcastAdd(a, b *Tensor) (*Tensor, error) {
	return broadcastBinary(a, b, floats.AddTo, func(x, y float64) float64 { return x + y }, "add")
}

// BroadcastMul performs element-wise multiply with NumPy-style broadcasting.
func BroadcastMul(a, b *Tensor) (*Tensor, error) {
	return broadcastBinary(a, b, floats.MulTo, func(x, y float64) float64 { return x * y }, "mul")
}

// rowOp writes the element-wise result of s and t into dst.
type rowOp func(dst, s, t []float64) []float64

// broadcastBinary runs vec directly when both shapes match or when b only
// repeats along the leading axes of a (a per-channel vector against a
// (batch, N, d) array). Any other broadcast falls back to per-element
// coordinate mapping with fn.
func broadcastBinary(a, b *Tensor, vec rowOp, fn func(x, y float64) float64, opName string) (*Tensor, error) {
	op := "tensor: broadcast " + opName

	if a == nil || b == nil {
		return nil, fmt.Errorf("%s requires non-nil inputs", op)
	}

	if equalShape(a.shape, b.shape) {
		out := make([]float64, len(a.data))
		vec(out, a.data, b.data)

		return newOwned(out, append([]int64(nil), a.shape...)), nil
	}

	outShape, err := broadcastShape(a.shape, b.shape)
	if err != nil {
		return nil, &ShapeError{Op: op, Arg: "b", Got: b.Shape(), Want: a.Shape()}
	}

	if inner := len(b.data); inner > 0 && equalShape(outShape, a.shape) && isTrailing(b.shape, a.shape) {
		out := make([]float64, len(a.data))
		for lo := 0; lo < len(out); lo += inner {
			vec(out[lo:lo+inner], a.data[lo:lo+inner], b.data)
		}

		return newOwned(out, outShape), nil
	}

	out, err := Zeros(outShape)
	if err != nil {
		return nil, err
	}

	aPadShape := leftPadShape(a.shape, len(outShape))
	bPadShape := leftPadShape(b.shape, len(outShape))
	aPadStrides := computeStrides(aPadShape)
	bPadStrides := computeStrides(bPadShape)
	outStrides := computeStrides(outShape)
	coord := make([]int64, len(outShape))

	for i := range out.data {
		linearToCoord(int64(i), outShape, outStrides, coord)

		var aOff, bOff int64

		for d, c := range coord {
			if aPadShape[d] != 1 {
				aOff += c * aPadStrides[d]
			}

			if bPadShape[d] != 1 {
				bOff += c * bPadStrides[d]
			}
		}

		out.data[i] = fn(a.data[aOff], b.data[bOff])
	}

	return out, nil
}

// isTrailing reports whether inner, ignoring leading ones, equals the last
// dimensions of outer.
func isTrailing(inner, outer []int64) bool {
	for len(inner) > 0 && inner[0] == 1 {
		inner = inner[1:]
	}

	if len(inner) > len(outer) {
		return false
	}

	return equalShape(inner, outer[len(outer)-len(inner):])
}

func broadcastShape(a, b []int64) ([]int64, error) {
	outRank := max(len(a), len(b))

	out := make([]int64, outRank)
	for i := range outRank {
		ad := int64(1)
		if j := i - (outRank - len(a)); j >= 0 {
			ad = a[j]
		}

		bd := int64(1)
		if j := i - (outRank - len(b)); j >= 0 {
			bd = b[j]
		}

		switch {
		case ad == bd || ad == 1:
			out[i] = bd
		case bd == 1:
			out[i] = ad
		default:
			return nil, fmt.Errorf("cannot broadcast shapes %v and %v", a, b)
		}
	}

	return out, nil
}

func leftPadShape(shape []int64, rank int) []int64 {
	out := make([]int64, rank)

	pad := rank - len(shape)
	for i := range pad {
		out[i] = 1
	}

	copy(out[pad:], shape)

	return out
}
