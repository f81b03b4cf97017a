package tensor

import (
	"errors"
	"fmt"
)

// Narrow slices the tensor along a single dimension.
func (t *Tensor) Narrow(dim int, start, length int64) (*Tensor, error) {
	if t == nil {
		return nil, errors.New("tensor: narrow on nil tensor")
	}

	dim, err := normalizeDim(dim, len(t.shape))
	if err != nil {
		return nil, fmt.Errorf("tensor: narrow: %w", err)
	}

	if start < 0 || length < 0 || start+length > t.shape[dim] {
		return nil, fmt.Errorf("tensor: narrow: range [%d:%d] out of bounds for dim %d size %d", start, start+length, dim, t.shape[dim])
	}

	outShape := append([]int64(nil), t.shape...)
	outShape[dim] = length

	out, err := Zeros(outShape)
	if err != nil {
		return nil, err
	}

	outer, inner := splitAround(t.shape, dim)
	srcDim := t.shape[dim]
	span := length * inner

	for o := range outer {
		srcBase := o*srcDim*inner + start*inner
		dstBase := o * span
		copy(out.data[dstBase:dstBase+span], t.data[srcBase:srcBase+span])
	}

	return out, nil
}

// Chunk splits the tensor into n equal parts along dim.
func (t *Tensor) Chunk(n int, dim int) ([]*Tensor, error) {
	if t == nil {
		return nil, errors.New("tensor: chunk on nil tensor")
	}

	if n <= 0 {
		return nil, fmt.Errorf("tensor: chunk count must be > 0, got %d", n)
	}

	d, err := normalizeDim(dim, len(t.shape))
	if err != nil {
		return nil, fmt.Errorf("tensor: chunk: %w", err)
	}

	size := t.shape[d]
	if size%int64(n) != 0 {
		return nil, fmt.Errorf("tensor: chunk: dim %d size %d not divisible by %d", d, size, n)
	}

	step := size / int64(n)
	parts := make([]*Tensor, n)

	for i := range n {
		parts[i], err = t.Narrow(d, int64(i)*step, step)
		if err != nil {
			return nil, err
		}
	}

	return parts, nil
}

// Concat concatenates tensors along dim.
func Concat(tensors []*Tensor, dim int) (*Tensor, error) {
	if len(tensors) == 0 {
		return nil, errors.New("tensor: concat requires at least one tensor")
	}

	first := tensors[0]
	if first == nil {
		return nil, errors.New("tensor: concat tensor 0 is nil")
	}

	rank := len(first.shape)

	dim, err := normalizeDim(dim, rank)
	if err != nil {
		return nil, fmt.Errorf("tensor: concat: %w", err)
	}

	outShape := append([]int64(nil), first.shape...)
	outShape[dim] = 0

	for i, t := range tensors {
		if t == nil {
			return nil, fmt.Errorf("tensor: concat tensor %d is nil", i)
		}

		if len(t.shape) != rank {
			return nil, fmt.Errorf("tensor: concat tensor %d rank %d does not match rank %d", i, len(t.shape), rank)
		}

		for d := range rank {
			if d == dim {
				continue
			}

			if t.shape[d] != first.shape[d] {
				return nil, fmt.Errorf("tensor: concat tensor %d shape %v does not match base shape %v on dim %d", i, t.shape, first.shape, d)
			}
		}

		outShape[dim] += t.shape[dim]
	}

	out, err := Zeros(outShape)
	if err != nil {
		return nil, err
	}

	outer, inner := splitAround(outShape, dim)
	outDim := outShape[dim]

	for o := range outer {
		writePos := int64(0)

		for _, t := range tensors {
			span := t.shape[dim] * inner
			srcBase := o * t.shape[dim] * inner
			dstBase := o*outDim*inner + writePos
			copy(out.data[dstBase:dstBase+span], t.data[srcBase:srcBase+span])
			writePos += span
		}
	}

	return out, nil
}

// SumAlong reduces dim by summation, keeping it with size 1.
func SumAlong(x *Tensor, dim int) (*Tensor, error) {
	if x == nil {
		return nil, errors.New("tensor: sum on nil tensor")
	}

	dim, err := normalizeDim(dim, len(x.shape))
	if err != nil {
		return nil, fmt.Errorf("tensor: sum: %w", err)
	}

	outShape := append([]int64(nil), x.shape...)
	outShape[dim] = 1

	out, err := Zeros(outShape)
	if err != nil {
		return nil, err
	}

	outer, inner := splitAround(x.shape, dim)
	axis := x.shape[dim]

	for o := range outer {
		dst := out.data[o*inner : (o+1)*inner]
		for k := range axis {
			base := (o*axis + k) * inner
			for i, v := range x.data[base : base+inner] {
				dst[i] += v
			}
		}
	}

	return out, nil
}

// Repeat tiles a size-1 dimension n times.
func Repeat(x *Tensor, dim int, n int64) (*Tensor, error) {
	if x == nil {
		return nil, errors.New("tensor: repeat on nil tensor")
	}

	dim, err := normalizeDim(dim, len(x.shape))
	if err != nil {
		return nil, fmt.Errorf("tensor: repeat: %w", err)
	}

	if x.shape[dim] != 1 {
		return nil, fmt.Errorf("tensor: repeat requires size-1 dim, dim %d has size %d", dim, x.shape[dim])
	}

	if n <= 0 {
		return nil, fmt.Errorf("tensor: repeat count must be > 0, got %d", n)
	}

	outShape := append([]int64(nil), x.shape...)
	outShape[dim] = n

	out, err := Zeros(outShape)
	if err != nil {
		return nil, err
	}

	outer, inner := splitAround(x.shape, dim)

	for o := range outer {
		src := x.data[o*inner : (o+1)*inner]
		for k := range n {
			base := (o*n + k) * inner
			copy(out.data[base:base+inner], src)
		}
	}

	return out, nil
}

// splitAround returns the element counts before and after dim.
func splitAround(shape []int64, dim int) (outer, inner int64) {
	outer, inner = 1, 1
	for i := range dim {
		outer *= shape[i]
	}

	for i := dim + 1; i < len(shape); i++ {
		inner *= shape[i]
	}

	return outer, inner
}
