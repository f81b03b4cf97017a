package tensor

import (
	"errors"
	"fmt"
)

// ErrShapeMismatch is matched by every ShapeError via errors.Is.
var ErrShapeMismatch = errors.New("shape mismatch")

// ShapeError reports incompatible operand shapes. It is returned before any
// arithmetic runs, so no partial output exists when it is seen.
type ShapeError struct {
	Op   string
	Arg  string
	Want []int64
	Got  []int64
}

func (e *ShapeError) Error() string {
	if e.Want == nil {
		return fmt.Sprintf("%s: %s: %s has shape %v", e.Op, ErrShapeMismatch, e.Arg, e.Got)
	}

	return fmt.Sprintf("%s: %s: %s has shape %v, want %v", e.Op, ErrShapeMismatch, e.Arg, e.Got, e.Want)
}

func (e *ShapeError) Is(target error) bool {
	return target == ErrShapeMismatch
}

// Operand names a tensor argument for shape checks.
type Operand struct {
	Name   string
	Tensor *Tensor
}

// RequireSameShape checks that every operand is non-nil, has the given rank
// and shares the first operand's shape.
func RequireSameShape(op string, rank int, operands ...Operand) error {
	if len(operands) == 0 {
		return nil
	}

	var want []int64

	for i, o := range operands {
		if o.Tensor == nil {
			return &ShapeError{Op: op, Arg: o.Name + " (nil)"}
		}

		if rank > 0 && o.Tensor.Rank() != rank {
			return &ShapeError{Op: op, Arg: o.Name, Got: o.Tensor.Shape(), Want: rankPlaceholder(rank)}
		}

		if i == 0 {
			want = o.Tensor.shape
			continue
		}

		if !equalShape(o.Tensor.shape, want) {
			return &ShapeError{Op: op, Arg: o.Name, Got: o.Tensor.Shape(), Want: append([]int64(nil), want...)}
		}
	}

	return nil
}

// rankPlaceholder renders an expected rank as a shape of -1 entries.
func rankPlaceholder(rank int) []int64 {
	out := make([]int64, rank)
	for i := range out {
		out[i] = -1
	}

	return out
}
