package tensor

import (
	"errors"
	"testing"
)

func TestBroadcastAddMul(t *testing.T) {
	a, _ := New([]float64{1, 2, 3, 4, 5, 6}, []int64{2, 3})
	b, _ := New([]float64{10, 20, 30}, []int64{1, 3})

	add, err := BroadcastAdd(a, b)
	if err != nil {
		t.Fatalf("broadcast add: %v", err)
	}

	wantAdd := []float64{11, 22, 33, 14, 25, 36}
	if got := add.Data(); !equalF64(got, wantAdd, 0) {
		t.Fatalf("add = %v, want %v", got, wantAdd)
	}

	mul, err := BroadcastMul(a, b)
	if err != nil {
		t.Fatalf("broadcast mul: %v", err)
	}

	wantMul := []float64{10, 40, 90, 40, 100, 180}
	if got := mul.Data(); !equalF64(got, wantMul, 0) {
		t.Fatalf("mul = %v, want %v", got, wantMul)
	}
}

func TestBroadcastMulSameShapeFastPath(t *testing.T) {
	a, _ := New([]float64{1, 2, 3}, []int64{3})
	b, _ := New([]float64{4, 5, 6}, []int64{3})

	out, err := BroadcastMul(a, b)
	if err != nil {
		t.Fatalf("mul: %v", err)
	}

	if got := out.Data(); !equalF64(got, []float64{4, 10, 18}, 0) {
		t.Fatalf("mul = %v", got)
	}
}

func TestBroadcastIncompatible(t *testing.T) {
	a, _ := Zeros([]int64{2, 3})
	b, _ := Zeros([]int64{2, 4})

	if _, err := BroadcastMul(a, b); err == nil {
		t.Fatal("expected broadcast error")
	}

	if _, err := BroadcastAdd(a, nil); err == nil {
		t.Fatal("expected nil input error")
	}
}

func TestLeftPadShape(t *testing.T) {
	shape := []int64{2, 3}

	// Equal rank should return a copy.
	gotEqual := leftPadShape(shape, 2)
	if !equalI64(gotEqual, []int64{2, 3}) {
		t.Fatalf("leftPadShape equal rank = %v, want [2 3]", gotEqual)
	}

	gotEqual[0] = 99

	if shape[0] != 2 {
		t.Fatalf("leftPadShape should return a copy when rank matches, source mutated: %v", shape)
	}

	gotPadded := leftPadShape(shape, 4)
	if !equalI64(gotPadded, []int64{1, 1, 2, 3}) {
		t.Fatalf("leftPadShape padded = %v, want [1 1 2 3]", gotPadded)
	}
}

func TestBroadcastTrailingVector(t *testing.T) {
	a, _ := FromFunc([]int64{2, 2, 3}, func(i int) float64 { return float64(i) })
	b, _ := New([]float64{1, 10, 100}, []int64{3})

	out, err := BroadcastMul(a, b)
	if err != nil {
		t.Fatalf("mul: %v", err)
	}

	want := []float64{0, 10, 200, 3, 40, 500, 6, 70, 800, 9, 100, 1100}
	if got := out.Data(); !equalF64(got, want, 0) {
		t.Fatalf("mul = %v, want %v", got, want)
	}

	if !equalI64(out.Shape(), []int64{2, 2, 3}) {
		t.Fatalf("shape = %v", out.Shape())
	}
}

func TestBroadcastExpandsBothOperands(t *testing.T) {
	a, _ := New([]float64{1, 2}, []int64{2, 1})
	b, _ := New([]float64{10, 20, 30}, []int64{1, 3})

	out, err := BroadcastAdd(a, b)
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	want := []float64{11, 21, 31, 12, 22, 32}
	if got := out.Data(); !equalF64(got, want, 0) || !equalI64(out.Shape(), []int64{2, 3}) {
		t.Fatalf("add = %v %v, want %v [2 3]", got, out.Shape(), want)
	}
}

func TestBroadcastIncompatibleIsShapeError(t *testing.T) {
	a, _ := Zeros([]int64{2, 3})
	b, _ := Zeros([]int64{4})

	_, err := BroadcastAdd(a, b)
	if !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("err = %v, want ErrShapeMismatch", err)
	}
}
