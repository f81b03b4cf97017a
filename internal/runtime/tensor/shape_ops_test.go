package tensor

import "testing"

func TestNarrow(t *testing.T) {
	x, _ := New([]float64{1, 2, 3, 4, 5, 6}, []int64{2, 3})

	out, err := x.Narrow(1, 1, 2)
	if err != nil {
		t.Fatalf("narrow: %v", err)
	}

	if got := out.Shape(); !equalI64(got, []int64{2, 2}) {
		t.Fatalf("shape = %v, want [2 2]", got)
	}

	want := []float64{2, 3, 5, 6}
	if got := out.Data(); !equalF64(got, want, 0) {
		t.Fatalf("data = %v, want %v", got, want)
	}

	if _, err := x.Narrow(1, 2, 2); err == nil {
		t.Fatal("expected out-of-bounds narrow error")
	}
}

func TestChunkLastDim(t *testing.T) {
	x, _ := New([]float64{1, 2, 3, 4, 5, 6, 7, 8}, []int64{2, 4})

	parts, err := x.Chunk(2, -1)
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}

	if len(parts) != 2 {
		t.Fatalf("len(parts) = %d, want 2", len(parts))
	}

	if got := parts[0].Data(); !equalF64(got, []float64{1, 2, 5, 6}, 0) {
		t.Fatalf("part 0 = %v", got)
	}

	if got := parts[1].Data(); !equalF64(got, []float64{3, 4, 7, 8}, 0) {
		t.Fatalf("part 1 = %v", got)
	}

	if _, err := x.Chunk(3, -1); err == nil {
		t.Fatal("expected indivisible chunk error")
	}
}

func TestConcatDim1(t *testing.T) {
	a, _ := New([]float64{1, 2, 3, 4}, []int64{1, 2, 2})
	b, _ := New([]float64{5, 6, 7, 8}, []int64{1, 2, 2})

	out, err := Concat([]*Tensor{a, b}, 1)
	if err != nil {
		t.Fatalf("concat: %v", err)
	}

	if got := out.Shape(); !equalI64(got, []int64{1, 4, 2}) {
		t.Fatalf("shape = %v, want [1 4 2]", got)
	}

	want := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	if got := out.Data(); !equalF64(got, want, 0) {
		t.Fatalf("data = %v, want %v", got, want)
	}
}

func TestConcatLastDimInvertsChunk(t *testing.T) {
	x, _ := New(seqData(2*3*4), []int64{2, 3, 4})

	parts, err := x.Chunk(2, -1)
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}

	back, err := Concat(parts, -1)
	if err != nil {
		t.Fatalf("concat: %v", err)
	}

	if !equalF64(back.Data(), x.Data(), 0) {
		t.Fatalf("concat(chunk(x)) != x")
	}
}

func TestConcatErrors(t *testing.T) {
	a, _ := Zeros([]int64{2, 2})
	b, _ := Zeros([]int64{3, 2})

	if _, err := Concat(nil, 0); err == nil {
		t.Fatal("expected error for empty concat")
	}

	if _, err := Concat([]*Tensor{a, b}, 1); err == nil {
		t.Fatal("expected mismatched shape error")
	}

	if _, err := Concat([]*Tensor{a, nil}, 0); err == nil {
		t.Fatal("expected nil tensor error")
	}
}

func TestSumAlongAndRepeat(t *testing.T) {
	x, _ := New([]float64{1, 2, 3, 4, 5, 6}, []int64{1, 3, 2})

	sum, err := SumAlong(x, 1)
	if err != nil {
		t.Fatalf("sum: %v", err)
	}

	if got := sum.Shape(); !equalI64(got, []int64{1, 1, 2}) {
		t.Fatalf("sum shape = %v", got)
	}

	if got := sum.Data(); !equalF64(got, []float64{9, 12}, 0) {
		t.Fatalf("sum = %v, want [9 12]", got)
	}

	rep, err := Repeat(sum, 1, 3)
	if err != nil {
		t.Fatalf("repeat: %v", err)
	}

	want := []float64{9, 12, 9, 12, 9, 12}
	if got := rep.Data(); !equalF64(got, want, 0) {
		t.Fatalf("repeat = %v, want %v", got, want)
	}

	if _, err := Repeat(x, 1, 2); err == nil {
		t.Fatal("expected error repeating non-singleton dim")
	}
}
