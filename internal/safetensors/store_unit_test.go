package safetensors

import (
	"encoding/binary"
	"math"
	"strings"
	"testing"
)

func TestDecodeTensorDataHalfPrecision(t *testing.T) {
	tests := []struct {
		name  string
		dtype string
		bits  uint16
		want  float64
	}{
		{name: "f16 one", dtype: dtypeF16, bits: 0x3c00, want: 1},
		{name: "f16 negative two", dtype: dtypeF16, bits: 0xc000, want: -2},
		{name: "f16 max normal", dtype: dtypeF16, bits: 0x7bff, want: 65504},
		{name: "f16 smallest subnormal", dtype: dtypeF16, bits: 0x0001, want: math.Ldexp(1, -24)},
		{name: "f16 subnormal half of smallest normal", dtype: dtypeF16, bits: 0x0200, want: math.Ldexp(1, -15)},
		{name: "f16 negative infinity", dtype: dtypeF16, bits: 0xfc00, want: math.Inf(-1)},
		{name: "f16 NaN", dtype: dtypeF16, bits: 0x7e00, want: math.NaN()},
		{name: "bf16 one", dtype: dtypeBF16, bits: 0x3f80, want: 1},
		{name: "bf16 minus half", dtype: dtypeBF16, bits: 0xbf00, want: -0.5},
		{name: "bf16 lowercase dtype", dtype: "bf16", bits: 0x4040, want: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := binary.LittleEndian.AppendUint16(nil, tt.bits)

			got, err := decodeTensorData(raw, tt.dtype, []int64{1})
			if err != nil {
				t.Fatalf("decodeTensorData: %v", err)
			}

			if math.IsNaN(tt.want) {
				if !math.IsNaN(got[0]) {
					t.Fatalf("0x%04x decoded to %v; want NaN", tt.bits, got[0])
				}

				return
			}

			if got[0] != tt.want {
				t.Fatalf("0x%04x decoded to %v; want %v", tt.bits, got[0], tt.want)
			}
		})
	}
}

func TestDecodeTensorDataF64KeepsExactBits(t *testing.T) {
	want := []float64{math.Pi, -1e-300, math.MaxFloat64, math.Copysign(0, -1)}

	var raw []byte
	for _, v := range want {
		raw = binary.LittleEndian.AppendUint64(raw, math.Float64bits(v))
	}

	got, err := decodeTensorData(raw, dtypeF64, []int64{2, 2})
	if err != nil {
		t.Fatalf("decodeTensorData: %v", err)
	}

	for i := range want {
		if math.Float64bits(got[i]) != math.Float64bits(want[i]) {
			t.Fatalf("element %d: bits %x, want %x", i, math.Float64bits(got[i]), math.Float64bits(want[i]))
		}
	}
}

func TestDecodeTensorDataShortBuffer(t *testing.T) {
	_, err := decodeTensorData(make([]byte, 12), dtypeF64, []int64{2})
	if err == nil || !strings.Contains(err.Error(), "need 16 bytes") {
		t.Fatalf("err = %v, want short buffer error", err)
	}
}

func TestShapeElementCount(t *testing.T) {
	tests := []struct {
		name    string
		shape   []int64
		want    int64
		wantErr bool
	}{
		{name: "scalar", shape: nil, want: 1},
		{name: "sequence", shape: []int64{2, 128, 64}, want: 16384},
		{name: "empty axis", shape: []int64{4, 0, 8}, want: 0},
		{name: "negative", shape: []int64{3, -1}, wantErr: true},
		{name: "overflow", shape: []int64{math.MaxInt64 / 2, 3}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := shapeElementCount(tt.shape)
			if (err != nil) != tt.wantErr {
				t.Fatalf("shapeElementCount(%v) error = %v; wantErr %v", tt.shape, err, tt.wantErr)
			}

			if !tt.wantErr && got != tt.want {
				t.Fatalf("shapeElementCount(%v) = %d; want %d", tt.shape, got, tt.want)
			}
		})
	}
}

func TestSummarizeNames(t *testing.T) {
	if got := summarizeNames(nil); got != "none" {
		t.Errorf("summarizeNames(nil) = %q", got)
	}

	if got := summarizeNames([]string{"x", "y"}); got != "x, y" {
		t.Errorf("summarizeNames = %q", got)
	}

	many := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}
	if got := summarizeNames(many); !strings.HasSuffix(got, "h, ...") {
		t.Errorf("summarizeNames(10 names) = %q, want truncated after 8", got)
	}
}
