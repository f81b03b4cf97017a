package safetensors

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/example/go-summer/internal/runtime/tensor"
)

// tensorMeta describes a single tensor in the safetensors header.
type tensorMeta struct {
	DType   string  `json:"dtype"`
	Shape   []int64 `json:"shape"`
	Offsets [2]int  `json:"data_offsets"`
}

type rawTensor struct {
	dtype string
	shape []int64
	data  []byte
}

// buildSafetensors creates a .safetensors blob by hand, independent of
// EncodeTensors.
func buildSafetensors(t *testing.T, tensors map[string]rawTensor) []byte {
	t.Helper()

	header := make(map[string]tensorMeta)

	var rawData []byte

	for name, info := range tensors {
		start := len(rawData)
		rawData = append(rawData, info.data...)
		header[name] = tensorMeta{
			DType:   info.dtype,
			Shape:   info.shape,
			Offsets: [2]int{start, start + len(info.data)},
		}
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		t.Fatalf("marshal header: %v", err)
	}

	// 8-byte LE header length + JSON header + tensor data.
	var buf []byte

	lenBuf := make([]byte, 8)
	binary.LittleEndian.PutUint64(lenBuf, uint64(len(headerJSON)))
	buf = append(buf, lenBuf...)
	buf = append(buf, headerJSON...)
	buf = append(buf, rawData...)

	return buf
}

func float32Bytes(vals []float32) []byte {
	buf := make([]byte, len(vals)*4)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}

	return buf
}

func float64Bytes(vals []float64) []byte {
	buf := make([]byte, len(vals)*8)
	for i, v := range vals {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}

	return buf
}

func writeTempSafetensors(t *testing.T, data []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.safetensors")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write temp safetensors: %v", err)
	}

	return path
}

func TestLoadSequence_3D(t *testing.T) {
	path := writeTempSafetensors(t, buildSafetensors(t, map[string]rawTensor{
		"x": {dtype: "F64", shape: []int64{2, 2, 1}, data: float64Bytes([]float64{1, 2, 3, 4})},
	}))

	got, err := LoadSequence(path, "")
	if err != nil {
		t.Fatalf("LoadSequence: %v", err)
	}

	want := []int64{2, 2, 1}
	if !equalShape(got.Shape(), want) {
		t.Fatalf("shape = %v; want %v", got.Shape(), want)
	}

	if got.RawData()[3] != 4 {
		t.Fatalf("data = %v", got.RawData())
	}
}

func TestLoadSequence_2DGetsBatchAxis(t *testing.T) {
	path := writeTempSafetensors(t, buildSafetensors(t, map[string]rawTensor{
		"embeddings": {dtype: "F32", shape: []int64{3, 2}, data: float32Bytes([]float32{1, 2, 3, 4, 5, 6})},
	}))

	got, err := LoadSequence(path, "embeddings")
	if err != nil {
		t.Fatalf("LoadSequence: %v", err)
	}

	if want := []int64{1, 3, 2}; !equalShape(got.Shape(), want) {
		t.Fatalf("shape = %v; want %v", got.Shape(), want)
	}
}

func TestLoadSequence_Errors(t *testing.T) {
	path := writeTempSafetensors(t, buildSafetensors(t, map[string]rawTensor{
		"flat": {dtype: "F32", shape: []int64{4}, data: float32Bytes([]float32{1, 2, 3, 4})},
	}))

	if _, err := LoadSequence(path, "flat"); err == nil {
		t.Error("1D array should be rejected")
	}

	if _, err := LoadSequence(path, "missing"); err == nil {
		t.Error("missing name should fail")
	}

	if _, err := LoadSequence(filepath.Join(t.TempDir(), "absent.safetensors"), ""); err == nil {
		t.Error("missing file should fail")
	}
}

func TestRuntimeConversion(t *testing.T) {
	rt, err := tensor.New([]float64{1, 2, 3, 4, 5, 6}, []int64{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}

	st := FromRuntime("y", rt)
	rt.RawData()[0] = 100

	if st.Data[0] != 1 {
		t.Fatal("FromRuntime aliases the runtime tensor's data")
	}

	back, err := st.Runtime()
	if err != nil {
		t.Fatalf("Runtime: %v", err)
	}

	if !equalShape(back.Shape(), []int64{1, 2, 3}) || back.RawData()[5] != 6 {
		t.Fatalf("Runtime() = %v %v", back.Shape(), back.RawData())
	}
}
