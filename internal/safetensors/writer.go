package safetensors

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
)

const metadataKey = "__metadata__"

// EncodeOptions controls the on-disk layout. The zero value writes F64 and
// no metadata.
type EncodeOptions struct {
	// DType is "F64" (default) or "F32".
	DType    string
	Metadata map[string]string
}

// EncodeTensors serializes tensors into safetensors format.
func EncodeTensors(tensors []Tensor, opts EncodeOptions) ([]byte, error) {
	if len(tensors) == 0 {
		return nil, errors.New("safetensors: no tensors to encode")
	}

	dtype := strings.ToUpper(strings.TrimSpace(opts.DType))
	if dtype == "" {
		dtype = dtypeF64
	}

	if dtype != dtypeF64 && dtype != dtypeF32 {
		return nil, fmt.Errorf("safetensors: cannot encode dtype %q (expected F64|F32)", opts.DType)
	}

	elemBytes, _ := dtypeBytes(dtype)

	sorted := make([]Tensor, len(tensors))
	copy(sorted, tensors)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Name < sorted[j].Name
	})

	header := make(map[string]any, len(sorted)+1)
	raw := make([]byte, 0, estimateTensorBytes(sorted, elemBytes))

	for _, tensor := range sorted {
		name := strings.TrimSpace(tensor.Name)
		if name == "" || name == metadataKey {
			return nil, fmt.Errorf("safetensors: invalid tensor name %q", tensor.Name)
		}

		if _, exists := header[name]; exists {
			return nil, fmt.Errorf("safetensors: duplicate tensor name %q", name)
		}

		elemCount, err := shapeElementCount(tensor.Shape)
		if err != nil {
			return nil, fmt.Errorf("safetensors: tensor %q: %w", name, err)
		}

		if int64(len(tensor.Data)) != elemCount {
			return nil, fmt.Errorf(
				"safetensors: tensor %q shape %v expects %d elements, got %d",
				name,
				tensor.Shape,
				elemCount,
				len(tensor.Data),
			)
		}

		start := len(raw)

		raw = append(raw, make([]byte, len(tensor.Data)*elemBytes)...)
		for i, v := range tensor.Data {
			if dtype == dtypeF64 {
				binary.LittleEndian.PutUint64(raw[start+i*8:], math.Float64bits(v))
			} else {
				binary.LittleEndian.PutUint32(raw[start+i*4:], math.Float32bits(float32(v)))
			}
		}

		end := len(raw)

		header[name] = storeHeaderEntry{
			DType:   dtype,
			Shape:   append([]int64(nil), tensor.Shape...),
			Offsets: [2]int{start, end},
		}
	}

	if len(opts.Metadata) > 0 {
		header[metadataKey] = opts.Metadata
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("safetensors: encode header: %w", err)
	}

	out := make([]byte, 0, 8+len(headerJSON)+len(raw))
	lenPrefix := make([]byte, 8)
	binary.LittleEndian.PutUint64(lenPrefix, uint64(len(headerJSON)))
	out = append(out, lenPrefix...)
	out = append(out, headerJSON...)
	out = append(out, raw...)

	return out, nil
}

// WriteFile writes tensors into a .safetensors file.
func WriteFile(path string, tensors []Tensor, opts EncodeOptions) error {
	data, err := EncodeTensors(tensors, opts)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("safetensors: write %s: %w", path, err)
	}

	return nil
}

func estimateTensorBytes(tensors []Tensor, elemBytes int) int {
	total := 0
	for _, tensor := range tensors {
		total += len(tensor.Data) * elemBytes
	}

	return total
}
