package safetensors

import (
	"fmt"

	"github.com/example/go-summer/internal/runtime/tensor"
)

// Tensor holds a single array loaded from or destined for a safetensors
// file.
type Tensor struct {
	Name  string
	Shape []int64
	Data  []float64
}

// FromRuntime wraps a runtime tensor under name. The data is copied.
func FromRuntime(name string, t *tensor.Tensor) Tensor {
	return Tensor{Name: name, Shape: t.Shape(), Data: t.Data()}
}

// Runtime converts t into a runtime tensor.
func (t *Tensor) Runtime() (*tensor.Tensor, error) {
	return tensor.New(t.Data, t.Shape)
}

// LoadSequence reads the (batch, N, d) array called name from path, or the
// first array when name is empty. A 2D [N, d] array is read as batch 1.
func LoadSequence(path, name string) (*tensor.Tensor, error) {
	store, err := OpenStore(path)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	if name == "" {
		names := store.Names()
		if len(names) == 0 {
			return nil, fmt.Errorf("safetensors: %s holds no tensors", path)
		}

		name = names[0]
	}

	t, err := store.Tensor(name)
	if err != nil {
		return nil, err
	}

	return normalizeSequenceShape(t)
}

func normalizeSequenceShape(t *Tensor) (*tensor.Tensor, error) {
	switch len(t.Shape) {
	case 2:
		// [N, d] -> [1, N, d]
		return tensor.New(t.Data, []int64{1, t.Shape[0], t.Shape[1]})
	case 3:
		return t.Runtime()
	default:
		return nil, fmt.Errorf("safetensors: sequence %q has %dD shape %v, expected 2D or 3D", t.Name, len(t.Shape), t.Shape)
	}
}
