package ops

import "fmt"

// Tolerance defines acceptable numeric drift against a reference computation.
type Tolerance struct {
	Abs float64
	Rel float64
}

// KernelTolerances defines per-kernel parity targets used by the tests and by
// `summer check` when comparing parallel kernels to sequential references.
var KernelTolerances = map[string]Tolerance{
	"linear":        {Abs: 1e-12, Rel: 1e-12},
	"softmax":       {Abs: 1e-12, Rel: 1e-12},
	"rms_norm":      {Abs: 1e-12, Rel: 1e-12},
	"conv1d":        {Abs: 1e-12, Rel: 1e-12},
	"scan":          {Abs: 1e-9, Rel: 1e-5},
	"scan_backward": {Abs: 1e-6, Rel: 1e-4},
	"summarizer":    {Abs: 1e-9, Rel: 1e-9},
}

func KernelTolerance(name string) (Tolerance, error) {
	t, ok := KernelTolerances[name]
	if !ok {
		return Tolerance{}, fmt.Errorf("ops: no tolerance configured for kernel %q", name)
	}

	return t, nil
}

// Within reports whether got is within the tolerance of want.
func (t Tolerance) Within(got, want float64) bool {
	diff := got - want
	if diff < 0 {
		diff = -diff
	}

	scale := want
	if scale < 0 {
		scale = -scale
	}

	return diff <= t.Abs+t.Rel*scale
}
