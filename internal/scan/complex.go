package scan

import (
	"github.com/sourcegraph/conc/pool"

	"github.com/example/go-summer/internal/runtime/tensor"
)

// Affine is the recurrence step h -> F*h + X.
type Affine struct {
	F complex128
	X complex128
}

// Apply evaluates the step at h.
func (a Affine) Apply(h complex128) complex128 {
	return a.F*h + a.X
}

// Compose returns the step equivalent to applying a and then b:
// b(a(h)) = (a.F*b.F)*h + (b.F*a.X + b.X). Compose is associative, which is
// what lets the recurrence run through Inclusive.
func Compose(a, b Affine) Affine {
	return Affine{F: a.F * b.F, X: b.F*a.X + b.X}
}

// Complex evaluates h_t = f_t*h_{t-1} + x_t with h_0 = 0 for every
// (batch, channel) lane of four (batch, N, channels) arrays and returns the
// real and imaginary parts of h_1..h_N in the same layout. A per-channel
// multiplier is passed broadcast across N.
//
// Shapes are checked before any arithmetic. Non-finite inputs are not
// rejected; they propagate through the products like any other value.
func Complex(inRe, inIm, fRe, fIm *tensor.Tensor, opts ...Option) (outRe, outIm *tensor.Tensor, err error) {
	if err := tensor.RequireSameShape("scan: complex", 3,
		tensor.Operand{Name: "input_real", Tensor: inRe},
		tensor.Operand{Name: "input_imag", Tensor: inIm},
		tensor.Operand{Name: "f_real", Tensor: fRe},
		tensor.Operand{Name: "f_imag", Tensor: fIm},
	); err != nil {
		return nil, nil, err
	}

	cfg := newConfig(opts)
	l := newLayout(inRe)

	outRe, _ = tensor.Zeros(inRe.Shape())
	outIm, _ = tensor.Zeros(inRe.Shape())

	xr, xi := inRe.RawData(), inIm.RawData()
	ar, ai := fRe.RawData(), fIm.RawData()
	hr, hi := outRe.RawData(), outIm.RawData()

	l.forEachLane(cfg, func(base, stride int, inner config) {
		steps := make([]Affine, l.length)
		for t := range steps {
			i := base + t*stride
			steps[t] = Affine{F: complex(ar[i], ai[i]), X: complex(xr[i], xi[i])}
		}

		inclusive(steps, Compose, inner)

		for t, s := range steps {
			i := base + t*stride
			hr[i] = real(s.X)
			hi[i] = imag(s.X)
		}
	})

	return outRe, outIm, nil
}

// Sequential is the direct O(N)-depth evaluation of the same recurrence. It
// is the reference the parallel scan is checked against.
func Sequential(inRe, inIm, fRe, fIm *tensor.Tensor) (outRe, outIm *tensor.Tensor, err error) {
	if err := tensor.RequireSameShape("scan: sequential", 3,
		tensor.Operand{Name: "input_real", Tensor: inRe},
		tensor.Operand{Name: "input_imag", Tensor: inIm},
		tensor.Operand{Name: "f_real", Tensor: fRe},
		tensor.Operand{Name: "f_imag", Tensor: fIm},
	); err != nil {
		return nil, nil, err
	}

	l := newLayout(inRe)

	outRe, _ = tensor.Zeros(inRe.Shape())
	outIm, _ = tensor.Zeros(inRe.Shape())

	xr, xi := inRe.RawData(), inIm.RawData()
	ar, ai := fRe.RawData(), fIm.RawData()
	hr, hi := outRe.RawData(), outIm.RawData()

	for b := range l.batch {
		for c := range l.channels {
			var h complex128

			for t := range l.length {
				i := (b*l.length+t)*l.channels + c
				h = complex(ar[i], ai[i])*h + complex(xr[i], xi[i])
				hr[i] = real(h)
				hi[i] = imag(h)
			}
		}
	}

	return outRe, outIm, nil
}

// layout addresses the independent (batch, channel) lanes of a
// (batch, N, channels) array. Lane elements are channels apart.
type layout struct {
	batch    int
	length   int
	channels int
}

func newLayout(t *tensor.Tensor) layout {
	s := t.Shape()

	return layout{batch: int(s[0]), length: int(s[1]), channels: int(s[2])}
}

func (l layout) lanes() int { return l.batch * l.channels }

// forEachLane runs fn once per lane on a bounded goroutine pool. When there
// are fewer lanes than workers the spare workers go to the time axis of each
// lane instead.
func (l layout) forEachLane(cfg config, fn func(base, stride int, inner config)) {
	lanes := l.lanes()
	if lanes == 0 || l.length == 0 {
		return
	}

	inner := cfg
	inner.workers = max(1, cfg.workers/lanes)

	if cfg.workers <= 1 || lanes == 1 {
		for lane := range lanes {
			fn(l.base(lane), l.channels, inner)
		}

		return
	}

	p := pool.New().WithMaxGoroutines(min(cfg.workers, lanes))
	for lane := range lanes {
		p.Go(func() {
			fn(l.base(lane), l.channels, inner)
		})
	}

	p.Wait()
}

func (l layout) base(lane int) int {
	b, c := lane/l.channels, lane%l.channels

	return b*l.length*l.channels + c
}
