package scan

import (
	"math/cmplx"

	"github.com/example/go-summer/internal/runtime/tensor"
)

// Gradients holds the reverse-mode result of Complex. Each field has the
// (batch, N, channels) shape of the forward operands.
type Gradients struct {
	InRe *tensor.Tensor
	InIm *tensor.Tensor
	FRe  *tensor.Tensor
	FIm  *tensor.Tensor
}

// ComplexBackward propagates the loss gradient (gradRe, gradIm) of the
// forward outputs back to the four forward operands. outRe/outIm are the
// forward results of Complex for the same fRe/fIm.
//
// Writing g_t = dL/dRe(h_t) + i*dL/dIm(h_t), the adjoint
//
//	lambda_t = g_t + conj(f_{t+1})*lambda_{t+1},  lambda_{N+1} = 0
//
// is itself a linear recurrence running backwards in time, so it is evaluated
// with the same associative scan on the reversed lane. Then
// dL/dx_t = lambda_t and dL/df_t = conj(h_{t-1})*lambda_t with h_0 = 0.
func ComplexBackward(gradRe, gradIm, fRe, fIm, outRe, outIm *tensor.Tensor, opts ...Option) (Gradients, error) {
	if err := tensor.RequireSameShape("scan: complex backward", 3,
		tensor.Operand{Name: "grad_real", Tensor: gradRe},
		tensor.Operand{Name: "grad_imag", Tensor: gradIm},
		tensor.Operand{Name: "f_real", Tensor: fRe},
		tensor.Operand{Name: "f_imag", Tensor: fIm},
		tensor.Operand{Name: "output_real", Tensor: outRe},
		tensor.Operand{Name: "output_imag", Tensor: outIm},
	); err != nil {
		return Gradients{}, err
	}

	cfg := newConfig(opts)
	l := newLayout(gradRe)
	shape := gradRe.Shape()

	var g Gradients
	g.InRe, _ = tensor.Zeros(shape)
	g.InIm, _ = tensor.Zeros(shape)
	g.FRe, _ = tensor.Zeros(shape)
	g.FIm, _ = tensor.Zeros(shape)

	gr, gi := gradRe.RawData(), gradIm.RawData()
	ar, ai := fRe.RawData(), fIm.RawData()
	hr, hi := outRe.RawData(), outIm.RawData()
	dxr, dxi := g.InRe.RawData(), g.InIm.RawData()
	dfr, dfi := g.FRe.RawData(), g.FIm.RawData()

	n := l.length

	l.forEachLane(cfg, func(base, stride int, inner config) {
		// steps[s] drives lambda_{n-1-s} from lambda_{n-s}.
		steps := make([]Affine, n)
		for s := range steps {
			t := n - 1 - s
			i := base + t*stride

			var a complex128
			if t+1 < n {
				j := i + stride
				a = cmplx.Conj(complex(ar[j], ai[j]))
			}

			steps[s] = Affine{F: a, X: complex(gr[i], gi[i])}
		}

		inclusive(steps, Compose, inner)

		for s, st := range steps {
			t := n - 1 - s
			i := base + t*stride
			lambda := st.X

			dxr[i] = real(lambda)
			dxi[i] = imag(lambda)

			if t == 0 {
				continue
			}

			prev := complex(hr[i-stride], hi[i-stride])
			df := cmplx.Conj(prev) * lambda
			dfr[i] = real(df)
			dfi[i] = imag(df)
		}
	})

	return g, nil
}

// PerChannel sums the multiplier gradient over batch and time, giving the
// gradient of a per-channel multiplier that was broadcast across N.
func (g Gradients) PerChannel() []complex128 {
	if g.FRe == nil || g.FIm == nil || g.FRe.Rank() != 3 {
		return nil
	}

	l := newLayout(g.FRe)
	out := make([]complex128, l.channels)
	re, im := g.FRe.RawData(), g.FIm.RawData()

	for i := range re {
		c := i % l.channels
		out[c] += complex(re[i], im[i])
	}

	return out
}
