package doctor

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat"

	"github.com/example/go-summer/internal/mixer"
	"github.com/example/go-summer/internal/runtime/ops"
	"github.com/example/go-summer/internal/runtime/tensor"
	"github.com/example/go-summer/internal/scan"
	"github.com/example/go-summer/internal/ssm"
)

// DefaultChecks returns the stability, correctness and contract properties
// of the state-space parameters, the scan and the global summarizer.
func DefaultChecks() []Check {
	return []Check{
		{Name: "init decay bounds", Run: checkInitBounds},
		{Name: "stability bound", Run: checkStabilityBound},
		{Name: "scan matches sequential", Run: checkScanMatchesSequential},
		{Name: "literal scenario", Run: checkLiteralScenario},
		{Name: "summary constant in time", Run: checkSummaryConstant},
		{Name: "shape contract", Run: checkShapeContract},
		{Name: "reverse mode", Run: checkReverseMode},
	}
}

func checkInitBounds(rng *rand.Rand, _ []scan.Option) error {
	const samples = 10000

	p, err := ssm.New(samples, ssm.WithBounds(ssm.DefaultRMin, ssm.DefaultRMax), ssm.WithRand(rng))
	if err != nil {
		return err
	}

	for c, nu := range p.Coefficients().Nu {
		if nu <= ssm.DefaultRMin || nu >= ssm.DefaultRMax {
			return fmt.Errorf("channel %d: nu = %g outside (%g, %g)", c, nu, ssm.DefaultRMin, ssm.DefaultRMax)
		}
	}

	return nil
}

func checkStabilityBound(rng *rand.Rand, opts []scan.Option) error {
	const (
		n        = 10000
		channels = 4
		nu       = 0.99
	)

	shape := []int64{1, n, channels}
	thetas := make([]float64, channels)

	for c := range thetas {
		thetas[c] = 2 * math.Pi * rng.Float64()
	}

	fRe, fIm, err := channelMultipliers(shape, func(c int) complex128 { return cmplx.Rect(nu, thetas[c]) })
	if err != nil {
		return err
	}

	// Unit-disk inputs, |x| <= 1.
	xs := make([]complex128, n*channels)
	for i := range xs {
		xs[i] = cmplx.Rect(rng.Float64(), 2*math.Pi*rng.Float64())
	}

	inRe, _ := tensor.FromFunc(shape, func(i int) float64 { return real(xs[i]) })
	inIm, _ := tensor.FromFunc(shape, func(i int) float64 { return imag(xs[i]) })

	hr, hi, err := scan.Complex(inRe, inIm, fRe, fIm, opts...)
	if err != nil {
		return err
	}

	bound := 1 / (1 - nu) * (1 + 1e-9)
	im := hi.RawData()

	for i, re := range hr.RawData() {
		if m := math.Hypot(re, im[i]); m > bound {
			return fmt.Errorf("|h| = %g at index %d exceeds %g", m, i, bound)
		}
	}

	return nil
}

func checkScanMatchesSequential(rng *rand.Rand, opts []scan.Option) error {
	tol, err := ops.KernelTolerance("scan")
	if err != nil {
		return err
	}

	for _, n := range []int64{1, 2, 7, 1024} {
		shape := []int64{2, n, 3}
		xr, xi := uniform(rng, shape, -1, 1), uniform(rng, shape, -1, 1)

		// |f| < 1 via polar sampling.
		fs := make([]complex128, int(n)*6)
		for i := range fs {
			fs[i] = cmplx.Rect(0.999*rng.Float64(), 2*math.Pi*rng.Float64())
		}

		fr, _ := tensor.FromFunc(shape, func(i int) float64 { return real(fs[i]) })
		fi, _ := tensor.FromFunc(shape, func(i int) float64 { return imag(fs[i]) })

		gotRe, gotIm, err := scan.Complex(xr, xi, fr, fi, opts...)
		if err != nil {
			return err
		}

		wantRe, wantIm, err := scan.Sequential(xr, xi, fr, fi)
		if err != nil {
			return err
		}

		if err := compare(fmt.Sprintf("n=%d real", n), gotRe, wantRe, tol); err != nil {
			return err
		}

		if err := compare(fmt.Sprintf("n=%d imag", n), gotIm, wantIm, tol); err != nil {
			return err
		}
	}

	return nil
}

func checkLiteralScenario(_ *rand.Rand, opts []scan.Option) error {
	shape := []int64{2, 3, 4}

	inRe, _ := tensor.Full(shape, 1)
	inIm, _ := tensor.Zeros(shape)
	fRe, _ := tensor.Full(shape, 0.5)
	fIm, _ := tensor.Zeros(shape)

	hr, hi, err := scan.Complex(inRe, inIm, fRe, fIm, opts...)
	if err != nil {
		return err
	}

	want := []float64{1, 1.5, 1.75}
	tol := ops.Tolerance{Abs: 1e-12}
	re, im := hr.RawData(), hi.RawData()

	for i := range re {
		t := (i / int(shape[2])) % int(shape[1])
		if !tol.Within(re[i], want[t]) || !tol.Within(im[i], 0) {
			return fmt.Errorf("h[%d] = (%g, %g), want (%g, 0)", i, re[i], im[i], want[t])
		}
	}

	return nil
}

func checkSummaryConstant(rng *rand.Rand, _ []scan.Option) error {
	const (
		batch = 2
		n     = 50
		d     = 8
	)

	tol, err := ops.KernelTolerance("summarizer")
	if err != nil {
		return err
	}

	gc, err := mixer.NewGlobalConv(d, 3, rng)
	if err != nil {
		return err
	}

	x := uniform(rng, []int64{batch, n, d}, -1, 1)

	out, err := gc.Forward(x, x)
	if err != nil {
		return err
	}

	data := out.RawData()
	series := make([]float64, n)

	for b := range batch {
		for c := range d {
			for t := range n {
				series[t] = data[(b*n+t)*d+c]
			}

			if v := stat.Variance(series, nil); !tol.Within(v, 0) {
				return fmt.Errorf("batch %d channel %d: variance over time %g", b, c, v)
			}
		}
	}

	return nil
}

func checkShapeContract(_ *rand.Rand, opts []scan.Option) error {
	in, _ := tensor.Zeros([]int64{1, 4, 3})
	f, _ := tensor.Zeros([]int64{1, 4, 5})

	hr, hi, err := scan.Complex(in, in, f, f, opts...)
	if !errors.Is(err, tensor.ErrShapeMismatch) {
		return fmt.Errorf("got error %v, want %v", err, tensor.ErrShapeMismatch)
	}

	if hr != nil || hi != nil {
		return errors.New("output produced despite shape mismatch")
	}

	return nil
}

func checkReverseMode(rng *rand.Rand, opts []scan.Option) error {
	const eps = 1e-6

	tol, err := ops.KernelTolerance("scan_backward")
	if err != nil {
		return err
	}

	shape := []int64{1, 16, 2}
	xr, xi := uniform(rng, shape, -1, 1), uniform(rng, shape, -1, 1)
	fr, fi := uniform(rng, shape, -0.6, 0.6), uniform(rng, shape, -0.6, 0.6)
	wr, wi := uniform(rng, shape, -1, 1), uniform(rng, shape, -1, 1)

	hr, hi, err := scan.Complex(xr, xi, fr, fi, opts...)
	if err != nil {
		return err
	}

	grads, err := scan.ComplexBackward(wr, wi, fr, fi, hr, hi, opts...)
	if err != nil {
		return err
	}

	loss := func() (float64, error) {
		hr, hi, err := scan.Sequential(xr, xi, fr, fi)
		if err != nil {
			return 0, err
		}

		var l float64
		for i, v := range hr.RawData() {
			l += wr.RawData()[i]*v + wi.RawData()[i]*hi.RawData()[i]
		}

		return l, nil
	}

	for _, op := range []struct {
		name string
		in   *tensor.Tensor
		grad *tensor.Tensor
	}{
		{"input_real", xr, grads.InRe},
		{"f_real", fr, grads.FRe},
	} {
		data := op.in.RawData()
		analytic := op.grad.RawData()

		for i := range data {
			orig := data[i]

			data[i] = orig + eps
			up, err := loss()
			if err != nil {
				return err
			}

			data[i] = orig - eps
			down, err := loss()
			if err != nil {
				return err
			}

			data[i] = orig

			numeric := (up - down) / (2 * eps)
			if !tol.Within(analytic[i], numeric) {
				return fmt.Errorf("d/d%s[%d]: analytic %g, numeric %g", op.name, i, analytic[i], numeric)
			}
		}
	}

	return nil
}

// channelMultipliers broadcasts f(c) over batch and time.
func channelMultipliers(shape []int64, f func(c int) complex128) (re, im *tensor.Tensor, err error) {
	channels := int(shape[2])

	re, err = tensor.FromFunc(shape, func(i int) float64 { return real(f(i % channels)) })
	if err != nil {
		return nil, nil, err
	}

	im, err = tensor.FromFunc(shape, func(i int) float64 { return imag(f(i % channels)) })
	if err != nil {
		return nil, nil, err
	}

	return re, im, nil
}

func uniform(rng *rand.Rand, shape []int64, lo, hi float64) *tensor.Tensor {
	t, _ := tensor.FromFunc(shape, func(int) float64 { return lo + (hi-lo)*rng.Float64() })

	return t
}

func compare(name string, got, want *tensor.Tensor, tol ops.Tolerance) error {
	g, w := got.RawData(), want.RawData()
	for i := range w {
		if !tol.Within(g[i], w[i]) {
			return fmt.Errorf("%s[%d] = %g, want %g", name, i, g[i], w[i])
		}
	}

	return nil
}
