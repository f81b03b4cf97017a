// Package ssm owns the per-channel parameters of the complex state-space
// recurrence and derives its coefficients.
//
// Each channel stores three unconstrained logs:
//
//	nu    = exp(-exp(nu_log))   decay magnitude, in (r_min, r_max) at init
//	theta = exp(theta_log)      rotation angle, in (0, 2*pi) at init
//	gamma = exp(gamma_log)      input gain
//
// The multiplier is f = nu*(cos theta + i sin theta). Because nu is an
// exponential of a negative number, |f| < 1 for every finite nu_log and the
// recurrence cannot diverge.
//
// Params are created once and then only read by forward and backward passes.
// An external optimizer may replace the log slices between passes; nothing
// in this module writes to them after construction.
package ssm

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/cmplx"
	"math/rand/v2"

	"github.com/cespare/xxhash/v2"

	"github.com/example/go-summer/internal/config"
)

const (
	DefaultRMin = 0.9
	DefaultRMax = 0.999
)

// Params holds one value per channel in each slice.
type Params struct {
	NuLog    []float64
	ThetaLog []float64
	GammaLog []float64
}

type options struct {
	rMin float64
	rMax float64
	rng  *rand.Rand
}

type Option func(*options)

// WithBounds sets the decay magnitude range. New rejects bounds outside
// 0 < rMin < rMax < 1.
func WithBounds(rMin, rMax float64) Option {
	return func(o *options) {
		o.rMin, o.rMax = rMin, rMax
	}
}

// WithRand draws the initial values from rng.
func WithRand(rng *rand.Rand) Option {
	return func(o *options) {
		if rng != nil {
			o.rng = rng
		}
	}
}

// WithSeed draws the initial values from a PCG source seeded with seed.
func WithSeed(seed uint64) Option {
	return func(o *options) {
		o.rng = rand.New(rand.NewPCG(seed, seed))
	}
}

// New initializes dModel channels with magnitudes uniform in the ring
// r_min < |f| < r_max and phases uniform in (0, 2*pi).
func New(dModel int, opts ...Option) (*Params, error) {
	o := options{rMin: DefaultRMin, rMax: DefaultRMax}
	for _, opt := range opts {
		opt(&o)
	}

	if dModel <= 0 {
		return nil, config.Invalid("model.d_model", dModel, "must be > 0")
	}

	if err := config.CheckDecayBounds(o.rMin, o.rMax); err != nil {
		return nil, err
	}

	if o.rng == nil {
		o.rng = rand.New(rand.NewPCG(0, 0))
	}

	p := &Params{
		NuLog:    make([]float64, dModel),
		ThetaLog: make([]float64, dModel),
		GammaLog: make([]float64, dModel),
	}

	lo, hi := o.rMin*o.rMin, o.rMax*o.rMax

	for c := range dModel {
		u1 := openUnit(o.rng)
		u2 := openUnit(o.rng)

		nuLog := math.Log(-0.5 * math.Log(u1*(hi-lo)+lo))
		p.NuLog[c] = nuLog
		p.ThetaLog[c] = math.Log(2 * math.Pi * u2)
		p.GammaLog[c] = math.Log(math.Sqrt(1 - math.Exp(-2*math.Exp(nuLog))))
	}

	return p, nil
}

// openUnit draws from (0, 1). A zero draw would put nu on r_min and theta
// on 0.
func openUnit(rng *rand.Rand) float64 {
	for {
		if u := rng.Float64(); u > 0 {
			return u
		}
	}
}

// FromLogs builds Params from explicit log values. The slices are copied.
func FromLogs(nuLog, thetaLog, gammaLog []float64) (*Params, error) {
	if len(nuLog) == 0 {
		return nil, config.Invalid("nu_log", len(nuLog), "needs at least one channel")
	}

	if len(thetaLog) != len(nuLog) {
		return nil, config.Invalid("theta_log", len(thetaLog), fmt.Sprintf("length must equal nu_log (%d)", len(nuLog)))
	}

	if len(gammaLog) != len(nuLog) {
		return nil, config.Invalid("gamma_log", len(gammaLog), fmt.Sprintf("length must equal nu_log (%d)", len(nuLog)))
	}

	return &Params{
		NuLog:    append([]float64(nil), nuLog...),
		ThetaLog: append([]float64(nil), thetaLog...),
		GammaLog: append([]float64(nil), gammaLog...),
	}, nil
}

// Channels returns the number of channels.
func (p *Params) Channels() int { return len(p.NuLog) }

// Clone returns a deep copy.
func (p *Params) Clone() *Params {
	c, _ := FromLogs(p.NuLog, p.ThetaLog, p.GammaLog)
	return c
}

// Coefficients is the per-call view of the recurrence parameters.
type Coefficients struct {
	Nu    []float64
	Theta []float64
	Gamma []float64
	FReal []float64
	FImag []float64
	F     []complex128
}

// Coefficients recomputes every derived quantity from the logs.
func (p *Params) Coefficients() Coefficients {
	n := p.Channels()
	c := Coefficients{
		Nu:    make([]float64, n),
		Theta: make([]float64, n),
		Gamma: make([]float64, n),
		FReal: make([]float64, n),
		FImag: make([]float64, n),
		F:     make([]complex128, n),
	}

	for i := range n {
		nu := math.Exp(-math.Exp(p.NuLog[i]))
		theta := math.Exp(p.ThetaLog[i])
		f := cmplx.Rect(nu, theta)

		c.Nu[i] = nu
		c.Theta[i] = theta
		c.Gamma[i] = math.Exp(p.GammaLog[i])
		c.FReal[i] = real(f)
		c.FImag[i] = imag(f)
		c.F[i] = f
	}

	return c
}

// Multiplier returns f for channel c.
func (p *Params) Multiplier(c int) complex128 {
	return cmplx.Rect(math.Exp(-math.Exp(p.NuLog[c])), math.Exp(p.ThetaLog[c]))
}

// Fingerprint hashes the exact bits of all three log slices. Equal
// fingerprints before and after a pass show the pass left Params alone.
func (p *Params) Fingerprint() uint64 {
	h := xxhash.New()

	var buf [8]byte

	for _, s := range [][]float64{p.NuLog, p.ThetaLog, p.GammaLog} {
		binary.LittleEndian.PutUint64(buf[:], uint64(len(s)))
		_, _ = h.Write(buf[:])

		for _, v := range s {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
			_, _ = h.Write(buf[:])
		}
	}

	return h.Sum64()
}

// Grad maps gradients with respect to the derived coefficients back to the
// logs. dF[c] is dL/dRe(f_c) + i*dL/dIm(f_c), the form returned by
// scan.Gradients.PerChannel; dGamma[c] is dL/dgamma_c. Either may be nil.
func (p *Params) Grad(dF []complex128, dGamma []float64) (*Params, error) {
	n := p.Channels()
	if dF != nil && len(dF) != n {
		return nil, fmt.Errorf("ssm: grad: dF has %d channels, want %d", len(dF), n)
	}

	if dGamma != nil && len(dGamma) != n {
		return nil, fmt.Errorf("ssm: grad: dGamma has %d channels, want %d", len(dGamma), n)
	}

	g := &Params{
		NuLog:    make([]float64, n),
		ThetaLog: make([]float64, n),
		GammaLog: make([]float64, n),
	}

	for c := range n {
		if dF != nil {
			e := math.Exp(p.NuLog[c])
			nu := math.Exp(-e)
			theta := math.Exp(p.ThetaLog[c])
			sin, cos := math.Sincos(theta)
			gr, gi := real(dF[c]), imag(dF[c])

			dNu := gr*cos + gi*sin
			dTheta := nu * (gi*cos - gr*sin)

			g.NuLog[c] = dNu * -e * nu
			g.ThetaLog[c] = dTheta * theta
		}

		if dGamma != nil {
			g.GammaLog[c] = dGamma[c] * math.Exp(p.GammaLog[c])
		}
	}

	return g, nil
}
