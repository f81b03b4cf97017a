// Package mixer implements the Summer token mixer: a drop-in replacement for
// a self-attention sublayer whose cost is linear in sequence length.
//
// Forward on x of shape (batch, N, d):
//
//	u        = in_proj(x)                    width 4d: q | o | g (d, d, 2d)
//	summary  = GlobalConv(q, q)
//	v        = mid_proj(o * summary)         width 2d: re | im
//	h        = scan(gamma*re, gamma*im, f)   complex recurrence per channel
//	y        = out_proj(rms(dropout([h.re | h.im] * silu(g))))
//
// The recurrence parameters live in an ssm.Params and are only read here.
package mixer

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/example/go-summer/internal/config"
	"github.com/example/go-summer/internal/runtime/ops"
	"github.com/example/go-summer/internal/runtime/tensor"
	"github.com/example/go-summer/internal/scan"
	"github.com/example/go-summer/internal/ssm"
)

const (
	rmsEps   = 1e-5
	opSummer = "mixer: summer"
)

// Tracer brackets the stages of a forward pass. Begin returns the function
// that ends the stage.
type Tracer interface {
	Begin(stage string) (end func())
}

type noopTracer struct{}

func (noopTracer) Begin(string) func() { return func() {} }

// Config holds the structural settings of one Summer layer.
type Config struct {
	DModel int
	// EmbeddingDim must be zero or equal DModel.
	EmbeddingDim  int
	DConv         int
	RMin          float64
	RMax          float64
	Dropout       float64
	Seed          uint64
	ScanBlockSize int
	Workers       int
}

// FromConfig takes the model, runtime and scan sections of the loaded
// settings.
func FromConfig(c config.Config) Config {
	return Config{
		DModel:        c.Model.DModel,
		EmbeddingDim:  c.Model.EmbeddingDim,
		DConv:         c.Model.DConv,
		RMin:          c.Model.RMin,
		RMax:          c.Model.RMax,
		Dropout:       c.Model.Dropout,
		Seed:          c.Model.Seed,
		ScanBlockSize: c.Scan.BlockSize,
		Workers:       c.Runtime.Workers,
	}
}

func DefaultConfig() Config {
	return FromConfig(config.DefaultConfig())
}

func (c Config) validate() error {
	if c.DModel <= 0 {
		return config.Invalid("model.d_model", c.DModel, "must be > 0")
	}

	if c.EmbeddingDim != 0 && c.EmbeddingDim != c.DModel {
		return config.Invalid("model.embedding_dim", c.EmbeddingDim, fmt.Sprintf("must equal model.d_model (%d)", c.DModel))
	}

	if c.DConv <= 0 {
		return config.Invalid("model.d_conv", c.DConv, "must be > 0")
	}

	if err := config.CheckDecayBounds(c.RMin, c.RMax); err != nil {
		return err
	}

	if c.Dropout < 0 || c.Dropout >= 1 {
		return config.Invalid("model.dropout", c.Dropout, "must be in [0, 1)")
	}

	if c.ScanBlockSize != 0 && c.ScanBlockSize < 2 {
		return config.Invalid("scan.block_size", c.ScanBlockSize, "must be >= 2")
	}

	if c.Workers < 0 {
		return config.Invalid("runtime.workers", c.Workers, "must be >= 0")
	}

	return nil
}

// Summer is one token mixing layer. Forward may be called concurrently;
// SetTraining and parameter updates must not overlap a pass.
type Summer struct {
	InProj  *tensor.Tensor // [4d, d]
	InBias  *tensor.Tensor // [4d]
	MidProj *tensor.Tensor // [2d, d]
	MidBias *tensor.Tensor // [2d]
	OutProj *tensor.Tensor // [d, 2d]
	OutBias *tensor.Tensor // [d]
	Summ    *GlobalConv
	SSM     *ssm.Params

	cfg      Config
	training bool
	logger   *slog.Logger
	tracer   Tracer
	scanOpts []scan.Option

	dropMu  sync.Mutex
	dropRNG *rand.Rand
}

type Option func(*Summer)

// WithLogger routes debug output of the layer to l.
func WithLogger(l *slog.Logger) Option {
	return func(s *Summer) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTracer reports the project, summarize, recurrence and output stages of
// every forward pass to t.
func WithTracer(t Tracer) Option {
	return func(s *Summer) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithParams uses p instead of freshly initialized recurrence parameters.
// New rejects p if its width differs from DModel.
func WithParams(p *ssm.Params) Option {
	return func(s *Summer) {
		s.SSM = p
	}
}

// New validates cfg and initializes all weights from cfg.Seed. Nothing is
// allocated when cfg is invalid.
func New(cfg Config, opts ...Option) (*Summer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	s := &Summer{cfg: cfg, logger: slog.Default(), tracer: noopTracer{}}
	for _, opt := range opts {
		opt(s)
	}

	if s.SSM != nil && s.SSM.Channels() != cfg.DModel {
		return nil, config.Invalid("ssm.channels", s.SSM.Channels(), fmt.Sprintf("must equal model.d_model (%d)", cfg.DModel))
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, 0x5eed))
	s.dropRNG = rand.New(rand.NewPCG(cfg.Seed, 0xd70b))

	d := int64(cfg.DModel)

	var err error

	if s.InProj, s.InBias, err = newLinear(rng, 4*d, d); err != nil {
		return nil, err
	}

	if s.MidProj, s.MidBias, err = newLinear(rng, 2*d, d); err != nil {
		return nil, err
	}

	if s.OutProj, s.OutBias, err = newLinear(rng, d, 2*d); err != nil {
		return nil, err
	}

	if s.Summ, err = NewGlobalConv(cfg.DModel, cfg.DConv, rng); err != nil {
		return nil, err
	}

	if s.SSM == nil {
		s.SSM, err = ssm.New(cfg.DModel, ssm.WithBounds(cfg.RMin, cfg.RMax), ssm.WithRand(rng))
		if err != nil {
			return nil, err
		}
	}

	if cfg.ScanBlockSize > 0 {
		s.scanOpts = append(s.scanOpts, scan.WithBlockSize(cfg.ScanBlockSize))
	}

	if cfg.Workers > 0 {
		s.scanOpts = append(s.scanOpts, scan.WithWorkers(cfg.Workers))
	}

	s.logger.Debug("summer layer initialized",
		"d_model", cfg.DModel,
		"d_conv", cfg.DConv,
		"dropout", cfg.Dropout,
		"params", s.SSM.Fingerprint(),
	)

	return s, nil
}

func newLinear(rng *rand.Rand, out, in int64) (w, b *tensor.Tensor, err error) {
	if w, err = uniformInit(rng, []int64{out, in}, int(in)); err != nil {
		return nil, nil, err
	}

	if b, err = uniformInit(rng, []int64{out}, int(in)); err != nil {
		return nil, nil, err
	}

	return w, b, nil
}

// Config returns the settings the layer was built with.
func (s *Summer) Config() Config { return s.cfg }

// SetTraining toggles dropout.
func (s *Summer) SetTraining(training bool) { s.training = training }

func (s *Summer) Training() bool { return s.training }

// Forward mixes x of shape (batch, N, d) and returns the same shape.
//
// mask, if given, must be (batch, N). It is not used yet: every position
// takes part in the summary and the recurrence, padding included.
func (s *Summer) Forward(x, mask *tensor.Tensor) (*tensor.Tensor, error) {
	d := int64(s.cfg.DModel)

	if x == nil || x.Rank() != 3 || x.Dim(2) != d {
		var got []int64
		if x != nil {
			got = x.Shape()
		}

		return nil, &tensor.ShapeError{Op: opSummer, Arg: "x", Got: got, Want: []int64{-1, -1, d}}
	}

	batch, n := x.Dim(0), x.Dim(1)

	if mask != nil && (mask.Rank() != 2 || mask.Dim(0) != batch || mask.Dim(1) != n) {
		return nil, &tensor.ShapeError{Op: opSummer, Arg: "mask", Got: mask.Shape(), Want: []int64{batch, n}}
	}

	end := s.tracer.Begin("project")
	q, o, g, err := s.project(x)
	end()

	if err != nil {
		return nil, err
	}

	end = s.tracer.Begin("summarize")
	inRe, inIm, err := s.summarize(q, o)
	end()

	if err != nil {
		return nil, err
	}

	end = s.tracer.Begin("recurrence")
	outRe, outIm, err := s.recur(inRe, inIm)
	end()

	if err != nil {
		return nil, err
	}

	end = s.tracer.Begin("output")
	out, err := s.output(outRe, outIm, g)
	end()

	if err != nil {
		return nil, err
	}

	s.logger.Debug("summer forward",
		"batch", batch,
		"length", n,
		"training", s.training,
		"masked", mask != nil,
	)

	return out, nil
}

// project splits in_proj(x) into q, o (width d) and the gate g (width 2d).
func (s *Summer) project(x *tensor.Tensor) (q, o, g *tensor.Tensor, err error) {
	u, err := tensor.Linear(x, s.InProj, s.InBias)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%s: in_proj: %w", opSummer, err)
	}

	qog, err := u.Chunk(2, -1)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%s: %w", opSummer, err)
	}

	qo, err := qog[0].Chunk(2, -1)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%s: %w", opSummer, err)
	}

	return qo[0], qo[1], qog[1], nil
}

// summarize gates o with the global summary of q and projects the result to
// the gain-scaled real and imaginary recurrence inputs.
func (s *Summer) summarize(q, o *tensor.Tensor) (inRe, inIm *tensor.Tensor, err error) {
	summary, err := s.Summ.Forward(q, q)
	if err != nil {
		return nil, nil, err
	}

	gated, err := tensor.BroadcastMul(o, summary)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", opSummer, err)
	}

	v, err := tensor.Linear(gated, s.MidProj, s.MidBias)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: mid_proj: %w", opSummer, err)
	}

	inRe, inIm, err = splitScaled(v, s.SSM.Coefficients().Gamma)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", opSummer, err)
	}

	return inRe, inIm, nil
}

func (s *Summer) recur(inRe, inIm *tensor.Tensor) (outRe, outIm *tensor.Tensor, err error) {
	fRe, fIm, err := broadcastMultiplier(inRe.Shape(), s.SSM.Coefficients())
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", opSummer, err)
	}

	return scan.Complex(inRe, inIm, fRe, fIm, s.scanOpts...)
}

// output gates [re | im] with silu(g), applies dropout in training mode,
// normalizes and projects back to width d.
func (s *Summer) output(outRe, outIm, g *tensor.Tensor) (*tensor.Tensor, error) {
	h, err := tensor.Concat([]*tensor.Tensor{outRe, outIm}, -1)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opSummer, err)
	}

	y, err := ops.GateRepeat(h, ops.SiLU(g))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opSummer, err)
	}

	if s.training && s.cfg.Dropout > 0 {
		s.dropMu.Lock()
		y, err = ops.Dropout(y, s.cfg.Dropout, s.dropRNG)
		s.dropMu.Unlock()

		if err != nil {
			return nil, fmt.Errorf("%s: %w", opSummer, err)
		}
	}

	y, err = tensor.RMSNorm(y, nil, rmsEps)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opSummer, err)
	}

	out, err := tensor.Linear(y, s.OutProj, s.OutBias)
	if err != nil {
		return nil, fmt.Errorf("%s: out_proj: %w", opSummer, err)
	}

	return out, nil
}

// splitScaled splits v [..., 2d] into its two halves, each scaled per
// channel by gain.
func splitScaled(v *tensor.Tensor, gain []float64) (re, im *tensor.Tensor, err error) {
	halves, err := v.Chunk(2, -1)
	if err != nil {
		return nil, nil, err
	}

	g, err := tensor.New(gain, []int64{int64(len(gain))})
	if err != nil {
		return nil, nil, err
	}

	if re, err = tensor.BroadcastMul(halves[0], g); err != nil {
		return nil, nil, err
	}

	if im, err = tensor.BroadcastMul(halves[1], g); err != nil {
		return nil, nil, err
	}

	return re, im, nil
}

// broadcastMultiplier expands the per-channel f across batch and time.
func broadcastMultiplier(shape []int64, c ssm.Coefficients) (fRe, fIm *tensor.Tensor, err error) {
	channels := len(c.FReal)

	if fRe, err = tensor.FromFunc(shape, func(i int) float64 { return c.FReal[i%channels] }); err != nil {
		return nil, nil, err
	}

	if fIm, err = tensor.FromFunc(shape, func(i int) float64 { return c.FImag[i%channels] }); err != nil {
		return nil, nil, err
	}

	return fRe, fIm, nil
}
