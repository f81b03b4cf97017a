package mixer

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/example/go-summer/internal/config"
	"github.com/example/go-summer/internal/runtime/ops"
	"github.com/example/go-summer/internal/runtime/tensor"
)

// GlobalConv summarizes a whole sequence into one vector per channel and
// broadcasts it back to every position. For each channel the weights over
// the N positions come from a softmax along the sequence axis of a
// convolved, projected copy of x_from; the summary is the weighted sum of
// x_to. Cost is linear in N.
type GlobalConv struct {
	Kernel *tensor.Tensor // [d, d, d_conv]
	Bias   *tensor.Tensor // [d]
	FromW  *tensor.Tensor // [d, d], no bias

	dModel int
	scale  float64
}

func NewGlobalConv(dModel, dConv int, rng *rand.Rand) (*GlobalConv, error) {
	if dModel <= 0 {
		return nil, config.Invalid("model.d_model", dModel, "must be > 0")
	}

	if dConv <= 0 {
		return nil, config.Invalid("model.d_conv", dConv, "must be > 0")
	}

	d, k := int64(dModel), int64(dConv)

	kernel, err := uniformInit(rng, []int64{d, d, k}, dModel*dConv)
	if err != nil {
		return nil, err
	}

	bias, err := uniformInit(rng, []int64{d}, dModel*dConv)
	if err != nil {
		return nil, err
	}

	fromW, err := uniformInit(rng, []int64{d, d}, dModel)
	if err != nil {
		return nil, err
	}

	return &GlobalConv{
		Kernel: kernel,
		Bias:   bias,
		FromW:  fromW,
		dModel: dModel,
		scale:  1 / math.Sqrt(float64(dModel)),
	}, nil
}

// Forward returns the (batch, N, d) summary of xTo weighted by xFrom. Both
// inputs must share one (batch, N, d) shape with N > 0.
func (g *GlobalConv) Forward(xTo, xFrom *tensor.Tensor) (*tensor.Tensor, error) {
	const op = "mixer: global conv"

	if err := tensor.RequireSameShape(op, 3,
		tensor.Operand{Name: "x_to", Tensor: xTo},
		tensor.Operand{Name: "x_from", Tensor: xFrom},
	); err != nil {
		return nil, err
	}

	if xTo.Dim(-1) != int64(g.dModel) || xTo.Dim(1) == 0 {
		return nil, &tensor.ShapeError{Op: op, Arg: "x_to", Got: xTo.Shape(), Want: []int64{xTo.Dim(0), -1, int64(g.dModel)}}
	}

	conv, err := ops.SameConv1D(xFrom, g.Kernel, g.Bias)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	logits, err := tensor.Linear(ops.SiLU(conv), g.FromW, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	weights, err := tensor.Softmax(tensor.Scale(logits, g.scale), 1)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	weighted, err := tensor.BroadcastMul(xTo, weights)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	summary, err := tensor.SumAlong(weighted, 1)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return tensor.Repeat(summary, 1, xTo.Dim(1))
}
