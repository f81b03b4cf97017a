package mixer

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/sourcegraph/conc/pool"

	"github.com/example/go-summer/internal/config"
	"github.com/example/go-summer/internal/runtime/ops"
	"github.com/example/go-summer/internal/runtime/tensor"
	"github.com/example/go-summer/internal/ssm"
	"github.com/example/go-summer/internal/testutil"
)

func testConfig(d, k int) Config {
	cfg := DefaultConfig()
	cfg.DModel = d
	cfg.DConv = k

	return cfg
}

func newTestSummer(t *testing.T, cfg Config, opts ...Option) *Summer {
	t.Helper()

	s, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New(%+v): %v", cfg, err)
	}

	return s
}

func TestSummerOutputShapeMatchesInput(t *testing.T) {
	tests := []struct {
		batch, n, d, k int
	}{
		{1, 1, 1, 1},
		{2, 7, 4, 3},
		{3, 33, 8, 4},
		{1, 200, 6, 5},
	}

	for _, tc := range tests {
		t.Run(fmt.Sprintf("b=%d/n=%d/d=%d/k=%d", tc.batch, tc.n, tc.d, tc.k), func(t *testing.T) {
			s := newTestSummer(t, testConfig(tc.d, tc.k))
			shape := []int64{int64(tc.batch), int64(tc.n), int64(tc.d)}
			x := testutil.RandTensor(t, testutil.Rand(1), shape, -1, 1)

			out, err := s.Forward(x, nil)
			if err != nil {
				t.Fatalf("Forward: %v", err)
			}

			if !tensor.SameShape(out, x) {
				t.Fatalf("output shape %v, want %v", out.Shape(), x.Shape())
			}

			testutil.AssertFinite(t, "output", out.RawData())
		})
	}
}

func TestSummerForwardLeavesParametersUntouched(t *testing.T) {
	s := newTestSummer(t, testConfig(8, 3))
	s.SetTraining(true)

	before := s.SSM.Fingerprint()
	inProj := s.InProj.Clone()
	kernel := s.Summ.Kernel.Clone()

	x := testutil.RandTensor(t, testutil.Rand(2), []int64{2, 40, 8}, -1, 1)
	for range 3 {
		if _, err := s.Forward(x, nil); err != nil {
			t.Fatalf("Forward: %v", err)
		}
	}

	if s.SSM.Fingerprint() != before {
		t.Fatal("forward pass changed the recurrence parameters")
	}

	zero := ops.Tolerance{}
	testutil.AssertTensorClose(t, "in_proj", s.InProj, inProj, zero)
	testutil.AssertTensorClose(t, "conv kernel", s.Summ.Kernel, kernel, zero)
}

func TestSummerDropoutOnlyInTraining(t *testing.T) {
	s := newTestSummer(t, testConfig(6, 3))
	x := testutil.RandTensor(t, testutil.Rand(3), []int64{2, 16, 6}, -1, 1)

	evalA, err := s.Forward(x, nil)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}

	evalB, _ := s.Forward(x, nil)
	testutil.AssertTensorClose(t, "eval repeat", evalB, evalA, ops.Tolerance{})

	s.SetTraining(true)

	if !s.Training() {
		t.Fatal("Training() = false after SetTraining(true)")
	}

	train, err := s.Forward(x, nil)
	if err != nil {
		t.Fatalf("Forward(training): %v", err)
	}

	same := true

	for i, v := range train.RawData() {
		if v != evalA.RawData()[i] {
			same = false
			break
		}
	}

	if same {
		t.Fatal("training output equals eval output; dropout had no effect")
	}

	cfg := testConfig(6, 3)
	cfg.Dropout = 0
	noDrop := newTestSummer(t, cfg)
	noDrop.SetTraining(true)

	got, _ := noDrop.Forward(x, nil)
	testutil.AssertTensorClose(t, "dropout 0", got, evalA, ops.Tolerance{})
}

func TestSummerMaskIsAcceptedButUnused(t *testing.T) {
	s := newTestSummer(t, testConfig(4, 3))
	x := testutil.RandTensor(t, testutil.Rand(4), []int64{2, 10, 4}, -1, 1)

	mask, _ := tensor.FromFunc([]int64{2, 10}, func(i int) float64 {
		if i%10 >= 7 {
			return 0
		}

		return 1
	})

	masked, err := s.Forward(x, mask)
	if err != nil {
		t.Fatalf("Forward(mask): %v", err)
	}

	plain, _ := s.Forward(x, nil)
	testutil.AssertTensorClose(t, "masked", masked, plain, ops.Tolerance{})

	badMask, _ := tensor.Zeros([]int64{2, 9})
	if _, err := s.Forward(x, badMask); !errors.Is(err, tensor.ErrShapeMismatch) {
		t.Fatalf("wrong mask shape: err = %v, want ErrShapeMismatch", err)
	}
}

func TestSummerRejectsBadInput(t *testing.T) {
	s := newTestSummer(t, testConfig(4, 3))
	wide, _ := tensor.Zeros([]int64{1, 5, 5})
	flat, _ := tensor.Zeros([]int64{5, 4})

	for _, x := range []*tensor.Tensor{wide, flat, nil} {
		out, err := s.Forward(x, nil)
		if !errors.Is(err, tensor.ErrShapeMismatch) {
			t.Errorf("err = %v, want ErrShapeMismatch", err)
		}

		if out != nil {
			t.Error("output produced for bad input")
		}
	}
}

func TestSummerScanStrategyDoesNotChangeOutput(t *testing.T) {
	tol, _ := ops.KernelTolerance("scan")
	x := testutil.RandTensor(t, testutil.Rand(8), []int64{2, 300, 4}, -1, 1)

	base := testConfig(4, 3)
	base.Workers = 1
	base.ScanBlockSize = 1 << 20

	tuned := base
	tuned.Workers = 4
	tuned.ScanBlockSize = 3

	want, err := newTestSummer(t, base).Forward(x, nil)
	if err != nil {
		t.Fatalf("Forward(base): %v", err)
	}

	got, err := newTestSummer(t, tuned).Forward(x, nil)
	if err != nil {
		t.Fatalf("Forward(tuned): %v", err)
	}

	testutil.AssertTensorClose(t, "output", got, want, tol)
}

func TestSummerConcurrentForward(t *testing.T) {
	s := newTestSummer(t, testConfig(4, 3))
	x := testutil.RandTensor(t, testutil.Rand(9), []int64{1, 64, 4}, -1, 1)

	want, err := s.Forward(x, nil)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}

	p := pool.New().WithErrors()
	for range 8 {
		p.Go(func() error {
			got, err := s.Forward(x, nil)
			if err != nil {
				return err
			}

			for i, v := range got.RawData() {
				if v != want.RawData()[i] {
					return fmt.Errorf("concurrent output[%d] = %v, want %v", i, v, want.RawData()[i])
				}
			}

			return nil
		})
	}

	if err := p.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		opts      []Option
		wantField string
	}{
		{"embedding width differs", func(c *Config) { c.EmbeddingDim = c.DModel + 1 }, nil, "model.embedding_dim"},
		{"zero width", func(c *Config) { c.DModel = 0 }, nil, "model.d_model"},
		{"zero conv", func(c *Config) { c.DConv = 0 }, nil, "model.d_conv"},
		{"bounds", func(c *Config) { c.RMax = 1.5 }, nil, "model.r_max"},
		{"dropout", func(c *Config) { c.Dropout = -0.1 }, nil, "model.dropout"},
		{"block size", func(c *Config) { c.ScanBlockSize = 1 }, nil, "scan.block_size"},
		{"param width", func(*Config) {}, []Option{WithParams(mustParams(t, 3))}, "ssm.channels"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig(4, 3)
			tc.mutate(&cfg)

			s, err := New(cfg, tc.opts...)
			if s != nil {
				t.Fatal("New returned a layer alongside an error")
			}

			var ce *config.ConfigurationError
			if !errors.As(err, &ce) {
				t.Fatalf("err = %v, want *config.ConfigurationError", err)
			}

			if ce.Field != tc.wantField {
				t.Errorf("Field = %q, want %q", ce.Field, tc.wantField)
			}
		})
	}
}

func TestNewWithParams(t *testing.T) {
	p := mustParams(t, 4)
	s := newTestSummer(t, testConfig(4, 3), WithParams(p))

	if s.SSM != p {
		t.Fatal("WithParams was not used")
	}
}

func TestSummerLogsForward(t *testing.T) {
	var buf bytes.Buffer

	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s := newTestSummer(t, testConfig(2, 3), WithLogger(logger))

	x := testutil.RandTensor(t, testutil.Rand(1), []int64{1, 4, 2}, -1, 1)
	if _, err := s.Forward(x, nil); err != nil {
		t.Fatalf("Forward: %v", err)
	}

	for _, msg := range []string{"summer layer initialized", "summer forward"} {
		if !strings.Contains(buf.String(), msg) {
			t.Errorf("log output missing %q:\n%s", msg, buf.String())
		}
	}
}

func TestFromConfig(t *testing.T) {
	c := config.DefaultConfig()
	c.Model.DModel = 12
	c.Scan.BlockSize = 8
	c.Runtime.Workers = 3

	got := FromConfig(c)
	if got.DModel != 12 || got.ScanBlockSize != 8 || got.Workers != 3 || got.RMin != c.Model.RMin {
		t.Fatalf("FromConfig = %+v", got)
	}
}

func mustParams(t *testing.T, channels int) *ssm.Params {
	t.Helper()

	p, err := ssm.New(channels, ssm.WithSeed(1))
	if err != nil {
		t.Fatalf("ssm.New: %v", err)
	}

	return p
}

type recordingTracer struct {
	begun []string
	ended int
}

func (r *recordingTracer) Begin(stage string) func() {
	r.begun = append(r.begun, stage)
	return func() { r.ended++ }
}

func TestSummerReportsStages(t *testing.T) {
	tr := &recordingTracer{}
	s := newTestSummer(t, testConfig(2, 3), WithTracer(tr))

	x := testutil.RandTensor(t, testutil.Rand(1), []int64{1, 4, 2}, -1, 1)
	if _, err := s.Forward(x, nil); err != nil {
		t.Fatalf("Forward: %v", err)
	}

	want := []string{"project", "summarize", "recurrence", "output"}
	if strings.Join(tr.begun, ",") != strings.Join(want, ",") {
		t.Fatalf("stages = %v, want %v", tr.begun, want)
	}

	if tr.ended != len(want) {
		t.Fatalf("%d stages ended, want %d", tr.ended, len(want))
	}
}
