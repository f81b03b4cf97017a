package ops

import (
	"math"
	"strings"
	"testing"

	"github.com/example/go-summer/internal/runtime/tensor"
)

func seqData(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64((i%17)-8) / 17
	}

	return out
}

func equalApprox(got, want []float64, tol float64) bool {
	if len(got) != len(want) {
		return false
	}

	for i := range got {
		if math.Abs(got[i]-want[i]) > tol {
			return false
		}
	}

	return true
}

func mustTensor(tb testing.TB, data []float64, shape []int64) *tensor.Tensor {
	tb.Helper()

	tt, err := tensor.New(data, shape)
	if err != nil {
		tb.Fatalf("tensor.New(%v, %v): %v", data, shape, err)
	}

	return tt
}

func assertErrContains(t *testing.T, err error, substr string) {
	t.Helper()

	if err == nil {
		t.Fatalf("expected error containing %q, got nil", substr)
	}

	if !strings.Contains(err.Error(), substr) {
		t.Fatalf("error %q does not contain %q", err.Error(), substr)
	}
}

// naiveConv1D is the direct channel-last convolution used as a reference.
func naiveConv1D(input, kernel, bias []float64, batch, length, inCh, outCh, kSize, stride, padding, dilation int) ([]float64, int) {
	outLen := (length+2*padding-dilation*(kSize-1)-1)/stride + 1
	out := make([]float64, batch*outLen*outCh)

	for b := range batch {
		for ox := range outLen {
			for oc := range outCh {
				var sum float64
				if bias != nil {
					sum = bias[oc]
				}

				for ic := range inCh {
					for kx := range kSize {
						pos := ox*stride - padding + kx*dilation
						if pos < 0 || pos >= length {
							continue
						}

						sum += input[(b*length+pos)*inCh+ic] * kernel[(oc*inCh+ic)*kSize+kx]
					}
				}

				out[(b*outLen+ox)*outCh+oc] = sum
			}
		}
	}

	return out, outLen
}
