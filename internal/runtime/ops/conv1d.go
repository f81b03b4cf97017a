package ops

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/floats"

	"github.com/example/go-summer/internal/runtime/tensor"
)

// Conv1D performs a deterministic CPU Conv1d along the sequence axis of a
// channel-last tensor.
// input: [batch, length, in_channels]
// kernel: [out_channels, in_channels, kernel_size]
// output: [batch, out_length, out_channels]
//
// It rearranges the convolution into a GEMM by building a patch matrix
// (im2col) of shape [outLength, inChannels*kernelSize] where each row holds
// the gathered input values for one output position:
//
//	out[ox, oc] = dot(kernel[oc, :], imcol[ox, :]) + bias[oc]
func Conv1D(input, kernel, bias *tensor.Tensor, stride, padding, dilation int64) (*tensor.Tensor, error) {
	p, err := prepareConv1D(input, kernel, bias, stride, padding, dilation)
	if err != nil {
		return nil, err
	}

	out, err := tensor.Zeros([]int64{p.batch, p.outLength, p.outChannels})
	if err != nil {
		return nil, err
	}

	var biasData []float64
	if bias != nil {
		biasData = bias.RawData()
	}

	inputData := input.RawData()
	outData := out.RawData()

	patchLen := int(p.inChannels * p.kernelSize)
	outLen := int(p.outLength)
	outCh := int(p.outChannels)
	inCh := int(p.inChannels)
	kSize := int(p.kernelSize)
	inBatch := int(p.length) * inCh

	k := blas64.General{Rows: outCh, Cols: patchLen, Stride: patchLen, Data: kernel.RawData()}

	// Batch elements write disjoint output slabs and share the read-only kernel.
	tensor.ParallelFor(int(p.batch), tensor.Workers(), func(lo, hi int) {
		imcol := getScratch(outLen * patchLen)
		defer putScratch(imcol)

		for b := lo; b < hi; b++ {
			if b > lo {
				clear(imcol)
			}

			src := inputData[b*inBatch : (b+1)*inBatch]

			for ox := range outLen {
				row := imcol[ox*patchLen : (ox+1)*patchLen]

				for kx := range kSize {
					inPos := int64(ox)*stride - padding + int64(kx)*dilation
					if inPos < 0 || inPos >= p.length {
						continue
					}

					vec := src[int(inPos)*inCh : (int(inPos)+1)*inCh]
					for ic, v := range vec {
						row[ic*kSize+kx] = v
					}
				}
			}

			dst := outData[b*outLen*outCh : (b+1)*outLen*outCh]
			blas64.Gemm(blas.NoTrans, blas.Trans, 1,
				blas64.General{Rows: outLen, Cols: patchLen, Stride: patchLen, Data: imcol},
				k, 0,
				blas64.General{Rows: outLen, Cols: outCh, Stride: outCh, Data: dst})

			if biasData != nil {
				for ox := range outLen {
					floats.Add(dst[ox*outCh:(ox+1)*outCh], biasData)
				}
			}
		}
	})

	return out, nil
}

// SameConv1D runs a stride-1 Conv1D with symmetric padding kernelSize/2 and
// crops the result to the input length, so even kernel widths also return
// one output per position.
func SameConv1D(input, kernel, bias *tensor.Tensor) (*tensor.Tensor, error) {
	if input == nil || kernel == nil {
		return nil, errors.New("ops: same conv1d requires non-nil input/kernel")
	}

	kShape := kernel.Shape()
	if len(kShape) != 3 {
		return nil, fmt.Errorf("ops: same conv1d kernel must be rank 3, got %v", kShape)
	}

	out, err := Conv1D(input, kernel, bias, 1, kShape[2]/2, 1)
	if err != nil {
		return nil, err
	}

	length := input.Dim(1)
	if out.Dim(1) == length {
		return out, nil
	}

	return out.Narrow(1, 0, length)
}

type conv1DParams struct {
	batch       int64
	inChannels  int64
	length      int64
	outChannels int64
	kernelSize  int64
	outLength   int64
}

func prepareConv1D(input, kernel, bias *tensor.Tensor, stride, padding, dilation int64) (conv1DParams, error) {
	if input == nil || kernel == nil {
		return conv1DParams{}, errors.New("ops: conv1d requires non-nil input/kernel")
	}

	if stride <= 0 || dilation <= 0 {
		return conv1DParams{}, errors.New("ops: conv1d stride/dilation must be > 0")
	}

	if padding < 0 {
		return conv1DParams{}, fmt.Errorf("ops: conv1d padding must be >= 0, got %d", padding)
	}

	inShape := input.Shape()
	kShape := kernel.Shape()

	if len(inShape) != 3 || len(kShape) != 3 {
		return conv1DParams{}, fmt.Errorf("ops: conv1d expects input/kernel rank 3, got %v and %v", inShape, kShape)
	}

	p := conv1DParams{
		batch:       inShape[0],
		length:      inShape[1],
		inChannels:  inShape[2],
		outChannels: kShape[0],
		kernelSize:  kShape[2],
	}

	if kShape[1] != p.inChannels {
		return conv1DParams{}, fmt.Errorf("ops: conv1d kernel in_channels mismatch: got %d want %d", kShape[1], p.inChannels)
	}

	if p.kernelSize <= 0 || p.outChannels <= 0 {
		return conv1DParams{}, fmt.Errorf("ops: conv1d kernel shape %v must be positive", kShape)
	}

	if bias != nil {
		bShape := bias.Shape()
		if len(bShape) != 1 || bShape[0] != p.outChannels {
			return conv1DParams{}, fmt.Errorf("ops: conv1d bias shape %v does not match out_channels %d", bShape, p.outChannels)
		}
	}

	p.outLength = (p.length+2*padding-dilation*(p.kernelSize-1)-1)/stride + 1
	if p.outLength <= 0 {
		return conv1DParams{}, fmt.Errorf("ops: conv1d produced non-positive output length %d", p.outLength)
	}

	return p, nil
}
