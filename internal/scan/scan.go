// Package scan evaluates prefix combinations of associative operators in
// logarithmic sequential depth, and builds the complex linear recurrence
// h_t = f_t*h_{t-1} + x_t on top of it.
//
// The generic scan is a chunked two-level algorithm: the sequence is cut into
// blocks, every block is scanned independently, the block totals are scanned
// by a recursive call, and finally each block is prefixed with the combined
// total of the blocks before it. With block size B the sequential depth is
// O(B*log_B(N)), total work is O(N) and the extra memory is the O(N/B) block
// totals per recursion level.
package scan

import (
	"github.com/example/go-summer/internal/runtime/tensor"
)

// DefaultBlockSize is the number of elements scanned sequentially per block.
const DefaultBlockSize = 64

type config struct {
	blockSize int
	workers   int
}

// Option configures a scan.
type Option func(*config)

// WithBlockSize sets the block length. Values < 2 fall back to the default.
func WithBlockSize(n int) Option {
	return func(c *config) {
		if n >= 2 {
			c.blockSize = n
		}
	}
}

// WithWorkers bounds the goroutines used per call. Values < 1 mean 1.
func WithWorkers(n int) Option {
	return func(c *config) {
		c.workers = max(n, 1)
	}
}

func newConfig(opts []Option) config {
	c := config{blockSize: DefaultBlockSize, workers: tensor.Workers()}
	for _, opt := range opts {
		opt(&c)
	}

	return c
}

// Inclusive replaces xs[i] with op(xs[0], ..., xs[i]) in place. op must be
// associative; it need not be commutative and is always called as
// op(earlier, later).
func Inclusive[T any](xs []T, op func(a, b T) T, opts ...Option) {
	cfg := newConfig(opts)
	inclusive(xs, op, cfg)
}

func inclusive[T any](xs []T, op func(a, b T) T, cfg config) {
	n := len(xs)
	bs := cfg.blockSize

	if n <= bs {
		sequential(xs, op)
		return
	}

	blocks := (n + bs - 1) / bs
	totals := make([]T, blocks)

	tensor.ParallelFor(blocks, cfg.workers, func(lo, hi int) {
		for blk := lo; blk < hi; blk++ {
			part := xs[blk*bs : min((blk+1)*bs, n)]
			sequential(part, op)
			totals[blk] = part[len(part)-1]
		}
	})

	inclusive(totals, op, cfg)

	// Block 0 already holds final prefixes.
	tensor.ParallelFor(blocks-1, cfg.workers, func(lo, hi int) {
		for blk := lo + 1; blk <= hi; blk++ {
			carry := totals[blk-1]
			part := xs[blk*bs : min((blk+1)*bs, n)]

			for i := range part {
				part[i] = op(carry, part[i])
			}
		}
	})
}

func sequential[T any](xs []T, op func(a, b T) T) {
	for i := 1; i < len(xs); i++ {
		xs[i] = op(xs[i-1], xs[i])
	}
}

// Exclusive replaces xs[i] with op(identity, xs[0], ..., xs[i-1]) in place.
func Exclusive[T any](xs []T, identity T, op func(a, b T) T, opts ...Option) {
	if len(xs) == 0 {
		return
	}

	Inclusive(xs, op, opts...)
	copy(xs[1:], xs[:len(xs)-1])
	xs[0] = identity
}

// Reduce folds xs with op using the same block decomposition as Inclusive.
// It returns identity for an empty input and does not modify xs.
func Reduce[T any](xs []T, identity T, op func(a, b T) T, opts ...Option) T {
	cfg := newConfig(opts)

	return reduce(xs, identity, op, cfg)
}

func reduce[T any](xs []T, identity T, op func(a, b T) T, cfg config) T {
	n := len(xs)
	if n == 0 {
		return identity
	}

	bs := cfg.blockSize
	if n <= bs {
		acc := xs[0]
		for _, v := range xs[1:] {
			acc = op(acc, v)
		}

		return acc
	}

	blocks := (n + bs - 1) / bs
	totals := make([]T, blocks)

	tensor.ParallelFor(blocks, cfg.workers, func(lo, hi int) {
		for blk := lo; blk < hi; blk++ {
			part := xs[blk*bs : min((blk+1)*bs, n)]
			acc := part[0]

			for _, v := range part[1:] {
				acc = op(acc, v)
			}

			totals[blk] = acc
		}
	})

	return reduce(totals, identity, op, cfg)
}
