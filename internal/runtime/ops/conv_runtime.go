package ops

import "sync"

// scratchPool is a size-class pool for reusable []float64 scratch buffers.
// It avoids the per-call im2col allocation in Conv1D.
//
// Size classes are powers of two from 2^10 (1 Ki) to 2^26 (64 Mi floats).
// A request for n floats rounds up to the next power-of-two class.
var scratchPools [17]sync.Pool // indices 10..26 -> pools[0..16]

// getScratch returns a zeroed []float64 of exactly n elements from the pool.
// The caller MUST call putScratch when done.
func getScratch(n int) []float64 {
	cls := scratchClass(n)
	sz := 1 << (cls + 10)
	// Past the largest class the buffer is allocated directly and never pooled.
	if sz < n {
		return make([]float64, n)
	}

	if v := scratchPools[cls].Get(); v != nil {
		buf, ok := v.([]float64)
		if !ok {
			return make([]float64, n)
		}

		buf = buf[:n]
		clear(buf)

		return buf
	}

	buf := make([]float64, sz)

	return buf[:n]
}

// putScratch returns a buffer obtained from getScratch back to the pool.
// Oversized buffers (that bypassed the pool in getScratch) are dropped.
func putScratch(buf []float64) {
	c := cap(buf)

	cls := scratchClass(c)
	if 1<<(cls+10) < c {
		return
	}

	buf = buf[:c]
	scratchPools[cls].Put(buf)
}

// scratchClass returns the pool index for a buffer of n elements.
func scratchClass(n int) int {
	if n <= 1<<10 {
		return 0
	}

	bits := 0

	v := n - 1
	for v > 0 {
		v >>= 1
		bits++
	}

	return min(max(bits-10, 0), 16)
}
