package tensor

import "math"

func equalI64(a, b []int64) bool {
	return equalShape(a, b)
}

func equalF64(a, b []float64, tol float64) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if tol == 0 {
			if a[i] != b[i] {
				return false
			}

			continue
		}

		if math.Abs(a[i]-b[i]) > tol {
			return false
		}
	}

	return true
}

func seqData(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64((i%17)-8) / 17
	}

	return out
}
