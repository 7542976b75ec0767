package utils

import "math"

// ClampF64 restricts n to [min, max]. NaN is returned unchanged.
func ClampF64(n, min, max float64) float64 {
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}

// ClampInt restricts n to [min, max].
func ClampInt(n, min, max int) int {
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}

// MaxInt returns the larger of a and b.
func MaxInt(a, b int) int {
	if a < b {
		return b
	}
	return a
}

// Square returns n*n.
func Square(n float64) float64 {
	return n * n
}

// ReflectIndex maps an out-of-range index onto [0, n) by half-sample symmetric mirroring:
// -1 -> 0, -2 -> 1, n -> n-1, n+1 -> n-2. n must be positive.
func ReflectIndex(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * n
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - 1 - i
	}
	return i
}
