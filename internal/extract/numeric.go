package extract

import "math"

// The primitives below are part of the versioned core_v1 contract and must
// stay bit-for-bit reproducible: plain left-to-right sums, no compensated or
// vectorised summation. Explicit float64 conversions around products stop
// the compiler from fusing multiply-add, which would change results on
// arm64/ppc64/s390x.

// mean returns the arithmetic mean of xs, or 0 for an empty slice.
func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// std returns the population standard deviation (divide by n) of xs, or 0
// for an empty slice.
func std(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += float64(d * d)
	}
	return math.Sqrt(ss / float64(len(xs)))
}

// trapezoid integrates y over x with the trapezoidal rule.
func trapezoid(y, x []float64) float64 {
	n := min(len(x), len(y))
	if n < 2 {
		return 0
	}
	var area float64
	for i := 1; i < n; i++ {
		area += float64(0.5 * (y[i] + y[i-1]) * (x[i] - x[i-1]))
	}
	return area
}

// linearRegressionSlope returns the ordinary least squares slope of y on x
// using the closed-form normal equation. Degenerate inputs (fewer than two
// points, or x values too close together) yield 0.
func linearRegressionSlope(x, y []float64) float64 {
	n := min(len(x), len(y))
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumX2 float64
	for i := 0; i < n; i++ {
		sumX += x[i]
		sumY += y[i]
		sumXY += float64(x[i] * y[i])
		sumX2 += float64(x[i] * x[i])
	}
	fn := float64(n)
	denom := float64(fn*sumX2) - float64(sumX*sumX)
	if math.Abs(denom) < 1e-9 {
		return 0
	}
	return (float64(fn*sumXY) - float64(sumX*sumY)) / denom
}
