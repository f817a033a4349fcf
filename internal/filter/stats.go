package filter

import "math"

// CoefficientOfVariation 总体标准差 / 均值。ok=false 表示序列为空或均值不为正。
func CoefficientOfVariation(xs []float64) (cv float64, ok bool) {
	if len(xs) == 0 {
		return 0, false
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	if mean <= 0 {
		return 0, false
	}
	var sq float64
	for _, x := range xs {
		d := x - mean
		sq += d * d
	}
	return math.Sqrt(sq/float64(len(xs))) / mean, true
}
