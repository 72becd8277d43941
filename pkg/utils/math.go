package utils

import "math"

// NormEpsilon is added to the L2 norm before dividing so zero vectors stay finite.
const NormEpsilon = 1e-10

// Normalize returns v / (‖v‖₂ + NormEpsilon) as a new slice. The input is not modified.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	inv := 1.0 / (math.Sqrt(sum) + NormEpsilon)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}

// L2Norm returns the Euclidean length of v.
func L2Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
