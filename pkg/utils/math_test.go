package utils

import (
	"math"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   []float32
	}{
		{"axis", []float32{3, 0, 0}},
		{"mixed", []float32{3, 4}},
		{"negative", []float32{-1, 2, -2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Normalize(tt.in)
			if n := L2Norm(out); math.Abs(n-1) > 1e-6 {
				t.Errorf("norm = %v, want 1", n)
			}
		})
	}
}

func TestNormalize_zeroVectorStaysFinite(t *testing.T) {
	out := Normalize([]float32{0, 0, 0})
	for i, v := range out {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) || v != 0 {
			t.Errorf("out[%d] = %v, want 0", i, v)
		}
	}
}

func TestNormalize_doesNotModifyInput(t *testing.T) {
	in := []float32{3, 4}
	_ = Normalize(in)
	if in[0] != 3 || in[1] != 4 {
		t.Errorf("input modified: %v", in)
	}
}
