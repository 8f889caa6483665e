package models

import (
	"math"
	"testing"
)

func TestComponentResultQuantizationError(t *testing.T) {
	tests := []struct {
		name      string
		optimized float64
		quantized float64
		want      float64
	}{
		{"rounded up", 1530, 1540, 10.0 / 1530},
		{"rounded down", 1519, 1500, -19.0 / 1519},
		{"exact", 1000, 1000, 0},
		{"no optimized value", 0, 1000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &ComponentResult{Optimized: tt.optimized, Quantized: tt.quantized}
			if got := c.QuantizationError(); math.Abs(got-tt.want) > 1e-15 {
				t.Errorf("QuantizationError() = %v, want %v", got, tt.want)
			}
		})
	}
}
