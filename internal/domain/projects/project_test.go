package projects

import (
	"math"
	"testing"
)

func TestClampUnit(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{-0.5, 0},
		{0.25, 0.25},
		{3, 1},
		{math.NaN(), 0},
		{math.Inf(1), 1},
		{math.Inf(-1), 0},
	}
	for _, c := range cases {
		if got := ClampUnit(c.in); got != c.want {
			t.Fatalf("ClampUnit(%v)=%v want %v", c.in, got, c.want)
		}
	}
}
