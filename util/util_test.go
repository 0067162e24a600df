package util

import "testing"

func TestClamp(t *testing.T) {
	cases := []struct {
		in, lower, upper, want float64
	}{
		{5, 0, 10, 5},
		{-5, 0, 10, 0},
		{15, 0, 10, 10},
		{-12, -10, 10, -10},
	}
	for _, tc := range cases {
		got := Clamp(tc.in, tc.lower, tc.upper)
		if got != tc.want {
			t.Errorf("Clamp(%v, %v, %v) = %v, want %v", tc.in, tc.lower, tc.upper, got, tc.want)
		}
	}
}

func TestLimiterZeroValuePassesEverything(t *testing.T) {
	var l Limiter
	for _, v := range []float64{-1e9, 0, 1e9} {
		if !l.Check(v) {
			t.Errorf("zero Limiter rejected %v", v)
		}
	}
}

func TestLimiterBounds(t *testing.T) {
	l := Limiter{Min: -10, Max: 10}
	if !l.Check(5) {
		t.Error("5 should pass (-10, 10)")
	}
	if !l.Check(-10) {
		t.Error("bounds are inclusive")
	}
	if l.Check(10.001) {
		t.Error("10.001 should fail (-10, 10)")
	}
}
