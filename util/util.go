// Package util contains misc internal utilities.
package util

// Clamp constrains x to the interval [lower, upper]
func Clamp(x, lower, upper float64) float64 {
	if x < lower {
		return lower
	}
	if x > upper {
		return upper
	}
	return x
}

// Limiter is a pair of bounds on a value.  The zero value has no bounds
// and passes everything.
type Limiter struct {
	// Min is the lower bound
	Min float64 `json:"min"`

	// Max is the upper bound
	Max float64 `json:"max"`
}

// Check returns true if Min <= v <= Max.  A Limiter with Min == Max == 0
// is treated as unbounded.
func (l Limiter) Check(v float64) bool {
	if l.Min == 0 && l.Max == 0 {
		return true
	}
	return v >= l.Min && v <= l.Max
}
