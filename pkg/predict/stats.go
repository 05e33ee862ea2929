package predict

import (
	"fmt"
	"math"
)

// Mean returns the arithmetic mean of values, or 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev returns the sample standard deviation (n−1 denominator).
// Fewer than two values yield 0.
func StdDev(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	m := Mean(values)
	var ss float64
	for _, v := range values {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}

// Bounds is the expected [Lo, Hi] range of a metric, used for normalisation.
type Bounds struct {
	Lo float64 `yaml:"lo" json:"lo"`
	Hi float64 `yaml:"hi" json:"hi"`
}

// Normalize maps value into [0, 1] where lower values are better:
// Lo scores 1, Hi scores 0, and anything outside the range is clamped.
func Normalize(value float64, b Bounds) (float64, error) {
	if b.Hi == b.Lo {
		return 0, fmt.Errorf("normalize: empty range [%v, %v]: %w", b.Lo, b.Hi, ErrDegenerateInput)
	}
	if !finite(value) {
		return 0, fmt.Errorf("normalize: non-finite value: %w", ErrDegenerateInput)
	}
	return clamp(1-(value-b.Lo)/(b.Hi-b.Lo), 0, 1), nil
}
