package predict

import (
	"fmt"
	"math"
)

// Sample is one observation. X is an ordinal position or a timestamp-derived
// index; Y is the observed reading.
type Sample struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Series is an ordered sequence of samples, assumed chronological
// (non-decreasing X). No deduplication or gap filling is performed.
type Series []Sample

// Forecast is a sequence of extrapolated samples beyond the last observed X.
type Forecast []Sample

// Fit is the slope/intercept pair of a least-squares line y = Slope·x + Intercept.
type Fit struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
}

// Last returns the final sample of s. It panics on an empty series.
func (s Series) Last() Sample { return s[len(s)-1] }

// Interval returns the spacing between the first two samples, which is the
// step used when extrapolating. It returns 1 when the spacing is undefined
// (fewer than two samples) or does not move forward.
func (s Series) Interval() float64 {
	if len(s) < 2 {
		return 1
	}
	d := s[1].X - s[0].X
	if d <= 0 || math.IsNaN(d) || math.IsInf(d, 0) {
		return 1
	}
	return d
}

// FitSeries computes the ordinary-least-squares line over s in a single pass:
//
//	slope     = (n·Σxy − Σx·Σy) / (n·Σxx − (Σx)²)
//	intercept = (Σy − slope·Σx) / n
//
// It returns ErrInsufficientData for fewer than two samples and
// ErrDegenerateInput when every X is identical, when the denominator is
// exactly zero, or when the result is not finite.
func FitSeries(s Series) (Fit, error) {
	n := len(s)
	if n < 2 {
		return Fit{}, fmt.Errorf("fit over %d samples: %w", n, ErrInsufficientData)
	}

	var sumX, sumY, sumXY, sumXX float64
	minX, maxX := s[0].X, s[0].X
	for _, p := range s {
		sumX += p.X
		sumY += p.Y
		sumXY += p.X * p.Y
		sumXX += p.X * p.X
		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
	}

	fn := float64(n)
	denom := fn*sumXX - sumX*sumX
	if denom == 0 || minX == maxX {
		return Fit{}, fmt.Errorf("fit: zero x-variance: %w", ErrDegenerateInput)
	}

	slope := (fn*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / fn
	if !finite(slope) || !finite(intercept) {
		return Fit{}, fmt.Errorf("fit: non-finite coefficients: %w", ErrDegenerateInput)
	}
	return Fit{Slope: slope, Intercept: intercept}, nil
}

// At evaluates the fitted line at x.
func (f Fit) At(x float64) float64 {
	return f.Slope*x + f.Intercept
}

// Project extrapolates k samples at lastX + i·interval for i = 1..k.
// A non-positive k yields an empty forecast. The returned slice is freshly
// allocated on every call.
func (f Fit) Project(lastX, interval float64, k int) Forecast {
	if k <= 0 {
		return Forecast{}
	}
	out := make(Forecast, k)
	for i := 1; i <= k; i++ {
		x := lastX + float64(i)*interval
		out[i-1] = Sample{X: x, Y: f.At(x)}
	}
	return out
}

// MaxForecastPoints bounds forecast lengths accepted from configuration and
// API requests.
const MaxForecastPoints = 1000

// Extrapolate is Project that refuses to emit infinities: a finite fit can
// still overflow far from the data, and then ErrDegenerateInput is returned.
func (f Fit) Extrapolate(lastX, interval float64, k int) (Forecast, error) {
	out := f.Project(lastX, interval, k)
	for _, p := range out {
		if !finite(p.X) || !finite(p.Y) {
			return nil, fmt.Errorf("forecast: point (%v, %v): %w", p.X, p.Y, ErrDegenerateInput)
		}
	}
	return out, nil
}

// ForecastSeries fits s and extrapolates k points past its last sample,
// spaced by s.Interval(). Fit errors are returned unchanged; a projection
// that overflows float64 fails with ErrDegenerateInput.
func ForecastSeries(s Series, k int) (Forecast, error) {
	fit, err := FitSeries(s)
	if err != nil {
		return nil, err
	}
	return fit.Extrapolate(s.Last().X, s.Interval(), k)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
