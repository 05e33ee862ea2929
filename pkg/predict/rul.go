package predict

import (
	"fmt"
	"math"
)

// Sentinel RUL values. They are qualitative markers, not durations.
const (
	// RULInsufficientHistory is returned when the series is too short to trust a trend.
	RULInsufficientHistory = 99

	// RULNoDegradation is returned when the fitted trend is flat or improving.
	RULNoDegradation = 999
)

// RULMinSamples is the minimum series length EstimateRUL will fit.
const RULMinSamples = 5

// DefaultRULScale converts sample-index distance into the reporting unit
// (days). It is a fixed constant, not derived from the actual sampling
// interval; EstimateRULScaled lets callers pass their own.
const DefaultRULScale = 10.0

// RUL status values, so callers can render "no data yet", "stable" and a
// computed countdown differently.
const (
	RULStatusInsufficientData = "insufficient_data"
	RULStatusStable           = "stable"
	RULStatusProjected        = "projected"
)

// RULEstimate is an EstimateRUL result together with its status, so a
// projected countdown that happens to equal a sentinel is not misread.
type RULEstimate struct {
	Steps  int    `json:"steps"`
	Status string `json:"status"`
}

// EstimateRUL projects how many steps remain until the fitted trend of s
// reaches threshold, using DefaultRULScale.
func EstimateRUL(s Series, threshold float64) (int, error) {
	return EstimateRULScaled(s, threshold, DefaultRULScale)
}

// EstimateRULScaled is EstimateRUL with an explicit scale.
func EstimateRULScaled(s Series, threshold, scale float64) (int, error) {
	est, err := ProjectRUL(s, threshold, scale)
	if err != nil {
		return 0, err
	}
	return est.Steps, nil
}

// ProjectRUL computes the remaining useful life of s against threshold:
//
//	n < 5       → RULInsufficientHistory
//	slope ≤ 0   → RULNoDegradation
//	otherwise   → max(0, round((x_target − x_last) / scale))
//
// where x_target solves threshold = slope·x + intercept. Fit errors (zero
// x-variance) are returned, as is ErrDegenerateInput for a non-positive scale
// once the series is long enough to fit.
func ProjectRUL(s Series, threshold, scale float64) (RULEstimate, error) {
	if len(s) < RULMinSamples {
		return RULEstimate{Steps: RULInsufficientHistory, Status: RULStatusInsufficientData}, nil
	}
	if scale <= 0 || !finite(scale) {
		return RULEstimate{}, fmt.Errorf("rul: scale %v: %w", scale, ErrDegenerateInput)
	}

	fit, err := FitSeries(s)
	if err != nil {
		return RULEstimate{}, fmt.Errorf("rul: %w", err)
	}
	if fit.Slope <= 0 {
		return RULEstimate{Steps: RULNoDegradation, Status: RULStatusStable}, nil
	}

	target := (threshold - fit.Intercept) / fit.Slope
	steps := math.Round((target - s.Last().X) / scale)
	if !finite(steps) {
		return RULEstimate{}, fmt.Errorf("rul: non-finite projection: %w", ErrDegenerateInput)
	}
	if steps < 0 {
		steps = 0
	}
	if steps > math.MaxInt32 {
		steps = math.MaxInt32
	}
	return RULEstimate{Steps: int(steps), Status: RULStatusProjected}, nil
}
