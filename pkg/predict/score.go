package predict

import (
	"fmt"
	"math"
)

// Condition labels for a health score, as shown on maintenance cards.
const (
	ConditionOptimal   = "optimal"
	ConditionDegrading = "degrading"
	ConditionCritical  = "critical"
)

// HealthScore maps a current reading to a 0–100 score relative to the
// critical threshold. A reading at or past the threshold scores 0; otherwise
// the score is the remaining headroom as a rounded percentage of threshold.
//
// A zero threshold or a non-finite input returns ErrDegenerateInput.
func HealthScore(current, threshold float64) (int, error) {
	if threshold == 0 {
		return 0, fmt.Errorf("health score: zero threshold: %w", ErrDegenerateInput)
	}
	if !finite(current) || !finite(threshold) {
		return 0, fmt.Errorf("health score: non-finite input: %w", ErrDegenerateInput)
	}
	if current >= threshold {
		return 0, nil
	}
	score := math.Round((threshold - current) / threshold * 100)
	return int(clamp(score, 0, 100)), nil
}

// Condition buckets a health score: above 80 is optimal, above 50 degrading,
// anything else critical.
func Condition(score int) string {
	switch {
	case score > 80:
		return ConditionOptimal
	case score > 50:
		return ConditionDegrading
	default:
		return ConditionCritical
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
