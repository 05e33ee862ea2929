package alerts

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sensorsight/sensorsight/pkg/predict"
	"github.com/sensorsight/sensorsight/pkg/types"
)

// condition is a parsed rule expression of the form "field op value".
//
// Supported expressions:
//
//	health_score < 30
//	composite_score < 40
//	rul < 7
//	temperature >= 60
//	noise_level > 4.5
//	dead_pixels >= 50
//	uptime_pct < 90
//	status == critical
//	condition == degrading
type condition struct {
	field string
	op    string
	rhs   string
	num   float64
}

var numericFields = map[string]bool{
	"health_score":    true,
	"composite_score": true,
	"rul":             true,
	"temperature":     true,
	"noise_level":     true,
	"dead_pixels":     true,
	"uptime_pct":      true,
}

func parseCondition(s string) (condition, error) {
	parts := strings.Fields(s)
	if len(parts) != 3 {
		return condition{}, fmt.Errorf("alerts: condition %q: want \"field op value\"", s)
	}
	c := condition{field: parts[0], op: parts[1], rhs: parts[2]}

	switch {
	case c.field == "status" || c.field == "condition":
		if c.op != "==" && c.op != "!=" {
			return condition{}, fmt.Errorf("alerts: condition %q: %s supports == and != only", s, c.field)
		}
	case numericFields[c.field]:
		switch c.op {
		case ">", ">=", "<", "<=", "==", "!=":
		default:
			return condition{}, fmt.Errorf("alerts: condition %q: unknown operator %q", s, c.op)
		}
		v, err := strconv.ParseFloat(c.rhs, 64)
		if err != nil {
			return condition{}, fmt.Errorf("alerts: condition %q: %w", s, err)
		}
		c.num = v
	default:
		return condition{}, fmt.Errorf("alerts: condition %q: unknown field %q", s, c.field)
	}
	return c, nil
}

// eval reports whether the condition holds for snap and the value it tested.
// Numeric fields are not evaluated on failed-scrape snapshots, and rul only
// when the snapshot carries a projected estimate.
func (c condition) eval(snap *types.SensorSnapshot) (bool, float64) {
	switch c.field {
	case "status":
		return compareString(snap.Status, c.op, c.rhs), 0
	case "condition":
		return compareString(snap.Condition, c.op, c.rhs), 0
	}

	v, ok := numericField(c.field, snap)
	if !ok {
		return false, 0
	}
	return compareFloat(v, c.op, c.num), v
}

func numericField(field string, snap *types.SensorSnapshot) (float64, bool) {
	if snap.ErrorMessage != "" {
		return 0, false
	}
	switch field {
	case "health_score":
		return float64(snap.HealthScore), true
	case "composite_score":
		return snap.CompositeScore, true
	case "rul":
		if snap.RULStatus != predict.RULStatusProjected {
			return 0, false
		}
		return float64(snap.RUL), true
	case "temperature":
		return snap.Latest.Temperature, true
	case "noise_level":
		return snap.Latest.NoiseLevel, true
	case "dead_pixels":
		return snap.Latest.DeadPixels, true
	case "uptime_pct":
		return snap.UptimePct, true
	default:
		return 0, false
	}
}

func compareString(v, op, want string) bool {
	switch op {
	case "==":
		return v == want
	case "!=":
		return v != want
	default:
		return false
	}
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	case "!=":
		return v != threshold
	default:
		return false
	}
}
