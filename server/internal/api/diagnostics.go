package api

import (
	"fmt"
	"sort"

	"github.com/sensorsight/sensorsight/pkg/predict"
	"github.com/sensorsight/sensorsight/pkg/types"
)

// DiagnosticHint is one human-readable insight about a sensor's health.
// The dashboard shows these as chips on the sensor card; Detail is the
// plain-English explanation shown on click.
type DiagnosticHint struct {
	// Key is a stable machine-readable identifier.
	Key string `json:"key"`
	// Level is "ok" | "info" | "warning" | "critical".
	Level  string   `json:"level"`
	Title  string   `json:"title"`
	Detail string   `json:"detail"`
	Value  *float64 `json:"value,omitempty"`
}

var levelRank = map[string]int{"critical": 0, "warning": 1, "info": 2, "ok": 3}

const (
	// hotRatio and noisyRatio mark the warning band as a fraction of the
	// critical limit; they match the default 45/60 and 2.5/5.0 bands.
	hotRatio   = 0.75
	noisyRatio = 0.5
)

// computeDiagnostics derives hints from a snapshot, critical first.
func computeDiagnostics(snap *types.SensorSnapshot) []DiagnosticHint {
	if snap.ErrorMessage != "" {
		return []DiagnosticHint{{
			Key:   "scrape_failed",
			Level: "critical",
			Title: "Can't reach sensor",
			Detail: fmt.Sprintf(
				"The agent could not read this sensor on its last attempt: %q. "+
					"Check that the exporter or broker is reachable and the sensor is powered. "+
					"Scores and RUL are frozen until the next successful read.",
				snap.ErrorMessage),
		}}
	}

	var hints []DiagnosticHint

	switch snap.RULStatus {
	case predict.RULStatusInsufficientData:
		v := float64(snap.SampleCount)
		hints = append(hints, DiagnosticHint{
			Key:   "insufficient_data",
			Level: "info",
			Title: "Collecting history",
			Detail: fmt.Sprintf(
				"Only %d readings are in the window. Remaining-life projection needs at least %d, "+
					"so the RUL shown is a placeholder. No action needed.",
				snap.SampleCount, predict.RULMinSamples),
			Value: &v,
		})
	case predict.RULStatusStable:
		hints = append(hints, DiagnosticHint{
			Key:   "stable",
			Level: "ok",
			Title: "No degradation trend",
			Detail: "Noise level is flat or falling across the window, so no end-of-life date " +
				"can be projected. This is the expected state for a healthy sensor.",
		})
	case predict.RULStatusProjected:
		v := float64(snap.RUL)
		level := "info"
		switch {
		case snap.RUL < 7:
			level = "critical"
		case snap.RUL < 30:
			level = "warning"
		}
		hints = append(hints, DiagnosticHint{
			Key:   "rul_countdown",
			Level: level,
			Title: fmt.Sprintf("%d days to noise limit", snap.RUL),
			Detail: fmt.Sprintf(
				"At the current rate of increase the noise level reaches the critical limit of %.2f "+
					"in about %d days. Plan a replacement or recalibration before then.",
				snap.Thresholds.NoiseCritical, snap.RUL),
			Value: &v,
		})
	}

	if limit := snap.Thresholds.TemperatureCritical; limit > 0 {
		t := snap.Latest.Temperature
		if t >= limit*hotRatio {
			v := t
			level := "warning"
			if t >= limit {
				level = "critical"
			}
			hints = append(hints, DiagnosticHint{
				Key:   "hot",
				Level: level,
				Title: fmt.Sprintf("Running hot (%.1f C)", t),
				Detail: fmt.Sprintf(
					"Sensor temperature is %.1f C against a critical limit of %.1f C. "+
						"Heat accelerates dark current and pixel failure; check cooling and enclosure airflow.",
					t, limit),
				Value: &v,
			})
		}
	}

	if limit := snap.Thresholds.NoiseCritical; limit > 0 {
		n := snap.Latest.NoiseLevel
		if n >= limit*noisyRatio {
			v := n
			level := "warning"
			if n >= limit {
				level = "critical"
			}
			hints = append(hints, DiagnosticHint{
				Key:   "noisy",
				Level: level,
				Title: fmt.Sprintf("Noise %.2f", n),
				Detail: fmt.Sprintf(
					"Image noise is %.2f against a critical limit of %.2f. "+
						"Rising noise usually follows rising temperature; if temperature is normal, "+
						"suspect sensor ageing.",
					n, limit),
				Value: &v,
			})
		}
	}

	if snap.UptimePct > 0 && snap.UptimePct < 100 {
		v := snap.UptimePct
		level := "info"
		switch {
		case snap.UptimePct < 70:
			level = "critical"
		case snap.UptimePct < 90:
			level = "warning"
		}
		hints = append(hints, DiagnosticHint{
			Key:   "uptime",
			Level: level,
			Title: fmt.Sprintf("%.0f%% uptime", snap.UptimePct),
			Detail: fmt.Sprintf(
				"The sensor answered %.0f%% of the last 20 scrape attempts. "+
					"Intermittent failures point at network or power issues.",
				snap.UptimePct),
			Value: &v,
		})
	}

	for _, a := range snap.Anomalies {
		v := a.Value
		hints = append(hints, DiagnosticHint{
			Key:    "anomaly_" + a.Kind + "_" + a.Metric,
			Level:  a.Severity,
			Title:  fmt.Sprintf("%s %s", a.Metric, a.Kind),
			Detail: a.Message,
			Value:  &v,
		})
	}

	if len(hints) == 0 {
		score := float64(snap.HealthScore)
		hints = append(hints, DiagnosticHint{
			Key:   "healthy",
			Level: "ok",
			Title: "All clear",
			Detail: fmt.Sprintf(
				"Health score is %d/100 with no anomalies and full uptime.", snap.HealthScore),
			Value: &score,
		})
	}

	sort.SliceStable(hints, func(i, j int) bool {
		return levelRank[hints[i].Level] < levelRank[hints[j].Level]
	})
	return hints
}
