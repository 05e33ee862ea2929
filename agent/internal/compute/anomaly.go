package compute

import (
	"fmt"
	"time"

	"github.com/sensorsight/sensorsight/agent/internal/config"
	"github.com/sensorsight/sensorsight/pkg/predict"
)

// Anomaly kinds.
const (
	KindThreshold = "threshold"
	KindSpike     = "spike"
	KindSigma     = "sigma"
)

// Severities, ordered info < warning < critical.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Metric names used in anomalies and alerts.
const (
	MetricTemperature = "temperature"
	MetricNoiseLevel  = "noise_level"
	MetricDeadPixels  = "dead_pixels"
)

const (
	// spikeFactor flags a reading more than 50% above its predecessor.
	spikeFactor = 1.5

	// sigmaFactor and sigmaMinSamples configure the 3-sigma outlier check.
	sigmaFactor     = 3.0
	sigmaMinSamples = 10

	// AnomalyCooldown limits fresh detections per sensor and metric.
	AnomalyCooldown = 5 * time.Minute
)

// Anomaly is one detection on the latest reading of a window.
type Anomaly struct {
	Kind      string
	Metric    string
	Severity  string
	Value     float64
	Reference float64 // limit, previous value or upper bound that was crossed
	Message   string

	// Fresh is set on the first detection per metric within AnomalyCooldown.
	Fresh bool
}

// detect checks the last value of each metric series against the fixed
// thresholds, its predecessor and the window's 3-sigma band. Candidates are
// returned per metric in that order; cooldown filtering is the caller's job.
func detect(in Input) []Anomaly {
	metrics := []struct {
		name   string
		values []float64
		band   config.Band
	}{
		{MetricTemperature, in.Temperatures, in.Thresholds.Temperature},
		{MetricNoiseLevel, in.NoiseLevels, in.Thresholds.NoiseLevel},
		{MetricDeadPixels, in.DeadPixels, in.Thresholds.DeadPixels},
	}

	var out []Anomaly
	for _, m := range metrics {
		n := len(m.values)
		if n == 0 {
			continue
		}
		v := m.values[n-1]

		switch {
		case m.band.Critical > 0 && v >= m.band.Critical:
			out = append(out, Anomaly{
				Kind: KindThreshold, Metric: m.name, Severity: SeverityCritical,
				Value: v, Reference: m.band.Critical,
				Message: fmt.Sprintf("%s %.2f at or above critical limit %.2f", m.name, v, m.band.Critical),
			})
		case m.band.Warning > 0 && v >= m.band.Warning:
			out = append(out, Anomaly{
				Kind: KindThreshold, Metric: m.name, Severity: SeverityWarning,
				Value: v, Reference: m.band.Warning,
				Message: fmt.Sprintf("%s %.2f at or above warning limit %.2f", m.name, v, m.band.Warning),
			})
		}

		if n > 1 {
			if prev := m.values[n-2]; prev > 0 && v > prev*spikeFactor {
				out = append(out, Anomaly{
					Kind: KindSpike, Metric: m.name, Severity: SeverityWarning,
					Value: v, Reference: prev,
					Message: fmt.Sprintf("%s jumped from %.2f to %.2f", m.name, prev, v),
				})
			}
		}

		if n > sigmaMinSamples {
			upper := predict.Mean(m.values) + sigmaFactor*predict.StdDev(m.values)
			if v > upper {
				out = append(out, Anomaly{
					Kind: KindSigma, Metric: m.name, Severity: SeverityWarning,
					Value: v, Reference: upper,
					Message: fmt.Sprintf("%s %.2f above 3-sigma bound %.2f", m.name, v, upper),
				})
			}
		}
	}
	return out
}
