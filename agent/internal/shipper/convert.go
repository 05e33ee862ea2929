package shipper

import (
	"github.com/sensorsight/sensorsight/agent/internal/compute"
	"github.com/sensorsight/sensorsight/pkg/types"
)

// toSnapshot converts a compute.Result into the wire snapshot sent to
// sensorsight-server.
func toSnapshot(r *compute.Result) *types.SensorSnapshot {
	snap := &types.SensorSnapshot{
		SensorID:       r.SensorID,
		SensorType:     r.SensorType,
		TimestampUnix:  r.Timestamp.Unix(),
		Status:         r.Status,
		Condition:      r.Condition,
		HealthScore:    r.HealthScore,
		CompositeScore: r.CompositeScore,
		RUL:            r.RUL,
		RULStatus:      r.RULStatus,
		Latest: types.Readings{
			Temperature: r.Latest.Temperature,
			NoiseLevel:  r.Latest.NoiseLevel,
			DeadPixels:  r.Latest.DeadPixels,
		},
		Thresholds: types.Thresholds{
			TemperatureCritical: r.Thresholds.Temperature.Critical,
			NoiseCritical:       r.Thresholds.NoiseLevel.Critical,
		},
		SampleCount:  r.SampleCount,
		UptimePct:    r.UptimePct,
		ErrorMessage: r.ErrorMessage,
	}

	for _, p := range r.Forecast {
		snap.Forecast = append(snap.Forecast, types.ForecastPoint{X: p.X, Y: p.Y})
	}
	for _, a := range r.Anomalies {
		snap.Anomalies = append(snap.Anomalies, types.Anomaly{
			Kind:      a.Kind,
			Metric:    a.Metric,
			Severity:  a.Severity,
			Value:     a.Value,
			Reference: a.Reference,
			Message:   a.Message,
		})
	}
	return snap
}
