package api

import (
	"github.com/sensorsight/sensorsight/pkg/predict"
	"github.com/sensorsight/sensorsight/pkg/types"
	"github.com/sensorsight/sensorsight/server/internal/alerts"
	"github.com/sensorsight/sensorsight/server/internal/history"
	"github.com/sensorsight/sensorsight/server/internal/store"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	// OverallScore is the mean health score of sensors whose last scrape succeeded.
	OverallScore           float64 `json:"overall_score"`
	Status                 string  `json:"status"`
	SensorCount            int     `json:"sensor_count"`
	HealthyCount           int     `json:"healthy_count"`
	WarningCount           int     `json:"warning_count"`
	PredictiveWarningCount int     `json:"predictive_warning_count"`
	CriticalCount          int     `json:"critical_count"`
	UnknownCount           int     `json:"unknown_count"`
	AlertCount             int     `json:"alert_count"`
}

// SensorResponse is one sensor entry in GET /api/v1/sensors or
// GET /api/v1/sensors/{id}.
type SensorResponse struct {
	SensorID       string                `json:"sensor_id"`
	SensorType     string                `json:"sensor_type"`
	Status         string                `json:"status"`
	Condition      string                `json:"condition,omitempty"`
	HealthScore    int                   `json:"health_score"`
	CompositeScore float64               `json:"composite_score"`
	RUL            int                   `json:"rul"`
	RULStatus      string                `json:"rul_status"`
	RULText        string                `json:"rul_text"`
	Latest         types.Readings        `json:"latest"`
	Thresholds     types.Thresholds      `json:"thresholds"`
	SampleCount    int                   `json:"sample_count"`
	Forecast       []types.ForecastPoint `json:"forecast"`
	Anomalies      []types.Anomaly       `json:"anomalies"`
	UptimePct      float64               `json:"uptime_pct"`
	ErrorMessage   string                `json:"error_message,omitempty"`
	Diagnostics    []DiagnosticHint      `json:"diagnostics"`
	LastSeen       string                `json:"last_seen"` // RFC3339
}

// SensorDetailResponse adds the recent trend and alert list to a sensor.
type SensorDetailResponse struct {
	SensorResponse
	Trend  []store.TrendPoint `json:"trend"`
	Alerts []*alerts.Alert    `json:"alerts"`
}

// HistoryResponse is the payload for GET /api/v1/sensors/{id}/history.
type HistoryResponse struct {
	SensorID    string               `json:"sensor_id"`
	Predictions []history.Prediction `json:"predictions"`
}

// SnapshotResponse is the payload for GET /api/v1/snapshot and the
// WebSocket broadcast.
type SnapshotResponse struct {
	Health      HealthResponse   `json:"health"`
	Sensors     []SensorResponse `json:"sensors"`
	GeneratedAt string           `json:"generated_at"` // RFC3339
}

// PredictRequest is the body of POST /api/v1/predict.
type PredictRequest struct {
	Samples        []predict.Sample `json:"samples"`
	Threshold      float64          `json:"threshold"`
	Current        *float64         `json:"current,omitempty"`
	ForecastPoints int              `json:"forecast_points"`
	RULScale       *float64         `json:"rul_scale,omitempty"`
}

// PredictResponse reports each analytic independently; a degenerate input
// nulls the affected field and explains why instead of failing the request.
type PredictResponse struct {
	Fit         *predict.Fit     `json:"fit"`
	FitError    string           `json:"fit_error,omitempty"`
	Forecast    predict.Forecast `json:"forecast"`
	ForecastErr string           `json:"forecast_error,omitempty"`
	HealthScore *int             `json:"health_score"`
	HealthError string           `json:"health_error,omitempty"`
	Condition   string           `json:"condition,omitempty"`
	RUL         int              `json:"rul"`
	RULStatus   string           `json:"rul_status"`
	RULError    string           `json:"rul_error,omitempty"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
