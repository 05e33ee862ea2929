package types

// SensorSnapshot is the fully derived health picture of one sensor at the end
// of a scrape cycle.
type SensorSnapshot struct {
	SensorID      string `json:"sensor_id"`
	SensorType    string `json:"sensor_type"`
	TimestampUnix int64  `json:"timestamp_unix"`

	// Status is one of healthy | warning | predictive_warning | critical | unknown.
	Status string `json:"status"`
	// Condition is the maintenance-card label: optimal | degrading | critical.
	Condition string `json:"condition,omitempty"`

	HealthScore    int     `json:"health_score"`
	CompositeScore float64 `json:"composite_score"`

	// RUL is the remaining-useful-life estimate in reporting units (days).
	// RULStatus disambiguates it: insufficient_data | stable | projected.
	RUL       int    `json:"rul"`
	RULStatus string `json:"rul_status"`

	Latest     Readings   `json:"latest"`
	Thresholds Thresholds `json:"thresholds"`

	// SampleCount is the number of readings in the agent's window.
	SampleCount int `json:"sample_count"`

	Forecast  []ForecastPoint `json:"forecast,omitempty"`
	Anomalies []Anomaly       `json:"anomalies,omitempty"`

	UptimePct    float64 `json:"uptime_pct"`
	ErrorMessage string  `json:"error_message,omitempty"`
}

// Readings holds one value per tracked metric.
type Readings struct {
	Temperature float64 `json:"temperature"`
	NoiseLevel  float64 `json:"noise_level"`
	DeadPixels  float64 `json:"dead_pixels"`
}

// Thresholds carries the critical limits the scores were computed against.
type Thresholds struct {
	TemperatureCritical float64 `json:"temperature_critical"`
	NoiseCritical       float64 `json:"noise_critical"`
}

// ForecastPoint is one extrapolated temperature value. X is the window
// ordinal the value was projected at.
type ForecastPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Anomaly is one agent-side detection on the latest reading.
type Anomaly struct {
	// Kind is threshold | spike | sigma.
	Kind     string  `json:"kind"`
	Metric   string  `json:"metric"`
	Severity string  `json:"severity"`
	Value    float64 `json:"value"`
	// Reference is the limit, previous value or upper bound that was crossed.
	Reference float64 `json:"reference"`
	Message   string  `json:"message"`
}

// SendResponse acknowledges a SensorSnapshot.
type SendResponse struct {
	Ok      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}
