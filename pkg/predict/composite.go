package predict

import "math"

// Device status values, ordered from best to worst.
const (
	StatusHealthy           = "healthy"
	StatusWarning           = "warning"
	StatusPredictiveWarning = "predictive_warning"
	StatusCritical          = "critical"
	StatusUnknown           = "unknown"
)

// CompositeWeights weight the three factors of CompositeHealth.
// They should sum to 1.
type CompositeWeights struct {
	TempStability float64 `yaml:"temp_stability" json:"temp_stability"`
	NoiseLevel    float64 `yaml:"noise_level" json:"noise_level"`
	PixelGrowth   float64 `yaml:"pixel_growth" json:"pixel_growth"`
}

// MetricBounds are the expected ranges used to normalise each factor.
type MetricBounds struct {
	TempStdDev  Bounds `yaml:"temp_std" json:"temp_std"`
	NoiseLevel  Bounds `yaml:"noise_level" json:"noise_level"`
	PixelGrowth Bounds `yaml:"pixel_growth" json:"pixel_growth"`
}

var (
	DefaultCompositeWeights = CompositeWeights{TempStability: 0.3, NoiseLevel: 0.5, PixelGrowth: 0.2}

	DefaultMetricBounds = MetricBounds{
		TempStdDev:  Bounds{Lo: 0, Hi: 2},
		NoiseLevel:  Bounds{Lo: 0.5, Hi: 5.0},
		PixelGrowth: Bounds{Lo: 0, Hi: 5},
	}
)

// CompositeInput is a window of readings, oldest first.
type CompositeInput struct {
	Temperatures []float64
	NoiseLevels  []float64
	DeadPixels   []float64
}

// CompositeHealth scores a window on temperature stability, the latest noise
// level and dead-pixel growth, using the default weights and bounds.
func CompositeHealth(in CompositeInput) (float64, error) {
	return CompositeHealthWith(in, DefaultCompositeWeights, DefaultMetricBounds)
}

// CompositeHealthWith computes
//
//	(norm(std(temp))·w_temp + norm(noise_latest)·w_noise + norm(pixel_growth)·w_pixel) · 100
//
// rounded to two decimals. An empty window scores 0.
func CompositeHealthWith(in CompositeInput, w CompositeWeights, b MetricBounds) (float64, error) {
	if len(in.Temperatures) == 0 {
		return 0, nil
	}

	tempScore, err := Normalize(StdDev(in.Temperatures), b.TempStdDev)
	if err != nil {
		return 0, err
	}

	var noise float64
	if n := len(in.NoiseLevels); n > 0 {
		noise = in.NoiseLevels[n-1]
	}
	noiseScore, err := Normalize(noise, b.NoiseLevel)
	if err != nil {
		return 0, err
	}

	var growth float64
	if n := len(in.DeadPixels); n > 1 {
		growth = in.DeadPixels[n-1] - in.DeadPixels[0]
	}
	pixelScore, err := Normalize(growth, b.PixelGrowth)
	if err != nil {
		return 0, err
	}

	score := (tempScore*w.TempStability + noiseScore*w.NoiseLevel + pixelScore*w.PixelGrowth) * 100
	return math.Round(score*100) / 100, nil
}

// DeviceStatus classifies a device from its composite score and RUL. Later
// rules take precedence: critical beats predictive_warning beats warning.
// rulKnown is false when the RUL is a sentinel rather than a projection.
func DeviceStatus(score float64, rul int, rulKnown bool) string {
	status := StatusHealthy
	if score < 50 {
		status = StatusWarning
	}
	if rulKnown && rul < 30 {
		status = StatusPredictiveWarning
	}
	if score < 20 || (rulKnown && rul < 7) {
		status = StatusCritical
	}
	return status
}
