package compute

import (
	"github.com/sensorsight/sensorsight/agent/internal/config"
	"github.com/sensorsight/sensorsight/pkg/predict"
)

// Input is one sensor window, oldest reading first, plus the settings the
// predictions are computed against.
type Input struct {
	Temperatures []float64
	NoiseLevels  []float64
	DeadPixels   []float64

	Thresholds     config.Thresholds
	ForecastPoints int
	RULScale       float64

	// Fits memoizes trend fits across calls. Nil fits directly.
	Fits *predict.FitCache
}

// Output is the prediction set for one window.
type Output struct {
	HealthScore    int
	Condition      string
	CompositeScore float64

	RUL       int
	RULStatus string

	// Forecast holds ForecastPoints temperature values past the window,
	// or nil when no trend could be fitted.
	Forecast predict.Forecast

	Status string

	// HealthErr and RULErr report degenerate inputs that were absorbed
	// into a zero score or an unknown RUL.
	HealthErr error
	RULErr    error
}

// Compute derives health, composite score, RUL and forecast from a window:
//
//   - health: latest temperature against the temperature critical limit
//   - RUL: noise trend against the noise critical limit, in RULScale units
//   - forecast: temperature trend extrapolated ForecastPoints steps
//   - status: composite score and RUL folded into one device status
//
// X values are window ordinals 0..n-1, so a fixed scrape interval maps
// one step to one interval.
func Compute(in Input) Output {
	n := len(in.Temperatures)
	if n == 0 {
		return Output{
			Status:    predict.StatusUnknown,
			RUL:       predict.RULInsufficientHistory,
			RULStatus: predict.RULStatusInsufficientData,
		}
	}

	var out Output

	out.HealthScore, out.HealthErr = predict.HealthScore(in.Temperatures[n-1], in.Thresholds.Temperature.Critical)
	out.Condition = predict.Condition(out.HealthScore)

	scale := in.RULScale
	if scale == 0 {
		scale = predict.DefaultRULScale
	}
	est, err := predict.ProjectRUL(ordinalSeries(in.NoiseLevels), in.Thresholds.NoiseLevel.Critical, scale)
	if err != nil {
		out.RULErr = err
		est = predict.RULEstimate{Steps: predict.RULInsufficientHistory, Status: predict.RULStatusInsufficientData}
	}
	out.RUL, out.RULStatus = est.Steps, est.Status

	if in.ForecastPoints > 0 && n >= 2 {
		temps := ordinalSeries(in.Temperatures)
		var fit predict.Fit
		if in.Fits != nil {
			fit, err = in.Fits.Fit(temps)
		} else {
			fit, err = predict.FitSeries(temps)
		}
		if err == nil {
			out.Forecast, _ = fit.Extrapolate(temps.Last().X, temps.Interval(), in.ForecastPoints)
		}
	}

	// Bounds are the package defaults, which are never degenerate.
	out.CompositeScore, _ = predict.CompositeHealth(predict.CompositeInput{
		Temperatures: in.Temperatures,
		NoiseLevels:  in.NoiseLevels,
		DeadPixels:   in.DeadPixels,
	})

	out.Status = predict.DeviceStatus(out.CompositeScore, out.RUL, out.RULStatus == predict.RULStatusProjected)
	return out
}

// ordinalSeries pairs each value with its index.
func ordinalSeries(values []float64) predict.Series {
	s := make(predict.Series, len(values))
	for i, v := range values {
		s[i] = predict.Sample{X: float64(i), Y: v}
	}
	return s
}
