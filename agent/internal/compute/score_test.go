package compute

import (
	"errors"
	"math"
	"testing"

	"github.com/sensorsight/sensorsight/agent/internal/config"
	"github.com/sensorsight/sensorsight/pkg/predict"
)

// almostEqual returns true if a and b are within epsilon of each other.
func almostEqual(a, b, epsilon float64) bool {
	return math.Abs(a-b) < epsilon
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// --- Compute() ---

func TestCompute_EmptyWindow(t *testing.T) {
	out := Compute(Input{Thresholds: config.DefaultThresholds()})
	if out.Status != predict.StatusUnknown {
		t.Errorf("Status = %q, want unknown", out.Status)
	}
	if out.RUL != predict.RULInsufficientHistory || out.RULStatus != predict.RULStatusInsufficientData {
		t.Errorf("RUL = %d/%q, want insufficient history", out.RUL, out.RULStatus)
	}
}

func TestCompute_ShortWindow(t *testing.T) {
	out := Compute(Input{
		Temperatures:   []float64{40, 41, 42},
		NoiseLevels:    []float64{1, 1.1, 1.2},
		DeadPixels:     []float64{5, 5, 6},
		Thresholds:     config.DefaultThresholds(),
		ForecastPoints: 3,
	})

	// (60-42)/60 = 30%
	if out.HealthScore != 30 {
		t.Errorf("HealthScore = %d, want 30", out.HealthScore)
	}
	if out.Condition != predict.ConditionCritical {
		t.Errorf("Condition = %q, want critical", out.Condition)
	}
	if out.RUL != predict.RULInsufficientHistory || out.RULStatus != predict.RULStatusInsufficientData {
		t.Errorf("RUL = %d/%q, want insufficient history for 3 samples", out.RUL, out.RULStatus)
	}

	want := []float64{43, 44, 45}
	if len(out.Forecast) != len(want) {
		t.Fatalf("Forecast len = %d, want %d", len(out.Forecast), len(want))
	}
	for i, p := range out.Forecast {
		if !almostEqual(p.X, float64(3+i), 1e-9) || !almostEqual(p.Y, want[i], 1e-9) {
			t.Errorf("Forecast[%d] = (%v, %v), want (%d, %v)", i, p.X, p.Y, 3+i, want[i])
		}
	}

	// temp std 1 → 0.5·0.3; noise 1.2 → (1-0.7/4.5)·0.5; growth 1 → 0.8·0.2
	wantComposite := (0.5*0.3 + (1-0.7/4.5)*0.5 + 0.8*0.2) * 100
	if !almostEqual(out.CompositeScore, wantComposite, 0.01) {
		t.Errorf("CompositeScore = %v, want %.2f", out.CompositeScore, wantComposite)
	}
	if out.Status != predict.StatusHealthy {
		t.Errorf("Status = %q, want healthy", out.Status)
	}
}

func TestCompute_RUL(t *testing.T) {
	tests := []struct {
		name       string
		noise      []float64
		scale      float64
		wantRUL    int
		wantStatus string
		wantDevice string
	}{
		{
			// slope 0.5, intercept 1 → reaches 5.0 at x=8, last x=4
			name:       "rising noise, unit scale",
			noise:      []float64{1, 1.5, 2, 2.5, 3},
			scale:      1,
			wantRUL:    4,
			wantStatus: predict.RULStatusProjected,
			wantDevice: predict.StatusCritical,
		},
		{
			name:       "rising noise, default scale rounds to zero",
			noise:      []float64{1, 1.5, 2, 2.5, 3},
			wantRUL:    0,
			wantStatus: predict.RULStatusProjected,
			wantDevice: predict.StatusCritical,
		},
		{
			// slope 0.01 → reaches 5.0 at x=400 → 396 steps
			name:       "slow drift stays healthy",
			noise:      []float64{1, 1.01, 1.02, 1.03, 1.04},
			scale:      10,
			wantRUL:    40,
			wantStatus: predict.RULStatusProjected,
			wantDevice: predict.StatusHealthy,
		},
		{
			name:       "flat noise is stable",
			noise:      repeat(1, 6),
			scale:      10,
			wantRUL:    predict.RULNoDegradation,
			wantStatus: predict.RULStatusStable,
			wantDevice: predict.StatusHealthy,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			n := len(tc.noise)
			out := Compute(Input{
				Temperatures: repeat(30, n),
				NoiseLevels:  tc.noise,
				DeadPixels:   repeat(5, n),
				Thresholds:   config.DefaultThresholds(),
				RULScale:     tc.scale,
			})
			if out.RUL != tc.wantRUL || out.RULStatus != tc.wantStatus {
				t.Errorf("RUL = %d/%q, want %d/%q", out.RUL, out.RULStatus, tc.wantRUL, tc.wantStatus)
			}
			if out.Status != tc.wantDevice {
				t.Errorf("Status = %q, want %q", out.Status, tc.wantDevice)
			}
			if out.RULErr != nil {
				t.Errorf("RULErr = %v", out.RULErr)
			}
		})
	}
}

func TestCompute_DegenerateTemperatureThreshold(t *testing.T) {
	th := config.DefaultThresholds()
	th.Temperature = config.Band{}

	out := Compute(Input{
		Temperatures: []float64{30, 31},
		NoiseLevels:  []float64{1, 1},
		DeadPixels:   []float64{5, 5},
		Thresholds:   th,
	})
	if !errors.Is(out.HealthErr, predict.ErrDegenerateInput) {
		t.Errorf("HealthErr = %v, want ErrDegenerateInput", out.HealthErr)
	}
	if out.HealthScore != 0 {
		t.Errorf("HealthScore = %d, want 0", out.HealthScore)
	}
}

func TestCompute_NoForecastWithoutTrend(t *testing.T) {
	out := Compute(Input{
		Temperatures:   []float64{30},
		NoiseLevels:    []float64{1},
		DeadPixels:     []float64{5},
		Thresholds:     config.DefaultThresholds(),
		ForecastPoints: 5,
	})
	if out.Forecast != nil {
		t.Errorf("Forecast = %v, want nil for a single reading", out.Forecast)
	}
}

func TestCompute_UsesFitCache(t *testing.T) {
	cache := predict.NewFitCache(4)
	in := Input{
		Temperatures:   []float64{30, 31, 32},
		NoiseLevels:    []float64{1, 1, 1},
		DeadPixels:     []float64{5, 5, 5},
		Thresholds:     config.DefaultThresholds(),
		ForecastPoints: 2,
		Fits:           cache,
	}
	first := Compute(in)
	second := Compute(in)

	if hits, misses := cache.Stats(); hits != 1 || misses != 1 {
		t.Errorf("cache stats = %d hits / %d misses, want 1/1", hits, misses)
	}
	if len(first.Forecast) != 2 || first.Forecast[1] != second.Forecast[1] {
		t.Errorf("cached forecast differs: %v vs %v", first.Forecast, second.Forecast)
	}
}
