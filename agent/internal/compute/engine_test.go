package compute

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sensorsight/sensorsight/agent/internal/config"
	"github.com/sensorsight/sensorsight/agent/internal/scraper"
	"github.com/sensorsight/sensorsight/pkg/predict"
)

// baseTime is a fixed reference point so all test timings are deterministic.
var baseTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// tick returns baseTime advanced by n minutes.
func tick(n int) time.Time {
	return baseTime.Add(time.Duration(n) * time.Minute)
}

// reading builds a successful Reading for the given sensor.
func reading(id string, temp, noise, pixels float64) *scraper.Reading {
	return &scraper.Reading{
		SensorID:    id,
		SensorType:  "emulator",
		ScrapedAt:   baseTime,
		Temperature: temp,
		NoiseLevel:  noise,
		DeadPixels:  pixels,
	}
}

func failed(id string) *scraper.Reading {
	return &scraper.Reading{SensorID: id, SensorType: "prometheus", Err: errors.New("connection refused")}
}

// --- Failure handling ---

func TestEngine_FailedScrape_ReturnsUnknown(t *testing.T) {
	e := NewEngine(Options{WindowSize: 10})
	e.Process(reading("cam-1", 30, 1, 5), tick(0))

	out := e.Process(failed("cam-1"), tick(1))
	if out.Status != predict.StatusUnknown {
		t.Errorf("Status = %q, want unknown", out.Status)
	}
	if out.ErrorMessage == "" {
		t.Error("ErrorMessage should carry the scrape error")
	}
	if out.SampleCount != 1 {
		t.Errorf("SampleCount = %d, want 1 (window untouched)", out.SampleCount)
	}
	if out.RULStatus != predict.RULStatusInsufficientData {
		t.Errorf("RULStatus = %q, want insufficient_data", out.RULStatus)
	}
}

func TestEngine_UptimePct(t *testing.T) {
	e := NewEngine(Options{WindowSize: 10})
	e.Process(failed("cam-1"), tick(0))
	e.Process(reading("cam-1", 30, 1, 5), tick(1))
	e.Process(reading("cam-1", 30, 1, 5), tick(2))
	out := e.Process(reading("cam-1", 30, 1, 5), tick(3))

	if !almostEqual(out.UptimePct, 75, 0.001) {
		t.Errorf("UptimePct = %v, want 75", out.UptimePct)
	}
}

func TestEngine_UptimeWindowSlides(t *testing.T) {
	e := NewEngine(Options{WindowSize: 10})
	for i := 0; i < uptimeWindow; i++ {
		e.Process(failed("cam-1"), tick(i))
	}
	var out *Result
	for i := 0; i < uptimeWindow; i++ {
		out = e.Process(reading("cam-1", 30, 1, 5), tick(uptimeWindow+i))
	}
	if out.UptimePct != 100 {
		t.Errorf("UptimePct = %v, want 100 once old failures age out", out.UptimePct)
	}
}

// --- Window and predictions ---

func TestEngine_WindowIsBounded(t *testing.T) {
	e := NewEngine(Options{WindowSize: 5})
	var out *Result
	for i := 0; i < 8; i++ {
		out = e.Process(reading("cam-1", 30+float64(i), 1, 5), tick(i))
	}
	if out.SampleCount != 5 {
		t.Errorf("SampleCount = %d, want 5", out.SampleCount)
	}
	if out.Latest.Temperature != 37 {
		t.Errorf("Latest.Temperature = %v, want 37", out.Latest.Temperature)
	}
}

func TestEngine_PredictionsFromWindow(t *testing.T) {
	e := NewEngine(Options{WindowSize: 20, ForecastPoints: 4, RULScale: 1})

	var out *Result
	noise := []float64{1, 1.5, 2, 2.5, 3}
	for i, n := range noise {
		out = e.Process(reading("cam-1", 30+float64(i), n, 5), tick(i))
	}

	// 34°C against 60 → round(26/60·100) = 43
	if out.HealthScore != 43 {
		t.Errorf("HealthScore = %d, want 43", out.HealthScore)
	}
	if out.Condition != predict.ConditionCritical {
		t.Errorf("Condition = %q, want critical", out.Condition)
	}
	if out.RUL != 4 || out.RULStatus != predict.RULStatusProjected {
		t.Errorf("RUL = %d/%q, want 4/projected", out.RUL, out.RULStatus)
	}
	if len(out.Forecast) != 4 || !almostEqual(out.Forecast[0].Y, 35, 1e-9) {
		t.Errorf("Forecast = %v, want 4 points starting at 35", out.Forecast)
	}
	if out.Thresholds != config.DefaultThresholds() {
		t.Errorf("Thresholds = %+v, want defaults", out.Thresholds)
	}
}

func TestEngine_SetThresholds(t *testing.T) {
	e := NewEngine(Options{WindowSize: 10})
	th := config.DefaultThresholds()
	th.Temperature = config.Band{Warning: 80, Critical: 100}
	e.SetThresholds("cam-1", th)

	out := e.Process(reading("cam-1", 50, 1, 5), tick(0))
	if out.HealthScore != 50 {
		t.Errorf("HealthScore = %d, want 50 against a 100°C limit", out.HealthScore)
	}
	if got := e.Thresholds("cam-1"); got != th {
		t.Errorf("Thresholds() = %+v, want %+v", got, th)
	}
	if got := e.Thresholds("cam-2"); got != config.DefaultThresholds() {
		t.Errorf("unknown sensor thresholds = %+v, want defaults", got)
	}
}

func TestEngine_Forget(t *testing.T) {
	e := NewEngine(Options{WindowSize: 10})
	e.Process(reading("cam-1", 30, 1, 5), tick(0))
	e.Forget("cam-1")

	out := e.Process(reading("cam-1", 30, 1, 5), tick(1))
	if out.SampleCount != 1 {
		t.Errorf("SampleCount = %d, want 1 after Forget", out.SampleCount)
	}
}

// --- Anomalies ---

func TestEngine_AnomalyCooldown(t *testing.T) {
	e := NewEngine(Options{WindowSize: 10})

	steps := []struct {
		at        int
		wantFresh bool
	}{
		{0, true},  // first detection
		{1, false}, // inside the cooldown, still reported
		{6, true},  // cooldown elapsed
	}
	for _, s := range steps {
		out := e.Process(reading("cam-1", 61, 1, 5), tick(s.at))
		if len(out.Anomalies) != 1 || out.Anomalies[0].Severity != SeverityCritical {
			t.Fatalf("minute %d: anomalies = %+v, want one critical", s.at, out.Anomalies)
		}
		if got := out.Anomalies[0].Fresh; got != s.wantFresh {
			t.Errorf("minute %d: Fresh = %v, want %v", s.at, got, s.wantFresh)
		}
	}
}

func TestEngine_PersistentCriticalStaysCritical(t *testing.T) {
	e := NewEngine(Options{WindowSize: 10})

	for i := 0; i < 4; i++ {
		out := e.Process(reading("cam-1", 70, 1, 5), tick(i))
		if out.Status != predict.StatusCritical {
			t.Errorf("scrape %d: Status = %q, want critical while temperature stays above its limit", i, out.Status)
		}
		if len(out.Anomalies) != 1 || out.Anomalies[0].Metric != MetricTemperature {
			t.Errorf("scrape %d: anomalies = %+v, want the live temperature anomaly", i, out.Anomalies)
		}
	}

	out := e.Process(reading("cam-1", 30, 1, 5), tick(5))
	if out.Status == predict.StatusCritical {
		t.Error("Status should leave critical once the reading recovers")
	}
	if len(out.Anomalies) != 0 {
		t.Errorf("recovered reading: anomalies = %+v, want none", out.Anomalies)
	}
}

func TestEngine_CooldownIsPerMetric(t *testing.T) {
	e := NewEngine(Options{WindowSize: 10})
	e.Process(reading("cam-1", 61, 1, 5), tick(0))

	out := e.Process(reading("cam-1", 61, 5.5, 5), tick(1))
	fresh := map[string]bool{}
	for _, a := range out.Anomalies {
		if a.Kind == KindThreshold {
			fresh[a.Metric] = a.Fresh
		}
	}
	if len(fresh) != 2 || fresh[MetricTemperature] || !fresh[MetricNoiseLevel] {
		t.Errorf("anomalies = %+v, want a held temperature and a fresh noise threshold anomaly", out.Anomalies)
	}
}

func TestEngine_SensorsAreIndependent(t *testing.T) {
	e := NewEngine(Options{WindowSize: 10})
	e.Process(reading("cam-1", 61, 1, 5), tick(0))

	out := e.Process(reading("cam-2", 61, 1, 5), tick(0))
	if len(out.Anomalies) != 1 || !out.Anomalies[0].Fresh {
		t.Errorf("cam-2 anomalies = %+v, want its own fresh detection", out.Anomalies)
	}
}

// --- Concurrency ---

func TestEngine_ConcurrentProcess(t *testing.T) {
	e := NewEngine(Options{WindowSize: 30, ForecastPoints: 3})

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			id := fmt.Sprintf("cam-%d", g)
			for i := 0; i < 50; i++ {
				e.Process(reading(id, 30+float64(i)*0.1, 1+float64(i)*0.01, 5), tick(i))
			}
		}(g)
	}
	wg.Wait()

	for g := 0; g < 8; g++ {
		out := e.Process(reading(fmt.Sprintf("cam-%d", g), 35, 1.5, 5), tick(60))
		if out.SampleCount != 30 {
			t.Errorf("cam-%d SampleCount = %d, want 30", g, out.SampleCount)
		}
	}
}
