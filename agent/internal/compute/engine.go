package compute

import (
	"log/slog"
	"sync"
	"time"

	"github.com/sensorsight/sensorsight/agent/internal/config"
	"github.com/sensorsight/sensorsight/agent/internal/scraper"
	"github.com/sensorsight/sensorsight/pkg/predict"
)

// uptimeWindow is the number of recent scrape outcomes tracked for uptime %.
const uptimeWindow = 20

// Result is the fully derived prediction snapshot for one sensor, ready to be
// handed to the gRPC shipper.
type Result struct {
	SensorID   string
	SensorType string
	Timestamp  time.Time

	Status         string // predict.Status*
	Condition      string
	HealthScore    int
	CompositeScore float64
	RUL            int
	RULStatus      string

	Latest      Latest
	Thresholds  config.Thresholds
	SampleCount int
	Forecast    predict.Forecast
	Anomalies   []Anomaly

	UptimePct    float64
	ErrorMessage string // non-empty when the scrape failed; forwarded to the server
}

// Latest is the most recent successful reading.
type Latest struct {
	Temperature float64
	NoiseLevel  float64
	DeadPixels  float64
}

// Options size the per-sensor windows and predictions.
type Options struct {
	WindowSize     int
	ForecastPoints int
	RULScale       float64
}

// Engine keeps a rolling window of readings per sensor and derives
// predictions from it on every scrape.
//
// All exported methods are safe for concurrent use.
type Engine struct {
	mu     sync.Mutex
	opts   Options
	fits   *predict.FitCache
	states map[string]*sensorState
}

// NewEngine returns a ready-to-use Engine.
func NewEngine(opts Options) *Engine {
	if opts.WindowSize <= 0 {
		opts.WindowSize = config.DefaultWindowSize
	}
	if opts.RULScale <= 0 {
		opts.RULScale = config.DefaultRULScale
	}
	return &Engine{
		opts:   opts,
		fits:   predict.NewFitCache(0),
		states: make(map[string]*sensorState),
	}
}

// SetThresholds replaces the alarm bands for a sensor. It takes effect on
// the next Process call and leaves the window intact.
func (e *Engine) SetThresholds(sensorID string, t config.Thresholds) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stateFor(sensorID).thresholds = t
}

// Thresholds returns the alarm bands currently applied to a sensor.
func (e *Engine) Thresholds(sensorID string) config.Thresholds {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateFor(sensorID).thresholds
}

// Forget drops all state for a sensor removed from the config.
func (e *Engine) Forget(sensorID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.states, sensorID)
}

// Process ingests a Reading and returns the derived predictions.
//
// now is passed explicitly so callers (and tests) control the clock without
// sleeping. Use time.Now() in production.
//
// A failed reading yields status "unknown" and leaves the window untouched.
func (e *Engine) Process(r *scraper.Reading, now time.Time) *Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.stateFor(r.SensorID)
	success := r.Err == nil
	st.recordScrape(success)

	out := &Result{
		SensorID:   r.SensorID,
		SensorType: r.SensorType,
		Timestamp:  now,
		Thresholds: st.thresholds,
		UptimePct:  st.uptimePct(),
	}

	if !success {
		slog.Warn("compute: scrape failed, marking unknown",
			"sensor", r.SensorID, "err", r.Err)
		out.Status = predict.StatusUnknown
		out.RUL = predict.RULInsufficientHistory
		out.RULStatus = predict.RULStatusInsufficientData
		out.SampleCount = len(st.window)
		out.ErrorMessage = r.Err.Error()
		return out
	}

	st.push(*r, e.opts.WindowSize)
	out.SampleCount = len(st.window)
	out.Latest = Latest{Temperature: r.Temperature, NoiseLevel: r.NoiseLevel, DeadPixels: r.DeadPixels}

	in := st.input()
	in.Thresholds = st.thresholds
	in.ForecastPoints = e.opts.ForecastPoints
	in.RULScale = e.opts.RULScale
	in.Fits = e.fits

	pred := Compute(in)
	if pred.HealthErr != nil {
		slog.Warn("compute: health score unavailable", "sensor", r.SensorID, "err", pred.HealthErr)
	}
	if pred.RULErr != nil {
		slog.Warn("compute: rul unavailable", "sensor", r.SensorID, "err", pred.RULErr)
	}

	out.HealthScore = pred.HealthScore
	out.Condition = pred.Condition
	out.CompositeScore = pred.CompositeScore
	out.RUL = pred.RUL
	out.RULStatus = pred.RULStatus
	out.Forecast = pred.Forecast
	out.Status = pred.Status

	// Every anomaly that holds now is reported; the cooldown only decides
	// which of them count as fresh detections.
	out.Anomalies = detect(in)
	for i := range out.Anomalies {
		a := &out.Anomalies[i]
		a.Fresh = st.admit(*a, now)
		if a.Severity == SeverityCritical {
			out.Status = predict.StatusCritical
		}
	}

	slog.Debug("compute: processed",
		"sensor", r.SensorID, "status", out.Status, "health", out.HealthScore,
		"rul", out.RUL, "rul_status", out.RULStatus, "samples", out.SampleCount)
	return out
}

// sensorState holds the reading window, uptime history and anomaly cooldowns
// for one sensor.
type sensorState struct {
	window     []scraper.Reading // oldest first
	history    []bool            // circular buffer of scrape outcomes, newest last
	thresholds config.Thresholds
	lastFired  map[string]time.Time // metric → last admitted anomaly
}

func (e *Engine) stateFor(id string) *sensorState {
	if st, ok := e.states[id]; ok {
		return st
	}
	st := &sensorState{
		thresholds: config.DefaultThresholds(),
		lastFired:  make(map[string]time.Time),
	}
	e.states[id] = st
	return st
}

func (st *sensorState) push(r scraper.Reading, size int) {
	if len(st.window) >= size {
		st.window = append(st.window[:0], st.window[len(st.window)-size+1:]...)
	}
	st.window = append(st.window, r)
}

// input copies the window into per-metric series.
func (st *sensorState) input() Input {
	in := Input{
		Temperatures: make([]float64, len(st.window)),
		NoiseLevels:  make([]float64, len(st.window)),
		DeadPixels:   make([]float64, len(st.window)),
	}
	for i, r := range st.window {
		in.Temperatures[i] = r.Temperature
		in.NoiseLevels[i] = r.NoiseLevel
		in.DeadPixels[i] = r.DeadPixels
	}
	return in
}

// admit reports whether a is outside its metric's cooldown, and starts a new
// cooldown when it is. Anomalies held back by the cooldown are still live.
func (st *sensorState) admit(a Anomaly, now time.Time) bool {
	if last, ok := st.lastFired[a.Metric]; ok && now.Sub(last) < AnomalyCooldown {
		return false
	}
	st.lastFired[a.Metric] = now
	return true
}

func (st *sensorState) recordScrape(success bool) {
	if len(st.history) >= uptimeWindow {
		st.history = st.history[1:]
	}
	st.history = append(st.history, success)
}

func (st *sensorState) uptimePct() float64 {
	if len(st.history) == 0 {
		return 100 // assume up before first observation
	}
	var ok int
	for _, s := range st.history {
		if s {
			ok++
		}
	}
	return float64(ok) / float64(len(st.history)) * 100
}
