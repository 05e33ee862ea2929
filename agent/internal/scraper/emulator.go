package scraper

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"
)

// Drift model of a CMOS sensor that slowly heats up over its lifetime.
const (
	emuBaseTemperature = 25.0
	emuDriftPerHour    = 0.1
	emuTempJitter      = 0.5
	emuNoiseBase       = 0.5
	emuNoiseGain       = 0.08
	emuNoiseJitter     = 0.1
	emuBaseDeadPixels  = 5
	emuPixelPeriod     = 2 * time.Hour
)

// Emulator synthesizes readings for a virtual sensor. Temperature rises
// linearly with elapsed time, noise grows exponentially with temperature,
// and dead pixels accumulate one per two hours plus jitter.
type Emulator struct {
	id    string
	now   func() time.Time
	start time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// NewEmulator returns an Emulator whose lifetime starts at now().
func NewEmulator(id string, now func() time.Time, seed int64) *Emulator {
	return &Emulator{
		id:    id,
		now:   now,
		start: now(),
		rng:   rand.New(rand.NewSource(seed)), //nolint:gosec // synthetic data
	}
}

// Scrape never fails.
func (e *Emulator) Scrape(_ context.Context) (*Reading, error) {
	now := e.now()
	elapsed := now.Sub(e.start)

	e.mu.Lock()
	tempJitter := uniform(e.rng, emuTempJitter)
	noiseJitter := uniform(e.rng, emuNoiseJitter)
	pixelJitter := e.rng.Intn(3)
	e.mu.Unlock()

	temp := emuBaseTemperature + elapsed.Hours()*emuDriftPerHour + tempJitter
	noise := emuNoiseBase*math.Exp(emuNoiseGain*(temp-emuBaseTemperature)) + noiseJitter
	pixels := emuBaseDeadPixels + int(elapsed/emuPixelPeriod) + pixelJitter

	return &Reading{
		SensorID:    e.id,
		SensorType:  "emulator",
		ScrapedAt:   now.UTC(),
		Temperature: round2(temp),
		NoiseLevel:  round2(noise),
		DeadPixels:  float64(pixels),
	}, nil
}

// uniform returns a value in [-spread, spread).
func uniform(rng *rand.Rand, spread float64) float64 {
	return (rng.Float64()*2 - 1) * spread
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
