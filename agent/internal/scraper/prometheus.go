package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sensorsight/sensorsight/agent/internal/config"
)

// Exporter metric names read from a sensor's /metrics endpoint.
const (
	metricTemperature = "sensor_temperature_celsius"
	metricNoiseLevel  = "sensor_noise_level"
	metricDeadPixels  = "sensor_dead_pixel_count"
)

type promScraper struct {
	sensor config.Sensor
	client *http.Client
}

// Scrape fetches the sensor exporter's /metrics endpoint and extracts the
// temperature, noise level and dead pixel gauges. A missing family is a
// scrape failure since the window cannot be extended with a partial reading.
func (s *promScraper) Scrape(ctx context.Context) (*Reading, error) {
	r := &Reading{SensorID: s.sensor.ID, SensorType: "prometheus", ScrapedAt: time.Now().UTC()}

	mfs, err := fetchMetrics(ctx, s.client, s.sensor.Endpoint)
	if err != nil {
		r.Err = fmt.Errorf("prometheus scrape %q: %w", s.sensor.ID, err)
		slog.Warn("scraper: prometheus fetch failed", "sensor", s.sensor.ID, "err", err)
		return r, nil
	}

	fields := []struct {
		name string
		dst  *float64
	}{
		{metricTemperature, &r.Temperature},
		{metricNoiseLevel, &r.NoiseLevel},
		{metricDeadPixels, &r.DeadPixels},
	}
	for _, f := range fields {
		v, ok := sensorValue(mfs[f.name], s.sensor.ID)
		if !ok {
			r.Err = fmt.Errorf("prometheus scrape %q: metric %s missing", s.sensor.ID, f.name)
			slog.Warn("scraper: metric missing", "sensor", s.sensor.ID, "metric", f.name)
			return r, nil
		}
		*f.dst = v
	}
	return r, nil
}
