// Package scraper acquires camera sensor telemetry. Each scraper returns a
// Reading with the latest temperature, noise level and dead pixel count for
// one sensor; the compute engine turns a run of readings into predictions.
//
// Implemented scrapers:
//   - prometheus.go: polls an exporter's /metrics page and reads the
//     sensor_temperature_celsius, sensor_noise_level and
//     sensor_dead_pixel_count gauges (by sensor label when present)
//   - mqtt.go: subscribes to a broker topic and keeps the newest JSON message
//   - emulator.go: synthetic drift model for demos and soak tests
//
// Factory: New(config.Sensor, interval) returns the correct Scraper. Failed
// scrapes are reported in Reading.Err, not as a returned error.
//
// Authentication (mTLS, API key, bearer token, basic) is handled by the
// shared authRoundTripper in base.go.
package scraper
