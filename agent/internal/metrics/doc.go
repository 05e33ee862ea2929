// Package metrics exposes the agent's own Prometheus metrics: scrape outcomes,
// the latest health, composite and RUL values per sensor, anomaly counts and
// the shipper buffer depth.
package metrics
