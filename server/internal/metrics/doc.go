// Package metrics exposes the server's own Prometheus metrics.
package metrics
