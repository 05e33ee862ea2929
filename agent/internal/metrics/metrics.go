package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sensorsight/sensorsight/agent/internal/compute"
	"github.com/sensorsight/sensorsight/pkg/predict"
)

const (
	namespace = "sensorsight_agent"

	resultSuccess = "success"
	resultError   = "error"
)

// Metrics holds the agent's self-observability collectors on a private registry.
type Metrics struct {
	reg *prometheus.Registry

	scrapes     *prometheus.CounterVec
	healthScore *prometheus.GaugeVec
	composite   *prometheus.GaugeVec
	rulSteps    *prometheus.GaugeVec
	anomalies   *prometheus.CounterVec
}

// New builds and registers the agent collectors. pending, when non-nil,
// is exported as the shipper buffer depth.
func New(pending func() int) *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		scrapes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scrapes_total",
			Help:      "Sensor scrapes by result.",
		}, []string{"sensor", "result"}),
		healthScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "health_score",
			Help:      "Latest 0-100 health score per sensor.",
		}, []string{"sensor"}),
		composite: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "composite_score",
			Help:      "Latest weighted composite score per sensor.",
		}, []string{"sensor"}),
		rulSteps: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rul_steps",
			Help:      "Projected remaining useful life per sensor. Absent unless projected.",
		}, []string{"sensor"}),
		anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anomalies_total",
			Help:      "Fresh anomaly detections by kind, after the per-metric cooldown.",
		}, []string{"sensor", "kind"}),
	}

	m.reg.MustRegister(
		m.scrapes,
		m.healthScore,
		m.composite,
		m.rulSteps,
		m.anomalies,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if pending != nil {
		m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ship_buffer_pending",
			Help:      "Snapshots waiting to be shipped.",
		}, func() float64 { return float64(pending()) }))
	}
	return m
}

// Observe records one processed result.
func (m *Metrics) Observe(res *compute.Result) {
	if res.ErrorMessage != "" {
		m.scrapes.WithLabelValues(res.SensorID, resultError).Inc()
		return
	}
	m.scrapes.WithLabelValues(res.SensorID, resultSuccess).Inc()
	m.healthScore.WithLabelValues(res.SensorID).Set(float64(res.HealthScore))
	m.composite.WithLabelValues(res.SensorID).Set(res.CompositeScore)

	if res.RULStatus == predict.RULStatusProjected {
		m.rulSteps.WithLabelValues(res.SensorID).Set(float64(res.RUL))
	} else {
		m.rulSteps.DeleteLabelValues(res.SensorID)
	}

	for _, a := range res.Anomalies {
		if a.Fresh {
			m.anomalies.WithLabelValues(res.SensorID, a.Kind).Inc()
		}
	}
}

// Forget removes the per-sensor gauges of a sensor that is no longer configured.
func (m *Metrics) Forget(sensorID string) {
	m.healthScore.DeleteLabelValues(sensorID)
	m.composite.DeleteLabelValues(sensorID)
	m.rulSteps.DeleteLabelValues(sensorID)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
