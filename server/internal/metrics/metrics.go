package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sensorsight/sensorsight/server/internal/alerts"
)

const namespace = "sensorsight_server"

// Gauges that are read on scrape rather than pushed.
type Gauges struct {
	Sensors func() int
	Firing  func() int
}

type Metrics struct {
	reg *prometheus.Registry

	snapshots     *prometheus.CounterVec
	alerts        *prometheus.CounterVec
	historyWrites *prometheus.CounterVec
}

func New(g Gauges) *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_received_total",
			Help:      "Sensor snapshots accepted from agents.",
		}, []string{"sensor_type"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alert transitions by severity and state.",
		}, []string{"severity", "state"}),
		historyWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_writes_total",
			Help:      "History writes by result.",
		}, []string{"result"}),
	}
	m.reg.MustRegister(
		m.snapshots,
		m.alerts,
		m.historyWrites,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if g.Sensors != nil {
		m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sensors",
			Help:      "Sensors held in the snapshot store.",
		}, func() float64 { return float64(g.Sensors()) }))
	}
	if g.Firing != nil {
		m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alerts_firing",
			Help:      "Alerts currently firing.",
		}, func() float64 { return float64(g.Firing()) }))
	}
	return m
}

func (m *Metrics) SnapshotReceived(sensorType string) {
	if sensorType == "" {
		sensorType = "unknown"
	}
	m.snapshots.WithLabelValues(sensorType).Inc()
}

func (m *Metrics) AlertTransition(a alerts.Alert) {
	m.alerts.WithLabelValues(a.Severity, a.State).Inc()
}

// HistoryWrite counts one write attempt; err == nil is a success.
func (m *Metrics) HistoryWrite(err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.historyWrites.WithLabelValues(result).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
