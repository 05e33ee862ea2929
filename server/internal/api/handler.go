package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sensorsight/sensorsight/pkg/predict"
	"github.com/sensorsight/sensorsight/pkg/types"
	"github.com/sensorsight/sensorsight/server/internal/alerts"
	"github.com/sensorsight/sensorsight/server/internal/history"
	"github.com/sensorsight/sensorsight/server/internal/report"
	"github.com/sensorsight/sensorsight/server/internal/store"
)

const (
	maxPredictBody    = 1 << 20
	defaultHistoryLen = 100
	maxHistoryLen     = 1000
)

// Deps are the collaborators the API reads from. Alerts and History may be nil.
type Deps struct {
	Store   *store.Store
	Alerts  *alerts.Engine
	History history.Recorder
	Now     func() time.Time
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	store   *store.Store
	alerts  *alerts.Engine
	history history.Recorder
	now     func() time.Time
	fits    *predict.FitCache
	mux     *http.ServeMux
}

// New creates a Handler wired to d and registers all routes.
func New(d Deps) http.Handler {
	h := &Handler{
		store:   d.Store,
		alerts:  d.Alerts,
		history: d.History,
		now:     d.Now,
		fits:    predict.NewFitCache(0),
		mux:     http.NewServeMux(),
	}
	if h.history == nil {
		h.history = history.Noop{}
	}
	if h.now == nil {
		h.now = time.Now
	}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/sensors", h.listSensors)
	h.mux.HandleFunc("/api/v1/sensors/", h.sensorSubtree) // {id}, {id}/report.pdf, ...
	h.mux.HandleFunc("/api/v1/alerts", h.listAlerts)
	h.mux.HandleFunc("/api/v1/snapshot", h.snapshot)
	h.mux.HandleFunc("/api/v1/predict", h.predict)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health: fleet score, per-status counts, alerts.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, fleetHealth(h.store.List(), h.alerts))
}

// listSensors returns GET /api/v1/sensors, all live sensors sorted by id.
func (h *Handler) listSensors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	entries := h.store.List()
	out := make([]SensorResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toSensorResponse(e))
	}
	jsonResp(w, http.StatusOK, out)
}

// sensorSubtree dispatches /api/v1/sensors/{id}[/report.pdf|/report.xlsx|/history].
func (h *Handler) sensorSubtree(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/sensors/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		h.listSensors(w, r)
		return
	}

	switch sub {
	case "":
		h.getSensor(w, id)
	case "report.pdf", "report.xlsx":
		h.sensorReport(w, id, sub)
	case "history":
		h.sensorHistory(w, r, id)
	default:
		jsonErr(w, http.StatusNotFound, "not found")
	}
}

func (h *Handler) getSensor(w http.ResponseWriter, id string) {
	e, ok := h.store.Live(id)
	if !ok {
		jsonErr(w, http.StatusNotFound, "sensor not found")
		return
	}

	resp := SensorDetailResponse{
		SensorResponse: toSensorResponse(e),
		Trend:          h.store.Trend(id),
		Alerts:         []*alerts.Alert{},
	}
	if h.alerts != nil {
		if a := h.alerts.ForSensor(id); a != nil {
			resp.Alerts = a
		}
	}
	jsonResp(w, http.StatusOK, resp)
}

func (h *Handler) sensorReport(w http.ResponseWriter, id, name string) {
	e, ok := h.store.Live(id)
	if !ok {
		jsonErr(w, http.StatusNotFound, "sensor not found")
		return
	}

	rep := report.Report{
		GeneratedAt: h.now(),
		Snapshot:    e.Snapshot,
		Trend:       h.store.Trend(id),
	}
	if h.alerts != nil {
		rep.Alerts = h.alerts.ForSensor(id)
	}

	var (
		body        []byte
		err         error
		contentType string
	)
	if name == "report.pdf" {
		body, err = report.BuildPDF(rep)
		contentType = "application/pdf"
	} else {
		body, err = report.BuildXLSX(rep)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	if err != nil {
		slog.Error("api: report failed", "sensor", id, "format", name, "err", err)
		jsonErr(w, http.StatusInternalServerError, "report generation failed")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+id+"-"+name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	w.Write(body) //nolint:errcheck
}

func (h *Handler) sensorHistory(w http.ResponseWriter, r *http.Request, id string) {
	limit := defaultHistoryLen
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			jsonErr(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if n > maxHistoryLen {
			n = maxHistoryLen
		}
		limit = n
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	rows, err := h.history.RecentPredictions(ctx, id, limit)
	if err != nil {
		slog.Warn("api: history query failed", "sensor", id, "err", err)
		jsonErr(w, http.StatusServiceUnavailable, "history unavailable")
		return
	}
	if rows == nil {
		rows = []history.Prediction{}
	}
	jsonResp(w, http.StatusOK, HistoryResponse{SensorID: id, Predictions: rows})
}

// listAlerts returns GET /api/v1/alerts: firing plus recently resolved, newest first.
func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.alerts == nil {
		jsonResp(w, http.StatusOK, []struct{}{})
		return
	}
	jsonResp(w, http.StatusOK, h.alerts.Active())
}

// snapshot returns GET /api/v1/snapshot: fleet health plus every live sensor.
func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, buildSnapshot(h.store, h.alerts, h.now()))
}

// --- helpers ----------------------------------------------------------------

// BuildSnapshot assembles the fleet view used by GET /api/v1/snapshot and the
// WebSocket hub. eng may be nil.
func BuildSnapshot(st *store.Store, eng *alerts.Engine) SnapshotResponse {
	return buildSnapshot(st, eng, time.Now())
}

func buildSnapshot(st *store.Store, eng *alerts.Engine, now time.Time) SnapshotResponse {
	entries := st.List()
	sensors := make([]SensorResponse, 0, len(entries))
	for _, e := range entries {
		sensors = append(sensors, toSensorResponse(e))
	}
	return SnapshotResponse{
		Health:      fleetHealth(entries, eng),
		Sensors:     sensors,
		GeneratedAt: now.UTC().Format(time.RFC3339),
	}
}

// statusRank orders device statuses for the fleet roll-up.
var statusRank = map[string]int{
	predict.StatusUnknown:           0,
	predict.StatusHealthy:           1,
	predict.StatusWarning:           2,
	predict.StatusPredictiveWarning: 3,
	predict.StatusCritical:          4,
}

func fleetHealth(entries []*store.Entry, eng *alerts.Engine) HealthResponse {
	resp := HealthResponse{SensorCount: len(entries), Status: predict.StatusUnknown}
	if eng != nil {
		resp.AlertCount = eng.FiringCount()
	}

	var total float64
	var scored int
	for _, e := range entries {
		s := e.Snapshot
		switch s.Status {
		case predict.StatusHealthy:
			resp.HealthyCount++
		case predict.StatusWarning:
			resp.WarningCount++
		case predict.StatusPredictiveWarning:
			resp.PredictiveWarningCount++
		case predict.StatusCritical:
			resp.CriticalCount++
		default:
			resp.UnknownCount++
		}
		if statusRank[s.Status] > statusRank[resp.Status] {
			resp.Status = s.Status
		}
		if s.ErrorMessage == "" {
			total += float64(s.HealthScore)
			scored++
		}
	}
	if scored > 0 {
		resp.OverallScore = total / float64(scored)
	}
	return resp
}

// toSensorResponse maps a store.Entry to its JSON representation.
func toSensorResponse(e *store.Entry) SensorResponse {
	s := e.Snapshot
	resp := SensorResponse{
		SensorID:       s.SensorID,
		SensorType:     s.SensorType,
		Status:         s.Status,
		Condition:      s.Condition,
		HealthScore:    s.HealthScore,
		CompositeScore: s.CompositeScore,
		RUL:            s.RUL,
		RULStatus:      s.RULStatus,
		RULText:        report.RULText(s),
		Latest:         s.Latest,
		Thresholds:     s.Thresholds,
		SampleCount:    s.SampleCount,
		Forecast:       s.Forecast,
		Anomalies:      s.Anomalies,
		UptimePct:      s.UptimePct,
		ErrorMessage:   s.ErrorMessage,
		Diagnostics:    computeDiagnostics(s),
		LastSeen:       e.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if resp.Forecast == nil {
		resp.Forecast = []types.ForecastPoint{}
	}
	if resp.Anomalies == nil {
		resp.Anomalies = []types.Anomaly{}
	}
	return resp
}

// jsonResp encodes v before touching the response so an unencodable value
// becomes a 500 instead of an empty body.
func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		slog.Error("api: encode response", "err", err)
		code = http.StatusInternalServerError
		body, _ = json.Marshal(errorResponse{Error: "response could not be encoded"})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(append(body, '\n')) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
