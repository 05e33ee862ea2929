package receiver

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sensorsight/sensorsight/pkg/rpc"
	"github.com/sensorsight/sensorsight/pkg/types"
	"github.com/sensorsight/sensorsight/server/internal/alerts"
	"github.com/sensorsight/sensorsight/server/internal/history"
	"github.com/sensorsight/sensorsight/server/internal/metrics"
	"github.com/sensorsight/sensorsight/server/internal/store"
)

const historyTimeout = 3 * time.Second

// Receiver implements rpc.SnapshotServiceServer.
// It validates each incoming SensorSnapshot, stores it, runs it through the
// alert engine and records it to history.
type Receiver struct {
	rpc.UnimplementedSnapshotServiceServer
	store   *store.Store
	alerts  *alerts.Engine
	history history.Recorder
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures optional Receiver collaborators.
type Option func(*Receiver)

// WithAlerts evaluates every accepted snapshot against e.
func WithAlerts(e *alerts.Engine) Option { return func(r *Receiver) { r.alerts = e } }

// WithHistory records every accepted snapshot to rec.
func WithHistory(rec history.Recorder) Option { return func(r *Receiver) { r.history = rec } }

// WithMetrics counts accepted snapshots and history writes on m.
func WithMetrics(m *metrics.Metrics) Option { return func(r *Receiver) { r.metrics = m } }

// New creates a Receiver that writes accepted snapshots to st.
func New(st *store.Store, opts ...Option) *Receiver {
	r := &Receiver{store: st, history: history.Noop{}, now: time.Now}
	for _, o := range opts {
		o(r)
	}
	return r
}

// SendSnapshot is the unary RPC handler called by agents.
// Authentication is enforced by the gRPC server interceptor before this is called.
func (r *Receiver) SendSnapshot(ctx context.Context, snap *types.SensorSnapshot) (*types.SendResponse, error) {
	if snap.SensorID == "" {
		return nil, status.Error(codes.InvalidArgument, "sensor_id is required")
	}
	if snap.TimestampUnix == 0 {
		snap.TimestampUnix = r.now().Unix()
	}

	r.store.Put(snap)
	if r.metrics != nil {
		r.metrics.SnapshotReceived(snap.SensorType)
	}

	slog.Debug("receiver: snapshot stored",
		"sensor", snap.SensorID,
		"sensor_type", snap.SensorType,
		"status", snap.Status,
		"score", snap.HealthScore,
		"rul", snap.RUL,
	)

	if r.alerts != nil {
		r.alerts.Evaluate(snap)
	}

	if snap.ErrorMessage == "" {
		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historyTimeout)
		err := r.history.RecordPrediction(hctx, snap)
		cancel()
		if r.metrics != nil {
			r.metrics.HistoryWrite(err)
		}
		if err != nil {
			slog.Warn("receiver: history write failed", "sensor", snap.SensorID, "err", err)
		}
	}

	return &types.SendResponse{Ok: true}, nil
}
