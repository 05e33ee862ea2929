package shipper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sensorsight/sensorsight/agent/internal/compute"
	"github.com/sensorsight/sensorsight/agent/internal/config"
	"github.com/sensorsight/sensorsight/pkg/rpc"
	"github.com/sensorsight/sensorsight/pkg/types"
)

const sendTimeout = 10 * time.Second

// Shipper queues sensor snapshots and forwards them to sensorsight-server.
// The queue is bounded: a full queue drops its oldest snapshot, so the
// server always sees the most recent state of every sensor first.
type Shipper struct {
	cfg   config.AgentConfig
	queue chan *types.SensorSnapshot
	dial  dialFunc
}

type dialFunc func(ctx context.Context, endpoint string, cfg config.AgentConfig) (*grpc.ClientConn, error)

// New returns a Shipper sized from cfg.BufferSize.
func New(cfg config.AgentConfig) *Shipper {
	capacity := cfg.BufferSize
	if capacity <= 0 {
		capacity = config.DefaultBufferSize
	}
	return &Shipper{
		cfg:   cfg,
		queue: make(chan *types.SensorSnapshot, capacity),
		dial:  grpcDial,
	}
}

// Ship queues res for delivery without blocking.
func (s *Shipper) Ship(res *compute.Result) {
	s.push(toSnapshot(res))
}

// Pending reports how many snapshots are queued.
func (s *Shipper) Pending() int { return len(s.queue) }

func (s *Shipper) push(snap *types.SensorSnapshot) {
	for {
		select {
		case s.queue <- snap:
			return
		default:
		}
		select {
		case dropped := <-s.queue:
			slog.Warn("shipper: queue full, dropped oldest snapshot",
				"dropped_sensor", dropped.SensorID, "capacity", cap(s.queue))
		default:
		}
	}
}

// Run holds a connection to the server open and streams the queue over it
// until ctx ends. Failed dials and broken sessions are retried with
// jittered exponential delays.
func (s *Shipper) Run(ctx context.Context) {
	r := newRetry()
	endpoint := s.cfg.ServerEndpoint

	for ctx.Err() == nil {
		conn, err := s.dial(ctx, endpoint, s.cfg)
		if err != nil {
			d := r.wait()
			slog.Error("shipper: dial failed", "endpoint", endpoint, "err", err, "retry_in", d)
			if !sleep(ctx, d) {
				return
			}
			continue
		}

		slog.Info("shipper: connected", "endpoint", endpoint)
		r.clear()
		err = s.session(ctx, rpc.NewSnapshotServiceClient(conn))
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}

		d := r.wait()
		slog.Warn("shipper: session ended", "endpoint", endpoint, "err", err, "retry_in", d)
		if !sleep(ctx, d) {
			return
		}
	}
}

// session sends queued snapshots over client. It returns nil when ctx ends
// and an error on the first retryable send failure; the failed snapshot is
// queued again for the next session.
func (s *Shipper) session(ctx context.Context, client rpc.SnapshotServiceClient) error {
	for {
		var snap *types.SensorSnapshot
		select {
		case <-ctx.Done():
			return nil
		case snap = <-s.queue:
		}

		if err := s.send(ctx, client, snap); err != nil {
			if rejected(err) {
				slog.Error("shipper: snapshot rejected, not retrying",
					"sensor", snap.SensorID, "err", err)
				continue
			}
			s.push(snap)
			return fmt.Errorf("shipper: send %s: %w", snap.SensorID, err)
		}
	}
}

func (s *Shipper) send(ctx context.Context, client rpc.SnapshotServiceClient, snap *types.SensorSnapshot) error {
	callCtx, cancel := context.WithTimeout(withAPIKey(ctx, s.cfg.ServerAuth), sendTimeout)
	defer cancel()

	resp, err := client.SendSnapshot(callCtx, snap)
	if err != nil {
		return err
	}
	if resp.Ok {
		slog.Debug("shipper: delivered", "sensor", snap.SensorID)
	} else {
		slog.Warn("shipper: server declined snapshot", "sensor", snap.SensorID, "message", resp.Message)
	}
	return nil
}

// rejected reports whether err means the server will never accept the
// snapshot, so resending it is pointless.
func rejected(err error) bool {
	switch status.Code(err) {
	case codes.InvalidArgument, codes.Unauthenticated, codes.PermissionDenied:
		return true
	default:
		return false
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
