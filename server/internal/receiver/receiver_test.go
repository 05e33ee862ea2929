package receiver_test

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/sensorsight/sensorsight/pkg/rpc"
	"github.com/sensorsight/sensorsight/pkg/types"
	"github.com/sensorsight/sensorsight/server/internal/alerts"
	"github.com/sensorsight/sensorsight/server/internal/auth"
	"github.com/sensorsight/sensorsight/server/internal/config"
	"github.com/sensorsight/sensorsight/server/internal/history"
	"github.com/sensorsight/sensorsight/server/internal/receiver"
	"github.com/sensorsight/sensorsight/server/internal/store"
)

// startServer starts a gRPC server with the given interceptor and returns a
// connected client. Uses a random TCP port.
func startServer(t *testing.T, interceptor grpc.UnaryServerInterceptor, opts ...receiver.Option) (rpc.SnapshotServiceClient, *store.Store) {
	t.Helper()

	st := store.New(5 * time.Minute)
	rec := receiver.New(st, opts...)

	srv := grpc.NewServer(grpc.UnaryInterceptor(interceptor))
	rpc.RegisterSnapshotServiceServer(srv, rec)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	go srv.Serve(lis) //nolint:errcheck

	t.Cleanup(func() {
		srv.Stop()
		lis.Close()
	})

	conn, err := grpc.Dial(lis.Addr().String(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	) //nolint:staticcheck
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return rpc.NewSnapshotServiceClient(conn), st
}

// allowAll is a no-op interceptor that passes every call through.
func allowAll(ctx context.Context, req interface{}, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	return handler(ctx, req)
}

// fakeRecorder captures RecordPrediction calls.
type fakeRecorder struct {
	history.Noop
	mu   sync.Mutex
	seen []string
	err  error
}

func (f *fakeRecorder) RecordPrediction(_ context.Context, s *types.SensorSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, s.SensorID)
	return f.err
}

func (f *fakeRecorder) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.seen...)
}

func TestSendSnapshot_StoresSnapshot(t *testing.T) {
	client, st := startServer(t, allowAll)

	snap := &types.SensorSnapshot{
		SensorID:    "cam-1",
		SensorType:  "emulator",
		Status:      "healthy",
		HealthScore: 92,
		RUL:         999,
		RULStatus:   "stable",
		Forecast:    []types.ForecastPoint{{X: 120, Y: 31.5}},
	}

	resp, err := client.SendSnapshot(context.Background(), snap)
	if err != nil {
		t.Fatalf("SendSnapshot: %v", err)
	}
	if !resp.Ok {
		t.Errorf("Ok: got false, want true")
	}

	e, ok := st.Get("cam-1")
	if !ok {
		t.Fatal("store.Get: expected entry, got none")
	}
	if e.Snapshot.Status != "healthy" {
		t.Errorf("Status: got %q, want healthy", e.Snapshot.Status)
	}
	if e.Snapshot.HealthScore != 92 {
		t.Errorf("HealthScore: got %v, want 92", e.Snapshot.HealthScore)
	}
	if len(e.Snapshot.Forecast) != 1 || e.Snapshot.Forecast[0].Y != 31.5 {
		t.Errorf("Forecast: got %+v", e.Snapshot.Forecast)
	}
	if e.Snapshot.TimestampUnix == 0 {
		t.Error("TimestampUnix should be stamped when the agent omits it")
	}
}

func TestSendSnapshot_MissingSensorID_InvalidArgument(t *testing.T) {
	client, _ := startServer(t, allowAll)

	_, err := client.SendSnapshot(context.Background(), &types.SensorSnapshot{})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if code := status.Code(err); code != codes.InvalidArgument {
		t.Errorf("code: got %v, want InvalidArgument", code)
	}
}

func TestSendSnapshot_MultipleSnapshots_AllStored(t *testing.T) {
	client, st := startServer(t, allowAll)

	sensors := []string{"cam-a", "cam-b", "cam-c"}
	for _, id := range sensors {
		_, err := client.SendSnapshot(context.Background(), &types.SensorSnapshot{
			SensorID:   id,
			SensorType: "mqtt",
			Status:     "healthy",
		})
		if err != nil {
			t.Fatalf("SendSnapshot %q: %v", id, err)
		}
	}

	if n := st.Count(); n != 3 {
		t.Errorf("store.Count: got %d, want 3", n)
	}
	for _, id := range sensors {
		if _, ok := st.Get(id); !ok {
			t.Errorf("store.Get(%q): not found", id)
		}
	}
}

func TestSendSnapshot_UpdateExistingSensor(t *testing.T) {
	client, st := startServer(t, allowAll)

	ctx := context.Background()
	if _, err := client.SendSnapshot(ctx, &types.SensorSnapshot{SensorID: "cam", Status: "healthy"}); err != nil {
		t.Fatalf("first SendSnapshot: %v", err)
	}
	if _, err := client.SendSnapshot(ctx, &types.SensorSnapshot{SensorID: "cam", Status: "critical"}); err != nil {
		t.Fatalf("second SendSnapshot: %v", err)
	}

	if st.Count() != 1 {
		t.Errorf("store.Count: got %d, want 1 (updates, not appends)", st.Count())
	}
	e, _ := st.Get("cam")
	if e.Snapshot.Status != "critical" {
		t.Errorf("Status: got %q, want critical", e.Snapshot.Status)
	}
}

func TestSendSnapshot_RecordsHistory(t *testing.T) {
	rec := &fakeRecorder{}
	client, _ := startServer(t, allowAll, receiver.WithHistory(rec))

	ctx := context.Background()
	client.SendSnapshot(ctx, &types.SensorSnapshot{SensorID: "ok"})                           //nolint:errcheck
	client.SendSnapshot(ctx, &types.SensorSnapshot{SensorID: "failed", ErrorMessage: "down"}) //nolint:errcheck

	got := rec.calls()
	if len(got) != 1 || got[0] != "ok" {
		t.Errorf("history calls = %v, want [ok]", got)
	}
}

func TestSendSnapshot_HistoryErrorDoesNotFailRPC(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("db down")}
	client, st := startServer(t, allowAll, receiver.WithHistory(rec))

	resp, err := client.SendSnapshot(context.Background(), &types.SensorSnapshot{SensorID: "cam"})
	if err != nil {
		t.Fatalf("SendSnapshot: %v", err)
	}
	if !resp.Ok || st.Count() != 1 {
		t.Errorf("snapshot should be accepted despite the history error")
	}
}

func TestSendSnapshot_EvaluatesAlerts(t *testing.T) {
	eng := alerts.New(config.AlertsConfig{Rules: []config.AlertRule{
		{Name: "critical-status", Condition: "status == critical", Severity: "critical"},
	}})
	t.Cleanup(eng.Wait)
	client, _ := startServer(t, allowAll, receiver.WithAlerts(eng))

	if _, err := client.SendSnapshot(context.Background(), &types.SensorSnapshot{SensorID: "cam", Status: "critical"}); err != nil {
		t.Fatalf("SendSnapshot: %v", err)
	}
	if n := eng.FiringCount(); n != 1 {
		t.Errorf("FiringCount = %d, want 1", n)
	}
}

func TestSendSnapshot_WithAPIKeyInterceptor_CorrectKey_Passes(t *testing.T) {
	i := auth.APIKeyInterceptor("apikey", "x-api-key", "testkey")
	client, st := startServer(t, i)

	ctx := metadata.AppendToOutgoingContext(context.Background(), "x-api-key", "testkey")
	if _, err := client.SendSnapshot(ctx, &types.SensorSnapshot{SensorID: "cam", Status: "healthy"}); err != nil {
		t.Fatalf("SendSnapshot with correct key: %v", err)
	}
	if st.Count() != 1 {
		t.Errorf("store.Count: got %d, want 1", st.Count())
	}
}

func TestSendSnapshot_WithAPIKeyInterceptor_WrongKey_Rejected(t *testing.T) {
	i := auth.APIKeyInterceptor("apikey", "x-api-key", "testkey")
	client, st := startServer(t, i)

	ctx := metadata.AppendToOutgoingContext(context.Background(), "x-api-key", "wrongkey")
	_, err := client.SendSnapshot(ctx, &types.SensorSnapshot{SensorID: "cam"})
	if code := status.Code(err); code != codes.Unauthenticated {
		t.Errorf("code: got %v, want Unauthenticated", code)
	}
	if st.Count() != 0 {
		t.Errorf("rejected snapshot was stored")
	}
}

func TestSendSnapshot_WithAPIKeyInterceptor_MissingKey_Rejected(t *testing.T) {
	i := auth.APIKeyInterceptor("apikey", "x-api-key", "testkey")
	client, _ := startServer(t, i)

	// No key in metadata.
	_, err := client.SendSnapshot(context.Background(), &types.SensorSnapshot{SensorID: "cam"})
	if code := status.Code(err); code != codes.Unauthenticated {
		t.Errorf("code: got %v, want Unauthenticated", code)
	}
}
