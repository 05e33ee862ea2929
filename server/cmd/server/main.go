package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/sensorsight/sensorsight/pkg/rpc"
	"github.com/sensorsight/sensorsight/server/internal/alerts"
	"github.com/sensorsight/sensorsight/server/internal/api"
	"github.com/sensorsight/sensorsight/server/internal/auth"
	"github.com/sensorsight/sensorsight/server/internal/config"
	"github.com/sensorsight/sensorsight/server/internal/history"
	"github.com/sensorsight/sensorsight/server/internal/metrics"
	"github.com/sensorsight/sensorsight/server/internal/receiver"
	"github.com/sensorsight/sensorsight/server/internal/store"
	"github.com/sensorsight/sensorsight/server/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	uiDir := flag.String("ui-dir", "", "serve the dashboard static files from this directory; leave empty to disable")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("sensorsight-server starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	sc := cfg.Server

	slog.Info("config loaded",
		"grpc_port", sc.GRPCPort,
		"http_port", sc.HTTPPort,
		"auth_mode", sc.Auth.Mode,
		"snapshot_ttl", sc.Snapshot.TTL,
		"storage", sc.Storage.Backend,
		"rules", len(sc.Alerts.Rules),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st := store.New(sc.Snapshot.TTL)
	go st.Run(ctx)

	rec := openHistory(ctx, sc.Storage)
	defer rec.Close()

	alertEngine := alerts.New(sc.Alerts)
	m := metrics.New(metrics.Gauges{Sensors: st.Count, Firing: alertEngine.FiringCount})
	hub := ws.New(st, alertEngine, sc.BroadcastInterval)

	alertEngine.OnAlert(func(a alerts.Alert) {
		m.AlertTransition(a)
		hub.Notify(a)
		hctx, hcancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer hcancel()
		err := rec.RecordAlert(hctx, a)
		m.HistoryWrite(err)
		if err != nil {
			slog.Warn("alert history write failed", "alert", a.ID, "err", err)
		}
	})

	// gRPC receiver with optional API key authentication.
	interceptor := auth.APIKeyInterceptor(
		sc.Auth.Mode,
		sc.Auth.EffectiveHeader(),
		sc.Auth.Key(),
	)
	grpcSrv := grpc.NewServer(grpc.UnaryInterceptor(interceptor))
	rpc.RegisterSnapshotServiceServer(grpcSrv, receiver.New(st,
		receiver.WithAlerts(alertEngine),
		receiver.WithHistory(rec),
		receiver.WithMetrics(m),
	))

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", sc.GRPCPort))
	if err != nil {
		slog.Error("failed to listen on gRPC port", "port", sc.GRPCPort, "err", err)
		os.Exit(1)
	}
	go func() {
		slog.Info("gRPC receiver listening", "port", sc.GRPCPort)
		if err := grpcSrv.Serve(lis); err != nil {
			slog.Error("gRPC server stopped", "err", err)
		}
	}()

	go hub.Run(ctx)

	// REST API, WebSocket hub and /metrics share HTTPPort.
	requireAuth := auth.HTTPMiddleware(sc.Auth)
	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", requireAuth(api.New(api.Deps{
		Store:   st,
		Alerts:  alertEngine,
		History: rec,
	})))
	httpMux.Handle("/ws/stream", requireAuth(hub))
	httpMux.Handle("/metrics", m.Handler())

	if *uiDir != "" {
		fs := http.FileServer(http.Dir(*uiDir))
		httpMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			// SPA fallback: unknown paths get index.html.
			path := filepath.Join(*uiDir, filepath.Clean("/"+r.URL.Path))
			if _, err := os.Stat(path); os.IsNotExist(err) {
				http.ServeFile(w, r, filepath.Join(*uiDir, "index.html"))
				return
			}
			fs.ServeHTTP(w, r)
		})
		slog.Info("serving UI static files", "dir", *uiDir)
	}

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", sc.HTTPPort),
		Handler:           httpMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", sc.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("sensorsight-server shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	grpcSrv.GracefulStop()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
	alertEngine.Wait()
}

// openHistory returns the configured history backend, falling back to Noop
// when storage is disabled or unreachable.
func openHistory(ctx context.Context, sc config.StorageConfig) history.Recorder {
	if sc.Backend != "postgres" {
		return history.Noop{}
	}
	pg, err := history.Open(ctx, sc.DSN(), sc.TablePrefix)
	if err != nil {
		slog.Error("history disabled: cannot open database", "err", err)
		return history.Noop{}
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		slog.Error("history disabled: schema setup failed", "err", err)
		pg.Close()
		return history.Noop{}
	}
	slog.Info("history enabled", "backend", "postgres", "table_prefix", sc.TablePrefix)
	return pg
}
