package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sensorsight/sensorsight/agent/internal/compute"
	"github.com/sensorsight/sensorsight/agent/internal/config"
	"github.com/sensorsight/sensorsight/agent/internal/metrics"
	"github.com/sensorsight/sensorsight/agent/internal/scraper"
	"github.com/sensorsight/sensorsight/agent/internal/shipper"
)

type sensor struct {
	cfg config.Sensor
	s   scraper.Scraper
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("sensorsight-agent starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	slog.Info("config loaded",
		"server_endpoint", cfg.Agent.ServerEndpoint,
		"sensors", len(cfg.Agent.Sensors),
		"scrape_interval", cfg.Agent.ScrapeInterval,
		"window_size", cfg.Agent.WindowSize,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	engine := compute.NewEngine(compute.Options{
		WindowSize:     cfg.Agent.WindowSize,
		ForecastPoints: cfg.Agent.ForecastPoints,
		RULScale:       cfg.Agent.RULScale,
	})

	var sensors []sensor
	for _, sc := range cfg.Agent.Sensors {
		s, err := scraper.New(sc, cfg.Agent.ScrapeInterval)
		if err != nil {
			slog.Error("skipping sensor, could not build scraper", "sensor", sc.ID, "err", err)
			continue
		}
		engine.SetThresholds(sc.ID, sc.Thresholds)
		sensors = append(sensors, sensor{cfg: sc, s: s})
		slog.Info("registered sensor", "id", sc.ID, "type", sc.Type, "endpoint", sc.Endpoint)
	}
	defer func() {
		for _, s := range sensors {
			if c, ok := s.s.(io.Closer); ok {
				c.Close()
			}
		}
	}()

	if len(sensors) == 0 {
		slog.Warn("no sensors configured, agent will idle")
	}

	// Hot reload applies new thresholds; adding or removing sensors needs a restart.
	go func() {
		err := config.Watch(ctx, *configPath, func(updated *config.Config) {
			known := make(map[string]bool, len(sensors))
			for _, s := range sensors {
				known[s.cfg.ID] = true
			}
			for _, sc := range updated.Agent.Sensors {
				if !known[sc.ID] {
					slog.Warn("new sensor in config ignored until restart", "sensor", sc.ID)
					continue
				}
				engine.SetThresholds(sc.ID, sc.Thresholds)
				slog.Info("thresholds updated", "sensor", sc.ID,
					"temperature_critical", sc.Thresholds.Temperature.Critical,
					"noise_critical", sc.Thresholds.NoiseLevel.Critical)
			}
		})
		if err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	ship := shipper.New(cfg.Agent)
	go ship.Run(ctx)

	m := metrics.New(ship.Pending)
	var metricsSrv *http.Server
	if cfg.Agent.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		metricsSrv = &http.Server{Addr: cfg.Agent.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			slog.Info("metrics server listening", "addr", cfg.Agent.MetricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server error", "err", err)
			}
		}()
	}

	// Scrape loop: poll every ScrapeInterval, predict, ship.
	go func() {
		ticker := time.NewTicker(cfg.Agent.ScrapeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				scrapeAll(ctx, sensors, engine, m, ship, t)
			}
		}
	}()

	<-ctx.Done()
	slog.Info("sensorsight-agent shutting down")

	if metricsSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown error", "err", err)
		}
	}
}

// scrapeAll polls every sensor concurrently and feeds the results through
// the engine, the metrics and the shipper.
func scrapeAll(ctx context.Context, sensors []sensor, engine *compute.Engine,
	m *metrics.Metrics, ship *shipper.Shipper, now time.Time) {
	var wg sync.WaitGroup
	for _, s := range sensors {
		wg.Add(1)
		go func(s sensor) {
			defer wg.Done()
			reading, err := s.s.Scrape(ctx)
			if err != nil {
				slog.Warn("scrape error", "sensor", s.cfg.ID, "err", err)
				return
			}
			if reading.Unchanged() {
				slog.Debug("no new reading", "sensor", s.cfg.ID)
				return
			}
			result := engine.Process(reading, now)
			m.Observe(result)
			ship.Ship(result)
			slog.Debug("shipped snapshot",
				"sensor", s.cfg.ID,
				"status", result.Status,
				"health", result.HealthScore,
				"rul", result.RUL,
			)
		}(s)
	}
	wg.Wait()
}
