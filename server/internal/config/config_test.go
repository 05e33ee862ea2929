package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoad_Defaults(t *testing.T) {
	// Agent-only file: the server section is absent entirely.
	p := writeConfig(t, `agent:
  server_endpoint: "localhost:50051"
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.GRPCPort != DefaultGRPCPort {
		t.Errorf("grpc_port: got %d, want %d", cfg.Server.GRPCPort, DefaultGRPCPort)
	}
	if cfg.Server.HTTPPort != DefaultHTTPPort {
		t.Errorf("http_port: got %d, want %d", cfg.Server.HTTPPort, DefaultHTTPPort)
	}
	if cfg.Server.Snapshot.TTL != DefaultSnapshotTTL {
		t.Errorf("snapshot.ttl: got %v, want %v", cfg.Server.Snapshot.TTL, DefaultSnapshotTTL)
	}
	if cfg.Server.BroadcastInterval != DefaultBroadcastInterval {
		t.Errorf("broadcast_interval: got %v, want %v", cfg.Server.BroadcastInterval, DefaultBroadcastInterval)
	}
	if cfg.Server.Storage.Backend != "" || cfg.Server.Storage.TablePrefix != DefaultTablePrefix {
		t.Errorf("storage: got %+v", cfg.Server.Storage)
	}
}

func TestLoad_FullServer(t *testing.T) {
	p := writeConfig(t, `server:
  grpc_port: 9090
  http_port: 9091
  auth:
    mode: apikey
    key_env: MY_KEY
    header: x-sensor-key
  snapshot:
    ttl: 10m
  broadcast_interval: 2s
  storage:
    backend: postgres
    dsn_env: SENSOR_DSN
    table_prefix: cam_
  alerts:
    rules:
      - name: rul-imminent
        condition: "rul < 7"
        severity: critical
        cooldown: 30m
    webhooks:
      - type: slack
        url_env: SLACK_URL
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := cfg.Server
	if s.GRPCPort != 9090 || s.HTTPPort != 9091 {
		t.Errorf("ports: got %d/%d", s.GRPCPort, s.HTTPPort)
	}
	if s.Auth.Mode != "apikey" || s.Auth.EffectiveHeader() != "x-sensor-key" {
		t.Errorf("auth: got %+v", s.Auth)
	}
	if s.Snapshot.TTL != 10*time.Minute || s.BroadcastInterval != 2*time.Second {
		t.Errorf("intervals: ttl=%v broadcast=%v", s.Snapshot.TTL, s.BroadcastInterval)
	}
	if s.Storage.Backend != "postgres" || s.Storage.TablePrefix != "cam_" {
		t.Errorf("storage: got %+v", s.Storage)
	}
	if len(s.Alerts.Rules) != 1 || s.Alerts.Rules[0].Cooldown != 30*time.Minute {
		t.Errorf("rules: got %+v", s.Alerts.Rules)
	}
}

func TestLoad_DefaultHeader(t *testing.T) {
	p := writeConfig(t, `server:
  auth:
    mode: apikey
    key_env: K
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if h := cfg.Server.Auth.EffectiveHeader(); h != "x-api-key" {
		t.Errorf("EffectiveHeader: got %q, want x-api-key", h)
	}
}

func TestLoad_SecretResolution(t *testing.T) {
	t.Setenv("TEST_SERVER_KEY", "supersecret")
	t.Setenv("TEST_JWT_SECRET", "signing-secret")
	t.Setenv("TEST_DSN", "postgres://localhost/sensors")
	p := writeConfig(t, `server:
  auth:
    mode: jwt
    key_env: TEST_SERVER_KEY
    jwt_secret_env: TEST_JWT_SECRET
  storage:
    backend: postgres
    dsn_env: TEST_DSN
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if k := cfg.Server.Auth.Key(); k != "supersecret" {
		t.Errorf("Key(): got %q", k)
	}
	if k := cfg.Server.Auth.JWTSecret(); k != "signing-secret" {
		t.Errorf("JWTSecret(): got %q", k)
	}
	if d := cfg.Server.Storage.DSN(); d != "postgres://localhost/sensors" {
		t.Errorf("DSN(): got %q", d)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown auth mode", "server:\n  auth:\n    mode: oauth2\n"},
		{"jwt without secret", "server:\n  auth:\n    mode: jwt\n"},
		{"port out of range", "server:\n  grpc_port: 70000\n"},
		{"zero broadcast interval", "server:\n  broadcast_interval: 0s\n"},
		{"unknown storage backend", "server:\n  storage:\n    backend: sqlite\n"},
		{"postgres without dsn", "server:\n  storage:\n    backend: postgres\n"},
		{"bad table prefix", "server:\n  storage:\n    backend: postgres\n    dsn_env: D\n    table_prefix: \"x; drop\"\n"},
		{"rule without condition", "server:\n  alerts:\n    rules:\n      - name: r\n"},
		{"unknown webhook", "server:\n  alerts:\n    webhooks:\n      - type: pagerduty\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.yaml)); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}
