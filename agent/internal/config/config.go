package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sensorsight/sensorsight/pkg/predict"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultScrapeInterval = 30 * time.Second
	DefaultShipInterval   = 15 * time.Second
	DefaultBufferSize     = 1000
	DefaultWindowSize     = 120
	DefaultForecastPoints = 10
	DefaultRULScale       = predict.DefaultRULScale
	DefaultMetricsAddr    = ":9102"
)

// Default alarm bands for a camera-module sensor.
var (
	DefaultTemperature = Band{Warning: 45, Critical: 60}
	DefaultNoiseLevel  = Band{Warning: 2.5, Critical: 5.0}
	DefaultDeadPixels  = Band{Warning: 20, Critical: 50}
)

// Config is the agent configuration parsed from the `agent:` section of
// config.yaml. The `server:` key in the same file is ignored.
type Config struct {
	Agent AgentConfig `yaml:"agent"`
}

// AgentConfig holds all agent-side settings.
type AgentConfig struct {
	// ServerEndpoint is the gRPC address of sensorsight-server (host:port).
	ServerEndpoint string `yaml:"server_endpoint"`

	// ScrapeInterval controls how often each sensor is polled.
	ScrapeInterval time.Duration `yaml:"scrape_interval"`

	// ShipInterval controls how often buffered snapshots are sent to the server.
	ShipInterval time.Duration `yaml:"ship_interval"`

	// BufferSize is the maximum number of snapshots held in memory when
	// the server is unreachable.
	BufferSize int `yaml:"buffer_size"`

	// WindowSize is the number of readings kept per sensor for trend fitting.
	WindowSize int `yaml:"window_size"`

	// ForecastPoints is how many future temperature points each snapshot carries.
	ForecastPoints int `yaml:"forecast_points"`

	// RULScale divides the raw step count into reported RUL units.
	RULScale float64 `yaml:"rul_scale"`

	// MetricsAddr is the listen address for /metrics. Empty disables it.
	MetricsAddr string `yaml:"metrics_addr"`

	// Sensors is the list of camera sensors to monitor.
	Sensors []Sensor `yaml:"sensors"`

	// ServerAuth configures how the agent authenticates to sensorsight-server.
	// Supports: mtls | apikey | none.
	ServerAuth AuthConfig `yaml:"server_auth"`
}

// Sensor describes one monitored camera sensor.
type Sensor struct {
	// ID is a unique, human-readable identifier for this sensor.
	ID string `yaml:"id"`

	// Type is the acquisition method: prometheus | mqtt | emulator.
	Type string `yaml:"type"`

	// Endpoint is the exporter URL (prometheus) or broker URL (mqtt).
	// Unused by the emulator.
	Endpoint string `yaml:"endpoint"`

	// Topic is the MQTT topic carrying the sensor's JSON telemetry.
	Topic string `yaml:"topic"`

	Auth AuthConfig `yaml:"auth"`
	TLS  TLSConfig  `yaml:"tls"`

	// Thresholds are the alarm bands for this sensor. Zero bands take the defaults.
	Thresholds Thresholds `yaml:"thresholds"`
}

// Band is a warning/critical pair for one metric.
type Band struct {
	Warning  float64 `yaml:"warning"`
	Critical float64 `yaml:"critical"`
}

// Thresholds holds the alarm bands for every tracked metric. The temperature
// critical value doubles as the health-score threshold and the noise critical
// value as the RUL failure threshold.
type Thresholds struct {
	Temperature Band `yaml:"temperature"`
	NoiseLevel  Band `yaml:"noise_level"`
	DeadPixels  Band `yaml:"dead_pixels"`
}

// DefaultThresholds returns the built-in alarm bands.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Temperature: DefaultTemperature,
		NoiseLevel:  DefaultNoiseLevel,
		DeadPixels:  DefaultDeadPixels,
	}
}

// withDefaults fills zero bands from the built-in defaults.
func (t Thresholds) withDefaults() Thresholds {
	d := DefaultThresholds()
	if t.Temperature == (Band{}) {
		t.Temperature = d.Temperature
	}
	if t.NoiseLevel == (Band{}) {
		t.NoiseLevel = d.NoiseLevel
	}
	if t.DeadPixels == (Band{}) {
		t.DeadPixels = d.DeadPixels
	}
	return t
}

// AuthConfig specifies the authentication mode for a sensor endpoint or the server.
type AuthConfig struct {
	// Mode is one of: mtls | apikey | bearer | basic | none.
	Mode string `yaml:"mode"`

	// mTLS fields, used when Mode == "mtls".
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`

	// Header is the HTTP header (or gRPC metadata key) carrying the API key.
	Header string `yaml:"header"`
	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`

	// TokenEnv is the name of the environment variable that holds the bearer token.
	TokenEnv string `yaml:"token_env"`

	// Username is the literal basic-auth or MQTT username.
	Username string `yaml:"username"`
	// PasswordEnv is the name of the environment variable that holds the password.
	PasswordEnv string `yaml:"password_env"`
}

// Key returns the API key value resolved from the environment.
// Returns empty string if KeyEnv is unset or the variable is not found.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// Token returns the bearer token value resolved from the environment.
func (a AuthConfig) Token() string {
	if a.TokenEnv == "" {
		return ""
	}
	return os.Getenv(a.TokenEnv)
}

// Password returns the password resolved from the environment.
func (a AuthConfig) Password() string {
	if a.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(a.PasswordEnv)
}

// TLSConfig holds per-sensor TLS dial options.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	for i := range cfg.Agent.Sensors {
		cfg.Agent.Sensors[i].Thresholds = cfg.Agent.Sensors[i].Thresholds.withDefaults()
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Agent: AgentConfig{
			ScrapeInterval: DefaultScrapeInterval,
			ShipInterval:   DefaultShipInterval,
			BufferSize:     DefaultBufferSize,
			WindowSize:     DefaultWindowSize,
			ForecastPoints: DefaultForecastPoints,
			RULScale:       DefaultRULScale,
			MetricsAddr:    DefaultMetricsAddr,
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	a := cfg.Agent
	if a.ServerEndpoint == "" {
		return fmt.Errorf("agent.server_endpoint is required")
	}
	if a.ScrapeInterval <= 0 {
		return fmt.Errorf("agent.scrape_interval must be positive")
	}
	if a.ShipInterval <= 0 {
		return fmt.Errorf("agent.ship_interval must be positive")
	}
	if a.BufferSize <= 0 {
		return fmt.Errorf("agent.buffer_size must be positive")
	}
	if a.WindowSize < predict.RULMinSamples {
		return fmt.Errorf("agent.window_size must be at least %d", predict.RULMinSamples)
	}
	if a.ForecastPoints < 0 || a.ForecastPoints > predict.MaxForecastPoints {
		return fmt.Errorf("agent.forecast_points %d is out of range [0, %d]", a.ForecastPoints, predict.MaxForecastPoints)
	}
	if a.RULScale <= 0 {
		return fmt.Errorf("agent.rul_scale must be positive")
	}

	seen := make(map[string]bool, len(a.Sensors))
	for i, s := range a.Sensors {
		if s.ID == "" {
			return fmt.Errorf("sensors[%d]: id is required", i)
		}
		if seen[s.ID] {
			return fmt.Errorf("sensors[%d]: duplicate id %q", i, s.ID)
		}
		seen[s.ID] = true

		switch s.Type {
		case "prometheus":
			if s.Endpoint == "" {
				return fmt.Errorf("sensors[%d] %q: endpoint is required", i, s.ID)
			}
		case "mqtt":
			if s.Endpoint == "" || s.Topic == "" {
				return fmt.Errorf("sensors[%d] %q: endpoint and topic are required", i, s.ID)
			}
		case "emulator":
		default:
			return fmt.Errorf("sensors[%d] %q: unknown type %q", i, s.ID, s.Type)
		}

		switch s.Auth.Mode {
		case "mtls", "apikey", "bearer", "basic", "none", "":
		default:
			return fmt.Errorf("sensors[%d] %q: unknown auth mode %q", i, s.ID, s.Auth.Mode)
		}

		if err := validateThresholds(s.Thresholds); err != nil {
			return fmt.Errorf("sensors[%d] %q: %w", i, s.ID, err)
		}
	}

	switch a.ServerAuth.Mode {
	case "mtls", "apikey", "none", "":
	default:
		return fmt.Errorf("agent.server_auth.mode %q unknown: want mtls|apikey|none", a.ServerAuth.Mode)
	}
	return nil
}

func validateThresholds(t Thresholds) error {
	bands := []struct {
		name string
		b    Band
	}{
		{"temperature", t.Temperature},
		{"noise_level", t.NoiseLevel},
		{"dead_pixels", t.DeadPixels},
	}
	for _, band := range bands {
		if band.b.Critical <= 0 {
			return fmt.Errorf("thresholds.%s.critical must be positive", band.name)
		}
		if band.b.Warning > band.b.Critical {
			return fmt.Errorf("thresholds.%s.warning exceeds critical", band.name)
		}
	}
	return nil
}
