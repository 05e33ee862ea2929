package scraper

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/sensorsight/sensorsight/agent/internal/config"
)

const defaultScrapeTimeout = 10 * time.Second

// errNoData is reported before a push-based sensor has delivered anything.
var errNoData = errors.New("no reading received yet")

// ErrNoNewData is reported by push-based sensors when nothing arrived since
// the previous scrape. Such a reading is not a failure and carries no sample.
var ErrNoNewData = errors.New("no new reading since last scrape")

// Reading is the normalized output of one scrape cycle for a single sensor.
type Reading struct {
	SensorID   string
	SensorType string
	ScrapedAt  time.Time

	Temperature float64 // degrees Celsius
	NoiseLevel  float64
	DeadPixels  float64

	// Err is non-nil if the scrape itself failed (connectivity, auth, parse,
	// stale data). The compute engine treats a non-nil Err as unknown status.
	Err error
}

// Unchanged reports whether r holds no new sample, so the window and the
// server should be left alone this cycle.
func (r *Reading) Unchanged() bool {
	return errors.Is(r.Err, ErrNoNewData)
}

// Scraper is the common interface implemented by every sensor scraper.
type Scraper interface {
	Scrape(ctx context.Context) (*Reading, error)
}

// New returns the appropriate Scraper for the given sensor configuration.
// interval is the agent scrape interval, used for staleness checks on
// push-based sensors. Scrapers holding connections also implement io.Closer.
func New(s config.Sensor, interval time.Duration) (Scraper, error) {
	switch s.Type {
	case "prometheus":
		client, err := buildHTTPClient(s)
		if err != nil {
			return nil, fmt.Errorf("scraper %q: build http client: %w", s.ID, err)
		}
		return &promScraper{sensor: s, client: client}, nil
	case "mqtt":
		tlsCfg, err := buildTLSConfig(s)
		if err != nil {
			return nil, fmt.Errorf("scraper %q: build tls config: %w", s.ID, err)
		}
		return newMQTTScraper(s, interval, tlsCfg), nil
	case "emulator":
		return NewEmulator(s.ID, time.Now, time.Now().UnixNano()), nil
	default:
		return nil, fmt.Errorf("scraper: unsupported type %q", s.Type)
	}
}

// authRoundTripper injects authentication headers into every outgoing request.
type authRoundTripper struct {
	base http.RoundTripper
	auth config.AuthConfig
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	switch t.auth.Mode {
	case "apikey":
		req = req.Clone(req.Context())
		req.Header.Set(t.auth.Header, t.auth.Key())
	case "bearer":
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.auth.Token())
	case "basic":
		req = req.Clone(req.Context())
		req.SetBasicAuth(t.auth.Username, t.auth.Password())
	}
	return t.base.RoundTrip(req)
}

// buildTLSConfig loads client certificates and the CA pool for mtls sensors.
func buildTLSConfig(s config.Sensor) (*tls.Config, error) {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: s.TLS.InsecureSkipVerify, //nolint:gosec // user-configured
	}
	if s.Auth.Mode != "mtls" {
		return tlsCfg, nil
	}

	cert, err := tls.LoadX509KeyPair(s.Auth.CertFile, s.Auth.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load client cert: %w", err)
	}
	tlsCfg.Certificates = []tls.Certificate{cert}

	if s.Auth.CAFile != "" {
		caPEM, err := os.ReadFile(s.Auth.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("no valid certs found in ca file %q", s.Auth.CAFile)
		}
		tlsCfg.RootCAs = pool
	}
	return tlsCfg, nil
}

// buildHTTPClient constructs an http.Client for the sensor's auth and TLS settings.
func buildHTTPClient(s config.Sensor) (*http.Client, error) {
	tlsCfg, err := buildTLSConfig(s)
	if err != nil {
		return nil, err
	}
	return &http.Client{
		Transport: &authRoundTripper{
			base: &http.Transport{TLSClientConfig: tlsCfg},
			auth: s.Auth,
		},
		Timeout: defaultScrapeTimeout,
	}, nil
}

// fetchMetrics performs an HTTP GET to url and returns parsed metric families.
func fetchMetrics(ctx context.Context, client *http.Client, url string) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return parseMetrics(resp.Body)
}

// parseMetrics decodes a Prometheus text exposition from r into metric families.
// A partial result with a non-fatal parse warning is still returned successfully.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	return mfs, nil
}

// metricValue returns the gauge, counter or untyped value of m.
func metricValue(m *dto.Metric) float64 {
	switch {
	case m.Gauge != nil:
		return m.Gauge.GetValue()
	case m.Counter != nil:
		return m.Counter.GetValue()
	case m.Untyped != nil:
		return m.Untyped.GetValue()
	}
	return 0
}

// sensorValue picks the value for sensorID out of mf. A sample labelled
// sensor=<sensorID> wins; otherwise unlabelled exporters are summed.
// ok is false when the family is absent.
func sensorValue(mf *dto.MetricFamily, sensorID string) (v float64, ok bool) {
	if mf == nil || len(mf.GetMetric()) == 0 {
		return 0, false
	}
	var total float64
	labelled := false
	for _, m := range mf.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() != "sensor" {
				continue
			}
			labelled = true
			if lp.GetValue() == sensorID {
				return metricValue(m), true
			}
		}
		total += metricValue(m)
	}
	if labelled {
		return 0, false
	}
	return total, true
}
