package scraper

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/sensorsight/sensorsight/agent/internal/config"
)

const (
	mqttConnectTimeout = 10 * time.Second
	mqttQoS            = 1

	// A reading older than staleFactor scrape intervals is reported as stale.
	staleFactor = 3
)

// mqttPayload is the JSON document a sensor publishes on its topic.
type mqttPayload struct {
	SensorID    string   `json:"sensor_id"`
	Timestamp   string   `json:"timestamp"`
	Temperature *float64 `json:"temperature"`
	NoiseLevel  *float64 `json:"noise_level"`
	DeadPixels  *float64 `json:"dead_pixel_count"`
}

// mqttScraper subscribes to a sensor topic and reports the most recent
// message on each Scrape. The broker connection is opened lazily on the
// first Scrape and re-established by paho's auto-reconnect afterwards.
type mqttScraper struct {
	sensor config.Sensor
	maxAge time.Duration
	now    func() time.Time

	connMu  sync.Mutex
	client  mqtt.Client
	connect func() error

	mu         sync.Mutex
	latest     *Reading
	receivedAt time.Time
	seq        uint64 // messages accepted
	served     uint64 // seq at the last successful Scrape
}

func newMQTTScraper(s config.Sensor, interval time.Duration, tlsCfg *tls.Config) *mqttScraper {
	m := &mqttScraper{
		sensor: s,
		maxAge: staleFactor * interval,
		now:    time.Now,
	}

	opts := mqtt.NewClientOptions().
		AddBroker(s.Endpoint).
		SetClientID("sensorsight-agent-" + s.ID).
		SetAutoReconnect(true).
		SetConnectTimeout(mqttConnectTimeout).
		SetTLSConfig(tlsCfg).
		SetOnConnectHandler(m.subscribe).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			slog.Warn("scraper: mqtt connection lost", "sensor", s.ID, "err", err)
		})
	if s.Auth.Username != "" {
		opts.SetUsername(s.Auth.Username)
		opts.SetPassword(s.Auth.Password())
	}

	m.client = mqtt.NewClient(opts)
	m.connect = m.dial
	return m
}

// dial connects the paho client once; subscription happens in the
// on-connect handler so reconnects resubscribe too.
func (m *mqttScraper) dial() error {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	if m.client.IsConnected() {
		return nil
	}
	tok := m.client.Connect()
	if !tok.WaitTimeout(mqttConnectTimeout) {
		return fmt.Errorf("connect %s: timed out", m.sensor.Endpoint)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("connect %s: %w", m.sensor.Endpoint, err)
	}
	return nil
}

func (m *mqttScraper) subscribe(c mqtt.Client) {
	tok := c.Subscribe(m.sensor.Topic, mqttQoS, func(_ mqtt.Client, msg mqtt.Message) {
		m.handle(msg.Payload())
	})
	if tok.WaitTimeout(mqttConnectTimeout) && tok.Error() == nil {
		slog.Info("scraper: mqtt subscribed", "sensor", m.sensor.ID, "topic", m.sensor.Topic)
		return
	}
	slog.Error("scraper: mqtt subscribe failed", "sensor", m.sensor.ID, "topic", m.sensor.Topic, "err", tok.Error())
}

// handle decodes one telemetry message and replaces the latest reading.
// Messages for other sensors on a shared topic are ignored.
func (m *mqttScraper) handle(payload []byte) {
	var p mqttPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		slog.Warn("scraper: mqtt payload decode failed", "sensor", m.sensor.ID, "err", err)
		return
	}
	if p.SensorID != "" && p.SensorID != m.sensor.ID {
		return
	}
	if p.Temperature == nil || p.NoiseLevel == nil || p.DeadPixels == nil {
		slog.Warn("scraper: mqtt payload incomplete", "sensor", m.sensor.ID)
		return
	}

	now := m.now().UTC()
	at := now
	if p.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339Nano, p.Timestamp); err == nil {
			at = ts.UTC()
		}
	}

	m.mu.Lock()
	m.latest = &Reading{
		SensorID:    m.sensor.ID,
		SensorType:  "mqtt",
		ScrapedAt:   at,
		Temperature: *p.Temperature,
		NoiseLevel:  *p.NoiseLevel,
		DeadPixels:  *p.DeadPixels,
	}
	m.receivedAt = now
	m.seq++
	m.mu.Unlock()
}

// Scrape returns a copy of the latest message, once. Broker failures, a
// missing first message and stale data are reported in Reading.Err; a scrape
// with no message since the previous one reports ErrNoNewData.
func (m *mqttScraper) Scrape(_ context.Context) (*Reading, error) {
	failed := func(err error) *Reading {
		return &Reading{
			SensorID:   m.sensor.ID,
			SensorType: "mqtt",
			ScrapedAt:  m.now().UTC(),
			Err:        fmt.Errorf("mqtt scrape %q: %w", m.sensor.ID, err),
		}
	}

	if err := m.connect(); err != nil {
		slog.Warn("scraper: mqtt connect failed", "sensor", m.sensor.ID, "err", err)
		return failed(err), nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.latest == nil {
		return failed(errNoData), nil
	}
	if age := m.now().Sub(m.receivedAt); m.maxAge > 0 && age > m.maxAge {
		return failed(fmt.Errorf("last reading is stale (%s old)", age.Round(time.Second))), nil
	}
	if m.seq == m.served {
		return failed(ErrNoNewData), nil
	}
	m.served = m.seq
	r := *m.latest
	return &r, nil
}

// Close disconnects from the broker.
func (m *mqttScraper) Close() error {
	if m.client != nil && m.client.IsConnected() {
		m.client.Disconnect(250)
	}
	return nil
}
