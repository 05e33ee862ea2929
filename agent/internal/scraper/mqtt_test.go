package scraper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sensorsight/sensorsight/agent/internal/config"
)

// testInterval is the scrape interval used by scraper tests.
const testInterval = 10 * time.Second

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestMQTT(clock *fakeClock) *mqttScraper {
	return &mqttScraper{
		sensor:  config.Sensor{ID: "cam-front", Type: "mqtt", Topic: "cams/front"},
		maxAge:  staleFactor * testInterval,
		now:     clock.now,
		connect: func() error { return nil },
	}
}

func TestMQTTScraper_NoDataYet(t *testing.T) {
	m := newTestMQTT(&fakeClock{t: time.Unix(1_700_000_000, 0)})
	r, err := m.Scrape(context.Background())
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}
	if !errors.Is(r.Err, errNoData) {
		t.Errorf("r.Err = %v, want errNoData", r.Err)
	}
}

func TestMQTTScraper_LatestMessage(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	m := newTestMQTT(clock)

	m.handle([]byte(`{"sensor_id":"cam-front","timestamp":"2024-05-01T10:00:00Z","temperature":40.1,"noise_level":1.2,"dead_pixel_count":9}`))
	m.handle([]byte(`{"sensor_id":"cam-front","temperature":41.5,"noise_level":1.4,"dead_pixel_count":10}`))

	r, _ := m.Scrape(context.Background())
	if r.Err != nil {
		t.Fatalf("r.Err = %v", r.Err)
	}
	if r.Temperature != 41.5 || r.NoiseLevel != 1.4 || r.DeadPixels != 10 {
		t.Errorf("reading = %+v, want the second message", r)
	}
	if !r.ScrapedAt.Equal(clock.t) {
		t.Errorf("ScrapedAt = %v, want receipt time %v when no timestamp is sent", r.ScrapedAt, clock.t)
	}
}

func TestMQTTScraper_PayloadTimestamp(t *testing.T) {
	m := newTestMQTT(&fakeClock{t: time.Unix(1_700_000_000, 0)})
	m.handle([]byte(`{"timestamp":"2024-05-01T10:00:00Z","temperature":40,"noise_level":1,"dead_pixel_count":9}`))

	r, _ := m.Scrape(context.Background())
	want := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	if !r.ScrapedAt.Equal(want) {
		t.Errorf("ScrapedAt = %v, want %v", r.ScrapedAt, want)
	}
}

func TestMQTTScraper_IgnoresBadMessages(t *testing.T) {
	m := newTestMQTT(&fakeClock{t: time.Unix(1_700_000_000, 0)})

	m.handle([]byte(`not json`))
	m.handle([]byte(`{"sensor_id":"cam-rear","temperature":40,"noise_level":1,"dead_pixel_count":9}`))
	m.handle([]byte(`{"sensor_id":"cam-front","temperature":40}`))

	r, _ := m.Scrape(context.Background())
	if !errors.Is(r.Err, errNoData) {
		t.Errorf("r.Err = %v, want errNoData after only rejected messages", r.Err)
	}
}

func TestMQTTScraper_Stale(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	m := newTestMQTT(clock)
	m.handle([]byte(`{"temperature":40,"noise_level":1,"dead_pixel_count":9}`))

	clock.advance(staleFactor * testInterval)
	if r, _ := m.Scrape(context.Background()); r.Err != nil {
		t.Fatalf("reading at exactly max age should be fresh, got %v", r.Err)
	}

	clock.advance(time.Second)
	r, _ := m.Scrape(context.Background())
	if r.Err == nil || r.Unchanged() {
		t.Fatalf("r.Err = %v, want a stale-data failure", r.Err)
	}
}

func TestMQTTScraper_EachMessageServedOnce(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	m := newTestMQTT(clock)
	m.handle([]byte(`{"temperature":40,"noise_level":1,"dead_pixel_count":9}`))

	if r, _ := m.Scrape(context.Background()); r.Err != nil {
		t.Fatalf("first scrape: r.Err = %v", r.Err)
	}

	clock.advance(testInterval)
	r, _ := m.Scrape(context.Background())
	if !errors.Is(r.Err, ErrNoNewData) || !r.Unchanged() {
		t.Fatalf("repeat scrape: r.Err = %v, want ErrNoNewData", r.Err)
	}

	m.handle([]byte(`{"temperature":42,"noise_level":1.1,"dead_pixel_count":9}`))
	r, _ = m.Scrape(context.Background())
	if r.Err != nil || r.Temperature != 42 {
		t.Errorf("after a new message: reading = %+v, want temperature 42", r)
	}
}

func TestMQTTScraper_ConnectFailure(t *testing.T) {
	m := newTestMQTT(&fakeClock{t: time.Unix(1_700_000_000, 0)})
	m.connect = func() error { return errors.New("connection refused") }

	r, err := m.Scrape(context.Background())
	if err != nil {
		t.Fatalf("Scrape() should not return err, got: %v", err)
	}
	if r.Err == nil {
		t.Fatal("r.Err should be set when the broker is unreachable")
	}
}
