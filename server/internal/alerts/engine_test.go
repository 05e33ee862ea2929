package alerts

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sensorsight/sensorsight/pkg/types"
	"github.com/sensorsight/sensorsight/server/internal/config"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time         { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestEngine(t *testing.T, cfg config.AlertsConfig) (*Engine, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	e := New(cfg)
	e.now = c.now
	t.Cleanup(e.Wait)
	return e, c
}

func lowHealthRule() config.AlertsConfig {
	return config.AlertsConfig{Rules: []config.AlertRule{{
		Name:      "low-health",
		Condition: "health_score < 30",
		Severity:  "critical",
	}}}
}

func snapWithScore(id string, score int) *types.SensorSnapshot {
	return &types.SensorSnapshot{SensorID: id, Status: "healthy", HealthScore: score}
}

// --- lifecycle ---

func TestEvaluate_FireAndResolve(t *testing.T) {
	e, c := newTestEngine(t, lowHealthRule())

	changed := e.Evaluate(snapWithScore("cam-1", 20))
	if len(changed) != 1 || changed[0].State != StateFiring {
		t.Fatalf("first evaluate: got %+v, want one firing alert", changed)
	}
	a := changed[0]
	if a.Severity != "critical" || a.RuleName != "low-health" || a.SensorID != "cam-1" || a.Value != 20 {
		t.Errorf("unexpected alert: %+v", a)
	}
	if a.ID == "" {
		t.Error("alert ID is empty")
	}
	if e.FiringCount() != 1 {
		t.Errorf("FiringCount = %d, want 1", e.FiringCount())
	}

	c.advance(time.Minute)
	changed = e.Evaluate(snapWithScore("cam-1", 80))
	if len(changed) != 1 || changed[0].State != StateResolved {
		t.Fatalf("second evaluate: got %+v, want one resolved alert", changed)
	}
	if changed[0].ResolvedAt == nil || !changed[0].ResolvedAt.Equal(c.t) {
		t.Errorf("ResolvedAt = %v, want %v", changed[0].ResolvedAt, c.t)
	}
	if e.FiringCount() != 0 {
		t.Errorf("FiringCount after resolve = %d, want 0", e.FiringCount())
	}
}

func TestEvaluate_Cooldown(t *testing.T) {
	e, c := newTestEngine(t, lowHealthRule())

	if got := e.Evaluate(snapWithScore("cam-1", 20)); len(got) != 1 {
		t.Fatalf("first fire: got %d transitions", len(got))
	}
	c.advance(time.Minute)
	if got := e.Evaluate(snapWithScore("cam-1", 90)); len(got) != 1 || got[0].State != StateResolved {
		t.Fatalf("resolve: got %+v", got)
	}

	c.advance(5 * time.Minute)
	if got := e.Evaluate(snapWithScore("cam-1", 15)); len(got) != 0 {
		t.Errorf("re-fire within cooldown: got %d transitions, want 0", len(got))
	}
	c.advance(11 * time.Minute)
	got := e.Evaluate(snapWithScore("cam-1", 10))
	if len(got) != 1 || got[0].State != StateFiring || got[0].Value != 10 {
		t.Errorf("after cooldown: got %+v, want one re-fire at value 10", got)
	}
}

func TestEvaluate_StillFiringIsNotRefired(t *testing.T) {
	e, c := newTestEngine(t, lowHealthRule())

	var mu sync.Mutex
	last := map[string]string{}
	e.OnAlert(func(a Alert) {
		mu.Lock()
		last[a.ID] = a.State
		mu.Unlock()
	})

	first := e.Evaluate(snapWithScore("cam-1", 20))
	if len(first) != 1 {
		t.Fatalf("first fire: got %d transitions", len(first))
	}
	c.advance(16 * time.Minute)
	if got := e.Evaluate(snapWithScore("cam-1", 20)); len(got) != 0 {
		t.Errorf("condition still true past the cooldown: got %+v, want no new alert", got)
	}
	if e.FiringCount() != 1 {
		t.Errorf("FiringCount = %d, want 1", e.FiringCount())
	}

	c.advance(time.Minute)
	resolved := e.Evaluate(snapWithScore("cam-1", 90))
	if len(resolved) != 1 || resolved[0].ID != first[0].ID {
		t.Fatalf("resolve: got %+v, want the original alert %s", resolved, first[0].ID)
	}
	e.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(last) != 1 || last[first[0].ID] != StateResolved {
		t.Errorf("last hook state per alert = %v, want only %s resolved", last, first[0].ID)
	}
}

func TestEvaluate_SensorsIndependent(t *testing.T) {
	e, _ := newTestEngine(t, lowHealthRule())

	e.Evaluate(snapWithScore("cam-1", 20))
	if got := e.Evaluate(snapWithScore("cam-2", 20)); len(got) != 1 {
		t.Errorf("cam-2 should fire independently of cam-1, got %d transitions", len(got))
	}
}

func TestNew_SkipsInvalidRules(t *testing.T) {
	e, _ := newTestEngine(t, config.AlertsConfig{Rules: []config.AlertRule{
		{Name: "bad", Condition: "drop_pct > 10"},
		{Name: "ok", Condition: "status == critical"},
	}})
	if len(e.rules) != 1 || e.rules[0].name != "ok" {
		t.Errorf("rules = %+v, want only \"ok\"", e.rules)
	}
	if e.rules[0].severity != SeverityWarning {
		t.Errorf("default severity = %v, want warning", e.rules[0].severity)
	}
}

// --- anomalies ---

func TestEvaluate_AnomalyAlerts(t *testing.T) {
	e, c := newTestEngine(t, config.AlertsConfig{})

	s := snapWithScore("cam-1", 90)
	s.Anomalies = []types.Anomaly{{
		Kind: "spike", Metric: "noise_level", Severity: "warning", Value: 3.1, Reference: 1.2,
		Message: "noise_level jumped",
	}}
	got := e.Evaluate(s)
	if len(got) != 1 {
		t.Fatalf("got %d transitions, want 1", len(got))
	}
	if got[0].RuleName != "anomaly:spike:noise_level" || got[0].Severity != "warning" {
		t.Errorf("unexpected anomaly alert: %+v", got[0])
	}

	// A failed scrape leaves the anomaly alert firing.
	c.advance(time.Minute)
	if got := e.Evaluate(&types.SensorSnapshot{SensorID: "cam-1", ErrorMessage: "timeout"}); len(got) != 0 {
		t.Errorf("failed scrape: got %d transitions, want 0", len(got))
	}

	c.advance(time.Minute)
	got = e.Evaluate(snapWithScore("cam-1", 90))
	if len(got) != 1 || got[0].State != StateResolved {
		t.Errorf("clean snapshot: got %+v, want anomaly resolved", got)
	}
}

func TestEvaluate_PersistentAnomalyStaysFiring(t *testing.T) {
	e, c := newTestEngine(t, config.AlertsConfig{})

	hot := func() *types.SensorSnapshot {
		s := snapWithScore("cam-1", 0)
		s.Latest.Temperature = 70
		s.Anomalies = []types.Anomaly{{
			Kind: "threshold", Metric: "temperature", Severity: "critical", Value: 70, Reference: 60,
		}}
		return s
	}

	if got := e.Evaluate(hot()); len(got) != 1 || got[0].State != StateFiring {
		t.Fatalf("first hot snapshot: got %+v, want one firing alert", got)
	}
	for i := 0; i < 40; i++ {
		c.advance(30 * time.Second)
		if got := e.Evaluate(hot()); len(got) != 0 {
			t.Fatalf("hot snapshot %d: got %+v, want no transition", i, got)
		}
	}
	if e.FiringCount() != 1 {
		t.Errorf("FiringCount = %d, want 1 while the anomaly is reported", e.FiringCount())
	}
}

// --- queries ---

func TestActive_NewestFirstAndRecentResolved(t *testing.T) {
	e, c := newTestEngine(t, lowHealthRule())

	e.Evaluate(snapWithScore("cam-a", 10))
	c.advance(time.Minute)
	e.Evaluate(snapWithScore("cam-b", 10))
	c.advance(time.Minute)
	e.Evaluate(snapWithScore("cam-a", 90)) // resolves cam-a

	active := e.Active()
	if len(active) != 2 {
		t.Fatalf("Active: got %d alerts, want 2", len(active))
	}
	if active[0].SensorID != "cam-b" {
		t.Errorf("Active[0] = %s, want newest (cam-b)", active[0].SensorID)
	}

	c.advance(2 * time.Hour)
	active = e.Active()
	if len(active) != 1 || active[0].State != StateFiring {
		t.Errorf("after an hour only the firing alert should remain, got %+v", active)
	}

	if got := e.ForSensor("cam-a"); len(got) != 1 || got[0].State != StateResolved {
		t.Errorf("ForSensor(cam-a) = %+v, want the resolved alert from history", got)
	}
}

// --- delivery ---

func TestOnAlert_ReceivesTransitions(t *testing.T) {
	e, c := newTestEngine(t, lowHealthRule())

	var mu sync.Mutex
	var states []string
	e.OnAlert(func(a Alert) {
		mu.Lock()
		states = append(states, a.State)
		mu.Unlock()
	})

	e.Evaluate(snapWithScore("cam-1", 10))
	e.Wait()
	c.advance(time.Minute)
	e.Evaluate(snapWithScore("cam-1", 90))
	e.Wait()

	mu.Lock()
	defer mu.Unlock()
	if strings.Join(states, ",") != "firing,resolved" {
		t.Errorf("hook states = %v, want [firing resolved]", states)
	}
}

func TestOnAlert_DeliveredInOrder(t *testing.T) {
	e, c := newTestEngine(t, lowHealthRule())

	var mu sync.Mutex
	var seq []string
	e.OnAlert(func(a Alert) {
		if a.State == StateFiring {
			time.Sleep(20 * time.Millisecond)
		}
		mu.Lock()
		seq = append(seq, a.SensorID+" "+a.State)
		mu.Unlock()
	})

	for _, id := range []string{"cam-1", "cam-2"} {
		e.Evaluate(snapWithScore(id, 10))
	}
	c.advance(time.Minute)
	for _, id := range []string{"cam-1", "cam-2"} {
		e.Evaluate(snapWithScore(id, 90))
	}
	e.Wait()

	mu.Lock()
	defer mu.Unlock()
	want := "cam-1 firing,cam-2 firing,cam-1 resolved,cam-2 resolved"
	if got := strings.Join(seq, ","); got != want {
		t.Errorf("hook order = %q, want %q", got, want)
	}
}

func TestWebhooks_Payloads(t *testing.T) {
	var mu sync.Mutex
	bodies := map[string]map[string]interface{}{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var m map[string]interface{}
		if err := json.Unmarshal(raw, &m); err != nil {
			t.Errorf("%s: invalid JSON body: %v", r.URL.Path, err)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("%s: Content-Type = %q", r.URL.Path, ct)
		}
		mu.Lock()
		bodies[r.URL.Path] = m
		mu.Unlock()
	}))
	defer srv.Close()

	t.Setenv("SLACK_URL", srv.URL+"/slack")
	t.Setenv("TEAMS_URL", srv.URL+"/teams")
	t.Setenv("HOOK_URL", srv.URL+"/http")

	cfg := lowHealthRule()
	cfg.Webhooks = []config.WebhookConfig{
		{Type: "slack", URLEnv: "SLACK_URL"},
		{Type: "teams", URLEnv: "TEAMS_URL"},
		{Type: "http", URLEnv: "HOOK_URL"},
		{Type: "http", URLEnv: "UNSET_URL"},
	}
	e, _ := newTestEngine(t, cfg)
	e.Evaluate(snapWithScore("cam-1", 10))
	e.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(bodies) != 3 {
		t.Fatalf("got %d deliveries, want 3", len(bodies))
	}
	if text, _ := bodies["/slack"]["text"].(string); !strings.HasPrefix(text, "[CRITICAL]") {
		t.Errorf("slack text = %q, want [CRITICAL] prefix", text)
	}
	if color := bodies["/teams"]["themeColor"]; color != "FF4F6A" {
		t.Errorf("teams themeColor = %v, want FF4F6A", color)
	}
	alert, ok := bodies["/http"]["alert"].(map[string]interface{})
	if !ok || alert["sensor_id"] != "cam-1" || alert["state"] != StateFiring {
		t.Errorf("http body = %v", bodies["/http"])
	}
}

func TestWebhooks_FailureDoesNotBlock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	t.Setenv("HOOK_URL", srv.URL)

	cfg := lowHealthRule()
	cfg.Webhooks = []config.WebhookConfig{{Type: "http", URLEnv: "HOOK_URL"}}
	e, _ := newTestEngine(t, cfg)

	if got := e.Evaluate(snapWithScore("cam-1", 10)); len(got) != 1 {
		t.Fatalf("got %d transitions, want 1", len(got))
	}
	e.Wait()
}
