package alerts

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sensorsight/sensorsight/pkg/types"
	"github.com/sensorsight/sensorsight/server/internal/config"
)

const (
	defaultCooldown   = 15 * time.Minute
	maxHistoryLen     = 200
	recentWindowHours = 1

	// anomalyRulePrefix names alerts raised from agent-side anomalies:
	// "anomaly:<kind>:<metric>".
	anomalyRulePrefix = "anomaly:"
)

// Alert states.
const (
	StateFiring   = "firing"
	StateResolved = "resolved"
)

// Alert represents a single alert event produced by the rule engine.
type Alert struct {
	ID         string     `json:"id"`
	RuleName   string     `json:"rule_name"`
	SensorID   string     `json:"sensor_id"`
	Severity   string     `json:"severity"`
	Message    string     `json:"message"`
	Value      float64    `json:"value"`
	FiredAt    time.Time  `json:"fired_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	State      string     `json:"state"`
}

type rule struct {
	name     string
	expr     string
	cond     condition
	severity Severity
	cooldown time.Duration
}

// Engine evaluates alert rules against incoming snapshots and delivers
// webhook notifications when rules fire or resolve.
//
// Engine is safe for concurrent use.
type Engine struct {
	rules    []rule
	webhooks []config.WebhookConfig
	client   *http.Client
	now      func() time.Time

	mu       sync.Mutex
	active   map[string]*Alert    // key: "ruleName|sensorID"
	lastFire map[string]time.Time // last fire time per key (for cooldown)
	history  []*Alert             // recently resolved alerts
	onAlert  func(Alert)

	// outbox holds transitions in the order they happened; one drain
	// goroutine at a time delivers them.
	outbox   []Alert
	draining bool
	inflight sync.WaitGroup
}

// New creates an Engine from the server alert configuration. Rules whose
// condition does not parse are logged and skipped. An Engine with no rules
// still raises alerts for agent-detected anomalies.
func New(cfg config.AlertsConfig) *Engine {
	e := &Engine{
		webhooks: cfg.Webhooks,
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
		active:   make(map[string]*Alert),
		lastFire: make(map[string]time.Time),
	}
	for _, r := range cfg.Rules {
		cond, err := parseCondition(r.Condition)
		if err != nil {
			slog.Warn("alerts: skipping rule", "rule", r.Name, "err", err)
			continue
		}
		sev, err := ParseSeverity(r.Severity)
		if err != nil {
			slog.Warn("alerts: rule severity defaulted to warning", "rule", r.Name, "err", err)
		}
		cooldown := r.Cooldown
		if cooldown <= 0 {
			cooldown = defaultCooldown
		}
		e.rules = append(e.rules, rule{
			name:     r.Name,
			expr:     r.Condition,
			cond:     cond,
			severity: sev,
			cooldown: cooldown,
		})
	}
	return e
}

// OnAlert registers fn to be called with every fired or resolved alert, in
// the order the transitions happened. It runs on the delivery goroutine,
// never under the engine lock.
func (e *Engine) OnAlert(fn func(Alert)) {
	e.mu.Lock()
	e.onAlert = fn
	e.mu.Unlock()
}

// Evaluate tests all configured rules and the snapshot's anomalies against
// snap. It returns the alerts that fired or resolved as a result.
func (e *Engine) Evaluate(snap *types.SensorSnapshot) []Alert {
	now := e.now()
	var changed []Alert

	for _, r := range e.rules {
		fires, value := r.cond.eval(snap)
		msg := fmt.Sprintf("%s %s fired on %s: %s (value %.2f)",
			r.severity.Label(), r.name, snap.SensorID, r.expr, value)
		if a, ok := e.transition(r.name, snap.SensorID, fires, r.severity, r.cooldown, value, msg, now); ok {
			changed = append(changed, a)
		}
	}

	changed = append(changed, e.evaluateAnomalies(snap, now)...)
	return changed
}

// evaluateAnomalies fires one alert per anomaly the agent attached to snap
// and resolves anomaly alerts for this sensor that are no longer reported.
func (e *Engine) evaluateAnomalies(snap *types.SensorSnapshot, now time.Time) []Alert {
	var changed []Alert
	seen := make(map[string]bool, len(snap.Anomalies))

	for _, an := range snap.Anomalies {
		name := anomalyRulePrefix + an.Kind + ":" + an.Metric
		seen[name] = true
		sev, err := ParseSeverity(an.Severity)
		if err != nil {
			slog.Debug("alerts: anomaly severity defaulted to warning", "sensor", snap.SensorID, "err", err)
		}
		msg := fmt.Sprintf("%s %s on %s: %s", sev.Label(), name, snap.SensorID, an.Message)
		if a, ok := e.transition(name, snap.SensorID, true, sev, defaultCooldown, an.Value, msg, now); ok {
			changed = append(changed, a)
		}
	}

	// A failed scrape says nothing about whether the anomaly cleared.
	if snap.ErrorMessage != "" {
		return changed
	}

	e.mu.Lock()
	var stale []string
	for _, a := range e.active {
		if a.SensorID == snap.SensorID && strings.HasPrefix(a.RuleName, anomalyRulePrefix) && !seen[a.RuleName] {
			stale = append(stale, a.RuleName)
		}
	}
	e.mu.Unlock()

	sort.Strings(stale)
	for _, name := range stale {
		if a, ok := e.transition(name, snap.SensorID, false, SeverityInfo, defaultCooldown, 0, "", now); ok {
			changed = append(changed, a)
		}
	}
	return changed
}

// transition applies one evaluation result to the lifecycle state for
// (name, sensorID). It returns a copy of the alert when it fired or resolved
// and queues that copy for delivery.
//
// An alert stays firing for as long as its condition holds; cooldown only
// suppresses a re-fire shortly after a resolve.
func (e *Engine) transition(name, sensorID string, fires bool, sev Severity, cooldown time.Duration,
	value float64, msg string, now time.Time) (Alert, bool) {
	key := name + "|" + sensorID

	e.mu.Lock()
	defer e.mu.Unlock()

	if fires {
		if _, firing := e.active[key]; firing {
			return Alert{}, false
		}
		if last, ok := e.lastFire[key]; ok && now.Sub(last) <= cooldown {
			return Alert{}, false
		}
		a := &Alert{
			ID:       uuid.NewString(),
			RuleName: name,
			SensorID: sensorID,
			Severity: sev.String(),
			Message:  msg,
			Value:    value,
			FiredAt:  now,
			State:    StateFiring,
		}
		e.active[key] = a
		e.lastFire[key] = now

		slog.Warn("alerts: alert fired",
			"rule", name,
			"sensor", sensorID,
			"value", value,
			"severity", a.Severity,
		)
		e.enqueueLocked(*a)
		return *a, true
	}

	a, ok := e.active[key]
	if !ok {
		return Alert{}, false
	}
	resolved := now
	a.State = StateResolved
	a.ResolvedAt = &resolved
	delete(e.active, key)

	e.history = append(e.history, a)
	if len(e.history) > maxHistoryLen {
		e.history = e.history[len(e.history)-maxHistoryLen:]
	}

	slog.Info("alerts: alert resolved", "rule", name, "sensor", sensorID)
	e.enqueueLocked(*a)
	return *a, true
}

// enqueueLocked appends a to the outbox and starts a drain goroutine if none
// is running. e.mu must be held.
func (e *Engine) enqueueLocked(a Alert) {
	e.outbox = append(e.outbox, a)
	if e.draining {
		return
	}
	e.draining = true
	e.inflight.Add(1)
	go e.drain()
}

// drain runs the OnAlert hook and webhook delivery for queued transitions,
// one at a time and in order, until the outbox is empty.
func (e *Engine) drain() {
	defer e.inflight.Done()
	for {
		e.mu.Lock()
		if len(e.outbox) == 0 {
			e.draining = false
			e.mu.Unlock()
			return
		}
		a := e.outbox[0]
		e.outbox[0] = Alert{}
		e.outbox = e.outbox[1:]
		hook := e.onAlert
		e.mu.Unlock()

		if hook != nil {
			hook(a)
		}
		e.deliver(&a)
	}
}

// Wait blocks until every pending hook call and webhook delivery has finished.
func (e *Engine) Wait() {
	e.inflight.Wait()
}

// Active returns copies of all currently firing alerts plus any alerts
// resolved within the past hour, sorted newest first.
func (e *Engine) Active() []*Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-recentWindowHours * time.Hour)
	out := make([]*Alert, 0, len(e.active))

	for _, a := range e.active {
		cp := *a
		out = append(out, &cp)
	}
	for _, a := range e.history {
		if a.ResolvedAt != nil && a.ResolvedAt.After(cutoff) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sortNewestFirst(out)
	return out
}

// FiringCount returns the number of alerts currently firing.
func (e *Engine) FiringCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}

// ForSensor returns the firing alerts and the retained history for one
// sensor, newest first.
func (e *Engine) ForSensor(sensorID string) []*Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []*Alert
	for _, a := range e.active {
		if a.SensorID == sensorID {
			cp := *a
			out = append(out, &cp)
		}
	}
	for _, a := range e.history {
		if a.SensorID == sensorID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sortNewestFirst(out)
	return out
}

func sortNewestFirst(out []*Alert) {
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FiredAt.After(out[j].FiredAt)
	})
}
