package alerts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// payloadFunc renders an alert into the JSON body a webhook target expects.
type payloadFunc func(a *Alert) interface{}

var payloads = map[string]payloadFunc{
	"slack": slackPayload,
	"teams": teamsPayload,
	"http":  func(a *Alert) interface{} { return map[string]interface{}{"alert": a} },
}

func slackPayload(a *Alert) interface{} {
	if a.State == StateResolved {
		return map[string]string{"text": fmt.Sprintf("[RESOLVED] %s on %s", a.RuleName, a.SensorID)}
	}
	return map[string]string{"text": a.Message}
}

// teamsPayload builds a legacy Office 365 connector MessageCard.
func teamsPayload(a *Alert) interface{} {
	sev, _ := ParseSeverity(a.Severity)
	return map[string]interface{}{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": sev.Color(),
		"summary":    a.RuleName,
		"title":      fmt.Sprintf("SensorSight Alert: %s (%s)", a.RuleName, a.State),
		"text":       a.Message,
	}
}

// deliver posts a to every webhook with a resolvable URL. Failures are
// logged only.
func (e *Engine) deliver(a *Alert) {
	for _, wh := range e.webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}
		render, ok := payloads[wh.Type]
		if !ok {
			slog.Warn("alerts: skipping webhook of unknown type", "type", wh.Type)
			continue
		}

		log := slog.With("type", wh.Type, "rule", a.RuleName, "sensor", a.SensorID, "state", a.State)
		if err := e.post(url, render(a)); err != nil {
			log.Error("alerts: webhook delivery failed", "err", err)
			continue
		}
		log.Debug("alerts: webhook delivered")
	}
}

func (e *Engine) post(url string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook answered %s", resp.Status)
	}
	return nil
}
