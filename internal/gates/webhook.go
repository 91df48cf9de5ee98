package gates

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
)

// payloads builds the request body for each webhook type.
var payloads = map[string]func(v *Violation) any{
	"slack": slackPayload,
	"teams": teamsPayload,
	"http": func(v *Violation) any {
		return map[string]any{"violation": v}
	},
}

// deliver posts v to every webhook whose URL resolves. Failures are logged.
func (e *Engine) deliver(ctx context.Context, v *Violation) {
	for _, wh := range e.webhooks {
		url := wh.URL()
		if url == "" {
			slog.Debug("gates: webhook url unset, skipping", "type", wh.Type, "url_env", wh.URLEnv)
			continue
		}
		build, ok := payloads[wh.Type]
		if !ok {
			slog.Warn("gates: unknown webhook type, skipping", "type", wh.Type)
			continue
		}

		log := slog.With("type", wh.Type, "rule", v.RuleName, "violation_id", v.ID)
		if err := e.post(ctx, url, build(v)); err != nil {
			log.Error("gates: webhook delivery failed", "err", err)
			continue
		}
		log.Debug("gates: webhook delivered")
	}
}

func slackPayload(v *Violation) any {
	return map[string]any{
		"text": fmt.Sprintf("*%s* %s", severityLabel(v.Severity), v.Message),
		"attachments": []map[string]any{{
			"color":  "#" + severityColor(v.Severity),
			"fields": slackFields(v),
		}},
	}
}

func slackFields(v *Violation) []map[string]any {
	var out []map[string]any
	for _, f := range facts(v) {
		out = append(out, map[string]any{"title": f[0], "value": f[1], "short": true})
	}
	return out
}

func teamsPayload(v *Violation) any {
	var fs []map[string]string
	for _, f := range facts(v) {
		fs = append(fs, map[string]string{"name": f[0], "value": f[1]})
	}
	return map[string]any{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": severityColor(v.Severity),
		"summary":    v.RuleName,
		"title":      "Execution time gate failed: " + v.RuleName,
		"text":       v.Message,
		"sections":   []map[string]any{{"facts": fs}},
	}
}

// facts are the name/value pairs shown in chat cards.
func facts(v *Violation) [][2]string {
	return [][2]string{
		{"Table", v.Table},
		{"Condition", v.Condition},
		{"Value", strconv.FormatFloat(v.Value, 'g', -1, 64)},
		{"Run", v.RunID},
	}
}

func (e *Engine) post(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func severityLabel(s string) string {
	switch s {
	case SeverityCritical:
		return "[CRITICAL]"
	case SeverityWarning:
		return "[WARNING]"
	}
	return "[INFO]"
}

func severityColor(s string) string {
	switch s {
	case SeverityCritical:
		return "FF4F6A"
	case SeverityWarning:
		return "FFAB40"
	}
	return "00D4FF"
}
