package gates

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/broadinstitute/nightcafe/internal/compute"
	"github.com/broadinstitute/nightcafe/internal/config"
)

const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"

	defaultWebhookTimeout = 10 * time.Second
)

// Violation is one gate whose condition held for a run.
type Violation struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	RuleName  string    `json:"rule_name"`
	Table     string    `json:"table"`
	Severity  string    `json:"severity"`
	Condition string    `json:"condition"`
	Value     float64   `json:"value"`
	Message   string    `json:"message"`
	FiredAt   time.Time `json:"fired_at"`
}

type rule struct {
	config.GateRule
	cond condition
}

// Engine evaluates gate rules against run results and delivers violations
// to the configured webhooks.
type Engine struct {
	rules    []rule
	webhooks []config.WebhookConfig
	client   *http.Client
}

// New parses every rule condition; an unparseable one is an error.
// An Engine with no rules is valid and Evaluate returns nothing.
func New(cfg config.Gates) (*Engine, error) {
	e := &Engine{
		webhooks: cfg.Webhooks,
		client:   &http.Client{Timeout: defaultWebhookTimeout},
	}
	for _, r := range cfg.Rules {
		c, err := parseCondition(r.Condition)
		if err != nil {
			return nil, fmt.Errorf("gates: rule %q: %w", r.Name, err)
		}
		if r.Severity == "" {
			r.Severity = SeverityWarning
		}
		e.rules = append(e.rules, rule{GateRule: r, cond: c})
	}
	return e, nil
}

// Evaluate tests every rule against res and returns the violations in
// rule order.
func (e *Engine) Evaluate(runID string, res *compute.Result) []Violation {
	now := time.Now().UTC()
	var out []Violation
	for _, r := range e.rules {
		fires, value := r.cond.eval(res)
		if !fires {
			continue
		}
		v := Violation{
			ID:        uuid.NewString(),
			RunID:     runID,
			RuleName:  r.Name,
			Table:     res.Table,
			Severity:  r.Severity,
			Condition: r.Condition,
			Value:     value,
			Message: fmt.Sprintf("[%s] %s failed on %s: %s (value %.2f)",
				r.Severity, r.Name, res.Table, r.Condition, value),
			FiredAt: now,
		}
		slog.Warn("gates: gate failed",
			"run_id", runID,
			"rule", r.Name,
			"value", value,
			"severity", r.Severity,
		)
		out = append(out, v)
	}
	return out
}

// Notify delivers each violation to every webhook. Delivery errors are
// logged and do not fail the run.
func (e *Engine) Notify(ctx context.Context, vs []Violation) {
	for i := range vs {
		e.deliver(ctx, &vs[i])
	}
}

// Critical reports whether any violation has critical severity.
func Critical(vs []Violation) bool {
	for _, v := range vs {
		if v.Severity == SeverityCritical {
			return true
		}
	}
	return false
}
