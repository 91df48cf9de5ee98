// Package gates turns a run result into pass/fail verdicts. Rules are
// "field op value" conditions over overview and outlier numbers (or
// stage.<label> means); violations can be posted to Slack, Teams or a
// generic HTTP endpoint.
package gates
