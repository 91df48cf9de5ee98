package compute

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/broadinstitute/nightcafe/internal/schema"
	"github.com/broadinstitute/nightcafe/internal/table"
)

// Pipeline step names reported in StageError.
const (
	StepDiscover = "discover"
	StepDerive   = "derive"
)

// StageError identifies the pipeline step that failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("compute: %s: %v", e.Stage, e.Err) }

func (e *StageError) Unwrap() error { return e.Err }

// Options is the full parameter set of one run.
type Options struct {
	// StagePrefix selects stage-time columns. Empty means schema.DefaultPrefix.
	StagePrefix string
	Derive      DeriveOptions
	Outliers    OutlierOptions
	// TopK truncates the stage ranking; <= 0 keeps every stage.
	TopK int
}

// DefaultOptions returns the canonical configuration: seconds, offset 400,
// band 50, unbounded ranking.
func DefaultOptions() Options {
	return Options{
		StagePrefix: schema.DefaultPrefix,
		Derive:      DeriveOptions{}.withDefaults(),
		Outliers:    DefaultOutlierOptions(),
	}
}

// Result is everything one run derives from a table.
type Result struct {
	Table      string                   `json:"table"`
	Columns    []schema.StageTimeColumn `json:"stage_columns"`
	Collisions map[string][]string      `json:"label_collisions,omitempty"`
	Overview   Overview                 `json:"overview"`
	Records    []DerivedRecord          `json:"records"`
	Outliers   OutlierReport            `json:"outliers"`
	Stages     []StageMean              `json:"stage_means"`
}

// Run executes discovery, row aggregation, outlier detection, stage
// aggregation and the overview over t. It never retains t.
func Run(t *table.Table, opts Options) (*Result, error) {
	if t == nil {
		return nil, &StageError{Stage: StepDiscover, Err: fmt.Errorf("nil table")}
	}
	opts.Derive = opts.Derive.withDefaults()

	cols := schema.Discover(t.Columns, opts.StagePrefix)
	if len(cols) == 0 {
		slog.Warn("compute: no stage-time columns found, totals will be 0",
			"table", t.Name, "prefix", opts.StagePrefix)
	}
	coll := schema.Collisions(cols)
	labels := make([]string, 0, len(coll))
	for l := range coll {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	for _, l := range labels {
		slog.Warn("compute: stage label collision, summing columns",
			"label", l, "columns", coll[l])
	}

	records, err := Derive(t, cols, opts.Derive)
	if err != nil {
		return nil, &StageError{Stage: StepDerive, Err: err}
	}
	if len(records) == 0 {
		slog.Warn("compute: empty dataset", "table", t.Name)
	}

	res := &Result{
		Table:    t.Name,
		Columns:  cols,
		Overview: Summarize(records, cols, opts.Derive.Unit),
		Records:  records,
		Outliers: DetectOutliers(records, opts.Outliers),
		Stages:   StageMeans(records, cols, opts.TopK),
	}
	if len(coll) > 0 {
		res.Collisions = coll
	}

	slog.Debug("compute: run complete",
		"table", t.Name,
		"records", len(records),
		"stage_columns", len(cols),
		"candidates", len(res.Outliers.Candidates),
		"band", len(res.Outliers.Band),
	)
	return res, nil
}
