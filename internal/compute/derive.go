package compute

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/broadinstitute/nightcafe/internal/schema"
	"github.com/broadinstitute/nightcafe/internal/table"
)

// Unit is the unit ElapsedSinceStart is expressed in.
type Unit string

const (
	UnitSeconds Unit = "seconds"
	UnitMinutes Unit = "minutes"
)

// DefaultTimestampColumn is the wall-clock column written by the exporter.
const DefaultTimestampColumn = "wall_clock_time"

// DefaultIDColumns identify an image in error messages and previews.
var DefaultIDColumns = []string{"dirname", "batch", "plate", "well", "site"}

// ParseUnit accepts "seconds"/"s" and "minutes"/"m" (case-insensitive).
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "seconds", "second", "s", "sec":
		return UnitSeconds, nil
	case "minutes", "minute", "m", "min":
		return UnitMinutes, nil
	default:
		return "", fmt.Errorf("unknown elapsed unit %q (want seconds|minutes)", s)
	}
}

// Of converts d to the unit.
func (u Unit) Of(d time.Duration) float64 {
	if u == UnitMinutes {
		return d.Minutes()
	}
	return d.Seconds()
}

// DeriveOptions controls Derive.
type DeriveOptions struct {
	// TimestampColumn holds each record's wall-clock instant.
	TimestampColumn string
	// IDColumns are rendered into MalformedValueError.RowID when present.
	IDColumns []string
	// Unit for ElapsedSinceStart. Empty means seconds.
	Unit Unit
}

func (o DeriveOptions) withDefaults() DeriveOptions {
	if o.TimestampColumn == "" {
		o.TimestampColumn = DefaultTimestampColumn
	}
	if o.IDColumns == nil {
		o.IDColumns = DefaultIDColumns
	}
	if o.Unit == "" {
		o.Unit = UnitSeconds
	}
	return o
}

// StageValue is one stage-time cell. Valid is false when the stage did not
// run (null in the source).
type StageValue struct {
	Column string
	Value  float64
	Valid  bool
}

// OrZero returns Value, or 0 for a null cell.
func (v StageValue) OrZero() float64 {
	if !v.Valid {
		return 0
	}
	return v.Value
}

// MarshalJSON encodes {"column": ..., "value": x|null}.
func (v StageValue) MarshalJSON() ([]byte, error) {
	out := struct {
		Column string   `json:"column"`
		Value  *float64 `json:"value"`
	}{Column: v.Column}
	if v.Valid {
		out.Value = nullable(v.Value)
	}
	return json.Marshal(out)
}

// Record is one input row with its stage cells aligned to the discovered
// stage columns and the remaining fields passed through as text.
type Record struct {
	Index     int               `json:"index"`
	Timestamp time.Time         `json:"timestamp"`
	Stages    []StageValue      `json:"stages"`
	Meta      map[string]string `json:"meta"`
}

// DerivedRecord is a Record plus the two computed fields.
type DerivedRecord struct {
	Record
	TotalExecutionTime float64 `json:"total_execution_time"`
	ElapsedSinceStart  float64 `json:"elapsed_since_start"`
}

// Derive builds one DerivedRecord per table row.
//
// An empty table returns an empty slice and no error, even if the
// timestamp column is absent. A missing timestamp column on a non-empty
// table is a *table.SchemaMismatchError; a non-numeric stage cell or an
// unreadable timestamp is a *table.MalformedValueError.
func Derive(t *table.Table, cols []schema.StageTimeColumn, opts DeriveOptions) ([]DerivedRecord, error) {
	opts = opts.withDefaults()
	if t.Len() == 0 {
		return []DerivedRecord{}, nil
	}

	tsIdx, err := t.Require(opts.TimestampColumn)
	if err != nil {
		return nil, err
	}

	stageIdx := make([]int, len(cols))
	isStage := make(map[int]bool, len(cols))
	for i, c := range cols {
		idx, err := t.Require(c.Raw)
		if err != nil {
			return nil, err
		}
		stageIdx[i] = idx
		isStage[idx] = true
	}

	idIdx := make([]int, 0, len(opts.IDColumns))
	idNames := make([]string, 0, len(opts.IDColumns))
	for _, name := range opts.IDColumns {
		if i := t.Index(name); i >= 0 {
			idIdx = append(idIdx, i)
			idNames = append(idNames, name)
		}
	}
	rowID := func(row []any) string {
		parts := make([]string, 0, len(idIdx))
		for j, i := range idIdx {
			if s := table.String(row[i]); s != "" {
				parts = append(parts, idNames[j]+"="+s)
			}
		}
		return strings.Join(parts, " ")
	}

	out := make([]DerivedRecord, len(t.Rows))
	for r, row := range t.Rows {
		ts, ok, err := table.Time(row[tsIdx])
		if err == nil && !ok {
			err = fmt.Errorf("timestamp is null")
		}
		if err != nil {
			return nil, &table.MalformedValueError{
				Column: opts.TimestampColumn, Row: r, RowID: rowID(row), Value: row[tsIdx], Err: err,
			}
		}

		stages := make([]StageValue, len(cols))
		for i, idx := range stageIdx {
			v, ok, err := table.Float(row[idx])
			if err != nil {
				return nil, &table.MalformedValueError{
					Column: cols[i].Raw, Row: r, RowID: rowID(row), Value: row[idx], Err: err,
				}
			}
			stages[i] = StageValue{Column: cols[i].Raw, Value: v, Valid: ok}
		}

		meta := make(map[string]string)
		for i, name := range t.Columns {
			if i == tsIdx || isStage[i] {
				continue
			}
			meta[name] = table.String(row[i])
		}

		out[r] = DerivedRecord{
			Record:             Record{Index: r, Timestamp: ts, Stages: stages, Meta: meta},
			TotalExecutionTime: rowTotal(stages),
		}
	}

	start := out[0].Timestamp
	for _, d := range out[1:] {
		if d.Timestamp.Before(start) {
			start = d.Timestamp
		}
	}
	for i := range out {
		out[i].ElapsedSinceStart = opts.Unit.Of(out[i].Timestamp.Sub(start))
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

// rowTotal is Σ coalesce(value, 0) over the stage cells.
func rowTotal(stages []StageValue) float64 {
	vals := make([]float64, len(stages))
	for i, s := range stages {
		vals[i] = s.OrZero()
	}
	return sum(vals)
}

// Totals returns TotalExecutionTime of each record, in record order.
func Totals(records []DerivedRecord) []float64 {
	out := make([]float64, len(records))
	for i, r := range records {
		out[i] = r.TotalExecutionTime
	}
	return out
}
