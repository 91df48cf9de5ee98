package compute

import (
	"encoding/json"
	"math"
	"time"

	"github.com/broadinstitute/nightcafe/internal/schema"
)

// Overview is the dataset-level summary shown above the detailed report.
type Overview struct {
	Records      int
	StageColumns int
	StageLabels  int
	Unit         Unit
	// Start and End bound the wall-clock timestamps; zero when empty.
	Start time.Time
	End   time.Time
	// ProcessingDuration is the largest ElapsedSinceStart, in Unit.
	ProcessingDuration float64
	MeanTotal          float64
	MedianTotal        float64
	MinTotal           float64
	MaxTotal           float64
}

// MarshalJSON encodes NaN statistics as null and omits zero timestamps.
func (o Overview) MarshalJSON() ([]byte, error) {
	type out struct {
		Records            int        `json:"records"`
		StageColumns       int        `json:"stage_columns"`
		StageLabels        int        `json:"stage_labels"`
		Unit               Unit       `json:"unit"`
		Start              *time.Time `json:"start,omitempty"`
		End                *time.Time `json:"end,omitempty"`
		ProcessingDuration *float64   `json:"processing_duration"`
		MeanTotal          *float64   `json:"mean_total"`
		MedianTotal        *float64   `json:"median_total"`
		MinTotal           *float64   `json:"min_total"`
		MaxTotal           *float64   `json:"max_total"`
	}
	v := out{
		Records:            o.Records,
		StageColumns:       o.StageColumns,
		StageLabels:        o.StageLabels,
		Unit:               o.Unit,
		ProcessingDuration: nullable(o.ProcessingDuration),
		MeanTotal:          nullable(o.MeanTotal),
		MedianTotal:        nullable(o.MedianTotal),
		MinTotal:           nullable(o.MinTotal),
		MaxTotal:           nullable(o.MaxTotal),
	}
	if !o.Start.IsZero() {
		v.Start, v.End = &o.Start, &o.End
	}
	return json.Marshal(v)
}

// Summarize computes the overview of records. Statistics over an empty
// slice are NaN.
func Summarize(records []DerivedRecord, cols []schema.StageTimeColumn, unit Unit) Overview {
	if unit == "" {
		unit = UnitSeconds
	}
	totals := Totals(records)
	lo, hi := minMax(totals)
	ov := Overview{
		Records:            len(records),
		StageColumns:       len(cols),
		StageLabels:        len(schema.Labels(cols)),
		Unit:               unit,
		ProcessingDuration: math.NaN(),
		MeanTotal:          mean(totals),
		MedianTotal:        median(totals),
		MinTotal:           lo,
		MaxTotal:           hi,
	}
	if len(records) == 0 {
		return ov
	}
	ov.Start, ov.End = records[0].Timestamp, records[0].Timestamp
	ov.ProcessingDuration = 0
	for _, r := range records {
		if r.Timestamp.Before(ov.Start) {
			ov.Start = r.Timestamp
		}
		if r.Timestamp.After(ov.End) {
			ov.End = r.Timestamp
		}
		if r.ElapsedSinceStart > ov.ProcessingDuration {
			ov.ProcessingDuration = r.ElapsedSinceStart
		}
	}
	return ov
}
