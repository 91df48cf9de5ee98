package report

import (
	"fmt"
	"io"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/broadinstitute/nightcafe/internal/compute"
)

// Metric names written by WritePrometheus.
const (
	MetricRecords            = "exectime_records"
	MetricStageColumns       = "exectime_stage_columns"
	MetricProcessingDuration = "exectime_processing_duration"
	MetricTotal              = "exectime_total_execution_time"
	MetricOutlierCandidates  = "exectime_outlier_candidates"
	MetricOutlierBand        = "exectime_outlier_band"
	MetricTimeDifference     = "exectime_outlier_time_difference"
	MetricStageMean          = "exectime_stage_mean"
)

// WritePrometheus writes res in the Prometheus text exposition format so a
// node_exporter textfile collector can pick it up. NaN statistics are
// exposed as NaN.
func WritePrometheus(w io.Writer, res *compute.Result) error {
	for _, mf := range toFamilies(res) {
		if len(mf.Metric) == 0 {
			continue
		}
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("report: write prometheus: %w", err)
		}
	}
	return nil
}

// toFamilies converts a compute.Result into gauge families, every sample
// labelled with the source table.
func toFamilies(res *compute.Result) []*dto.MetricFamily {
	ov, out := res.Overview, res.Outliers
	tbl := label("table", res.Table)

	return []*dto.MetricFamily{
		gauge(MetricRecords, "Records in the analysed table.",
			sample(float64(ov.Records), tbl)),
		gauge(MetricStageColumns, "Stage-time columns discovered.",
			sample(float64(ov.StageColumns), tbl)),
		gauge(MetricProcessingDuration, "Elapsed time from the first to the last record.",
			sample(ov.ProcessingDuration, tbl, label("unit", string(ov.Unit)))),
		gauge(MetricTotal, "Summary statistics of per-record total execution time.",
			sample(ov.MeanTotal, tbl, label("stat", "mean")),
			sample(ov.MedianTotal, tbl, label("stat", "median")),
			sample(ov.MinTotal, tbl, label("stat", "min")),
			sample(ov.MaxTotal, tbl, label("stat", "max")),
		),
		gauge(MetricOutlierCandidates, "Records whose total exceeds elapsed time by more than the threshold offset.",
			sample(float64(len(out.Candidates)), tbl)),
		gauge(MetricOutlierBand, "Outlier candidates within the tolerance band around the mean difference.",
			sample(float64(len(out.Band)), tbl)),
		gauge(MetricTimeDifference, "Summary statistics of total minus elapsed over outlier candidates.",
			sample(out.Stats.Mean, tbl, label("stat", "mean")),
			sample(out.Stats.StdDev, tbl, label("stat", "stddev")),
			sample(out.Stats.Min, tbl, label("stat", "min")),
			sample(out.Stats.Max, tbl, label("stat", "max")),
		),
		stageFamily(res.Stages, tbl),
	}
}

func stageFamily(stages []compute.StageMean, tbl *dto.LabelPair) *dto.MetricFamily {
	metrics := make([]*dto.Metric, 0, len(stages))
	for _, s := range stages {
		metrics = append(metrics, sample(s.Mean, tbl, label("stage", s.Label)))
	}
	return gauge(MetricStageMean, "Mean time per stage label across records.", metrics...)
}

func gauge(name, help string, metrics ...*dto.Metric) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   ptr(name),
		Help:   ptr(help),
		Type:   dto.MetricType_GAUGE.Enum(),
		Metric: metrics,
	}
}

func sample(v float64, labels ...*dto.LabelPair) *dto.Metric {
	return &dto.Metric{
		Label: labels,
		Gauge: &dto.Gauge{Value: ptr(v)},
	}
}

func label(name, value string) *dto.LabelPair {
	return &dto.LabelPair{Name: ptr(name), Value: ptr(value)}
}

func ptr[T any](v T) *T { return &v }
