package gates

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/broadinstitute/nightcafe/internal/compute"
)

// stageField prefixes a per-stage condition, e.g. "stage.Measure > 60".
const stageField = "stage."

// Fields lists the numeric fields a condition can reference besides
// stage.<label>.
var Fields = []string{
	"records",
	"stage_columns",
	"stage_labels",
	"label_collisions",
	"processing_duration",
	"mean_total",
	"median_total",
	"min_total",
	"max_total",
	"outlier_candidates",
	"outlier_band",
	"outlier_fraction",
	"diff_mean",
	"diff_stddev",
	"diff_min",
	"diff_max",
	"diff_range",
}

// condition is a parsed "field op value" expression.
type condition struct {
	field     string
	op        string
	threshold float64
}

// parseCondition parses expressions of the form field operator value:
//
//	outlier_candidates > 0
//	outlier_fraction >= 0.05
//	max_total > 3600
//	processing_duration > 720
//	stage.MeasureObjectIntensity > 30
func parseCondition(cond string) (condition, error) {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return condition{}, fmt.Errorf("condition %q: want \"field op value\"", cond)
	}
	field, op, rhs := parts[0], parts[1], parts[2]

	known := strings.HasPrefix(field, stageField) && len(field) > len(stageField)
	for _, f := range Fields {
		known = known || f == field
	}
	if !known {
		return condition{}, fmt.Errorf("condition %q: unknown field %q", cond, field)
	}
	switch op {
	case ">", ">=", "<", "<=", "==", "!=":
	default:
		return condition{}, fmt.Errorf("condition %q: unknown operator %q", cond, op)
	}
	threshold, err := strconv.ParseFloat(rhs, 64)
	if err != nil {
		return condition{}, fmt.Errorf("condition %q: value: %w", cond, err)
	}
	return condition{field: field, op: op, threshold: threshold}, nil
}

// eval returns whether the condition holds for res and the field value.
// A NaN value (statistic over an empty set) or a stage label absent from
// the ranking never fires.
func (c condition) eval(res *compute.Result) (bool, float64) {
	v := numericField(c.field, res)
	if math.IsNaN(v) {
		return false, v
	}
	return compareFloat(v, c.op, c.threshold), v
}

// numericField maps a field name to its value in the result.
func numericField(field string, res *compute.Result) float64 {
	ov, out := res.Overview, res.Outliers
	if label, ok := strings.CutPrefix(field, stageField); ok {
		for _, s := range res.Stages {
			if s.Label == label {
				return s.Mean
			}
		}
		return math.NaN()
	}
	switch field {
	case "records":
		return float64(ov.Records)
	case "stage_columns":
		return float64(ov.StageColumns)
	case "stage_labels":
		return float64(ov.StageLabels)
	case "label_collisions":
		return float64(len(res.Collisions))
	case "processing_duration":
		return ov.ProcessingDuration
	case "mean_total":
		return ov.MeanTotal
	case "median_total":
		return ov.MedianTotal
	case "min_total":
		return ov.MinTotal
	case "max_total":
		return ov.MaxTotal
	case "outlier_candidates":
		return float64(len(out.Candidates))
	case "outlier_band":
		return float64(len(out.Band))
	case "outlier_fraction":
		if ov.Records == 0 {
			return math.NaN()
		}
		return float64(len(out.Candidates)) / float64(ov.Records)
	case "diff_mean":
		return out.Stats.Mean
	case "diff_stddev":
		return out.Stats.StdDev
	case "diff_min":
		return out.Stats.Min
	case "diff_max":
		return out.Stats.Max
	case "diff_range":
		return out.Stats.Range
	default:
		return math.NaN()
	}
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	case "!=":
		return v != threshold
	default:
		return false
	}
}
