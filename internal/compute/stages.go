package compute

import (
	"encoding/json"
	"sort"

	"github.com/broadinstitute/nightcafe/internal/schema"
)

// StageMean is the mean contribution of one stage label across all records.
type StageMean struct {
	Label string
	Mean  float64
	// Columns lists the raw columns folded into Label.
	Columns []string
}

// MarshalJSON encodes a NaN mean as null.
func (s StageMean) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Label   string   `json:"label"`
		Mean    *float64 `json:"mean"`
		Columns []string `json:"columns"`
	}{s.Label, nullable(s.Mean), s.Columns})
}

// StageMeans averages coalesce(value, 0) per stage label over records and
// ranks the labels by mean, descending. Columns sharing a label are summed
// per record before averaging. Ties keep first-appearance order; topK <= 0
// keeps every label. No records yields an empty slice.
//
// records must have been derived with cols.
func StageMeans(records []DerivedRecord, cols []schema.StageTimeColumn, topK int) []StageMean {
	if len(records) == 0 {
		return []StageMean{}
	}

	labels := schema.Labels(cols)
	pos := make(map[string]int, len(labels))
	out := make([]StageMean, len(labels))
	for i, l := range labels {
		pos[l] = i
		out[i].Label = l
	}
	members := make([][]int, len(labels))
	for ci, c := range cols {
		li := pos[c.Label]
		members[li] = append(members[li], ci)
		out[li].Columns = append(out[li].Columns, c.Raw)
	}

	perRecord := make([]float64, len(records))
	for li := range labels {
		for ri, r := range records {
			var v float64
			for _, ci := range members[li] {
				v += r.Stages[ci].OrZero()
			}
			perRecord[ri] = v
		}
		out[li].Mean = mean(perRecord)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Mean > out[j].Mean })
	if topK > 0 && topK < len(out) {
		out = out[:topK]
	}
	return out
}
