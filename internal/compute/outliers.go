package compute

import (
	"encoding/json"
	"math"
)

// Defaults for the outlier detector, in the elapsed unit (seconds in the
// canonical configuration).
const (
	DefaultThresholdOffset = 400.0
	DefaultBand            = 50.0
)

// OutlierOptions parameterizes DetectOutliers.
type OutlierOptions struct {
	// ThresholdOffset is the intercept of the separator total = elapsed + offset.
	ThresholdOffset float64
	// Band is the half-width of the interval around the mean difference.
	Band float64
}

// DefaultOutlierOptions returns the canonical threshold and band.
func DefaultOutlierOptions() OutlierOptions {
	return OutlierOptions{ThresholdOffset: DefaultThresholdOffset, Band: DefaultBand}
}

// Outlier is a DerivedRecord above the separator line.
type Outlier struct {
	DerivedRecord
	// TimeDifference is TotalExecutionTime − ElapsedSinceStart.
	TimeDifference float64 `json:"time_difference"`
}

// DiffStats describes TimeDifference over the candidate set. Every field
// except Count is NaN when there are no candidates; StdDev (sample, n−1)
// is also NaN for a single candidate.
type DiffStats struct {
	Count  int
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
	Range  float64
}

// MarshalJSON encodes NaN statistics as null.
func (s DiffStats) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Count  int      `json:"count"`
		Mean   *float64 `json:"mean"`
		StdDev *float64 `json:"std_dev"`
		Min    *float64 `json:"min"`
		Max    *float64 `json:"max"`
		Range  *float64 `json:"range"`
	}{s.Count, nullable(s.Mean), nullable(s.StdDev), nullable(s.Min), nullable(s.Max), nullable(s.Range)})
}

// OutlierReport holds all three outputs of the detector.
type OutlierReport struct {
	ThresholdOffset float64   `json:"threshold_offset"`
	BandWidth       float64   `json:"band_width"`
	Candidates      []Outlier `json:"candidates"`
	Stats           DiffStats `json:"stats"`
	Band            []Outlier `json:"band"`
}

// IsCandidate reports whether a point lies strictly above the separator.
func (o OutlierOptions) IsCandidate(elapsed, total float64) bool {
	return total-elapsed > o.ThresholdOffset
}

// DetectOutliers selects records with total − elapsed > ThresholdOffset,
// computes the distribution of that difference and keeps the candidates
// strictly inside (mean − Band, mean + Band).
//
// The candidate and band slices preserve record order and are never nil.
func DetectOutliers(records []DerivedRecord, opts OutlierOptions) OutlierReport {
	rep := OutlierReport{
		ThresholdOffset: opts.ThresholdOffset,
		BandWidth:       opts.Band,
		Candidates:      []Outlier{},
		Band:            []Outlier{},
	}

	diffs := make([]float64, 0)
	for _, r := range records {
		if !opts.IsCandidate(r.ElapsedSinceStart, r.TotalExecutionTime) {
			continue
		}
		d := r.TotalExecutionTime - r.ElapsedSinceStart
		rep.Candidates = append(rep.Candidates, Outlier{DerivedRecord: r, TimeDifference: d})
		diffs = append(diffs, d)
	}

	lo, hi := minMax(diffs)
	rep.Stats = DiffStats{
		Count:  len(diffs),
		Mean:   mean(diffs),
		StdDev: stdDev(diffs),
		Min:    lo,
		Max:    hi,
		Range:  hi - lo,
	}

	if math.IsNaN(rep.Stats.Mean) {
		return rep
	}
	for _, c := range rep.Candidates {
		if c.TimeDifference > rep.Stats.Mean-opts.Band && c.TimeDifference < rep.Stats.Mean+opts.Band {
			rep.Band = append(rep.Band, c)
		}
	}
	return rep
}
