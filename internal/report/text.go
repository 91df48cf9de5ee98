package report

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/broadinstitute/nightcafe/internal/compute"
)

// Options controls the text report.
type Options struct {
	// RunID is printed in the header when set.
	RunID string
	// PreviewRows limits the record preview; 0 hides it.
	PreviewRows int
	// IDColumns are shown in the preview when the table has them.
	IDColumns []string
}

// WriteText renders res as a human-readable report: overview, stage
// ranking, outlier summary and a preview of the first records.
func WriteText(w io.Writer, res *compute.Result, opts Options) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	p := &printer{w: tw}

	ov := res.Overview
	p.linef("Execution time analysis: %s", res.Table)
	if opts.RunID != "" {
		p.linef("Run: %s", opts.RunID)
	}
	p.linef("")
	p.linef("Overview")
	p.linef("  records\t%d", ov.Records)
	p.linef("  stage columns\t%d (%d labels)", ov.StageColumns, ov.StageLabels)
	if ov.Records > 0 {
		p.linef("  first record\t%s", ov.Start.UTC().Format(time.RFC3339))
		p.linef("  last record\t%s", ov.End.UTC().Format(time.RFC3339))
	}
	p.linef("  processing duration\t%s %s", num(ov.ProcessingDuration), ov.Unit)
	p.linef("  total execution time\tmean %s  median %s  min %s  max %s",
		num(ov.MeanTotal), num(ov.MedianTotal), num(ov.MinTotal), num(ov.MaxTotal))
	for _, label := range sortedKeys(res.Collisions) {
		p.linef("  label collision\t%s <- %s", label, strings.Join(res.Collisions[label], ", "))
	}

	p.linef("")
	p.linef("Stages by mean time")
	if len(res.Stages) == 0 {
		p.linef("  (none)")
	}
	for i, s := range res.Stages {
		p.linef("  %d.\t%s\t%s", i+1, s.Label, num(s.Mean))
	}

	out := res.Outliers
	p.linef("")
	p.linef("Outliers (total - elapsed > %s)", num(out.ThresholdOffset))
	p.linef("  candidates\t%d of %d", len(out.Candidates), ov.Records)
	p.linef("  time difference\tmean %s  std %s  min %s  max %s  range %s",
		num(out.Stats.Mean), num(out.Stats.StdDev), num(out.Stats.Min), num(out.Stats.Max), num(out.Stats.Range))
	p.linef("  within mean +/- %s\t%d", num(out.BandWidth), len(out.Band))

	if opts.PreviewRows > 0 && len(res.Records) > 0 {
		ids := presentIDs(res.Records, opts.IDColumns)
		n := min(opts.PreviewRows, len(res.Records))
		p.linef("")
		p.linef("First %d of %d records", n, len(res.Records))
		header := append([]string{" "}, ids...)
		header = append(header, "timestamp", "total", "elapsed")
		p.linef("%s", strings.Join(header, "\t"))
		for _, r := range res.Records[:n] {
			cells := []string{" "}
			for _, id := range ids {
				cells = append(cells, r.Meta[id])
			}
			cells = append(cells, r.Timestamp.UTC().Format(time.RFC3339), num(r.TotalExecutionTime), num(r.ElapsedSinceStart))
			p.linef("%s", strings.Join(cells, "\t"))
		}
	}

	if p.err != nil {
		return fmt.Errorf("report: write text: %w", p.err)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("report: write text: %w", err)
	}
	return nil
}

// printer keeps the first write error so the layout code stays linear.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) linef(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format+"\n", args...)
}

// num formats a statistic; NaN prints as n/a.
func num(f float64) string {
	if math.IsNaN(f) {
		return "n/a"
	}
	return strconv.FormatFloat(f, 'f', 3, 64)
}

// presentIDs returns the id columns that at least one record carries.
func presentIDs(records []compute.DerivedRecord, idCols []string) []string {
	var out []string
	for _, c := range idCols {
		for _, r := range records {
			if _, ok := r.Meta[c]; ok {
				out = append(out, c)
				break
			}
		}
	}
	return out
}
