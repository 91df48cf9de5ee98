package report

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/broadinstitute/nightcafe/internal/compute"
)

// ErrNotEnoughData is returned when a chart would have a degenerate axis.
var ErrNotEnoughData = errors.New("not enough data to chart")

const (
	chartWidth  = 1024
	chartHeight = 576
)

// pointStyle renders points only, no connecting line.
func pointStyle(col drawing.Color) chart.Style {
	return chart.Style{
		StrokeColor: drawing.ColorTransparent,
		DotWidth:    3,
		DotColor:    col,
	}
}

func renderer(format string) (chart.RendererProvider, error) {
	switch format {
	case "", "png":
		return chart.PNG, nil
	case "svg":
		return chart.SVG, nil
	default:
		return nil, fmt.Errorf("report: unknown chart format %q", format)
	}
}

// TimelineChart plots total execution time against elapsed time since the
// first record. Outlier candidates are drawn in red and the separator line
// total = elapsed + threshold is dashed.
func TimelineChart(w io.Writer, res *compute.Result, format string) error {
	rp, err := renderer(format)
	if err != nil {
		return err
	}
	if len(res.Records) < 2 {
		return fmt.Errorf("report: timeline: %w", ErrNotEnoughData)
	}

	th := res.Outliers.ThresholdOffset
	opts := compute.OutlierOptions{ThresholdOffset: th}
	var nx, ny, ox, oy []float64
	xlo, xhi := math.Inf(1), math.Inf(-1)
	ylo, yhi := math.Inf(1), math.Inf(-1)
	for _, r := range res.Records {
		x, y := r.ElapsedSinceStart, r.TotalExecutionTime
		if opts.IsCandidate(x, y) {
			ox, oy = append(ox, x), append(oy, y)
		} else {
			nx, ny = append(nx, x), append(ny, y)
		}
		xlo, xhi = math.Min(xlo, x), math.Max(xhi, x)
		ylo, yhi = math.Min(ylo, y), math.Max(yhi, y)
	}
	if xhi == xlo {
		return fmt.Errorf("report: timeline: %w", ErrNotEnoughData)
	}
	ylo, yhi = math.Min(ylo, xlo+th), math.Max(yhi, xhi+th)

	var series []chart.Series
	if len(nx) > 0 {
		series = append(series, chart.ContinuousSeries{Name: "records", XValues: nx, YValues: ny, Style: pointStyle(chart.ColorBlue)})
	}
	if len(ox) > 0 {
		series = append(series, chart.ContinuousSeries{Name: "outlier candidates", XValues: ox, YValues: oy, Style: pointStyle(chart.ColorRed)})
	}
	series = append(series, chart.ContinuousSeries{
		Name:    fmt.Sprintf("elapsed + %s", num(th)),
		XValues: []float64{xlo, xhi},
		YValues: []float64{xlo + th, xhi + th},
		Style: chart.Style{
			StrokeColor:     chart.ColorBlack,
			StrokeWidth:     1,
			StrokeDashArray: []float64{5, 5},
		},
	})

	unit := string(res.Overview.Unit)
	ch := chart.Chart{
		Title:      "Processing timeline: " + res.Table,
		Width:      chartWidth,
		Height:     chartHeight,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 12, Bottom: 16}},
		XAxis:      chart.XAxis{Name: "elapsed since start (" + unit + ")", Range: &chart.ContinuousRange{Min: xlo, Max: xhi}},
		YAxis:      chart.YAxis{Name: "total execution time", Range: &chart.ContinuousRange{Min: ylo, Max: yhi}},
		Series:     series,
	}
	ch.Elements = []chart.Renderable{chart.Legend(&ch)}

	if err := ch.Render(rp, w); err != nil {
		return fmt.Errorf("report: timeline: render: %w", err)
	}
	return nil
}

// StageChart draws the stage ranking as a bar chart.
func StageChart(w io.Writer, stages []compute.StageMean, format string) error {
	rp, err := renderer(format)
	if err != nil {
		return err
	}

	lo, hi := 0.0, 0.0
	bars := make([]chart.Value, 0, len(stages))
	for _, s := range stages {
		if math.IsNaN(s.Mean) {
			continue
		}
		lo, hi = math.Min(lo, s.Mean), math.Max(hi, s.Mean)
		bars = append(bars, chart.Value{Label: s.Label, Value: s.Mean})
	}
	if len(bars) == 0 || hi == lo {
		return fmt.Errorf("report: stages: %w", ErrNotEnoughData)
	}

	bc := chart.BarChart{
		Title:      "Mean time per stage",
		Width:      chartWidth,
		Height:     chartHeight,
		BarWidth:   max(8, (chartWidth-120)/len(bars)-12),
		Background: chart.Style{Padding: chart.Box{Top: 40}},
		YAxis:      chart.YAxis{Range: &chart.ContinuousRange{Min: lo, Max: hi * 1.05}},
		Bars:       bars,
	}
	if err := bc.Render(rp, w); err != nil {
		return fmt.Errorf("report: stages: render: %w", err)
	}
	return nil
}

// WriteCharts renders the timeline and stage charts into dir as
// timeline.<format> and stages.<format>. A chart without enough data is
// skipped with a warning. It returns the paths written.
func WriteCharts(dir, format string, res *compute.Result) ([]string, error) {
	if format == "" {
		format = "png"
	}
	if _, err := renderer(format); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("report: chart dir: %w", err)
	}

	charts := []struct {
		name   string
		render func(io.Writer) error
	}{
		{"timeline", func(w io.Writer) error { return TimelineChart(w, res, format) }},
		{"stages", func(w io.Writer) error { return StageChart(w, res.Stages, format) }},
	}

	var written []string
	for _, c := range charts {
		path := filepath.Join(dir, c.name+"."+format)
		if err := writeFile(path, c.render); err != nil {
			if errors.Is(err, ErrNotEnoughData) {
				slog.Warn("report: chart skipped", "chart", c.name, "reason", err)
				continue
			}
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

// writeFile renders into path and removes the partial file on failure.
func writeFile(path string, render func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: create %s: %w", path, err)
	}
	if err := render(f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("report: close %s: %w", path, err)
	}
	return nil
}
