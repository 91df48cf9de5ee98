package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/common/expfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/broadinstitute/nightcafe/internal/compute"
	"github.com/broadinstitute/nightcafe/internal/table"
)

var baseTime = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

// sampleResult runs the pipeline over four records; the second one is an
// outlier candidate (total 600 at elapsed 100).
func sampleResult(t *testing.T) *compute.Result {
	t.Helper()
	tb := table.New("execution_data", []string{"plate", "well", "wall_clock_time", "ExecutionTime_01Load", "ExecutionTime_02Measure"})
	rows := [][]any{
		{"P1", "A01", baseTime, 100.0, 20.0},
		{"P1", "A02", baseTime.Add(100 * time.Second), 500.0, 100.0},
		{"P1", "A03", baseTime.Add(200 * time.Second), 150.0, nil},
		{"P1", "A04", baseTime.Add(300 * time.Second), 50.0, 50.0},
	}
	for _, r := range rows {
		require.NoError(t, tb.Append(r))
	}
	res, err := compute.Run(tb, compute.DefaultOptions())
	require.NoError(t, err)
	return res
}

func emptyResult(t *testing.T) *compute.Result {
	t.Helper()
	res, err := compute.Run(table.New("execution_data", []string{"wall_clock_time", "ExecutionTime_A"}), compute.DefaultOptions())
	require.NoError(t, err)
	return res
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	err := WriteText(&buf, sampleResult(t), Options{RunID: "run-1", PreviewRows: 2, IDColumns: []string{"plate", "well", "site"}})
	require.NoError(t, err)
	out := buf.String()

	assert.Contains(t, out, "Execution time analysis: execution_data")
	assert.Contains(t, out, "Run: run-1")
	assert.Contains(t, out, "01Load")
	assert.Regexp(t, `candidates\s+1 of 4`, out)
	assert.Contains(t, out, "First 2 of 4 records")
	assert.Contains(t, out, "A02")
	assert.NotContains(t, out, "A03", "preview must stop at PreviewRows")
	assert.NotContains(t, out, "site", "absent id columns are not shown")

	// Load (200) ranks above Measure (42.5).
	assert.Less(t, strings.Index(out, "01Load"), strings.Index(out, "02Measure"))
}

func TestWriteText_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, emptyResult(t), Options{PreviewRows: 10}))
	out := buf.String()
	assert.Regexp(t, `records\s+0\n`, out)
	assert.Contains(t, out, "n/a")
	assert.Contains(t, out, "(none)")
	assert.NotContains(t, out, "First")
}

func TestWriteJSON_NullsAndDeterminism(t *testing.T) {
	var a, b bytes.Buffer
	require.NoError(t, WriteJSON(&a, emptyResult(t)))
	require.NoError(t, WriteJSON(&b, emptyResult(t)))
	assert.Equal(t, a.String(), b.String())

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(a.Bytes(), &decoded))
	ov := decoded["overview"].(map[string]any)
	assert.Nil(t, ov["mean_total"])
	assert.Equal(t, []any{}, decoded["stage_means"])
}

func TestWritePrometheus_Parses(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePrometheus(&buf, sampleResult(t)))

	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(&buf)
	require.NoError(t, err)

	require.Contains(t, mfs, MetricRecords)
	assert.Equal(t, 4.0, mfs[MetricRecords].GetMetric()[0].GetGauge().GetValue())
	assert.Equal(t, 1.0, mfs[MetricOutlierCandidates].GetMetric()[0].GetGauge().GetValue())

	stages := mfs[MetricStageMean].GetMetric()
	require.Len(t, stages, 2)
	got := map[string]float64{}
	for _, m := range stages {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == "stage" {
				got[lp.GetValue()] = m.GetGauge().GetValue()
			}
		}
	}
	assert.InDelta(t, 200.0, got["01Load"], 1e-9)
	assert.InDelta(t, 42.5, got["02Measure"], 1e-9)
}

func TestWritePrometheus_EmptyExposesNaN(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePrometheus(&buf, emptyResult(t)))

	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(&buf)
	require.NoError(t, err)
	assert.NotContains(t, mfs, MetricStageMean, "families without samples are omitted")
	for _, m := range mfs[MetricTotal].GetMetric() {
		assert.True(t, math.IsNaN(m.GetGauge().GetValue()))
	}
}

func TestTimelineChart(t *testing.T) {
	res := sampleResult(t)

	var png bytes.Buffer
	require.NoError(t, TimelineChart(&png, res, "png"))
	assert.True(t, bytes.HasPrefix(png.Bytes(), []byte("\x89PNG")))

	var svg bytes.Buffer
	require.NoError(t, TimelineChart(&svg, res, "svg"))
	assert.Contains(t, svg.String(), "<svg")
}

func TestTimelineChart_NotEnoughData(t *testing.T) {
	err := TimelineChart(&bytes.Buffer{}, emptyResult(t), "png")
	assert.True(t, errors.Is(err, ErrNotEnoughData))

	err = TimelineChart(&bytes.Buffer{}, sampleResult(t), "gif")
	assert.Error(t, err)
}

func TestStageChart(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, StageChart(&buf, sampleResult(t).Stages, "png"))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")))

	zero := []compute.StageMean{{Label: "a", Mean: 0}, {Label: "b", Mean: 0}}
	assert.True(t, errors.Is(StageChart(&bytes.Buffer{}, zero, "png"), ErrNotEnoughData))
	assert.True(t, errors.Is(StageChart(&bytes.Buffer{}, nil, "png"), ErrNotEnoughData))
}

func TestWriteCharts(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "charts")
	paths, err := WriteCharts(dir, "svg", sampleResult(t))
	require.NoError(t, err)
	require.Len(t, paths, 2)
	for _, p := range paths {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}

	// Empty results skip both charts without failing.
	paths, err = WriteCharts(dir, "png", emptyResult(t))
	require.NoError(t, err)
	assert.Empty(t, paths)
	_, err = os.Stat(filepath.Join(dir, "timeline.png"))
	assert.True(t, os.IsNotExist(err))
}

func TestWriteMarkdown(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMarkdown(&buf, sampleResult(t), Options{RunID: "run-1", PreviewRows: 1, IDColumns: []string{"well"}}))
	out := buf.String()

	assert.Contains(t, out, `# Execution time analysis: execution\_data`)
	assert.Contains(t, out, "Run `run-1`")
	assert.Contains(t, out, "| 1 | 01Load | 200.000 |")
	assert.Contains(t, out, "| 2 | 02Measure | 42.500 |")
	assert.Contains(t, out, "1 of 4 records have total - elapsed > 400.000.")
	assert.Contains(t, out, "## First 1 of 4 records")
	assert.Contains(t, out, "| A01 |")
	assert.NotContains(t, out, "A02")
}

func TestWriteMarkdown_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMarkdown(&buf, emptyResult(t), Options{PreviewRows: 5}))
	out := buf.String()
	assert.Contains(t, out, "| records | 0 |")
	assert.Contains(t, out, "| mean total | n/a |")
	assert.NotContains(t, out, "## First")
}

func TestWriteHTML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHTML(&buf, sampleResult(t), Options{}))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "<!DOCTYPE html>"))
	assert.Contains(t, out, "<title>Execution time analysis: execution_data</title>")
	assert.Contains(t, out, "<h1>Execution time analysis: execution_data</h1>")
	assert.Contains(t, out, "<table>")
	assert.Contains(t, out, "<td>01Load</td>")
	assert.True(t, strings.HasSuffix(out, "</body></html>\n"))
}

func TestWritePDF(t *testing.T) {
	for name, res := range map[string]*compute.Result{
		"sample": sampleResult(t),
		"empty":  emptyResult(t),
	} {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WritePDF(&buf, res, Options{RunID: "run-1", PreviewRows: 3, IDColumns: []string{"plate", "well"}}))
			assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
			assert.Contains(t, buf.String(), "%%EOF")
		})
	}
}
