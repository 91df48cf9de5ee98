package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/broadinstitute/nightcafe/internal/compute"
	"github.com/broadinstitute/nightcafe/internal/config"
	"github.com/broadinstitute/nightcafe/internal/gates"
	"github.com/broadinstitute/nightcafe/internal/report"
	"github.com/broadinstitute/nightcafe/internal/source"
)

// crossCheckTolerance is the relative difference allowed between the
// pipeline's grand total and the storage-side sum.
const crossCheckTolerance = 1e-9

func (a *app) analyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze",
		Short: "Run the analysis once and print the report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			vs, err := analyze(cmd.Context(), a.cfg, a.stdout)
			if err != nil {
				return err
			}
			if gates.Critical(vs) {
				return &exitCodeError{
					code: exitGateFail,
					err:  fmt.Errorf("%d gate(s) failed, at least one critical", len(vs)),
				}
			}
			return nil
		},
	}
}

// analyze performs one full run: load, compute, report, charts, gates.
// It returns the gate violations of the run.
func analyze(ctx context.Context, cfg *config.Config, stdout io.Writer) ([]gates.Violation, error) {
	runID := uuid.NewString()
	log := slog.With("run_id", runID)
	start := time.Now()

	engine, err := gates.New(cfg.Gates)
	if err != nil {
		return nil, err
	}

	src, err := source.New(cfg.Input)
	if err != nil {
		return nil, err
	}
	t, err := src.Load(ctx)
	if err != nil {
		return nil, err
	}
	log.Info("analyze: table loaded", "table", t.Name, "rows", t.Len(), "columns", len(t.Columns))

	res, err := compute.Run(t, cfg.Options())
	if err != nil {
		return nil, err
	}
	if q, ok := src.(source.TotalQuerier); ok {
		crossCheck(ctx, log, q, res)
	}

	if err := writeReport(stdout, cfg.Output, runID, cfg.Input.IDColumns, res); err != nil {
		return nil, err
	}
	if cfg.Output.ChartDir != "" {
		paths, err := report.WriteCharts(cfg.Output.ChartDir, cfg.Output.ChartFormat, res)
		if err != nil {
			return nil, err
		}
		for _, p := range paths {
			log.Info("analyze: chart written", "path", p)
		}
	}

	vs := engine.Evaluate(runID, res)
	engine.Notify(ctx, vs)

	log.Info("analyze: run complete",
		"table", res.Table,
		"records", res.Overview.Records,
		"stage_labels", res.Overview.StageLabels,
		"candidates", len(res.Outliers.Candidates),
		"gate_violations", len(vs),
		"duration", time.Since(start),
	)
	return vs, nil
}

// writeReport renders res in the configured format to stdout or out.File.
func writeReport(stdout io.Writer, out config.Output, runID string, idCols []string, res *compute.Result) (err error) {
	w := stdout
	if out.File != "" {
		f, err := os.Create(out.File)
		if err != nil {
			return fmt.Errorf("report: create %s: %w", out.File, err)
		}
		defer func() {
			if cerr := f.Close(); err == nil && cerr != nil {
				err = fmt.Errorf("report: close %s: %w", out.File, cerr)
			}
		}()
		w = f
	}

	opts := report.Options{
		RunID:       runID,
		PreviewRows: out.PreviewRows,
		IDColumns:   idCols,
	}
	switch out.Format {
	case "json":
		return report.WriteJSON(w, res)
	case "prometheus":
		return report.WritePrometheus(w, res)
	case "markdown":
		return report.WriteMarkdown(w, res, opts)
	case "html":
		return report.WriteHTML(w, res, opts)
	case "pdf":
		return report.WritePDF(w, res, opts)
	default:
		return report.WriteText(w, res, opts)
	}
}

// crossCheck compares the sum of derived totals with the storage-side
// SUM(COALESCE(...)). A mismatch is logged, never fatal.
func crossCheck(ctx context.Context, log *slog.Logger, q source.TotalQuerier, res *compute.Result) {
	raw := make([]string, len(res.Columns))
	for i, c := range res.Columns {
		raw[i] = c.Raw
	}
	want, err := q.QueryTotal(ctx, raw)
	if err != nil {
		log.Warn("analyze: total cross-check skipped", "err", err)
		return
	}
	var got float64
	for _, tot := range compute.Totals(res.Records) {
		got += tot
	}
	if math.Abs(got-want) > crossCheckTolerance*math.Max(1, math.Abs(want)) {
		log.Warn("analyze: total cross-check mismatch", "pipeline", got, "storage", want)
		return
	}
	log.Debug("analyze: total cross-check ok", "total", got)
}
