package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/broadinstitute/nightcafe/internal/config"
)

// Exit codes.
const (
	exitOK       = 0
	exitError    = 1
	exitGateFail = 2
)

// exitCodeError carries a non-default exit code out of a command.
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string { return e.err.Error() }

func (e *exitCodeError) Unwrap() error { return e.err }

// app is the state shared by the subcommands of one invocation.
type app struct {
	configPath string
	flags      flags
	cfg        *config.Config
	stdout     io.Writer
	stderr     io.Writer
}

// flags mirrors the config keys that can be overridden on the command line.
type flags struct {
	input, url, format, table string
	prefix, unit              string
	threshold, band           float64
	topK                      int
	output, outFile           string
	preview                   int
	chartDir, chartFormat     string
	logLevel, logFormat       string
	schedule                  string
}

// execute runs the CLI with args and returns the process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	slog.Error("exectime: failed", "err", err)
	var ec *exitCodeError
	if errors.As(err, &ec) {
		return ec.code
	}
	return exitError
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "exectime",
		Short: "Analyse per-image execution times of a pipeline run",
		Long: `exectime reads a table of per-image stage timings (CSV, JSON or SQLite,
local or remote), ranks stages by mean time, flags images whose total time
outruns the processing timeline, and renders a text, JSON, Prometheus,
markdown, HTML or PDF report plus optional charts.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", config.DefaultPath, "path to config file (optional)")
	pf.StringVar(&a.flags.logLevel, "log-level", config.DefaultLogLevel, "debug | info | warn | error")
	pf.StringVar(&a.flags.logFormat, "log-format", config.DefaultLogFormat, "json | text")
	pf.StringVarP(&a.flags.input, "input", "i", "", "local input file (.csv, .json, .sqlite)")
	pf.StringVar(&a.flags.url, "url", "", "remote input used when the local file does not exist")
	pf.StringVar(&a.flags.format, "format", "", "input format: csv | json | sqlite (default: from extension)")
	pf.StringVar(&a.flags.table, "table", config.DefaultTable, "SQLite table name")
	pf.StringVar(&a.flags.prefix, "prefix", "", "stage-time column prefix")
	pf.StringVar(&a.flags.unit, "unit", "", "elapsed unit: seconds | minutes")
	pf.Float64Var(&a.flags.threshold, "threshold", 0, "outlier threshold offset")
	pf.Float64Var(&a.flags.band, "band", 0, "tolerance band around the mean difference")
	pf.IntVar(&a.flags.topK, "top-k", 0, "stages to keep in the ranking (0 = all)")
	pf.StringVarP(&a.flags.output, "output", "o", "", "report format: text | json | prometheus | markdown | html | pdf")
	pf.StringVar(&a.flags.outFile, "out-file", "", "write the report to a file instead of stdout")
	pf.IntVar(&a.flags.preview, "preview", 0, "records shown in the text preview")
	pf.StringVar(&a.flags.chartDir, "chart-dir", "", "directory for timeline and stage charts")
	pf.StringVar(&a.flags.chartFormat, "chart-format", "", "chart format: png | svg")
	pf.StringVar(&a.flags.schedule, "schedule", "", "cron expression that also triggers watch runs")

	root.AddCommand(a.analyzeCmd(), a.watchCmd())
	return root
}

// setup loads the config, applies flag overrides and installs the logger.
func (a *app) setup(cmd *cobra.Command) error {
	slog.SetDefault(newLogger(a.stderr, a.flags.logLevel, a.flags.logFormat))

	cfg, err := config.LoadOrDefault(a.configPath)
	if err != nil {
		return err
	}
	if err := a.override(cmd, cfg); err != nil {
		return err
	}
	a.cfg = cfg

	slog.SetDefault(newLogger(a.stderr, cfg.Logging.Level, cfg.Logging.Format))
	slog.Debug("exectime: config loaded", "config", a.configPath, "input", cfg.Input.Path, "url", cfg.Input.URL)
	return nil
}

// override copies explicitly set flags onto cfg and re-validates it.
func (a *app) override(cmd *cobra.Command, cfg *config.Config) error {
	set := cmd.Flags().Changed
	f := a.flags
	if set("input") {
		cfg.Input.Path = f.input
	}
	if set("url") {
		cfg.Input.URL = f.url
	}
	if set("format") {
		cfg.Input.Format = f.format
	}
	if set("table") {
		cfg.Input.Table = f.table
	}
	if set("prefix") {
		cfg.Analysis.StagePrefix = f.prefix
	}
	if set("unit") {
		cfg.Analysis.ElapsedUnit = f.unit
	}
	if set("threshold") {
		cfg.Analysis.ThresholdOffset = f.threshold
	}
	if set("band") {
		cfg.Analysis.Band = f.band
	}
	if set("top-k") {
		cfg.Analysis.TopK = f.topK
	}
	if set("output") {
		cfg.Output.Format = f.output
	}
	if set("out-file") {
		cfg.Output.File = f.outFile
	}
	if set("preview") {
		cfg.Output.PreviewRows = f.preview
	}
	if set("chart-dir") {
		cfg.Output.ChartDir = f.chartDir
	}
	if set("chart-format") {
		cfg.Output.ChartFormat = f.chartFormat
	}
	if set("schedule") {
		cfg.Watch.Schedule = f.schedule
	}
	if set("log-level") {
		cfg.Logging.Level = f.logLevel
	}
	if set("log-format") {
		cfg.Logging.Format = f.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("flags: %w", err)
	}
	return nil
}

// newLogger builds the process logger. Logs go to w so stdout carries
// only the report.
func newLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
