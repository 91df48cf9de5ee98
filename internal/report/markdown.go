package report

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/broadinstitute/nightcafe/internal/compute"
)

// WriteMarkdown renders res as GitHub-flavoured markdown with the same
// sections as the text report.
func WriteMarkdown(w io.Writer, res *compute.Result, opts Options) error {
	if _, err := w.Write(markdown(res, opts)); err != nil {
		return fmt.Errorf("report: write markdown: %w", err)
	}
	return nil
}

// WriteHTML renders the markdown report as a standalone HTML page.
func WriteHTML(w io.Writer, res *compute.Result, opts Options) error {
	var body bytes.Buffer
	if err := newMarkdown().Convert(markdown(res, opts), &body); err != nil {
		return fmt.Errorf("report: render html: %w", err)
	}
	p := &printer{w: w}
	p.linef("<!DOCTYPE html>")
	p.linef("<html><head><meta charset=\"utf-8\"><title>%s</title>", html.EscapeString(title(res)))
	p.linef("<style>table{border-collapse:collapse}td,th{border:1px solid #ccc;padding:2px 8px}</style>")
	p.linef("</head><body>")
	if p.err == nil {
		_, p.err = w.Write(body.Bytes())
	}
	p.linef("</body></html>")
	if p.err != nil {
		return fmt.Errorf("report: write html: %w", p.err)
	}
	return nil
}

func newMarkdown() goldmark.Markdown {
	return goldmark.New(goldmark.WithExtensions(extension.Table))
}

func title(res *compute.Result) string {
	return "Execution time analysis: " + res.Table
}

func markdown(res *compute.Result, opts Options) []byte {
	var b bytes.Buffer
	line := func(format string, args ...any) { fmt.Fprintf(&b, format+"\n", args...) }

	ov := res.Overview
	line("# %s", mdEscape(title(res)))
	line("")
	if opts.RunID != "" {
		line("Run `%s`", opts.RunID)
		line("")
	}

	line("## Overview")
	line("")
	rows := [][]string{
		{"records", strconv.Itoa(ov.Records)},
		{"stage columns", fmt.Sprintf("%d (%d labels)", ov.StageColumns, ov.StageLabels)},
	}
	if ov.Records > 0 {
		rows = append(rows,
			[]string{"first record", ov.Start.UTC().Format(time.RFC3339)},
			[]string{"last record", ov.End.UTC().Format(time.RFC3339)})
	}
	rows = append(rows,
		[]string{"processing duration", num(ov.ProcessingDuration) + " " + string(ov.Unit)},
		[]string{"mean total", num(ov.MeanTotal)},
		[]string{"median total", num(ov.MedianTotal)},
		[]string{"min total", num(ov.MinTotal)},
		[]string{"max total", num(ov.MaxTotal)})
	for _, label := range sortedKeys(res.Collisions) {
		rows = append(rows, []string{"label collision", label + " <- " + strings.Join(res.Collisions[label], ", ")})
	}
	mdTable(&b, []string{"metric", "value"}, rows)

	line("## Stages by mean time")
	line("")
	if len(res.Stages) == 0 {
		line("No stage columns.")
		line("")
	} else {
		rows = rows[:0]
		for i, s := range res.Stages {
			rows = append(rows, []string{strconv.Itoa(i + 1), s.Label, num(s.Mean)})
		}
		mdTable(&b, []string{"rank", "stage", "mean"}, rows)
	}

	out := res.Outliers
	line("## Outliers")
	line("")
	line("%d of %d records have total - elapsed > %s.", len(out.Candidates), ov.Records, num(out.ThresholdOffset))
	line("")
	mdTable(&b, []string{"mean", "std", "min", "max", "range", "within band"}, [][]string{{
		num(out.Stats.Mean), num(out.Stats.StdDev), num(out.Stats.Min),
		num(out.Stats.Max), num(out.Stats.Range), strconv.Itoa(len(out.Band)),
	}})

	if opts.PreviewRows > 0 && len(res.Records) > 0 {
		ids := presentIDs(res.Records, opts.IDColumns)
		n := min(opts.PreviewRows, len(res.Records))
		line("## First %d of %d records", n, len(res.Records))
		line("")
		header := append(append([]string(nil), ids...), "timestamp", "total", "elapsed")
		rows = rows[:0]
		for _, r := range res.Records[:n] {
			var cells []string
			for _, id := range ids {
				cells = append(cells, r.Meta[id])
			}
			cells = append(cells, r.Timestamp.UTC().Format(time.RFC3339), num(r.TotalExecutionTime), num(r.ElapsedSinceStart))
			rows = append(rows, cells)
		}
		mdTable(&b, header, rows)
	}
	return b.Bytes()
}

func mdTable(b *bytes.Buffer, header []string, rows [][]string) {
	row := func(cells []string) {
		b.WriteString("|")
		for _, c := range cells {
			b.WriteString(" " + mdEscape(c) + " |")
		}
		b.WriteString("\n")
	}
	row(header)
	b.WriteString("|" + strings.Repeat(" --- |", len(header)) + "\n")
	for _, r := range rows {
		row(r)
	}
	b.WriteString("\n")
}

var (
	mdEscaper   = strings.NewReplacer("|", `\|`, "*", `\*`, "_", `\_`, "`", "\\`")
	mdUnescaper = strings.NewReplacer(`\|`, "|", `\*`, "*", `\_`, "_", "\\`", "`")
)

func mdEscape(s string) string { return mdEscaper.Replace(s) }
