// Package report renders a compute.Result.
//
//   - WriteText: tabwriter report with overview, stage ranking, outlier
//     summary and a preview of the first records (text.go)
//   - WriteJSON: indented JSON, NaN statistics as null (json.go)
//   - WritePrometheus: gauge families in the text exposition format for a
//     textfile collector (prom.go)
//   - TimelineChart, StageChart, WriteCharts: PNG or SVG charts drawn with
//     go-chart (chart.go)
//   - WriteMarkdown, WriteHTML: markdown tables, optionally converted to
//     HTML with goldmark (markdown.go)
//   - WritePDF: the markdown report drawn onto A4 pages with fpdf (pdf.go)
package report
