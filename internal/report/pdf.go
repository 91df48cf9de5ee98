package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/yuin/goldmark/ast"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"github.com/broadinstitute/nightcafe/internal/compute"
)

const (
	pdfFont     = "Arial"
	pdfFontSize = 9.0
	pdfLine     = 5.0
	pdfWidth    = 190.0 // A4 width minus 10mm margins
)

// WritePDF renders the markdown report onto A4 pages.
func WritePDF(w io.Writer, res *compute.Result, opts Options) error {
	source := markdown(res, opts)
	doc := newMarkdown().Parser().Parse(text.NewReader(source))

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title(res), true)
	pdf.SetMargins(10, 10, 10)
	pdf.SetAutoPageBreak(true, 10)
	pdf.AddPage()
	pdf.SetFont(pdfFont, "", pdfFontSize)

	r := &pdfRenderer{pdf: pdf, source: source, tr: pdf.UnicodeTranslatorFromDescriptor("")}
	if err := ast.Walk(doc, r.walk); err != nil {
		return fmt.Errorf("report: render pdf: %w", err)
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("report: write pdf: %w", err)
	}
	return nil
}

type pdfRenderer struct {
	pdf    *fpdf.Fpdf
	source []byte
	tr     func(string) string
}

func (r *pdfRenderer) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch n := n.(type) {
	case *ast.Heading:
		if entering {
			r.pdf.Ln(3)
			r.pdf.SetFont(pdfFont, "B", 14-2*float64(min(n.Level, 3)-1))
		} else {
			r.pdf.Ln(8)
			r.pdf.SetFont(pdfFont, "", pdfFontSize)
		}
	case *ast.Paragraph:
		if !entering {
			r.pdf.Ln(pdfLine + 2)
		}
	case *ast.Text:
		if entering {
			r.write(string(n.Segment.Value(r.source)))
			if n.SoftLineBreak() {
				r.write(" ")
			}
		}
	case *ast.CodeSpan:
		if entering {
			r.pdf.SetFont("Courier", "", pdfFontSize)
			r.write(r.plain(n))
			r.pdf.SetFont(pdfFont, "", pdfFontSize)
		}
		return ast.WalkSkipChildren, nil
	case *extast.Table:
		if entering {
			r.table(n)
		}
		return ast.WalkSkipChildren, nil
	}
	return ast.WalkContinue, r.pdf.Error()
}

func (r *pdfRenderer) write(s string) {
	r.pdf.Write(pdfLine, r.tr(mdUnescaper.Replace(s)))
}

// table draws a grid with equal column widths and a shaded header row.
func (r *pdfRenderer) table(t *extast.Table) {
	var rows [][]string
	for row := t.FirstChild(); row != nil; row = row.NextSibling() {
		var cells []string
		for c := row.FirstChild(); c != nil; c = c.NextSibling() {
			cells = append(cells, mdUnescaper.Replace(r.plain(c)))
		}
		rows = append(rows, cells)
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return
	}

	colWidth := pdfWidth / float64(len(rows[0]))
	for i, cells := range rows {
		header := i == 0
		if header {
			r.pdf.SetFont(pdfFont, "B", pdfFontSize-1)
			r.pdf.SetFillColor(230, 230, 230)
		} else {
			r.pdf.SetFont(pdfFont, "", pdfFontSize-1)
		}
		for _, c := range cells {
			r.pdf.CellFormat(colWidth, pdfLine+1, r.tr(fit(r.pdf, c, colWidth-2)), "1", 0, "L", header, 0, "")
		}
		r.pdf.Ln(-1)
	}
	r.pdf.SetFont(pdfFont, "", pdfFontSize)
	r.pdf.Ln(3)
}

// plain concatenates the text under n.
func (r *pdfRenderer) plain(n ast.Node) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if t, ok := c.(*ast.Text); ok && entering {
			b.Write(t.Segment.Value(r.source))
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}

// fit truncates s so it renders within width millimetres.
func fit(pdf *fpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && pdf.GetStringWidth(string(runes)+"...") > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}
