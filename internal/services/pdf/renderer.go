package pdf

import (
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/yuin/goldmark/ast"
	extast "github.com/yuin/goldmark/extension/ast"
)

const (
	pageWidth  = 180.0 // A4 minus margins
	lineHeight = 5.0
)

// renderer walks a goldmark AST and draws it with fpdf
type renderer struct {
	pdf       *fpdf.Fpdf
	source    []byte
	tr        func(string) string
	size      float64
	bold      bool
	italic    bool
	listLevel int
	headings  int
}

func (r *renderer) render(node ast.Node) error {
	return ast.Walk(node, r.walk)
}

func (r *renderer) updateFont() {
	style := ""
	if r.bold {
		style += "B"
	}
	if r.italic {
		style += "I"
	}
	r.pdf.SetFont("Arial", style, r.size)
}

func (r *renderer) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node := n.(type) {
	case *ast.Heading:
		r.heading(node, entering)
	case *ast.Paragraph:
		if !entering {
			r.pdf.Ln(lineHeight + 1)
		}
	case *ast.Text:
		if entering {
			r.pdf.Write(lineHeight, r.tr(string(node.Segment.Value(r.source))))
			if node.SoftLineBreak() || node.HardLineBreak() {
				r.pdf.Ln(lineHeight)
			}
		}
	case *ast.Emphasis:
		if node.Level == 2 {
			r.bold = entering
		} else {
			r.italic = entering
		}
		r.updateFont()
	case *ast.List:
		if entering {
			r.listLevel++
		} else {
			r.listLevel--
			if r.listLevel == 0 {
				r.pdf.Ln(2)
			}
		}
	case *ast.ListItem:
		if entering {
			r.pdf.Ln(lineHeight)
			r.pdf.SetX(15 + float64(r.listLevel)*5)
			r.pdf.Write(lineHeight, "- ")
		}
	case *ast.ThematicBreak:
		if entering {
			r.pdf.Ln(2)
			r.pdf.Line(15, r.pdf.GetY(), 195, r.pdf.GetY())
			r.pdf.Ln(2)
		}
	case *extast.Table:
		if entering {
			r.table(node)
			return ast.WalkSkipChildren, nil
		}
	}
	return ast.WalkContinue, nil
}

func (r *renderer) heading(n *ast.Heading, entering bool) {
	if !entering {
		r.pdf.Ln(lineHeight + 2)
		r.pdf.SetTextColor(0, 0, 0)
		r.updateFont()
		return
	}

	if n.Level == 1 {
		r.headings++
		if r.headings > 1 {
			r.pdf.AddPage()
		}
	} else {
		r.pdf.Ln(3)
	}

	size := 11.0
	switch n.Level {
	case 1:
		size = 16
	case 2:
		size = 13
	}
	r.pdf.SetTextColor(0, 40, 85)
	r.pdf.SetFont("Arial", "B", size)
}

func (r *renderer) table(n *extast.Table) {
	var rows [][]string
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		switch row := child.(type) {
		case *extast.TableHeader:
			rows = append(rows, r.cells(row))
		case *extast.TableRow:
			rows = append(rows, r.cells(row))
		}
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return
	}

	cols := len(rows[0])
	widths := r.columnWidths(rows, cols)

	r.pdf.Ln(2)
	for i, row := range rows {
		if i == 0 {
			r.pdf.SetFont("Arial", "B", 8)
			r.pdf.SetFillColor(230, 234, 240)
		} else {
			r.pdf.SetFont("Arial", "", 8)
		}
		for j := 0; j < cols; j++ {
			cell := ""
			if j < len(row) {
				cell = truncate(r.pdf, row[j], widths[j]-2)
			}
			r.pdf.CellFormat(widths[j], 6, cell, "1", 0, "L", i == 0, 0, "")
		}
		r.pdf.Ln(-1)
	}
	r.pdf.Ln(3)
	r.updateFont()
}

func (r *renderer) cells(row ast.Node) []string {
	var out []string
	for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
		out = append(out, r.tr(strings.TrimSpace(string(cell.Text(r.source)))))
	}
	return out
}

// columnWidths sizes columns by content and scales them to the page width
func (r *renderer) columnWidths(rows [][]string, cols int) []float64 {
	r.pdf.SetFont("Arial", "B", 8)
	widths := make([]float64, cols)
	for _, row := range rows {
		for j := 0; j < cols && j < len(row); j++ {
			if w := r.pdf.GetStringWidth(row[j]) + 4; w > widths[j] {
				widths[j] = w
			}
		}
	}

	total := 0.0
	for j := range widths {
		if widths[j] < 14 {
			widths[j] = 14
		}
		total += widths[j]
	}
	scale := pageWidth / total
	for j := range widths {
		widths[j] *= scale
	}
	return widths
}

// truncate shortens s with an ellipsis until it fits width
func truncate(pdf *fpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	for len(s) > 0 && pdf.GetStringWidth(s+"...") > width {
		s = s[:len(s)-1]
	}
	return s + "..."
}
