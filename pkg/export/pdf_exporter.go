package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// A4 portrait printable width with 10mm side margins.
const pageWidth = 190.0

// PDFExporter lays tables out as an A4 document, the format handed to
// faculty for printed class rosters.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render draws the table under a heading. Column widths follow the column
// weights, so names and emails get more room than sequence numbers.
func (e *PDFExporter) Render(t Table, heading string) ([]byte, error) {
	if len(t.Columns) == 0 {
		return nil, fmt.Errorf("export table has no columns")
	}

	widths := columnWidths(t.Columns)

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	if heading != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, heading, "", 1, "C", false, 0, "")
		pdf.Ln(5)
	}

	pdf.SetFont("Arial", "B", 10)
	for i, col := range t.Columns {
		pdf.CellFormat(widths[i], 8, col.Title, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, row := range t.Cells {
		for i := range t.Columns {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			pdf.CellFormat(widths[i], 7, cell, "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func columnWidths(cols []Column) []float64 {
	total := 0.0
	for _, col := range cols {
		if col.Weight > 0 {
			total += col.Weight
		} else {
			total++
		}
	}

	widths := make([]float64, len(cols))
	for i, col := range cols {
		w := col.Weight
		if w <= 0 {
			w = 1
		}
		widths[i] = pageWidth * w / total
	}
	return widths
}
