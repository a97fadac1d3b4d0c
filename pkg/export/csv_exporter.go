package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Column describes one table column. Weight sets the relative width in paged
// output; zero takes an equal share.
type Column struct {
	Title  string
	Weight float64
}

// Table is an ordered roster-style table. Each cell row aligns positionally
// with Columns; short rows are padded with blanks, long rows truncated.
type Table struct {
	Columns []Column
	Cells   [][]string
}

// CSVExporter writes tables as CSV for spreadsheet imports.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces CSV encoded bytes for the table.
func (e *CSVExporter) Render(t Table) ([]byte, error) {
	if len(t.Columns) == 0 {
		return nil, fmt.Errorf("export table has no columns")
	}

	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)

	titles := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		titles[i] = col.Title
	}
	if err := writer.Write(titles); err != nil {
		return nil, fmt.Errorf("write header row: %w", err)
	}

	for _, row := range t.Cells {
		record := make([]string, len(t.Columns))
		copy(record, row)
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write roster row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
