package export

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rosterTable() Table {
	return Table{
		Columns: []Column{
			{Title: "No", Weight: 1},
			{Title: "Student", Weight: 4},
			{Title: "Email", Weight: 5},
			{Title: "Enrolled", Weight: 3},
		},
		Cells: [][]string{
			{"1", "Ada Lovelace", "ada@college.edu", "2026-08-20T09:00:00Z"},
			{"2", "Alan Turing", "alan@college.edu", "2026-08-21T10:30:00Z"},
		},
	}
}

func TestCSVRenderRosterColumns(t *testing.T) {
	content, err := NewCSVExporter().Render(rosterTable())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "No,Student,Email,Enrolled", lines[0])
	assert.Equal(t, "1,Ada Lovelace,ada@college.edu,2026-08-20T09:00:00Z", lines[1])
}

func TestCSVRenderPadsShortRows(t *testing.T) {
	table := rosterTable()
	table.Cells = [][]string{{"1", "Ada Lovelace"}}

	content, err := NewCSVExporter().Render(table)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "1,Ada Lovelace,,", lines[1])
}

func TestCSVRenderRejectsEmptyTable(t *testing.T) {
	_, err := NewCSVExporter().Render(Table{})
	assert.Error(t, err)
}

func TestPDFRenderProducesDocument(t *testing.T) {
	content, err := NewPDFExporter().Render(rosterTable(), "CS101 - Intro roster")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(content), "%PDF"))
}

func TestColumnWidthsFollowWeights(t *testing.T) {
	widths := columnWidths([]Column{
		{Title: "No", Weight: 1},
		{Title: "Student", Weight: 3},
	})

	require.Len(t, widths, 2)
	assert.InDelta(t, 47.5, widths[0], 0.001)
	assert.InDelta(t, 142.5, widths[1], 0.001)
	assert.InDelta(t, pageWidth, widths[0]+widths[1], 0.001)
}
