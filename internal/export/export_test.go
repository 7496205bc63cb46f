package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx"

	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/domain"
)

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "0m", FormatElapsed(0))
	assert.Equal(t, "45m", FormatElapsed(45*time.Minute+30*time.Second))
	assert.Equal(t, "3h 25m", FormatElapsed(3*time.Hour+25*time.Minute))
	assert.Equal(t, "26h 0m", FormatElapsed(26*time.Hour))
	assert.Equal(t, "0m", FormatElapsed(-time.Hour))
}

func sampleIssues() []domain.Issue {
	created := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	accepted := created.Add(20 * time.Minute)
	closed := created.Add(3*time.Hour + 5*time.Minute)
	return []domain.Issue{
		{
			ID: "ISS002", MachineID: "MACH001", MachineName: "Press", Description: "leak",
			Status: domain.StatusClosed, Urgency: domain.UrgencyHigh,
			Reporter:     &domain.UserSummary{ID: "P100", Name: "Paula"},
			AssignedTech: &domain.UserSummary{ID: "M200", Name: "Marc"},
			CreatedAt:    created, AcceptedAt: &accepted, ClosedAt: &closed, Resolution: "new seal",
		},
		{
			ID: "ISS001", MachineID: "MACH009", Description: "noise",
			Status: domain.StatusReported, Urgency: domain.UrgencyLow, CreatedAt: created,
		},
	}
}

func TestBuildRows(t *testing.T) {
	rows := BuildRows(sampleIssues())
	require.Len(t, rows, 2)

	assert.Equal(t, Row{
		IssueID: "ISS002", Machine: "Press", Description: "leak", Status: "closed", Urgency: "high",
		Reporter: "Paula", AssignedTo: "Marc", CreatedAt: "2024-03-01 08:00", ClosedAt: "2024-03-01 11:05",
		Resolution: "new seal", ReactionTime: "20m", ResolutionTime: "3h 5m",
	}, rows[0])

	missing := rows[1]
	assert.Equal(t, "MACH009", missing.Machine, "deleted machines fall back to the id")
	assert.Equal(t, "N/A", missing.Reporter)
	assert.Equal(t, "Unassigned", missing.AssignedTo)
	assert.Empty(t, missing.ClosedAt)
	assert.Equal(t, "N/A", missing.ReactionTime)
	assert.Equal(t, "N/A", missing.ResolutionTime)
	assert.Len(t, missing.Values(), len(Columns))
}

func TestFor(t *testing.T) {
	for _, name := range []string{"", "excel", "XLSX"} {
		r, err := For(name)
		require.NoError(t, err)
		assert.IsType(t, XLSXRenderer{}, r)
	}
	r, err := For("pdf")
	require.NoError(t, err)
	assert.IsType(t, PDFRenderer{}, r)
	_, err = For("csv")
	assert.Error(t, err)
}

func TestXLSXRenderer(t *testing.T) {
	var buf bytes.Buffer
	r := XLSXRenderer{}
	require.NoError(t, r.Render(&buf, BuildRows(sampleIssues())))
	assert.Equal(t, "issues_export_20240301.xlsx", r.Filename(time.Date(2024, 3, 1, 23, 0, 0, 0, time.UTC)))

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	sheet, ok := f.Sheet["Issues"]
	require.True(t, ok)
	require.Len(t, sheet.Rows, 3)
	assert.Equal(t, "Issue ID", sheet.Rows[0].Cells[0].String())
	assert.Equal(t, "ISS002", sheet.Rows[1].Cells[0].String())
	assert.Equal(t, "3h 5m", sheet.Rows[1].Cells[11].String())
}

func TestPDFRenderer(t *testing.T) {
	var buf bytes.Buffer
	r := PDFRenderer{}
	require.NoError(t, r.Render(&buf, BuildRows(sampleIssues())))
	assert.True(t, strings.HasPrefix(buf.String(), "%PDF"))
	assert.Equal(t, "application/pdf", r.ContentType())
	assert.Equal(t, "issues_report_20240301.pdf", r.Filename(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))

	buf.Reset()
	require.NoError(t, r.Render(&buf, nil), "an empty report still renders")
	assert.True(t, strings.HasPrefix(buf.String(), "%PDF"))
}
