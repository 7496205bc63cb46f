// Package export renders issue reports as spreadsheets or PDF documents.
package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/domain"
)

const timeLayout = "2006-01-02 15:04"

// Row is one flattened issue in a report.
type Row struct {
	IssueID        string
	Machine        string
	Description    string
	Status         string
	Urgency        string
	Reporter       string
	AssignedTo     string
	CreatedAt      string
	ClosedAt       string
	Resolution     string
	ReactionTime   string
	ResolutionTime string
}

// Columns are the spreadsheet headers, in Row field order.
var Columns = []string{
	"Issue ID", "Machine", "Description", "Status", "Urgency", "Reporter",
	"Assigned To", "Created At", "Closed At", "Resolution", "Reaction Time", "Resolution Time",
}

func (r Row) Values() []string {
	return []string{
		r.IssueID, r.Machine, r.Description, r.Status, r.Urgency, r.Reporter,
		r.AssignedTo, r.CreatedAt, r.ClosedAt, r.Resolution, r.ReactionTime, r.ResolutionTime,
	}
}

// BuildRows flattens issues in the given order.
func BuildRows(issues []domain.Issue) []Row {
	rows := make([]Row, 0, len(issues))
	for _, is := range issues {
		row := Row{
			IssueID:        is.ID,
			Machine:        is.MachineName,
			Description:    is.Description,
			Status:         string(is.Status),
			Urgency:        string(is.Urgency),
			Reporter:       "N/A",
			AssignedTo:     "Unassigned",
			Resolution:     is.Resolution,
			ReactionTime:   "N/A",
			ResolutionTime: "N/A",
		}
		if row.Machine == "" {
			row.Machine = is.MachineID
		}
		if is.Reporter != nil {
			row.Reporter = is.Reporter.Name
		}
		if is.AssignedTech != nil {
			row.AssignedTo = is.AssignedTech.Name
		}
		if !is.CreatedAt.IsZero() {
			row.CreatedAt = is.CreatedAt.UTC().Format(timeLayout)
		}
		if is.ClosedAt != nil {
			row.ClosedAt = is.ClosedAt.UTC().Format(timeLayout)
			row.ResolutionTime = FormatElapsed(is.ClosedAt.Sub(is.CreatedAt))
		}
		if is.AcceptedAt != nil {
			row.ReactionTime = FormatElapsed(is.AcceptedAt.Sub(is.CreatedAt))
		}
		rows = append(rows, row)
	}
	return rows
}

// FormatElapsed renders d as "3h 25m", or "25m" under an hour.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hours := int(d / time.Hour)
	minutes := int((d % time.Hour) / time.Minute)
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

// Renderer writes a complete report document.
type Renderer interface {
	ContentType() string
	Filename(now time.Time) string
	Render(w io.Writer, rows []Row) error
}

// For picks the renderer for a format name: excel (default) or pdf.
func For(format string) (Renderer, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "excel", "xlsx":
		return XLSXRenderer{}, nil
	case "pdf":
		return PDFRenderer{}, nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}
