package export

import (
	"fmt"
	"io"
	"time"

	"github.com/go-pdf/fpdf"
)

type PDFRenderer struct{}

var pdfColumns = []struct {
	title string
	width float64
	value func(Row) string
}{
	{"ID", 20, func(r Row) string { return r.IssueID }},
	{"Machine", 35, func(r Row) string { return r.Machine }},
	{"Status", 25, func(r Row) string { return r.Status }},
	{"Reporter", 30, func(r Row) string { return r.Reporter }},
	{"Assigned", 30, func(r Row) string { return r.AssignedTo }},
	{"Created", 35, func(r Row) string { return r.CreatedAt }},
	{"React Time", 25, func(r Row) string { return r.ReactionTime }},
	{"Res Time", 25, func(r Row) string { return r.ResolutionTime }},
}

func (PDFRenderer) ContentType() string { return "application/pdf" }

func (PDFRenderer) Filename(now time.Time) string {
	return "issues_report_" + now.Format("20060102") + ".pdf"
}

// Render lays the rows out as a landscape table with alternating row shading.
func (PDFRenderer) Render(w io.Writer, rows []Row) error {
	pdf := fpdf.New("L", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetHeaderFunc(func() {
		pdf.SetFont("Arial", "B", 15)
		pdf.SetFillColor(200, 220, 255)
		pdf.CellFormat(0, 10, "Issues Report", "", 1, "C", true, 0, "")
		pdf.Ln(5)
	})
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Arial", "I", 8)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(230, 230, 230)
	for _, c := range pdfColumns {
		pdf.CellFormat(c.width, 10, c.title, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for i, r := range rows {
		fill := i%2 == 1
		if fill {
			pdf.SetFillColor(245, 245, 245)
		} else {
			pdf.SetFillColor(255, 255, 255)
		}
		for _, c := range pdfColumns {
			pdf.CellFormat(c.width, 10, tr(c.value(r)), "1", 0, "C", fill, 0, "")
		}
		pdf.Ln(-1)
	}
	if err := pdf.Error(); err != nil {
		return err
	}
	return pdf.Output(w)
}
