package export

import (
	"io"
	"time"

	"github.com/tealeg/xlsx"
)

type XLSXRenderer struct{}

func (XLSXRenderer) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func (XLSXRenderer) Filename(now time.Time) string {
	return "issues_export_" + now.Format("20060102") + ".xlsx"
}

func (XLSXRenderer) Render(w io.Writer, rows []Row) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Issues")
	if err != nil {
		return err
	}
	addRow(sheet, Columns)
	for _, r := range rows {
		addRow(sheet, r.Values())
	}
	return file.Write(w)
}

func addRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}
