package sink

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/fyrsmithlabs/apreview/internal/answers"
)

// WorkbookSheet names the single sheet of a submission workbook.
const WorkbookSheet = "Submission"

// WorkbookContentType is the MIME type of a rendered workbook.
const WorkbookContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Workbook renders row as a one-sheet workbook: a bold header row followed
// by a single value row.
func Workbook(row *answers.Set) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), WorkbookSheet); err != nil {
		return nil, fmt.Errorf("naming sheet: %w", err)
	}

	header := make([]interface{}, 0, row.Len())
	values := make([]interface{}, 0, row.Len())
	row.Each(func(key string, v answers.Value) {
		header = append(header, key)
		values = append(values, v.String())
	})

	if err := f.SetSheetRow(WorkbookSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("writing header: %w", err)
	}
	if err := f.SetSheetRow(WorkbookSheet, "A2", &values); err != nil {
		return nil, fmt.Errorf("writing values: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("creating header style: %w", err)
	}
	if err := f.SetRowStyle(WorkbookSheet, 1, 1, bold); err != nil {
		return nil, fmt.Errorf("styling header: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("rendering workbook: %w", err)
	}
	return buf.Bytes(), nil
}
