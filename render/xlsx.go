package render

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

const (
	reportSheet  = "Report"
	summarySheet = "Summary"
)

// EncodeXLSX writes the table to a "Report" sheet and the summary, when present, to a
// "Summary" sheet. Cells hold the same display strings as the printed report.
func EncodeXLSX(doc Document) ([]byte, error) {
	if len(doc.Rows) == 0 {
		return nil, ErrEmptyDataset
	}
	cols := doc.ResolvedColumns()

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", reportSheet); err != nil {
		return nil, err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#1E3A8A"}, Pattern: 1},
	})
	if err != nil {
		return nil, err
	}

	header := make([]any, len(cols))
	for i, c := range cols {
		header[i] = c.Label
	}
	if err := f.SetSheetRow(reportSheet, "A1", &header); err != nil {
		return nil, err
	}
	lastHeader, err := excelize.CoordinatesToCellName(max(len(cols), 1), 1)
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(reportSheet, "A1", lastHeader, headerStyle); err != nil {
		return nil, err
	}

	for i, line := range doc.Cells(cols) {
		values := make([]any, len(line))
		for j, cell := range line {
			values[j] = cell
		}
		if err := f.SetSheetRow(reportSheet, fmt.Sprintf("A%d", i+2), &values); err != nil {
			return nil, err
		}
	}
	for i := range cols {
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(reportSheet, name, name, 20); err != nil {
			return nil, err
		}
	}

	if len(doc.Summary) > 0 {
		if _, err := f.NewSheet(summarySheet); err != nil {
			return nil, err
		}
		for i, s := range doc.Summary {
			row := []any{s.Label, s.Display()}
			if err := f.SetSheetRow(summarySheet, fmt.Sprintf("A%d", i+1), &row); err != nil {
				return nil, err
			}
		}
		if err := f.SetColWidth(summarySheet, "A", "B", 28); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
