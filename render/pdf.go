package render

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/DataGeek404/micro-finance-app-sub001/utils"
	"github.com/go-pdf/fpdf"
)

const (
	pdfMargin     = 10.0
	pdfRowHeight  = 7.0
	pdfFooterRoom = 15.0
)

// EncodePDF lays the document out on landscape A4 pages. The table header is repeated
// on every page and the summary block follows the table.
func EncodePDF(doc Document) ([]byte, error) {
	if len(doc.Rows) == 0 {
		return nil, ErrEmptyDataset
	}
	cols := doc.ResolvedColumns()
	cells := doc.Cells(cols)

	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(false, pdfFooterRoom)
	pdf.AliasNbPages("")
	pdf.SetTitle(doc.Title, true)
	pdf.SetCreator(doc.OrgName, true)
	if !doc.GeneratedAt.IsZero() {
		pdf.SetCreationDate(doc.GeneratedAt)
	}
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	text := func(s string) string {
		return tr(strings.ReplaceAll(s, "₵", "S"))
	}

	pageWidth, pageHeight := pdf.GetPageSize()
	usable := pageWidth - 2*pdfMargin
	colWidth := usable / float64(max(len(cols), 1))

	pdf.SetFooterFunc(func() {
		pdf.SetY(-pdfMargin - 2)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(123, 135, 148)
		pdf.CellFormat(0, 5, text(fmt.Sprintf("%s  |  Page %d of {nb}", doc.Title, pdf.PageNo())), "", 0, "C", false, 0, "")
	})

	tableHeader := func() {
		pdf.SetFont("Helvetica", "B", 9)
		pdf.SetFillColor(30, 58, 138)
		pdf.SetTextColor(255, 255, 255)
		for _, c := range cols {
			pdf.CellFormat(colWidth, pdfRowHeight, text(fitText(pdf, c.Label, colWidth)), "1", 0, "L", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 8)
		pdf.SetTextColor(31, 41, 51)
	}

	pdf.AddPage()
	if doc.OrgName != "" {
		pdf.SetFont("Helvetica", "", 10)
		pdf.SetTextColor(82, 96, 109)
		pdf.CellFormat(0, 6, text(strings.ToUpper(doc.OrgName)), "", 1, "L", false, 0, "")
	}
	pdf.SetFont("Helvetica", "B", 16)
	pdf.SetTextColor(30, 58, 138)
	pdf.CellFormat(0, 9, text(doc.Title), "", 1, "L", false, 0, "")
	if doc.Subtitle != "" {
		pdf.SetFont("Helvetica", "", 10)
		pdf.SetTextColor(82, 96, 109)
		pdf.CellFormat(0, 6, text(doc.Subtitle), "", 1, "L", false, 0, "")
	}
	pdf.SetFont("Helvetica", "", 8)
	pdf.SetTextColor(123, 135, 148)
	pdf.CellFormat(0, 5, text("Generated "+utils.FormatDateTime(doc.GeneratedAt)), "", 1, "L", false, 0, "")
	pdf.Ln(3)
	tableHeader()

	bottom := pageHeight - pdfFooterRoom
	for i, line := range cells {
		if pdf.GetY()+pdfRowHeight > bottom {
			pdf.AddPage()
			tableHeader()
		}
		fill := i%2 == 1
		pdf.SetFillColor(245, 247, 250)
		for _, cell := range line {
			pdf.CellFormat(colWidth, pdfRowHeight, text(fitText(pdf, cell, colWidth)), "B", 0, "L", fill, 0, "")
		}
		pdf.Ln(-1)
	}

	if len(doc.Summary) > 0 {
		needed := float64(len(doc.Summary)+2) * 6
		if pdf.GetY()+needed > bottom {
			pdf.AddPage()
		}
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "B", 10)
		pdf.SetTextColor(31, 41, 51)
		pdf.CellFormat(0, 6, "Summary", "", 1, "L", false, 0, "")
		for _, s := range doc.Summary {
			pdf.SetFont("Helvetica", "", 9)
			pdf.CellFormat(60, 6, text(s.Label), "", 0, "L", false, 0, "")
			pdf.SetFont("Helvetica", "B", 9)
			pdf.CellFormat(60, 6, text(s.Display()), "", 1, "R", false, 0, "")
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// fitText shortens s with an ellipsis until it fits in width (with cell padding).
func fitText(pdf *fpdf.Fpdf, s string, width float64) string {
	limit := width - 2
	if pdf.GetStringWidth(s) <= limit {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && pdf.GetStringWidth(string(runes)+"...") > limit {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}
