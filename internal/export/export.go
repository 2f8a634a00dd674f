// Package export renders tabular data as CSV, spreadsheet or PDF.
//
// Every renderer accepts a table with zero rows and produces a valid,
// header-only document.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/xuri/excelize/v2"

	"gestionale/pkg/money"
)

const (
	// MaxRows caps every unpaginated export.
	MaxRows = 5000

	pdfMaxRows = 200
	pdfLineMax = 110
)

// Format is an export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

// ParseFormat defaults an empty value to CSV.
func ParseFormat(s string) (Format, bool) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatCSV, true
	case FormatCSV, FormatXLSX, FormatPDF:
		return f, true
	}
	return "", false
}

func (f Format) ContentType() string {
	switch f {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		return "application/pdf"
	default:
		return "text/csv; charset=utf-8"
	}
}

// Filename returns base with the format extension.
func (f Format) Filename(base string) string {
	return base + "." + string(f)
}

// Table is an ordered set of columns and rows keyed by column name.
type Table struct {
	Columns []string
	Rows    []map[string]any
}

// Render dispatches on f. Sheet names the XLSX sheet; title heads the PDF.
func Render(t Table, f Format, sheet, title string) ([]byte, error) {
	switch f {
	case FormatXLSX:
		return XLSX(t, sheet)
	case FormatPDF:
		return PDF(t, title)
	default:
		return CSV(t)
	}
}

// CSV writes the header row followed by one record per row.
func CSV(t Table) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(t.Columns); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	record := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i, col := range t.Columns {
			record[i] = text(row[col])
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// XLSX writes the table to a workbook with a single sheet named sheet.
func XLSX(t Table, sheet string) ([]byte, error) {
	if sheet == "" {
		sheet = "Sheet1"
	}
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("name sheet: %w", err)
	}
	header := make([]any, len(t.Columns))
	for i, col := range t.Columns {
		header[i] = col
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for r, row := range t.Rows {
		values := make([]any, len(t.Columns))
		for i, col := range t.Columns {
			values[i] = cell(row[col])
		}
		axis, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, axis, &values); err != nil {
			return nil, fmt.Errorf("write row %d: %w", r+1, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// PDF renders a landscape A4 listing: the title, the header joined by " | ",
// then at most 200 rows, each clamped to one line.
func PDF(t Table, title string) ([]byte, error) {
	if len(t.Rows) == 0 {
		return Document(title, []string{"Nessun dato."})
	}
	lines := make([]string, 0, min(len(t.Rows), pdfMaxRows)+1)
	lines = append(lines, strings.Join(t.Columns, " | "))
	for _, row := range t.Rows[:min(len(t.Rows), pdfMaxRows)] {
		values := make([]string, len(t.Columns))
		for i, col := range t.Columns {
			values[i] = text(row[col])
		}
		lines = append(lines, clamp(strings.Join(values, " | "), pdfLineMax))
	}
	return Document(title, lines)
}

// Document renders a title followed by plain text lines.
func Document(title string, lines []string) ([]byte, error) {
	pdf := fpdf.New("L", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, tr(title), "", 1, "L", false, 0, "")
	pdf.Ln(4)
	pdf.SetFont("Helvetica", "", 9)
	for _, line := range lines {
		pdf.CellFormat(0, 5, tr(line), "", 1, "L", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case *string:
		if x == nil {
			return ""
		}
		return *x
	case time.Time:
		if x.IsZero() {
			return ""
		}
		return x.UTC().Format(time.RFC3339)
	case *time.Time:
		if x == nil {
			return ""
		}
		return text(*x)
	case float64:
		return fmt.Sprintf("%.2f", x)
	default:
		return fmt.Sprint(x)
	}
}

// cell keeps numbers numeric in spreadsheets.
func cell(v any) any {
	switch x := v.(type) {
	case money.Cents:
		return x.Float()
	case int, int64, float64, bool:
		return x
	default:
		return text(v)
	}
}

func clamp(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
