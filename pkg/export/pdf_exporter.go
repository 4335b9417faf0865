package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// PDFExporter renders a Dataset into a printable timetable. The page is
// landscape because a week of periods is wider than it is tall. When the
// dataset carries a SectionKey, rows are grouped under a banner per
// section (one banner per day) and the section column is dropped from
// the table body.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates a PDF document with an optional title and table body.
func (e *PDFExporter) Render(data Dataset, title string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	if title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, strings.ToUpper(title), "", 1, "C", false, 0, "")
		pdf.Ln(3)
	}

	headers := data.Headers
	if data.SectionKey != "" {
		headers = withoutHeader(headers, data.SectionKey)
	}
	widths := columnWidths(headers, 277.0)

	if data.SectionKey == "" {
		e.renderTable(pdf, headers, widths, data.Rows)
		return output(pdf)
	}

	var section string
	var pending []map[string]string
	flush := func() {
		if len(pending) == 0 {
			return
		}
		pdf.SetFont("Arial", "B", 11)
		pdf.SetFillColor(230, 230, 230)
		pdf.CellFormat(0, 8, titleCase(section), "1", 1, "L", true, 0, "")
		e.renderTable(pdf, headers, widths, pending)
		pdf.Ln(3)
		pending = pending[:0]
	}
	for _, row := range data.Rows {
		if row[data.SectionKey] != section {
			flush()
			section = row[data.SectionKey]
		}
		pending = append(pending, row)
	}
	flush()

	return output(pdf)
}

func (e *PDFExporter) renderTable(pdf *gofpdf.Fpdf, headers []string, widths []float64, rows []map[string]string) {
	pdf.SetFont("Arial", "B", 10)
	for i, header := range headers {
		pdf.CellFormat(widths[i], 8, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, row := range rows {
		for i, header := range headers {
			pdf.CellFormat(widths[i], 7, row[header], "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}
}

// columnWidths spreads the usable page width across columns, giving the
// name-bearing columns twice the share of the narrow numeric ones.
func columnWidths(headers []string, usable float64) []float64 {
	weights := make([]float64, len(headers))
	total := 0.0
	for i, header := range headers {
		w := 1.0
		switch strings.ToLower(header) {
		case "class", "subject", "teacher", "room":
			w = 2.0
		}
		weights[i] = w
		total += w
	}
	widths := make([]float64, len(headers))
	for i, w := range weights {
		widths[i] = usable * w / total
	}
	return widths
}

func withoutHeader(headers []string, drop string) []string {
	out := make([]string, 0, len(headers))
	for _, h := range headers {
		if h != drop {
			out = append(out, h)
		}
	}
	return out
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func output(pdf *gofpdf.Fpdf) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
