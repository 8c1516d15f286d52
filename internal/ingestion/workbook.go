package ingestion

import (
	"bytes"
	"fmt"
	"slices"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/waiwai/settlement-bridge/internal/domain"
)

// Column headers of the settlement export.
const (
	ColTransactionDate   = "Transaction Date"
	ColOrderNo           = "Order No."
	ColOrderItemNo       = "Order Item No."
	ColFeeName           = "Fee Name"
	ColAmount            = "Amount"
	ColDetails           = "Details"
	ColSellerSKU         = "Seller SKU"
	ColVATAmount         = "VAT in Amount"
	ColWHTAmount         = "WHT Amount"
	ColTransactionNumber = "Transaction Number"
	ColReference         = "Reference"
	ColComment           = "Comment"
)

// RequiredHeaders must appear in row 1. A missing one is reported as a
// warning only.
var RequiredHeaders = []string{ColTransactionDate, ColOrderNo, ColFeeName, ColAmount}

var optionalHeaders = []string{
	ColOrderItemNo, ColDetails, ColSellerSKU, ColVATAmount, ColWHTAmount,
	ColTransactionNumber, ColReference, ColComment,
}

// Layout is the header set of one marketplace export.
type Layout struct {
	Source   domain.Source
	Required []string
	Optional []string
}

var LazadaLayout = Layout{Source: domain.SourceLazada, Required: RequiredHeaders, Optional: optionalHeaders}

func (l Layout) known() []string {
	return append(append([]string{}, l.Required...), l.Optional...)
}

// LayoutFor returns the layout of src, Lazada unless src is Makro Pro.
func LayoutFor(src domain.Source) Layout {
	if src == domain.SourceMakro {
		return MakroLayout
	}
	return LazadaLayout
}

// RowRecord is one non-blank data row keyed by header text. Row is the
// 1-based sheet row number.
type RowRecord struct {
	Row    int
	Values map[string]string
}

// Get returns the trimmed cell under header, or "".
func (r RowRecord) Get(header string) string {
	return strings.TrimSpace(r.Values[header])
}

// Workbook is the first sheet of an uploaded settlement file.
type Workbook struct {
	Sheet          string
	Headers        []string
	MissingHeaders []string
	Rows           []RowRecord
}

// ReadWorkbook decodes a Lazada settlement xlsx buffer.
func ReadWorkbook(data []byte) (*Workbook, error) {
	return ReadLayout(data, LazadaLayout)
}

// ReadLayout decodes an xlsx buffer whose header row follows layout. Cells
// are read raw so date columns arrive as serial numbers rather than display
// text.
func ReadLayout(data []byte, layout Layout) (*Workbook, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, domain.ErrEmptyWorkbook
	}
	sheet := sheets[0]

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, domain.ErrEmptyWorkbook
	}
	if len(rows) < 2 {
		return nil, domain.ErrHeaderOnly
	}

	wb := &Workbook{Sheet: sheet}
	header := rows[0]
	for _, h := range header {
		wb.Headers = append(wb.Headers, strings.TrimSpace(h))
	}

	cols := mapColumns(wb.Headers, layout.known())
	for _, req := range layout.Required {
		if _, ok := cols[req]; !ok {
			wb.MissingHeaders = append(wb.MissingHeaders, req)
		}
	}

	for i, row := range rows[1:] {
		if blank(row) {
			continue
		}
		rec := RowRecord{Row: i + 2, Values: make(map[string]string, len(cols))}
		for name, idx := range cols {
			if idx < len(row) {
				rec.Values[name] = row[idx]
			}
		}
		wb.Rows = append(wb.Rows, rec)
	}
	if len(wb.Rows) == 0 {
		return nil, fmt.Errorf("%w: no usable rows", domain.ErrEmptyWorkbook)
	}
	return wb, nil
}

// mapColumns resolves each header name to its column index. Known headers
// match exactly first, then case-insensitively, then by substring of a
// header that is not itself a known name. Unknown headers keep their text.
func mapColumns(headers, known []string) map[string]int {
	cols := make(map[string]int, len(headers))
	for i, h := range headers {
		if h == "" {
			continue
		}
		if _, dup := cols[h]; !dup {
			cols[h] = i
		}
	}

	for _, name := range known {
		if _, ok := cols[name]; ok {
			continue
		}
		if i, ok := findHeader(headers, name, known); ok {
			cols[name] = i
		}
	}
	return cols
}

func findHeader(headers []string, name string, known []string) (int, bool) {
	for i, h := range headers {
		if strings.EqualFold(h, name) {
			return i, true
		}
	}
	lname := strings.ToLower(name)
	for i, h := range headers {
		if h == "" || slices.Contains(known, h) {
			continue
		}
		if strings.Contains(strings.ToLower(h), lname) {
			return i, true
		}
	}
	return 0, false
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
