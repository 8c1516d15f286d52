// Package export renders formatted ledger records as a downloadable workbook.
package export

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/waiwai/settlement-bridge/internal/domain"
)

// SheetName is the single sheet of every export.
const SheetName = "ExportData"

// ContentType is the MIME type of Write's output.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Column maps a ledger field to its display label.
type Column struct {
	Field string
	Label string
}

// DefaultHeaders is the label table used by the finance team, in sheet order.
var DefaultHeaders = []Column{
	{"oseq", "ลำดับ"},
	{"opbil", "Order No."},
	{"opcus", "รหัส"},
	{"ocom1", "ค่าคอม"},
	{"ocom2", "Vat ค่าคอม"},
	{"obamt", "ยอดในบิล"},
	{"opmdt", "วันที่โอนเงิน"},
	{"ortna", "คำสั่งซื้อที่คืนให้ลูกค้า"},
	{"oscam", "ค่าคอม คำสั่งซื้อที่คืนเงิน"},
	{"otamt", "ค่าคอม + Vat ค่าคอม"},
	{"otdte", "วันที่โอน"},
	{"otime", "เวลาที่โอน"},
	{"otram", "ยอดเงินที่ได้รับจริง"},
}

// Write builds an xlsx workbook with a header row from headers followed by
// one row per record. Unknown fields are left blank.
func Write(records []domain.LegacyLedgerRecord, headers []Column) ([]byte, error) {
	if len(headers) == 0 {
		headers = DefaultHeaders
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	labels := make([]interface{}, len(headers))
	for i, h := range headers {
		labels[i] = h.Label
	}
	if err := f.SetSheetRow(SheetName, "A1", &labels); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}
	if err := f.SetRowStyle(SheetName, 1, 1, style); err != nil {
		return nil, fmt.Errorf("apply header style: %w", err)
	}

	for i, rec := range records {
		row := make([]interface{}, len(headers))
		for j, h := range headers {
			row[j] = cellValue(rec, h.Field)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encode workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func cellValue(r domain.LegacyLedgerRecord, field string) interface{} {
	switch field {
	case "oseq":
		return r.Sequence
	case "opcus":
		return r.MerchantCode
	case "opbil":
		return r.OrderNo
	case "opmdt":
		return r.TransactionDate
	case "ortna":
		return num(r.LostClaim)
	case "oscam":
		return num(r.Reserved1)
	case "osbam":
		return num(r.Reserved2)
	case "ostam":
		return num(r.Reserved3)
	case "osaam":
		return num(r.Reserved4)
	case "orsam":
		return num(r.LazCoinsDiscount)
	case "osram":
		return num(r.OtherFees)
	case "ocom1":
		return num(r.Commission)
	case "ocom2":
		return num(r.CommissionFeeCorrection)
	case "oserv":
		return num(r.PaymentFeeCorrection)
	case "otrans":
		return num(r.PaymentFee)
	case "otamt":
		return num(r.TotalDeductions)
	case "otram":
		return num(r.NetTransferAmount)
	case "obamt":
		return num(r.BillAmount)
	case "otdte":
		return r.TransferDate
	case "otime":
		return r.TransferTime
	}
	return nil
}

func num(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}
