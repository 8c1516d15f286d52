package ingestion

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/waiwai/settlement-bridge/internal/dates"
	"github.com/waiwai/settlement-bridge/internal/domain"
)

// Column headers of the Makro Pro payment export.
const (
	ColMakroOrderNo       = "Order number"
	ColMakroCreated       = "Date created"
	ColMakroStatus        = "สถานะของคำสั่งซื้อ"
	ColMakroSubtotal      = "ยอดรวมย่อยของสินค้า (รวมภาษี)"
	ColMakroCommission    = "Commission (excluding taxes)"
	ColMakroTransferred   = "Amount transferred" // followed by the shop name
	ColMakroInvoiceNo     = "เลขที่ใบแจ้งหนี้"
	ColMakroProduct       = "สินค้า"
	ColMakroProductSKU    = "Product SKU"
	ColMakroCommissionTax = "ภาษีคิดจากค่าคอมมิชชั่น"
)

var makroRequired = []string{
	ColMakroOrderNo, ColMakroCreated, ColMakroStatus,
	ColMakroSubtotal, ColMakroCommission, ColMakroTransferred,
}

var makroOptional = []string{ColMakroInvoiceNo, ColMakroProduct, ColMakroProductSKU, ColMakroCommissionTax}

var MakroLayout = Layout{Source: domain.SourceMakro, Required: makroRequired, Optional: makroOptional}

// ParseMakroRows turns Makro Pro payment rows into order-line items, one per
// row. A row without an order number or creation date is rejected; missing
// money cells count as zero. Refunded rows keep their subtotal but transfer
// nothing.
func (p *Parser) ParseMakroRows(rows []RowRecord) ParseResult {
	var res ParseResult
	if len(rows) == 0 {
		res.Errors = append(res.Errors, domain.ErrNoRecords.Error())
		return res
	}

	for _, row := range rows {
		orderNo := row.Get(ColMakroOrderNo)
		if orderNo == "" {
			res.Errors = append(res.Errors, fmt.Sprintf("row %d: missing %s", row.Row, ColMakroOrderNo))
			continue
		}
		rawDate := row.Get(ColMakroCreated)
		if rawDate == "" {
			res.Errors = append(res.Errors, fmt.Sprintf("row %d: missing %s", row.Row, ColMakroCreated))
			continue
		}
		created, err := p.dates.Normalize(rawDate)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("row %d: %v, using %s", row.Row, err, dates.Key(created)))
			p.log.Warn("creation date fallback", map[string]interface{}{
				"row":   row.Row,
				"value": rawDate,
				"err":   err,
			})
		}

		line := &domain.OrderLine{
			Status:      row.Get(ColMakroStatus),
			Subtotal:    p.amount(row.Row, row.Get(ColMakroSubtotal)),
			Commission:  p.amount(row.Row, row.Get(ColMakroCommission)),
			Transferred: p.amount(row.Row, row.Get(ColMakroTransferred)),
		}
		if line.Refunded() {
			line.Transferred = decimal.Zero
		}

		res.Items = append(res.Items, domain.SettlementLineItem{
			Row:             row.Row,
			Source:          domain.SourceMakro,
			OrderNo:         orderNo,
			TransactionDate: created,
			FeeName:         line.Status,
			Amount:          line.Transferred,
			Details:         row.Get(ColMakroProduct),
			SellerSKU:       row.Get(ColMakroProductSKU),
			VATAmount:       optionalAmount(row.Get(ColMakroCommissionTax)),
			Reference:       row.Get(ColMakroInvoiceNo),
			OrderLine:       line,
		})
	}

	p.log.Info("makro rows parsed", map[string]interface{}{
		"total":  len(rows),
		"valid":  len(res.Items),
		"errors": len(res.Errors),
	})
	return res
}
