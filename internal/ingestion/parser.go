package ingestion

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/waiwai/settlement-bridge/internal/dates"
	"github.com/waiwai/settlement-bridge/internal/domain"
	"github.com/waiwai/settlement-bridge/internal/logger"
)

// ParseResult holds the typed items of a parse plus per-row problems.
// Errors are rows that were rejected; Warnings are rows that were kept with
// a substituted value.
type ParseResult struct {
	Items    []domain.SettlementLineItem
	Errors   []string
	Warnings []string
}

// Parser converts raw sheet rows into settlement line items.
type Parser struct {
	dates *dates.Normalizer
	log   logger.Logger
}

func NewParser(norm *dates.Normalizer, log logger.Logger) *Parser {
	if log == nil {
		log = logger.NewNop()
	}
	return &Parser{dates: norm, log: log}
}

// ParseRows handles every row independently. A row without an order number,
// fee name, amount or transaction date is rejected with an indexed error.
func (p *Parser) ParseRows(rows []RowRecord) ParseResult {
	var res ParseResult
	if len(rows) == 0 {
		res.Errors = append(res.Errors, domain.ErrNoRecords.Error())
		return res
	}

	for _, row := range rows {
		orderNo := row.Get(ColOrderNo)
		feeName := row.Get(ColFeeName)
		amountRaw := row.Get(ColAmount)
		if orderNo == "" || feeName == "" || amountRaw == "" {
			res.Errors = append(res.Errors, fmt.Sprintf("row %d: incomplete data, missing Order No., Fee Name or Amount", row.Row))
			continue
		}

		rawDate := row.Get(ColTransactionDate)
		if rawDate == "" {
			res.Errors = append(res.Errors, fmt.Sprintf("row %d: missing transaction date", row.Row))
			continue
		}
		txDate, err := p.dates.Normalize(rawDate)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("row %d: %v, using %s", row.Row, err, dates.Key(txDate)))
			p.log.Warn("transaction date fallback", map[string]interface{}{
				"row":   row.Row,
				"value": rawDate,
				"err":   err,
			})
		}

		res.Items = append(res.Items, domain.SettlementLineItem{
			Row:               row.Row,
			OrderNo:           orderNo,
			OrderItemNo:       row.Get(ColOrderItemNo),
			TransactionDate:   txDate,
			FeeName:           feeName,
			Amount:            p.amount(row.Row, amountRaw),
			Details:           row.Get(ColDetails),
			SellerSKU:         row.Get(ColSellerSKU),
			VATAmount:         optionalAmount(row.Get(ColVATAmount)),
			WHTAmount:         optionalAmount(row.Get(ColWHTAmount)),
			TransactionNumber: row.Get(ColTransactionNumber),
			Reference:         row.Get(ColReference),
			Comment:           row.Get(ColComment),
		})
	}

	p.log.Info("rows parsed", map[string]interface{}{
		"total":  len(rows),
		"valid":  len(res.Items),
		"errors": len(res.Errors),
	})
	return res
}

// amount coerces a cell to a signed decimal. Unparseable text becomes zero.
func (p *Parser) amount(row int, raw string) decimal.Decimal {
	v, err := parseDecimal(raw)
	if err != nil {
		p.log.Debug("amount defaulted to zero", map[string]interface{}{"row": row, "value": raw})
		return decimal.Zero
	}
	return v
}

func optionalAmount(raw string) *decimal.Decimal {
	if raw == "" {
		return nil
	}
	v, err := parseDecimal(raw)
	if err != nil {
		return nil
	}
	return &v
}

// parseDecimal accepts thousands separators and accounting parentheses.
func parseDecimal(raw string) (decimal.Decimal, error) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	if neg {
		v = v.Neg()
	}
	return v, nil
}
