package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Source names the marketplace export layout a settlement file uses.
type Source string

const (
	SourceLazada Source = "lazada"
	SourceMakro  Source = "makro"
)

// MakroRefundedStatus is the order status Makro Pro gives refunded orders.
const MakroRefundedStatus = "คืนเงินไปแล้ว"

// MakroOrderPrefixLen is the length of the marketplace prefix Makro Pro puts
// in front of order numbers. The ledger keeps the order number without it.
const MakroOrderPrefixLen = 5

// OrderLine holds the money columns of exports that report a whole order
// line in one row rather than one row per fee.
type OrderLine struct {
	Status      string          `json:"status"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Commission  decimal.Decimal `json:"commission"`
	Transferred decimal.Decimal `json:"transferred"`
}

// Refunded reports whether the line was refunded to the buyer.
func (l OrderLine) Refunded() bool {
	return l.Status == MakroRefundedStatus
}

// SettlementLineItem is one parsed row of a marketplace settlement export.
// Lazada rows carry one fee in FeeName and Amount; Makro Pro rows carry an
// OrderLine instead.
type SettlementLineItem struct {
	Row               int              `json:"row"`
	Source            Source           `json:"source,omitempty"`
	OrderNo           string           `json:"order_no"`
	OrderItemNo       string           `json:"order_item_no,omitempty"`
	TransactionDate   time.Time        `json:"transaction_date"`
	FeeName           string           `json:"fee_name"`
	Amount            decimal.Decimal  `json:"amount"`
	Details           string           `json:"details,omitempty"`
	SellerSKU         string           `json:"seller_sku,omitempty"`
	VATAmount         *decimal.Decimal `json:"vat_amount,omitempty"`
	WHTAmount         *decimal.Decimal `json:"wht_amount,omitempty"`
	TransactionNumber string           `json:"transaction_number,omitempty"`
	Reference         string           `json:"reference,omitempty"`
	Comment           string           `json:"comment,omitempty"`
	OrderLine         *OrderLine       `json:"order_line,omitempty"`
}

// SettlementTotals is the per-order aggregate of classified line items.
// Every component is a magnitude; TotalAmount is the only signed field.
type SettlementTotals struct {
	ItemPriceCredit         decimal.Decimal `json:"item_price_credit"`
	PaymentFee              decimal.Decimal `json:"payment_fee"`
	Commission              decimal.Decimal `json:"commission"`
	PaymentFeeCorrection    decimal.Decimal `json:"payment_fee_correction"`
	CommissionFeeCorrection decimal.Decimal `json:"commission_fee_correction"`
	LostClaim               decimal.Decimal `json:"lost_claim"`
	OtherFees               decimal.Decimal `json:"other_fees"`
	OtherIncome             decimal.Decimal `json:"other_income"`
	LazCoinsDiscount        decimal.Decimal `json:"lazcoins_discount"`
	Refunded                decimal.Decimal `json:"refunded"`
	RefundedDeductions      decimal.Decimal `json:"refunded_deductions"`
	TotalAmount             decimal.Decimal `json:"total_amount"`
	ItemCount               int             `json:"item_count"`
}

// OrderIdentity is the composite natural key used for duplicate detection.
type OrderIdentity struct {
	OrderNo         string    `json:"order_no"`
	MerchantCode    string    `json:"merchant_code"`
	TransactionDate time.Time `json:"transaction_date"`
	OrderItemNo     string    `json:"order_item_no,omitempty"`
	Source          Source    `json:"source,omitempty"`
}

// DateKey returns the calendar date of the identity as YYYY-MM-DD in the
// location the date was normalized into.
func (id OrderIdentity) DateKey() string {
	return id.TransactionDate.Format("2006-01-02")
}

// BaseKey is orderNo|merchantCode|date.
func (id OrderIdentity) BaseKey() string {
	return id.OrderNo + "|" + id.MerchantCode + "|" + id.DateKey()
}

// Key is orderNo|merchantCode|date|orderItemNo.
func (id OrderIdentity) Key() string {
	return id.BaseKey() + "|" + id.OrderItemNo
}

// OrderSummary pairs an order identity with its aggregated totals.
type OrderSummary struct {
	Identity OrderIdentity    `json:"identity"`
	Totals   SettlementTotals `json:"totals"`
}

// Merchant is a storefront account that settlement files are uploaded for.
type Merchant struct {
	StoreType string `json:"store_type" yaml:"store_type" validate:"required"`
	Code      string `json:"code" yaml:"code" validate:"required"`
	Name      string `json:"name" yaml:"name"`
	Source    Source `json:"source,omitempty" yaml:"source" validate:"omitempty,oneof=lazada makro"`
}

// SourceOf returns the export layout of the merchant, Lazada unless set.
func (m Merchant) SourceOf() Source {
	if m.Source == "" {
		return SourceLazada
	}
	return m.Source
}
