// Package fees classifies settlement line items into the fee taxonomy and
// aggregates them per order.
package fees

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/waiwai/settlement-bridge/internal/domain"
	"github.com/waiwai/settlement-bridge/internal/logger"
)

type Bucket string

const (
	ItemPriceCredit         Bucket = "item_price_credit"
	PaymentFeeCorrection    Bucket = "payment_fee_correction"
	CommissionFeeCorrection Bucket = "commission_fee_correction"
	PaymentFee              Bucket = "payment_fee"
	Commission              Bucket = "commission"
	LostClaim               Bucket = "lost_claim"
	LazCoinsDiscount        Bucket = "lazcoins_discount"
	OtherIncome             Bucket = "other_income"
	OtherFees               Bucket = "other_fees"
)

// rules are evaluated top to bottom. Several labels contain others
// ("commission fee correction" contains "commission"), so the order must not
// change.
var rules = []struct {
	needle string
	bucket Bucket
}{
	{"item price credit", ItemPriceCredit},
	{"payment fee correction", PaymentFeeCorrection},
	{"commission fee correction", CommissionFeeCorrection},
	{"payment fee", PaymentFee},
	{"commission", Commission},
	{"lost claim", LostClaim},
	{"lazcoins discount", LazCoinsDiscount},
}

// Classify returns the bucket a fee label and amount fall into.
func Classify(feeName string, amount decimal.Decimal) Bucket {
	name := strings.ToLower(feeName)
	for _, r := range rules {
		if strings.Contains(name, r.needle) {
			return r.bucket
		}
	}
	if amount.IsPositive() {
		return OtherIncome
	}
	return OtherFees
}

// Add folds one amount into totals. Every bucket stores magnitudes except
// other income, which is positive by construction.
func Add(t *domain.SettlementTotals, b Bucket, amount decimal.Decimal) {
	abs := amount.Abs()
	switch b {
	case ItemPriceCredit:
		t.ItemPriceCredit = t.ItemPriceCredit.Add(abs)
	case PaymentFeeCorrection:
		t.PaymentFeeCorrection = t.PaymentFeeCorrection.Add(abs)
	case CommissionFeeCorrection:
		t.CommissionFeeCorrection = t.CommissionFeeCorrection.Add(abs)
	case PaymentFee:
		t.PaymentFee = t.PaymentFee.Add(abs)
	case Commission:
		t.Commission = t.Commission.Add(abs)
	case LostClaim:
		t.LostClaim = t.LostClaim.Add(abs)
	case LazCoinsDiscount:
		t.LazCoinsDiscount = t.LazCoinsDiscount.Add(abs)
	case OtherIncome:
		t.OtherIncome = t.OtherIncome.Add(amount)
	default:
		t.OtherFees = t.OtherFees.Add(abs)
	}
}

// Net computes the signed total from the component buckets. Fee corrections
// are tracked but do not move the net.
func Net(t domain.SettlementTotals) decimal.Decimal {
	return t.ItemPriceCredit.
		Add(t.OtherIncome).
		Add(t.LostClaim).
		Sub(t.PaymentFee).
		Sub(t.Commission).
		Sub(t.OtherFees).
		Sub(t.LazCoinsDiscount)
}

// AddLine folds one Makro Pro order line into totals. Whatever the
// marketplace kept beyond its commission is carried as the commission
// correction. A refunded line transfers nothing and its subtotal and
// deductions are also counted as refunded.
func AddLine(t *domain.SettlementTotals, l domain.OrderLine) {
	transferred := l.Transferred
	if l.Refunded() {
		transferred = decimal.Zero
	}
	kept := l.Subtotal.Sub(transferred).Sub(l.Commission)

	t.ItemPriceCredit = t.ItemPriceCredit.Add(l.Subtotal)
	t.Commission = t.Commission.Add(l.Commission)
	t.CommissionFeeCorrection = t.CommissionFeeCorrection.Add(kept)
	t.TotalAmount = t.TotalAmount.Add(transferred)
	if l.Refunded() {
		t.Refunded = t.Refunded.Add(l.Subtotal)
		t.RefundedDeductions = t.RefundedDeductions.Add(l.Commission.Add(kept))
	}
}

// Aggregator builds order totals from line items.
type Aggregator struct {
	log logger.Logger
}

func NewAggregator(log logger.Logger) *Aggregator {
	if log == nil {
		log = logger.NewNop()
	}
	return &Aggregator{log: log}
}

// Aggregate sums items into a single SettlementTotals regardless of order
// number. Order lines sum their transferred amounts into the total; fee
// rows derive it with Net.
func (a *Aggregator) Aggregate(items []domain.SettlementLineItem) domain.SettlementTotals {
	var t domain.SettlementTotals
	lines := 0
	for _, it := range items {
		if it.OrderLine != nil {
			AddLine(&t, *it.OrderLine)
			lines++
			continue
		}
		Add(&t, Classify(it.FeeName, it.Amount), it.Amount)
	}
	t.ItemCount = len(items)
	if lines == 0 {
		t.TotalAmount = Net(t)
	}
	return t
}

// GroupByOrder partitions items by order number, preserving first-seen
// order, and aggregates each group. The identity's date and item number come
// from the first item of the group.
func (a *Aggregator) GroupByOrder(items []domain.SettlementLineItem, merchantCode string) []domain.OrderSummary {
	index := make(map[string]int)
	var groups [][]domain.SettlementLineItem
	for _, it := range items {
		i, ok := index[it.OrderNo]
		if !ok {
			i = len(groups)
			index[it.OrderNo] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], it)
	}

	out := make([]domain.OrderSummary, 0, len(groups))
	for _, g := range groups {
		first := g[0]
		totals := a.Aggregate(g)
		out = append(out, domain.OrderSummary{
			Identity: domain.OrderIdentity{
				OrderNo:         first.OrderNo,
				MerchantCode:    merchantCode,
				TransactionDate: first.TransactionDate,
				OrderItemNo:     first.OrderItemNo,
				Source:          first.Source,
			},
			Totals: totals,
		})
		a.log.Debug("order totals calculated", map[string]interface{}{
			"order_no":     first.OrderNo,
			"item_count":   totals.ItemCount,
			"total_amount": totals.TotalAmount.String(),
		})
	}
	return out
}
