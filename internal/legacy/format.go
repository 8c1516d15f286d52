package legacy

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/waiwai/settlement-bridge/internal/dates"
	"github.com/waiwai/settlement-bridge/internal/domain"
	"github.com/waiwai/settlement-bridge/internal/logger"
)

// Formatter maps order totals onto the fixed ledger layout.
type Formatter struct {
	orderNoLimit int
	loc          *time.Location
	now          func() time.Time
	log          logger.Logger
}

// NewFormatter stamps transfer date and time in loc.
func NewFormatter(orderNoLimit int, loc *time.Location, log logger.Logger) *Formatter {
	if orderNoLimit <= 0 {
		orderNoLimit = domain.LegacyOrderNoLimit
	}
	if loc == nil {
		loc = time.Local
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Formatter{orderNoLimit: orderNoLimit, loc: loc, now: time.Now, log: log}
}

// WithClock replaces the clock used for the transfer stamp.
func (f *Formatter) WithClock(now func() time.Time) *Formatter {
	c := *f
	c.now = now
	return &c
}

// TruncateOrderNo cuts orderNo to the ledger width and logs when it had to.
func (f *Formatter) TruncateOrderNo(orderNo string) string {
	return f.ledgerOrderNo(domain.OrderIdentity{OrderNo: orderNo})
}

func (f *Formatter) ledgerOrderNo(id domain.OrderIdentity) string {
	out := domain.LedgerOrderNo(id, f.orderNoLimit)
	if out != id.OrderNo {
		f.log.Info("order no truncated for legacy ledger", map[string]interface{}{
			"original":  id.OrderNo,
			"truncated": out,
		})
	}
	return out
}

// Format builds one ledger record. NetTransferAmount keeps the sign of the
// order total; every other amount is a magnitude. The bill amount and total
// deductions exclude the LazCoins discount, which is carried on its own
// column.
func (f *Formatter) Format(t domain.SettlementTotals, id domain.OrderIdentity, sequence int) domain.LegacyLedgerRecord {
	if id.Source == domain.SourceMakro {
		return f.formatOrderLines(t, id, sequence)
	}
	now := f.now().In(f.loc)

	bill := t.ItemPriceCredit.Abs().Add(t.OtherIncome.Abs()).Add(t.LostClaim.Abs())
	deductions := t.PaymentFee.Abs().Add(t.Commission.Abs()).Add(t.OtherFees.Abs())

	rec := domain.LegacyLedgerRecord{
		Sequence:                fmt.Sprintf("%04d", sequence),
		MerchantCode:            id.MerchantCode,
		OrderNo:                 f.ledgerOrderNo(id),
		TransactionDate:         dates.Compact(id.TransactionDate),
		LostClaim:               t.LostClaim.Abs(),
		Reserved1:               decimal.Zero,
		Reserved2:               decimal.Zero,
		Reserved3:               decimal.Zero,
		Reserved4:               decimal.Zero,
		LazCoinsDiscount:        t.LazCoinsDiscount.Abs(),
		OtherFees:               t.OtherFees.Abs(),
		Commission:              t.Commission.Abs(),
		CommissionFeeCorrection: t.CommissionFeeCorrection.Abs(),
		PaymentFeeCorrection:    t.PaymentFeeCorrection.Abs(),
		PaymentFee:              t.PaymentFee.Abs(),
		TotalDeductions:         deductions,
		NetTransferAmount:       t.TotalAmount,
		BillAmount:              bill,
		TransferDate:            now.Format("20060102"),
		TransferTime:            now.Format("150405"),
	}

	f.log.Debug("ledger record formatted", map[string]interface{}{
		"oseq":  rec.Sequence,
		"opbil": rec.OrderNo,
		"otram": rec.NetTransferAmount.String(),
		"otamt": rec.TotalDeductions.String(),
	})
	return rec
}

// formatOrderLines builds a Makro Pro ledger record. ORTNA and OSCAM carry
// the refunded subtotal and deductions, OCOM2 what was kept beyond the
// commission. The service and fee columns stay zero.
func (f *Formatter) formatOrderLines(t domain.SettlementTotals, id domain.OrderIdentity, sequence int) domain.LegacyLedgerRecord {
	now := f.now().In(f.loc)

	rec := domain.LegacyLedgerRecord{
		Sequence:                fmt.Sprintf("%04d", sequence),
		MerchantCode:            id.MerchantCode,
		OrderNo:                 f.ledgerOrderNo(id),
		TransactionDate:         dates.Compact(id.TransactionDate),
		LostClaim:               t.Refunded.Abs(),
		Reserved1:               t.RefundedDeductions.Abs(),
		Reserved2:               decimal.Zero,
		Reserved3:               decimal.Zero,
		Reserved4:               decimal.Zero,
		LazCoinsDiscount:        decimal.Zero,
		OtherFees:               decimal.Zero,
		Commission:              t.Commission.Abs(),
		CommissionFeeCorrection: t.CommissionFeeCorrection.Abs(),
		PaymentFeeCorrection:    decimal.Zero,
		PaymentFee:              decimal.Zero,
		TotalDeductions:         t.Commission.Abs().Add(t.CommissionFeeCorrection.Abs()),
		NetTransferAmount:       t.TotalAmount,
		BillAmount:              t.ItemPriceCredit.Abs(),
		TransferDate:            now.Format("20060102"),
		TransferTime:            now.Format("150405"),
	}

	f.log.Debug("ledger record formatted", map[string]interface{}{
		"oseq":   rec.Sequence,
		"opbil":  rec.OrderNo,
		"source": string(id.Source),
		"otram":  rec.NetTransferAmount.String(),
		"otamt":  rec.TotalDeductions.String(),
	})
	return rec
}

// FormatAll formats orders with sequence numbers 1..N in input order.
func (f *Formatter) FormatAll(orders []domain.OrderSummary) []domain.LegacyLedgerRecord {
	out := make([]domain.LegacyLedgerRecord, len(orders))
	for i, o := range orders {
		out[i] = f.Format(o.Totals, o.Identity, i+1)
	}
	return out
}
