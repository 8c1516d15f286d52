package domain

import "github.com/shopspring/decimal"

// LegacyLedgerRecord is one row of the legacy ERP settlement ledger. Field
// order matches LegacyColumns. NetTransferAmount is the only field that may
// be negative.
type LegacyLedgerRecord struct {
	Sequence                string          `json:"oseq"`
	MerchantCode            string          `json:"opcus"`
	OrderNo                 string          `json:"opbil"`
	TransactionDate         string          `json:"opmdt"`
	LostClaim               decimal.Decimal `json:"ortna"`
	Reserved1               decimal.Decimal `json:"oscam"`
	Reserved2               decimal.Decimal `json:"osbam"`
	Reserved3               decimal.Decimal `json:"ostam"`
	Reserved4               decimal.Decimal `json:"osaam"`
	LazCoinsDiscount        decimal.Decimal `json:"orsam"`
	OtherFees               decimal.Decimal `json:"osram"`
	Commission              decimal.Decimal `json:"ocom1"`
	CommissionFeeCorrection decimal.Decimal `json:"ocom2"`
	PaymentFeeCorrection    decimal.Decimal `json:"oserv"`
	PaymentFee              decimal.Decimal `json:"otrans"`
	TotalDeductions         decimal.Decimal `json:"otamt"`
	NetTransferAmount       decimal.Decimal `json:"otram"`
	BillAmount              decimal.Decimal `json:"obamt"`
	TransferDate            string          `json:"otdte"`
	TransferTime            string          `json:"otime"`
}

// LegacyColumns lists the ledger table columns in insert order.
var LegacyColumns = []string{
	"OSEQ", "OPCUS", "OPBIL", "OPMDT", "ORTNA", "OSCAM", "OSBAM", "OSTAM", "OSAAM", "ORSAM",
	"OSRAM", "OCOM1", "OCOM2", "OSERV", "OTRANS", "OTAMT", "OTRAM", "OBAMT", "OTDTE", "OTIME",
}

// Values returns the insert parameters in LegacyColumns order.
func (r LegacyLedgerRecord) Values() []any {
	return []any{
		r.Sequence, r.MerchantCode, r.OrderNo, r.TransactionDate,
		r.LostClaim, r.Reserved1, r.Reserved2, r.Reserved3, r.Reserved4,
		r.LazCoinsDiscount, r.OtherFees, r.Commission, r.CommissionFeeCorrection,
		r.PaymentFeeCorrection, r.PaymentFee, r.TotalDeductions, r.NetTransferAmount,
		r.BillAmount, r.TransferDate, r.TransferTime,
	}
}

// LedgerRow is the subset of a ledger row returned by duplicate lookups.
type LedgerRow struct {
	Sequence          string          `json:"oseq"`
	MerchantCode      string          `json:"opcus"`
	OrderNo           string          `json:"opbil"`
	TransactionDate   string          `json:"opmdt"`
	NetTransferAmount decimal.Decimal `json:"otram"`
	BillAmount        decimal.Decimal `json:"obamt"`
}

// RecordOutcome is the insert result of one ledger record.
type RecordOutcome struct {
	Index   int    `json:"index"`
	OrderNo string `json:"order_no"`
	Err     error  `json:"-"`
}

// TransferResult summarises one transfer batch.
type TransferResult struct {
	Success         bool            `json:"success"`
	RecordsInserted int             `json:"records_inserted"`
	RecordsSkipped  int             `json:"records_skipped,omitempty"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	Details         []string        `json:"details,omitempty"`
	Outcomes        []RecordOutcome `json:"-"`
}

// LegacyOrderNoLimit is the width of the ledger order number column.
const LegacyOrderNoLimit = 15

// LedgerOrderNo is the OPBIL value for id: Makro Pro order numbers lose
// their marketplace prefix, then every order number is cut to limit.
func LedgerOrderNo(id OrderIdentity, limit int) string {
	no := id.OrderNo
	if id.Source == SourceMakro {
		if r := []rune(no); len(r) > MakroOrderPrefixLen {
			no = string(r[MakroOrderPrefixLen:])
		}
	}
	return TruncateOrderNo(no, limit)
}

// TruncateOrderNo cuts s to at most limit characters.
func TruncateOrderNo(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
