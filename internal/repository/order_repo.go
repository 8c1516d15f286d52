package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/waiwai/settlement-bridge/internal/domain"
)

const orderColumns = `id, order_no, order_item_no, opcus, transaction_date, store_type, batch_id,
	item_price_credit, payment_fee, commission, payment_fee_correction, commission_fee_correction,
	lost_claim, other_fees, other_income, lazcoins_discount, total_amount, as400_sent_at, created_at`

type orderRow struct {
	ID                      string          `db:"id"`
	OrderNo                 string          `db:"order_no"`
	OrderItemNo             string          `db:"order_item_no"`
	MerchantCode            string          `db:"opcus"`
	TransactionDate         string          `db:"transaction_date"`
	StoreType               string          `db:"store_type"`
	BatchID                 sql.NullString  `db:"batch_id"`
	ItemPriceCredit         decimal.Decimal `db:"item_price_credit"`
	PaymentFee              decimal.Decimal `db:"payment_fee"`
	Commission              decimal.Decimal `db:"commission"`
	PaymentFeeCorrection    decimal.Decimal `db:"payment_fee_correction"`
	CommissionFeeCorrection decimal.Decimal `db:"commission_fee_correction"`
	LostClaim               decimal.Decimal `db:"lost_claim"`
	OtherFees               decimal.Decimal `db:"other_fees"`
	OtherIncome             decimal.Decimal `db:"other_income"`
	LazCoinsDiscount        decimal.Decimal `db:"lazcoins_discount"`
	TotalAmount             decimal.Decimal `db:"total_amount"`
	SentAt                  sql.NullString  `db:"as400_sent_at"`
	CreatedAt               string          `db:"created_at"`
}

func (r orderRow) toDomain() (domain.MainRecord, error) {
	txDate, err := parseTime(r.TransactionDate)
	if err != nil {
		return domain.MainRecord{}, err
	}
	created, err := parseTime(r.CreatedAt)
	if err != nil {
		return domain.MainRecord{}, err
	}
	rec := domain.MainRecord{
		ID:              r.ID,
		OrderNo:         r.OrderNo,
		OrderItemNo:     r.OrderItemNo,
		MerchantCode:    r.MerchantCode,
		TransactionDate: txDate,
		StoreType:       r.StoreType,
		BatchID:         r.BatchID.String,
		TotalAmount:     r.TotalAmount,
		CreatedAt:       created,
		Totals: domain.SettlementTotals{
			ItemPriceCredit:         r.ItemPriceCredit,
			PaymentFee:              r.PaymentFee,
			Commission:              r.Commission,
			PaymentFeeCorrection:    r.PaymentFeeCorrection,
			CommissionFeeCorrection: r.CommissionFeeCorrection,
			LostClaim:               r.LostClaim,
			OtherFees:               r.OtherFees,
			OtherIncome:             r.OtherIncome,
			LazCoinsDiscount:        r.LazCoinsDiscount,
			TotalAmount:             r.TotalAmount,
		},
	}
	if r.SentAt.Valid {
		t, err := parseTime(r.SentAt.String)
		if err != nil {
			return domain.MainRecord{}, err
		}
		rec.SentAt = &t
	}
	return rec, nil
}

// OrderRepo is the main ledger of processed orders.
type OrderRepo struct {
	db *sqlx.DB
}

func NewOrderRepo(db *sqlx.DB) *OrderRepo {
	return &OrderRepo{db: db}
}

// FindOrder returns the first order matching q, or nil.
func (r *OrderRepo) FindOrder(ctx context.Context, q domain.MainStoreQuery) (*domain.MainRecord, error) {
	query := `SELECT ` + orderColumns + ` FROM lazada_payment_main
		WHERE order_no = ? AND opcus = ? AND transaction_date >= ? AND transaction_date <= ?`
	args := []any{q.OrderNo, q.MerchantCode, formatTime(q.From), formatTime(q.To)}
	if q.OrderItemNo != "" {
		query += ` AND order_item_no = ?`
		args = append(args, q.OrderItemNo)
	}
	query += ` ORDER BY created_at LIMIT 1`

	var row orderRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find order %s: %w", q.OrderNo, err)
	}
	rec, err := row.toDomain()
	if err != nil {
		return nil, fmt.Errorf("scan order %s: %w", q.OrderNo, err)
	}
	return &rec, nil
}

// FindOrdersBulk returns every order matching any of qs in one query. The
// item number of each query is ignored; callers filter on it.
func (r *OrderRepo) FindOrdersBulk(ctx context.Context, qs []domain.MainStoreQuery) ([]domain.MainRecord, error) {
	if len(qs) == 0 {
		return nil, nil
	}

	conds := make([]string, 0, len(qs))
	args := make([]any, 0, len(qs)*4)
	for _, q := range qs {
		conds = append(conds, `(order_no = ? AND opcus = ? AND transaction_date >= ? AND transaction_date <= ?)`)
		args = append(args, q.OrderNo, q.MerchantCode, formatTime(q.From), formatTime(q.To))
	}
	query := `SELECT ` + orderColumns + ` FROM lazada_payment_main WHERE ` + strings.Join(conds, " OR ")

	var rows []orderRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("bulk find orders: %w", err)
	}

	out := make([]domain.MainRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toDomain()
		if err != nil {
			return nil, fmt.Errorf("scan order %s: %w", row.OrderNo, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// InsertMany stores processed orders in one transaction. Missing ids and
// creation times are filled in.
func (r *OrderRepo) InsertMany(ctx context.Context, recs []domain.MainRecord) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(`INSERT INTO lazada_payment_main (`+orderColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`))
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for i := range recs {
		rec := &recs[i]
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
		var batchID, sentAt any
		if rec.BatchID != "" {
			batchID = rec.BatchID
		}
		if rec.SentAt != nil {
			sentAt = formatTime(*rec.SentAt)
		}
		t := rec.Totals
		_, err := stmt.ExecContext(ctx,
			rec.ID, rec.OrderNo, rec.OrderItemNo, rec.MerchantCode, formatTime(rec.TransactionDate),
			rec.StoreType, batchID,
			t.ItemPriceCredit, t.PaymentFee, t.Commission, t.PaymentFeeCorrection, t.CommissionFeeCorrection,
			t.LostClaim, t.OtherFees, t.OtherIncome, t.LazCoinsDiscount, rec.TotalAmount,
			sentAt, formatTime(rec.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert order %s: %w", rec.OrderNo, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// MerchantTotals summarises processed orders for one merchant.
type MerchantTotals struct {
	MerchantCode string          `db:"opcus" json:"merchant_code"`
	StoreType    string          `db:"store_type" json:"store_type"`
	Orders       int             `db:"orders" json:"orders"`
	TotalAmount  decimal.Decimal `db:"total_amount" json:"total_amount"`
}

// TotalsByMerchant aggregates the main ledger per merchant.
func (r *OrderRepo) TotalsByMerchant(ctx context.Context) ([]MerchantTotals, error) {
	var out []MerchantTotals
	err := r.db.SelectContext(ctx, &out, `SELECT opcus, store_type, COUNT(*) AS orders, COALESCE(SUM(total_amount), 0) AS total_amount
		FROM lazada_payment_main GROUP BY opcus, store_type ORDER BY opcus`)
	if err != nil {
		return nil, fmt.Errorf("totals by merchant: %w", err)
	}
	return out, nil
}
