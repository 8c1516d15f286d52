package legacy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/waiwai/settlement-bridge/internal/domain"
	"github.com/waiwai/settlement-bridge/internal/logger"
)

// Table names the ledger table and how the dialect limits a query to one row.
type Table struct {
	// Name is library-qualified, e.g. TESTF.PMONHP.
	Name string
	// LimitClause is appended to single-row lookups, e.g.
	// "FETCH FIRST 1 ROWS ONLY" or "LIMIT 1".
	LimitClause string
}

func (t Table) insertSQL() string {
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(domain.LegacyColumns)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t.Name, strings.Join(domain.LegacyColumns, ", "), marks)
}

func (t Table) lookupSQL(byDate bool) string {
	q := fmt.Sprintf("SELECT OSEQ, OPCUS, OPBIL, OPMDT, OTRAM, OBAMT FROM %s WHERE OPCUS = ? AND OPBIL = ?", t.Name)
	if byDate {
		q += " AND OPMDT = ?"
	}
	if t.LimitClause != "" {
		q += " " + t.LimitClause
	}
	return q
}

// LedgerStore answers duplicate lookups against the ledger table.
type LedgerStore struct {
	connector Connector
	table     Table
	log       logger.Logger
}

func NewLedgerStore(connector Connector, table Table, log logger.Logger) *LedgerStore {
	if log == nil {
		log = logger.NewNop()
	}
	return &LedgerStore{connector: connector, table: table, log: log}
}

// FindLedgerRow returns the first row matching merchant, order number and
// YYYYMMDD date, or nil when there is none. An empty date matches any date.
func (s *LedgerStore) FindLedgerRow(ctx context.Context, merchantCode, orderNo, date string) (*domain.LedgerRow, error) {
	sess, err := s.connector.Connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			s.log.Warn("legacy close failed", map[string]interface{}{"err": err})
		}
	}()

	var (
		seq, opcus, opbil, opmdt sql.NullString
		otram, obamt             decimal.NullDecimal
	)
	args := []any{merchantCode, orderNo}
	if date != "" {
		args = append(args, date)
	}
	err = sess.Conn().QueryRowContext(ctx, s.table.lookupSQL(date != ""), args...).
		Scan(&seq, &opcus, &opbil, &opmdt, &otram, &obamt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query ledger %s: %w", s.table.Name, err)
	}

	return &domain.LedgerRow{
		Sequence:          strings.TrimSpace(seq.String),
		MerchantCode:      strings.TrimSpace(opcus.String),
		OrderNo:           strings.TrimSpace(opbil.String),
		TransactionDate:   strings.TrimSpace(opmdt.String),
		NetTransferAmount: otram.Decimal,
		BillAmount:        obamt.Decimal,
	}, nil
}
