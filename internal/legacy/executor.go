package legacy

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/waiwai/settlement-bridge/internal/domain"
	"github.com/waiwai/settlement-bridge/internal/logger"
)

// Executor inserts formatted records into the ledger table.
type Executor struct {
	connector Connector
	table     Table
	log       logger.Logger
}

func NewExecutor(connector Connector, table Table, log logger.Logger) *Executor {
	if log == nil {
		log = logger.NewNop()
	}
	return &Executor{connector: connector, table: table, log: log}
}

type preparer interface {
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// Transfer inserts records one at a time over a single connection. A failed
// record is noted and the rest are still attempted. The returned error is
// set only when the batch could not run at all: no connection, a statement
// the target rejects outright, or a connection lost mid-batch. The result is
// always populated.
func (e *Executor) Transfer(ctx context.Context, records []domain.LegacyLedgerRecord) (res domain.TransferResult, err error) {
	if len(records) == 0 {
		return domain.TransferResult{ErrorMessage: domain.ErrNoRecords.Error()}, nil
	}

	sess, err := e.connector.Connect(ctx)
	if err != nil {
		e.log.Error("legacy connect failed", map[string]interface{}{"err": err})
		return domain.TransferResult{ErrorMessage: err.Error()}, err
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			e.log.Warn("legacy close failed", map[string]interface{}{"err": cerr})
		}
	}()

	// Some bridge drivers cannot leave autocommit; carry on without a
	// transaction in that case.
	var target preparer = sess.Conn()
	tx, terr := sess.Conn().BeginTx(ctx, nil)
	if terr != nil {
		e.log.Warn("could not disable autocommit", map[string]interface{}{"err": terr})
		tx = nil
	} else {
		target = tx
	}

	var errs []string
	inserted := 0

	// fail rolls back what the transaction holds. Without a transaction the
	// rows already written stay and are still reported.
	fail := func(cause error) (domain.TransferResult, error) {
		if tx != nil {
			if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
				e.log.Error("rollback failed", map[string]interface{}{"err": rerr})
			}
			inserted = 0
			res.Outcomes = nil
		}
		e.log.Error("legacy transfer aborted", map[string]interface{}{"err": cause, "inserted": inserted})
		return domain.TransferResult{
			Success:         false,
			RecordsInserted: inserted,
			ErrorMessage:    cause.Error(),
			Details:         errs,
			Outcomes:        res.Outcomes,
		}, cause
	}

	stmt, perr := target.PrepareContext(ctx, e.table.insertSQL())
	if perr != nil {
		return fail(fmt.Errorf("prepare insert into %s: %w", e.table.Name, perr))
	}
	defer stmt.Close()

	for i, rec := range records {
		out := domain.RecordOutcome{Index: i + 1, OrderNo: rec.OrderNo}
		if _, xerr := stmt.ExecContext(ctx, rec.Values()...); xerr != nil {
			if fatal(ctx, xerr) || statementBroken(xerr) {
				return fail(fmt.Errorf("record %d: %w", i+1, xerr))
			}
			out.Err = xerr
			errs = append(errs, fmt.Sprintf("Record %d: %v", i+1, xerr))
			e.log.Error("ledger insert failed", map[string]interface{}{
				"index": i + 1,
				"opbil": rec.OrderNo,
				"err":   xerr,
			})
		} else {
			inserted++
		}
		res.Outcomes = append(res.Outcomes, out)
	}

	if tx != nil {
		if cerr := tx.Commit(); cerr != nil {
			e.log.Warn("commit failed", map[string]interface{}{"err": cerr, "inserted": inserted})
		}
	}

	res.RecordsInserted = inserted
	res.Success = inserted > 0
	if len(errs) > 0 {
		res.ErrorMessage = strings.Join(errs, "; ")
		res.Details = errs
	}

	fields := map[string]interface{}{
		"total":    len(records),
		"inserted": inserted,
		"failed":   len(errs),
	}
	if len(errs) > 0 {
		fields["first_errors"] = errs[:min(5, len(errs))]
	}
	e.log.Info("legacy transfer completed", fields)
	return res, nil
}

// fatal reports whether an insert error means the connection itself is gone.
func fatal(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, sql.ErrTxDone)
}

// schemaMarkers identify errors raised because the insert statement itself
// cannot run against the target, whatever the row values. Some drivers only
// report them on the first execution rather than at prepare time.
var schemaMarkers = []string{
	"no such table",
	"no such column",
	"42s02",   // ODBC: base table or view not found
	"42s22",   // ODBC: column not found
	"42704",   // DB2: undefined object
	"42703",   // DB2: undefined column
	"sql0204", // IBM i: object not found
	"sql0206", // IBM i: column not found
}

// statementBroken reports whether err says the statement is unusable, so
// every remaining record would fail the same way.
func statementBroken(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, m := range schemaMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
