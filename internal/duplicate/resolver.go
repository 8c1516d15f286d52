// Package duplicate decides whether an order has already been processed by
// looking in the main store first and the legacy ledger second.
package duplicate

import (
	"context"
	"fmt"
	"time"

	"github.com/waiwai/settlement-bridge/internal/dates"
	"github.com/waiwai/settlement-bridge/internal/domain"
	"github.com/waiwai/settlement-bridge/internal/logger"
)

// MainStoreLookup is the main ledger table.
type MainStoreLookup interface {
	FindOrder(ctx context.Context, q domain.MainStoreQuery) (*domain.MainRecord, error)
	FindOrdersBulk(ctx context.Context, qs []domain.MainStoreQuery) ([]domain.MainRecord, error)
}

// LegacyStoreLookup is the legacy ERP ledger. date is YYYYMMDD and orderNo is
// already truncated to the ledger width.
type LegacyStoreLookup interface {
	FindLedgerRow(ctx context.Context, merchantCode, orderNo, date string) (*domain.LedgerRow, error)
}

// Options tune the resolver.
type Options struct {
	OrderNoLimit  int
	ThrottleEvery int
	ThrottlePause time.Duration
	// BulkChunk caps the number of OR-ed conditions per main-store query.
	BulkChunk int
}

func DefaultOptions() Options {
	return Options{
		OrderNoLimit:  domain.LegacyOrderNoLimit,
		ThrottleEvery: 10,
		ThrottlePause: 100 * time.Millisecond,
		BulkChunk:     500,
	}
}

// Resolver runs the main-then-legacy duplicate check. Infrastructure
// failures never escape; they come back as a clear result with a reason.
type Resolver struct {
	main   MainStoreLookup
	legacy LegacyStoreLookup
	opts   Options
	log    logger.Logger
	sleep  func(ctx context.Context, d time.Duration)
}

func NewResolver(main MainStoreLookup, legacy LegacyStoreLookup, opts Options, log logger.Logger) *Resolver {
	def := DefaultOptions()
	if opts.OrderNoLimit <= 0 {
		opts.OrderNoLimit = def.OrderNoLimit
	}
	if opts.ThrottleEvery <= 0 {
		opts.ThrottleEvery = def.ThrottleEvery
	}
	if opts.BulkChunk <= 0 {
		opts.BulkChunk = def.BulkChunk
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Resolver{main: main, legacy: legacy, opts: opts, log: log, sleep: sleepCtx}
}

// Check resolves one identity. The legacy store is queried only when the
// main store has no match.
func (r *Resolver) Check(ctx context.Context, id domain.OrderIdentity) domain.DuplicateCheckResult {
	mainRes := r.CheckMain(ctx, id)
	if mainRes.IsDuplicate {
		return mainRes
	}

	legacyRes := r.CheckLegacy(ctx, id)
	if legacyRes.IsDuplicate {
		return legacyRes
	}
	return joinReasons(mainRes, legacyRes)
}

// joinReasons merges two non-duplicate results so that a failure on either
// store stays visible.
func joinReasons(mainRes, legacyRes domain.DuplicateCheckResult) domain.DuplicateCheckResult {
	switch {
	case mainRes.Reason != "" && legacyRes.Reason != "":
		return domain.FailOpen(mainRes.Reason + "; " + legacyRes.Reason)
	case legacyRes.Reason != "":
		return legacyRes
	}
	return mainRes
}

// CheckMain looks for the identity in the main store.
func (r *Resolver) CheckMain(ctx context.Context, id domain.OrderIdentity) domain.DuplicateCheckResult {
	from, to := dates.DayRange(id.TransactionDate)
	rec, err := r.main.FindOrder(ctx, domain.MainStoreQuery{
		OrderNo:      id.OrderNo,
		MerchantCode: id.MerchantCode,
		From:         from,
		To:           to,
		OrderItemNo:  id.OrderItemNo,
	})
	if err != nil {
		r.log.Error("main store duplicate check failed", map[string]interface{}{
			"order_no": id.OrderNo,
			"opcus":    id.MerchantCode,
			"err":      err,
		})
		return domain.FailOpen(fmt.Sprintf("main store check failed: %v", err))
	}
	if rec == nil {
		return domain.NotDuplicate()
	}
	return r.mainHit(id, *rec)
}

// CheckLegacy looks for the identity in the legacy ledger using the ledger
// order number and the compact transaction date. Makro Pro rows written
// earlier carry their transfer date in OPMDT, so those are matched on order
// number alone.
func (r *Resolver) CheckLegacy(ctx context.Context, id domain.OrderIdentity) domain.DuplicateCheckResult {
	orderNo := domain.LedgerOrderNo(id, r.opts.OrderNoLimit)
	date := dates.Compact(id.TransactionDate)
	if id.Source == domain.SourceMakro {
		date = ""
	}

	row, err := r.legacy.FindLedgerRow(ctx, id.MerchantCode, orderNo, date)
	if err != nil {
		r.log.Error("legacy duplicate check failed", map[string]interface{}{
			"order_no": orderNo,
			"opcus":    id.MerchantCode,
			"opmdt":    date,
			"err":      err,
		})
		return domain.FailOpen(fmt.Sprintf("AS400 check failed: %v", err))
	}
	if row == nil {
		return domain.NotDuplicate()
	}

	if date == "" {
		date = row.TransactionDate
	}
	r.log.Warn("duplicate found in legacy ledger", map[string]interface{}{
		"order_no": orderNo,
		"opcus":    id.MerchantCode,
		"opmdt":    date,
	})
	return domain.FoundIn(domain.LocationLegacy,
		fmt.Sprintf("Order %s with store %s on %s already exists in AS400", orderNo, id.MerchantCode, date),
		*row,
		map[string]any{
			"oseq":  row.Sequence,
			"opcus": row.MerchantCode,
			"opbil": row.OrderNo,
			"opmdt": row.TransactionDate,
			"otram": row.NetTransferAmount.String(),
			"obamt": row.BillAmount.String(),
		})
}

func (r *Resolver) mainHit(id domain.OrderIdentity, rec domain.MainRecord) domain.DuplicateCheckResult {
	r.log.Warn("duplicate found in main store", map[string]interface{}{
		"order_no": id.OrderNo,
		"opcus":    id.MerchantCode,
		"date":     id.DateKey(),
	})
	details := map[string]any{
		"order_no":         rec.OrderNo,
		"order_item_no":    rec.OrderItemNo,
		"opcus":            rec.MerchantCode,
		"store_type":       rec.StoreType,
		"total_amount":     rec.TotalAmount.String(),
		"transaction_date": rec.TransactionDate.Format(time.RFC3339),
	}
	if rec.SentAt != nil {
		details["processed_at"] = rec.SentAt.Format(time.RFC3339)
	}
	return domain.FoundIn(domain.LocationMainTable,
		fmt.Sprintf("Order %s with store %s on %s already exists in main table", id.OrderNo, id.MerchantCode, id.DateKey()),
		rec, details)
}

// CheckBatch resolves many identities: one bulk main-store query (chunked),
// then a legacy lookup for each identity the main store did not match,
// pausing after every ThrottleEvery legacy round trips. Output order matches
// input order.
func (r *Resolver) CheckBatch(ctx context.Context, ids []domain.OrderIdentity) []domain.CheckedOrder {
	if len(ids) == 0 {
		return nil
	}

	full, base, mainErr := r.bulkMain(ctx, ids)

	out := make([]domain.CheckedOrder, 0, len(ids))
	legacyChecks := 0
	var inMain, inLegacy int
	for _, id := range ids {
		if mainErr == nil {
			rec, ok := base[id.BaseKey()]
			if id.OrderItemNo != "" {
				rec, ok = full[id.Key()]
			}
			if ok {
				inMain++
				out = append(out, domain.CheckedOrder{Identity: id, Result: r.mainHit(id, rec)})
				continue
			}
		}

		res := r.CheckLegacy(ctx, id)
		if res.IsDuplicate {
			inLegacy++
		} else if mainErr != nil {
			res = joinReasons(domain.FailOpen(fmt.Sprintf("main store check failed: %v", mainErr)), res)
		}
		out = append(out, domain.CheckedOrder{Identity: id, Result: res})

		legacyChecks++
		if legacyChecks%r.opts.ThrottleEvery == 0 && r.opts.ThrottlePause > 0 {
			r.sleep(ctx, r.opts.ThrottlePause)
		}
	}

	r.log.Info("batch duplicate check completed", map[string]interface{}{
		"orders":           len(ids),
		"main_duplicates":  inMain,
		"as400_duplicates": inLegacy,
		"as400_checks":     legacyChecks,
	})
	return out
}

// bulkMain queries the main store for every identity and indexes the rows
// by full key and by base key, both in the identities' location.
func (r *Resolver) bulkMain(ctx context.Context, ids []domain.OrderIdentity) (full, base map[string]domain.MainRecord, err error) {
	loc := ids[0].TransactionDate.Location()
	qs := make([]domain.MainStoreQuery, len(ids))
	for i, id := range ids {
		from, to := dates.DayRange(id.TransactionDate)
		qs[i] = domain.MainStoreQuery{OrderNo: id.OrderNo, MerchantCode: id.MerchantCode, From: from, To: to}
	}

	full = make(map[string]domain.MainRecord)
	base = make(map[string]domain.MainRecord)
	for start := 0; start < len(qs); start += r.opts.BulkChunk {
		end := min(start+r.opts.BulkChunk, len(qs))
		recs, err := r.main.FindOrdersBulk(ctx, qs[start:end])
		if err != nil {
			r.log.Error("bulk main store duplicate check failed", map[string]interface{}{
				"orders": len(ids),
				"err":    err,
			})
			return nil, nil, err
		}
		for _, rec := range recs {
			key := domain.OrderIdentity{
				OrderNo:         rec.OrderNo,
				MerchantCode:    rec.MerchantCode,
				TransactionDate: rec.TransactionDate.In(loc),
				OrderItemNo:     rec.OrderItemNo,
			}
			full[key.Key()] = rec
			if _, seen := base[key.BaseKey()]; !seen {
				base[key.BaseKey()] = rec
			}
		}
	}
	return full, base, nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
