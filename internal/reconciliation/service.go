// Package reconciliation moves aggregated orders into the legacy ledger and
// keeps the main store in step with what was actually sent.
package reconciliation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/waiwai/settlement-bridge/internal/domain"
	"github.com/waiwai/settlement-bridge/internal/legacy"
	"github.com/waiwai/settlement-bridge/internal/logger"
)

// Transferer writes formatted records to the legacy ledger.
type Transferer interface {
	Transfer(ctx context.Context, records []domain.LegacyLedgerRecord) (domain.TransferResult, error)
}

// DuplicateChecker reports which orders are already in the main store or the
// legacy ledger.
type DuplicateChecker interface {
	CheckBatch(ctx context.Context, ids []domain.OrderIdentity) []domain.CheckedOrder
}

// BatchTracker moves a batch through its lifecycle.
type BatchTracker interface {
	MarkProcessing(ctx context.Context, id string) error
	Finish(ctx context.Context, id string, status domain.BatchStatus, processed int, errMsg string, at time.Time) error
}

// OrderWriter persists sent orders to the main store.
type OrderWriter interface {
	InsertMany(ctx context.Context, recs []domain.MainRecord) error
}

type ProcessLogger interface {
	Create(ctx context.Context, entry *domain.ProcessLog) error
}

// TransferRequest is one batch of orders bound for the ledger.
type TransferRequest struct {
	BatchID      string                `json:"batch_id"`
	MerchantCode string                `json:"merchant_code"`
	StoreType    string                `json:"store_type"`
	Orders       []domain.OrderSummary `json:"orders"`
	UserID       string                `json:"user_id,omitempty"`
	// Source applies to orders whose identity names none.
	Source domain.Source `json:"source,omitempty"`
}

// Service formats orders, transfers them and records the outcome.
type Service struct {
	formatter *legacy.Formatter
	dups      DuplicateChecker
	transfer  Transferer
	batches   BatchTracker
	orders    OrderWriter
	audit     ProcessLogger
	log       logger.Logger
	now       func() time.Time
}

// NewService wires the transfer pipeline. dups, batches, orders and audit
// may be nil, in which case that step is skipped.
func NewService(
	formatter *legacy.Formatter,
	dups DuplicateChecker,
	transfer Transferer,
	batches BatchTracker,
	orders OrderWriter,
	audit ProcessLogger,
	log logger.Logger,
) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{
		formatter: formatter,
		dups:      dups,
		transfer:  transfer,
		batches:   batches,
		orders:    orders,
		audit:     audit,
		log:       log,
		now:       time.Now,
	}
}

// WithClock overrides the time source used for sent and completion stamps.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Format returns the ledger records a transfer of orders would write.
func (s *Service) Format(orders []domain.OrderSummary) []domain.LegacyLedgerRecord {
	return s.formatter.FormatAll(orders)
}

// Transfer sends req.Orders to the ledger. The batch is claimed first, then
// orders already present in either store are dropped, so repeating a
// request never writes an order twice. Failures to reach the ledger are
// reported in the result; the error is set only when the batch itself cannot
// be tracked or is not awaiting transfer.
func (s *Service) Transfer(ctx context.Context, req TransferRequest) (domain.TransferResult, error) {
	if len(req.Orders) == 0 {
		return domain.TransferResult{ErrorMessage: domain.ErrNoRecords.Error()}, nil
	}

	req.Orders = withMerchant(req.Orders, req.MerchantCode, req.Source)

	if req.BatchID != "" && s.batches != nil {
		if err := s.batches.MarkProcessing(ctx, req.BatchID); err != nil {
			if errors.Is(err, domain.ErrBatchNotFound) || errors.Is(err, domain.ErrBatchNotTransferable) {
				return domain.TransferResult{}, err
			}
			return domain.TransferResult{}, fmt.Errorf("mark batch %s processing: %w", req.BatchID, err)
		}
	}
	s.record(ctx, req, "STARTED", fmt.Sprintf("transferring %d orders", len(req.Orders)), nil)

	var skipped []string
	req.Orders, skipped = s.dropSent(ctx, req.Orders)
	if len(req.Orders) == 0 {
		res := domain.TransferResult{Success: true, RecordsSkipped: len(skipped), Details: skipped}
		s.finish(ctx, req.BatchID, res)
		s.record(ctx, req, "SKIPPED", fmt.Sprintf("all %d orders already sent", len(skipped)), map[string]any{
			"records_skipped": len(skipped),
			"skipped":         domain.Preview(skipped),
		})
		return res, nil
	}

	records := s.formatter.FormatAll(req.Orders)
	res, err := s.transfer.Transfer(ctx, records)
	if err != nil {
		s.log.Error("transfer failed", map[string]interface{}{
			"batch_id": req.BatchID,
			"opcus":    req.MerchantCode,
			"err":      err,
		})
		res.Success = false
		if res.ErrorMessage == "" {
			res.ErrorMessage = err.Error()
		}
	}

	if n := s.persistSent(ctx, req, res.Outcomes); n < 0 {
		res.Details = append(res.Details, "main store not updated for sent orders")
	}

	s.finish(ctx, req.BatchID, res)

	status := "SUCCESS"
	if !res.Success {
		status = "ERROR"
	} else if len(res.Details) > 0 {
		status = "PARTIAL"
	}
	res.RecordsSkipped = len(skipped)
	res.Details = append(res.Details, skipped...)
	s.record(ctx, req, status, fmt.Sprintf("inserted %d of %d records", res.RecordsInserted, len(records)), map[string]any{
		"records_inserted": res.RecordsInserted,
		"records_skipped":  res.RecordsSkipped,
		"errors":           domain.Preview(res.Details),
	})

	return res, nil
}

// withMerchant fills in the merchant code and source on orders that arrived
// without them.
func withMerchant(orders []domain.OrderSummary, code string, src domain.Source) []domain.OrderSummary {
	out := make([]domain.OrderSummary, len(orders))
	copy(out, orders)
	for i := range out {
		if out[i].Identity.MerchantCode == "" {
			out[i].Identity.MerchantCode = code
		}
		if out[i].Identity.Source == "" {
			out[i].Identity.Source = src
		}
	}
	return out
}

// dropSent removes orders the duplicate checker finds in either store and
// describes each one removed. A check that fails open keeps the order.
func (s *Service) dropSent(ctx context.Context, orders []domain.OrderSummary) ([]domain.OrderSummary, []string) {
	if s.dups == nil {
		return orders, nil
	}
	ids := make([]domain.OrderIdentity, len(orders))
	for i, o := range orders {
		ids[i] = o.Identity
	}
	checked := s.dups.CheckBatch(ctx, ids)
	if len(checked) != len(orders) {
		s.log.Warn("duplicate check returned a short result, sending all orders", map[string]interface{}{
			"orders":  len(orders),
			"checked": len(checked),
		})
		return orders, nil
	}

	var keep []domain.OrderSummary
	var skipped []string
	for i, c := range checked {
		if c.Result.IsDuplicate {
			skipped = append(skipped, fmt.Sprintf("Order %s: already in %s", orders[i].Identity.OrderNo, c.Result.Location))
			continue
		}
		keep = append(keep, orders[i])
	}
	if len(skipped) > 0 {
		s.log.Warn("orders already sent were skipped", map[string]interface{}{
			"skipped": len(skipped),
			"sending": len(keep),
		})
	}
	return keep, skipped
}

// persistSent stores a main record for each order the ledger accepted. It
// returns the number stored, or -1 when the main store write failed.
func (s *Service) persistSent(ctx context.Context, req TransferRequest, outcomes []domain.RecordOutcome) int {
	if s.orders == nil || len(outcomes) == 0 {
		return 0
	}

	sentAt := s.now()
	var recs []domain.MainRecord
	for _, out := range outcomes {
		if out.Err != nil || out.Index < 1 || out.Index > len(req.Orders) {
			continue
		}
		o := req.Orders[out.Index-1]
		recs = append(recs, domain.MainRecord{
			OrderNo:         o.Identity.OrderNo,
			OrderItemNo:     o.Identity.OrderItemNo,
			MerchantCode:    o.Identity.MerchantCode,
			TransactionDate: o.Identity.TransactionDate,
			StoreType:       req.StoreType,
			BatchID:         req.BatchID,
			Totals:          o.Totals,
			TotalAmount:     o.Totals.TotalAmount,
			SentAt:          &sentAt,
		})
	}
	if len(recs) == 0 {
		return 0
	}

	if err := s.orders.InsertMany(ctx, recs); err != nil {
		// The ledger already holds these rows; a later upload still hits
		// the legacy duplicate check.
		s.log.Error("main store update failed", map[string]interface{}{
			"batch_id": req.BatchID,
			"orders":   len(recs),
			"err":      err,
		})
		return -1
	}
	return len(recs)
}

func (s *Service) finish(ctx context.Context, batchID string, res domain.TransferResult) {
	if batchID == "" || s.batches == nil {
		return
	}
	status := domain.BatchCompleted
	if !res.Success {
		status = domain.BatchError
	}
	if err := s.batches.Finish(ctx, batchID, status, res.RecordsInserted, res.ErrorMessage, s.now()); err != nil {
		s.log.Error("batch status update failed", map[string]interface{}{
			"batch_id": batchID,
			"status":   string(status),
			"err":      err,
		})
	}
}

func (s *Service) record(ctx context.Context, req TransferRequest, status, message string, details map[string]any) {
	if s.audit == nil {
		return
	}
	entry := &domain.ProcessLog{
		Action:  "TRANSFER",
		Status:  status,
		Message: message,
		BatchID: req.BatchID,
		UserID:  req.UserID,
	}
	if details != nil {
		if b, err := json.Marshal(details); err == nil {
			entry.Details = string(b)
		}
	}
	if err := s.audit.Create(ctx, entry); err != nil {
		s.log.Warn("process log write failed", map[string]interface{}{"err": err, "batch_id": req.BatchID})
	}
}
