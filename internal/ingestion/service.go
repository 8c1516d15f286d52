package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/waiwai/settlement-bridge/internal/domain"
	"github.com/waiwai/settlement-bridge/internal/fees"
	"github.com/waiwai/settlement-bridge/internal/logger"
)

// DuplicateChecker resolves many identities in input order.
type DuplicateChecker interface {
	CheckBatch(ctx context.Context, orders []domain.OrderIdentity) []domain.CheckedOrder
}

// BatchCreator persists a new batch run.
type BatchCreator interface {
	Create(ctx context.Context, b *domain.BatchRun) error
}

// ProcessLogger is the audit sink.
type ProcessLogger interface {
	Create(ctx context.Context, entry *domain.ProcessLog) error
}

// IngestRequest is one uploaded settlement file.
type IngestRequest struct {
	Data         []byte
	FileName     string
	MerchantCode string
	StoreType    string
	UploadedBy   string
	// Source selects the export layout; empty means Lazada.
	Source domain.Source
}

type Summary struct {
	TotalRecords      int `json:"total_records"`
	ValidRecords      int `json:"valid_records"`
	InvalidRecords    int `json:"invalid_records"`
	UniqueOrders      int `json:"unique_orders"`
	DuplicateRecords  int `json:"duplicate_records"`
	DuplicateInMain   int `json:"duplicate_in_main"`
	DuplicateInLegacy int `json:"duplicate_in_legacy"`
}

// DuplicateDetail describes one identity that already exists in a store.
type DuplicateDetail struct {
	OrderNo         string          `json:"order_no"`
	MerchantCode    string          `json:"merchant_code"`
	TransactionDate string          `json:"transaction_date"`
	Location        domain.Location `json:"location"`
	Reason          string          `json:"reason"`
	Details         map[string]any  `json:"details,omitempty"`
}

// IngestResult is returned from a parsed upload.
type IngestResult struct {
	BatchID    string                      `json:"batch_id,omitempty"`
	Success    bool                        `json:"success"`
	Orders     []domain.OrderSummary       `json:"orders"`
	Items      []domain.SettlementLineItem `json:"-"`
	Summary    Summary                     `json:"summary"`
	Errors     []string                    `json:"errors,omitempty"`
	Warnings   []string                    `json:"warnings,omitempty"`
	Duplicates []DuplicateDetail           `json:"duplicates"`
}

// Service turns uploaded settlement files into aggregated, de-duplicated
// orders ready for transfer.
type Service struct {
	parser   *Parser
	agg      *fees.Aggregator
	dups     DuplicateChecker
	batches  BatchCreator
	audit    ProcessLogger
	maxBytes int64
	log      logger.Logger
	now      func() time.Time
}

// NewService creates a new ingestion service. batches and audit may be nil
// for a dry run that persists nothing.
func NewService(
	parser *Parser,
	agg *fees.Aggregator,
	dups DuplicateChecker,
	batches BatchCreator,
	audit ProcessLogger,
	maxBytes int64,
	log logger.Logger,
) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{
		parser:   parser,
		agg:      agg,
		dups:     dups,
		batches:  batches,
		audit:    audit,
		maxBytes: maxBytes,
		log:      log,
		now:      time.Now,
	}
}

// Ingest validates, reads and parses the file, drops line items whose order
// already exists in either store, aggregates the rest per order and records
// a batch. Errors are returned only when the file cannot be used at all.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	if err := ValidateFileName(req.FileName); err != nil {
		return nil, err
	}
	if err := ValidateFileSize(int64(len(req.Data)), s.maxBytes); err != nil {
		return nil, err
	}

	layout := LayoutFor(req.Source)
	wb, err := ReadLayout(req.Data, layout)
	if err != nil {
		s.log.Error("workbook read failed", map[string]interface{}{"file": req.FileName, "err": err})
		return nil, fmt.Errorf("read %s: %w", req.FileName, err)
	}

	res := &IngestResult{Duplicates: []DuplicateDetail{}}
	if len(wb.MissingHeaders) > 0 {
		s.log.Warn("missing required headers", map[string]interface{}{
			"missing":   wb.MissingHeaders,
			"available": wb.Headers,
		})
		res.Warnings = append(res.Warnings, "missing headers: "+strings.Join(wb.MissingHeaders, ", "))
	}

	var parsed ParseResult
	if layout.Source == domain.SourceMakro {
		parsed = s.parser.ParseMakroRows(wb.Rows)
	} else {
		parsed = s.parser.ParseRows(wb.Rows)
	}
	res.Warnings = append(res.Warnings, parsed.Warnings...)
	res.Summary.TotalRecords = len(wb.Rows)
	res.Summary.InvalidRecords = len(wb.Rows) - len(parsed.Items)
	res.Errors = previewWithMore(parsed.Errors)

	if len(parsed.Items) == 0 {
		if len(res.Errors) == 0 {
			res.Errors = []string{domain.ErrNoRecords.Error()}
		}
		return res, nil
	}

	items := parsed.Items
	if req.MerchantCode != "" {
		items = s.dropDuplicates(ctx, req.MerchantCode, items, res)
	} else {
		s.log.Warn("merchant code not provided, duplicate check skipped", map[string]interface{}{"file": req.FileName})
		res.Warnings = append(res.Warnings, "duplicate check skipped: no merchant code given")
	}

	res.Items = items
	res.Orders = s.agg.GroupByOrder(items, req.MerchantCode)
	res.Summary.ValidRecords = len(items)
	res.Summary.DuplicateRecords = len(parsed.Items) - len(items)
	res.Summary.UniqueOrders = countOrderItems(items)
	res.Success = len(parsed.Errors) == 0 || len(items) > 0

	if len(res.Orders) == 0 {
		res.Warnings = append(res.Warnings, "every order in the file has already been processed")
		return res, nil
	}

	if s.batches != nil {
		batch := &domain.BatchRun{
			ID:           uuid.NewString(),
			FileName:     req.FileName,
			TotalRecords: len(res.Orders),
			Status:       domain.BatchUploaded,
			UploadedBy:   req.UploadedBy,
			StoreType:    req.StoreType,
			MerchantCode: req.MerchantCode,
			CreatedAt:    s.now(),
		}
		if err := s.batches.Create(ctx, batch); err != nil {
			return nil, fmt.Errorf("create batch: %w", err)
		}
		res.BatchID = batch.ID
	}
	s.record(ctx, req, res)

	s.log.Info("settlement file ingested", map[string]interface{}{
		"file":       req.FileName,
		"source":     string(layout.Source),
		"batch_id":   res.BatchID,
		"orders":     len(res.Orders),
		"valid":      res.Summary.ValidRecords,
		"invalid":    res.Summary.InvalidRecords,
		"duplicates": res.Summary.DuplicateRecords,
	})
	return res, nil
}

// dropDuplicates checks each distinct identity once and returns the items
// whose identity is clear. Counts and warnings are written into res.
func (s *Service) dropDuplicates(ctx context.Context, merchant string, items []domain.SettlementLineItem, res *IngestResult) []domain.SettlementLineItem {
	seen := make(map[string]bool)
	var ids []domain.OrderIdentity
	for _, it := range items {
		id := identityOf(it, merchant)
		if !seen[id.Key()] {
			seen[id.Key()] = true
			ids = append(ids, id)
		}
	}

	checked := s.dups.CheckBatch(ctx, ids)
	dupKeys := make(map[string]bool)
	var incomplete []string
	for _, c := range checked {
		if !c.Result.IsDuplicate {
			if c.Result.Reason != "" {
				incomplete = append(incomplete, fmt.Sprintf("order %s: %s", c.Identity.OrderNo, c.Result.Reason))
			}
			continue
		}
		dupKeys[c.Identity.Key()] = true
		switch c.Result.Location {
		case domain.LocationMainTable:
			res.Summary.DuplicateInMain++
		case domain.LocationLegacy:
			res.Summary.DuplicateInLegacy++
		}
		res.Duplicates = append(res.Duplicates, DuplicateDetail{
			OrderNo:         c.Identity.OrderNo,
			MerchantCode:    c.Identity.MerchantCode,
			TransactionDate: c.Identity.DateKey(),
			Location:        c.Result.Location,
			Reason:          c.Result.Reason,
			Details:         c.Result.Details,
		})
	}

	if n := len(res.Duplicates); n > 0 {
		lines := make([]string, 0, n)
		for _, d := range res.Duplicates {
			lines = append(lines, fmt.Sprintf("- Order %s (%s) on %s: duplicate in %s", d.OrderNo, d.MerchantCode, d.TransactionDate, locationLabel(d.Location)))
		}
		res.Warnings = append(res.Warnings, fmt.Sprintf("found %d duplicate orders (order no + store + date):", n))
		res.Warnings = append(res.Warnings, previewWithMore(lines)...)
	}
	if len(incomplete) > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("duplicate check incomplete for %d orders, treated as new:", len(incomplete)))
		res.Warnings = append(res.Warnings, previewWithMore(incomplete)...)
	}

	kept := items[:0:0]
	for _, it := range items {
		if dupKeys[identityOf(it, merchant).Key()] {
			continue
		}
		kept = append(kept, it)
	}
	return kept
}

func (s *Service) record(ctx context.Context, req IngestRequest, res *IngestResult) {
	if s.audit == nil {
		return
	}
	details, _ := json.Marshal(res.Summary)
	entry := &domain.ProcessLog{
		ID:        uuid.NewString(),
		Action:    "UPLOAD",
		Status:    "SUCCESS",
		Message:   fmt.Sprintf("uploaded %s: %d orders", req.FileName, len(res.Orders)),
		Details:   string(details),
		BatchID:   res.BatchID,
		UserID:    req.UploadedBy,
		CreatedAt: s.now(),
	}
	if err := s.audit.Create(ctx, entry); err != nil {
		s.log.Warn("process log write failed", map[string]interface{}{"err": err, "batch_id": res.BatchID})
	}
}

func identityOf(it domain.SettlementLineItem, merchant string) domain.OrderIdentity {
	return domain.OrderIdentity{
		OrderNo:         it.OrderNo,
		MerchantCode:    merchant,
		TransactionDate: it.TransactionDate,
		OrderItemNo:     it.OrderItemNo,
		Source:          it.Source,
	}
}

func countOrderItems(items []domain.SettlementLineItem) int {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[it.OrderNo+"-"+it.OrderItemNo] = struct{}{}
	}
	return len(set)
}

func locationLabel(l domain.Location) string {
	switch l {
	case domain.LocationMainTable:
		return "main table"
	case domain.LocationLegacy:
		return "AS400"
	default:
		return "unknown store"
	}
}

// previewWithMore caps list at the preview limit and appends a count of
// what was left out.
func previewWithMore(list []string) []string {
	if len(list) <= domain.PreviewLimit {
		return list
	}
	out := append([]string{}, domain.Preview(list)...)
	return append(out, fmt.Sprintf("... and %d more", len(list)-domain.PreviewLimit))
}
