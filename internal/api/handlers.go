package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/waiwai/settlement-bridge/internal/domain"
	"github.com/waiwai/settlement-bridge/internal/export"
	"github.com/waiwai/settlement-bridge/internal/ingestion"
	"github.com/waiwai/settlement-bridge/internal/logger"
	"github.com/waiwai/settlement-bridge/internal/reconciliation"
	"github.com/waiwai/settlement-bridge/internal/repository"
)

type Ingester interface {
	Ingest(ctx context.Context, req ingestion.IngestRequest) (*ingestion.IngestResult, error)
}

type Transferrer interface {
	Transfer(ctx context.Context, req reconciliation.TransferRequest) (domain.TransferResult, error)
	Format(orders []domain.OrderSummary) []domain.LegacyLedgerRecord
}

type BatchReader interface {
	Get(ctx context.Context, id string) (*domain.BatchRun, error)
	List(ctx context.Context, f repository.BatchFilter) ([]domain.BatchRun, int, error)
	CountByStatus(ctx context.Context) (map[domain.BatchStatus]int, error)
}

type ProcessLogReader interface {
	ListByBatch(ctx context.Context, batchID string) ([]domain.ProcessLog, error)
}

type OrderStats interface {
	TotalsByMerchant(ctx context.Context) ([]repository.MerchantTotals, error)
}

// MerchantLookup resolves a merchant code or store type.
type MerchantLookup func(codeOrStore string) (domain.Merchant, bool)

// Handlers groups all HTTP handler methods and their dependencies.
type Handlers struct {
	Ingest    Ingester
	Transfers Transferrer
	Batches   BatchReader
	Logs      ProcessLogReader
	Orders    OrderStats
	Merchants MerchantLookup
	MaxUpload int64
	Log       logger.Logger
}

// --- helpers ---

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && h.Log != nil {
		h.Log.Error("encode response failed", map[string]interface{}{"err": err})
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return def
	}
	return v
}

// merchant resolves the merchant named by a request. An empty value is
// allowed and yields the zero merchant.
func (h *Handlers) merchant(v string) (domain.Merchant, bool) {
	if v == "" {
		return domain.Merchant{}, true
	}
	if h.Merchants == nil {
		return domain.Merchant{Code: v}, true
	}
	return h.Merchants(v)
}

// --- Health ---

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Upload ---

func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	m, ok := h.merchant(r.FormValue("merchant"))
	if !ok {
		h.writeError(w, http.StatusBadRequest, "unknown merchant: "+r.FormValue("merchant"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "file field is required: "+err.Error())
		return
	}
	defer file.Close()

	if h.MaxUpload > 0 {
		if err := ingestion.ValidateFileSize(header.Size, h.MaxUpload); err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	data, err := io.ReadAll(file)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "read file: "+err.Error())
		return
	}

	result, err := h.Ingest.Ingest(r.Context(), ingestion.IngestRequest{
		Data:         data,
		FileName:     header.Filename,
		MerchantCode: m.Code,
		StoreType:    m.StoreType,
		UploadedBy:   r.FormValue("uploaded_by"),
		Source:       m.Source,
	})
	switch {
	case errors.Is(err, domain.ErrUnsupportedFile), errors.Is(err, domain.ErrFileTooLarge), errors.Is(err, domain.ErrEmptyFile):
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	h.writeJSON(w, status, result)
}

// --- Transfer ---

func (h *Handlers) Transfer(w http.ResponseWriter, r *http.Request) {
	var req reconciliation.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if len(req.Orders) == 0 {
		h.writeError(w, http.StatusBadRequest, domain.ErrNoRecords.Error())
		return
	}
	m, ok := h.merchant(req.MerchantCode)
	if !ok || m.Code == "" {
		h.writeError(w, http.StatusBadRequest, "merchant_code is required")
		return
	}
	req.MerchantCode = m.Code
	if req.StoreType == "" {
		req.StoreType = m.StoreType
	}
	if req.Source == "" {
		req.Source = m.Source
	}

	result, err := h.Transfers.Transfer(r.Context(), req)
	if errors.Is(err, domain.ErrBatchNotFound) {
		h.writeError(w, http.StatusNotFound, "batch not found")
		return
	}
	if errors.Is(err, domain.ErrBatchNotTransferable) {
		h.writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadGateway
	}
	h.writeJSON(w, status, result)
}

// --- Export ---

type exportRequest struct {
	MerchantCode string                      `json:"merchant_code"`
	Orders       []domain.OrderSummary       `json:"orders"`
	Records      []domain.LegacyLedgerRecord `json:"records"`
}

func (h *Handlers) Export(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}

	records := req.Records
	if len(records) == 0 && len(req.Orders) > 0 {
		m, ok := h.merchant(req.MerchantCode)
		if !ok {
			h.writeError(w, http.StatusBadRequest, "unknown merchant: "+req.MerchantCode)
			return
		}
		for i := range req.Orders {
			if req.Orders[i].Identity.MerchantCode == "" {
				req.Orders[i].Identity.MerchantCode = m.Code
			}
			if req.Orders[i].Identity.Source == "" {
				req.Orders[i].Identity.Source = m.Source
			}
		}
		records = h.Transfers.Format(req.Orders)
	}
	if len(records) == 0 {
		h.writeError(w, http.StatusBadRequest, domain.ErrNoRecords.Error())
		return
	}

	data, err := export.Write(records, export.DefaultHeaders)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="export_data.xlsx"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil && h.Log != nil {
		h.Log.Warn("write export failed", map[string]interface{}{"err": err})
	}
}

// --- ListBatches ---

func (h *Handlers) ListBatches(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.BatchFilter{
		Status: q.Get("status"),
		Search: q.Get("search"),
		Page:   parseIntDefault(q.Get("page"), 1),
		Limit:  parseIntDefault(q.Get("limit"), 15),
	}

	batches, total, err := h.Batches.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"batches": batches,
		"total":   total,
		"page":    filter.Page,
		"limit":   filter.Limit,
	})
}

// --- GetBatch ---

func (h *Handlers) GetBatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	batch, err := h.Batches.Get(r.Context(), id)
	if errors.Is(err, domain.ErrBatchNotFound) {
		h.writeError(w, http.StatusNotFound, "batch not found")
		return
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	logs := []domain.ProcessLog{}
	if h.Logs != nil {
		if logs, err = h.Logs.ListByBatch(r.Context(), id); err != nil {
			h.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"batch": batch,
		"logs":  logs,
	})
}

// --- GetDashboard ---

func (h *Handlers) GetDashboard(w http.ResponseWriter, r *http.Request) {
	counts, err := h.Batches.CountByStatus(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	totals, err := h.Orders.TotalsByMerchant(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	all := 0
	for _, n := range counts {
		all += n
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"batches": map[string]int{
			"total":      all,
			"uploaded":   counts[domain.BatchUploaded],
			"processing": counts[domain.BatchProcessing],
			"completed":  counts[domain.BatchCompleted],
			"error":      counts[domain.BatchError],
		},
		"by_merchant": totals,
	})
}
