package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/waiwai/settlement-bridge/internal/domain"
)

const batchColumns = `id, file_name, total_records, processed_records, status, uploaded_by,
	store_type, opcus, error_message, created_at, completed_at`

type batchRow struct {
	ID               string         `db:"id"`
	FileName         string         `db:"file_name"`
	TotalRecords     int            `db:"total_records"`
	ProcessedRecords int            `db:"processed_records"`
	Status           string         `db:"status"`
	UploadedBy       string         `db:"uploaded_by"`
	StoreType        string         `db:"store_type"`
	MerchantCode     string         `db:"opcus"`
	ErrorMessage     string         `db:"error_message"`
	CreatedAt        string         `db:"created_at"`
	CompletedAt      sql.NullString `db:"completed_at"`
}

func (r batchRow) toDomain() (domain.BatchRun, error) {
	created, err := parseTime(r.CreatedAt)
	if err != nil {
		return domain.BatchRun{}, err
	}
	b := domain.BatchRun{
		ID:               r.ID,
		FileName:         r.FileName,
		TotalRecords:     r.TotalRecords,
		ProcessedRecords: r.ProcessedRecords,
		Status:           domain.BatchStatus(r.Status),
		UploadedBy:       r.UploadedBy,
		StoreType:        r.StoreType,
		MerchantCode:     r.MerchantCode,
		ErrorMessage:     r.ErrorMessage,
		CreatedAt:        created,
	}
	if r.CompletedAt.Valid {
		t, err := parseTime(r.CompletedAt.String)
		if err != nil {
			return domain.BatchRun{}, err
		}
		b.CompletedAt = &t
	}
	return b, nil
}

type BatchRepo struct {
	db *sqlx.DB
}

func NewBatchRepo(db *sqlx.DB) *BatchRepo {
	return &BatchRepo{db: db}
}

func (r *BatchRepo) Create(ctx context.Context, b *domain.BatchRun) error {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	if b.Status == "" {
		b.Status = domain.BatchUploaded
	}
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`INSERT INTO batches
		(id, file_name, total_records, processed_records, status, uploaded_by, store_type, opcus, error_message, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)`),
		b.ID, b.FileName, b.TotalRecords, b.ProcessedRecords, string(b.Status),
		b.UploadedBy, b.StoreType, b.MerchantCode, b.ErrorMessage, formatTime(b.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert batch %s: %w", b.ID, err)
	}
	return nil
}

func (r *BatchRepo) Get(ctx context.Context, id string) (*domain.BatchRun, error) {
	var row batchRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`SELECT `+batchColumns+` FROM batches WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrBatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get batch %s: %w", id, err)
	}
	b, err := row.toDomain()
	if err != nil {
		return nil, fmt.Errorf("scan batch %s: %w", id, err)
	}
	return &b, nil
}

// MarkProcessing claims a batch for transfer. Only UPLOADED batches, or
// ERROR batches being retried, can be claimed; any other state yields
// ErrBatchNotTransferable so that one batch is never sent twice.
func (r *BatchRepo) MarkProcessing(ctx context.Context, id string) error {
	err := r.exec(ctx, id, `UPDATE batches SET status = ? WHERE id = ? AND status IN (?, ?)`,
		string(domain.BatchProcessing), id, string(domain.BatchUploaded), string(domain.BatchError))
	if !errors.Is(err, domain.ErrBatchNotFound) {
		return err
	}
	b, gerr := r.Get(ctx, id)
	if gerr != nil {
		return gerr
	}
	return fmt.Errorf("batch %s is %s: %w", id, b.Status, domain.ErrBatchNotTransferable)
}

// Finish records the terminal status of a batch.
func (r *BatchRepo) Finish(ctx context.Context, id string, status domain.BatchStatus, processed int, errMsg string, at time.Time) error {
	return r.exec(ctx, id,
		`UPDATE batches SET status = ?, processed_records = ?, error_message = ?, completed_at = ? WHERE id = ?`,
		string(status), processed, errMsg, formatTime(at), id)
}

func (r *BatchRepo) exec(ctx context.Context, id, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("update batch %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return domain.ErrBatchNotFound
	}
	return nil
}

// BatchFilter narrows List. Page is 1-based.
type BatchFilter struct {
	Status string
	Search string
	Page   int
	Limit  int
}

// List returns one page of batches, newest first, and the total matching.
func (r *BatchRepo) List(ctx context.Context, f BatchFilter) ([]domain.BatchRun, int, error) {
	if f.Limit <= 0 {
		f.Limit = 15
	}
	if f.Page <= 0 {
		f.Page = 1
	}

	var where []string
	var args []any
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, strings.ToUpper(f.Status))
	}
	if f.Search != "" {
		where = append(where, "(LOWER(file_name) LIKE ? OR LOWER(uploaded_by) LIKE ?)")
		pattern := "%" + strings.ToLower(f.Search) + "%"
		args = append(args, pattern, pattern)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, r.db.Rebind(`SELECT COUNT(*) FROM batches`+clause), args...); err != nil {
		return nil, 0, fmt.Errorf("count batches: %w", err)
	}

	var rows []batchRow
	pageArgs := append(append([]any{}, args...), f.Limit, (f.Page-1)*f.Limit)
	err := r.db.SelectContext(ctx, &rows,
		r.db.Rebind(`SELECT `+batchColumns+` FROM batches`+clause+` ORDER BY created_at DESC LIMIT ? OFFSET ?`),
		pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list batches: %w", err)
	}

	out := make([]domain.BatchRun, 0, len(rows))
	for _, row := range rows {
		b, err := row.toDomain()
		if err != nil {
			return nil, 0, fmt.Errorf("scan batch %s: %w", row.ID, err)
		}
		out = append(out, b)
	}
	return out, total, nil
}

// CountByStatus returns how many batches sit in each status.
func (r *BatchRepo) CountByStatus(ctx context.Context) (map[domain.BatchStatus]int, error) {
	var rows []struct {
		Status string `db:"status"`
		N      int    `db:"n"`
	}
	if err := r.db.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS n FROM batches GROUP BY status`); err != nil {
		return nil, fmt.Errorf("count batches by status: %w", err)
	}
	out := map[domain.BatchStatus]int{
		domain.BatchUploaded:   0,
		domain.BatchProcessing: 0,
		domain.BatchCompleted:  0,
		domain.BatchError:      0,
	}
	for _, row := range rows {
		out[domain.BatchStatus(row.Status)] = row.N
	}
	return out, nil
}
