package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/waiwai/settlement-bridge/internal/domain"
)

type processLogRow struct {
	ID        string `db:"id"`
	Action    string `db:"action"`
	Status    string `db:"status"`
	Message   string `db:"message"`
	Details   string `db:"details"`
	BatchID   string `db:"batch_id"`
	UserID    string `db:"user_id"`
	CreatedAt string `db:"created_at"`
}

// ProcessLogRepo is the audit trail of pipeline steps.
type ProcessLogRepo struct {
	db *sqlx.DB
}

func NewProcessLogRepo(db *sqlx.DB) *ProcessLogRepo {
	return &ProcessLogRepo{db: db}
}

func (r *ProcessLogRepo) Create(ctx context.Context, e *domain.ProcessLog) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`INSERT INTO process_logs
		(id, action, status, message, details, batch_id, user_id, created_at)
		VALUES (?,?,?,?,?,?,?,?)`),
		e.ID, e.Action, e.Status, e.Message, e.Details, e.BatchID, e.UserID, formatTime(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert process log: %w", err)
	}
	return nil
}

// ListByBatch returns a batch's log entries oldest first.
func (r *ProcessLogRepo) ListByBatch(ctx context.Context, batchID string) ([]domain.ProcessLog, error) {
	var rows []processLogRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`SELECT id, action, status, message, details, batch_id, user_id, created_at
		FROM process_logs WHERE batch_id = ? ORDER BY created_at, id`), batchID)
	if err != nil {
		return nil, fmt.Errorf("list process logs for %s: %w", batchID, err)
	}

	out := make([]domain.ProcessLog, 0, len(rows))
	for _, row := range rows {
		created, err := parseTime(row.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan process log %s: %w", row.ID, err)
		}
		out = append(out, domain.ProcessLog{
			ID:        row.ID,
			Action:    row.Action,
			Status:    row.Status,
			Message:   row.Message,
			Details:   row.Details,
			BatchID:   row.BatchID,
			UserID:    row.UserID,
			CreatedAt: created,
		})
	}
	return out, nil
}
