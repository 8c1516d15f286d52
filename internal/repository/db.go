package repository

import (
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Timestamps are stored as fixed-width UTC text so range predicates compare
// correctly on every supported engine.
const timeLayout = "2006-01-02 15:04:05.000"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{timeLayout, time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse time %q", s)
}

// Open connects to the main store and ensures all required tables exist.
// driver is "sqlite" or "postgres". Pass ":memory:" as a sqlite DSN for an
// in-memory database.
func Open(driver, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if driver == "sqlite" {
		// One connection keeps :memory: databases and pragmas consistent.
		db.SetMaxOpenConns(1)
		for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000"} {
			if _, err := db.Exec(pragma); err != nil {
				db.Close()
				return nil, fmt.Errorf("%s: %w", strings.ToLower(pragma), err)
			}
		}
	} else if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return db, nil
}

func createTables(db *sqlx.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS lazada_payment_main (
			id TEXT PRIMARY KEY,
			order_no TEXT NOT NULL,
			order_item_no TEXT NOT NULL DEFAULT '',
			opcus TEXT NOT NULL,
			transaction_date TEXT NOT NULL,
			store_type TEXT NOT NULL DEFAULT '',
			batch_id TEXT,
			item_price_credit NUMERIC NOT NULL DEFAULT 0,
			payment_fee NUMERIC NOT NULL DEFAULT 0,
			commission NUMERIC NOT NULL DEFAULT 0,
			payment_fee_correction NUMERIC NOT NULL DEFAULT 0,
			commission_fee_correction NUMERIC NOT NULL DEFAULT 0,
			lost_claim NUMERIC NOT NULL DEFAULT 0,
			other_fees NUMERIC NOT NULL DEFAULT 0,
			other_income NUMERIC NOT NULL DEFAULT 0,
			lazcoins_discount NUMERIC NOT NULL DEFAULT 0,
			total_amount NUMERIC NOT NULL DEFAULT 0,
			as400_sent_at TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_main_identity ON lazada_payment_main(order_no, opcus, transaction_date)`,
		`CREATE INDEX IF NOT EXISTS idx_main_batch ON lazada_payment_main(batch_id)`,

		`CREATE TABLE IF NOT EXISTS batches (
			id TEXT PRIMARY KEY,
			file_name TEXT NOT NULL,
			total_records INTEGER NOT NULL DEFAULT 0,
			processed_records INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			uploaded_by TEXT NOT NULL DEFAULT '',
			store_type TEXT NOT NULL DEFAULT '',
			opcus TEXT NOT NULL DEFAULT '',
			error_message TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			completed_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_batches_status ON batches(status)`,
		`CREATE INDEX IF NOT EXISTS idx_batches_created_at ON batches(created_at)`,

		`CREATE TABLE IF NOT EXISTS process_logs (
			id TEXT PRIMARY KEY,
			action TEXT NOT NULL,
			status TEXT NOT NULL,
			message TEXT NOT NULL,
			details TEXT NOT NULL DEFAULT '',
			batch_id TEXT NOT NULL DEFAULT '',
			user_id TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_process_logs_batch ON process_logs(batch_id)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:min(60, len(stmt))], err)
		}
	}

	return nil
}
