package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type BatchStatus string

const (
	BatchUploaded   BatchStatus = "UPLOADED"
	BatchProcessing BatchStatus = "PROCESSING"
	BatchCompleted  BatchStatus = "COMPLETED"
	BatchError      BatchStatus = "ERROR"
)

// BatchRun tracks one uploaded settlement file through transfer.
type BatchRun struct {
	ID               string      `json:"batch_id"`
	FileName         string      `json:"file_name"`
	TotalRecords     int         `json:"total_records"`
	ProcessedRecords int         `json:"processed_records"`
	Status           BatchStatus `json:"status"`
	UploadedBy       string      `json:"uploaded_by,omitempty"`
	StoreType        string      `json:"store_type,omitempty"`
	MerchantCode     string      `json:"merchant_code,omitempty"`
	ErrorMessage     string      `json:"error_message,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	CompletedAt      *time.Time  `json:"completed_at,omitempty"`
}

// MainRecord is an order already processed into the main ledger table.
type MainRecord struct {
	ID              string           `json:"id"`
	OrderNo         string           `json:"order_no"`
	OrderItemNo     string           `json:"order_item_no,omitempty"`
	MerchantCode    string           `json:"merchant_code"`
	TransactionDate time.Time        `json:"transaction_date"`
	StoreType       string           `json:"store_type,omitempty"`
	BatchID         string           `json:"batch_id,omitempty"`
	Totals          SettlementTotals `json:"totals"`
	TotalAmount     decimal.Decimal  `json:"total_amount"`
	SentAt          *time.Time       `json:"as400_sent_at,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

// ProcessLog is an audit entry for a pipeline step.
type ProcessLog struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	BatchID   string    `json:"batch_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
