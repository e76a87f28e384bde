// Package domain defines the persistence models for extracted transactions,
// the processing watermark, and permanently failed messages. These types are
// mapped with GORM and form the core data layer of the ingestion pipeline.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is the canonical unit of value: one financial transaction
// extracted from one email message. The SourceMessageID uniqueness constraint
// is what makes the whole pipeline safe to re-run after a crash.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - SourceMessageID: id of the originating mail message; UNIQUE, the
//     deduplication key for idempotent ingestion.
//   - ThreadID: conversation thread the message belongs to, when known.
//   - Sender / Subject: message metadata retained for display and search.
//   - Amount: signed decimal value; sign encodes debit (negative) vs credit.
//   - Currency: ISO 4217 currency code, validated at extraction time.
//   - Merchant: AI-normalized counterparty name.
//   - Category: classification assigned by the extractor.
//   - OccurredAt: transaction date as stated in the email, distinct from the
//     message receipt time.
//   - Confidence: optional extraction confidence, kept for auditing misfires.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
type Transaction struct {
	ID              string          `json:"id"                gorm:"type:char(36);primaryKey"`
	SourceMessageID string          `json:"source_message_id" gorm:"type:varchar(255);not null;uniqueIndex:ux_tx_source_message"`
	ThreadID        string          `json:"thread_id,omitempty" gorm:"type:varchar(255);index"`
	Sender          string          `json:"sender"            gorm:"type:varchar(320);not null"`
	Subject         string          `json:"subject"           gorm:"type:varchar(998)"`
	Amount          decimal.Decimal `json:"amount"            gorm:"type:decimal(20,4);not null"`
	Currency        string          `json:"currency"          gorm:"type:char(3);not null"`
	Merchant        string          `json:"merchant"          gorm:"type:varchar(255);not null"`
	Category        string          `json:"category"          gorm:"type:varchar(64);not null;index"`
	OccurredAt      time.Time       `json:"occurred_at"       gorm:"not null;index:idx_tx_occurred"`
	Confidence      *float64        `json:"confidence,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// TableName returns the database table name for Transaction.
func (Transaction) TableName() string { return "transactions" }

// WatermarkID is the fixed primary key of the single watermark row.
const WatermarkID = 1

// Watermark is the durable cursor of processing progress through the
// mailbox's time-ordered message stream. There is exactly one row; it only
// ever advances (enforced by the repo layer, never by callers directly).
type Watermark struct {
	ID            int       `json:"-"               gorm:"primaryKey"`
	LastTimestamp time.Time `json:"last_timestamp"`
	LastMessageID string    `json:"last_message_id" gorm:"type:varchar(255)"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName returns the database table name for Watermark.
func (Watermark) TableName() string { return "watermark" }

// Failure reasons recorded in MessageFailure rows.
const (
	FailureMalformed        = "malformed"
	FailureRetriesExhausted = "retries_exhausted"
)

// MessageFailure records a message that was permanently skipped: either the
// model output was unusable, or transient retries were exhausted. The row
// lets overlap re-listing skip known-bad messages in later cycles and gives
// operators an audit surface; it never reaches the transactions table.
type MessageFailure struct {
	ID              string    `json:"id"                gorm:"type:char(36);primaryKey"`
	SourceMessageID string    `json:"source_message_id" gorm:"type:varchar(255);not null;uniqueIndex:ux_failure_source_message"`
	Reason          string    `json:"reason"            gorm:"type:varchar(32);not null;check:reason IN ('malformed','retries_exhausted')"`
	Detail          string    `json:"detail"            gorm:"type:text"`
	OccurredAt      time.Time `json:"occurred_at"       gorm:"not null"`
	CreatedAt       time.Time `json:"created_at"`
}

// TableName returns the database table name for MessageFailure.
func (MessageFailure) TableName() string { return "message_failures" }
