// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Transaction model: idempotent ingestion writes and the read-only query
// surface consumed by the dashboard API.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mailspend/mailspend/internal/domain"
)

// InsertOutcome reports what UpsertTransaction did with a candidate row.
type InsertOutcome int

const (
	// Inserted means a new transaction row was committed.
	Inserted InsertOutcome = iota
	// DuplicateSkipped means a row with the same source message id already
	// exists; the candidate was discarded. Not an error condition.
	DuplicateSkipped
)

// String returns a human-readable outcome name for logs.
func (o InsertOutcome) String() string {
	if o == Inserted {
		return "inserted"
	}
	return "duplicate_skipped"
}

// ErrMissingSourceMessageID is returned when a candidate transaction carries
// no deduplication key; such a row must never be persisted.
var ErrMissingSourceMessageID = errors.New("transaction has no source message id")

// UpsertTransaction inserts a transaction candidate or recognizes it as a
// duplicate of a previously stored one. The write is atomic: either the full
// row commits or nothing does. Idempotency is enforced by the unique index on
// source_message_id via ON CONFLICT DO NOTHING, so a second attempt for the
// same message reports DuplicateSkipped instead of failing.
func UpsertTransaction(ctx context.Context, db *gorm.DB, t *domain.Transaction) (InsertOutcome, error) {
	if strings.TrimSpace(t.SourceMessageID) == "" {
		return DuplicateSkipped, ErrMissingSourceMessageID
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	outcome := DuplicateSkipped
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "source_message_id"}},
			DoNothing: true,
		}).Create(t)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			outcome = Inserted
		}
		return nil
	})
	if err != nil {
		return DuplicateSkipped, err
	}
	return outcome, nil
}

// TransactionExists reports whether a transaction for the given source
// message id is already stored. Used to skip re-fetching bodies when the
// overlap window re-lists messages handled in a previous cycle.
func TransactionExists(ctx context.Context, db *gorm.DB, sourceMessageID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Where("source_message_id = ?", sourceMessageID).
		Count(&n).Error
	return n > 0, err
}

// GetTransaction fetches a transaction by its surrogate id. A missing row is
// reported as (nil, nil), not as an error.
func GetTransaction(ctx context.Context, db *gorm.DB, id string) (*domain.Transaction, error) {
	var t domain.Transaction
	if err := db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// TransactionFilter narrows the read-only list/summary queries. Zero values
// mean "no constraint".
type TransactionFilter struct {
	From      time.Time
	To        time.Time
	Category  string
	MinAmount *decimal.Decimal
	MaxAmount *decimal.Decimal
	Search    string // free text over merchant and subject
}

// apply attaches the filter's WHERE clauses to a transactions query.
func (f TransactionFilter) apply(q *gorm.DB) *gorm.DB {
	if !f.From.IsZero() {
		q = q.Where("occurred_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		q = q.Where("occurred_at <= ?", f.To)
	}
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if f.MinAmount != nil {
		q = q.Where("amount >= ?", f.MinAmount)
	}
	if f.MaxAmount != nil {
		q = q.Where("amount <= ?", f.MaxAmount)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + s + "%"
		q = q.Where("merchant LIKE ? OR subject LIKE ?", like, like)
	}
	return q
}

// CountTransactions returns the number of rows matching the filter.
func CountTransactions(ctx context.Context, db *gorm.DB, f TransactionFilter) (int64, error) {
	var total int64
	err := f.apply(db.WithContext(ctx).Model(&domain.Transaction{})).Count(&total).Error
	return total, err
}

// ListTransactionsPage returns a paginated slice of matching transactions
// ordered deterministically (OccurredAt ASC, ID ASC).
func ListTransactionsPage(ctx context.Context, db *gorm.DB, f TransactionFilter, offset, limit int) ([]domain.Transaction, error) {
	var out []domain.Transaction
	err := f.apply(db.WithContext(ctx).Model(&domain.Transaction{})).
		Order("occurred_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CategoryTotal is one row of the per-category aggregate.
type CategoryTotal struct {
	Category string          `json:"category"`
	Count    int64           `json:"count"`
	Total    decimal.Decimal `json:"total"`
}

// CategorySummary aggregates matching transactions per category: row count
// and signed amount sum, largest totals first.
func CategorySummary(ctx context.Context, db *gorm.DB, f TransactionFilter) ([]CategoryTotal, error) {
	var out []CategoryTotal
	err := f.apply(db.WithContext(ctx).Model(&domain.Transaction{})).
		Select("category, COUNT(*) AS count, SUM(amount) AS total").
		Group("category").
		Order("count DESC, category ASC").
		Scan(&out).Error
	return out, err
}
