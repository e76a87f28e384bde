// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// MessageFailure model: the audit trail of permanently skipped messages.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mailspend/mailspend/internal/domain"
)

// RecordFailure durably marks a message as permanently failed so later
// cycles skip it. Recording the same message twice is a no-op (unique index
// on source_message_id, ON CONFLICT DO NOTHING), which keeps the call safe
// under crash-replay.
func RecordFailure(ctx context.Context, db *gorm.DB, sourceMessageID, reason, detail string, occurredAt time.Time) error {
	f := &domain.MessageFailure{
		ID:              uuid.NewString(),
		SourceMessageID: sourceMessageID,
		Reason:          reason,
		Detail:          detail,
		OccurredAt:      occurredAt,
		CreatedAt:       time.Now().UTC(),
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source_message_id"}},
		DoNothing: true,
	}).Create(f).Error
}

// FailureExists reports whether a message has already been recorded as
// permanently failed.
func FailureExists(ctx context.Context, db *gorm.DB, sourceMessageID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.MessageFailure{}).
		Where("source_message_id = ?", sourceMessageID).
		Count(&n).Error
	return n > 0, err
}

// CountFailures returns the total number of permanently failed messages.
func CountFailures(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.MessageFailure{}).Count(&total).Error
	return total, err
}

// ListFailuresPage returns a paginated slice of failures, newest first.
func ListFailuresPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.MessageFailure, error) {
	var out []domain.MessageFailure
	err := db.WithContext(ctx).
		Model(&domain.MessageFailure{}).
		Order("created_at DESC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
