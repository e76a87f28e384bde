// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// by the status endpoint of the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/mailspend/mailspend/internal/domain"
)

// TransactionsStats returns aggregate metadata for the transactions table:
// the total number of rows and the latest OccurredAt among them.
//
// When the table is empty the returned count is 0 and latest is nil.
func TransactionsStats(ctx context.Context, db *gorm.DB) (count int64, latest *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Transaction{})

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest occurred_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		OccurredAt time.Time
	}
	if err = q.Select("occurred_at").Order("occurred_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.OccurredAt, nil
}
