// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file manages the single watermark row: the durable
// cursor of how far into the mailbox stream processing has advanced.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/mailspend/mailspend/internal/domain"
)

// GetWatermark returns the current watermark. If no watermark has ever been
// persisted (first run against a fresh database), it returns a zero-valued
// watermark and no error; callers fall back to the configured lookback.
func GetWatermark(ctx context.Context, db *gorm.DB) (*domain.Watermark, error) {
	var w domain.Watermark
	err := db.WithContext(ctx).Where("id = ?", domain.WatermarkID).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &domain.Watermark{ID: domain.WatermarkID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// AdvanceWatermark moves the watermark to the given message timestamp/id.
// The move is monotonic: a timestamp at or before the stored one is a no-op,
// so re-listing an overlap window can never rewind progress. Returns the
// watermark value now in effect.
func AdvanceWatermark(ctx context.Context, db *gorm.DB, ts time.Time, messageID string) (*domain.Watermark, error) {
	var out *domain.Watermark
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var w domain.Watermark
		err := tx.Where("id = ?", domain.WatermarkID).First(&w).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			w = domain.Watermark{
				ID:            domain.WatermarkID,
				LastTimestamp: ts,
				LastMessageID: messageID,
				UpdatedAt:     time.Now().UTC(),
			}
			if err := tx.Create(&w).Error; err != nil {
				return err
			}
			out = &w
			return nil
		case err != nil:
			return err
		}

		if !ts.After(w.LastTimestamp) {
			out = &w
			return nil
		}

		w.LastTimestamp = ts
		w.LastMessageID = messageID
		w.UpdatedAt = time.Now().UTC()
		if err := tx.Save(&w).Error; err != nil {
			return err
		}
		out = &w
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
