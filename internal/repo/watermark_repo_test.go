package repo

import (
	"context"
	"testing"
	"time"

	"github.com/mailspend/mailspend/internal/domain"
)

func TestGetWatermark_EmptyReturnsZeroValue(t *testing.T) {
	db := newRepoDB(t, &domain.Watermark{})

	wm, err := GetWatermark(context.Background(), db)
	if err != nil {
		t.Fatalf("GetWatermark: %v", err)
	}
	if wm == nil || !wm.LastTimestamp.IsZero() || wm.LastMessageID != "" {
		t.Fatalf("expected zero-valued watermark, got %+v", wm)
	}
}

func TestAdvanceWatermark_CreatesAndAdvances(t *testing.T) {
	db := newRepoDB(t, &domain.Watermark{})
	ctx := context.Background()

	t1 := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
	wm, err := AdvanceWatermark(ctx, db, t1, "<m1@x>")
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if !wm.LastTimestamp.Equal(t1) || wm.LastMessageID != "<m1@x>" {
		t.Fatalf("unexpected watermark: %+v", wm)
	}

	// Later timestamp advances.
	t2 := t1.Add(time.Hour)
	wm, err = AdvanceWatermark(ctx, db, t2, "<m2@x>")
	if err != nil {
		t.Fatalf("advance forward: %v", err)
	}
	if !wm.LastTimestamp.Equal(t2) || wm.LastMessageID != "<m2@x>" {
		t.Fatalf("watermark did not advance: %+v", wm)
	}
}

func TestAdvanceWatermark_NeverMovesBackward(t *testing.T) {
	db := newRepoDB(t, &domain.Watermark{})
	ctx := context.Background()

	t2 := time.Date(2025, 4, 1, 13, 0, 0, 0, time.UTC)
	if _, err := AdvanceWatermark(ctx, db, t2, "<m2@x>"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// Earlier timestamp (overlap re-listing) must be a no-op.
	t1 := t2.Add(-time.Hour)
	wm, err := AdvanceWatermark(ctx, db, t1, "<m1@x>")
	if err != nil {
		t.Fatalf("advance backward: %v", err)
	}
	if !wm.LastTimestamp.Equal(t2) || wm.LastMessageID != "<m2@x>" {
		t.Fatalf("watermark moved backward: %+v", wm)
	}

	// Equal timestamp is a no-op too.
	wm, err = AdvanceWatermark(ctx, db, t2, "<other@x>")
	if err != nil {
		t.Fatalf("advance equal: %v", err)
	}
	if wm.LastMessageID != "<m2@x>" {
		t.Fatalf("equal timestamp should not rewrite watermark: %+v", wm)
	}

	// It survives a fresh read.
	got, err := GetWatermark(ctx, db)
	if err != nil {
		t.Fatalf("GetWatermark: %v", err)
	}
	if !got.LastTimestamp.Equal(t2) {
		t.Fatalf("persisted watermark = %v; want %v", got.LastTimestamp, t2)
	}
}
