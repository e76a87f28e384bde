package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/mailspend/mailspend/internal/domain"
	"github.com/mailspend/mailspend/internal/repo"
)

func TestStatus_EmptyStore(t *testing.T) {
	db := newHandlerDB(t)
	r := newAPIRouter(t, db)

	w := doGET(t, r, "/api/v1/status")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	var resp StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Version != "test" || resp.PollInterval != "3h0m0s" {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Transactions != 0 || resp.Failures != 0 {
		t.Fatalf("counts should be zero: %+v", resp)
	}
	if resp.LatestOccurredAt != nil || resp.Watermark != nil || resp.WatermarkMessage != "" {
		t.Fatalf("progress fields should be empty: %+v", resp)
	}
}

func TestStatus_ReportsProgress(t *testing.T) {
	db := newHandlerDB(t)
	r := newAPIRouter(t, db)
	ctx := context.Background()

	seedAPIData(t, db)
	if err := repo.RecordFailure(ctx, db, "<f@x>", domain.FailureRetriesExhausted, "503", time.Now()); err != nil {
		t.Fatalf("seed failure: %v", err)
	}
	wmTS := time.Date(2025, 2, 15, 8, 0, 0, 0, time.UTC)
	if _, err := repo.AdvanceWatermark(ctx, db, wmTS, "<t4@x>"); err != nil {
		t.Fatalf("seed watermark: %v", err)
	}

	w := doGET(t, r, "/api/v1/status")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	var resp StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Transactions != 4 || resp.Failures != 1 {
		t.Fatalf("counts = %d/%d", resp.Transactions, resp.Failures)
	}
	if resp.LatestOccurredAt == nil || !resp.LatestOccurredAt.Equal(time.Date(2025, 2, 15, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("LatestOccurredAt = %v", resp.LatestOccurredAt)
	}
	if resp.Watermark == nil || !resp.Watermark.Equal(wmTS) {
		t.Fatalf("Watermark = %v", resp.Watermark)
	}
	if resp.WatermarkMessage != "<t4@x>" {
		t.Fatalf("WatermarkMessage = %q", resp.WatermarkMessage)
	}
}
