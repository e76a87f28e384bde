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

func TestListFailures_NewestFirst(t *testing.T) {
	db := newHandlerDB(t)
	r := newAPIRouter(t, db)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"<f1@x>", "<f2@x>", "<f3@x>"} {
		err := repo.RecordFailure(ctx, db, id, domain.FailureMalformed, "model returned prose", base.AddDate(0, 0, i))
		if err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}

	w := doGET(t, r, "/api/v1/failures")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	var resp ListFailuresResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Pagination.Total != 3 || len(resp.Failures) != 3 {
		t.Fatalf("resp = %+v", resp.Pagination)
	}
	if resp.Failures[0].SourceMessageID != "<f3@x>" || resp.Failures[2].SourceMessageID != "<f1@x>" {
		t.Fatalf("order wrong: %s .. %s",
			resp.Failures[0].SourceMessageID, resp.Failures[2].SourceMessageID)
	}
	if resp.Failures[0].Reason != domain.FailureMalformed {
		t.Fatalf("reason = %q", resp.Failures[0].Reason)
	}
}

func TestListFailures_Empty(t *testing.T) {
	db := newHandlerDB(t)
	r := newAPIRouter(t, db)

	w := doGET(t, r, "/api/v1/failures")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp ListFailuresResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Failures == nil || len(resp.Failures) != 0 {
		t.Fatalf("want empty non-nil slice, got %#v", resp.Failures)
	}
}
