package repo

import (
	"context"
	"testing"
	"time"

	"github.com/mailspend/mailspend/internal/domain"
)

func TestRecordFailure_InsertAndIdempotentRepeat(t *testing.T) {
	db := newRepoDB(t, &domain.MessageFailure{})
	ctx := context.Background()
	occurred := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

	if err := RecordFailure(ctx, db, "<bad@x>", domain.FailureMalformed, "unparsable model output", occurred); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	// Recording the same message again (overlap re-listing) must not error
	// and must not create a second row.
	if err := RecordFailure(ctx, db, "<bad@x>", domain.FailureRetriesExhausted, "different detail", occurred); err != nil {
		t.Fatalf("RecordFailure repeat: %v", err)
	}

	n, err := CountFailures(ctx, db)
	if err != nil || n != 1 {
		t.Fatalf("count = %d err=%v; want 1", n, err)
	}

	var got domain.MessageFailure
	if err := db.First(&got, "source_message_id = ?", "<bad@x>").Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Reason != domain.FailureMalformed {
		t.Fatalf("first record should win, got reason %q", got.Reason)
	}
}

func TestFailureExists(t *testing.T) {
	db := newRepoDB(t, &domain.MessageFailure{})
	ctx := context.Background()

	exists, err := FailureExists(ctx, db, "<none@x>")
	if err != nil || exists {
		t.Fatalf("expected not exists, got exists=%v err=%v", exists, err)
	}
	if err := RecordFailure(ctx, db, "<bad2@x>", domain.FailureRetriesExhausted, "timeout", time.Now().UTC()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	exists, err = FailureExists(ctx, db, "<bad2@x>")
	if err != nil || !exists {
		t.Fatalf("expected exists, got exists=%v err=%v", exists, err)
	}
}

func TestListFailuresPage_NewestFirst(t *testing.T) {
	db := newRepoDB(t, &domain.MessageFailure{})
	ctx := context.Background()

	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"<f1@x>", "<f2@x>", "<f3@x>"} {
		if err := RecordFailure(ctx, db, id, domain.FailureMalformed, "detail", base.Add(time.Duration(i)*time.Hour)); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}

	page, err := ListFailuresPage(ctx, db, 0, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(page))
	}
	if page[0].CreatedAt.Before(page[1].CreatedAt) {
		t.Fatalf("expected newest first ordering")
	}
}
