// Package scheduler – the Runner: one recurring cycle over the mailbox.
//
// A cycle moves Idle → Listing → Processing → Advancing → Idle. At most one
// cycle runs at a time; timer fires that land while a cycle is still running
// are coalesced into a no-op, which is what protects the store's uniqueness
// constraint from duplicate-write races. Per-message failures are contained
// to that message; auth, quota, and storage failures abort the whole cycle
// with the watermark untouched so the next cycle retries the same batch.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/mailspend/mailspend/internal/domain"
	"github.com/mailspend/mailspend/internal/extract"
	"github.com/mailspend/mailspend/internal/mail"
	"github.com/mailspend/mailspend/internal/repo"
)

// Extractor is the slice of the extraction component the runner needs; the
// concrete *extract.Extractor satisfies it, tests substitute fakes.
type Extractor interface {
	Extract(ctx context.Context, msg *mail.RawMessage) (*domain.Transaction, error)
}

// Outcome is the durably recorded result of processing one message.
type Outcome string

const (
	OutcomeStored         Outcome = "stored"
	OutcomeDuplicate      Outcome = "duplicate"
	OutcomeNotFinancial   Outcome = "not_financial"
	OutcomeMalformed      Outcome = "malformed"
	OutcomeExhausted      Outcome = "retries_exhausted"
	OutcomeAlreadyHandled Outcome = "already_handled"
)

// CycleReport summarizes one completed cycle for logs and tests.
type CycleReport struct {
	Listed         int
	Stored         int
	Duplicates     int
	NotFinancial   int
	Malformed      int
	Exhausted      int
	AlreadyHandled int
}

func (r *CycleReport) add(o Outcome) {
	switch o {
	case OutcomeStored:
		r.Stored++
	case OutcomeDuplicate:
		r.Duplicates++
	case OutcomeNotFinancial:
		r.NotFinancial++
	case OutcomeMalformed:
		r.Malformed++
	case OutcomeExhausted:
		r.Exhausted++
	case OutcomeAlreadyHandled:
		r.AlreadyHandled++
	}
}

// Runner owns the pipeline loop for a single mailbox.
type Runner struct {
	DB        *gorm.DB
	Mailbox   mail.Client
	Extractor Extractor
	Policy    RetryPolicy

	// Sender narrows listing to one sender address when set.
	Sender string

	// Interval between cycle starts.
	Interval time.Duration
	// Overlap is subtracted from the watermark when listing, so messages
	// committed right before a crash are re-listed and deduplicated rather
	// than lost.
	Overlap time.Duration
	// Lookback bounds the first cycle against a fresh database.
	Lookback time.Duration

	running atomic.Bool
}

// Start runs an immediate first cycle, then one per Interval until ctx is
// cancelled. An aborted cycle is retried after the policy's base delay
// instead of waiting out the full interval. Cancellation drains the
// in-flight cycle between messages.
func (r *Runner) Start(ctx context.Context) {
	log.Info().Dur("interval", r.Interval).Msg("pipeline runner started")
	_, failed := r.trigger(ctx)

	timer := time.NewTimer(r.nextWait(failed))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("pipeline runner stopped")
			return
		case <-timer.C:
			_, failed = r.trigger(ctx)
			timer.Reset(r.nextWait(failed))
		}
	}
}

// nextWait returns the pause before the next cycle.
func (r *Runner) nextWait(failed bool) time.Duration {
	if failed && r.Policy.Delay > 0 && r.Policy.Delay < r.Interval {
		return r.Policy.Delay
	}
	return r.Interval
}

// TriggerCycle runs one cycle unless another is already in flight, in which
// case the trigger is coalesced into a no-op. Returns whether a cycle ran.
func (r *Runner) TriggerCycle(ctx context.Context) bool {
	ran, _ := r.trigger(ctx)
	return ran
}

func (r *Runner) trigger(ctx context.Context) (ran, failed bool) {
	if !r.running.CompareAndSwap(false, true) {
		cyclesTotal.WithLabelValues("coalesced").Inc()
		log.Warn().Msg("cycle trigger coalesced: previous cycle still running")
		return false, false
	}
	defer r.running.Store(false)

	start := time.Now()
	report, err := r.RunCycle(ctx)
	cycleDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		cyclesTotal.WithLabelValues("aborted").Inc()
		log.Error().Err(err).Msg("pipeline cycle aborted")
		return true, true
	}
	cyclesTotal.WithLabelValues("completed").Inc()
	log.Info().
		Int("listed", report.Listed).
		Int("stored", report.Stored).
		Int("duplicates", report.Duplicates).
		Int("not_financial", report.NotFinancial).
		Int("malformed", report.Malformed).
		Int("retries_exhausted", report.Exhausted).
		Int("already_handled", report.AlreadyHandled).
		Msg("pipeline cycle completed")
	return true, false
}

// RunCycle executes one Listing → Processing → Advancing pass.
//
// The watermark is read at the start, advanced after each message's outcome
// is durably recorded, and never advanced past a message that is still
// pending retry (a cycle abort leaves it untouched for the affected
// message onward).
func (r *Runner) RunCycle(ctx context.Context) (CycleReport, error) {
	tr := otel.Tracer("scheduler/Runner")
	ctx, span := tr.Start(ctx, "RunCycle")
	defer span.End()

	var report CycleReport

	wm, err := repo.GetWatermark(ctx, r.DB)
	if err != nil {
		return report, fmt.Errorf("read watermark: %w", err)
	}

	since := wm.LastTimestamp.Add(-r.Overlap)
	if wm.LastTimestamp.IsZero() {
		since = time.Now().Add(-r.Lookback)
	}

	// Listing. Refs come back ordered ascending by timestamp.
	var refs []mail.MessageRef
	err = r.Policy.Do(ctx, mail.IsTransient, func(ctx context.Context) error {
		var serr error
		refs, serr = r.Mailbox.Search(ctx, mail.Query{Since: since, Sender: r.Sender})
		return serr
	})
	if err != nil {
		return report, fmt.Errorf("list messages since %s: %w", since.Format(time.RFC3339), err)
	}
	report.Listed = len(refs)
	span.SetAttributes(attribute.Int("cycle.listed", len(refs)))

	log.Debug().
		Time("since", since).
		Int("candidates", len(refs)).
		Msg("listing complete")

	// Processing, in ascending timestamp order.
	for _, ref := range refs {
		// Graceful drain point: a cycle may stop between messages, never
		// inside an extraction-plus-write unit.
		if err := ctx.Err(); err != nil {
			return report, err
		}

		outcome, err := r.processMessage(ctx, ref)
		if err != nil {
			return report, err
		}
		report.add(outcome)
		messagesTotal.WithLabelValues(string(outcome)).Inc()

		// Advancing: only after the outcome above is durable.
		w, err := repo.AdvanceWatermark(ctx, r.DB, ref.Timestamp, ref.ID)
		if err != nil {
			return report, fmt.Errorf("advance watermark: %w", err)
		}
		watermarkTimestamp.Set(float64(w.LastTimestamp.Unix()))
	}

	return report, nil
}

// processMessage handles one message end to end and returns its durably
// recorded outcome. A returned error aborts the cycle: fatal collaborator
// failures, storage failures, or context cancellation.
func (r *Runner) processMessage(ctx context.Context, ref mail.MessageRef) (Outcome, error) {
	ctx, span := otel.Tracer("scheduler/Runner").Start(ctx, "ProcessMessage")
	defer span.End()
	span.SetAttributes(attribute.String("message.id", ref.ID))

	lg := log.With().Str("message_id", ref.ID).Logger()

	// Overlap re-listing makes previously handled messages reappear; skip
	// them without re-fetching bodies.
	if exists, err := repo.TransactionExists(ctx, r.DB, ref.ID); err != nil {
		return "", fmt.Errorf("check existing transaction: %w", err)
	} else if exists {
		lg.Debug().Msg("message already ingested, skipping")
		return OutcomeAlreadyHandled, nil
	}
	if failed, err := repo.FailureExists(ctx, r.DB, ref.ID); err != nil {
		return "", fmt.Errorf("check failure record: %w", err)
	} else if failed {
		lg.Debug().Msg("message previously failed, skipping")
		return OutcomeAlreadyHandled, nil
	}

	// Fetch the body, retrying transient mailbox failures.
	var raw *mail.RawMessage
	err := r.Policy.Do(ctx, mail.IsTransient, func(ctx context.Context) error {
		m, ferr := r.Mailbox.Fetch(ctx, ref)
		if ferr == nil {
			raw = m
		}
		return ferr
	})
	switch {
	case err == nil:
	case mail.IsAuth(err):
		return "", fmt.Errorf("fetch %s: %w", ref.ID, err)
	case ctx.Err() != nil:
		return "", ctx.Err()
	case mail.IsTransient(err):
		if rerr := r.recordFailure(ctx, ref, domain.FailureRetriesExhausted, err); rerr != nil {
			return "", rerr
		}
		lg.Warn().Err(err).Msg("fetch retries exhausted, message skipped permanently")
		return OutcomeExhausted, nil
	default:
		// Unparseable MIME and similar: permanent for this message.
		if rerr := r.recordFailure(ctx, ref, domain.FailureMalformed, err); rerr != nil {
			return "", rerr
		}
		lg.Warn().Err(err).Msg("message body unusable, skipped permanently")
		return OutcomeMalformed, nil
	}

	// Extract, retrying transient AI failures.
	var tx *domain.Transaction
	err = r.Policy.Do(ctx, extract.IsTransient, func(ctx context.Context) error {
		t, xerr := r.Extractor.Extract(ctx, raw)
		if xerr == nil {
			tx = t
		}
		return xerr
	})
	switch {
	case err == nil:
	case errors.Is(err, extract.ErrNotFinancial):
		lg.Debug().Msg("no transaction in message")
		return OutcomeNotFinancial, nil
	case extract.IsFatal(err):
		return "", fmt.Errorf("extract %s: %w", ref.ID, err)
	case ctx.Err() != nil:
		return "", ctx.Err()
	case extract.IsTransient(err):
		if rerr := r.recordFailure(ctx, ref, domain.FailureRetriesExhausted, err); rerr != nil {
			return "", rerr
		}
		lg.Warn().Err(err).Msg("extraction retries exhausted, message skipped permanently")
		return OutcomeExhausted, nil
	default:
		if rerr := r.recordFailure(ctx, ref, domain.FailureMalformed, err); rerr != nil {
			return "", rerr
		}
		lg.Warn().Err(err).Msg("model output malformed, message skipped permanently")
		return OutcomeMalformed, nil
	}

	// Commit. The extraction-plus-write unit is not interruptible.
	outcome, err := repo.UpsertTransaction(ctx, r.DB, tx)
	if err != nil {
		return "", fmt.Errorf("persist transaction for %s: %w", ref.ID, err)
	}
	if outcome == repo.DuplicateSkipped {
		lg.Info().Msg("transaction already stored, duplicate skipped")
		return OutcomeDuplicate, nil
	}
	lg.Info().
		Str("merchant", tx.Merchant).
		Str("amount", tx.Amount.String()).
		Str("currency", tx.Currency).
		Msg("transaction stored")
	return OutcomeStored, nil
}

// recordFailure persists a permanent-skip marker; its failure is a storage
// failure and aborts the cycle.
func (r *Runner) recordFailure(ctx context.Context, ref mail.MessageRef, reason string, cause error) error {
	if err := repo.RecordFailure(ctx, r.DB, ref.ID, reason, cause.Error(), ref.Timestamp); err != nil {
		return fmt.Errorf("record failure for %s: %w", ref.ID, err)
	}
	return nil
}
