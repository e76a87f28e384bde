// Package mail defines the mailbox boundary of the pipeline: listing
// candidate messages newer than a lower-bound timestamp and fetching their
// bodies. The concrete implementation speaks IMAP; the pipeline only ever
// sees the Client interface, so tests substitute deterministic fakes.
package mail

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// MessageRef is the opaque identifier plus minimal metadata the scheduler
// needs to order, deduplicate, and fetch a message. Immutable once issued.
type MessageRef struct {
	// ID is the globally unique Message-ID header value.
	ID string
	// UID is the mailbox-local IMAP UID used to fetch the body.
	UID uint32
	// Timestamp is when the message was sent (envelope date).
	Timestamp time.Time
	// Sender is the address of the first From entry.
	Sender string
}

// RawMessage is one fetched message body plus metadata. It is owned
// transiently by the pipeline for the duration of one extraction attempt and
// is never persisted directly.
type RawMessage struct {
	ID          string
	ThreadID    string
	Sender      string
	Subject     string
	ReceivedAt  time.Time
	Body        string
	Attachments []string // filenames only; contents are not downloaded
}

// Query narrows a mailbox listing. Zero values mean "no constraint".
type Query struct {
	// Since is the lower-bound timestamp; messages at or before it may still
	// be returned by servers with day-granularity SEARCH, the scheduler
	// deduplicates them.
	Since time.Time
	// Sender optionally restricts the listing to one From address.
	Sender string
}

// Client lists and fetches messages from a single mailbox.
//
// Search returns refs ordered ascending by timestamp. Fetch retrieves the
// full body for one ref. Both honor ctx cancellation and deadlines.
type Client interface {
	Search(ctx context.Context, q Query) ([]MessageRef, error)
	Fetch(ctx context.Context, ref MessageRef) (*RawMessage, error)
}

// ErrAuth indicates the mailbox rejected our credentials. This is a fatal
// condition: it needs operator intervention before any retry can succeed.
var ErrAuth = errors.New("mailbox authentication failed")

// TransientError wraps a mailbox failure that is expected to succeed if
// retried unchanged: dial failures, timeouts, dropped connections.
type TransientError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *TransientError) Error() string {
	return fmt.Sprintf("mailbox %s: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a retryable mailbox failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsAuth reports whether err is a mailbox authentication failure.
func IsAuth(err error) bool { return errors.Is(err, ErrAuth) }
