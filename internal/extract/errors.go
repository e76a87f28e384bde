// Package extract turns raw email messages into structured transaction
// candidates by calling an AI model and validating its output. This file
// centralizes the extraction failure taxonomy so the scheduler can route
// every failure to exactly one policy: skip, retry, or abort.
package extract

import (
	"errors"
	"fmt"
)

// ErrNotFinancial reports that a message was correctly identified as
// non-transactional. It is not an error condition, simply "no candidate
// produced", and is never logged at error level.
var ErrNotFinancial = errors.New("message is not financial")

// Kind classifies extraction failures by the policy they demand.
type Kind int

const (
	// KindMalformed: the model output was unusable or failed validation.
	// The message is skipped permanently and logged for audit.
	KindMalformed Kind = iota + 1
	// KindTransient: network/timeout/rate-limit from the AI collaborator.
	// Eligible for retry under the scheduler's policy.
	KindTransient
	// KindFatal: authentication or quota exhaustion. Aborts the cycle;
	// needs operator intervention before retrying can help.
	KindFatal
)

// String returns the lowercase kind name used in logs.
func (k Kind) String() string {
	switch k {
	case KindMalformed:
		return "malformed"
	case KindTransient:
		return "transient"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is a classified extraction failure tied to one message.
type Error struct {
	Kind      Kind
	MessageID string
	Err       error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("extract %s (message %s): %v", e.Kind, e.MessageID, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, messageID string, err error) *Error {
	return &Error{Kind: kind, MessageID: messageID, Err: err}
}

func hasKind(err error, kind Kind) bool {
	var ee *Error
	return errors.As(err, &ee) && ee.Kind == kind
}

// IsMalformed reports whether err is an unusable-output failure.
func IsMalformed(err error) bool { return hasKind(err, KindMalformed) }

// IsTransient reports whether err is a retryable failure.
func IsTransient(err error) bool { return hasKind(err, KindTransient) }

// IsFatal reports whether err requires operator intervention.
func IsFatal(err error) bool { return hasKind(err, KindFatal) }
