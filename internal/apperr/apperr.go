// Package apperr defines the error taxonomy shared by every warmup engine
// component, grounded on the fail-and-let-the-next-tick-retry policy in
// spec.md §7.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can decide policy (retry, pause,
// re-plan, surface) without string-matching error text.
type Kind int

const (
	// KindTransientNetwork covers network/db/SMTP/IMAP errors expected to
	// clear on their own; the current tick fails, the next tick retries.
	KindTransientNetwork Kind = iota
	// KindExpiredToken signals the mail client reported an expired access
	// token; the caller should refresh once and retry within the same tick.
	KindExpiredToken
	// KindNeedsReauth signals a refresh attempt failed with an
	// invalid-grant class error; the mailbox must be paused.
	KindNeedsReauth
	// KindInvalidPlan signals a PlanEntry that cannot be dispatched as-is
	// (e.g. fire_at no longer within business hours after a DST shift).
	KindInvalidPlan
	// KindDuplicateDispatch signals a conditional UPDATE affected zero
	// rows because another worker already claimed the entry.
	KindDuplicateDispatch
	// KindContentGeneratorEmpty signals the content generator returned an
	// empty or self-check-failing subject/body.
	KindContentGeneratorEmpty
	// KindUnknownProvider signals a mailbox references a provider with no
	// registered adapter.
	KindUnknownProvider
)

func (k Kind) String() string {
	switch k {
	case KindTransientNetwork:
		return "transient_network"
	case KindExpiredToken:
		return "expired_token"
	case KindNeedsReauth:
		return "needs_reauth"
	case KindInvalidPlan:
		return "invalid_plan"
	case KindDuplicateDispatch:
		return "duplicate_dispatch"
	case KindContentGeneratorEmpty:
		return "content_generator_empty"
	case KindUnknownProvider:
		return "unknown_provider"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a Kind so policy code can switch on
// it while still propagating the original message via Unwrap.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a new *Error for op/kind, optionally wrapping cause.
func New(op string, kind Kind, cause error) *Error {
	return &Error{Op: op, Kind: kind, Err: cause}
}

// Is reports whether err (or anything it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, defaulting to KindTransientNetwork for
// errors that never went through this package (callers treat unclassified
// errors conservatively: fail and let the next tick retry).
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindTransientNetwork
}
