package message

import (
	stderrors "errors"
	"fmt"
	"time"

	"github.com/c360/streamplug/errors"
)

// DetailKind identifies the optional classified detail on an Error.
type DetailKind int

const (
	// DetailNone means the error carries no classification; an active
	// error without detail is an opaque failure of the call.
	DetailNone DetailKind = iota
	// DetailBackOff asks the caller to wait and retry the same call.
	DetailBackOff
	// DetailNotConnected reports that the underlying connection is gone.
	DetailNotConnected
	// DetailEndOfInput reports that an input source is exhausted.
	DetailEndOfInput
)

// String returns the string representation of the detail kind
func (d DetailKind) String() string {
	switch d {
	case DetailNone:
		return "none"
	case DetailBackOff:
		return "backoff"
	case DetailNotConnected:
		return "not_connected"
	case DetailEndOfInput:
		return "end_of_input"
	default:
		return "unknown"
	}
}

// Error is the wire-level error value attached to calls and messages. It is
// a value type: the zero Error means "no error", and an Error is active if
// and only if Message is non-empty. Detail presence with an empty Message is
// a contract violation the wire format cannot prevent; Validate rejects it
// and Normalize repairs it.
type Error struct {
	Message string
	detail  DetailKind
	backoff time.Duration
}

// NewError returns an Error with no detail. An empty msg yields the zero
// "no error" value.
func NewError(msg string) Error {
	return Error{Message: msg}
}

// NewBackOffError returns an active Error asking the caller to wait at
// least delay before retrying the same call.
func NewBackOffError(msg string, delay time.Duration) Error {
	return Error{Message: msg, detail: DetailBackOff, backoff: delay}
}

// NewNotConnectedError returns an active Error reporting a lost connection.
func NewNotConnectedError(msg string) Error {
	return Error{Message: msg, detail: DetailNotConnected}
}

// NewEndOfInputError returns an active Error reporting source exhaustion.
func NewEndOfInputError(msg string) Error {
	return Error{Message: msg, detail: DetailEndOfInput}
}

// Active reports whether this is a real error. The predicate is computed
// from the message text, never from detail presence.
func (e Error) Active() bool {
	return e.Message != ""
}

// Detail returns the classified detail kind.
func (e Error) Detail() DetailKind {
	return e.detail
}

// BackOffDelay returns the requested delay when the detail is BackOff.
func (e Error) BackOffDelay() (time.Duration, bool) {
	if e.detail != DetailBackOff {
		return 0, false
	}
	return e.backoff, true
}

// Validate checks the contract that a detail is only ever set alongside a
// non-empty message.
func (e Error) Validate() error {
	if e.detail != DetailNone && e.Message == "" {
		return errors.WrapInvalid(
			fmt.Errorf("detail %s set on error with empty message", e.detail),
			"message", "Validate", "check error contract")
	}
	if e.detail == DetailBackOff && e.backoff < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("negative backoff %s", e.backoff),
			"message", "Validate", "check error contract")
	}
	return nil
}

// Normalize returns the Error with any orphan detail dropped, so a
// detail-with-empty-message value degrades to "no error" instead of being
// silently trusted.
func (e Error) Normalize() Error {
	if e.Message == "" {
		return Error{}
	}
	if e.detail == DetailBackOff && e.backoff < 0 {
		e.backoff = 0
	}
	return e
}

// Equal reports value equality.
func (e Error) Equal(o Error) bool {
	return e.Message == o.Message && e.detail == o.detail && e.backoff == o.backoff
}

// AsError converts an active wire Error into the host's Go error taxonomy:
// NotConnected and EndOfInput map to their sentinels, BackOff wraps the
// message with its delay, and an undetailed error becomes a plain error.
// Returns nil when the Error is inactive, including when an orphan detail
// is present.
func (e Error) AsError() error {
	if !e.Active() {
		return nil
	}
	switch e.detail {
	case DetailNotConnected:
		return fmt.Errorf("%s: %w", e.Message, errors.ErrNotConnected)
	case DetailEndOfInput:
		return fmt.Errorf("%s: %w", e.Message, errors.ErrEndOfInput)
	case DetailBackOff:
		return errors.BackOff(stderrors.New(e.Message), e.backoff)
	default:
		return stderrors.New(e.Message)
	}
}

// ErrorFrom converts a Go error into its wire Error form, the inverse of
// AsError. A nil error yields the zero Error.
func ErrorFrom(err error) Error {
	if err == nil {
		return Error{}
	}
	if delay, ok := errors.AsBackOff(err); ok {
		return NewBackOffError(err.Error(), delay)
	}
	if stderrors.Is(err, errors.ErrNotConnected) {
		return NewNotConnectedError(err.Error())
	}
	if stderrors.Is(err, errors.ErrEndOfInput) {
		return NewEndOfInputError(err.Error())
	}
	return NewError(err.Error())
}
