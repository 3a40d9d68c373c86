package errors

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Standard error variables for common conditions
var (
	// Protocol errors carried back from plugin calls
	ErrNotConnected = errors.New("plugin not connected")
	ErrEndOfInput   = errors.New("end of input")

	// Connection lifecycle errors (host-side programming and state errors)
	ErrNotConnectedState = errors.New("connection not established")
	ErrConnectionClosed  = errors.New("connection closed")
	ErrAlreadyConnected  = errors.New("connection already established")

	// Host errors
	ErrShuttingDown       = errors.New("host is shutting down")
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")
)

// BackOffError wraps a call failure with a server-requested delay. The
// caller must wait at least Delay and then retry the exact same call with
// the exact same arguments; a backoff does not force a reconnect.
type BackOffError struct {
	Err   error
	Delay time.Duration
}

// Error implements the error interface
func (e *BackOffError) Error() string {
	return fmt.Sprintf("back off %s: %v", e.Delay, e.Err)
}

// Unwrap returns the wrapped failure
func (e *BackOffError) Unwrap() error {
	return e.Err
}

// RetryDelay returns the server-requested delay. It satisfies the retry
// framework's delay-hint interface so a scheduled retry waits at least this
// long.
func (e *BackOffError) RetryDelay() time.Duration {
	return e.Delay
}

// BackOff wraps err with a retry delay. A nil err is wrapped around a
// generic placeholder so the delay is never silently lost.
func BackOff(err error, delay time.Duration) error {
	if err == nil {
		err = errors.New("backoff requested")
	}
	return &BackOffError{Err: err, Delay: delay}
}

// AsBackOff extracts a backoff delay from an error chain.
func AsBackOff(err error) (time.Duration, bool) {
	var boe *BackOffError
	if errors.As(err, &boe) {
		return boe.Delay, true
	}
	return 0, false
}

// Role identifies the pipeline role of a plugin instance.
type Role int

const (
	// RoleInput is a batch source.
	RoleInput Role = iota
	// RoleProcessor is a batch transform.
	RoleProcessor
	// RoleOutput is a batch sink.
	RoleOutput
)

// String returns the string representation of the role
func (r Role) String() string {
	switch r {
	case RoleInput:
		return "input"
	case RoleProcessor:
		return "processor"
	case RoleOutput:
		return "output"
	default:
		return "unknown"
	}
}

// Op identifies one of the protocol operations on a plugin connection.
type Op int

const (
	// OpConnect establishes the plugin session.
	OpConnect Op = iota
	// OpRead pulls a batch from an input.
	OpRead
	// OpWrite pushes a batch to an output.
	OpWrite
	// OpProcess transforms a batch through a processor.
	OpProcess
	// OpClose tears the session down.
	OpClose
)

// String returns the string representation of the operation
func (o Op) String() string {
	switch o {
	case OpConnect:
		return "connect"
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpProcess:
		return "process"
	case OpClose:
		return "close"
	default:
		return "unknown"
	}
}

// Action is what the pump must do after a plugin call completes.
type Action int

const (
	// ActionNone means the call succeeded; continue normally.
	ActionNone Action = iota
	// ActionRetryAfter means wait Decision.Delay, then retry the same call
	// with the same arguments. The connection stays up.
	ActionRetryAfter
	// ActionReconnect means the session is gone; run Connect before any
	// further Read or Write.
	ActionReconnect
	// ActionComplete means the input source is exhausted; terminate the
	// branch gracefully.
	ActionComplete
	// ActionFatal means the call failed with no recovery signal; surface
	// the failure to the operator.
	ActionFatal
)

// String returns the string representation of the action
func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionRetryAfter:
		return "retry_after"
	case ActionReconnect:
		return "reconnect"
	case ActionComplete:
		return "complete"
	case ActionFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Decision is the classifier's verdict on a single call outcome.
type Decision struct {
	Action Action
	// Delay is the minimum wait before retrying; set for ActionRetryAfter.
	Delay time.Duration
	// Err is the classified error, nil for ActionNone and ActionComplete.
	Err error
}

// Policy adjusts classification for signals the protocol leaves to the host.
type Policy struct {
	// TreatTimeoutAsDisconnect classifies a call deadline expiry as a lost
	// connection instead of a generic fatal error. A deadline expiry is NOT
	// part of the wire detail oneof, so this stays a host-side policy.
	TreatTimeoutAsDisconnect bool
}

// Classify maps a call outcome to the next pump action using the default
// policy (timeouts are fatal).
func Classify(err error, role Role, op Op) Decision {
	return Policy{}.Classify(err, role, op)
}

// Classify maps a call outcome to the next pump action.
//
// Priority when multiple signals could apply:
// NotConnected > EndOfInput > BackOff > generic fatal. EndOfInput is only
// legal on an input Read; BackOff is only legal on input/output
// Connect/Read/Write. Illegal signals demote to ActionFatal rather than
// being honored.
func (p Policy) Classify(err error, role Role, op Op) Decision {
	if err == nil {
		return Decision{Action: ActionNone}
	}

	if errors.Is(err, ErrNotConnected) {
		return Decision{Action: ActionReconnect, Err: err}
	}

	if errors.Is(err, ErrEndOfInput) {
		if role == RoleInput && op == OpRead {
			return Decision{Action: ActionComplete}
		}
		return Decision{
			Action: ActionFatal,
			Err:    fmt.Errorf("end of input signaled on %s %s: %w", role, op, err),
		}
	}

	if delay, ok := AsBackOff(err); ok {
		if backOffLegal(role, op) {
			return Decision{Action: ActionRetryAfter, Delay: delay, Err: err}
		}
		return Decision{
			Action: ActionFatal,
			Err:    fmt.Errorf("backoff signaled on %s %s: %w", role, op, err),
		}
	}

	if errors.Is(err, context.DeadlineExceeded) && p.TreatTimeoutAsDisconnect {
		return Decision{Action: ActionReconnect, Err: err}
	}

	return Decision{Action: ActionFatal, Err: err}
}

func backOffLegal(role Role, op Op) bool {
	if role == RoleProcessor {
		return false
	}
	return op == OpConnect || op == OpRead || op == OpWrite
}
