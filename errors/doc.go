// Package errors provides the error taxonomy for the plugin protocol and
// standardized error handling for the host.
//
// Two layers live here. The protocol layer models the classified outcomes a
// plugin call can produce across the RPC boundary: a lost connection
// (ErrNotConnected), an exhausted source (ErrEndOfInput), and a
// server-requested delay before retrying the same call (BackOffError). The
// Classify function turns any call outcome into the action the pump must
// take next, applying the protocol priority order
// NotConnected > EndOfInput > BackOff > generic fatal and demoting signals
// that are illegal for the call's role and operation.
//
// The ambient layer carries the framework conventions: sentinel variables,
// ClassifiedError, and the Wrap helpers producing
// "component.method: action failed" messages for consistent error context
// across the codebase.
package errors
