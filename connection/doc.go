// Package connection implements the per-plugin-instance session state
// machine that sits between a pump and the RPC boundary.
//
// The Client interface is the boundary itself: an external RPC framework
// (or an in-process adapter) delivers each Connect/Read/Write/Process/Close
// call reliably and in order, and surfaces the wire-level Error values as
// Go errors from the errors package taxonomy.
//
// A Connection wraps one Client with the lifecycle
//
//	Disconnected → Connecting → Connected → Closed
//
// and enforces the protocol's call discipline: at most one call in flight
// per instance (the transport session is not assumed safe for concurrent
// calls), Read/Write/Process rejected while Disconnected, Closed as a
// terminal state, and Close as an idempotent no-op. State transitions react
// to classified call outcomes — a NotConnected error drops the session back
// to Disconnected, EndOfInput on an input Read closes it gracefully, and a
// BackOff leaves it Connected for an in-place retry.
package connection
