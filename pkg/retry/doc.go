// Package retry provides capped exponential backoff for plugin reconnect
// loops.
//
// Do runs a function until it succeeds, the attempt budget is exhausted, or
// the context ends. Delays grow by Multiplier up to MaxDelay, with optional
// jitter to avoid thundering-herd reconnects. Two error markers adjust the
// schedule: NonRetryable aborts immediately, and any error exposing a
// RetryDelay() duration (a server-requested backoff) sets the floor for the
// next delay without consuming an attempt — the remote end asking for
// patience is not a failing attempt.
//
// A retry already scheduled is abandoned, never fired, once the context is
// cancelled.
package retry
