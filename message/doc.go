// Package message defines the envelope types exchanged with out-of-process
// plugins: Message, Batch, and the wire-level Error.
//
// A Message carries exactly one payload, either raw bytes or a structured
// Value, plus a metadata struct for out-of-band attributes and an optional
// classified Error. A message whose Error is active is payload-less from the
// business-logic perspective; the error is the authoritative outcome for
// that unit of work.
//
// A Batch is an ordered sequence of Messages and is the atomic unit of every
// Read, Write, and Process call: batch order is the producer-to-consumer
// ordering guarantee, and a batch is the smallest unit retried on reconnect.
//
// Error is a value type, not a presence flag. It is active if and only if
// its message text is non-empty; the zero Error means "no error". An active
// Error optionally carries exactly one detail — BackOff(duration),
// NotConnected, or EndOfInput — which the host's classifier interprets to
// drive reconnection, delayed retry, or graceful termination.
package message
