package message

// Batch is an ordered sequence of Messages, the atomic unit exchanged by a
// single Read, Write, or Process call. Order within a batch is the
// producer-to-consumer ordering guarantee, and a batch is the smallest unit
// retried on reconnect. A zero-length Batch is a legal no-op.
type Batch []Message

// NewBatch returns a Batch over the given messages.
func NewBatch(msgs ...Message) Batch {
	return Batch(msgs)
}

// Len returns the number of messages in the batch.
func (b Batch) Len() int {
	return len(b)
}

// Clone returns a copy of the batch slice. Messages are immutable values,
// so a shallow copy is enough to protect retry identity.
func (b Batch) Clone() Batch {
	if b == nil {
		return nil
	}
	out := make(Batch, len(b))
	copy(out, b)
	return out
}

// Equal reports whether two batches carry the same messages in the same
// order.
func (b Batch) Equal(o Batch) bool {
	if len(b) != len(o) {
		return false
	}
	for i := range b {
		if !b[i].Equal(o[i]) {
			return false
		}
	}
	return true
}

// WithError returns a copy of the batch with err attached to every message,
// used when a processor call fails fatally and the batch is surfaced rather
// than dropped.
func (b Batch) WithError(err Error) Batch {
	out := make(Batch, len(b))
	for i, m := range b {
		out[i] = m.WithError(err)
	}
	return out
}
