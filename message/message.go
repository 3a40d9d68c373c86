package message

import (
	"github.com/google/uuid"

	"github.com/c360/streamplug/value"
)

// Message is one unit of pipeline data. The payload is either raw bytes or
// a structured Value, never both; metadata carries out-of-band attributes
// such as routing keys; Err, when active, is the authoritative outcome for
// this unit and makes the message payload-less from the business view.
//
// Messages are immutable values: mutators return modified copies, and the
// original is never changed once handed to a queue or a plugin call.
type Message struct {
	id         string
	raw        []byte
	structured value.Value
	isStruct   bool
	metadata   map[string]value.Value
	err        Error
}

// NewBytesMessage returns a Message carrying a raw byte payload.
func NewBytesMessage(raw []byte) Message {
	return Message{id: uuid.NewString(), raw: raw}
}

// NewStructuredMessage returns a Message carrying a structured Value.
func NewStructuredMessage(v value.Value) Message {
	return Message{id: uuid.NewString(), structured: v, isStruct: true}
}

// NewErrorMessage returns a payload-less Message whose outcome is err.
// The error is normalized so an orphan detail never crosses a queue.
func NewErrorMessage(err Error) Message {
	return Message{id: uuid.NewString(), err: err.Normalize()}
}

// ID returns the unique identifier of this message instance. IDs are
// host-local and not part of payload equality.
func (m Message) ID() string {
	return m.id
}

// Bytes returns the raw payload. The second return is false when the
// payload is structured or the message carries an active error.
func (m Message) Bytes() ([]byte, bool) {
	if m.isStruct || m.err.Active() {
		return nil, false
	}
	return m.raw, true
}

// Structured returns the structured payload. The second return is false
// when the payload is raw bytes or the message carries an active error.
func (m Message) Structured() (value.Value, bool) {
	if !m.isStruct || m.err.Active() {
		return value.Value{}, false
	}
	return m.structured, true
}

// Metadata returns the metadata struct. Callers must not mutate the map.
func (m Message) Metadata() map[string]value.Value {
	return m.metadata
}

// MetaValue returns one metadata attribute.
func (m Message) MetaValue(key string) (value.Value, bool) {
	v, ok := m.metadata[key]
	return v, ok
}

// WithMetadata returns a copy of the message with the attribute set.
func (m Message) WithMetadata(key string, v value.Value) Message {
	meta := make(map[string]value.Value, len(m.metadata)+1)
	for k, mv := range m.metadata {
		meta[k] = mv
	}
	meta[key] = v
	m.metadata = meta
	return m
}

// WithError returns a copy of the message carrying err as its outcome.
func (m Message) WithError(err Error) Message {
	m.err = err.Normalize()
	return m
}

// Err returns the message's wire Error; the zero Error means success.
func (m Message) Err() Error {
	return m.err
}

// Equal reports structural equality of payload, metadata, and error.
// Message IDs are host-local and excluded.
func (m Message) Equal(o Message) bool {
	if m.isStruct != o.isStruct || !m.err.Equal(o.err) {
		return false
	}
	if m.isStruct {
		if !m.structured.Equal(o.structured) {
			return false
		}
	} else {
		if len(m.raw) != len(o.raw) {
			return false
		}
		for i := range m.raw {
			if m.raw[i] != o.raw[i] {
				return false
			}
		}
	}
	if len(m.metadata) != len(o.metadata) {
		return false
	}
	for k, v := range m.metadata {
		ov, ok := o.metadata[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}
