package message

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/c360/streamplug/value"
)

// Wire layouts. The payload oneof is encoded as an explicit discriminator
// plus the active field so raw bytes and structured payloads never blur,
// and the error detail travels as its kind tag plus the backoff duration in
// nanoseconds.
type wireError struct {
	Message string `cbor:"m,omitempty"`
	Detail  uint8  `cbor:"d,omitempty"`
	BackOff int64  `cbor:"b,omitempty"`
}

type wireMessage struct {
	ID         string                 `cbor:"id,omitempty"`
	Structured bool                   `cbor:"st,omitempty"`
	Raw        []byte                 `cbor:"r,omitempty"`
	Value      *value.Value           `cbor:"v,omitempty"`
	Metadata   map[string]value.Value `cbor:"md,omitempty"`
	Error      *wireError             `cbor:"e,omitempty"`
}

type wireBatch struct {
	Messages []wireMessage `cbor:"ms,omitempty"`
}

func (e Error) toWire() *wireError {
	if !e.Active() && e.detail == DetailNone {
		return nil
	}
	return &wireError{
		Message: e.Message,
		Detail:  uint8(e.detail),
		BackOff: int64(e.backoff),
	}
}

func (w *wireError) toError() (Error, error) {
	if w == nil {
		return Error{}, nil
	}
	e := Error{
		Message: w.Message,
		detail:  DetailKind(w.Detail),
		backoff: time.Duration(w.BackOff),
	}
	if e.detail < DetailNone || e.detail > DetailEndOfInput {
		return Error{}, fmt.Errorf("unknown error detail %d", w.Detail)
	}
	// The wire format cannot enforce the detail-implies-message contract,
	// so it is normalized away at the boundary.
	return e.Normalize(), nil
}

func (m Message) toWire() wireMessage {
	w := wireMessage{
		ID:       m.id,
		Metadata: m.metadata,
		Error:    m.err.toWire(),
	}
	if m.isStruct {
		w.Structured = true
		v := m.structured
		w.Value = &v
	} else {
		w.Raw = m.raw
	}
	return w
}

func (w wireMessage) toMessage() (Message, error) {
	e, err := w.Error.toError()
	if err != nil {
		return Message{}, err
	}
	m := Message{
		id:       w.ID,
		metadata: w.Metadata,
		err:      e,
	}
	if w.Structured {
		m.isStruct = true
		if w.Value != nil {
			m.structured = *w.Value
		}
	} else {
		m.raw = w.Raw
	}
	return m, nil
}

// Encode serializes the Message to wire bytes.
func (m Message) Encode() ([]byte, error) {
	data, err := cbor.Marshal(m.toWire())
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return data, nil
}

// DecodeMessage deserializes wire bytes produced by Message.Encode.
func DecodeMessage(data []byte) (Message, error) {
	var w wireMessage
	if err := cbor.Unmarshal(data, &w); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	return w.toMessage()
}

// Encode serializes the Batch to wire bytes.
func (b Batch) Encode() ([]byte, error) {
	w := wireBatch{Messages: make([]wireMessage, len(b))}
	for i, m := range b {
		w.Messages[i] = m.toWire()
	}
	data, err := cbor.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}
	return data, nil
}

// DecodeBatch deserializes wire bytes produced by Batch.Encode.
func DecodeBatch(data []byte) (Batch, error) {
	var w wireBatch
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode batch: %w", err)
	}
	b := make(Batch, len(w.Messages))
	for i, wm := range w.Messages {
		m, err := wm.toMessage()
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		b[i] = m
	}
	return b, nil
}
