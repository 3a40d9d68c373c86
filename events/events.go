package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Type identifies the kind of pipeline event
type Type string

const (
	// TypeStarted marks a pipeline starting its pumps.
	TypeStarted Type = "started"
	// TypeStopped marks a pipeline after all pumps have exited.
	TypeStopped Type = "stopped"
	// TypeReconnect marks a plugin session being re-established after a
	// NotConnected outcome.
	TypeReconnect Type = "reconnect"
	// TypeBackOff marks a server-requested retry delay.
	TypeBackOff Type = "backoff"
	// TypeBranchComplete marks an input branch finishing gracefully.
	TypeBranchComplete Type = "branch_complete"
	// TypeFatalError marks a call failure with no recovery signal.
	TypeFatalError Type = "fatal_error"
)

// Event is the JSON wire form of a pipeline event
type Event struct {
	Timestamp string `json:"timestamp"` // RFC3339 format
	Pipeline  string `json:"pipeline"`
	Instance  string `json:"instance"`
	Type      Type   `json:"type"`
	Message   string `json:"message"`
	Error     string `json:"error,omitempty"`
}

// Publisher emits pipeline events to the structured logger and, when a
// NATS connection is supplied, onto events.{pipeline}.{instance}.
type Publisher struct {
	pipeline string
	nc       *nats.Conn
	logger   *slog.Logger
	enabled  bool
}

// NewPublisher creates an event publisher. nc may be nil, in which case
// events only reach the logger.
func NewPublisher(pipeline string, nc *nats.Conn, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		pipeline: pipeline,
		nc:       nc,
		logger:   logger,
		enabled:  nc != nil,
	}
}

// subject returns the NATS subject for one event. Pipeline-level events
// carry no instance and publish on events.{pipeline}; an empty token would
// make the subject invalid.
func (p *Publisher) subject(instance string) string {
	if instance == "" {
		return fmt.Sprintf("events.%s", p.pipeline)
	}
	return fmt.Sprintf("events.%s.%s", p.pipeline, instance)
}

// Publish emits one event. Publishing is best-effort: a NATS failure is
// logged and never propagated to the pump that emitted the event.
func (p *Publisher) Publish(ctx context.Context, instance string, typ Type, msg string, cause error) {
	if p == nil {
		return
	}

	attrs := []any{"pipeline", p.pipeline, "instance", instance, "event", string(typ)}
	switch typ {
	case TypeFatalError:
		p.logger.Error(msg, append(attrs, "error", cause)...)
	case TypeReconnect, TypeBackOff:
		p.logger.Warn(msg, attrs...)
	default:
		p.logger.Info(msg, attrs...)
	}

	if !p.enabled {
		return
	}
	select {
	case <-ctx.Done():
		return
	default:
	}

	e := Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Pipeline:  p.pipeline,
		Instance:  instance,
		Type:      typ,
		Message:   msg,
	}
	if cause != nil {
		e.Error = cause.Error()
	}

	data, err := json.Marshal(e)
	if err != nil {
		p.logger.Error("failed to marshal pipeline event", "error", err)
		return
	}

	subject := p.subject(instance)
	if err := p.nc.Publish(subject, data); err != nil {
		p.logger.Error("failed to publish pipeline event", "error", err, "subject", subject)
	}
}
