// Package events publishes pipeline lifecycle events for operators.
//
// Reconnects and backoffs are transient events, branch completion is a
// normal event, and generic fatal call errors are attention-worthy ones.
// Every event is mirrored to the structured logger; when a NATS connection
// is configured the event is also published as JSON on the subject
// events.{pipeline}.{instance} for remote consumption. Without NATS the
// publisher degrades to log-only.
package events
