// Package streamplug is a runtime plugin protocol and host for streaming
// pipelines. It defines the data model exchanged with out-of-process
// plugins and the host machinery that drives them.
//
// # Architecture
//
// A pipeline is a set of plugin instances in three roles, connected by
// bounded queues:
//
//	┌────────┐   ┌────────┐   ┌───────────┐   ┌────────┐
//	│ Input  ├─┐ │        │   │           │   │ Output │
//	└────────┘ ├─► merge  ├───► processor ├─┬─►        │
//	┌────────┐ │ │ queue  │   │  chain    │ │ └────────┘
//	│ Input  ├─┘ │        │   │           │ │ ┌────────┐
//	└────────┘   └────────┘   └───────────┘ └─► Output │
//	                                          └────────┘
//
// Inputs produce batches, processors transform them, outputs deliver
// them. Every inter-stage queue is bounded, so a slow consumer suspends
// its producers instead of growing memory.
//
// # Data Model
//
// The value package defines the dynamically typed Value exchanged with
// plugins: null, string, int64, double, bool, timestamp, bytes, struct,
// and list, with a CBOR wire form that round-trips every kind exactly.
// The message package wraps Values into Messages and Batches and carries
// the protocol's error signals (backoff, not-connected, end-of-input) as
// plain data.
//
// # Protocol
//
// The connection package drives the session lifecycle of one plugin
// (Disconnected, Connecting, Connected, Closed) and serializes calls
// against it. The errors package classifies every call outcome into the
// action the pump must take: retry after a delay, reconnect, complete
// the branch, or surface a fatal failure. The host package runs the
// pumps, honoring at-least-once delivery to outputs and per-branch
// ordering.
//
// # Packages
//
// Data model:
//   - value: dynamically typed values and their CBOR codec
//   - message: messages, batches, and protocol error values
//
// Protocol:
//   - connection: plugin session lifecycle and call serialization
//   - errors: error taxonomy and outcome classification
//
// Host:
//   - host: batch pumps, fan-out, join, and retry behavior
//   - queue: bounded blocking queues between pump stages
//   - config: pipeline configuration (YAML)
//   - health: pipeline and connection health reporting
//   - events: pipeline lifecycle events (log and NATS)
//   - metric: Prometheus metrics registry
//   - pkg/retry: capped exponential backoff with delay hints
//
// # Binary
//
// Build and run the pipeline host:
//
//	go build ./cmd/streamplug
//	./streamplug --config configs/pipeline.yaml
//
// The binary ships with generate, mapping, stdout, and discard drivers
// for smoke-testing pipelines before real plugins are wired in.
package streamplug
