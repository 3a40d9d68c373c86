// Package metric manages Prometheus metric registration for the host.
//
// A Registry wraps a private prometheus.Registry, pre-loads the Go runtime
// and process collectors, and tracks registrations by component and metric
// name so duplicates fail fast with a classified error. Components follow
// the nil-registry pattern: constructors that receive a nil *Registry skip
// metrics entirely.
package metric
