// Package host runs the pipeline: it owns one Connection per configured
// plugin instance and drives each with exactly one pump goroutine.
//
// Batches flow input pumps → merge queue → processor pumps → fan-out →
// output pumps, with a bounded queue between every stage. Each pump holds
// at most one batch in flight on its own connection, so backpressure
// propagates naturally: a producer suspends on a full queue until a
// consumer drains it.
//
// The pump consults the error classifier after every Connect, Read, Write,
// and Process outcome. NotConnected triggers a reconnect under the
// configured retry budget; a BackOff waits at least the requested delay and
// retries the exact same call; EndOfInput finishes the input branch
// gracefully; anything else is surfaced to the operator without crashing
// the pipeline. An output batch is never silently dropped: reconnects
// retry the same batch (at-least-once delivery), and fatal write failures
// are handed to the rejected-batch callback.
//
// Ordering: batches from one input reach downstream stages in Read order;
// independent instances are ordered only within themselves. The pipeline
// completes when ALL input branches have finished; shutdown cancels pumps,
// abandons scheduled retries, and drives every connection to Closed.
package host
