// Package queue provides the bounded, blocking queues that connect pump
// stages.
//
// A Queue is the only structure shared between pumps. It enforces the
// pipeline's backpressure discipline: Push blocks once the queue is full and
// resumes only when a consumer drains it, so no stage can buffer without
// bound. Push and Pull are context-aware so a shutdown signal interrupts a
// blocked pump immediately.
//
// Closing a queue lets consumers drain the remaining items before observing
// ErrQueueClosed, which is how branch completion propagates downstream.
//
// Statistics are always collected; a Prometheus depth gauge can be attached
// via the WithDepthGauge option.
package queue
