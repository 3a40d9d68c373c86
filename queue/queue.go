package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// ErrQueueClosed is returned by Push after Close, and by Pull once a closed
// queue has been fully drained.
var ErrQueueClosed = errors.New("queue closed")

// Statistics tracks queue activity. All counters are monotonic.
type Statistics struct {
	Pushed    int64
	Pulled    int64
	MaxDepth  int64
	PushWaits int64
}

// Option configures a Queue.
type Option[T any] func(*Queue[T])

// WithDepthGauge attaches a Prometheus gauge tracking the current depth.
func WithDepthGauge[T any](g prometheus.Gauge) Option[T] {
	return func(q *Queue[T]) {
		q.depthGauge = g
	}
}

// Queue is a bounded, blocking, context-aware FIFO carrying items between
// exactly one pump stage and the next. The zero value is not usable; use New.
type Queue[T any] struct {
	ch         chan T
	closeOnce  sync.Once
	closed     atomic.Bool
	depthGauge prometheus.Gauge

	pushed    atomic.Int64
	pulled    atomic.Int64
	maxDepth  atomic.Int64
	pushWaits atomic.Int64
}

// New creates a queue holding at most capacity items. A capacity below one
// is raised to one: a zero-capacity queue could never move an item under
// the one-batch-in-flight pump discipline.
func New[T any](capacity int, opts ...Option[T]) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	q := &Queue[T]{ch: make(chan T, capacity)}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Push appends an item, blocking while the queue is full. It returns
// ErrQueueClosed if the queue was closed, or the context error if ctx ends
// while blocked.
func (q *Queue[T]) Push(ctx context.Context, item T) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}

	// Fast path avoids counting a wait when there is room.
	select {
	case q.ch <- item:
		q.notePush()
		return nil
	default:
	}

	q.pushWaits.Add(1)
	select {
	case q.ch <- item:
		q.notePush()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pull removes the oldest item, blocking while the queue is empty. Once the
// queue is closed and drained it returns ErrQueueClosed.
func (q *Queue[T]) Pull(ctx context.Context) (T, error) {
	var zero T
	for {
		select {
		case item, ok := <-q.ch:
			if !ok {
				return zero, ErrQueueClosed
			}
			q.pulled.Add(1)
			q.updateGauge()
			return item, nil
		case <-ctx.Done():
			// Prefer a remaining item over the cancellation so close-time
			// drains are not lossy, but never block.
			select {
			case item, ok := <-q.ch:
				if !ok {
					return zero, ErrQueueClosed
				}
				q.pulled.Add(1)
				q.updateGauge()
				return item, nil
			default:
				return zero, ctx.Err()
			}
		}
	}
}

// Close marks the queue closed. Items already queued remain pullable;
// subsequent pushes fail with ErrQueueClosed. Close is idempotent. It must
// only be called once every producer has stopped pushing; the host's pump
// supervision guarantees this ordering.
func (q *Queue[T]) Close() {
	q.closeOnce.Do(func() {
		q.closed.Store(true)
		close(q.ch)
	})
}

// Len returns the current depth.
func (q *Queue[T]) Len() int {
	return len(q.ch)
}

// Cap returns the configured capacity.
func (q *Queue[T]) Cap() int {
	return cap(q.ch)
}

// Stats returns a snapshot of queue statistics.
func (q *Queue[T]) Stats() Statistics {
	return Statistics{
		Pushed:    q.pushed.Load(),
		Pulled:    q.pulled.Load(),
		MaxDepth:  q.maxDepth.Load(),
		PushWaits: q.pushWaits.Load(),
	}
}

func (q *Queue[T]) notePush() {
	q.pushed.Add(1)
	depth := int64(len(q.ch))
	for {
		prev := q.maxDepth.Load()
		if depth <= prev || q.maxDepth.CompareAndSwap(prev, depth) {
			break
		}
	}
	q.updateGauge()
}

func (q *Queue[T]) updateGauge() {
	if q.depthGauge != nil {
		q.depthGauge.Set(float64(len(q.ch)))
	}
}
