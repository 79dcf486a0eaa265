package bus

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/yanun0323/errors"
)

var (
	ErrQueueFull    = errors.New("event queue full")
	ErrQueueClosed  = errors.New("event queue closed")
	ErrQueueTimeout = errors.New("event queue publish timeout")
)

// Queue is a bounded topic channel between pipeline stages. Delivery is
// FIFO per producer; overflow is always surfaced to the sender so the
// caller can apply its own backpressure policy.
type Queue[T any] struct {
	ch      chan T
	closed  uint32
	dropped uint64
}

// NewQueue allocates a queue with the given capacity.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue[T]{ch: make(chan T, capacity)}
}

// TryPublish enqueues an item without blocking. A full queue returns
// ErrQueueFull and increments the drop counter.
func (q *Queue[T]) TryPublish(item T) error {
	if atomic.LoadUint32(&q.closed) != 0 {
		return ErrQueueClosed
	}
	select {
	case q.ch <- item:
		return nil
	default:
		atomic.AddUint64(&q.dropped, 1)
		return ErrQueueFull
	}
}

// Publish enqueues an item, blocking up to the given timeout.
func (q *Queue[T]) Publish(ctx context.Context, item T, timeout time.Duration) error {
	if atomic.LoadUint32(&q.closed) != 0 {
		return ErrQueueClosed
	}
	if timeout <= 0 {
		return q.TryPublish(item)
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case q.ch <- item:
		return nil
	case <-timer.C:
		atomic.AddUint64(&q.dropped, 1)
		return ErrQueueTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// C exposes the receive side for multi-way selects in component run loops.
func (q *Queue[T]) C() <-chan T {
	return q.ch
}

// Len returns the number of buffered items.
func (q *Queue[T]) Len() int {
	return len(q.ch)
}

// Dropped returns the number of items rejected due to overflow or timeout.
func (q *Queue[T]) Dropped() uint64 {
	return atomic.LoadUint64(&q.dropped)
}

// Close stops the queue from accepting new items.
func (q *Queue[T]) Close() {
	if atomic.CompareAndSwapUint32(&q.closed, 0, 1) {
		close(q.ch)
	}
}

// Run consumes items until the context is done or the queue is closed.
func (q *Queue[T]) Run(ctx context.Context, handler func(T)) {
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-q.ch:
			if !ok {
				return
			}
			handler(item)
		}
	}
}
