// Package memory provides the bounded in-process queues that connect the
// pipeline stages.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrTerminated is returned by Dequeue when the consumer pulled a
	// terminator and must stop.
	ErrTerminated = errors.New("queue terminated")
	// ErrClosed is returned once the queue has been closed.
	ErrClosed = errors.New("queue closed")
)

type envelope[T any] struct {
	item T
	stop bool
}

// Queue is a bounded FIFO with context-aware operations, terminator
// sentinels and completion accounting.
type Queue[T any] struct {
	ch   chan envelope[T]
	done chan struct{}

	closeOnce sync.Once

	mu        sync.Mutex
	pending   int
	completed int64
	drained   chan struct{}
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	drained := make(chan struct{})
	close(drained)
	return &Queue[T]{
		ch:      make(chan envelope[T], capacity),
		done:    make(chan struct{}),
		drained: drained,
	}
}

// Enqueue pushes an item into the queue or returns if the context ends.
func (q *Queue[T]) Enqueue(ctx context.Context, item T) error {
	q.addPending(1)
	if err := q.send(ctx, envelope[T]{item: item}); err != nil {
		q.addPending(-1)
		return fmt.Errorf("enqueue canceled: %w", err)
	}
	return nil
}

// Terminate enqueues n terminators. Each is observed by exactly one Dequeue.
func (q *Queue[T]) Terminate(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		if err := q.send(ctx, envelope[T]{stop: true}); err != nil {
			return fmt.Errorf("terminate %d/%d: %w", i+1, n, err)
		}
	}
	return nil
}

func (q *Queue[T]) send(ctx context.Context, env envelope[T]) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		return ErrClosed
	case q.ch <- env:
		return nil
	}
}

// Dequeue pops the next item, respecting context cancellation. It returns
// ErrTerminated when the popped element is a terminator.
func (q *Queue[T]) Dequeue(ctx context.Context) (T, error) {
	var zero T
	select {
	case <-ctx.Done():
		return zero, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case <-q.done:
		return zero, ErrClosed
	case env := <-q.ch:
		if env.stop {
			return zero, ErrTerminated
		}
		return env.item, nil
	}
}

// TaskDone marks one previously dequeued item as fully processed.
func (q *Queue[T]) TaskDone() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pending == 0 {
		return
	}
	q.completed++
	q.setPendingLocked(q.pending - 1)
}

func (q *Queue[T]) addPending(delta int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.setPendingLocked(q.pending + delta)
}

func (q *Queue[T]) setPendingLocked(n int) {
	if q.pending == 0 && n > 0 {
		q.drained = make(chan struct{})
	}
	q.pending = n
	if n == 0 {
		select {
		case <-q.drained:
		default:
			close(q.drained)
		}
	}
}

// Len reports the number of buffered elements, terminators included.
func (q *Queue[T]) Len() int {
	return len(q.ch)
}

// Pending reports items enqueued but not yet marked done.
func (q *Queue[T]) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending
}

// Completed reports how many items have been marked done. It never decreases.
func (q *Queue[T]) Completed() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.completed
}

// Drained returns a channel closed while no items are pending. Callers should
// fetch a fresh channel after enqueueing more work.
func (q *Queue[T]) Drained() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.drained
}

// Close releases blocked producers and consumers. Safe to call twice.
func (q *Queue[T]) Close() {
	q.closeOnce.Do(func() {
		close(q.done)
	})
}
