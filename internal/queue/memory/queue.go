// Package memory provides the in-process FIFO that feeds the enrichment worker.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/tubeshelf/internal/library"
)

// ErrClosed is returned once the queue has been closed.
var ErrClosed = library.ErrQueueClosed

// Queue is an unbounded FIFO with context-aware dequeue. Enqueue never blocks
// so link creation is never held up by a slow consumer.
type Queue struct {
	mu     sync.Mutex
	items  []library.Task
	ready  chan struct{}
	closed bool
}

// NewQueue constructs an empty queue.
func NewQueue() *Queue {
	return &Queue{
		ready: make(chan struct{}, 1),
	}
}

// Enqueue appends a task.
func (q *Queue) Enqueue(ctx context.Context, task library.Task) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("enqueue canceled: %w", err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	q.items = append(q.items, task)
	q.signal()
	return nil
}

// Dequeue pops the oldest task, waiting until one is available.
func (q *Queue) Dequeue(ctx context.Context) (library.Task, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			task := q.items[0]
			q.items[0] = library.Task{}
			q.items = q.items[1:]
			if len(q.items) > 0 {
				q.signal()
			}
			q.mu.Unlock()
			return task, nil
		}
		if q.closed {
			q.mu.Unlock()
			return library.Task{}, ErrClosed
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return library.Task{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
		case <-q.ready:
		}
	}
}

// Len reports the number of waiting tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close wakes blocked consumers; tasks still queued are abandoned and picked
// up again from link state on the next start.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.items = nil
	close(q.ready)
}

// signal must be called with mu held on an open queue.
func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
