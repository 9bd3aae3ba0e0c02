package bridge

import (
	"context"
	"sync/atomic"
	"time"
)

// Queue is a bounded FIFO relay queue connecting one handler's receive path
// to the opposite handler's send path. Enqueue never blocks: when the queue
// is full the incoming message is dropped and counted, preserving the
// messages already waiting. Dequeue blocks the single consumer up to a
// timeout so it can observe shutdown between items.
type Queue struct {
	ch      chan Message
	dropped atomic.Uint64
}

// NewQueue creates a queue with the given fixed capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{ch: make(chan Message, capacity)}
}

// Enqueue appends a message and reports whether it was accepted. A full
// queue rejects the message, leaves existing entries untouched and
// increments the drop counter.
func (q *Queue) Enqueue(msg Message) bool {
	select {
	case q.ch <- msg:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Dequeue removes and returns the oldest message, blocking up to timeout.
// It returns false on timeout or context cancellation.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (Message, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-q.ch:
		return msg, true
	case <-timer.C:
		return Message{}, false
	case <-ctx.Done():
		return Message{}, false
	}
}

// Len returns the number of queued messages.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Capacity returns the fixed queue capacity.
func (q *Queue) Capacity() int {
	return cap(q.ch)
}

// Dropped returns the number of messages rejected because the queue was full.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}
