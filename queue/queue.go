// Package queue provides the bounded in-memory buffer between the redirect
// hot path and the analytics aggregator.
package queue

import (
	"sync/atomic"

	"shortlink-service/models"
)

// Queue is a bounded multi-producer click event buffer. Producers never
// block: when the buffer is full the event is dropped and the drop counter
// incremented. Analytics fidelity degrades under overload before redirect
// latency does.
type Queue struct {
	ch      chan models.ClickEvent
	dropped atomic.Int64
}

func New(capacity int) *Queue {
	return &Queue{
		ch: make(chan models.ClickEvent, capacity),
	}
}

// Offer enqueues an event without blocking. It reports whether the event was
// accepted; a false return means the buffer was full and the event dropped.
func (q *Queue) Offer(event models.ClickEvent) bool {
	select {
	case q.ch <- event:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Events exposes the receive side of the buffer to consumer workers.
func (q *Queue) Events() <-chan models.ClickEvent {
	return q.ch
}

// Len returns the current number of buffered events.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Cap returns the buffer capacity.
func (q *Queue) Cap() int {
	return cap(q.ch)
}

// Dropped returns the total number of events discarded because the buffer
// was full.
func (q *Queue) Dropped() int64 {
	return q.dropped.Load()
}
