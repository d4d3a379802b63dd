// Package channel connects the debugger goroutine, which produces operation
// records while the traced program is halted, to the visualization goroutine,
// which drains them on a fixed poll period.
//
// The queue is unbounded: production is paced by a single-stepped traced
// program and cannot outrun the consumer indefinitely. A record therefore
// waits at most one poll period before it is applied.
package channel

import (
	"sync"
	"sync/atomic"

	"github.com/Iron-Ham/sortwatch/internal/record"
)

// Queue is a thread-safe FIFO of operation records. Push never blocks and
// Drain never waits.
type Queue struct {
	mu      sync.Mutex
	items   []record.Record
	closed  bool
	nextSeq atomic.Uint64
	dropped atomic.Uint64
}

// New creates an empty Queue.
func New() *Queue {
	return &Queue{}
}

// Push appends r, stamping it with the next sequence number, and returns the
// stamped record. Pushes after Close are dropped and counted.
func (q *Queue) Push(r record.Record) record.Record {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.dropped.Add(1)
		return r
	}
	r = r.WithSeq(q.nextSeq.Add(1))
	q.items = append(q.items, r)
	return r
}

// Drain removes and returns every queued record in production order. It
// returns nil when nothing is queued.
func (q *Queue) Drain() []record.Record {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = nil
	return out
}

// Len returns the number of queued records.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close marks the end of production. Records already queued can still be
// drained.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

// Closed reports whether Close has been called. Together with an empty Drain
// it tells the consumer no more records will arrive.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Dropped returns the number of pushes rejected after Close.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

// Produced returns the number of records accepted so far.
func (q *Queue) Produced() uint64 {
	return q.nextSeq.Load()
}
