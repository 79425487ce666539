// Package mailbox implements the bounded display queue between decoder
// workers and the render consumer.
package mailbox

import (
	"sync"
	"sync/atomic"
	"time"

	"vrx/station/pkg/frame"
)

// MailboxStats is a snapshot of queue counters.
type MailboxStats struct {
	Enqueued      uint64
	Dequeued      uint64
	DroppedOldest uint64
}

// Mailbox is a bounded FIFO of decoded frames with drop-oldest backpressure.
// Up to three workers produce into it; one consumer drains it.
//
// Enqueue transfers ownership of the frame to the mailbox; Dequeue transfers
// it to the caller, who must Free it. Frames evicted by the drop-oldest
// policy are freed by the mailbox itself.
type Mailbox struct {
	mu sync.Mutex // serializes enqueues so eviction keeps the count exact
	ch chan *frame.DecodedFrame

	enqueued atomic.Uint64
	dequeued atomic.Uint64
	dropped  atomic.Uint64
}

// New creates a mailbox holding at most capacity frames.
func New(capacity int) *Mailbox {
	return &Mailbox{
		ch: make(chan *frame.DecodedFrame, capacity),
	}
}

// Enqueue inserts f, evicting and freeing the oldest frame first if the
// queue is full. It never blocks beyond the eviction itself.
func (m *Mailbox) Enqueue(f *frame.DecodedFrame) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for {
		select {
		case m.ch <- f:
			m.enqueued.Add(1)
			return
		default:
		}
		// The queue looked full. Offer the send again alongside the
		// eviction so a concurrent dequeue hands us the slot instead of
		// costing the oldest frame.
		select {
		case m.ch <- f:
			m.enqueued.Add(1)
			return
		case old := <-m.ch:
			old.Free()
			m.dropped.Add(1)
		}
	}
}

// Dequeue removes and returns the oldest frame, or nil if none arrives
// within the timeout. The caller owns the returned frame.
func (m *Mailbox) Dequeue(timeout time.Duration) *frame.DecodedFrame {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case f := <-m.ch:
		m.dequeued.Add(1)
		return f
	case <-timer.C:
		return nil
	}
}

// TryDequeue removes the oldest frame without waiting, or returns nil.
func (m *Mailbox) TryDequeue() *frame.DecodedFrame {
	select {
	case f := <-m.ch:
		m.dequeued.Add(1)
		return f
	default:
		return nil
	}
}

// Drain frees every queued frame. Called at pipeline shutdown, after all
// producers have stopped.
func (m *Mailbox) Drain() int {
	n := 0
	for {
		select {
		case f := <-m.ch:
			f.Free()
			n++
		default:
			return n
		}
	}
}

// Len returns the number of queued frames.
func (m *Mailbox) Len() int {
	return len(m.ch)
}

// Stats returns a counter snapshot.
func (m *Mailbox) Stats() MailboxStats {
	return MailboxStats{
		Enqueued:      m.enqueued.Load(),
		Dequeued:      m.dequeued.Load(),
		DroppedOldest: m.dropped.Load(),
	}
}
