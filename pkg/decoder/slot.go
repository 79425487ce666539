package decoder

import (
	"sync"
	"sync/atomic"
)

// ingestSlot is the single-slot staging mailbox between the ingesting
// caller (the router, on the connection goroutine) and a worker's decode
// goroutine. Latest wins: an unconsumed payload is overwritten by the next
// ingest, under the lock, so the decode side can never observe a torn write.
//
// Two buffers alternate between the roles of "staged" and "in decode":
// take swaps them in O(1) under the lock, then the decode goroutine reads
// its private buffer with the lock released.
type ingestSlot struct {
	mu   sync.Mutex
	cond *sync.Cond

	staged []byte // current staged payload, len == stagedLen
	spare  []byte // buffer the decode side last read from

	stagedLen     int
	width, height int
	full          bool
	closed        bool

	drops atomic.Uint64 // overwrites of an unconsumed payload
}

func newIngestSlot() *ingestSlot {
	s := &ingestSlot{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// put copies payload into the staging buffer and wakes the decode
// goroutine. Never blocks longer than the copy plus an O(1) swap.
func (s *ingestSlot) put(payload []byte, width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if s.full {
		// Previous payload not consumed yet: overwrite. Freshness over
		// completeness under load.
		s.drops.Add(1)
	}
	if cap(s.staged) < len(payload) {
		s.staged = make([]byte, len(payload))
	}
	s.staged = s.staged[:cap(s.staged)]
	s.stagedLen = copy(s.staged, payload)
	s.width = width
	s.height = height
	s.full = true
	s.cond.Signal()
}

// take blocks until a payload is staged or the slot is closed. On success
// it swaps buffers and returns the decode side's private copy; the returned
// slice is valid until the next take call.
func (s *ingestSlot) take() (payload []byte, width, height int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for !s.full && !s.closed {
		s.cond.Wait()
	}
	if s.closed {
		return nil, 0, 0, false
	}

	s.staged, s.spare = s.spare, s.staged
	n := s.stagedLen
	s.full = false
	return s.spare[:n], s.width, s.height, true
}

// close wakes the decode goroutine and makes every later put a no-op.
func (s *ingestSlot) close() {
	s.mu.Lock()
	s.closed = true
	s.cond.Signal()
	s.mu.Unlock()
}
