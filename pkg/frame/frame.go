// Package frame defines the decoded-frame message passed from decoder
// workers to the display mailbox, and the counting allocator that backs it.
//
// Ownership contract: a DecodedFrame has exactly one owner at any instant.
// A worker owns it until Enqueue succeeds, the mailbox owns it while queued,
// and whoever dequeues (or the drop-oldest policy) owns it last and must
// call Free exactly once.
package frame

import (
	"sync/atomic"

	"vrx/station/pkg/protocol"
)

// DecodedFrame is one displayable RGB565 pixel buffer.
type DecodedFrame struct {
	Type   protocol.FrameType
	Width  int
	Height int
	Buf    []byte // Width*Height*2 bytes, 16bpp little-endian

	pool  *Pool
	freed atomic.Bool
}

// Free releases the buffer back to the allocator. Calling Free more than
// once is counted as a fault but is otherwise a no-op.
func (f *DecodedFrame) Free() {
	if f == nil {
		return
	}
	if !f.freed.CompareAndSwap(false, true) {
		if f.pool != nil {
			f.pool.doubleFrees.Add(1)
		}
		return
	}
	f.Buf = nil
	if f.pool != nil {
		f.pool.frees.Add(1)
	}
}

// PoolStats is a snapshot of allocator counters. Allocated == Freed after
// shutdown means the single-owner discipline held.
type PoolStats struct {
	Allocated   uint64
	Freed       uint64
	DoubleFrees uint64
}

// Pool is a counting allocator for decoded frames. The counters exist so
// tests (and the metrics logger) can verify allocations balance frees.
type Pool struct {
	allocs      atomic.Uint64
	frees       atomic.Uint64
	doubleFrees atomic.Uint64
}

// NewPool creates an empty counting allocator.
func NewPool() *Pool {
	return &Pool{}
}

// NewFrame allocates a decoded frame of the given geometry.
func (p *Pool) NewFrame(t protocol.FrameType, width, height int) *DecodedFrame {
	p.allocs.Add(1)
	return &DecodedFrame{
		Type:   t,
		Width:  width,
		Height: height,
		Buf:    make([]byte, width*height*2),
		pool:   p,
	}
}

// Live returns the number of frames currently allocated and not yet freed.
func (p *Pool) Live() uint64 {
	return p.allocs.Load() - p.frees.Load()
}

// Stats returns a counter snapshot.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Allocated:   p.allocs.Load(),
		Freed:       p.frees.Load(),
		DoubleFrees: p.doubleFrees.Load(),
	}
}
