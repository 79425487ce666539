package protocol

import (
	"bytes"
	"sync/atomic"

	"vrx/station/pkg/logger"
)

// Frame is one complete transport unit extracted from the byte stream.
// Payload is an owned copy; it stays valid after the next Feed call.
type Frame struct {
	Code    uint8
	Payload []byte
}

// ReassemblerStats is a snapshot of per-connection extraction counters.
type ReassemblerStats struct {
	Frames  uint64 // complete frames extracted
	Resyncs uint64 // sync-word scans triggered by an invalid header
	Resets  uint64 // accumulator overflows (full drop)
}

// Reassembler accumulates socket bytes for one connection and extracts
// complete frames, resynchronizing on the sync word after corruption.
// It is not safe for concurrent use; the connection read loop is its only
// caller, so no lock is needed.
type Reassembler struct {
	params   Params
	pattern  []byte // sync word in wire byte order
	buf      []byte
	capacity int

	frames  atomic.Uint64
	resyncs atomic.Uint64
	resets  atomic.Uint64
}

// NewReassembler creates a Reassembler with the given accumulator capacity.
func NewReassembler(params Params, capacity int) *Reassembler {
	pat := params.SyncPattern()
	return &Reassembler{
		params:   params,
		pattern:  pat[:],
		buf:      make([]byte, 0, 4096),
		capacity: capacity,
	}
}

// Feed appends newly received bytes and returns every complete frame that
// can now be extracted, in arrival order. Frames own their payload copies.
func (r *Reassembler) Feed(data []byte) []Frame {
	if len(r.buf)+len(data) > r.capacity {
		// Overflow policy: drop the whole accumulator. Bounded data loss
		// beats unbounded growth; the stream resynchronizes on its own.
		logger.Sugar.Warnf("[Reassembler] accumulator overflow (%d+%d > %d), resetting",
			len(r.buf), len(data), r.capacity)
		r.buf = r.buf[:0]
		r.resets.Add(1)
		if len(data) > r.capacity {
			// Even a single read larger than the accumulator is dropped.
			return nil
		}
	}
	r.buf = append(r.buf, data...)

	var frames []Frame
	consumed := 0

	for {
		window := r.buf[consumed:]
		if len(window) < HeaderSize {
			break
		}

		hdr, status := r.params.PeekHeader(window)
		if status == HeaderInvalid {
			// Scan forward for the next sync-word occurrence. Starting one
			// byte in guarantees progress when the corrupt header itself
			// begins with a valid sync word.
			idx := bytes.Index(window[1:], r.pattern)
			r.resyncs.Add(1)
			if idx < 0 {
				// No sync word ahead. Keep the last SyncWordSize-1 bytes,
				// they may be the front of a split sync word.
				consumed = len(r.buf) - (SyncWordSize - 1)
				break
			}
			consumed += 1 + idx
			continue
		}

		total := HeaderSize + int(hdr.PayloadLen)
		if len(window) < total {
			// Header is valid but the payload has not fully arrived.
			// Consume nothing and wait for the next read.
			break
		}

		payload := make([]byte, hdr.PayloadLen)
		copy(payload, window[HeaderSize:total])
		frames = append(frames, Frame{Code: hdr.Code, Payload: payload})
		r.frames.Add(1)
		consumed += total
	}

	// Compact: move the unconsumed tail to the front.
	if consumed > 0 {
		n := copy(r.buf, r.buf[consumed:])
		r.buf = r.buf[:n]
	}
	return frames
}

// Pending returns the number of buffered, unconsumed bytes.
func (r *Reassembler) Pending() int {
	return len(r.buf)
}

// Stats returns a snapshot of the extraction counters. Safe to call from
// another goroutine while the read loop is feeding.
func (r *Reassembler) Stats() ReassemblerStats {
	return ReassemblerStats{
		Frames:  r.frames.Load(),
		Resyncs: r.resyncs.Load(),
		Resets:  r.resets.Load(),
	}
}
