package decoder

import (
	"sync"
	"sync/atomic"

	"vrx/station/pkg/frame"
	"vrx/station/pkg/logger"
	"vrx/station/pkg/mailbox"
	"vrx/station/pkg/monitor"
	"vrx/station/pkg/protocol"
)

// decodeFunc turns a compressed payload into a decoded frame. Implementations
// are free to keep per-worker scratch buffers: the worker goroutine is the
// only caller.
type decodeFunc func(payload []byte, width, height int) (*frame.DecodedFrame, error)

// WorkerStats is a snapshot of one decoder worker's counters.
type WorkerStats struct {
	Decoded      uint64
	DecodeErrors uint64
	IngestDrops  uint64 // payloads overwritten before the decode task consumed them
}

// Worker is one independent decoder: an ingest slot plus a background
// decode goroutine feeding the display mailbox.
type Worker struct {
	typ    protocol.FrameType
	slot   *ingestSlot
	decode decodeFunc
	out    *mailbox.Mailbox
	wg     sync.WaitGroup

	decoded   atomic.Uint64
	decodeErr atomic.Uint64
}

func newWorker(typ protocol.FrameType, decode decodeFunc, out *mailbox.Mailbox) *Worker {
	return &Worker{
		typ:    typ,
		slot:   newIngestSlot(),
		decode: decode,
		out:    out,
	}
}

func (w *Worker) start() {
	w.wg.Add(1)
	go w.run()
	logger.Sugar.Infof("[Decoder] %s worker started", w.typ)
}

// Ingest stages a payload for decoding. Bounded caller cost: one copy under
// the slot lock. A payload the decode task has not consumed yet is replaced.
func (w *Worker) Ingest(payload []byte, width, height int) {
	w.slot.put(payload, width, height)
}

func (w *Worker) run() {
	defer w.wg.Done()
	for {
		payload, width, height, ok := w.slot.take()
		if !ok {
			return
		}
		f, err := w.decode(payload, width, height)
		if err != nil {
			// A corrupt payload costs one frame, never the worker.
			w.decodeErr.Add(1)
			monitor.RecordDecodeError()
			logger.Sugar.Warnf("[Decoder] %s decode failed (payload %dB): %v", w.typ, len(payload), err)
			continue
		}
		w.out.Enqueue(f) // ownership moves to the mailbox
		w.decoded.Add(1)
		monitor.RecordDecoded()
	}
}

// stop terminates the decode goroutine and waits for it to exit.
func (w *Worker) stop() {
	w.slot.close()
	w.wg.Wait()
	logger.Sugar.Infof("[Decoder] %s worker stopped", w.typ)
}

// Stats returns a counter snapshot.
func (w *Worker) Stats() WorkerStats {
	return WorkerStats{
		Decoded:      w.decoded.Load(),
		DecodeErrors: w.decodeErr.Load(),
		IngestDrops:  w.slot.drops.Load(),
	}
}
