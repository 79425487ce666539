// Package decoder contains the codec workers and the router that fans
// extracted frames out to them.
package decoder

import (
	"fmt"
	"sync"
	"sync/atomic"

	"vrx/station/pkg/frame"
	"vrx/station/pkg/logger"
	"vrx/station/pkg/mailbox"
	"vrx/station/pkg/protocol"
)

// Router maps an extracted frame's type byte to a running decoder worker,
// lazily starting workers as new types are observed. The active mode simply
// follows the stream: whatever valid type arrives last is active, and any
// configured preference only decides which worker is warmed up early.
//
// Workers are never torn down on a mode switch. Teardown happens once, at
// Close, which eliminates the start/stop races a sender alternating codecs
// would otherwise provoke.
type Router struct {
	params    protocol.Params
	canvasW   int
	canvasH   int
	maxPixels int
	pool      *frame.Pool
	out       *mailbox.Mailbox

	mu        sync.Mutex
	workers   map[protocol.FrameType]*Worker
	active    protocol.FrameType
	hasActive bool

	unknown atomic.Uint64
}

// NewRouter creates a router with no workers running yet. maxPixels bounds
// the decoded size of JPEG frames, whose resolution the sender controls.
func NewRouter(params protocol.Params, canvasW, canvasH, maxPixels int, pool *frame.Pool, out *mailbox.Mailbox) *Router {
	return &Router{
		params:    params,
		canvasW:   canvasW,
		canvasH:   canvasH,
		maxPixels: maxPixels,
		pool:      pool,
		out:       out,
		workers:   make(map[protocol.FrameType]*Worker),
	}
}

// Dispatch routes one extracted frame to its codec's worker. Frames with an
// unrecognized type byte are dropped and counted; a worker start failure
// drops the frame too, and the next frame of that type retries.
func (r *Router) Dispatch(f protocol.Frame) {
	typ, ok := r.params.TypeFromCode(f.Code)
	if !ok {
		r.unknown.Add(1)
		logger.Sugar.Debugf("[Router] dropping frame with unknown type code 0x%02X (%dB)", f.Code, len(f.Payload))
		return
	}

	w, err := r.EnsureRunning(typ)
	if err != nil {
		logger.Sugar.Errorf("[Router] cannot start %s worker, dropping frame: %v", typ, err)
		return
	}
	w.Ingest(f.Payload, r.canvasW, r.canvasH)
}

// EnsureRunning starts the worker for typ if it is not already running and
// marks typ as the active mode. Starting a running worker is a no-op.
func (r *Router) EnsureRunning(typ protocol.FrameType) (*Worker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.hasActive && r.active != typ {
		logger.Sugar.Infof("[Router] codec switch: %s -> %s", r.active, typ)
	}
	r.active = typ
	r.hasActive = true

	if w, ok := r.workers[typ]; ok {
		return w, nil
	}

	var dec decodeFunc
	switch typ {
	case protocol.FrameRaw:
		dec = (&rawDecoder{pool: r.pool}).decode
	case protocol.FrameLZ4:
		dec = (&lz4Decoder{pool: r.pool}).decode
	case protocol.FrameJPEG:
		dec = (&jpegDecoder{pool: r.pool, maxPixels: r.maxPixels}).decode
	default:
		return nil, fmt.Errorf("no decoder for frame type %d", typ)
	}

	w := newWorker(typ, dec, r.out)
	w.start()
	r.workers[typ] = w
	return w, nil
}

// ActiveMode returns the most recently observed frame type, if any frame
// with a valid type has been dispatched yet.
func (r *Router) ActiveMode() (protocol.FrameType, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active, r.hasActive
}

// UnknownFrames returns how many frames carried an unrecognized type byte.
func (r *Router) UnknownFrames() uint64 {
	return r.unknown.Load()
}

// Stats returns per-worker counter snapshots for every started worker.
func (r *Router) Stats() map[protocol.FrameType]WorkerStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[protocol.FrameType]WorkerStats, len(r.workers))
	for typ, w := range r.workers {
		out[typ] = w.Stats()
	}
	return out
}

// Close stops every started worker and waits for their goroutines to exit.
// The router must not be dispatched to afterwards.
func (r *Router) Close() {
	r.mu.Lock()
	workers := make([]*Worker, 0, len(r.workers))
	for _, w := range r.workers {
		workers = append(workers, w)
	}
	r.workers = make(map[protocol.FrameType]*Worker)
	r.hasActive = false
	r.mu.Unlock()

	for _, w := range workers {
		w.stop()
	}
}
