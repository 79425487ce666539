// Package station wires the receive pipeline together: a listening socket
// with at most one connected transmitter, the per-connection stream
// reassembler, the decoder router, and the display mailbox.
package station

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"vrx/station/pkg/config"
	"vrx/station/pkg/decoder"
	"vrx/station/pkg/discovery"
	"vrx/station/pkg/frame"
	"vrx/station/pkg/logger"
	"vrx/station/pkg/mailbox"
	"vrx/station/pkg/monitor"
	"vrx/station/pkg/protocol"
)

// Session identifies one accepted transmitter connection.
type Session struct {
	ID          string
	RemoteAddr  string
	ConnectedAt time.Time

	bytesIn atomic.Int64
	reasm   *protocol.Reassembler
}

// Stats is a point-in-time snapshot of the whole pipeline.
type Stats struct {
	State       string
	Session     *SessionStats
	Connections uint64
	Workers     map[protocol.FrameType]decoder.WorkerStats
	Unknown     uint64
	Mailbox     mailbox.MailboxStats
	Pool        frame.PoolStats
}

// SessionStats describes the current connection, when there is one.
type SessionStats struct {
	ID          string
	RemoteAddr  string
	ConnectedAt time.Time
	BytesIn     int64
	Reassembler protocol.ReassemblerStats
}

// Station owns the receive pipeline. Construct with New, then Start; the
// decoded frames come out of Mailbox(). Multiple stations can coexist in
// one process, which is what the end-to-end tests rely on.
type Station struct {
	cfg    *config.Config
	params protocol.Params

	pool   *frame.Pool
	mbox   *mailbox.Mailbox
	router *decoder.Router
	adv    *discovery.Advertiser

	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu   sync.Mutex
	sess *Session
	conn net.Conn

	connections atomic.Uint64
}

// New builds a station from the given configuration.
func New(cfg *config.Config) (*Station, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())

	params := protocol.NewParams(cfg.Protocol)
	pool := frame.NewPool()
	mbox := mailbox.New(cfg.Pipeline.MailboxCapacity)

	return &Station{
		cfg:    cfg,
		params: params,
		pool:   pool,
		mbox:   mbox,
		router: decoder.NewRouter(params, cfg.Canvas.Width, cfg.Canvas.Height, cfg.Pipeline.MaxDecodedPixels, pool, mbox),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Start binds the listening socket and launches the accept loop.
func (s *Station) Start() error {
	listener, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.ListenAddr, err)
	}
	s.listener = listener
	logger.Sugar.Infof("[Station] listening on %s", listener.Addr())

	// The preference only pre-warms a worker; the observed stream decides
	// the actual mode.
	if name := s.cfg.Pipeline.PreferredCodec; name != "" {
		if typ, ok := protocol.ParseType(name); ok {
			if _, err := s.router.EnsureRunning(typ); err != nil {
				logger.Sugar.Warnf("[Station] could not pre-start %s worker: %v", typ, err)
			}
		}
	}

	if s.cfg.Discovery.Enabled {
		s.adv = discovery.NewAdvertiser()
		port := listener.Addr().(*net.TCPAddr).Port
		meta := map[string]string{
			"canvas": fmt.Sprintf("%dx%d", s.cfg.Canvas.Width, s.cfg.Canvas.Height),
			"codecs": "raw,lz4,jpeg",
		}
		if err := s.adv.Start(s.cfg.Discovery.Instance, port, meta); err != nil {
			// Discovery is best-effort: the station still works via a
			// statically configured address.
			logger.Sugar.Warnf("[Station] mDNS advertise failed: %v", err)
			s.adv = nil
		}
	}

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Addr returns the bound listen address, useful when the config asked for
// port 0. It returns nil before Start has succeeded.
func (s *Station) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Mailbox exposes the display queue to the render consumer.
func (s *Station) Mailbox() *mailbox.Mailbox {
	return s.mbox
}

// Pool exposes the frame allocator, mainly for ownership accounting.
func (s *Station) Pool() *frame.Pool {
	return s.pool
}

// acceptLoop accepts one connection at a time. Handling the connection
// inline is what defers further accepts while a peer is connected.
func (s *Station) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
				logger.Sugar.Errorf("[Station] accept error: %v", err)
				continue
			}
		}
		s.handleConn(conn)
		if s.ctx.Err() != nil {
			return
		}
	}
}

func (s *Station) handleConn(conn net.Conn) {
	sess := &Session{
		ID:          uuid.NewString(),
		RemoteAddr:  conn.RemoteAddr().String(),
		ConnectedAt: time.Now(),
		reasm:       protocol.NewReassembler(s.params, s.cfg.Pipeline.AccumCapacity),
	}
	s.connections.Add(1)

	s.mu.Lock()
	s.sess = sess
	s.conn = conn
	s.mu.Unlock()

	logger.Sugar.Infof("[Station] transmitter connected: session=%s remote=%s", sess.ID, sess.RemoteAddr)

	defer func() {
		s.mu.Lock()
		s.sess = nil
		s.conn = nil
		s.mu.Unlock()
		conn.Close()
		logger.Sugar.Infof("[Station] transmitter disconnected: session=%s bytes=%d frames=%d",
			sess.ID, sess.bytesIn.Load(), sess.reasm.Stats().Frames)
	}()

	poll := time.Duration(s.cfg.Pipeline.ReadPollMS) * time.Millisecond
	buf := make([]byte, 4096)

	for {
		if s.ctx.Err() != nil {
			return
		}

		// Short deadline so a shutdown signal is observed promptly; a
		// deadline expiry is the would-block case, not an error.
		conn.SetReadDeadline(time.Now().Add(poll))
		n, err := conn.Read(buf)
		if n > 0 {
			sess.bytesIn.Add(int64(n))
			monitor.RecordBytes(int64(n))

			frames := sess.reasm.Feed(buf[:n])
			monitor.RecordExtracted(int64(len(frames)))
			for _, f := range frames {
				s.router.Dispatch(f)
			}
		}
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if err != io.EOF && s.ctx.Err() == nil {
				logger.Sugar.Errorf("[Station] read error from %s: %v", sess.RemoteAddr, err)
			}
			return
		}
		if n == 0 {
			// Zero-length read without an error: treat as peer close.
			return
		}
	}
}

// Stop tears the pipeline down: unblock and exit the accept loop, stop
// every decode worker, then drain and free whatever is still queued.
func (s *Station) Stop() {
	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}
	s.mu.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()

	s.router.Close()
	drained := s.mbox.Drain()
	if s.adv != nil {
		s.adv.Stop()
	}
	logger.Sugar.Infof("[Station] stopped, drained %d queued frames, %d leaked buffers", drained, s.pool.Live())
}

// Stats assembles a snapshot across all pipeline components.
func (s *Station) Stats() Stats {
	st := Stats{
		Connections: s.connections.Load(),
		Workers:     s.router.Stats(),
		Unknown:     s.router.UnknownFrames(),
		Mailbox:     s.mbox.Stats(),
		Pool:        s.pool.Stats(),
	}

	s.mu.Lock()
	sess := s.sess
	s.mu.Unlock()

	if sess != nil {
		st.State = "CONNECTED"
		st.Session = &SessionStats{
			ID:          sess.ID,
			RemoteAddr:  sess.RemoteAddr,
			ConnectedAt: sess.ConnectedAt,
			BytesIn:     sess.bytesIn.Load(),
			Reassembler: sess.reasm.Stats(),
		}
	} else if s.ctx.Err() != nil {
		st.State = "STOPPED"
	} else {
		st.State = "LISTENING"
	}
	return st
}

// Status renders a short human-readable summary for the interactive shell.
func (s *Station) Status() string {
	st := s.Stats()
	out := fmt.Sprintf("state: %s\nconnections: %d\n", st.State, st.Connections)
	if st.Session != nil {
		out += fmt.Sprintf("session: %s (%s) up %s, %d bytes in, %d frames, %d resyncs\n",
			st.Session.ID, st.Session.RemoteAddr,
			time.Since(st.Session.ConnectedAt).Round(time.Second),
			st.Session.BytesIn, st.Session.Reassembler.Frames, st.Session.Reassembler.Resyncs)
	}
	if mode, ok := s.router.ActiveMode(); ok {
		out += fmt.Sprintf("active codec: %s\n", mode)
	}
	for typ, ws := range st.Workers {
		out += fmt.Sprintf("worker %s: decoded=%d errors=%d coalesced=%d\n",
			typ, ws.Decoded, ws.DecodeErrors, ws.IngestDrops)
	}
	out += fmt.Sprintf("mailbox: queued=%d enqueued=%d dequeued=%d dropped_oldest=%d\n",
		s.mbox.Len(), st.Mailbox.Enqueued, st.Mailbox.Dequeued, st.Mailbox.DroppedOldest)
	out += fmt.Sprintf("buffers: allocated=%d freed=%d live=%d\n",
		st.Pool.Allocated, st.Pool.Freed, st.Pool.Allocated-st.Pool.Freed)
	return out
}
