package mailbox

import (
	"sync"
	"testing"
	"time"

	"vrx/station/pkg/frame"
	"vrx/station/pkg/protocol"
)

func newTestFrame(pool *frame.Pool, w int) *frame.DecodedFrame {
	return pool.NewFrame(protocol.FrameRaw, w, 1)
}

func TestFIFOOrder(t *testing.T) {
	pool := frame.NewPool()
	m := New(4)

	for w := 1; w <= 4; w++ {
		m.Enqueue(newTestFrame(pool, w))
	}
	for w := 1; w <= 4; w++ {
		f := m.Dequeue(time.Second)
		if f == nil {
			t.Fatalf("expected frame %d, got none", w)
		}
		if f.Width != w {
			t.Fatalf("FIFO order violated: expected width %d, got %d", w, f.Width)
		}
		f.Free()
	}
}

// Enqueuing capacity+1 frames with no consumer leaves exactly capacity
// frames queued, with the oldest freed exactly once.
func TestBackpressureDropOldest(t *testing.T) {
	const capacity = 4
	pool := frame.NewPool()
	m := New(capacity)

	for w := 1; w <= capacity+1; w++ {
		m.Enqueue(newTestFrame(pool, w))
	}

	if m.Len() != capacity {
		t.Fatalf("expected %d queued frames, got %d", capacity, m.Len())
	}
	stats := m.Stats()
	if stats.DroppedOldest != 1 {
		t.Fatalf("expected 1 dropped frame, got %d", stats.DroppedOldest)
	}
	pstats := pool.Stats()
	if pstats.Freed != 1 {
		t.Fatalf("expected the evicted frame freed exactly once, got %d frees", pstats.Freed)
	}
	if pstats.DoubleFrees != 0 {
		t.Fatalf("double free detected: %+v", pstats)
	}

	// The oldest frame (width 1) is the one that went missing.
	f := m.Dequeue(time.Second)
	if f == nil || f.Width != 2 {
		t.Fatalf("expected width 2 at the head after eviction, got %+v", f)
	}
	f.Free()

	m.Drain()
	if pool.Live() != 0 {
		t.Errorf("expected no live buffers after drain, got %d", pool.Live())
	}
}

func TestDequeueTimeout(t *testing.T) {
	m := New(2)

	start := time.Now()
	f := m.Dequeue(50 * time.Millisecond)
	if f != nil {
		t.Fatal("expected nil from an empty mailbox")
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("dequeue returned too early: %v", elapsed)
	}
}

func TestTryDequeueEmpty(t *testing.T) {
	m := New(2)
	if f := m.TryDequeue(); f != nil {
		t.Fatal("expected nil from TryDequeue on an empty mailbox")
	}
}

func TestDrainFreesEverything(t *testing.T) {
	pool := frame.NewPool()
	m := New(8)

	for i := 0; i < 5; i++ {
		m.Enqueue(newTestFrame(pool, i+1))
	}
	if n := m.Drain(); n != 5 {
		t.Fatalf("expected 5 drained frames, got %d", n)
	}
	stats := pool.Stats()
	if stats.Allocated != stats.Freed {
		t.Fatalf("drain leaked buffers: %+v", stats)
	}
}

// Three producers hammering a full mailbox must keep the count bounded and
// never double-free, mirroring the three decoder workers.
func TestConcurrentProducers(t *testing.T) {
	const capacity = 4
	pool := frame.NewPool()
	m := New(capacity)

	var wg sync.WaitGroup
	for p := 0; p < 3; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				m.Enqueue(newTestFrame(pool, 1))
			}
		}()
	}

	consumed := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			f := m.Dequeue(100 * time.Millisecond)
			if f == nil {
				return
			}
			f.Free()
			consumed++
		}
	}()

	wg.Wait()
	<-done

	m.Drain()
	stats := pool.Stats()
	if stats.Allocated != 600 {
		t.Fatalf("expected 600 allocations, got %d", stats.Allocated)
	}
	if stats.Allocated != stats.Freed {
		t.Fatalf("ownership violated under contention: %+v", stats)
	}
	if stats.DoubleFrees != 0 {
		t.Fatalf("double frees under contention: %+v", stats)
	}
}

// A full queue with an actively draining consumer should hand slots to the
// producer rather than evicting: every frame is either delivered or counted
// as a drop, and the books balance at capacity 1 where the enqueue/dequeue
// race is tightest.
func TestEnqueueRacingConsumer(t *testing.T) {
	const total = 500
	pool := frame.NewPool()
	m := New(1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			f := m.Dequeue(100 * time.Millisecond)
			if f == nil {
				return
			}
			f.Free()
		}
	}()

	for i := 0; i < total; i++ {
		m.Enqueue(newTestFrame(pool, 1))
	}
	<-done

	stats := m.Stats()
	if stats.Enqueued != total {
		t.Fatalf("expected %d enqueues, got %d", total, stats.Enqueued)
	}
	if stats.Dequeued+stats.DroppedOldest != total {
		t.Fatalf("frames leaked: dequeued %d + dropped %d != %d",
			stats.Dequeued, stats.DroppedOldest, total)
	}
	ps := pool.Stats()
	if ps.Allocated != ps.Freed || ps.DoubleFrees != 0 {
		t.Fatalf("ownership violated: %+v", ps)
	}
}
