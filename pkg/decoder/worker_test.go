package decoder

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
	"time"

	"github.com/pierrec/lz4/v4"

	"vrx/station/pkg/frame"
	"vrx/station/pkg/mailbox"
	"vrx/station/pkg/protocol"
)

func lz4Compress(t *testing.T, raw []byte) []byte {
	t.Helper()
	var c lz4.Compressor
	dst := make([]byte, lz4.CompressBlockBound(len(raw)))
	n, err := c.CompressBlock(raw, dst)
	if err != nil || n == 0 {
		t.Fatalf("lz4 compress failed: n=%d err=%v", n, err)
	}
	return dst[:n]
}

func TestRawWorkerCopiesPayload(t *testing.T) {
	pool := frame.NewPool()
	out := mailbox.New(4)

	w := newWorker(protocol.FrameRaw, (&rawDecoder{pool: pool}).decode, out)
	w.start()
	defer w.stop()

	payload := make([]byte, 8*8*2)
	for i := range payload {
		payload[i] = byte(i)
	}
	w.Ingest(payload, 8, 8)

	f := out.Dequeue(2 * time.Second)
	if f == nil {
		t.Fatal("no decoded frame arrived")
	}
	defer f.Free()

	if f.Width != 8 || f.Height != 8 {
		t.Errorf("expected canvas 8x8, got %dx%d", f.Width, f.Height)
	}
	if !bytes.Equal(f.Buf, payload) {
		t.Error("raw payload was not copied verbatim")
	}
}

func TestLZ4WorkerDecompressesAndSwaps(t *testing.T) {
	pool := frame.NewPool()
	out := mailbox.New(4)

	// Big-endian pixels on the wire; the decoder must hand back
	// little-endian.
	raw := make([]byte, 4*4*2)
	for i := 0; i+1 < len(raw); i += 2 {
		raw[i] = 0xAB
		raw[i+1] = 0xCD
	}

	w := newWorker(protocol.FrameLZ4, (&lz4Decoder{pool: pool}).decode, out)
	w.start()
	defer w.stop()

	w.Ingest(lz4Compress(t, raw), 4, 4)

	f := out.Dequeue(2 * time.Second)
	if f == nil {
		t.Fatal("no decoded frame arrived")
	}
	defer f.Free()

	for i := 0; i+1 < len(f.Buf); i += 2 {
		if f.Buf[i] != 0xCD || f.Buf[i+1] != 0xAB {
			t.Fatalf("pixel %d not byte-swapped: %02X %02X", i/2, f.Buf[i], f.Buf[i+1])
		}
	}
}

func TestJPEGWorkerKeepsNativeResolution(t *testing.T) {
	pool := frame.NewPool()
	out := mailbox.New(4)

	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}

	w := newWorker(protocol.FrameJPEG, (&jpegDecoder{pool: pool, maxPixels: 1 << 20}).decode, out)
	w.start()
	defer w.stop()

	// Canvas dimensions are deliberately different: JPEG ignores them.
	w.Ingest(buf.Bytes(), 8, 8)

	f := out.Dequeue(2 * time.Second)
	if f == nil {
		t.Fatal("no decoded frame arrived")
	}
	defer f.Free()

	if f.Width != 64 || f.Height != 48 {
		t.Errorf("expected native 64x48, got %dx%d", f.Width, f.Height)
	}

	// Spot-check the first pixel is roughly the encoded color.
	pix := uint16(f.Buf[0]) | uint16(f.Buf[1])<<8
	r := uint8(pix>>11) << 3
	if r < 160 || r > 240 {
		t.Errorf("red channel out of range after decode: %d", r)
	}
}

// patchJPEGDimensions rewrites the width and height in the SOF segment so
// the header advertises a resolution the scan data does not back.
func patchJPEGDimensions(t *testing.T, data []byte, w, h int) []byte {
	t.Helper()
	for i := 0; i+8 < len(data); i++ {
		if data[i] == 0xFF && (data[i+1] == 0xC0 || data[i+1] == 0xC2) {
			data[i+5] = byte(h >> 8)
			data[i+6] = byte(h)
			data[i+7] = byte(w >> 8)
			data[i+8] = byte(w)
			return data
		}
	}
	t.Fatal("no SOF marker in encoded JPEG")
	return nil
}

func TestJPEGOversizedHeaderRejected(t *testing.T) {
	pool := frame.NewPool()

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	// A few hundred bytes on the wire claiming a ~1.7GB decode.
	payload := patchJPEGDimensions(t, buf.Bytes(), 30000, 30000)

	d := &jpegDecoder{pool: pool, maxPixels: 1 << 20}
	f, err := d.decode(payload, 8, 8)
	if err == nil {
		f.Free()
		t.Fatal("expected oversized JPEG header to be rejected")
	}
	if got := pool.Stats().Allocated; got != 0 {
		t.Errorf("rejected frame still allocated %d buffers", got)
	}

	// A worker treats the rejection as an ordinary decode error and keeps
	// serving the stream.
	out := mailbox.New(4)
	w := newWorker(protocol.FrameJPEG, d.decode, out)
	w.start()
	defer w.stop()

	w.Ingest(payload, 8, 8)
	deadline := time.Now().Add(2 * time.Second)
	for w.Stats().DecodeErrors == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if w.Stats().DecodeErrors != 1 {
		t.Fatalf("expected 1 decode error, got %d", w.Stats().DecodeErrors)
	}

	var ok bytes.Buffer
	if err := jpeg.Encode(&ok, img, nil); err != nil {
		t.Fatal(err)
	}
	w.Ingest(ok.Bytes(), 8, 8)
	f = out.Dequeue(2 * time.Second)
	if f == nil {
		t.Fatal("worker did not survive the rejected frame")
	}
	f.Free()
}

func TestDecodeFailureDoesNotKillWorker(t *testing.T) {
	pool := frame.NewPool()
	out := mailbox.New(4)

	w := newWorker(protocol.FrameLZ4, (&lz4Decoder{pool: pool}).decode, out)
	w.start()
	defer w.stop()

	w.Ingest([]byte{0xFF, 0xFE, 0xFD, 0xFC, 0xFB}, 4, 4)

	// Give the worker time to hit the failure before the valid frame.
	deadline := time.Now().Add(2 * time.Second)
	for w.Stats().DecodeErrors == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if w.Stats().DecodeErrors != 1 {
		t.Fatalf("expected 1 decode error, got %d", w.Stats().DecodeErrors)
	}

	raw := bytes.Repeat([]byte{0x10, 0x20}, 4*4)
	w.Ingest(lz4Compress(t, raw), 4, 4)

	f := out.Dequeue(2 * time.Second)
	if f == nil {
		t.Fatal("worker did not survive the decode failure")
	}
	f.Free()
}

// Ingesting faster than the decode task consumes must coalesce to the
// newest payload, never block the caller, and never tear a buffer.
func TestIngestCoalescesToLatest(t *testing.T) {
	pool := frame.NewPool()
	out := mailbox.New(8)

	started := make(chan struct{}, 8)
	release := make(chan struct{})
	decode := func(payload []byte, w, h int) (*frame.DecodedFrame, error) {
		started <- struct{}{}
		<-release
		f := pool.NewFrame(protocol.FrameRaw, 1, 1)
		f.Buf[0] = payload[0]
		return f, nil
	}

	w := newWorker(protocol.FrameRaw, decode, out)
	w.start()
	defer w.stop()

	w.Ingest([]byte{1}, 1, 1)
	<-started // decode task is now busy with payload 1

	w.Ingest([]byte{2}, 1, 1)
	w.Ingest([]byte{3}, 1, 1)
	w.Ingest([]byte{4}, 1, 1)
	close(release)

	first := out.Dequeue(2 * time.Second)
	if first == nil || first.Buf[0] != 1 {
		t.Fatalf("expected payload 1 first, got %+v", first)
	}
	first.Free()

	second := out.Dequeue(2 * time.Second)
	if second == nil || second.Buf[0] != 4 {
		t.Fatalf("expected coalescing to keep only payload 4, got %+v", second)
	}
	second.Free()

	if out.TryDequeue() != nil {
		t.Fatal("payloads 2 and 3 should have been coalesced away")
	}
	if drops := w.Stats().IngestDrops; drops != 2 {
		t.Errorf("expected 2 coalesced payloads, got %d", drops)
	}
}

func TestIngestSlotOverwrite(t *testing.T) {
	s := newIngestSlot()

	s.put([]byte{0xAA, 0xBB}, 2, 1)
	s.put([]byte{0xCC}, 1, 1)

	payload, w, h, ok := s.take()
	if !ok {
		t.Fatal("expected a staged payload")
	}
	if len(payload) != 1 || payload[0] != 0xCC || w != 1 || h != 1 {
		t.Fatalf("expected the newer payload, got %X (%dx%d)", payload, w, h)
	}
	if s.drops.Load() != 1 {
		t.Errorf("expected 1 recorded overwrite, got %d", s.drops.Load())
	}

	s.close()
	if _, _, _, ok := s.take(); ok {
		t.Error("expected take to report closed")
	}
}
