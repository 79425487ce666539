package protocol

import (
	"bytes"
	"testing"

	"vrx/station/pkg/config"
)

func testParams() Params {
	return NewParams(config.ProtocolConfig{
		SyncWord:   0xAEBC1402,
		TypeRaw:    0,
		TypeLZ4:    1,
		TypeJPEG:   2,
		MaxPayload: 512 * 1024,
	})
}

func TestPeekHeaderLiteral(t *testing.T) {
	p := testParams()

	// Header: sync word 0xAEBC1402 little-endian, type 0x01, len 5.
	hdr := []byte{0x02, 0x14, 0xBC, 0xAE, 0x01, 0x05, 0x00, 0x00, 0x00}

	h, status := p.PeekHeader(hdr)
	if status != HeaderValid {
		t.Fatalf("expected HeaderValid, got %v", status)
	}
	if h.Code != 0x01 {
		t.Errorf("expected type code 0x01, got 0x%02X", h.Code)
	}
	if h.PayloadLen != 5 {
		t.Errorf("expected payload length 5, got %d", h.PayloadLen)
	}
}

func TestPeekHeaderIncomplete(t *testing.T) {
	p := testParams()
	hdr := []byte{0x02, 0x14, 0xBC, 0xAE, 0x01, 0x05, 0x00, 0x00, 0x00}

	for n := 0; n < HeaderSize; n++ {
		if _, status := p.PeekHeader(hdr[:n]); status != HeaderIncomplete {
			t.Errorf("window of %d bytes: expected HeaderIncomplete, got %v", n, status)
		}
	}
}

func TestPeekHeaderBadSync(t *testing.T) {
	p := testParams()
	hdr := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01, 0x05, 0x00, 0x00, 0x00}

	if _, status := p.PeekHeader(hdr); status != HeaderInvalid {
		t.Fatalf("expected HeaderInvalid for bad sync word, got %v", status)
	}
}

func TestPeekHeaderOversizedLength(t *testing.T) {
	p := NewParams(config.ProtocolConfig{
		SyncWord:   0xAEBC1402,
		TypeRaw:    0,
		TypeLZ4:    1,
		TypeJPEG:   2,
		MaxPayload: 64,
	})

	hdr := p.AppendFrame(nil, 1, nil)[:HeaderSize]
	hdr[5] = 0x41 // data_len = 65 > max 64

	if _, status := p.PeekHeader(hdr); status != HeaderInvalid {
		t.Fatalf("expected HeaderInvalid for oversized length, got %v", status)
	}
}

func TestAppendFrameRoundTrip(t *testing.T) {
	p := testParams()
	payload := []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE}

	wire := p.AppendFrame(nil, p.CodeFor(FrameLZ4), payload)
	if len(wire) != HeaderSize+len(payload) {
		t.Fatalf("expected %d wire bytes, got %d", HeaderSize+len(payload), len(wire))
	}
	want := []byte{0x02, 0x14, 0xBC, 0xAE, 0x01, 0x05, 0x00, 0x00, 0x00, 0xAA, 0xBB, 0xCC, 0xDD, 0xEE}
	if !bytes.Equal(wire, want) {
		t.Fatalf("wire bytes mismatch:\n got %X\nwant %X", wire, want)
	}

	h, status := p.PeekHeader(wire)
	if status != HeaderValid {
		t.Fatalf("expected HeaderValid, got %v", status)
	}
	if !bytes.Equal(wire[HeaderSize:HeaderSize+int(h.PayloadLen)], payload) {
		t.Error("payload bytes corrupted in round trip")
	}
}

func TestTypeCodeMapping(t *testing.T) {
	p := testParams()

	for _, typ := range []FrameType{FrameRaw, FrameLZ4, FrameJPEG} {
		got, ok := p.TypeFromCode(p.CodeFor(typ))
		if !ok || got != typ {
			t.Errorf("type %v did not survive the code round trip (got %v, ok=%v)", typ, got, ok)
		}
	}
	if _, ok := p.TypeFromCode(0x7F); ok {
		t.Error("expected unknown code 0x7F to be rejected")
	}
}
