package protocol

import "encoding/binary"

// Header is the decoded fixed-size frame header.
type Header struct {
	Code       uint8 // raw wire type byte; resolved to a FrameType by the router
	PayloadLen uint32
}

// ParseStatus is the outcome of peeking at a header window.
type ParseStatus int

const (
	// HeaderIncomplete means fewer than HeaderSize bytes were available.
	HeaderIncomplete ParseStatus = iota
	// HeaderInvalid means the sync word did not match or data_len exceeds
	// the configured maximum. The caller should resynchronize.
	HeaderInvalid
	// HeaderValid means the header parsed and its bounds are acceptable.
	HeaderValid
)

// PeekHeader inspects the start of buf for a frame header. It never reads
// past buf. An oversized data_len is reported as HeaderInvalid rather than
// an error so a hostile or corrupt length can never drive an allocation.
func (p Params) PeekHeader(buf []byte) (Header, ParseStatus) {
	if len(buf) < HeaderSize {
		return Header{}, HeaderIncomplete
	}
	if binary.LittleEndian.Uint32(buf[0:4]) != p.SyncWord {
		return Header{}, HeaderInvalid
	}
	h := Header{
		Code:       buf[4],
		PayloadLen: binary.LittleEndian.Uint32(buf[5:9]),
	}
	if h.PayloadLen > p.MaxPayload {
		return Header{}, HeaderInvalid
	}
	return h, HeaderValid
}

// AppendFrame encodes a complete frame (header + payload) onto dst.
// Used by the synthetic transmitter and by tests.
func (p Params) AppendFrame(dst []byte, code uint8, payload []byte) []byte {
	var hdr [HeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], p.SyncWord)
	hdr[4] = code
	binary.LittleEndian.PutUint32(hdr[5:9], uint32(len(payload)))
	dst = append(dst, hdr[:]...)
	return append(dst, payload...)
}
