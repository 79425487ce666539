package decoder

import (
	"vrx/station/pkg/frame"
	"vrx/station/pkg/protocol"
)

// rawDecoder handles pre-formatted RGB565 payloads: the "decode" is a copy
// into a canvas-sized frame. A short payload leaves the remainder black.
type rawDecoder struct {
	pool *frame.Pool
}

func (d *rawDecoder) decode(payload []byte, width, height int) (*frame.DecodedFrame, error) {
	f := d.pool.NewFrame(protocol.FrameRaw, width, height)
	copy(f.Buf, payload)
	return f, nil
}
