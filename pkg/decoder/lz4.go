package decoder

import (
	"fmt"

	"github.com/pierrec/lz4/v4"

	"vrx/station/pkg/frame"
	"vrx/station/pkg/protocol"
)

// lz4Decoder decompresses an LZ4 block into a working buffer, then fixes up
// the pixel byte order: the transmitter sends 16-bit pixels big-endian, the
// display wants them little-endian.
type lz4Decoder struct {
	pool *frame.Pool
	work []byte // decompression scratch, reused across frames
}

func (d *lz4Decoder) decode(payload []byte, width, height int) (*frame.DecodedFrame, error) {
	size := width * height * 2

	// Working buffer sized at 2x the expected raw size so a frame that
	// inflates beyond the canvas doesn't fail mid-decode.
	want := size * 2
	if cap(d.work) < want {
		d.work = make([]byte, want)
	}
	d.work = d.work[:cap(d.work)]

	n, err := lz4.UncompressBlock(payload, d.work)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if n > size {
		n = size
	}

	f := d.pool.NewFrame(protocol.FrameLZ4, width, height)
	// Per-pixel byte swap while copying out of the working buffer.
	for i := 0; i+1 < n; i += 2 {
		f.Buf[i] = d.work[i+1]
		f.Buf[i+1] = d.work[i]
	}
	return f, nil
}
