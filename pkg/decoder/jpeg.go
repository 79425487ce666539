package decoder

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"vrx/station/pkg/frame"
	"vrx/station/pkg/protocol"
)

// jpegDecoder decodes a complete JPEG image to RGB565 at its native
// resolution. Cropping or scaling to the canvas is the render consumer's
// problem, not the pipeline's.
type jpegDecoder struct {
	pool      *frame.Pool
	maxPixels int // rejects frames whose header claims more than this
}

func (d *jpegDecoder) decode(payload []byte, _, _ int) (*frame.DecodedFrame, error) {
	// The SOF dimensions drive plane allocation inside jpeg.Decode, before
	// any scan data is validated. Check them first so a corrupt or hostile
	// header cannot request a multi-gigabyte buffer.
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("jpeg header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > d.maxPixels {
		return nil, fmt.Errorf("jpeg dimensions %dx%d exceed %d pixel limit", cfg.Width, cfg.Height, d.maxPixels)
	}

	img, err := jpeg.Decode(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("jpeg decode: %w", err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	f := d.pool.NewFrame(protocol.FrameJPEG, w, h)

	if ycbcr, ok := img.(*image.YCbCr); ok {
		convertYCbCr(f.Buf, ycbcr)
		return f, nil
	}

	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			putRGB565(f.Buf[i:], uint8(r>>8), uint8(g>>8), uint8(b>>8))
			i += 2
		}
	}
	return f, nil
}

// convertYCbCr is the fast path for the planar format image/jpeg actually
// produces, avoiding the color.Color boxing of the generic path.
func convertYCbCr(dst []byte, img *image.YCbCr) {
	bounds := img.Bounds()
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			yi := img.YOffset(x, y)
			ci := img.COffset(x, y)
			r, g, b := ycbcrToRGB(img.Y[yi], img.Cb[ci], img.Cr[ci])
			putRGB565(dst[i:], r, g, b)
			i += 2
		}
	}
}

func ycbcrToRGB(y, cb, cr uint8) (uint8, uint8, uint8) {
	// Same fixed-point coefficients as image/color.YCbCrToRGB.
	yy := int32(y) * 0x10101
	cb1 := int32(cb) - 128
	cr1 := int32(cr) - 128

	r := clamp8((yy + 91881*cr1) >> 16)
	g := clamp8((yy - 22554*cb1 - 46802*cr1) >> 16)
	b := clamp8((yy + 116130*cb1) >> 16)
	return r, g, b
}

func clamp8(v int32) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// putRGB565 packs an 8-bit RGB triple into a little-endian 16bpp pixel.
func putRGB565(dst []byte, r, g, b uint8) {
	pix := uint16(r>>3)<<11 | uint16(g>>2)<<5 | uint16(b>>3)
	dst[0] = byte(pix)
	dst[1] = byte(pix >> 8)
}
