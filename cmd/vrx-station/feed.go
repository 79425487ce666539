package main

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math/rand"
	"net"
	"time"

	"github.com/pierrec/lz4/v4"
	"github.com/spf13/cobra"

	"vrx/station/pkg/config"
	"vrx/station/pkg/logger"
	"vrx/station/pkg/protocol"
)

var (
	feedTarget       string
	feedCodec        string
	feedFPS          int
	feedCount        int
	feedWidth        int
	feedHeight       int
	feedCorruptEvery int
	feedConfigPath   string
)

// feedCmd is a synthetic transmitter: it dials a station and streams a
// moving test pattern. Mostly a bench/demo tool, but --corrupt-every makes
// it a live resynchronization exercise too.
var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Stream a synthetic test pattern to a ground station",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Default()
		if feedConfigPath != "" {
			loaded, err := config.Load(feedConfigPath)
			if err != nil {
				return err
			}
			cfg = loaded
		}
		params := protocol.NewParams(cfg.Protocol)

		typ, ok := protocol.ParseType(feedCodec)
		if !ok {
			return fmt.Errorf("unknown codec %q, want raw/lz4/jpeg", feedCodec)
		}

		conn, err := net.Dial("tcp", feedTarget)
		if err != nil {
			return fmt.Errorf("failed to dial %s: %w", feedTarget, err)
		}
		defer conn.Close()
		logger.Sugar.Infof("[Feed] streaming %s to %s at %d fps", typ, feedTarget, feedFPS)

		interval := time.Second / time.Duration(feedFPS)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var compressor lz4.Compressor
		wire := make([]byte, 0, feedWidth*feedHeight*2+protocol.HeaderSize)

		for i := 0; feedCount == 0 || i < feedCount; i++ {
			payload, err := encodeTestFrame(&compressor, typ, feedWidth, feedHeight, i)
			if err != nil {
				return err
			}

			wire = wire[:0]
			if feedCorruptEvery > 0 && i > 0 && i%feedCorruptEvery == 0 {
				// Inject garbage between frames to force a resync scan.
				junk := make([]byte, 16+rand.Intn(64))
				rand.Read(junk)
				wire = append(wire, junk...)
			}
			wire = params.AppendFrame(wire, params.CodeFor(typ), payload)

			if _, err := conn.Write(wire); err != nil {
				return fmt.Errorf("write failed after %d frames: %w", i, err)
			}
			<-ticker.C
		}
		logger.Sugar.Infof("[Feed] done, sent %d frames", feedCount)
		return nil
	},
}

// encodeTestFrame produces one payload of a moving gradient in the wire
// representation of the given codec.
func encodeTestFrame(compressor *lz4.Compressor, typ protocol.FrameType, w, h, seq int) ([]byte, error) {
	switch typ {
	case protocol.FrameRaw:
		// RAW is already display-ready: little-endian RGB565.
		return testPattern(w, h, seq, false), nil

	case protocol.FrameLZ4:
		// The transmitter's pixel byte order is big-endian on the wire;
		// the receiver swaps it back after decompression.
		raw := testPattern(w, h, seq, true)
		dst := make([]byte, lz4.CompressBlockBound(len(raw)))
		n, err := compressor.CompressBlock(raw, dst)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		if n == 0 {
			return nil, fmt.Errorf("lz4 compress: frame not compressible")
		}
		return dst[:n], nil

	case protocol.FrameJPEG:
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				img.Set(x, y, color.RGBA{
					R: uint8((x + seq) % 256),
					G: uint8((y + seq) % 256),
					B: uint8(seq % 256),
					A: 0xFF,
				})
			}
		}
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
			return nil, fmt.Errorf("jpeg encode: %w", err)
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("no encoder for frame type %d", typ)
}

// testPattern renders a scrolling RGB565 gradient, little- or big-endian.
func testPattern(w, h, seq int, bigEndian bool) []byte {
	buf := make([]byte, w*h*2)
	i := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r := uint16((x+seq)%32) << 11
			g := uint16((y+seq)%64) << 5
			b := uint16((x + y + seq) % 32)
			pix := r | g | b
			if bigEndian {
				buf[i] = byte(pix >> 8)
				buf[i+1] = byte(pix)
			} else {
				buf[i] = byte(pix)
				buf[i+1] = byte(pix >> 8)
			}
			i += 2
		}
	}
	return buf
}

func init() {
	rootCmd.AddCommand(feedCmd)
	feedCmd.Flags().StringVarP(&feedTarget, "target", "t", "127.0.0.1:5577", "Station address to stream to")
	feedCmd.Flags().StringVar(&feedCodec, "codec", "lz4", "Codec to transmit with (raw/lz4/jpeg)")
	feedCmd.Flags().IntVar(&feedFPS, "fps", 30, "Frames per second")
	feedCmd.Flags().IntVarP(&feedCount, "count", "n", 0, "Number of frames to send (0 = until interrupted)")
	feedCmd.Flags().IntVar(&feedWidth, "width", 320, "Frame width")
	feedCmd.Flags().IntVar(&feedHeight, "height", 240, "Frame height")
	feedCmd.Flags().IntVar(&feedCorruptEvery, "corrupt-every", 0, "Inject garbage before every Nth frame (0 = never)")
	feedCmd.Flags().StringVarP(&feedConfigPath, "config", "c", "", "Path to a yaml config file (wire constants)")
}
