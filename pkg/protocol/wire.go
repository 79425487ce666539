package protocol

import (
	"encoding/binary"

	"vrx/station/pkg/config"
)

// HeaderSize is the fixed wire header size:
// [sync_word (4, LE)] + [frame_type (1)] + [data_len (4, LE)]
const HeaderSize = 9

// SyncWordSize is the length of the sync-word pattern on the wire.
const SyncWordSize = 4

// FrameType identifies the codec a payload was produced with.
type FrameType uint8

const (
	FrameRaw FrameType = iota
	FrameLZ4
	FrameJPEG
)

func (t FrameType) String() string {
	switch t {
	case FrameRaw:
		return "raw"
	case FrameLZ4:
		return "lz4"
	case FrameJPEG:
		return "jpeg"
	default:
		return "unknown"
	}
}

// ParseType maps a codec name from configuration to a FrameType.
func ParseType(name string) (FrameType, bool) {
	switch name {
	case "raw":
		return FrameRaw, true
	case "lz4":
		return FrameLZ4, true
	case "jpeg":
		return FrameJPEG, true
	}
	return 0, false
}

// Params carries the deployment-specific wire constants. The numeric values
// come from configuration; nothing below this layer hard-codes them.
type Params struct {
	SyncWord   uint32
	MaxPayload uint32

	rawCode  uint8
	lz4Code  uint8
	jpegCode uint8
}

// NewParams builds wire params from the protocol section of the config.
func NewParams(pc config.ProtocolConfig) Params {
	return Params{
		SyncWord:   pc.SyncWord,
		MaxPayload: pc.MaxPayload,
		rawCode:    pc.TypeRaw,
		lz4Code:    pc.TypeLZ4,
		jpegCode:   pc.TypeJPEG,
	}
}

// TypeFromCode resolves a wire type byte to a FrameType.
func (p Params) TypeFromCode(code uint8) (FrameType, bool) {
	switch code {
	case p.rawCode:
		return FrameRaw, true
	case p.lz4Code:
		return FrameLZ4, true
	case p.jpegCode:
		return FrameJPEG, true
	}
	return 0, false
}

// CodeFor returns the wire type byte for a FrameType.
func (p Params) CodeFor(t FrameType) uint8 {
	switch t {
	case FrameLZ4:
		return p.lz4Code
	case FrameJPEG:
		return p.jpegCode
	default:
		return p.rawCode
	}
}

// SyncPattern returns the sync word as it appears on the wire.
func (p Params) SyncPattern() [SyncWordSize]byte {
	var pat [SyncWordSize]byte
	binary.LittleEndian.PutUint32(pat[:], p.SyncWord)
	return pat
}
