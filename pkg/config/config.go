package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the complete station configuration
type Config struct {
	ListenAddr string          `yaml:"listen_addr"`
	Protocol   ProtocolConfig  `yaml:"protocol"`
	Canvas     CanvasConfig    `yaml:"canvas"`
	Pipeline   PipelineConfig  `yaml:"pipeline"`
	Discovery  DiscoveryConfig `yaml:"discovery"`
}

// ProtocolConfig contains the wire-format constants. The sync word and the
// frame type codes are deployment-specific: they must match whatever the
// transmitter firmware was built with.
type ProtocolConfig struct {
	SyncWord   uint32 `yaml:"sync_word"`
	TypeRaw    uint8  `yaml:"type_raw"`
	TypeLZ4    uint8  `yaml:"type_lz4"`
	TypeJPEG   uint8  `yaml:"type_jpeg"`
	MaxPayload uint32 `yaml:"max_payload"` // upper bound on data_len, caps per-frame allocation
}

// CanvasConfig is the fixed output geometry for RAW and LZ4 frames.
// JPEG frames keep their native resolution.
type CanvasConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// PipelineConfig contains pipeline tuning knobs
type PipelineConfig struct {
	AccumCapacity    int    `yaml:"accum_capacity"`     // per-connection byte accumulator cap
	MailboxCapacity  int    `yaml:"mailbox_capacity"`   // decoded-frame queue depth
	ReadPollMS       int    `yaml:"read_poll_ms"`       // socket read deadline, bounds shutdown latency
	PreferredCodec   string `yaml:"preferred_codec"`    // worker to pre-start; auto-detect still wins
	MaxDecodedPixels int    `yaml:"max_decoded_pixels"` // caps JPEG plane allocation from hostile headers
}

// DiscoveryConfig controls the mDNS advertisement
type DiscoveryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance"`
}

// Default returns the configuration matching the stock transmitter firmware.
func Default() *Config {
	return &Config{
		ListenAddr: "0.0.0.0:5577",
		Protocol: ProtocolConfig{
			SyncWord:   0xAEBC1402,
			TypeRaw:    0,
			TypeLZ4:    1,
			TypeJPEG:   2,
			MaxPayload: 512 * 1024,
		},
		Canvas: CanvasConfig{
			Width:  320,
			Height: 240,
		},
		Pipeline: PipelineConfig{
			AccumCapacity:    1024 * 1024,
			MailboxCapacity:  8,
			ReadPollMS:       50,
			PreferredCodec:   "",
			MaxDecodedPixels: 1920 * 1080,
		},
		Discovery: DiscoveryConfig{
			Enabled: false,
		},
	}
}

// Load reads a yaml config file, applying defaults for anything unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants the pipeline depends on.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr must not be empty")
	}
	if c.Protocol.SyncWord == 0 {
		return fmt.Errorf("protocol.sync_word must not be zero")
	}
	if c.Protocol.MaxPayload == 0 {
		return fmt.Errorf("protocol.max_payload must not be zero")
	}
	if c.Protocol.TypeRaw == c.Protocol.TypeLZ4 ||
		c.Protocol.TypeRaw == c.Protocol.TypeJPEG ||
		c.Protocol.TypeLZ4 == c.Protocol.TypeJPEG {
		return fmt.Errorf("protocol frame type codes must be distinct")
	}
	if c.Canvas.Width <= 0 || c.Canvas.Height <= 0 {
		return fmt.Errorf("canvas dimensions must be positive, got %dx%d", c.Canvas.Width, c.Canvas.Height)
	}
	if c.Pipeline.AccumCapacity < int(c.Protocol.MaxPayload)+16 {
		return fmt.Errorf("pipeline.accum_capacity (%d) must exceed protocol.max_payload (%d) plus header",
			c.Pipeline.AccumCapacity, c.Protocol.MaxPayload)
	}
	if c.Pipeline.MailboxCapacity <= 0 {
		return fmt.Errorf("pipeline.mailbox_capacity must be positive")
	}
	if c.Pipeline.ReadPollMS <= 0 {
		return fmt.Errorf("pipeline.read_poll_ms must be positive")
	}
	if c.Pipeline.MaxDecodedPixels < c.Canvas.Width*c.Canvas.Height {
		return fmt.Errorf("pipeline.max_decoded_pixels (%d) must cover the canvas (%dx%d)",
			c.Pipeline.MaxDecodedPixels, c.Canvas.Width, c.Canvas.Height)
	}
	switch c.Pipeline.PreferredCodec {
	case "", "raw", "lz4", "jpeg":
	default:
		return fmt.Errorf("pipeline.preferred_codec must be one of raw/lz4/jpeg, got %q", c.Pipeline.PreferredCodec)
	}
	return nil
}
