// Package config loads the session configuration described in §6:
// TOML file, overridden by environment variables, overridden by CLI
// flags (file < env < CLI). Defaults live in Go code rather than in
// envconfig `default:` tags, since envconfig applies a default tag
// whenever the corresponding environment variable is absent -- which
// would silently clobber a value already set by the TOML layer. Each
// higher layer replaces a lower layer's value only where it supplies
// one: an environment variable only when it is set, and a CLI flag
// (bound in cmd/rdp-server) only when it is passed.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"

	"github.com/lamco-admin/wayland-rdp-sub008/internal/colorconv"
	"github.com/lamco-admin/wayland-rdp-sub008/internal/encoder"
)

// AuthMethod selects how an incoming RDP connection is authenticated (§6).
type AuthMethod string

const (
	AuthNone       AuthMethod = "none"
	AuthSystemAuth AuthMethod = "system-auth"
)

// Config is the full tabular configuration enumerated by §6: listen
// address, TLS material, auth method, capture/encoder tuning, the
// AVC444 aux-omission knobs, damage/pipeline tuning, and clipboard
// limits.
type Config struct {
	ListenAddr string `toml:"listen_addr" envconfig:"LISTEN_ADDR"`
	TLSCert    string `toml:"tls_cert_path" envconfig:"TLS_CERT_PATH"`
	TLSKey     string `toml:"tls_key_path" envconfig:"TLS_KEY_PATH"`
	AuthMethod AuthMethod `toml:"auth_method" envconfig:"AUTH_METHOD"`

	TargetFPS int `toml:"target_fps" envconfig:"TARGET_FPS"`

	EncoderSelection string  `toml:"encoder_selection" envconfig:"ENCODER_SELECTION"`
	ColorMatrix      string  `toml:"color_matrix" envconfig:"COLOR_MATRIX"`
	ColorRange       string  `toml:"color_range" envconfig:"COLOR_RANGE"`
	BitrateKbps      int     `toml:"bitrate_kbps" envconfig:"BITRATE_KBPS"`

	AVC444EnableAuxOmission bool    `toml:"avc444_enable_aux_omission" envconfig:"AVC444_ENABLE_AUX_OMISSION"`
	AVC444MaxAuxInterval    int     `toml:"avc444_max_aux_interval" envconfig:"AVC444_MAX_AUX_INTERVAL"`
	AVC444AuxChangeThreshold float64 `toml:"avc444_aux_change_threshold" envconfig:"AVC444_AUX_CHANGE_THRESHOLD"`

	DamageTileSize int `toml:"damage_tile_size" envconfig:"DAMAGE_TILE_SIZE"`

	PipelineHighWaterMark int `toml:"pipeline_high_water_mark" envconfig:"PIPELINE_HIGH_WATER_MARK"`
	PipelineLowWaterMark  int `toml:"pipeline_low_water_mark" envconfig:"PIPELINE_LOW_WATER_MARK"`
	MaxFrameAgeMS         int `toml:"max_frame_age_ms" envconfig:"MAX_FRAME_AGE_MS"`

	ClipboardSizeCapBytes  int      `toml:"clipboard_size_cap_bytes" envconfig:"CLIPBOARD_SIZE_CAP_BYTES"`
	ClipboardAllowedMIME   []string `toml:"clipboard_allowed_mime" envconfig:"CLIPBOARD_ALLOWED_MIME"`
}

// Default returns the §6-documented defaults. Bitrate and the AVC444
// aux-omission values come from encoder.DefaultConfig; the damage tile
// size and the pipeline water marks and frame age are literals here
// that repeat the damage and pipeline packages' own defaults.
func Default() Config {
	enc := encoder.DefaultConfig()
	return Config{
		ListenAddr:               ":3389",
		AuthMethod:               AuthSystemAuth,
		TargetFPS:                30,
		EncoderSelection:         string(encoder.SelectionAuto),
		ColorMatrix:              "auto",
		ColorRange:               "limited",
		BitrateKbps:              enc.BitrateKbps,
		AVC444EnableAuxOmission:  true,
		AVC444MaxAuxInterval:     enc.MaxAuxInterval,
		AVC444AuxChangeThreshold: enc.AuxChangeThreshold,
		DamageTileSize:           64,
		PipelineHighWaterMark:    6,
		PipelineLowWaterMark:     2,
		MaxFrameAgeMS:            150,
		ClipboardSizeCapBytes:    32 * 1024 * 1024,
		ClipboardAllowedMIME:     nil, // empty: orchestrator.mimeAllowed treats nil as allow-all
	}
}

// Load builds a Config starting from Default, overlaying a TOML file
// (if tomlPath is non-empty and exists) and then environment
// variables prefixed RDPRDP_ -- e.g. RDPRDP_LISTEN_ADDR. The result is
// still missing CLI overrides; cmd/rdp-server applies those by
// binding cobra flags with this Config's current fields as their
// defaults (see BindFlags).
func Load(tomlPath string) (*Config, error) {
	cfg := Default()

	if tomlPath != "" {
		data, err := os.ReadFile(tomlPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file %s: %w", tomlPath, err)
			}
		} else if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", tomlPath, err)
		}
	}

	if err := envconfig.Process("rdprdp", &cfg); err != nil {
		return nil, fmt.Errorf("process environment overrides: %w", err)
	}

	return &cfg, nil
}

// Matrix resolves ColorMatrix's string form to colorconv.Matrix.
func (c *Config) Matrix() (colorconv.Matrix, error) {
	switch strings.ToLower(c.ColorMatrix) {
	case "", "auto":
		return colorconv.MatrixAuto, nil
	case "bt709":
		return colorconv.MatrixBT709, nil
	case "bt601":
		return colorconv.MatrixBT601, nil
	case "srgb":
		return colorconv.MatrixSRGB, nil
	default:
		return 0, fmt.Errorf("unknown color matrix %q", c.ColorMatrix)
	}
}

// Range resolves ColorRange's string form to colorconv.Range.
func (c *Config) Range() (colorconv.Range, error) {
	switch strings.ToLower(c.ColorRange) {
	case "", "limited":
		return colorconv.RangeLimited, nil
	case "full":
		return colorconv.RangeFull, nil
	default:
		return 0, fmt.Errorf("unknown color range %q", c.ColorRange)
	}
}

// Encoder resolves EncoderSelection's string form to encoder.Selection.
func (c *Config) Encoder() (encoder.Selection, error) {
	switch encoder.Selection(strings.ToLower(c.EncoderSelection)) {
	case "", encoder.SelectionAuto:
		return encoder.SelectionAuto, nil
	case encoder.SelectionAVC420:
		return encoder.SelectionAVC420, nil
	case encoder.SelectionAVC444:
		return encoder.SelectionAVC444, nil
	default:
		return "", fmt.Errorf("unknown encoder selection %q", c.EncoderSelection)
	}
}

// EncoderConfig builds an encoder.Config from the resolved fields,
// keeping defaults for anything §6 does not expose directly (QP
// bounds, aux bitrate ratio, GStreamer element name).
func (c *Config) EncoderConfig() (encoder.Config, error) {
	matrix, err := c.Matrix()
	if err != nil {
		return encoder.Config{}, err
	}
	rng, err := c.Range()
	if err != nil {
		return encoder.Config{}, err
	}
	sel, err := c.Encoder()
	if err != nil {
		return encoder.Config{}, err
	}

	ec := encoder.DefaultConfig()
	ec.Selection = sel
	ec.Matrix = matrix
	ec.Range = rng
	ec.BitrateKbps = c.BitrateKbps
	ec.EnableAuxOmission = c.AVC444EnableAuxOmission
	ec.MaxAuxInterval = c.AVC444MaxAuxInterval
	ec.AuxChangeThreshold = c.AVC444AuxChangeThreshold
	return ec, nil
}

// Validate checks the fatal-at-startup invariants from §7's
// Configuration error kind.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if c.AuthMethod != AuthNone {
		if c.TLSCert == "" || c.TLSKey == "" {
			return fmt.Errorf("tls_cert_path and tls_key_path are required unless auth_method is %q", AuthNone)
		}
	}
	if c.TargetFPS <= 0 {
		return fmt.Errorf("target_fps must be positive")
	}
	if c.PipelineLowWaterMark >= c.PipelineHighWaterMark {
		return fmt.Errorf("pipeline_low_water_mark must be below pipeline_high_water_mark")
	}
	if _, err := c.Matrix(); err != nil {
		return err
	}
	if _, err := c.Range(); err != nil {
		return err
	}
	if _, err := c.Encoder(); err != nil {
		return err
	}
	return nil
}
