package encoder

import "github.com/lamco-admin/wayland-rdp-sub008/internal/colorconv"

// Selection chooses which RDPGFX codec path the pipeline uses (§6 Configuration).
type Selection string

const (
	SelectionAuto   Selection = "auto"
	SelectionAVC420 Selection = "avc420"
	SelectionAVC444 Selection = "avc444"
)

// Config is the encoder-relevant subset of the session configuration (§4.5.4, §6).
type Config struct {
	Selection Selection

	// EncoderElement is the GStreamer encoder element name, e.g. "x264enc",
	// "nvh264enc", "vaapih264enc". Left to the caller so hardware encoders
	// selected by the Service Registry's capability probe can be used.
	EncoderElement string

	Matrix colorconv.Matrix
	Range  colorconv.Range

	BitrateKbps     int
	AuxBitrateRatio float64 // default 0.5x main, per §4.5.4

	QPMin, QPMax, QPTarget int

	EnableAuxOmission  bool // must default to true, per §6
	MaxAuxInterval     int
	AuxChangeThreshold float64
}

// DefaultConfig returns the documented §4.5.4/§6 defaults.
func DefaultConfig() Config {
	return Config{
		Selection:          SelectionAuto,
		EncoderElement:     "x264enc",
		Matrix:             colorconv.MatrixAuto,
		Range:              colorconv.RangeLimited,
		BitrateKbps:        4000,
		AuxBitrateRatio:    0.5,
		QPMin:              10,
		QPMax:              40,
		QPTarget:           23,
		EnableAuxOmission:  true,
		MaxAuxInterval:     DefaultMaxAuxInterval,
		AuxChangeThreshold: DefaultAuxChangeThreshold,
	}
}

// LevelForResolution auto-selects the H.264 level from the standard table
// in §4.5.4, comparing the frame size in 16×16 macroblocks with each
// level's maximum (720×576, 1280×720, 2048×1024, 2560×1440), so 1920×1080
// (8160 macroblocks) is level 4.1. Callers may override this with an
// explicit level.
func LevelForResolution(width, height int) string {
	mbs := ((width + 15) / 16) * ((height + 15) / 16)
	switch {
	case mbs <= 1620:
		return "3.0"
	case mbs <= 3600:
		return "3.1"
	case mbs <= 8192:
		return "4.1"
	case mbs <= 14400:
		return "5.0"
	default:
		return "5.2"
	}
}
