package encoder

import (
	"fmt"

	"github.com/Eyevinn/mp4ff/avc"
)

// SPSInfo is the subset of parsed SPS/VUI fields ParseSPSInfo extracts.
// No pipeline stage calls ParseSPSInfo or VerifyResolution, so no SPS check
// runs before a frame is dispatched.
//
// Grounded directly on h264_sps.go's ParseSPS/CheckSPSNeedsModification: the
// mp4ff SPS type exposes profile/level/ref-frame counts and the VUI
// bitstream_restriction fields, but not color primaries/transfer/matrix —
// those live deeper in the VUI's colour_description_present_flag branch,
// which this library version doesn't surface as named fields. Full
// color-VUI verification would require parsing that branch directly out of
// the raw bitstream; this is out of scope here and documented rather than
// guessed at.
type SPSInfo struct {
	ProfileIDC      uint8
	LevelIDC        uint8
	Width, Height   uint
	VUIPresent      bool
	BitstreamRestriction bool
}

// ParseSPSInfo parses a raw SPS NAL unit (including its NAL header byte).
func ParseSPSInfo(spsData []byte) (*SPSInfo, error) {
	if len(spsData) < 4 {
		return nil, fmt.Errorf("encoder: SPS too short: %d bytes", len(spsData))
	}
	sps, err := avc.ParseSPSNALUnit(spsData, true)
	if err != nil {
		return nil, fmt.Errorf("encoder: failed to decode SPS: %w", err)
	}
	info := &SPSInfo{
		ProfileIDC: uint8(sps.Profile),
		LevelIDC:   uint8(sps.Level),
		Width:      sps.Width,
		Height:     sps.Height,
	}
	if sps.VUI != nil {
		info.VUIPresent = true
		info.BitstreamRestriction = sps.VUI.BitstreamRestrictionFlag
	}
	return info, nil
}

// VerifyResolution reports an error when an SPS's resolution differs from
// width×height. No caller in this repository runs it on the encoder's
// output.
func VerifyResolution(spsData []byte, width, height int) error {
	info, err := ParseSPSInfo(spsData)
	if err != nil {
		return err
	}
	if info.Width != uint(width) || info.Height != uint(height) {
		return fmt.Errorf("encoder: SPS resolution %dx%d does not match expected %dx%d",
			info.Width, info.Height, width, height)
	}
	return nil
}
