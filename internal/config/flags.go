package config

import "github.com/spf13/cobra"

// BindFlags registers one CLI flag per configuration field on cmd,
// using cfg's current values (already layered file < env) as each
// flag's default. cobra only overwrites a field when the user actually
// passes the flag, so this gives CLI the final say without needing a
// separate merge step (§6: "Precedence: CLI > environment > file").
func BindFlags(cmd *cobra.Command, cfg *Config) {
	f := cmd.Flags()

	f.StringVar(&cfg.ListenAddr, "listen-addr", cfg.ListenAddr, "RDP listen address")
	f.StringVar(&cfg.TLSCert, "tls-cert", cfg.TLSCert, "TLS certificate path")
	f.StringVar(&cfg.TLSKey, "tls-key", cfg.TLSKey, "TLS private key path")
	f.StringVar((*string)(&cfg.AuthMethod), "auth-method", string(cfg.AuthMethod), "authentication method: none or system-auth")

	f.IntVar(&cfg.TargetFPS, "target-fps", cfg.TargetFPS, "capture target frames per second")

	f.StringVar(&cfg.EncoderSelection, "encoder", cfg.EncoderSelection, "encoder selection: auto, avc420, or avc444")
	f.StringVar(&cfg.ColorMatrix, "color-matrix", cfg.ColorMatrix, "color matrix: auto, bt709, bt601, or srgb")
	f.StringVar(&cfg.ColorRange, "color-range", cfg.ColorRange, "color range: limited or full")
	f.IntVar(&cfg.BitrateKbps, "bitrate-kbps", cfg.BitrateKbps, "target encoder bitrate in kbps")

	f.BoolVar(&cfg.AVC444EnableAuxOmission, "avc444-enable-aux-omission", cfg.AVC444EnableAuxOmission, "allow the aux sub-stream to be omitted when unchanged")
	f.IntVar(&cfg.AVC444MaxAuxInterval, "avc444-max-aux-interval", cfg.AVC444MaxAuxInterval, "force an aux sub-stream at least this often (frames)")
	f.Float64Var(&cfg.AVC444AuxChangeThreshold, "avc444-aux-change-threshold", cfg.AVC444AuxChangeThreshold, "minimum aux-plane change fraction that forces a resend")

	f.IntVar(&cfg.DamageTileSize, "damage-tile-size", cfg.DamageTileSize, "damage tracker tile edge length in pixels")

	f.IntVar(&cfg.PipelineHighWaterMark, "pipeline-high-water-mark", cfg.PipelineHighWaterMark, "ingest queue depth that triggers frame drop")
	f.IntVar(&cfg.PipelineLowWaterMark, "pipeline-low-water-mark", cfg.PipelineLowWaterMark, "ingest queue depth that resumes accepting frames")
	f.IntVar(&cfg.MaxFrameAgeMS, "max-frame-age-ms", cfg.MaxFrameAgeMS, "dispatch-side maximum frame age before drop")

	f.IntVar(&cfg.ClipboardSizeCapBytes, "clipboard-size-cap-bytes", cfg.ClipboardSizeCapBytes, "maximum clipboard payload size in bytes")
	f.StringSliceVar(&cfg.ClipboardAllowedMIME, "clipboard-allowed-mime", cfg.ClipboardAllowedMIME, "allowed clipboard MIME types (empty allows all)")
}
