package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lamco-admin/wayland-rdp-sub008/internal/colorconv"
	"github.com/lamco-admin/wayland-rdp-sub008/internal/encoder"
)

func TestDefaultPassesValidate(t *testing.T) {
	cfg := Default()
	cfg.AuthMethod = AuthNone // avoid the TLS-required branch for this check
	require.NoError(t, cfg.Validate())
}

func TestLoadAppliesTOMLOverTOMLDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := "listen_addr = \"0.0.0.0:4000\"\ntarget_fps = 45\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:4000", cfg.ListenAddr)
	require.Equal(t, 45, cfg.TargetFPS)
	// Untouched fields retain their Default() values.
	require.True(t, cfg.AVC444EnableAuxOmission, "expected avc444_enable_aux_omission default to survive an unrelated TOML file")
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	require.NoError(t, err, "missing config file should not be an error")

	want := Default()
	require.Equal(t, want.ListenAddr, cfg.ListenAddr)
	require.Equal(t, want.TargetFPS, cfg.TargetFPS)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("target_fps = 20\n"), 0o600))

	t.Setenv("RDPRDP_TARGET_FPS", "55")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 55, cfg.TargetFPS, "expected env override to win over file")
}

func TestMatrixRangeEncoderResolution(t *testing.T) {
	cfg := Default()
	cfg.ColorMatrix = "bt709"
	cfg.ColorRange = "full"
	cfg.EncoderSelection = "avc444"

	m, err := cfg.Matrix()
	require.NoError(t, err)
	require.Equal(t, colorconv.MatrixBT709, m)

	r, err := cfg.Range()
	require.NoError(t, err)
	require.Equal(t, colorconv.RangeFull, r)

	sel, err := cfg.Encoder()
	require.NoError(t, err)
	require.Equal(t, encoder.SelectionAVC444, sel)
}

func TestMatrixRejectsUnknownValue(t *testing.T) {
	cfg := Default()
	cfg.ColorMatrix = "nonsense"
	_, err := cfg.Matrix()
	require.Error(t, err)
}

func TestValidateRejectsInvertedWaterMarks(t *testing.T) {
	cfg := Default()
	cfg.AuthMethod = AuthNone
	cfg.PipelineLowWaterMark = cfg.PipelineHighWaterMark
	require.Error(t, cfg.Validate())
}

func TestValidateRequiresTLSUnlessAuthNone(t *testing.T) {
	cfg := Default()
	cfg.AuthMethod = AuthSystemAuth
	cfg.TLSCert = ""
	cfg.TLSKey = ""
	require.Error(t, cfg.Validate())
}

func TestEncoderConfigCarriesResolvedFields(t *testing.T) {
	cfg := Default()
	cfg.BitrateKbps = 8000
	cfg.AVC444MaxAuxInterval = 12

	ec, err := cfg.EncoderConfig()
	require.NoError(t, err)
	require.Equal(t, 8000, ec.BitrateKbps)
	require.Equal(t, 12, ec.MaxAuxInterval)
}
