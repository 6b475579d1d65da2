package encoder

import "testing"

func TestLevelForResolution(t *testing.T) {
	cases := []struct {
		w, h int
		want string
	}{
		{720, 576, "3.0"},
		{1280, 720, "3.1"},
		{1920, 1080, "4.1"},
		{2048, 1024, "4.1"},
		{2560, 1440, "5.0"},
		{3840, 2160, "5.2"},
	}
	for _, c := range cases {
		if got := LevelForResolution(c.w, c.h); got != c.want {
			t.Errorf("LevelForResolution(%d,%d) = %s, want %s", c.w, c.h, got, c.want)
		}
	}
}

func TestDefaultConfigMatchesSpecDefaults(t *testing.T) {
	cfg := DefaultConfig()
	if !cfg.EnableAuxOmission {
		t.Error("aux omission must default to enabled")
	}
	if cfg.MaxAuxInterval != 30 {
		t.Errorf("max aux interval default = %d, want 30", cfg.MaxAuxInterval)
	}
	if cfg.AuxChangeThreshold != 0.05 {
		t.Errorf("aux change threshold default = %v, want 0.05", cfg.AuxChangeThreshold)
	}
	if cfg.QPMin != 10 || cfg.QPMax != 40 || cfg.QPTarget != 23 {
		t.Errorf("QP defaults = %d/%d/%d, want 10/40/23", cfg.QPMin, cfg.QPMax, cfg.QPTarget)
	}
	if cfg.AuxBitrateRatio != 0.5 {
		t.Errorf("aux bitrate ratio default = %v, want 0.5", cfg.AuxBitrateRatio)
	}
}
