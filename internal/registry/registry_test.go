package registry

import "testing"

func TestAllServiceIDsHas18Entries(t *testing.T) {
	if len(AllServiceIDs) != 18 {
		t.Fatalf("expected 18 service IDs, got %d", len(AllServiceIDs))
	}
	seen := make(map[ServiceID]bool)
	for _, id := range AllServiceIDs {
		if seen[id] {
			t.Fatalf("duplicate service ID %s", id)
		}
		seen[id] = true
	}
}

func TestBuildCoversEveryServiceID(t *testing.T) {
	caps := &CompositorCapabilities{Identity: "gnome", Globals: map[string]bool{"damage_hints": true}, Quirks: map[string]bool{}}
	r := Build(caps)
	for _, id := range AllServiceIDs {
		if _, ok := r.Descriptor(id); !ok {
			t.Errorf("registry missing descriptor for %s", id)
		}
	}
}

func TestGnomeDMABufUnavailableQuirk(t *testing.T) {
	caps := ProbeCompositorCapabilitiesForTest("gnome")
	r := Build(caps)
	if r.Level(SvcDMABuf) != Unavailable {
		t.Errorf("GNOME DMA-BUF should be Unavailable due to memfd quirk, got %v", r.Level(SvcDMABuf))
	}
}

func TestWlrootsCursorDegradedQuirk(t *testing.T) {
	caps := ProbeCompositorCapabilitiesForTest("sway")
	r := Build(caps)
	if r.Level(SvcCursorMode) != Degraded {
		t.Errorf("sway cursor mode should be Degraded due to missing hotspot, got %v", r.Level(SvcCursorMode))
	}
}

func TestAVC444GatedOnDamageHintsAndCompositor(t *testing.T) {
	caps := ProbeCompositorCapabilitiesForTest("unknown")
	r := Build(caps)
	if r.AtLeast(SvcAVC444Codec, BestEffort) {
		t.Error("unknown compositor must not qualify for AVC444")
	}

	caps2 := ProbeCompositorCapabilitiesForTest("gnome")
	r2 := Build(caps2)
	if !r2.AtLeast(SvcAVC444Codec, BestEffort) {
		t.Error("gnome with damage hints should qualify for AVC444")
	}
}

func TestLevelLatticeOrdering(t *testing.T) {
	if !(Unavailable < Degraded && Degraded < BestEffort && BestEffort < Guaranteed) {
		t.Fatal("level lattice ordering is broken")
	}
	if !Guaranteed.AtLeast(BestEffort) {
		t.Error("Guaranteed must satisfy AtLeast(BestEffort)")
	}
	if Unavailable.AtLeast(Degraded) {
		t.Error("Unavailable must not satisfy AtLeast(Degraded)")
	}
}

// ProbeCompositorCapabilitiesForTest builds capabilities without a live
// D-Bus connection, mirroring what ProbeCompositorCapabilities derives for
// a given identity so quirk/translation logic can be tested in isolation.
func ProbeCompositorCapabilitiesForTest(identity string) *CompositorCapabilities {
	caps := &CompositorCapabilities{Identity: identity, Globals: map[string]bool{}, Quirks: map[string]bool{}}
	switch identity {
	case "gnome":
		caps.Globals["damage_hints"] = true
		caps.Globals["explicit_sync"] = true
		caps.Globals["dma_buf"] = false
		caps.Quirks["gnome_memfd_buffers"] = true
	case "sway":
		caps.Globals["damage_hints"] = true
		caps.Globals["dma_buf"] = true
		caps.Quirks["wlroots_cursor_no_hotspot"] = true
	}
	return caps
}
