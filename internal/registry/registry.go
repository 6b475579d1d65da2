package registry

import "github.com/puzpuzpuz/xsync/v3"

// probeFunc derives one ServiceDescriptor from the probed capabilities.
// Built as a map-literal dispatch table in the style of vk_evdev.go's
// vkToEvdev, in preference to a long if/else chain over 18 cases.
type probeFunc func(caps *CompositorCapabilities) ServiceDescriptor

var probeTable = map[ServiceID]probeFunc{
	SvcVideoCapture: func(caps *CompositorCapabilities) ServiceDescriptor {
		lvl := Degraded
		if caps.Identity == "gnome" || caps.Identity == "sway" {
			lvl = Guaranteed
		}
		return ServiceDescriptor{ID: SvcVideoCapture, Level: lvl, HostFeature: "pipewire_screencast", RDPCapability: "rdpgfx", RecommendedFPS: 30}
	},
	SvcDamageHints: func(caps *CompositorCapabilities) ServiceDescriptor {
		lvl := Unavailable
		if caps.hasGlobal("damage_hints") {
			lvl = BestEffort
		}
		return ServiceDescriptor{ID: SvcDamageHints, Level: lvl, HostFeature: "wl_surface_damage", RDPCapability: "damage_tracking"}
	},
	SvcDMABuf: func(caps *CompositorCapabilities) ServiceDescriptor {
		lvl := Unavailable
		if caps.hasGlobal("dma_buf") {
			lvl = BestEffort
		}
		if caps.hasQuirk("gnome_memfd_buffers") {
			// GNOME's ScreenCast portal delivers memfd buffers in the
			// common case, not DMA-BUF, despite the global existing.
			lvl = Unavailable
		}
		return ServiceDescriptor{ID: SvcDMABuf, Level: lvl, HostFeature: "linux_dmabuf_v1", RDPCapability: "zero_copy_capture", ZeroCopyAvailable: lvl.AtLeast(BestEffort)}
	},
	SvcExplicitSync: func(caps *CompositorCapabilities) ServiceDescriptor {
		lvl := Unavailable
		if caps.hasGlobal("explicit_sync") {
			lvl = BestEffort
		}
		return ServiceDescriptor{ID: SvcExplicitSync, Level: lvl, HostFeature: "linux_explicit_synchronization_v1", RDPCapability: "tear_free_capture"}
	},
	SvcMultiMonitor: func(caps *CompositorCapabilities) ServiceDescriptor {
		lvl := Degraded
		if caps.Identity == "gnome" {
			lvl = Guaranteed
		} else if caps.Identity == "sway" {
			lvl = BestEffort
		}
		return ServiceDescriptor{ID: SvcMultiMonitor, Level: lvl, HostFeature: "portal_screencast_monitor_selection", RDPCapability: "multi_monitor"}
	},
	SvcHDRMetadata: func(caps *CompositorCapabilities) ServiceDescriptor {
		return ServiceDescriptor{ID: SvcHDRMetadata, Level: Unavailable, HostFeature: "wp_color_management", RDPCapability: "hdr_metadata"}
	},
	SvcCursorMode: func(caps *CompositorCapabilities) ServiceDescriptor {
		lvl := BestEffort
		if caps.hasQuirk("wlroots_cursor_no_hotspot") {
			lvl = Degraded
		}
		return ServiceDescriptor{ID: SvcCursorMode, Level: lvl, HostFeature: "portal_cursor_mode_metadata", RDPCapability: "pointer_prediction"}
	},
	SvcAVC444Codec: func(caps *CompositorCapabilities) ServiceDescriptor {
		// Gated on damage hints + an appropriate compositor being BestEffort+,
		// per §4.6: "AVC444 only if both damage tracking and appropriate
		// compositor version are BestEffort+".
		lvl := Unavailable
		if caps.hasGlobal("damage_hints") && (caps.Identity == "gnome" || caps.Identity == "sway") {
			lvl = BestEffort
		}
		return ServiceDescriptor{ID: SvcAVC444Codec, Level: lvl, HostFeature: "compositor_damage_hints", RDPCapability: "rdpgfx_avc444"}
	},

	SvcKeyboardInjection: func(caps *CompositorCapabilities) ServiceDescriptor {
		return ServiceDescriptor{ID: SvcKeyboardInjection, Level: Guaranteed, HostFeature: "zwp_virtual_keyboard_v1_or_portal_remotedesktop", RDPCapability: "input_keyboard"}
	},
	SvcPointerInjection: func(caps *CompositorCapabilities) ServiceDescriptor {
		return ServiceDescriptor{ID: SvcPointerInjection, Level: Guaranteed, HostFeature: "zwlr_virtual_pointer_v1_or_portal_remotedesktop", RDPCapability: "input_pointer"}
	},
	SvcClipboardTransfer: func(caps *CompositorCapabilities) ServiceDescriptor {
		lvl := BestEffort
		if caps.Identity == "unknown" {
			lvl = Degraded
		}
		return ServiceDescriptor{ID: SvcClipboardTransfer, Level: lvl, HostFeature: "portal_remotedesktop_clipboard", RDPCapability: "cliprdr"}
	},

	SvcRestoreTokenPortal: func(caps *CompositorCapabilities) ServiceDescriptor {
		lvl := Unavailable
		if caps.Identity == "gnome" || caps.Identity == "sway" {
			lvl = BestEffort
		}
		return ServiceDescriptor{ID: SvcRestoreTokenPortal, Level: lvl, HostFeature: "portal_restore_token", RDPCapability: "session_restore"}
	},
	SvcRestoreTokenKeyring: func(caps *CompositorCapabilities) ServiceDescriptor {
		return ServiceDescriptor{ID: SvcRestoreTokenKeyring, Level: BestEffort, HostFeature: "dbus_secret_service", RDPCapability: "credential_persistence"}
	},
	SvcRestoreTokenTPM: func(caps *CompositorCapabilities) ServiceDescriptor {
		// No TPM-sealed-storage library exists anywhere in the retrieved
		// pack; this backend is a stub that always reports Unavailable.
		return ServiceDescriptor{ID: SvcRestoreTokenTPM, Level: Unavailable, HostFeature: "tpm2_sealed_storage", RDPCapability: "credential_persistence"}
	},
	SvcRestoreTokenSandboxFile: func(caps *CompositorCapabilities) ServiceDescriptor {
		return ServiceDescriptor{ID: SvcRestoreTokenSandboxFile, Level: Guaranteed, HostFeature: "xdg_state_home_file", RDPCapability: "credential_persistence"}
	},
	SvcRestoreTokenEncryptedFile: func(caps *CompositorCapabilities) ServiceDescriptor {
		return ServiceDescriptor{ID: SvcRestoreTokenEncryptedFile, Level: Guaranteed, HostFeature: "xdg_state_home_file_encrypted", RDPCapability: "credential_persistence"}
	},
	SvcSessionReconnect: func(caps *CompositorCapabilities) ServiceDescriptor {
		lvl := BestEffort
		if caps.Identity == "unknown" {
			lvl = Degraded
		}
		return ServiceDescriptor{ID: SvcSessionReconnect, Level: lvl, HostFeature: "portal_session_handle_reuse", RDPCapability: "session_reconnect"}
	},
	SvcIdleSessionPersistence: func(caps *CompositorCapabilities) ServiceDescriptor {
		return ServiceDescriptor{ID: SvcIdleSessionPersistence, Level: BestEffort, HostFeature: "logind_idle_inhibit", RDPCapability: "idle_disconnect_policy"}
	},
}

// Registry is a read-only, post-startup-probe set of ServiceDescriptors
// (§4.6): "The Service Registry is read-only after startup probing" (§5).
// descriptors uses xsync.MapOf (the same concurrent-map type the pack's
// scheduler uses for its slot/runner tables) even though Build populates
// it once and nothing ever calls Store again afterward. The only reader in
// this repository is cmd/rdp-server's startup log line; xsync.MapOf's
// lock-striped reads keep concurrent readers off a single mutex without
// relying on a plain map's happens-before guarantees.
type Registry struct {
	caps        *CompositorCapabilities
	descriptors *xsync.MapOf[ServiceID, ServiceDescriptor]
}

// Build translates probed capabilities into the full 18-descriptor table.
func Build(caps *CompositorCapabilities) *Registry {
	r := &Registry{caps: caps, descriptors: xsync.NewMapOf[ServiceID, ServiceDescriptor]()}
	for _, id := range AllServiceIDs {
		fn, ok := probeTable[id]
		if !ok {
			r.descriptors.Store(id, ServiceDescriptor{ID: id, Level: Unavailable})
			continue
		}
		r.descriptors.Store(id, fn(caps))
	}
	return r
}

// Level returns the guarantee level for a service. Unknown IDs report
// Unavailable rather than panicking, since the 18-entry set is closed but
// callers may probe defensively.
func (r *Registry) Level(id ServiceID) Level {
	d, ok := r.descriptors.Load(id)
	if !ok {
		return Unavailable
	}
	return d.Level
}

// AtLeast is the decision-gate form used throughout session/pipeline/codec
// selection (§4.6).
func (r *Registry) AtLeast(id ServiceID, min Level) bool {
	return r.Level(id).AtLeast(min)
}

// Descriptor returns the full descriptor for a service.
func (r *Registry) Descriptor(id ServiceID) (ServiceDescriptor, bool) {
	return r.descriptors.Load(id)
}

// Capabilities returns the compositor capabilities this registry was built from.
func (r *Registry) Capabilities() *CompositorCapabilities {
	return r.caps
}
