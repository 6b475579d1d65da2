package registry

// ServiceID identifies one of the 18 services the registry tracks (§4.6).
type ServiceID string

// Display services (8).
const (
	SvcVideoCapture ServiceID = "video_capture"
	SvcDamageHints  ServiceID = "damage_hints"
	SvcDMABuf       ServiceID = "dma_buf"
	SvcExplicitSync ServiceID = "explicit_sync"
	SvcMultiMonitor ServiceID = "multi_monitor"
	SvcHDRMetadata  ServiceID = "hdr_metadata"
	SvcCursorMode   ServiceID = "cursor_mode"
	SvcAVC444Codec  ServiceID = "avc444_codec"
)

// Input/output services (3).
const (
	SvcKeyboardInjection ServiceID = "keyboard_injection"
	SvcPointerInjection  ServiceID = "pointer_injection"
	SvcClipboardTransfer ServiceID = "clipboard_transfer"
)

// Session-persistence services (7).
const (
	SvcRestoreTokenPortal        ServiceID = "restore_token_portal"
	SvcRestoreTokenKeyring       ServiceID = "restore_token_keyring"
	SvcRestoreTokenTPM           ServiceID = "restore_token_tpm"
	SvcRestoreTokenSandboxFile   ServiceID = "restore_token_sandbox_file"
	SvcRestoreTokenEncryptedFile ServiceID = "restore_token_encrypted_file"
	SvcSessionReconnect          ServiceID = "session_reconnect"
	SvcIdleSessionPersistence    ServiceID = "idle_session_persistence"
)

// AllServiceIDs enumerates the full closed set of 18 services.
var AllServiceIDs = []ServiceID{
	SvcVideoCapture, SvcDamageHints, SvcDMABuf, SvcExplicitSync,
	SvcMultiMonitor, SvcHDRMetadata, SvcCursorMode, SvcAVC444Codec,

	SvcKeyboardInjection, SvcPointerInjection, SvcClipboardTransfer,

	SvcRestoreTokenPortal, SvcRestoreTokenKeyring, SvcRestoreTokenTPM,
	SvcRestoreTokenSandboxFile, SvcRestoreTokenEncryptedFile,
	SvcSessionReconnect, SvcIdleSessionPersistence,
}

// ServiceDescriptor is one entry in the registry (§3 ServiceDescriptor).
type ServiceDescriptor struct {
	ID            ServiceID
	Level         Level
	HostFeature   string // the underlying host feature this derives from
	RDPCapability string // the RDP-side capability this enables

	// Performance hints, all optional (zero value means "not applicable").
	RecommendedFPS    int
	LatencyOverheadMs float64
	ZeroCopyAvailable bool
}
