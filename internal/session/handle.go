// Package session implements the Session Strategy Selector (§4.7): five
// strategies for obtaining host video/input/clipboard access, unified
// behind a single SessionHandle contract.
package session

import "context"

// PipeWireAccess is how the capture source reaches the compositor's video
// stream: either a passed file descriptor (portal/wlroots) or a node
// identifier (direct compositor API) (§3 SessionHandle).
type PipeWireAccess struct {
	FD     int // meaningful only when HasFD is true; otherwise NodeID is used
	NodeID uint32
	HasFD  bool
}

// StreamDescriptor describes one active video stream exposed by a session.
type StreamDescriptor struct {
	ID     string
	Width  int
	Height int
}

// PointerButton mirrors rdpwire.PointerButton without importing the wire
// package, keeping this interior package decoupled from the wire boundary.
type PointerButton int

const (
	PointerLeft PointerButton = iota
	PointerMiddle
	PointerRight
)

// ClipboardEndpoint is the optional clipboard transport a strategy can
// share with the session; nil means the caller must establish a separate
// clipboard session (§4.7: strategy 1 has no clipboard of its own).
type ClipboardEndpoint interface {
	Close() error
}

// Handle is the unified capability bundle every strategy yields (§3, §4.7).
// The handle itself is read-only; implementations must internally
// serialize their D-Bus calls so it is safe to share across the capture
// source, input router, and clipboard orchestrator concurrently (§5 Shared
// resources).
type Handle interface {
	PipeWireAccess(ctx context.Context) (PipeWireAccess, error)
	Streams(ctx context.Context) ([]StreamDescriptor, error)

	NotifyKeyboardKeycode(ctx context.Context, code uint32, pressed bool) error
	NotifyPointerMotionAbsolute(ctx context.Context, streamID string, x, y float64) error
	NotifyPointerButton(ctx context.Context, button PointerButton, pressed bool) error
	NotifyPointerAxis(ctx context.Context, dx, dy float64) error

	// Clipboard returns the shared clipboard endpoint, or nil if this
	// strategy does not provide one.
	Clipboard(ctx context.Context) (ClipboardEndpoint, error)

	// RestoreToken returns the token to persist for session restoration,
	// if the strategy produced one (portal strategies only).
	RestoreToken() (string, bool)

	Close(ctx context.Context) error
}

// Kind identifies one of the five strategies, in preference order (§4.7).
type Kind int

const (
	StrategyDirectCompositor Kind = iota
	StrategyPortalRestoreToken
	StrategyWlrootsNative
	StrategyLibeiEIS
	StrategyBasicPortal
)

func (k Kind) String() string {
	switch k {
	case StrategyDirectCompositor:
		return "direct_compositor"
	case StrategyPortalRestoreToken:
		return "portal_restore_token"
	case StrategyWlrootsNative:
		return "wlroots_native"
	case StrategyLibeiEIS:
		return "libei_eis"
	case StrategyBasicPortal:
		return "basic_portal"
	default:
		return "unknown"
	}
}

// Preference is the fixed strategy evaluation order from §4.7.
var Preference = []Kind{
	StrategyDirectCompositor,
	StrategyPortalRestoreToken,
	StrategyWlrootsNative,
	StrategyLibeiEIS,
	StrategyBasicPortal,
}

// requiresUnmediatedAccess reports whether a strategy needs unmediated
// D-Bus or raw Wayland protocol access, which sandboxed processes cannot
// use (§4.7 selection algorithm, step a).
func requiresUnmediatedAccess(k Kind) bool {
	switch k {
	case StrategyDirectCompositor, StrategyWlrootsNative:
		return true
	default:
		return false
	}
}

// Strategy is a factory that attempts to establish a Handle (§4.7: "A
// strategy is a factory that, on success, yields a SessionHandle").
type Strategy interface {
	Kind() Kind
	// Available reports whether this strategy's prerequisites are met,
	// without attempting to establish a session. Implementations decide
	// from their constructor inputs (compositor identity, an enable flag,
	// a capture callback); none consults the Service Registry.
	Available(ctx context.Context) bool
	Establish(ctx context.Context, profileID string) (Handle, error)
}
