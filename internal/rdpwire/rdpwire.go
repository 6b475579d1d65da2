// Package rdpwire defines the boundary between this core and the external
// RDP protocol library that performs the TLS/NLA handshake, wire codec, and
// channel multiplexing (§6). Nothing in this package speaks the RDP wire
// format; it only describes the shape of the library this core depends on.
package rdpwire

import (
	"context"
	"time"
)

// ErrKind is a small closed set of error kinds (§7), not a type hierarchy.
type ErrKind int

const (
	ErrUnknown ErrKind = iota
	ErrConfiguration
	ErrHostUnavailable
	ErrPermissionDenied
	ErrTransient
	ErrProtocol
	ErrEncoderFault
	ErrResourceExhaustion
)

func (k ErrKind) String() string {
	switch k {
	case ErrConfiguration:
		return "configuration"
	case ErrHostUnavailable:
		return "host_unavailable"
	case ErrPermissionDenied:
		return "permission_denied"
	case ErrTransient:
		return "transient"
	case ErrProtocol:
		return "protocol"
	case ErrEncoderFault:
		return "encoder_fault"
	case ErrResourceExhaustion:
		return "resource_exhaustion"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with a classification from §7.
type Error struct {
	Kind ErrKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.String()
	}
	return e.Op + ": " + e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap builds an *Error, the idiom used at every core/boundary crossing.
func Wrap(kind ErrKind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// RegionRect is a dirty rectangle in frame-pixel coordinates.
type RegionRect struct {
	X, Y, Width, Height int
}

// Avc444Frame is the per-frame envelope handed to the external RDP library's
// GraphicsChannel, per MS-RDPEGFX §3.3.8.3.2.
type Avc444Frame struct {
	CompositeFrameNumber uint32
	Main                 []byte
	MainIsIDR            bool
	MainRegions          []RegionRect
	Aux                  []byte // nil when the auxiliary sub-stream is omitted
	AuxIsIDR             bool
	AuxRegions           []RegionRect
	// LC is the AVC444 "LC" indicator: 0 when both sub-streams are present,
	// 1 when only Main is present (aux omitted or AVC420 fallback).
	LC        uint8
	Timestamp time.Time
}

// Scancode is an MS-RDPBCGR keyboard scancode as received on the wire.
type Scancode uint16

// PointerButton identifies a mouse button in wire order.
type PointerButton int

const (
	PointerButtonLeft PointerButton = iota + 1
	PointerButtonMiddle
	PointerButtonRight
)

// KeyEvent, PointerMotionEvent, PointerButtonEvent, PointerAxisEvent are the
// events the external library's InputChannel delivers to the Input Router.
type KeyEvent struct {
	Code    Scancode
	Pressed bool
}

type PointerMotionEvent struct {
	// NormX, NormY are in [0,1] relative to the stream named by StreamID.
	StreamID     string
	NormX, NormY float64
}

type PointerButtonEvent struct {
	Button  PointerButton
	Pressed bool
}

type PointerAxisEvent struct {
	DeltaX, DeltaY float64
}

// ClipboardFormat identifies an advertised clipboard data format.
type ClipboardFormat struct {
	ID   uint32
	Name string // long-format name, e.g. "text/plain;charset=utf-8"
}

// FileDescriptorMeta describes one file in a clipboard file-list transfer.
type FileDescriptorMeta struct {
	Name       string
	Size       uint64
	Attributes uint32
}

// SessionAcceptor performs the TLS/NLA handshake and RDP capability exchange
// for one client connection and yields the three channels this core drives.
// Implemented by the external RDP protocol library; this core only depends
// on the interface.
type SessionAcceptor interface {
	Accept(ctx context.Context) (*AcceptedSession, error)
	Close() error
}

// AcceptedSession bundles the negotiated channels for one client.
type AcceptedSession struct {
	ClientID          string
	SupportsAVC444    bool // RDPGFX V10+ negotiated
	SupportsAVC420    bool // RDPGFX V8+ negotiated
	Graphics          GraphicsChannel
	Clipboard         ClipboardChannel
	Input             InputChannel
}

// GraphicsChannel accepts encoded AVC420/AVC444 frames for dispatch to the
// client and reports client-initiated keyframe requests.
type GraphicsChannel interface {
	SendFrame(ctx context.Context, frame Avc444Frame) error
	// KeyframeRequests delivers a value each time the client requests a
	// full refresh (e.g. after a reconnect or a detected glitch).
	KeyframeRequests() <-chan struct{}
	Close() error
}

// ClipboardChannel is the CLIPRDR boundary.
type ClipboardChannel interface {
	AnnounceFormats(ctx context.Context, formats []ClipboardFormat) error
	RequestFormat(ctx context.Context, formatID uint32) ([]byte, error)
	// Inbound delivers remote-initiated format announcements and data, keyed
	// by an opaque serial this core must echo back on any corresponding
	// request so responses can be matched FIFO.
	Inbound() <-chan ClipboardInboundEvent
	// RespondFormat answers a remote-initiated data request (an
	// ClipboardInboundEvent with FormatID set and Data/Formats/Files nil)
	// identified by its Serial.
	RespondFormat(ctx context.Context, serial uint64, data []byte) error
	RequestFileContents(ctx context.Context, listID uint32, fileIndex int, offset, length uint64) ([]byte, error)
	Close() error
}

// ClipboardInboundEvent is one event arriving from the remote peer.
type ClipboardInboundEvent struct {
	Serial       uint64
	Formats      []ClipboardFormat // non-nil on a format-list announcement
	Data         []byte            // non-nil on a data response
	FormatID     uint32
	Files        []FileDescriptorMeta // non-nil on a file-list announcement
}

// InputChannel streams client input events in wire order.
type InputChannel interface {
	Events() <-chan any // one of KeyEvent, PointerMotionEvent, PointerButtonEvent, PointerAxisEvent
	// FocusLost fires on client-reported loss of focus, requiring modifier
	// resynchronization per §4.9.
	FocusLost() <-chan struct{}
}
