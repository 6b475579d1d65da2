package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bnema/wayland-virtual-input-go/virtual_keyboard"
	"github.com/bnema/wayland-virtual-input-go/virtual_pointer"
	"github.com/hashicorp/go-multierror"

	"github.com/lamco-admin/wayland-rdp-sub008/internal/rdpwire"
)

// CaptureFD is a caller-provided way to obtain the wlroots-specific capture
// file descriptor (e.g. a wlr-screencopy-backed PipeWire bridge). The
// strategy itself only owns input injection, matching the teacher's own
// split (wayland_input.go is input-only; capture lives in gst_pipeline.go's
// pipewiresrc wrapper, which is parameterized by whatever fd/node-id this
// strategy supplies).
type CaptureFD func(ctx context.Context) (PipeWireAccess, error)

// WlrootsNativeStrategy implements strategy 3 (§4.7): zwlr_virtual_pointer_v1
// / zwp_virtual_keyboard_v1 input with no portal and no permission prompts.
type WlrootsNativeStrategy struct {
	logger       *slog.Logger
	isWlroots    bool
	screenWidth  int
	screenHeight int
	captureFD    CaptureFD
}

func NewWlrootsNativeStrategy(logger *slog.Logger, isWlroots bool, screenWidth, screenHeight int, captureFD CaptureFD) *WlrootsNativeStrategy {
	return &WlrootsNativeStrategy{logger: logger, isWlroots: isWlroots, screenWidth: screenWidth, screenHeight: screenHeight, captureFD: captureFD}
}

func (w *WlrootsNativeStrategy) Kind() Kind { return StrategyWlrootsNative }

func (w *WlrootsNativeStrategy) Available(ctx context.Context) bool {
	return w.isWlroots && w.captureFD != nil
}

func (w *WlrootsNativeStrategy) Establish(ctx context.Context, profileID string) (Handle, error) {
	pointerManager, err := virtual_pointer.NewVirtualPointerManager(ctx)
	if err != nil {
		return nil, rdpwire.Wrap(rdpwire.ErrHostUnavailable, "wlroots.NewVirtualPointerManager", err)
	}
	pointer, err := pointerManager.CreatePointer()
	if err != nil {
		pointerManager.Close()
		return nil, rdpwire.Wrap(rdpwire.ErrHostUnavailable, "wlroots.CreatePointer", err)
	}
	keyboardManager, err := virtual_keyboard.NewVirtualKeyboardManager(ctx)
	if err != nil {
		pointer.Close()
		pointerManager.Close()
		return nil, rdpwire.Wrap(rdpwire.ErrHostUnavailable, "wlroots.NewVirtualKeyboardManager", err)
	}
	keyboard, err := keyboardManager.CreateKeyboard()
	if err != nil {
		keyboardManager.Close()
		pointer.Close()
		pointerManager.Close()
		return nil, rdpwire.Wrap(rdpwire.ErrHostUnavailable, "wlroots.CreateKeyboard", err)
	}

	return &wlrootsHandle{
		logger:          w.logger,
		pointerManager:  pointerManager,
		pointer:         pointer,
		keyboardManager: keyboardManager,
		keyboard:        keyboard,
		screenWidth:     w.screenWidth,
		screenHeight:    w.screenHeight,
		currentX:        float64(w.screenWidth) / 2,
		currentY:        float64(w.screenHeight) / 2,
		captureFD:       w.captureFD,
	}, nil
}

// wlrootsHandle implements Handle for strategy 3, directly adapting
// WaylandInput's relative-motion-tracking technique (wayland_input.go)
// since the Wayland virtual pointer protocol has no absolute-motion
// primitive. Has no clipboard of its own.
type wlrootsHandle struct {
	logger *slog.Logger
	mu     sync.Mutex

	pointerManager  *virtual_pointer.VirtualPointerManager
	pointer         *virtual_pointer.VirtualPointer
	keyboardManager *virtual_keyboard.VirtualKeyboardManager
	keyboard        *virtual_keyboard.VirtualKeyboard

	screenWidth, screenHeight int
	currentX, currentY        float64
	positionInitialized       bool

	captureFD CaptureFD
}

func (h *wlrootsHandle) PipeWireAccess(ctx context.Context) (PipeWireAccess, error) {
	return h.captureFD(ctx)
}

func (h *wlrootsHandle) Streams(ctx context.Context) ([]StreamDescriptor, error) {
	return []StreamDescriptor{{ID: "wlroots-screencopy", Width: h.screenWidth, Height: h.screenHeight}}, nil
}

func (h *wlrootsHandle) NotifyKeyboardKeycode(ctx context.Context, code uint32, pressed bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	state := virtual_keyboard.KeyStateReleased
	if pressed {
		state = virtual_keyboard.KeyStatePressed
	}
	return h.keyboard.Key(time.Now(), code, state)
}

func (h *wlrootsHandle) NotifyPointerMotionAbsolute(ctx context.Context, streamID string, x, y float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	targetX := x * float64(h.screenWidth)
	targetY := y * float64(h.screenHeight)
	dx := targetX - h.currentX
	dy := targetY - h.currentY
	if !h.positionInitialized {
		centerX := float64(h.screenWidth) / 2
		centerY := float64(h.screenHeight) / 2
		dx = targetX - centerX
		dy = targetY - centerY
		h.positionInitialized = true
	}
	h.currentX = targetX
	h.currentY = targetY
	if dx != 0 || dy != 0 {
		h.pointer.MoveRelative(dx, dy)
	}
	return nil
}

func (h *wlrootsHandle) NotifyPointerButton(ctx context.Context, button PointerButton, pressed bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var btn uint32
	switch button {
	case PointerLeft:
		btn = virtual_pointer.BTN_LEFT
	case PointerMiddle:
		btn = virtual_pointer.BTN_MIDDLE
	case PointerRight:
		btn = virtual_pointer.BTN_RIGHT
	default:
		return nil
	}
	state := virtual_pointer.BUTTON_STATE_RELEASED
	if pressed {
		state = virtual_pointer.BUTTON_STATE_PRESSED
	}
	h.pointer.Button(time.Now(), btn, state)
	h.pointer.Frame()
	return nil
}

func (h *wlrootsHandle) NotifyPointerAxis(ctx context.Context, dx, dy float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if dy != 0 {
		h.pointer.ScrollVertical(dy)
	}
	if dx != 0 {
		h.pointer.ScrollHorizontal(dx)
	}
	h.pointer.Frame()
	return nil
}

func (h *wlrootsHandle) Clipboard(ctx context.Context) (ClipboardEndpoint, error) {
	return nil, nil
}

func (h *wlrootsHandle) RestoreToken() (string, bool) { return "", false }

func (h *wlrootsHandle) Close(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var result error
	if h.keyboard != nil {
		if err := h.keyboard.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close keyboard: %w", err))
		}
	}
	if h.keyboardManager != nil {
		if err := h.keyboardManager.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close keyboard manager: %w", err))
		}
	}
	if h.pointer != nil {
		if err := h.pointer.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close pointer: %w", err))
		}
	}
	if h.pointerManager != nil {
		if err := h.pointerManager.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close pointer manager: %w", err))
		}
	}
	return result
}
