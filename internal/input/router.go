// Package input implements the Input Router (§4.9): translates client
// scancodes to evdev keycodes, coalesces high-frequency pointer events into
// 10ms windows, and tracks button/modifier state for disconnect-synthesized
// releases and focus-loss resync.
package input

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lamco-admin/wayland-rdp-sub008/internal/rdpwire"
	"github.com/lamco-admin/wayland-rdp-sub008/internal/session"
)

// batchWindow is the input coalescing window (§4.9: "batches events in 10ms
// windows"); pointer motion and axis deltas accumulate for one window, while
// key and button transitions are applied immediately to avoid perceptible
// input lag, matching wayland_input.go's per-gesture Frame() discipline.
const batchWindow = 10 * time.Millisecond

// Router drives one session's input injection from an rdpwire.InputChannel
// onto a session.Handle.
type Router struct {
	logger  *slog.Logger
	handle  session.Handle
	channel rdpwire.InputChannel

	mu            sync.Mutex
	pressedKeys   map[uint32]bool
	pressedButton map[session.PointerButton]bool

	pendingMotion   *rdpwire.PointerMotionEvent
	pendingAxisDX   float64
	pendingAxisDY   float64
}

// New builds a Router for one session. handle is the SessionHandle the
// selected strategy produced; channel is the external RDP library's
// input boundary for the same session.
func New(logger *slog.Logger, handle session.Handle, channel rdpwire.InputChannel) *Router {
	return &Router{
		logger:        logger,
		handle:        handle,
		channel:       channel,
		pressedKeys:   make(map[uint32]bool),
		pressedButton: make(map[session.PointerButton]bool),
	}
}

// Run consumes events and focus-loss notifications until ctx is cancelled.
// Modifier state is resynchronized (all keys released) both on entry and on
// every FocusLost notification, per §4.9.
func (r *Router) Run(ctx context.Context) {
	r.resyncModifiers(ctx)

	ticker := time.NewTicker(batchWindow)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.releaseAll(context.Background())
			return
		case ev, ok := <-r.channel.Events():
			if !ok {
				r.releaseAll(context.Background())
				return
			}
			r.dispatch(ctx, ev)
		case <-r.channel.FocusLost():
			r.resyncModifiers(ctx)
		case <-ticker.C:
			r.flush(ctx)
		}
	}
}

func (r *Router) dispatch(ctx context.Context, ev any) {
	switch e := ev.(type) {
	case rdpwire.KeyEvent:
		r.handleKey(ctx, e)
	case rdpwire.PointerMotionEvent:
		r.mu.Lock()
		cp := e
		r.pendingMotion = &cp
		r.mu.Unlock()
	case rdpwire.PointerButtonEvent:
		r.handleButton(ctx, e)
	case rdpwire.PointerAxisEvent:
		r.mu.Lock()
		r.pendingAxisDX += e.DeltaX
		r.pendingAxisDY += e.DeltaY
		r.mu.Unlock()
	default:
		r.logger.Debug("unrecognized input event", "type", e)
	}
}

func (r *Router) handleKey(ctx context.Context, e rdpwire.KeyEvent) {
	evdev := ScancodeToEvdev(e.Code)
	if evdev == 0 {
		r.logger.Debug("unmapped scancode", "code", e.Code)
		return
	}

	r.mu.Lock()
	if e.Pressed {
		r.pressedKeys[uint32(evdev)] = true
	} else {
		delete(r.pressedKeys, uint32(evdev))
	}
	r.mu.Unlock()

	if err := r.handle.NotifyKeyboardKeycode(ctx, uint32(evdev), e.Pressed); err != nil {
		r.logger.Warn("keyboard injection failed", "evdev", evdev, "err", err)
	}
}

func (r *Router) handleButton(ctx context.Context, e rdpwire.PointerButtonEvent) {
	btn := toSessionButton(e.Button)

	r.mu.Lock()
	if e.Pressed {
		r.pressedButton[btn] = true
	} else {
		delete(r.pressedButton, btn)
	}
	r.mu.Unlock()

	// Button transitions flush immediately (not coalesced into the 10ms
	// window) so clicks do not feel laggy; any pending motion is flushed
	// first so the button lands at the correct position.
	r.flush(ctx)

	if err := r.handle.NotifyPointerButton(ctx, btn, e.Pressed); err != nil {
		r.logger.Warn("pointer button injection failed", "button", btn, "err", err)
	}
}

func toSessionButton(b rdpwire.PointerButton) session.PointerButton {
	switch b {
	case rdpwire.PointerButtonMiddle:
		return session.PointerMiddle
	case rdpwire.PointerButtonRight:
		return session.PointerRight
	default:
		return session.PointerLeft
	}
}

// flush dispatches any coalesced motion/axis deltas accumulated this window.
func (r *Router) flush(ctx context.Context) {
	r.mu.Lock()
	motion := r.pendingMotion
	r.pendingMotion = nil
	dx, dy := r.pendingAxisDX, r.pendingAxisDY
	r.pendingAxisDX, r.pendingAxisDY = 0, 0
	r.mu.Unlock()

	if motion != nil {
		if err := r.handle.NotifyPointerMotionAbsolute(ctx, motion.StreamID, motion.NormX, motion.NormY); err != nil {
			r.logger.Warn("pointer motion injection failed", "stream", motion.StreamID, "err", err)
		}
	}
	if dx != 0 || dy != 0 {
		if err := r.handle.NotifyPointerAxis(ctx, dx, dy); err != nil {
			r.logger.Warn("pointer axis injection failed", "err", err)
		}
	}
}

// resyncModifiers releases every tracked key, used on session start and on
// FocusLost per §4.9.
func (r *Router) resyncModifiers(ctx context.Context) {
	r.mu.Lock()
	keys := make([]uint32, 0, len(r.pressedKeys))
	for k := range r.pressedKeys {
		keys = append(keys, k)
	}
	r.pressedKeys = make(map[uint32]bool)
	r.mu.Unlock()

	for _, k := range keys {
		if err := r.handle.NotifyKeyboardKeycode(ctx, k, false); err != nil {
			r.logger.Warn("modifier resync release failed", "evdev", k, "err", err)
		}
	}
}

// releaseAll synthesizes release events for every key and button still held
// down, used when the input channel closes or the router's context is
// cancelled (§4.9: "Maintains mouse-button state to synthesize release
// events on disconnect").
func (r *Router) releaseAll(ctx context.Context) {
	r.mu.Lock()
	keys := make([]uint32, 0, len(r.pressedKeys))
	for k := range r.pressedKeys {
		keys = append(keys, k)
	}
	buttons := make([]session.PointerButton, 0, len(r.pressedButton))
	for b := range r.pressedButton {
		buttons = append(buttons, b)
	}
	r.pressedKeys = make(map[uint32]bool)
	r.pressedButton = make(map[session.PointerButton]bool)
	r.mu.Unlock()

	for _, k := range keys {
		if err := r.handle.NotifyKeyboardKeycode(ctx, k, false); err != nil {
			r.logger.Debug("disconnect key release failed", "evdev", k, "err", err)
		}
	}
	for _, b := range buttons {
		if err := r.handle.NotifyPointerButton(ctx, b, false); err != nil {
			r.logger.Debug("disconnect button release failed", "button", b, "err", err)
		}
	}
}
