// Package rdpwiretest provides an in-memory fake of rdpwire.GraphicsChannel
// for tests that need a graphics channel without a real RDP client or TLS
// handshake. It has no fakes of the other rdpwire boundary interfaces.
package rdpwiretest

import (
	"context"
	"sync"

	"github.com/lamco-admin/wayland-rdp-sub008/internal/rdpwire"
)

// GraphicsChannel is a fake rdpwire.GraphicsChannel that records every frame
// sent to it and lets tests trigger keyframe requests.
type GraphicsChannel struct {
	mu      sync.Mutex
	frames  []rdpwire.Avc444Frame
	kfCh    chan struct{}
	closed  bool
}

func NewGraphicsChannel() *GraphicsChannel {
	return &GraphicsChannel{kfCh: make(chan struct{}, 8)}
}

func (g *GraphicsChannel) SendFrame(_ context.Context, frame rdpwire.Avc444Frame) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return rdpwire.Wrap(rdpwire.ErrProtocol, "SendFrame", context.Canceled)
	}
	g.frames = append(g.frames, frame)
	return nil
}

func (g *GraphicsChannel) KeyframeRequests() <-chan struct{} { return g.kfCh }

func (g *GraphicsChannel) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	return nil
}

// Frames returns a snapshot of every frame sent so far.
func (g *GraphicsChannel) Frames() []rdpwire.Avc444Frame {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]rdpwire.Avc444Frame, len(g.frames))
	copy(out, g.frames)
	return out
}

// RequestKeyframe simulates a client-initiated refresh request.
func (g *GraphicsChannel) RequestKeyframe() {
	select {
	case g.kfCh <- struct{}{}:
	default:
	}
}

var _ rdpwire.GraphicsChannel = (*GraphicsChannel)(nil)
