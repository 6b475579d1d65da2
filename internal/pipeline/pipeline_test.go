package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/lamco-admin/wayland-rdp-sub008/internal/capture"
	"github.com/lamco-admin/wayland-rdp-sub008/internal/encoder"
	"github.com/lamco-admin/wayland-rdp-sub008/internal/rdpwire"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeDriver stands in for *encoder.Driver: each pushed view synthesizes an
// immediate NAL on the output channel, matching the real driver's
// push/pull-lockstep contract (Output ordering == push ordering).
type fakeDriver struct {
	mu       sync.Mutex
	out      chan encoder.EncodedNAL
	pushed   int
	failNext bool
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{out: make(chan encoder.EncodedNAL, 4)}
}

func (f *fakeDriver) PushView(v *encoder.View) error {
	f.mu.Lock()
	if f.failNext {
		f.failNext = false
		f.mu.Unlock()
		return fmt.Errorf("injected push failure")
	}
	f.pushed++
	n := f.pushed
	f.mu.Unlock()

	f.out <- encoder.EncodedNAL{Data: []byte{0, 0, 0, 1, byte(n)}, IsIDR: n == 1, Timestamp: time.Now()}
	return nil
}

func (f *fakeDriver) Output() <-chan encoder.EncodedNAL { return f.out }

func testFrame(w, h int) capture.Frame {
	return capture.Frame{
		Data:       make([]byte, w*h*4),
		Width:      w,
		Height:     h,
		Stride:     w * 4,
		CapturedAt: time.Now(),
	}
}

func TestPipelineDispatchesFrame(t *testing.T) {
	drv := newFakeDriver()
	dispatched := make(chan rdpwire.Avc444Frame, 4)
	p := New(testLogger(), DefaultConfig(), drv, func(ctx context.Context, f rdpwire.Avc444Frame) error {
		dispatched <- f
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	p.Submit(testFrame(16, 16), true)

	select {
	case f := <-dispatched:
		if len(f.Main) == 0 {
			t.Fatal("expected non-empty main NAL")
		}
		if f.CompositeFrameNumber != 1 {
			t.Fatalf("expected first composite frame number 1, got %d", f.CompositeFrameNumber)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatch")
	}
}

func TestPipelineDropsStaleFramesAtDispatch(t *testing.T) {
	drv := newFakeDriver()
	dispatched := make(chan rdpwire.Avc444Frame, 4)
	cfg := DefaultConfig()
	cfg.MaxFrameAgeMS = 1
	p := New(testLogger(), cfg, drv, func(ctx context.Context, f rdpwire.Avc444Frame) error {
		dispatched <- f
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	frame := testFrame(16, 16)
	frame.CapturedAt = time.Now().Add(-time.Hour)
	p.Submit(frame, true)

	select {
	case <-dispatched:
		t.Fatal("expected stale frame to be dropped, not dispatched")
	case <-time.After(300 * time.Millisecond):
	}

	if p.Stats().DroppedAge == 0 {
		t.Fatal("expected DroppedAge counter to increment")
	}
}

func TestPipelineEscalatesAfterThreeEncoderFaults(t *testing.T) {
	drv := newFakeDriver()
	drv.failNext = true // fails first push; PushView keeps failing via repeated toggling below

	p := New(testLogger(), DefaultConfig(), drv, func(ctx context.Context, f rdpwire.Avc444Frame) error {
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- p.Run(ctx) }()

	for i := 0; i < 3; i++ {
		drv.mu.Lock()
		drv.failNext = true
		drv.mu.Unlock()
		p.Submit(testFrame(16, 16), true)
		time.Sleep(20 * time.Millisecond)
	}

	select {
	case err := <-runErr:
		if err == nil {
			t.Fatal("expected pipeline to escalate a fatal error after 3 consecutive encoder faults")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for escalation")
	}
}

func TestSubmitAppliesBackpressure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HighWaterMark = 1
	cfg.LowWaterMark = 0
	p := New(testLogger(), cfg, newFakeDriver(), func(ctx context.Context, f rdpwire.Avc444Frame) error { return nil })

	// Do not start Run; inspect ingest queue behavior directly.
	p.Submit(testFrame(4, 4), false)
	if p.Stats().DroppedIngest != 0 {
		t.Fatal("first submit below high-water mark should not drop")
	}

	p.Submit(testFrame(4, 4), false)
	if p.Stats().DroppedIngest != 1 {
		t.Fatalf("expected second submit to be dropped once at high-water mark, got stats %+v", p.Stats())
	}
}

func TestRequestKeyframeBypassesBackpressure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HighWaterMark = 1
	cfg.LowWaterMark = 0
	p := New(testLogger(), cfg, newFakeDriver(), func(ctx context.Context, f rdpwire.Avc444Frame) error { return nil })

	p.Submit(testFrame(4, 4), false) // fills queue to high-water mark
	p.RequestKeyframe()
	p.Submit(testFrame(4, 4), false) // forced by pending keyframe flag, must not drop

	if p.Stats().DroppedIngest != 0 {
		t.Fatalf("expected forced keyframe submit to bypass backpressure, got stats %+v", p.Stats())
	}
}
