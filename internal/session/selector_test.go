package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

type fakeStrategy struct {
	kind      Kind
	available bool
	handle    Handle
	err       error
}

func (f *fakeStrategy) Kind() Kind                 { return f.kind }
func (f *fakeStrategy) Available(ctx context.Context) bool { return f.available }
func (f *fakeStrategy) Establish(ctx context.Context, profileID string) (Handle, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.handle, nil
}

type fakeHandle struct{}

func (fakeHandle) PipeWireAccess(ctx context.Context) (PipeWireAccess, error) { return PipeWireAccess{}, nil }
func (fakeHandle) Streams(ctx context.Context) ([]StreamDescriptor, error)    { return nil, nil }
func (fakeHandle) NotifyKeyboardKeycode(ctx context.Context, code uint32, pressed bool) error {
	return nil
}
func (fakeHandle) NotifyPointerMotionAbsolute(ctx context.Context, streamID string, x, y float64) error {
	return nil
}
func (fakeHandle) NotifyPointerButton(ctx context.Context, button PointerButton, pressed bool) error {
	return nil
}
func (fakeHandle) NotifyPointerAxis(ctx context.Context, dx, dy float64) error { return nil }
func (fakeHandle) Clipboard(ctx context.Context) (ClipboardEndpoint, error)    { return nil, nil }
func (fakeHandle) RestoreToken() (string, bool)                               { return "", false }
func (fakeHandle) Close(ctx context.Context) error                            { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSelectorPicksFirstAvailableInPreferenceOrder(t *testing.T) {
	sel := NewSelector(testLogger(), false,
		&fakeStrategy{kind: StrategyDirectCompositor, available: false},
		&fakeStrategy{kind: StrategyPortalRestoreToken, available: true, handle: fakeHandle{}},
		&fakeStrategy{kind: StrategyWlrootsNative, available: true, handle: fakeHandle{}},
	)
	_, diag, err := sel.Select(context.Background(), "profile-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diag.Chosen != StrategyPortalRestoreToken {
		t.Fatalf("expected portal_restore_token chosen, got %v", diag.Chosen)
	}
}

func TestSelectorSkipsUnmediatedStrategiesWhenSandboxed(t *testing.T) {
	sel := NewSelector(testLogger(), true,
		&fakeStrategy{kind: StrategyDirectCompositor, available: true, handle: fakeHandle{}},
		&fakeStrategy{kind: StrategyWlrootsNative, available: true, handle: fakeHandle{}},
		&fakeStrategy{kind: StrategyBasicPortal, available: true, handle: fakeHandle{}},
	)
	_, diag, err := sel.Select(context.Background(), "profile-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diag.Chosen != StrategyBasicPortal {
		t.Fatalf("expected basic_portal chosen in sandboxed mode, got %v", diag.Chosen)
	}
	for _, k := range diag.Attempted {
		if k == StrategyDirectCompositor || k == StrategyWlrootsNative {
			t.Fatalf("sandboxed selection must not attempt unmediated strategy %v", k)
		}
	}
}

func TestSelectorFallsThroughOnEstablishFailure(t *testing.T) {
	sel := NewSelector(testLogger(), false,
		&fakeStrategy{kind: StrategyDirectCompositor, available: true, err: errors.New("denied")},
		&fakeStrategy{kind: StrategyPortalRestoreToken, available: true, handle: fakeHandle{}},
	)
	_, diag, err := sel.Select(context.Background(), "profile-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diag.Chosen != StrategyPortalRestoreToken {
		t.Fatalf("expected fallthrough to portal_restore_token, got %v", diag.Chosen)
	}
	if len(diag.Attempted) != 2 {
		t.Fatalf("expected 2 attempted strategies, got %d", len(diag.Attempted))
	}
}

func TestSelectorReturnsErrorWhenNoneCompatible(t *testing.T) {
	sel := NewSelector(testLogger(), false,
		&fakeStrategy{kind: StrategyDirectCompositor, available: false},
		&fakeStrategy{kind: StrategyBasicPortal, available: false},
	)
	_, diag, err := sel.Select(context.Background(), "profile-1")
	if err == nil {
		t.Fatal("expected error when no strategy is compatible")
	}
	if diag.Chosen != 0 {
		t.Fatalf("expected zero-value Chosen on failure, got %v", diag.Chosen)
	}
}
