package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/godbus/dbus/v5"

	"github.com/lamco-admin/wayland-rdp-sub008/internal/rdpwire"
)

const (
	mutterRemoteDesktopBus          = "org.gnome.Mutter.RemoteDesktop"
	mutterRemoteDesktopPath         = dbus.ObjectPath("/org/gnome/Mutter/RemoteDesktop")
	mutterRemoteDesktopIface        = "org.gnome.Mutter.RemoteDesktop"
	mutterRemoteDesktopSessionIface = "org.gnome.Mutter.RemoteDesktop.Session"

	mutterScreenCastBus          = "org.gnome.Mutter.ScreenCast"
	mutterScreenCastPathConst    = dbus.ObjectPath("/org/gnome/Mutter/ScreenCast")
	mutterScreenCastIface        = "org.gnome.Mutter.ScreenCast"
	mutterScreenCastSessionIface = "org.gnome.Mutter.ScreenCast.Session"
	mutterScreenCastStreamIface  = "org.gnome.Mutter.ScreenCast.Stream"
)

// DirectCompositorStrategy implements strategy 1 (§4.7): GNOME Mutter's
// screencast + remote-desktop D-Bus interfaces directly, no portal dialogs,
// no clipboard of its own.
type DirectCompositorStrategy struct {
	logger      *slog.Logger
	isGNOME     bool
	monitorName string
}

func NewDirectCompositorStrategy(logger *slog.Logger, isGNOME bool, monitorName string) *DirectCompositorStrategy {
	if monitorName == "" {
		monitorName = "Meta-0"
	}
	return &DirectCompositorStrategy{logger: logger, isGNOME: isGNOME, monitorName: monitorName}
}

func (d *DirectCompositorStrategy) Kind() Kind { return StrategyDirectCompositor }

func (d *DirectCompositorStrategy) Available(ctx context.Context) bool { return d.isGNOME }

func (d *DirectCompositorStrategy) Establish(ctx context.Context, profileID string) (Handle, error) {
	var conn *dbus.Conn
	err := retry.Do(
		func() error {
			c, err := dbus.ConnectSessionBus()
			if err != nil {
				return err
			}
			obj := c.Object(mutterRemoteDesktopBus, mutterRemoteDesktopPath)
			if err := obj.Call("org.freedesktop.DBus.Introspectable.Introspect", 0).Err; err != nil {
				c.Close()
				return err
			}
			conn = c
			return nil
		},
		retry.Context(ctx), retry.Attempts(60), retry.Delay(time.Second), retry.MaxDelay(5*time.Second),
	)
	if err != nil {
		return nil, rdpwire.Wrap(rdpwire.ErrHostUnavailable, "directCompositor.connect", err)
	}

	rdObj := conn.Object(mutterRemoteDesktopBus, mutterRemoteDesktopPath)
	var rdSessionPath dbus.ObjectPath
	if err := rdObj.Call(mutterRemoteDesktopIface+".CreateSession", 0).Store(&rdSessionPath); err != nil {
		conn.Close()
		return nil, rdpwire.Wrap(rdpwire.ErrHostUnavailable, "directCompositor.CreateSession", err)
	}

	sessionID := string(rdSessionPath)
	if idx := strings.LastIndex(sessionID, "/"); idx >= 0 {
		sessionID = sessionID[idx+1:]
	}

	scObj := conn.Object(mutterScreenCastBus, mutterScreenCastPathConst)
	var scSessionPath dbus.ObjectPath
	if err := scObj.Call(mutterScreenCastIface+".CreateSession", 0, map[string]dbus.Variant{
		"remote-desktop-session-id": dbus.MakeVariant(sessionID),
	}).Store(&scSessionPath); err != nil {
		conn.Close()
		return nil, rdpwire.Wrap(rdpwire.ErrHostUnavailable, "directCompositor.ScreenCast.CreateSession", err)
	}

	scSession := conn.Object(mutterScreenCastBus, scSessionPath)
	var streamPath dbus.ObjectPath
	if err := scSession.Call(mutterScreenCastSessionIface+".RecordMonitor", 0, d.monitorName, map[string]dbus.Variant{
		"cursor-mode": dbus.MakeVariant(uint32(1)),
	}).Store(&streamPath); err != nil {
		conn.Close()
		return nil, rdpwire.Wrap(rdpwire.ErrHostUnavailable, "directCompositor.RecordMonitor", err)
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(streamPath),
		dbus.WithMatchInterface(mutterScreenCastStreamIface),
		dbus.WithMatchMember("PipeWireStreamAdded"),
	); err != nil {
		conn.Close()
		return nil, rdpwire.Wrap(rdpwire.ErrProtocol, "directCompositor.AddMatchSignal", err)
	}
	signalChan := make(chan *dbus.Signal, 10)
	conn.Signal(signalChan)

	rdSession := conn.Object(mutterRemoteDesktopBus, rdSessionPath)
	if err := rdSession.Call(mutterRemoteDesktopSessionIface+".Start", 0).Err; err != nil {
		conn.Close()
		return nil, rdpwire.Wrap(rdpwire.ErrHostUnavailable, "directCompositor.Start", err)
	}

	var nodeID uint32
	timeout := time.After(10 * time.Second)
waitLoop:
	for {
		select {
		case <-ctx.Done():
			conn.Close()
			return nil, ctx.Err()
		case sig := <-signalChan:
			if sig.Name == mutterScreenCastStreamIface+".PipeWireStreamAdded" && len(sig.Body) > 0 {
				if nid, ok := sig.Body[0].(uint32); ok {
					nodeID = nid
					break waitLoop
				}
			}
		case <-timeout:
			conn.Close()
			return nil, rdpwire.Wrap(rdpwire.ErrTransient, "directCompositor.waitStream", fmt.Errorf("timed out waiting for PipeWireStreamAdded"))
		}
	}

	return &directHandle{
		logger:        d.logger,
		conn:          conn,
		rdSessionPath: rdSessionPath,
		nodeID:        nodeID,
	}, nil
}

// directHandle implements Handle for strategy 1; Clipboard() always
// returns nil since Mutter's direct D-Bus interfaces provide none (§4.7).
type directHandle struct {
	logger        *slog.Logger
	conn          *dbus.Conn
	rdSessionPath dbus.ObjectPath
	nodeID        uint32
}

func (h *directHandle) PipeWireAccess(ctx context.Context) (PipeWireAccess, error) {
	return PipeWireAccess{NodeID: h.nodeID}, nil
}

func (h *directHandle) Streams(ctx context.Context) ([]StreamDescriptor, error) {
	return []StreamDescriptor{{ID: fmt.Sprintf("node-%d", h.nodeID)}}, nil
}

func (h *directHandle) rdSession() dbus.BusObject {
	return h.conn.Object(mutterRemoteDesktopBus, h.rdSessionPath)
}

func (h *directHandle) NotifyKeyboardKeycode(ctx context.Context, code uint32, pressed bool) error {
	state := uint32(0)
	if pressed {
		state = 1
	}
	return h.rdSession().Call(mutterRemoteDesktopSessionIface+".NotifyKeyboardKeycode", 0, int32(code), state).Err
}

func (h *directHandle) NotifyPointerMotionAbsolute(ctx context.Context, streamID string, x, y float64) error {
	return h.rdSession().Call(mutterRemoteDesktopSessionIface+".NotifyPointerMotionAbsolute", 0, h.nodeID, x, y).Err
}

func (h *directHandle) NotifyPointerButton(ctx context.Context, button PointerButton, pressed bool) error {
	state := uint32(0)
	if pressed {
		state = 1
	}
	return h.rdSession().Call(mutterRemoteDesktopSessionIface+".NotifyPointerButton", 0, int32(button), state).Err
}

func (h *directHandle) NotifyPointerAxis(ctx context.Context, dx, dy float64) error {
	return h.rdSession().Call(mutterRemoteDesktopSessionIface+".NotifyPointerAxis", 0, dx, dy, uint32(0)).Err
}

func (h *directHandle) Clipboard(ctx context.Context) (ClipboardEndpoint, error) {
	return nil, nil
}

func (h *directHandle) RestoreToken() (string, bool) { return "", false }

func (h *directHandle) Close(ctx context.Context) error {
	if h.rdSessionPath != "" {
		h.rdSession().Call(mutterRemoteDesktopSessionIface+".Stop", 0)
	}
	if h.conn != nil {
		return h.conn.Close()
	}
	return nil
}
