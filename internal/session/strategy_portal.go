package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"

	"github.com/lamco-admin/wayland-rdp-sub008/internal/rdpwire"
)

// TokenStore is the minimal persistence contract the portal strategy needs
// from the credential backend (§6 Persistence), kept narrow here so this
// package does not import internal/credential directly; any
// credential.Store satisfies this structurally.
type TokenStore interface {
	Load(ctx context.Context, compositorIdentity, profileID string) (string, bool, error)
	Save(ctx context.Context, compositorIdentity, profileID, token string) error
}

// PortalStrategy implements strategy 2 (Portal + restore token) and
// strategy 5 (Basic portal, no token) from §4.7, distinguished only by
// whether a restore token is requested/persisted.
type PortalStrategy struct {
	logger             *slog.Logger
	store              TokenStore
	compositorIdentity string
	useRestoreToken    bool
}

func NewPortalStrategy(logger *slog.Logger, store TokenStore, compositorIdentity string, useRestoreToken bool) *PortalStrategy {
	return &PortalStrategy{logger: logger, store: store, compositorIdentity: compositorIdentity, useRestoreToken: useRestoreToken}
}

func (p *PortalStrategy) Kind() Kind {
	if p.useRestoreToken {
		return StrategyPortalRestoreToken
	}
	return StrategyBasicPortal
}

// Available is always true for the portal strategies: the xdg-desktop-portal
// bus name is a freedesktop standard assumed present on any target host;
// actual reachability is only confirmed by Establish.
func (p *PortalStrategy) Available(ctx context.Context) bool { return true }

func (p *PortalStrategy) Establish(ctx context.Context, profileID string) (Handle, error) {
	conn, err := connectPortalBus(ctx, p.logger)
	if err != nil {
		return nil, err
	}

	var restoreToken string
	if p.useRestoreToken && p.store != nil {
		if tok, ok, lerr := p.store.Load(ctx, p.compositorIdentity, profileID); lerr == nil && ok {
			restoreToken = tok
		}
	}

	portalObj := conn.Object(portalBus, portalPath)

	sessionResults, err := portalRequest(ctx, conn, portalScreenCastIface, "CreateSession", func(token string) (dbus.ObjectPath, error) {
		var reqPath dbus.ObjectPath
		err := portalObj.Call(portalScreenCastIface+".CreateSession", 0, map[string]dbus.Variant{
			"handle_token":          dbus.MakeVariant(token),
			"session_handle_token":  dbus.MakeVariant(token),
		}).Store(&reqPath)
		return reqPath, err
	})
	if err != nil {
		conn.Close()
		return nil, rdpwire.Wrap(rdpwire.ErrPermissionDenied, "portal.CreateSession", err)
	}
	sessionHandleVariant, ok := sessionResults["session_handle"]
	if !ok {
		conn.Close()
		return nil, rdpwire.Wrap(rdpwire.ErrProtocol, "portal.CreateSession", fmt.Errorf("missing session_handle in response"))
	}
	sessionHandle, _ := sessionHandleVariant.Value().(string)

	persistMode := persistModeNone
	if p.useRestoreToken {
		persistMode = persistModeExplicitRevoke
	}
	selectOpts := map[string]dbus.Variant{
		"types":        dbus.MakeVariant(portalSourceMonitor),
		"cursor_mode":  dbus.MakeVariant(portalCursorHidden),
		"persist_mode": dbus.MakeVariant(persistMode),
	}
	if restoreToken != "" {
		selectOpts["restore_token"] = dbus.MakeVariant(restoreToken)
	}
	_, err = portalRequest(ctx, conn, portalScreenCastIface, "SelectSources", func(token string) (dbus.ObjectPath, error) {
		opts := map[string]dbus.Variant{"handle_token": dbus.MakeVariant(token)}
		for k, v := range selectOpts {
			opts[k] = v
		}
		var reqPath dbus.ObjectPath
		err := portalObj.Call(portalScreenCastIface+".SelectSources", 0, dbus.ObjectPath(sessionHandle), opts).Store(&reqPath)
		return reqPath, err
	})
	if err != nil {
		conn.Close()
		return nil, rdpwire.Wrap(rdpwire.ErrPermissionDenied, "portal.SelectSources", err)
	}

	startResults, err := portalRequest(ctx, conn, portalScreenCastIface, "Start", func(token string) (dbus.ObjectPath, error) {
		var reqPath dbus.ObjectPath
		err := portalObj.Call(portalScreenCastIface+".Start", 0, dbus.ObjectPath(sessionHandle), "", map[string]dbus.Variant{
			"handle_token": dbus.MakeVariant(token),
		}).Store(&reqPath)
		return reqPath, err
	})
	if err != nil {
		conn.Close()
		return nil, rdpwire.Wrap(rdpwire.ErrPermissionDenied, "portal.Start", err)
	}

	var nodeID uint32
	if streamsVariant, ok := startResults["streams"]; ok {
		if streams, ok := streamsVariant.Value().([][]interface{}); ok && len(streams) > 0 && len(streams[0]) > 0 {
			if nid, ok := streams[0][0].(uint32); ok {
				nodeID = nid
			}
		}
	}
	if nodeID == 0 {
		conn.Close()
		return nil, rdpwire.Wrap(rdpwire.ErrProtocol, "portal.Start", fmt.Errorf("no PipeWire stream returned"))
	}

	if p.useRestoreToken {
		if tokVariant, ok := startResults["restore_token"]; ok {
			if tok, ok := tokVariant.Value().(string); ok && tok != "" && p.store != nil {
				_ = p.store.Save(ctx, p.compositorIdentity, profileID, tok)
			}
		}
	}

	fd, ferr := openPipeWireRemote(conn, sessionHandle)
	if ferr != nil {
		p.logger.Warn("failed to open PipeWire remote, falling back to node id only", "err", ferr)
		fd = -1
	}

	return &portalHandle{
		logger:        p.logger,
		conn:          conn,
		sessionHandle: sessionHandle,
		nodeID:        nodeID,
		fd:            fd,
		restoreToken:  restoreToken,
	}, nil
}

// portalHandle implements Handle for a live portal session (§3 SessionHandle).
type portalHandle struct {
	logger        *slog.Logger
	conn          *dbus.Conn
	sessionHandle string
	nodeID        uint32
	fd            int
	restoreToken  string
}

func (h *portalHandle) PipeWireAccess(ctx context.Context) (PipeWireAccess, error) {
	if h.fd >= 0 {
		return PipeWireAccess{FD: h.fd, HasFD: true}, nil
	}
	return PipeWireAccess{NodeID: h.nodeID}, nil
}

func (h *portalHandle) Streams(ctx context.Context) ([]StreamDescriptor, error) {
	return []StreamDescriptor{{ID: fmt.Sprintf("node-%d", h.nodeID)}}, nil
}

func (h *portalHandle) notify(ctx context.Context, method string, args ...interface{}) error {
	rdObj := h.conn.Object(portalBus, portalPath)
	call := append([]interface{}{dbus.ObjectPath(h.sessionHandle)}, args...)
	return rdObj.Call(portalRemoteDesktopIface+"."+method, 0, call...).Err
}

func (h *portalHandle) NotifyKeyboardKeycode(ctx context.Context, code uint32, pressed bool) error {
	state := uint32(0)
	if pressed {
		state = 1
	}
	return h.notify(ctx, "NotifyKeyboardKeycode", int32(code), state)
}

func (h *portalHandle) NotifyPointerMotionAbsolute(ctx context.Context, streamID string, x, y float64) error {
	return h.notify(ctx, "NotifyPointerMotionAbsolute", h.nodeID, x, y)
}

func (h *portalHandle) NotifyPointerButton(ctx context.Context, button PointerButton, pressed bool) error {
	state := uint32(0)
	if pressed {
		state = 1
	}
	return h.notify(ctx, "NotifyPointerButton", int32(button), state)
}

func (h *portalHandle) NotifyPointerAxis(ctx context.Context, dx, dy float64) error {
	return h.notify(ctx, "NotifyPointerAxis", dx, dy)
}

func (h *portalHandle) Clipboard(ctx context.Context) (ClipboardEndpoint, error) {
	// The xdg-desktop-portal RemoteDesktop interface has no clipboard
	// method of its own; callers needing clipboard on this strategy must
	// use the GNOME-specific path when available (see clipboard package).
	return nil, nil
}

func (h *portalHandle) RestoreToken() (string, bool) {
	return h.restoreToken, h.restoreToken != ""
}

func (h *portalHandle) Close(ctx context.Context) error {
	if h.conn != nil {
		return h.conn.Close()
	}
	return nil
}
