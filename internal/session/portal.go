package session

import (
	"context"
	"fmt"
	"log/slog"
	"syscall"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/godbus/dbus/v5"

	"github.com/lamco-admin/wayland-rdp-sub008/internal/rdpwire"
)

const (
	portalBus           = "org.freedesktop.portal.Desktop"
	portalPath          = dbus.ObjectPath("/org/freedesktop/portal/desktop")
	portalRequestIface  = "org.freedesktop.portal.Request"
	portalScreenCastIface = "org.freedesktop.portal.ScreenCast"
	portalRemoteDesktopIface = "org.freedesktop.portal.RemoteDesktop"

	portalSourceMonitor uint32 = 1
	portalCursorHidden  uint32 = 1

	persistModeNone       uint32 = 0
	persistModeExplicitRevoke uint32 = 2
)

// connectPortalBus connects to the session bus and waits for the portal
// service, generalizing connectDBusPortal's handwritten 60-attempt retry
// loop in session_portal.go into a bounded-exponential-backoff retry via
// retry-go.
func connectPortalBus(ctx context.Context, logger *slog.Logger) (*dbus.Conn, error) {
	var conn *dbus.Conn
	err := retry.Do(
		func() error {
			c, err := dbus.ConnectSessionBus()
			if err != nil {
				return err
			}
			obj := c.Object(portalBus, portalPath)
			if err := obj.Call("org.freedesktop.DBus.Introspectable.Introspect", 0).Err; err != nil {
				c.Close()
				return err
			}
			conn = c
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(60),
		retry.Delay(time.Second),
		retry.MaxDelay(5*time.Second),
		retry.OnRetry(func(n uint, err error) {
			logger.Debug("portal bus not ready", "attempt", n+1, "err", err)
		}),
	)
	if err != nil {
		return nil, rdpwire.Wrap(rdpwire.ErrHostUnavailable, "connectPortalBus", err)
	}
	return conn, nil
}

// senderRequestPath mirrors the teacher's per-call request-path derivation:
// the unique D-Bus sender name mangled into a portal request object path.
func senderRequestPath(conn *dbus.Conn, requestToken string) dbus.ObjectPath {
	senderName := conn.Names()[0]
	senderPath := ""
	for _, c := range senderName[1:] {
		if c == '.' {
			senderPath += "_"
		} else {
			senderPath += string(c)
		}
	}
	return dbus.ObjectPath(fmt.Sprintf("/org/freedesktop/portal/desktop/request/%s/%s", senderPath, requestToken))
}

// portalRequest performs one request/Response-signal round trip against a
// portal interface method, generalizing the three near-identical
// subscribe-call-wait blocks duplicated across createPortalSession,
// selectPortalSources, and startPortalSession in the teacher's
// session_portal.go into a single reusable helper.
func portalRequest(ctx context.Context, conn *dbus.Conn, iface, method string, call func(requestToken string) (dbus.ObjectPath, error)) (map[string]dbus.Variant, error) {
	requestToken := fmt.Sprintf("rdp_%d", time.Now().UnixNano())
	requestPath := senderRequestPath(conn, requestToken)

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(requestPath),
		dbus.WithMatchInterface(portalRequestIface),
		dbus.WithMatchMember("Response"),
	); err != nil {
		return nil, fmt.Errorf("%s: add signal match: %w", method, err)
	}

	signalChan := make(chan *dbus.Signal, 10)
	conn.Signal(signalChan)
	defer conn.RemoveSignal(signalChan)

	if _, err := call(requestToken); err != nil {
		return nil, fmt.Errorf("%s call: %w", method, err)
	}

	timeout := time.After(30 * time.Second)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timeout:
			return nil, fmt.Errorf("%s: timed out waiting for portal response", method)
		case sig := <-signalChan:
			if sig.Name != portalRequestIface+".Response" || len(sig.Body) < 2 {
				continue
			}
			code, ok := sig.Body[0].(uint32)
			if !ok || code != 0 {
				return nil, fmt.Errorf("%s: portal denied request (code %v)", method, sig.Body[0])
			}
			results, _ := sig.Body[1].(map[string]dbus.Variant)
			return results, nil
		}
	}
}

// openPipeWireRemote retrieves the PipeWire file descriptor for a portal
// ScreenCast session, duplicating it so it survives D-Bus message garbage
// collection, exactly as openPipeWireRemote in session_portal.go does.
func openPipeWireRemote(conn *dbus.Conn, sessionHandle string) (int, error) {
	portalObj := conn.Object(portalBus, portalPath)
	var fd dbus.UnixFD
	err := portalObj.Call(
		portalScreenCastIface+".OpenPipeWireRemote", 0,
		dbus.ObjectPath(sessionHandle), map[string]dbus.Variant{},
	).Store(&fd)
	if err != nil {
		return -1, fmt.Errorf("OpenPipeWireRemote: %w", err)
	}
	dup, err := syscall.Dup(int(fd))
	if err != nil {
		return int(fd), nil
	}
	return dup, nil
}
