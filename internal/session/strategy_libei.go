package session

import (
	"context"
	"errors"
	"log/slog"

	"github.com/lamco-admin/wayland-rdp-sub008/internal/rdpwire"
)

// LibeiEISStrategy implements strategy 4 (§4.7) on top of PortalStrategy:
// it establishes the same portal session, with capture riding the portal's
// ScreenCast session, and then asks connectToEIS for an EIS socket. No
// example repo in the pack demonstrates libei/EIS directly; connectToEIS
// makes no portal call and always fails, so input on this strategy goes
// through the portal session's own NotifyX methods.
type LibeiEISStrategy struct {
	logger  *slog.Logger
	portal  *PortalStrategy
	enabled bool
}

// NewLibeiEISStrategy wraps a portal strategy instance (built with
// useRestoreToken=false, matching strategy 4's lack of restore-token use
// in §4.7) and gates availability on the enabled flag, which
// cmd/rdp-server sets from the RDP_SERVER_LIBEI_ENABLED environment
// variable.
func NewLibeiEISStrategy(logger *slog.Logger, portal *PortalStrategy, enabled bool) *LibeiEISStrategy {
	return &LibeiEISStrategy{logger: logger, portal: portal, enabled: enabled}
}

func (l *LibeiEISStrategy) Kind() Kind { return StrategyLibeiEIS }

func (l *LibeiEISStrategy) Available(ctx context.Context) bool {
	return l.enabled && l.portal != nil
}

func (l *LibeiEISStrategy) Establish(ctx context.Context, profileID string) (Handle, error) {
	if !l.enabled {
		return nil, rdpwire.Wrap(rdpwire.ErrConfiguration, "libei.Establish", errLibeiDisabled)
	}

	inner, err := l.portal.Establish(ctx, profileID)
	if err != nil {
		return nil, err
	}
	ph, ok := inner.(*portalHandle)
	if !ok {
		inner.Close(ctx)
		return nil, rdpwire.Wrap(rdpwire.ErrProtocol, "libei.Establish", errUnexpectedHandleType)
	}

	eisFD, eerr := connectToEIS(ctx, ph.conn, ph.sessionHandle)
	if eerr != nil {
		l.logger.Warn("ConnectToEIS failed, input injection on this strategy is unavailable", "err", eerr)
	}

	return &libeiHandle{portalHandle: ph, eisFD: eisFD}, nil
}

var (
	errLibeiDisabled        = errors.New("libei/EIS backend not enabled")
	errUnexpectedHandleType = errors.New("portal strategy returned unexpected handle type")
	errLibeiNotBundled      = errors.New("libei client binding not present in this build")
)

// connectToEIS makes no D-Bus call. This repo has no bundled libei client
// library (none appears anywhere in the example pack), so it does not call
// the portal RemoteDesktop interface's ConnectToEIS method; it always
// returns -1 and a configuration error.
func connectToEIS(ctx context.Context, conn handleConn, sessionHandle string) (int, error) {
	return -1, rdpwire.Wrap(rdpwire.ErrConfiguration, "connectToEIS", errLibeiNotBundled)
}

// handleConn is the minimal surface connectToEIS needs; kept as an
// interface so it can be backed by *dbus.Conn without this file importing
// godbus directly in the stub path.
type handleConn interface{}

// libeiHandle delegates every Handle method to the underlying portal
// handle, so input injection uses the portal's own NotifyX methods on the
// RemoteDesktop session that stays active underneath. eisFD is stored but
// never read.
type libeiHandle struct {
	*portalHandle
	eisFD int
}
