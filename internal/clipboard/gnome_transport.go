package clipboard

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/lamco-admin/wayland-rdp-sub008/internal/rdpwire"
)

const (
	remoteDesktopBus          = "org.gnome.Mutter.RemoteDesktop"
	remoteDesktopSessionIface = "org.gnome.Mutter.RemoteDesktop.Session"
)

var gnomeTextMimeTypes = []string{"text/plain;charset=utf-8", "text/plain", "UTF8_STRING", "STRING"}

// GNOMETransport implements HostTransport over Mutter's RemoteDesktop
// clipboard methods, lifted directly from clipboard.go's
// getClipboardGNOME/setClipboardGNOME/handleSelectionTransfer: EnableClipboard
// once, SelectionRead/SelectionWrite exchange a UnixFD, SetSelection
// announces content, and an async SelectionTransfer signal triggers the
// actual write.
type GNOMETransport struct {
	logger        *slog.Logger
	conn          *dbus.Conn
	rdSessionPath dbus.ObjectPath

	enableOnce sync.Once

	mu             sync.Mutex
	pendingContent []byte
	pendingMime    string

	signalOnce sync.Once
}

func NewGNOMETransport(logger *slog.Logger, conn *dbus.Conn, rdSessionPath dbus.ObjectPath) *GNOMETransport {
	return &GNOMETransport{logger: logger, conn: conn, rdSessionPath: rdSessionPath}
}

func (g *GNOMETransport) session() dbus.BusObject {
	return g.conn.Object(remoteDesktopBus, g.rdSessionPath)
}

func (g *GNOMETransport) ensureEnabled() {
	g.enableOnce.Do(func() {
		if err := g.session().Call(remoteDesktopSessionIface+".EnableClipboard", 0, map[string]dbus.Variant{}).Err; err != nil {
			g.logger.Debug("EnableClipboard call", "err", err)
		}
	})
}

func (g *GNOMETransport) Formats(ctx context.Context) ([]string, error) {
	g.ensureEnabled()
	// Mutter's clipboard interface has no "list current formats" call; the
	// teacher's own getClipboardGNOME probes each candidate mime type in
	// turn via SelectionRead instead, so Formats reports the same fixed
	// candidate list and callers discover which one actually has content
	// via Read returning a non-empty result.
	formats := make([]string, 0, len(gnomeTextMimeTypes)+1)
	formats = append(formats, gnomeTextMimeTypes...)
	formats = append(formats, "image/png")
	return formats, nil
}

func (g *GNOMETransport) Read(ctx context.Context, mimeType string) ([]byte, error) {
	g.ensureEnabled()
	call := g.session().Call(remoteDesktopSessionIface+".SelectionRead", 0, mimeType)
	if call.Err != nil {
		return nil, rdpwire.Wrap(rdpwire.ErrHostUnavailable, "gnomeTransport.SelectionRead", call.Err)
	}
	if len(call.Body) == 0 {
		return nil, rdpwire.Wrap(rdpwire.ErrProtocol, "gnomeTransport.SelectionRead", fmt.Errorf("no fd returned"))
	}
	fd, ok := call.Body[0].(dbus.UnixFD)
	if !ok {
		return nil, rdpwire.Wrap(rdpwire.ErrProtocol, "gnomeTransport.SelectionRead", fmt.Errorf("invalid fd type"))
	}
	file := os.NewFile(uintptr(fd), "clipboard-read")
	if file == nil {
		return nil, rdpwire.Wrap(rdpwire.ErrProtocol, "gnomeTransport.SelectionRead", fmt.Errorf("failed to open fd"))
	}
	defer file.Close()
	return io.ReadAll(file)
}

func (g *GNOMETransport) Write(ctx context.Context, mimeType string, content []byte) error {
	g.ensureEnabled()

	g.mu.Lock()
	g.pendingContent = content
	g.pendingMime = mimeType
	g.mu.Unlock()

	mimeTypes := []string{mimeType}
	for _, m := range gnomeTextMimeTypes {
		if m == mimeType {
			mimeTypes = gnomeTextMimeTypes
			break
		}
	}

	if err := g.session().Call(remoteDesktopSessionIface+".SetSelection", 0, map[string]dbus.Variant{
		"mime-types": dbus.MakeVariant(mimeTypes),
	}).Err; err != nil {
		return rdpwire.Wrap(rdpwire.ErrHostUnavailable, "gnomeTransport.SetSelection", err)
	}

	g.startSignalHandler()
	return nil
}

func (g *GNOMETransport) startSignalHandler() {
	g.signalOnce.Do(func() {
		if err := g.conn.AddMatchSignal(
			dbus.WithMatchObjectPath(g.rdSessionPath),
			dbus.WithMatchInterface(remoteDesktopSessionIface),
			dbus.WithMatchMember("SelectionTransfer"),
		); err != nil {
			g.logger.Error("failed to subscribe to SelectionTransfer signal", "err", err)
			return
		}
		signalChan := make(chan *dbus.Signal, 10)
		g.conn.Signal(signalChan)
		go func() {
			for sig := range signalChan {
				if sig.Name == remoteDesktopSessionIface+".SelectionTransfer" {
					g.handleSelectionTransfer(sig)
				}
			}
		}()
	})
}

func (g *GNOMETransport) handleSelectionTransfer(sig *dbus.Signal) {
	if len(sig.Body) < 2 {
		return
	}
	serial, ok := sig.Body[1].(uint32)
	if !ok {
		return
	}

	g.mu.Lock()
	content := g.pendingContent
	g.mu.Unlock()

	rdSession := g.session()
	if len(content) == 0 {
		rdSession.Call(remoteDesktopSessionIface+".SelectionWriteDone", 0, serial, false)
		return
	}

	call := rdSession.Call(remoteDesktopSessionIface+".SelectionWrite", 0, serial)
	if call.Err != nil || len(call.Body) == 0 {
		g.logger.Error("SelectionWrite failed", "err", call.Err)
		rdSession.Call(remoteDesktopSessionIface+".SelectionWriteDone", 0, serial, false)
		return
	}
	fd, ok := call.Body[0].(dbus.UnixFD)
	if !ok {
		rdSession.Call(remoteDesktopSessionIface+".SelectionWriteDone", 0, serial, false)
		return
	}
	file := os.NewFile(uintptr(fd), "clipboard-write")
	if file == nil {
		rdSession.Call(remoteDesktopSessionIface+".SelectionWriteDone", 0, serial, false)
		return
	}
	_, writeErr := file.Write(content)
	file.Close()
	rdSession.Call(remoteDesktopSessionIface+".SelectionWriteDone", 0, serial, writeErr == nil)
}
