package clipboard

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/lamco-admin/wayland-rdp-sub008/internal/rdpwire"
)

// clipboardTimeout bounds wl-paste/wl-copy invocations, matching the
// teacher's constant of the same name and purpose in clipboard.go
// (preventing unresponsive processes from piling up).
const clipboardTimeout = 2 * time.Second

// WaylandTransport implements HostTransport via wl-paste/wl-copy, for
// wlroots compositors with no RemoteDesktop-style clipboard D-Bus
// interface, lifted from clipboard.go's getClipboardWayland/setClipboardWayland.
type WaylandTransport struct {
	waylandDisplay string
	xdgRuntimeDir  string
}

func NewWaylandTransport(waylandDisplay, xdgRuntimeDir string) *WaylandTransport {
	return &WaylandTransport{waylandDisplay: waylandDisplay, xdgRuntimeDir: xdgRuntimeDir}
}

func (w *WaylandTransport) env() []string {
	return append(os.Environ(),
		"WAYLAND_DISPLAY="+w.waylandDisplay,
		"XDG_RUNTIME_DIR="+w.xdgRuntimeDir,
	)
}

func (w *WaylandTransport) Formats(ctx context.Context) ([]string, error) {
	cctx, cancel := context.WithTimeout(ctx, clipboardTimeout)
	defer cancel()
	cmd := exec.CommandContext(cctx, "wl-paste", "--list-types")
	cmd.Env = w.env()
	out, err := cmd.Output()
	if err != nil {
		return nil, rdpwire.Wrap(rdpwire.ErrHostUnavailable, "waylandTransport.Formats", err)
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	formats := make([]string, 0, len(lines))
	for _, l := range lines {
		if l != "" {
			formats = append(formats, l)
		}
	}
	return formats, nil
}

func (w *WaylandTransport) Read(ctx context.Context, mimeType string) ([]byte, error) {
	cctx, cancel := context.WithTimeout(ctx, clipboardTimeout)
	defer cancel()
	cmd := exec.CommandContext(cctx, "wl-paste", "-t", mimeType, "--no-newline")
	cmd.Env = w.env()
	out, err := cmd.Output()
	if err != nil {
		return nil, rdpwire.Wrap(rdpwire.ErrHostUnavailable, "waylandTransport.Read", err)
	}
	return out, nil
}

func (w *WaylandTransport) Write(ctx context.Context, mimeType string, content []byte) error {
	cctx, cancel := context.WithTimeout(ctx, clipboardTimeout)
	defer cancel()
	cmd := exec.CommandContext(cctx, "wl-copy", "-t", mimeType)
	cmd.Env = w.env()
	cmd.Stdin = bytes.NewReader(content)
	if err := cmd.Run(); err != nil {
		return rdpwire.Wrap(rdpwire.ErrHostUnavailable, "waylandTransport.Write", err)
	}
	return nil
}
