package clipboard

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/lamco-admin/wayland-rdp-sub008/internal/rdpwire"
)

// fileChunkSize bounds a single RequestFileContents call, matching the
// clipboard file-contents request/response pattern described in §4.8.
const fileChunkSize = 256 * 1024

// Orchestrator bridges HostTransport and an rdpwire.ClipboardChannel in
// both directions with echo-loop suppression. Its state is the last
// remote format list and two content hashes; it keeps no record of
// outstanding requests (RequestFormat blocks for its reply, and a remote
// pull is answered at once through RespondFormat with the event's serial).
type Orchestrator struct {
	logger      *slog.Logger
	transport   HostTransport
	channel     rdpwire.ClipboardChannel
	sizeCap     int
	allowedMIME map[string]bool

	mu             sync.Mutex
	lastHostHash   uint64
	lastEchoHash   uint64 // content last written to the host from the remote; suppresses the round-trip loop
	remoteFormats  []rdpwire.ClipboardFormat
	nextFormatID   uint32
}

// NewOrchestrator builds an Orchestrator. allowedMIME restricts which
// formats are ever announced or accepted in either direction (§6
// Configuration: "allowed clipboard MIME types"); an empty slice allows
// everything.
func NewOrchestrator(logger *slog.Logger, transport HostTransport, channel rdpwire.ClipboardChannel, sizeCapBytes int, allowedMIME []string) *Orchestrator {
	allowed := make(map[string]bool, len(allowedMIME))
	for _, m := range allowedMIME {
		allowed[m] = true
	}
	return &Orchestrator{
		logger:      logger.With("component", "clipboard_orchestrator"),
		transport:   transport,
		channel:     channel,
		sizeCap:     sizeCapBytes,
		allowedMIME: allowed,
	}
}

func (o *Orchestrator) mimeAllowed(mime string) bool {
	if len(o.allowedMIME) == 0 {
		return true
	}
	return o.allowedMIME[mime]
}

// Run drives the remote-to-host direction from Inbound events until ctx
// is cancelled. Callers should also start PollHost for the host-to-remote
// direction.
func (o *Orchestrator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-o.channel.Inbound():
			if !ok {
				return
			}
			o.handleInbound(ctx, ev)
		}
	}
}

func (o *Orchestrator) handleInbound(ctx context.Context, ev rdpwire.ClipboardInboundEvent) {
	switch {
	case ev.Files != nil:
		o.logger.Debug("remote announced file list", "count", len(ev.Files))
		// The orchestrator only materializes file contents on demand
		// (§4.8): nothing further happens until a host-side paste
		// triggers FetchFile for a specific index.
	case ev.Formats != nil:
		o.mu.Lock()
		o.remoteFormats = ev.Formats
		o.mu.Unlock()
		o.pullRemoteToHost(ctx, ev.Formats)
	case ev.Data == nil && ev.Formats == nil && ev.Files == nil:
		// Remote is requesting our (host) data for ev.FormatID, keyed by
		// ev.Serial, per ClipboardChannel.RespondFormat's contract.
		o.respondToRemoteRequest(ctx, ev)
	default:
		// A bare Data payload with no matching request context; nothing
		// in this design issues unsolicited data pushes, so this is
		// logged and dropped rather than treated as an error (§4.8:
		// "Clipboard errors are never fatal to the session").
		o.logger.Debug("unexpected inbound clipboard data with no pending context")
	}
}

// pullRemoteToHost fetches the first allowed format the remote announced
// and writes it to the host clipboard, suppressing the echo loop this
// write would otherwise cause when PollHost next observes the host
// clipboard (§4.8, §8 scenario 6).
func (o *Orchestrator) pullRemoteToHost(ctx context.Context, formats []rdpwire.ClipboardFormat) {
	for _, f := range formats {
		if !o.mimeAllowed(f.Name) {
			continue
		}
		data, err := o.channel.RequestFormat(ctx, f.ID)
		if err != nil {
			o.logger.Warn("RequestFormat failed, clearing pending request", "format", f.Name, "err", err)
			continue
		}
		if o.sizeCap > 0 && len(data) > o.sizeCap {
			o.logger.Warn("remote clipboard content exceeds size cap, dropping",
				"format", f.Name, "size", humanize.Bytes(uint64(len(data))), "cap", humanize.Bytes(uint64(o.sizeCap)))
			continue
		}
		if err := o.transport.Write(ctx, f.Name, data); err != nil {
			o.logger.Warn("failed to write remote clipboard content to host", "err", err)
			continue
		}
		o.mu.Lock()
		o.lastEchoHash = hashContent(data)
		o.mu.Unlock()
		return
	}
}

// respondToRemoteRequest answers a remote-initiated pull of our (host)
// clipboard content for one format.
func (o *Orchestrator) respondToRemoteRequest(ctx context.Context, ev rdpwire.ClipboardInboundEvent) {
	o.mu.Lock()
	var mime string
	for _, f := range o.remoteFormats {
		if f.ID == ev.FormatID {
			mime = f.Name
			break
		}
	}
	o.mu.Unlock()
	if mime == "" {
		o.logger.Warn("remote requested unknown format id", "format_id", ev.FormatID)
		o.channel.RespondFormat(ctx, ev.Serial, nil)
		return
	}

	data, err := o.transport.Read(ctx, mime)
	if err != nil {
		o.logger.Warn("host read failed answering remote format request", "mime", mime, "err", err)
		o.channel.RespondFormat(ctx, ev.Serial, nil)
		return
	}
	if err := o.channel.RespondFormat(ctx, ev.Serial, data); err != nil {
		o.logger.Warn("RespondFormat failed", "err", err)
	}
}

// PollHost periodically checks the host clipboard for new content and
// announces it to the remote peer, suppressing the echo loop from
// pullRemoteToHost's own writes. The host transport has no native
// change-notification primitive (GNOME's SelectionTransfer signal only
// fires after we've already called SetSelection ourselves, and wl-paste
// has none at all), so polling is the only option available to either
// backend; clipboardTimeout-scale intervals are what the teacher's own
// wl-paste calls already tolerate.
func (o *Orchestrator) PollHost(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.pollOnce(ctx)
		}
	}
}

func (o *Orchestrator) pollOnce(ctx context.Context) {
	formats, err := o.transport.Formats(ctx)
	if err != nil || len(formats) == 0 {
		return
	}
	var mime string
	for _, f := range formats {
		if o.mimeAllowed(f) {
			mime = f
			break
		}
	}
	if mime == "" {
		return
	}
	data, err := o.transport.Read(ctx, mime)
	if err != nil || len(data) == 0 {
		return
	}
	if o.sizeCap > 0 && len(data) > o.sizeCap {
		o.logger.Debug("host clipboard content exceeds size cap, not announcing", "size", len(data))
		return
	}

	h := hashContent(data)
	o.mu.Lock()
	if h == o.lastHostHash || h == o.lastEchoHash {
		o.mu.Unlock()
		return
	}
	o.lastHostHash = h
	o.nextFormatID++
	formatID := o.nextFormatID
	o.mu.Unlock()

	if err := o.channel.AnnounceFormats(ctx, []rdpwire.ClipboardFormat{{ID: formatID, Name: mime}}); err != nil {
		o.logger.Warn("AnnounceFormats failed", "err", err)
	}
}

// FetchFile retrieves one file's full contents from a remote file-list
// transfer in fileChunkSize pieces (§4.8 file-contents request/response
// pattern), used when a host-side paste targets a specific file by index.
func (o *Orchestrator) FetchFile(ctx context.Context, listID uint32, fileIndex int, totalSize uint64) ([]byte, error) {
	out := make([]byte, 0, totalSize)
	var offset uint64
	for offset < totalSize {
		length := uint64(fileChunkSize)
		if remaining := totalSize - offset; remaining < length {
			length = remaining
		}
		chunk, err := o.channel.RequestFileContents(ctx, listID, fileIndex, offset, length)
		if err != nil {
			return nil, rdpwire.Wrap(rdpwire.ErrTransient, "clipboard.FetchFile", err)
		}
		out = append(out, chunk...)
		offset += uint64(len(chunk))
		if len(chunk) == 0 {
			break
		}
	}
	return out, nil
}

// SanitizeFilename strips path separators and leading dots so a
// file-list transfer's advertised name can be safely joined under a
// destination directory without escaping it (§4.8).
func SanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = strings.TrimLeft(name, ".")
	if name == "" || name == "." || name == ".." {
		return "unnamed"
	}
	return name
}
