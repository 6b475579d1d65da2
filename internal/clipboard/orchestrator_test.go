package clipboard

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/lamco-admin/wayland-rdp-sub008/internal/rdpwire"
)

type fakeTransport struct {
	mu      sync.Mutex
	formats []string
	content map[string][]byte
	written map[string][]byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{content: map[string][]byte{}, written: map[string][]byte{}}
}

func (f *fakeTransport) Formats(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.formats...), nil
}

func (f *fakeTransport) Read(ctx context.Context, mimeType string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.content[mimeType], nil
}

func (f *fakeTransport) Write(ctx context.Context, mimeType string, content []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written[mimeType] = content
	return nil
}

func (f *fakeTransport) setHostContent(mime string, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.formats = []string{mime}
	f.content[mime] = content
}

type fakeChannel struct {
	mu               sync.Mutex
	announced        [][]rdpwire.ClipboardFormat
	inbound          chan rdpwire.ClipboardInboundEvent
	requestFormatFn  func(formatID uint32) ([]byte, error)
	respondedSerial  uint64
	respondedData    []byte
	fileChunks       map[uint64][]byte
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{inbound: make(chan rdpwire.ClipboardInboundEvent, 10)}
}

func (f *fakeChannel) AnnounceFormats(ctx context.Context, formats []rdpwire.ClipboardFormat) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.announced = append(f.announced, formats)
	return nil
}

func (f *fakeChannel) RequestFormat(ctx context.Context, formatID uint32) ([]byte, error) {
	if f.requestFormatFn != nil {
		return f.requestFormatFn(formatID)
	}
	return nil, nil
}

func (f *fakeChannel) Inbound() <-chan rdpwire.ClipboardInboundEvent { return f.inbound }

func (f *fakeChannel) RespondFormat(ctx context.Context, serial uint64, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.respondedSerial = serial
	f.respondedData = data
	return nil
}

func (f *fakeChannel) RequestFileContents(ctx context.Context, listID uint32, fileIndex int, offset, length uint64) ([]byte, error) {
	key := uint64(listID)<<32 | uint64(fileIndex)
	data := f.fileChunks[key]
	if offset >= uint64(len(data)) {
		return nil, nil
	}
	end := offset + length
	if end > uint64(len(data)) {
		end = uint64(len(data))
	}
	return data[offset:end], nil
}

func (f *fakeChannel) Close() error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPollHostAnnouncesNewContent(t *testing.T) {
	transport := newFakeTransport()
	channel := newFakeChannel()
	o := NewOrchestrator(testLogger(), transport, channel, 0, nil)

	transport.setHostContent("text/plain;charset=utf-8", []byte("hello"))
	o.pollOnce(context.Background())

	if len(channel.announced) != 1 {
		t.Fatalf("expected 1 announce, got %d", len(channel.announced))
	}
	if channel.announced[0][0].Name != "text/plain;charset=utf-8" {
		t.Fatalf("unexpected format announced: %+v", channel.announced[0])
	}

	// Same content again must not re-announce.
	o.pollOnce(context.Background())
	if len(channel.announced) != 1 {
		t.Fatalf("expected no re-announce of identical content, got %d announces", len(channel.announced))
	}
}

func TestPullRemoteToHostSuppressesEcho(t *testing.T) {
	transport := newFakeTransport()
	channel := newFakeChannel()
	o := NewOrchestrator(testLogger(), transport, channel, 0, nil)

	channel.requestFormatFn = func(formatID uint32) ([]byte, error) {
		return []byte("remote content"), nil
	}
	o.pullRemoteToHost(context.Background(), []rdpwire.ClipboardFormat{{ID: 1, Name: "text/plain"}})

	if string(transport.written["text/plain"]) != "remote content" {
		t.Fatalf("expected host write, got %q", transport.written["text/plain"])
	}

	// Host polling must not re-announce the content we just echoed onto it.
	transport.setHostContent("text/plain", []byte("remote content"))
	o.pollOnce(context.Background())
	if len(channel.announced) != 0 {
		t.Fatalf("expected echo suppression, got %d announces", len(channel.announced))
	}
}

func TestRespondToRemoteRequestUsesCachedFormat(t *testing.T) {
	transport := newFakeTransport()
	transport.content["text/plain"] = []byte("host data")
	channel := newFakeChannel()
	o := NewOrchestrator(testLogger(), transport, channel, 0, nil)

	o.mu.Lock()
	o.remoteFormats = []rdpwire.ClipboardFormat{{ID: 7, Name: "text/plain"}}
	o.mu.Unlock()

	o.respondToRemoteRequest(context.Background(), rdpwire.ClipboardInboundEvent{Serial: 42, FormatID: 7})

	if channel.respondedSerial != 42 || string(channel.respondedData) != "host data" {
		t.Fatalf("unexpected response: serial=%d data=%q", channel.respondedSerial, channel.respondedData)
	}
}

func TestFetchFileAssemblesChunks(t *testing.T) {
	channel := newFakeChannel()
	channel.fileChunks = map[uint64][]byte{
		(uint64(1) << 32) | 0: []byte("0123456789"),
	}
	o := NewOrchestrator(testLogger(), newFakeTransport(), channel, 0, nil)

	data, err := o.FetchFile(context.Background(), 1, 0, 10)
	if err != nil {
		t.Fatalf("FetchFile: %v", err)
	}
	if string(data) != "0123456789" {
		t.Fatalf("expected full assembled content, got %q", data)
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"report.pdf":          "report.pdf",
		"../../etc/passwd":    "passwd",
		"..":                  "unnamed",
		".hidden":             "hidden",
		"a/b/c.txt":           "c.txt",
	}
	for input, want := range cases {
		if got := SanitizeFilename(input); got != want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestSizeCapBlocksOversizedHostContent(t *testing.T) {
	transport := newFakeTransport()
	channel := newFakeChannel()
	o := NewOrchestrator(testLogger(), transport, channel, 4, nil)

	transport.setHostContent("text/plain", []byte("way too long"))
	o.pollOnce(context.Background())
	if len(channel.announced) != 0 {
		t.Fatalf("expected size cap to block announce, got %d", len(channel.announced))
	}
}

func TestAllowedMIMEFiltersFormats(t *testing.T) {
	transport := newFakeTransport()
	channel := newFakeChannel()
	o := NewOrchestrator(testLogger(), transport, channel, 0, []string{"text/plain"})

	transport.setHostContent("image/png", []byte("binary"))
	o.pollOnce(context.Background())
	if len(channel.announced) != 0 {
		t.Fatalf("expected disallowed mime to be filtered, got %d announces", len(channel.announced))
	}
}

func TestRunProcessesInboundUntilCancelled(t *testing.T) {
	transport := newFakeTransport()
	transport.content["text/plain"] = []byte("x")
	channel := newFakeChannel()
	channel.requestFormatFn = func(formatID uint32) ([]byte, error) { return []byte("remote"), nil }
	o := NewOrchestrator(testLogger(), transport, channel, 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		o.Run(ctx)
		close(done)
	}()

	channel.inbound <- rdpwire.ClipboardInboundEvent{Formats: []rdpwire.ClipboardFormat{{ID: 1, Name: "text/plain"}}}

	deadline := time.After(2 * time.Second)
	for {
		transport.mu.Lock()
		_, ok := transport.written["text/plain"]
		transport.mu.Unlock()
		if ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for Run to process inbound event")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-done
}
