package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/go-gst/go-gst/gst"
	"github.com/go-gst/go-gst/gst/app"

	"github.com/lamco-admin/wayland-rdp-sub008/internal/rdpwire"
	"github.com/lamco-admin/wayland-rdp-sub008/internal/session"
)

var gstInitOnce sync.Once

// initGStreamer lazily initializes the GStreamer library, exactly as
// gst_pipeline.go's InitGStreamer did, kept package-private since this
// core is the only caller (no exported CheckGstElement probe here — the
// Service Registry, not the capture source, is responsible for
// capability probing).
func initGStreamer() {
	gstInitOnce.Do(func() { gst.Init(nil) })
}

// AccessFunc resolves the current PipeWire access descriptor, re-queried on
// every (re)connect attempt since a reconnect may hand back a fresh fd or
// node id from the underlying SessionHandle.
type AccessFunc func(ctx context.Context) (session.PipeWireAccess, error)

// reconnectBackoff bounds the exponential backoff used when the compositor
// disconnects (§4.1: "the source retries with exponential backoff").
var (
	reconnectAttempts   uint = 8
	reconnectBaseDelay       = 200 * time.Millisecond
	reconnectMaxDelay        = 10 * time.Second
)

// Source is the Capture Source (§4.1): a GStreamer pipewiresrc pipeline
// delivering raw BGRA frames to a Callback, grounded on gst_pipeline.go's
// GstPipeline but producing decoded BGRA (via videoconvert) instead of
// pre-encoded H.264, since encoding is this core's own AVC444 Encoder
// stage (§4.5), not the capture source's concern.
type Source struct {
	logger       *slog.Logger
	accessFn     AccessFunc
	monitorIndex int
	streamID     string

	onFrame Callback

	mu       sync.Mutex
	pipeline *gst.Pipeline
	appsink  *app.Sink

	running  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
}

func New(logger *slog.Logger, monitorIndex int, streamID string, accessFn AccessFunc) *Source {
	return &Source{
		logger:       logger,
		accessFn:     accessFn,
		monitorIndex: monitorIndex,
		streamID:     streamID,
		stopCh:       make(chan struct{}),
	}
}

// Start connects the pipeline and begins delivering frames to onFrame.
// Returns the stream id the caller should associate with subsequent
// frames and force-keyframe requests.
func (s *Source) Start(ctx context.Context, onFrame Callback) (string, error) {
	s.onFrame = onFrame
	if err := s.connect(ctx); err != nil {
		return "", err
	}
	go s.watchBus(ctx)
	return s.streamID, nil
}

func (s *Source) connect(ctx context.Context) error {
	initGStreamer()

	access, err := s.accessFn(ctx)
	if err != nil {
		return rdpwire.Wrap(rdpwire.ErrHostUnavailable, "capture.connect", err)
	}

	pipelineStr := buildPipelineString(access)
	pipeline, err := gst.NewPipelineFromString(pipelineStr)
	if err != nil {
		return rdpwire.Wrap(rdpwire.ErrConfiguration, "capture.connect", err)
	}

	elem, err := pipeline.GetElementByName("videosink")
	if err != nil {
		pipeline.SetState(gst.StateNull)
		return rdpwire.Wrap(rdpwire.ErrConfiguration, "capture.connect", err)
	}
	appsink := app.SinkFromElement(elem)
	if appsink == nil {
		pipeline.SetState(gst.StateNull)
		return rdpwire.Wrap(rdpwire.ErrConfiguration, "capture.connect", fmt.Errorf("videosink element is not an appsink"))
	}

	appsink.SetProperty("emit-signals", true)
	appsink.SetProperty("max-buffers", uint(2))
	appsink.SetProperty("drop", true)
	appsink.SetProperty("sync", false)
	appsink.SetCallbacks(&app.SinkCallbacks{NewSampleFunc: s.onNewSample})

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return rdpwire.Wrap(rdpwire.ErrHostUnavailable, "capture.connect", err)
	}

	s.mu.Lock()
	s.pipeline = pipeline
	s.appsink = appsink
	s.mu.Unlock()

	s.running.Store(true)
	s.logger.Info("capture source connected", "monitor", s.monitorIndex, "stream", s.streamID)
	return nil
}

// buildPipelineString selects fd= or path= addressing depending on which
// form of PipeWire access the session strategy produced (§4.1: "Accepts
// either a raw PipeWire file-descriptor (Portal/wlr) or a node identifier
// (direct compositor API)").
func buildPipelineString(access session.PipeWireAccess) string {
	const tail = " ! videoconvert ! video/x-raw,format=BGRA ! appsink name=videosink"
	if access.HasFD {
		return fmt.Sprintf("pipewiresrc fd=%d%s", access.FD, tail)
	}
	return fmt.Sprintf("pipewiresrc path=%d%s", access.NodeID, tail)
}

func (s *Source) onNewSample(sink *app.Sink) gst.FlowReturn {
	if !s.running.Load() {
		return gst.FlowEOS
	}

	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowOK
	}
	mapInfo := buffer.Map(gst.MapRead)
	if mapInfo == nil {
		return gst.FlowOK
	}
	defer buffer.Unmap()

	data := mapInfo.Bytes()
	if len(data) == 0 {
		// Renegotiation artifact; dropped silently per §3.
		return gst.FlowOK
	}

	width, height, stride := negotiatedFormat(sample)
	if stride == 0 {
		stride = width * 4
	}
	frame := Frame{
		Data:         append([]byte(nil), data...),
		Width:        width,
		Height:       height,
		Stride:       stride,
		MonitorIndex: s.monitorIndex,
		CapturedAt:   time.Now(),
	}
	if !frame.sizeValid() {
		s.logger.Warn("capture frame size mismatch, rejecting",
			"expected", frame.Height*frame.Stride, "got", len(frame.Data))
		return gst.FlowOK
	}

	s.onFrame(frame)
	return gst.FlowOK
}

// negotiatedFormat reads width/height/stride from the sample's caps, the
// Stride invariant named in §4.1 ("Stride is taken from the negotiated
// format").
func negotiatedFormat(sample *gst.Sample) (width, height, stride int) {
	caps := sample.GetCaps()
	if caps == nil || caps.GetSize() == 0 {
		return 0, 0, 0
	}
	st := caps.GetStructureAt(0)
	if st == nil {
		return 0, 0, 0
	}
	var wi, hi int
	if v, err := st.GetValue("width"); err == nil {
		if n, ok := v.(int); ok {
			wi = n
		}
	}
	if v, err := st.GetValue("height"); err == nil {
		if n, ok := v.(int); ok {
			hi = n
		}
	}
	return wi, hi, wi * 4
}

// ForceKeyframe requests an IDR-equivalent refresh from the pipeline,
// implemented as a GstForceKeyUnit upstream event, the standard GStreamer
// idiom for requesting a keyframe from an element that encodes inline
// (relevant when a hardware-encode element sits inside the capture
// pipeline rather than this core's own AVC444 Encoder stage).
func (s *Source) ForceKeyframe() error {
	s.mu.Lock()
	pipeline := s.pipeline
	s.mu.Unlock()
	if pipeline == nil {
		return nil
	}
	structure := gst.NewStructure("GstForceKeyUnit")
	event := gst.NewEventCustom(gst.EventTypeCustomUpstream, structure)
	if event == nil {
		return rdpwire.Wrap(rdpwire.ErrEncoderFault, "capture.ForceKeyframe", fmt.Errorf("failed to build force-key-unit event"))
	}
	pipeline.SendEvent(event)
	return nil
}

// watchBus monitors the pipeline bus and reconnects with exponential
// backoff on error or EOS (§4.1). When the retries are exhausted the
// failure is logged and watchBus returns; nothing is reported to Start's
// caller, and the Source stays stopped with IsRunning false.
func (s *Source) watchBus(ctx context.Context) {
	for {
		s.mu.Lock()
		pipeline := s.pipeline
		s.mu.Unlock()
		bus := pipeline.GetPipelineBus()
		if bus == nil {
			return
		}

		disconnected := false
		for !disconnected {
			select {
			case <-ctx.Done():
				s.Stop()
				return
			case <-s.stopCh:
				return
			default:
			}

			msg := bus.TimedPop(gst.ClockTime(100 * time.Millisecond))
			if msg == nil {
				continue
			}
			switch msg.Type() {
			case gst.MessageEOS:
				s.logger.Warn("capture pipeline EOS, reconnecting", "stream", s.streamID)
				disconnected = true
			case gst.MessageError:
				if gerr := msg.ParseError(); gerr != nil {
					s.logger.Warn("capture pipeline error, reconnecting", "stream", s.streamID, "err", gerr.Error())
				}
				disconnected = true
			case gst.MessageWarning:
				if gwarn := msg.ParseWarning(); gwarn != nil {
					s.logger.Debug("capture pipeline warning", "err", gwarn.Error())
				}
			}
		}

		s.running.Store(false)
		s.teardownPipeline()

		if err := s.reconnectWithBackoff(ctx); err != nil {
			s.logger.Error("capture source reconnect exhausted, terminal failure", "stream", s.streamID, "err", err)
			return
		}
	}
}

func (s *Source) reconnectWithBackoff(ctx context.Context) error {
	return retry.Do(
		func() error { return s.connect(ctx) },
		retry.Context(ctx),
		retry.Attempts(reconnectAttempts),
		retry.Delay(reconnectBaseDelay),
		retry.MaxDelay(reconnectMaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
}

func (s *Source) teardownPipeline() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pipeline != nil {
		s.pipeline.SetState(gst.StateNull)
	}
}

// Stop tears the pipeline down permanently.
func (s *Source) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.running.Store(false)
		s.teardownPipeline()
	})
}

// IsRunning reports whether the pipeline is currently streaming.
func (s *Source) IsRunning() bool {
	return s.running.Load()
}
