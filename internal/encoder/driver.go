package encoder

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gst/go-gst/gst"
	"github.com/go-gst/go-gst/gst/app"
)

var gstInitOnce sync.Once

// initGStreamer initializes the GStreamer library. Safe to call repeatedly.
func initGStreamer() {
	gstInitOnce.Do(func() {
		gst.Init(nil)
	})
}

// EncodedNAL is one H.264 access unit pulled from the encoder (§3
// EncoderOutput). It does not record which view it carries; see Output.
type EncodedNAL struct {
	Data      []byte
	IsIDR     bool
	PTS       uint64
	Timestamp time.Time
}

// ViewKind distinguishes the main and auxiliary sub-streams pushed through
// the single shared encoder (§4.5.3).
type ViewKind int

const (
	ViewMain ViewKind = iota
	ViewAux
)

// Driver drives exactly one GStreamer encoder element shared by both the
// main and auxiliary views, per the single-encoder DPB discipline of
// §4.5.3: there is one pipeline, one appsrc, one encoder instance. Which
// view was pushed most recently determines what the encoder's reference
// picture buffer holds; this type does not and must not attempt to
// second-guess that by tracking DPB state itself.
//
// Grounded on gst_pipeline.go's appsink wrapper (pull side) and
// mic_stream.go's appsrc wrapper (push side), combined into a single
// push-in/pull-out element instead of the teacher's source-only or
// sink-only pipelines.
type Driver struct {
	cfg Config

	width, height int

	pipeline *gst.Pipeline
	appsrc   *app.Source
	appsink  *app.Sink

	outCh   chan EncodedNAL
	running atomic.Bool
	stopOnce sync.Once

	mu           sync.Mutex
	consecutiveFaults int
}

// NewDriver builds and starts the single-encoder pipeline for frames of the
// given dimensions. The pipeline string follows the teacher's
// appsrc/appsink construction pattern; the encoder element's properties are
// set to satisfy §4.5.3: scene-change detection disabled, no
// force-aux-idr-on-return rule exists anywhere in this type.
func NewDriver(ctx context.Context, cfg Config, width, height int) (*Driver, error) {
	initGStreamer()

	pipelineStr := fmt.Sprintf(
		"appsrc name=encsrc format=time is-live=true do-timestamp=true "+
			"caps=video/x-raw,format=I420,width=%d,height=%d,framerate=0/1 ! "+
			"%s name=enc bitrate=%d ! h264parse config-interval=-1 ! appsink name=encsink",
		width, height, cfg.EncoderElement, cfg.BitrateKbps,
	)

	pipeline, err := gst.NewPipelineFromString(pipelineStr)
	if err != nil {
		return nil, fmt.Errorf("encoder: failed to parse pipeline: %w", err)
	}

	srcElem, err := pipeline.GetElementByName("encsrc")
	if err != nil {
		pipeline.SetState(gst.StateNull)
		return nil, fmt.Errorf("encoder: missing encsrc element: %w", err)
	}
	appsrc := app.SrcFromElement(srcElem)

	encElem, err := pipeline.GetElementByName("enc")
	if err != nil {
		pipeline.SetState(gst.StateNull)
		return nil, fmt.Errorf("encoder: missing enc element: %w", err)
	}
	// Disable scene-change detection: a main/aux view switch always looks
	// like a scene change and would force spurious IDRs (§4.5.3).
	encElem.SetProperty("scene-change-detection", false)
	encElem.SetProperty("qp-min", uint(cfg.QPMin))
	encElem.SetProperty("qp-max", uint(cfg.QPMax))

	sinkElem, err := pipeline.GetElementByName("encsink")
	if err != nil {
		pipeline.SetState(gst.StateNull)
		return nil, fmt.Errorf("encoder: missing encsink element: %w", err)
	}
	appsink := app.SinkFromElement(sinkElem)
	appsink.SetProperty("emit-signals", true)
	appsink.SetProperty("max-buffers", uint(2))
	appsink.SetProperty("drop", true)
	appsink.SetProperty("sync", false)

	d := &Driver{
		cfg:     cfg,
		width:   width,
		height:  height,
		pipeline: pipeline,
		appsrc:  appsrc,
		appsink: appsink,
		outCh:   make(chan EncodedNAL, 8),
	}

	appsink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: d.onNewSample,
	})

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return nil, fmt.Errorf("encoder: failed to start pipeline: %w", err)
	}
	d.running.Store(true)
	go d.watchBus(ctx)

	return d, nil
}

func (d *Driver) onNewSample(sink *app.Sink) gst.FlowReturn {
	if !d.running.Load() {
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

	data := make([]byte, len(mapInfo.Bytes()))
	copy(data, mapInfo.Bytes())

	ptsDur := buffer.PresentationTimestamp().AsDuration()
	var pts uint64
	if ptsDur != nil {
		pts = uint64(ptsDur.Microseconds())
	}
	isIDR := !buffer.HasFlags(gst.BufferFlagDeltaUnit)

	select {
	case d.outCh <- EncodedNAL{Data: data, IsIDR: isIDR, PTS: pts, Timestamp: time.Now()}:
	default:
		// Encode pool backpressure; dispatch stage governs drop policy, not this.
	}
	return gst.FlowOK
}

func (d *Driver) watchBus(ctx context.Context) {
	bus := d.pipeline.GetPipelineBus()
	if bus == nil {
		return
	}
	for d.running.Load() {
		select {
		case <-ctx.Done():
			d.Close()
			return
		default:
		}
		msg := bus.TimedPop(gst.ClockTime(100 * time.Millisecond))
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageEOS:
			d.Close()
			return
		case gst.MessageError:
			d.recordFault()
			return
		}
	}
}

func (d *Driver) recordFault() {
	d.mu.Lock()
	d.consecutiveFaults++
	d.mu.Unlock()
}

// PushView pushes one dual-view plane set into the shared encoder as an I420
// buffer. Whichever view was pushed most recently becomes the encoder's DPB
// reference (§4.5.3); this method never inspects or acts on that fact.
func (d *Driver) PushView(v *View) error {
	if !d.running.Load() {
		return fmt.Errorf("encoder: driver not running")
	}
	buf := make([]byte, 0, len(v.Y)+len(v.U)+len(v.V))
	buf = append(buf, v.Y...)
	buf = append(buf, v.U...)
	buf = append(buf, v.V...)

	gstBuf := gst.NewBufferFromBytes(buf)
	ret := d.appsrc.PushBuffer(gstBuf)
	if ret != gst.FlowOK {
		return fmt.Errorf("encoder: push buffer returned %v", ret)
	}
	return nil
}

// Output returns the channel of encoded NAL units. Output ordering matches
// push ordering: the caller is responsible for tagging which EncodedNAL
// belongs to main vs aux by pushing and draining in lockstep (the pipeline
// here is single-stream; §4.5.3's DPB coupling is exactly why main and aux
// cannot be encoded concurrently).
func (d *Driver) Output() <-chan EncodedNAL {
	return d.outCh
}

// ConsecutiveFaults reports the current run of encoder bus errors. The
// pipeline's three-consecutive-fault escalation (§4.5.5, §7) does not read
// it; the pipeline counts its own encode errors.
func (d *Driver) ConsecutiveFaults() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.consecutiveFaults
}

func (d *Driver) ClearFaults() {
	d.mu.Lock()
	d.consecutiveFaults = 0
	d.mu.Unlock()
}

// Close tears down the pipeline. Safe to call multiple times.
func (d *Driver) Close() error {
	d.stopOnce.Do(func() {
		d.running.Store(false)
		if d.pipeline != nil {
			d.pipeline.SetState(gst.StateNull)
		}
		close(d.outCh)
	})
	return nil
}

// Reinit tears down and rebuilds the pipeline, which is this driver's
// mechanism for forcing a fresh IDR: x264enc (and hardware equivalents)
// always emit a keyframe as the first buffer after entering the playing
// state. Nothing in this repository calls Reinit: neither the pipeline nor
// the server rebuilds the encoder on a resolution change, a video-channel
// reconnection or an encoder fault (§4.5.5). A lower-latency force-key-unit event
// exists in GStreamer but is not demonstrated anywhere in the teacher's
// pipeline code, so this reuses the already-grounded stop/start sequence
// instead of guessing at an unverified API.
func (d *Driver) Reinit(ctx context.Context, width, height int) error {
	d.Close()
	fresh, err := NewDriver(ctx, d.cfg, width, height)
	if err != nil {
		return err
	}
	d.width = fresh.width
	d.height = fresh.height
	d.pipeline = fresh.pipeline
	d.appsrc = fresh.appsrc
	d.appsink = fresh.appsink
	d.outCh = fresh.outCh
	d.stopOnce = sync.Once{}
	d.running.Store(true)
	d.ClearFaults()
	return nil
}
