// Package pipeline implements the Frame Pipeline (§4.3): a bounded
// producer/consumer graph with four stages — ingest, damage, encode,
// dispatch — implementing adaptive FPS, backpressure, and frame drop.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/lamco-admin/wayland-rdp-sub008/internal/capture"
	"github.com/lamco-admin/wayland-rdp-sub008/internal/colorconv"
	"github.com/lamco-admin/wayland-rdp-sub008/internal/damage"
	"github.com/lamco-admin/wayland-rdp-sub008/internal/encoder"
	"github.com/lamco-admin/wayland-rdp-sub008/internal/rdpwire"
)

// encodeReadTimeout bounds how long the encode stage waits for a pushed
// view's NAL to arrive on the encoder's Output channel before treating the
// push as a fault; the driver's pipeline is push/pull lockstep (see
// encoder.Driver.PushView), so a stall here means the GStreamer pipeline is
// wedged, not merely slow.
const encodeReadTimeout = 500 * time.Millisecond

// encoderDriver is the narrow slice of *encoder.Driver this stage actually
// calls, declared as a structural interface (the same pattern used by
// session.TokenStore/credential.Store) so tests can substitute a fake
// encoder without a live GStreamer pipeline.
type encoderDriver interface {
	PushView(v *encoder.View) error
	Output() <-chan encoder.EncodedNAL
}

// DispatchFunc hands one encoded composite frame to the RDP graphics
// channel (typically rdpwire.GraphicsChannel.SendFrame).
type DispatchFunc func(ctx context.Context, frame rdpwire.Avc444Frame) error

// Config is the pipeline-relevant subset of session configuration (§4.3, §6).
type Config struct {
	HighWaterMark int // ingest-queue depth that triggers ingest drop
	LowWaterMark  int // ingest-queue depth that resumes ingest
	MaxFrameAgeMS int // dispatch-side age drop, default 150ms (§4.3)
	TileSize      int
	FPSCeiling    int
	Encoder       encoder.Config
}

// DefaultConfig returns the documented §4.3/§6 defaults.
func DefaultConfig() Config {
	return Config{
		HighWaterMark: 6,
		LowWaterMark:  2,
		MaxFrameAgeMS: 150,
		TileSize:      damage.DefaultTileSize,
		FPSCeiling:    60,
		Encoder:       encoder.DefaultConfig(),
	}
}

type ingestItem struct {
	frame         capture.Frame
	forceKeyframe bool
}

type damagedItem struct {
	frame     capture.Frame
	damageMap *damage.Map
	forceIDR  bool
}

type encodedItem struct {
	avc        rdpwire.Avc444Frame
	capturedAt time.Time
}

// Pipeline wires the four stages with Go channels as the queue between each
// (§4.3 Grounding: plain channel-based backpressure, matching the corpus's
// preference over a dedicated queue library — none appears anywhere in the
// retrieved pack). Stage goroutines are managed by a conc.WaitGroup so a
// panic in any stage propagates on Wait() instead of silently killing a
// goroutine, generalizing cmd/desktop-bridge/main.go's raw sync.WaitGroup
// fan-out.
type Pipeline struct {
	logger   *slog.Logger
	cfg      Config
	dispatch DispatchFunc

	ingestCh   chan ingestItem
	damageCh   chan damagedItem
	dispatchCh chan encodedItem

	tracker  *damage.Tracker
	fps      *fpsController
	auxState *encoder.AuxOmissionState
	drv      encoderDriver

	mu                sync.Mutex
	dropping          bool
	pendingForceIDR   bool
	lastAcceptedAt    time.Time
	compositeFrameNo  uint32
	consecutiveEncErr int

	droppedIngest atomic.Int64
	droppedAge    atomic.Int64
	droppedSkip   atomic.Int64

	stopped  atomic.Bool
	stopOnce sync.Once

	wg      conc.WaitGroup
	fatalCh chan error
}

// New builds a Pipeline. drv is the shared single-encoder driver (§4.5.3);
// dispatch delivers finished composite frames to the RDP graphics channel.
func New(logger *slog.Logger, cfg Config, drv encoderDriver, dispatch DispatchFunc) *Pipeline {
	return &Pipeline{
		logger:     logger,
		cfg:        cfg,
		dispatch:   dispatch,
		ingestCh:   make(chan ingestItem, cfg.HighWaterMark*2),
		damageCh:   make(chan damagedItem, cfg.HighWaterMark),
		dispatchCh: make(chan encodedItem, cfg.HighWaterMark),
		tracker:    damage.NewTracker(cfg.TileSize),
		fps:        newFPSController(cfg.FPSCeiling),
		auxState:   encoder.NewAuxOmissionState(cfg.Encoder.MaxAuxInterval, cfg.Encoder.AuxChangeThreshold),
		drv:        drv,
		fatalCh:    make(chan error, 1),
	}
}

// Run starts the damage/encode/dispatch stage goroutines and blocks until
// ctx is cancelled or a stage escalates a fatal error (§4.3: "Three
// consecutive encoder errors escalate to session termination").
func (p *Pipeline) Run(ctx context.Context) error {
	p.wg.Go(func() { p.runDamageStage(ctx) })
	p.wg.Go(func() { p.runEncodeStage(ctx) })
	p.wg.Go(func() { p.runDispatchStage(ctx) })

	var runErr error
	select {
	case <-ctx.Done():
		runErr = ctx.Err()
	case err := <-p.fatalCh:
		runErr = err
	}
	p.Stop()
	p.wg.Wait()
	return runErr
}

// Submit is the ingest stage's entry point, called from the capture
// source's frame callback. It never blocks: once the ingest queue holds
// HighWaterMark frames, incoming frames are dropped until it drains to
// LowWaterMark or fewer (§4.3 Drop policy). forceKeyframe frames bypass
// the water-mark drop but are still dropped if the ingest channel is full.
func (p *Pipeline) Submit(frame capture.Frame, forceKeyframe bool) {
	if p.stopped.Load() {
		return
	}

	p.mu.Lock()
	depth := len(p.ingestCh)
	if depth >= p.cfg.HighWaterMark {
		p.dropping = true
	} else if depth <= p.cfg.LowWaterMark {
		p.dropping = false
	}
	if p.pendingForceIDR {
		forceKeyframe = true
		p.pendingForceIDR = false
	}
	dropping := p.dropping && !forceKeyframe
	p.mu.Unlock()

	if dropping {
		p.droppedIngest.Add(1)
		return
	}

	select {
	case p.ingestCh <- ingestItem{frame: frame, forceKeyframe: forceKeyframe}:
	default:
		p.droppedIngest.Add(1)
	}
}

// RequestKeyframe marks the next submitted frame as a forced IDR, bypassing
// the skip threshold unconditionally (§4.3: "A forced keyframe (e.g.,
// client-initiated refresh) unconditionally bypasses the skip threshold").
// It is a flag rather than a synthetic ingest item since a keyframe request
// has no frame data of its own to carry.
func (p *Pipeline) RequestKeyframe() {
	p.mu.Lock()
	p.pendingForceIDR = true
	p.mu.Unlock()
}

// Stop halts ingest permanently; stage goroutines drain in-flight items and
// exit once ctx is also cancelled via Run.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		p.stopped.Store(true)
	})
}

func (p *Pipeline) runDamageStage(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-p.ingestCh:
			dm := p.tracker.Compare(&damage.Frame{
				Width: item.frame.Width, Height: item.frame.Height,
				Stride: item.frame.Stride, BytesPerPixel: 4,
				Data: item.frame.Data,
			}, item.forceKeyframe)

			target := p.fps.Observe(dm.DamageFraction)
			if !item.forceKeyframe && !p.dueForFrame(target) {
				p.droppedSkip.Add(1)
				continue
			}
			p.mu.Lock()
			p.lastAcceptedAt = time.Now()
			p.mu.Unlock()

			select {
			case p.damageCh <- damagedItem{frame: item.frame, damageMap: dm, forceIDR: item.forceKeyframe}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (p *Pipeline) dueForFrame(targetFPS int) bool {
	if targetFPS <= 0 {
		return true
	}
	p.mu.Lock()
	last := p.lastAcceptedAt
	p.mu.Unlock()
	if last.IsZero() {
		return true
	}
	return time.Since(last) >= time.Second/time.Duration(targetFPS)
}

func (p *Pipeline) runEncodeStage(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-p.damageCh:
			avc, err := p.encodeOne(ctx, item)
			if err != nil {
				p.logger.Warn("encoder error, skipping frame", "err", err)
				p.mu.Lock()
				p.consecutiveEncErr++
				escalate := p.consecutiveEncErr >= 3
				p.mu.Unlock()
				if escalate {
					select {
					case p.fatalCh <- rdpwire.Wrap(rdpwire.ErrEncoderFault, "pipeline.encode", err):
					default:
					}
					return
				}
				continue
			}
			p.mu.Lock()
			p.consecutiveEncErr = 0
			p.mu.Unlock()

			select {
			case p.dispatchCh <- encodedItem{avc: avc, capturedAt: item.frame.CapturedAt}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// encodeOne converts, packs, and pushes one frame through the shared
// encoder, applying the aux-omission policy (§4.5.2) without ever letting
// the main view's IDR-ness influence that decision (§4.5.3).
func (p *Pipeline) encodeOne(ctx context.Context, item damagedItem) (rdpwire.Avc444Frame, error) {
	planes := colorconv.BGRAToYUV444(item.frame.Data, item.frame.Width, item.frame.Height,
		item.frame.Stride, p.cfg.Encoder.Matrix, p.cfg.Encoder.Range)
	dual := encoder.PackDualView(planes)

	if err := p.drv.PushView(dual.Main); err != nil {
		return rdpwire.Avc444Frame{}, fmt.Errorf("push main view: %w", err)
	}
	mainNAL, err := p.readOutput(ctx)
	if err != nil {
		return rdpwire.Avc444Frame{}, fmt.Errorf("read main NAL: %w", err)
	}

	wireRegions := toWireRegions(item.damageMap)

	p.mu.Lock()
	p.compositeFrameNo++
	frameNo := p.compositeFrameNo
	p.mu.Unlock()

	avc := rdpwire.Avc444Frame{
		CompositeFrameNumber: frameNo,
		Main:                 mainNAL.Data,
		MainIsIDR:            mainNAL.IsIDR,
		MainRegions:          wireRegions,
		LC:                   1,
		Timestamp:            time.Now(),
	}

	if p.cfg.Encoder.Selection == encoder.SelectionAVC420 {
		// AVC420 fallback: main view only, no aux logic (§4.5.4).
		return avc, nil
	}

	auxHash := encoder.HashAuxPlane(dual.Aux.Y)
	changeMagnitude := 0.0
	if item.damageMap != nil {
		changeMagnitude = item.damageMap.DamageFraction
	}
	if p.cfg.Encoder.EnableAuxOmission && !p.auxState.ShouldSendAux(auxHash, changeMagnitude) {
		p.auxState.RecordAuxOmitted()
		return avc, nil
	}

	if err := p.drv.PushView(dual.Aux); err != nil {
		// Degrade to aux-omitted rather than discard an otherwise-valid
		// main view; the aux omission state correctly reflects no aux was
		// actually sent.
		p.auxState.RecordAuxOmitted()
		p.logger.Warn("aux view push failed, omitting aux for this frame", "err", err)
		return avc, nil
	}
	auxNAL, err := p.readOutput(ctx)
	if err != nil {
		p.auxState.RecordAuxOmitted()
		p.logger.Warn("aux NAL read failed, omitting aux for this frame", "err", err)
		return avc, nil
	}

	p.auxState.RecordAuxSent(auxHash)
	avc.Aux = auxNAL.Data
	avc.AuxIsIDR = auxNAL.IsIDR
	avc.AuxRegions = wireRegions
	avc.LC = 0
	return avc, nil
}

func (p *Pipeline) readOutput(ctx context.Context) (encoder.EncodedNAL, error) {
	select {
	case nal, ok := <-p.drv.Output():
		if !ok {
			return encoder.EncodedNAL{}, fmt.Errorf("encoder output channel closed")
		}
		return nal, nil
	case <-time.After(encodeReadTimeout):
		return encoder.EncodedNAL{}, fmt.Errorf("encoder output timed out after %s", encodeReadTimeout)
	case <-ctx.Done():
		return encoder.EncodedNAL{}, ctx.Err()
	}
}

func toWireRegions(m *damage.Map) []rdpwire.RegionRect {
	if m == nil {
		return nil
	}
	rects := damage.MergeRegions(m)
	out := make([]rdpwire.RegionRect, len(rects))
	for i, r := range rects {
		out[i] = rdpwire.RegionRect{X: r.X, Y: r.Y, Width: r.Width, Height: r.Height}
	}
	return out
}

func (p *Pipeline) runDispatchStage(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-p.dispatchCh:
			if time.Since(item.capturedAt) > time.Duration(p.cfg.MaxFrameAgeMS)*time.Millisecond {
				p.droppedAge.Add(1)
				continue
			}
			if err := p.dispatch(ctx, item.avc); err != nil {
				p.logger.Warn("dispatch failed", "frame", item.avc.CompositeFrameNumber, "err", err)
			}
		}
	}
}

// Stats is a snapshot of the pipeline's drop counters, exposed for the
// optional diagnostics channel (§4.3: "Dropped frames are counted in
// metrics").
type Stats struct {
	DroppedIngest int64
	DroppedSkip   int64
	DroppedAge    int64
}

func (p *Pipeline) Stats() Stats {
	return Stats{
		DroppedIngest: p.droppedIngest.Load(),
		DroppedSkip:   p.droppedSkip.Load(),
		DroppedAge:    p.droppedAge.Load(),
	}
}
