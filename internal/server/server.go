// Package server wires one accepted RDP client to the Session Strategy
// Selector, the Frame Pipeline, the Input Router, and the Clipboard
// Orchestrator, mirroring the accept-loop/per-connection-goroutine shape
// of cmd/desktop-bridge/main.go's Run() but fanned out over the RDP
// session-acceptor boundary instead of a single HTTP listener.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/lamco-admin/wayland-rdp-sub008/internal/capture"
	"github.com/lamco-admin/wayland-rdp-sub008/internal/clipboard"
	"github.com/lamco-admin/wayland-rdp-sub008/internal/config"
	"github.com/lamco-admin/wayland-rdp-sub008/internal/encoder"
	"github.com/lamco-admin/wayland-rdp-sub008/internal/input"
	"github.com/lamco-admin/wayland-rdp-sub008/internal/pipeline"
	"github.com/lamco-admin/wayland-rdp-sub008/internal/rdpwire"
	"github.com/lamco-admin/wayland-rdp-sub008/internal/session"
)

// Server accepts RDP clients and runs one full core instance (capture,
// pipeline, input, clipboard) per session, using the same Selector for
// every client (§4.7: the selection algorithm itself has no per-client
// state beyond the profile ID used for restore-token lookup).
type Server struct {
	logger   *slog.Logger
	cfg      *config.Config
	selector *session.Selector
}

func New(logger *slog.Logger, cfg *config.Config, selector *session.Selector) *Server {
	return &Server{logger: logger, cfg: cfg, selector: selector}
}

// Run accepts clients from acceptor until ctx is cancelled or Accept
// returns a fatal error. Each accepted client is handled in its own
// goroutine; a single client's failure never tears down the listener
// (§6 Exit codes: "Once accepting, the process stays up across
// per-session failures").
func (s *Server) Run(ctx context.Context, acceptor rdpwire.SessionAcceptor) error {
	var wg conc.WaitGroup
	defer wg.Wait()

	for {
		accepted, err := acceptor.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("accept: %w", err)
		}

		logger := s.logger.With("client_id", accepted.ClientID)
		wg.Go(func() {
			if err := s.handleSession(ctx, logger, accepted); err != nil {
				logger.Warn("session ended with error", "err", err)
			}
		})
	}
}

func (s *Server) handleSession(ctx context.Context, logger *slog.Logger, accepted *rdpwire.AcceptedSession) error {
	handle, diag, err := s.selector.Select(ctx, accepted.ClientID)
	if err != nil {
		return fmt.Errorf("select session strategy: %w", err)
	}
	defer handle.Close(ctx)
	logger = logger.With("strategy", diag.Chosen.String())
	logger.Info("session strategy established")

	streams, err := handle.Streams(ctx)
	if err != nil || len(streams) == 0 {
		return fmt.Errorf("list streams: %w", err)
	}
	stream := streams[0]

	encCfg, err := s.cfg.EncoderConfig()
	if err != nil {
		return fmt.Errorf("resolve encoder config: %w", err)
	}
	if !accepted.SupportsAVC444 {
		encCfg.Selection = encoder.SelectionAVC420
	}

	drv, err := encoder.NewDriver(ctx, encCfg, stream.Width, stream.Height)
	if err != nil {
		return fmt.Errorf("start encoder: %w", err)
	}
	defer drv.Close()

	pcfg := pipeline.DefaultConfig()
	pcfg.HighWaterMark = s.cfg.PipelineHighWaterMark
	pcfg.LowWaterMark = s.cfg.PipelineLowWaterMark
	pcfg.MaxFrameAgeMS = s.cfg.MaxFrameAgeMS
	pcfg.TileSize = s.cfg.DamageTileSize
	pcfg.FPSCeiling = s.cfg.TargetFPS
	pcfg.Encoder = encCfg

	pl := pipeline.New(logger, pcfg, drv, func(ctx context.Context, frame rdpwire.Avc444Frame) error {
		return accepted.Graphics.SendFrame(ctx, frame)
	})

	capSrc := capture.New(logger, 0, stream.ID, func(ctx context.Context) (session.PipeWireAccess, error) {
		return handle.PipeWireAccess(ctx)
	})

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg conc.WaitGroup
	defer wg.Wait()

	wg.Go(func() {
		if err := pl.Run(sessionCtx); err != nil && sessionCtx.Err() == nil {
			logger.Warn("pipeline terminated", "err", err)
		}
		cancel()
	})

	if _, err := capSrc.Start(sessionCtx, func(f capture.Frame) { pl.Submit(f, false) }); err != nil {
		cancel()
		return fmt.Errorf("start capture: %w", err)
	}
	defer capSrc.Stop()

	wg.Go(func() {
		for {
			select {
			case <-sessionCtx.Done():
				return
			case _, ok := <-accepted.Graphics.KeyframeRequests():
				if !ok {
					return
				}
				pl.RequestKeyframe()
			}
		}
	})

	router := input.New(logger, handle, accepted.Input)
	wg.Go(func() { router.Run(sessionCtx) })

	if endpoint := s.startClipboard(sessionCtx, logger, diag.Chosen, accepted.Clipboard); endpoint != nil {
		defer endpoint.Close()
	}

	<-sessionCtx.Done()
	return nil
}

// startClipboard bridges the host clipboard when the selected strategy's
// session handle offers no ClipboardEndpoint of its own (§4.7: "strategy 1
// has no clipboard of its own" applies equally to the portal and wlroots
// handles in this tree; see DESIGN.md for why only the wlroots path is
// wired here).
func (s *Server) startClipboard(ctx context.Context, logger *slog.Logger, chosen session.Kind, channel rdpwire.ClipboardChannel) clipboardCloser {
	if chosen != session.StrategyWlrootsNative {
		logger.Debug("clipboard bridging not available for this session strategy")
		return nil
	}

	transport := clipboard.NewWaylandTransport(waylandDisplay(), xdgRuntimeDir())
	orch := clipboard.NewOrchestrator(logger, transport, channel, s.cfg.ClipboardSizeCapBytes, s.cfg.ClipboardAllowedMIME)
	done := make(chan struct{})
	go func() {
		defer close(done)
		orch.Run(ctx)
	}()
	go orch.PollHost(ctx, clipboardPollInterval)
	return closerFunc(func() error { <-done; return nil })
}

type clipboardCloser interface {
	Close() error
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// clipboardPollInterval matches the teacher's own wl-paste-scale polling
// tolerance (clipboard.clipboardTimeout is 2s per invocation).
const clipboardPollInterval = 2 * time.Second

func waylandDisplay() string {
	if v := os.Getenv("WAYLAND_DISPLAY"); v != "" {
		return v
	}
	return "wayland-0"
}

func xdgRuntimeDir() string {
	if v := os.Getenv("XDG_RUNTIME_DIR"); v != "" {
		return v
	}
	return "/run/user/0"
}
