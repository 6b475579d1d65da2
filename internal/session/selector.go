package session

import (
	"context"
	"log/slog"

	"github.com/lamco-admin/wayland-rdp-sub008/internal/rdpwire"
)

// Diagnostics records the selector's decision for observability (§4.7 step c).
type Diagnostics struct {
	Chosen     Kind
	Attempted  []Kind
	Sandboxed  bool
}

// Selector runs the five strategies in preference order and returns the
// first one that establishes a Handle (§4.7 selection algorithm).
type Selector struct {
	logger     *slog.Logger
	strategies map[Kind]Strategy
	sandboxed  bool
}

func NewSelector(logger *slog.Logger, sandboxed bool, strategies ...Strategy) *Selector {
	m := make(map[Kind]Strategy, len(strategies))
	for _, s := range strategies {
		m[s.Kind()] = s
	}
	return &Selector{logger: logger.With("component", "session_selector"), strategies: m, sandboxed: sandboxed}
}

// Select runs the algorithm: if sandboxed, only portal-variant strategies
// are tried; otherwise every strategy is tried in preference order,
// short-circuiting on the first whose Available returns true and which
// actually establishes. Service Registry levels are not consulted.
func (s *Selector) Select(ctx context.Context, profileID string) (Handle, *Diagnostics, error) {
	diag := &Diagnostics{Sandboxed: s.sandboxed}

	for _, kind := range Preference {
		if s.sandboxed && requiresUnmediatedAccess(kind) {
			continue
		}
		strat, ok := s.strategies[kind]
		if !ok {
			continue
		}
		diag.Attempted = append(diag.Attempted, kind)
		if !strat.Available(ctx) {
			s.logger.Debug("strategy unavailable", "strategy", kind)
			continue
		}

		handle, err := strat.Establish(ctx, profileID)
		if err == nil {
			diag.Chosen = kind
			s.logger.Info("session strategy selected", "strategy", kind)
			return handle, diag, nil
		}

		s.logger.Warn("strategy establish failed", "strategy", kind, "err", err)
		// PermissionDenied is recoverable by trying the next-preferred
		// strategy (§4.7 errors / §7); all other kinds also simply fall
		// through to the next candidate here, since exhausting the whole
		// preference list is itself the terminal failure.
	}

	return nil, diag, rdpwire.Wrap(rdpwire.ErrHostUnavailable, "session.Select", errNoCompatibleStrategy)
}

var errNoCompatibleStrategy = errNoStrategy{}

type errNoStrategy struct{}

func (errNoStrategy) Error() string { return "no compatible session strategy available" }
