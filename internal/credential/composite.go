package credential

import (
	"context"
	"log/slog"
)

// CompositeStore tries each backend in order on Save (writing to the
// first one that succeeds) and on Load (returning the first hit),
// matching the selector's own "first workable option wins" shape from
// internal/session. A typical ordering is keyring, then encrypted file,
// then sandbox-private plaintext file, with the TPM backend first only
// when a caller has confirmed TPM hardware is present.
type CompositeStore struct {
	logger   *slog.Logger
	backends []Store
}

func NewCompositeStore(logger *slog.Logger, backends ...Store) *CompositeStore {
	return &CompositeStore{logger: logger, backends: backends}
}

func (c *CompositeStore) Load(ctx context.Context, compositorIdentity, profileID string) (string, bool, error) {
	var lastErr error
	for _, b := range c.backends {
		tok, ok, err := b.Load(ctx, compositorIdentity, profileID)
		if err != nil {
			lastErr = err
			continue
		}
		if ok {
			return tok, true, nil
		}
	}
	return "", false, lastErr
}

func (c *CompositeStore) Save(ctx context.Context, compositorIdentity, profileID, token string) error {
	var lastErr error
	for _, b := range c.backends {
		if err := b.Save(ctx, compositorIdentity, profileID, token); err != nil {
			lastErr = err
			if c.logger != nil {
				c.logger.Debug("credential backend save failed, trying next", "err", err)
			}
			continue
		}
		return nil
	}
	return lastErr
}
