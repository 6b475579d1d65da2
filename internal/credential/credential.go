// Package credential implements the pluggable restore-token persistence
// backends named in §6 Persistence: a system keyring over D-Bus Secret
// Service, a TPM-sealed store, a sandbox-private file store, and an
// encrypted-file fallback. All are keyed by (host-compositor-identity,
// session-profile-id) and satisfy session.TokenStore structurally.
package credential

import "context"

// Store is the persistence contract every backend implements. It is the
// same shape as session.TokenStore, duplicated here rather than imported
// to keep internal/session free of a dependency on internal/credential.
type Store interface {
	Load(ctx context.Context, compositorIdentity, profileID string) (string, bool, error)
	Save(ctx context.Context, compositorIdentity, profileID, token string) error
}

func key(compositorIdentity, profileID string) string {
	return compositorIdentity + "\x00" + profileID
}
