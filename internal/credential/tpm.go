package credential

import (
	"context"

	"github.com/lamco-admin/wayland-rdp-sub008/internal/rdpwire"
)

// TPMStore is a placeholder for a TPM-sealed restore-token store (§6
// Persistence). No TPM 2.0 client library appears anywhere in the
// retrieved example pack, and implementing the TPM wire protocol from
// scratch is out of scope for a credential-backend plug point, so this
// backend always reports Unavailable rather than silently omitting the
// interface entirely.
type TPMStore struct{}

func NewTPMStore() *TPMStore { return &TPMStore{} }

func (t *TPMStore) Load(ctx context.Context, compositorIdentity, profileID string) (string, bool, error) {
	return "", false, rdpwire.Wrap(rdpwire.ErrHostUnavailable, "tpm.Load", errTPMUnavailable)
}

func (t *TPMStore) Save(ctx context.Context, compositorIdentity, profileID, token string) error {
	return rdpwire.Wrap(rdpwire.ErrHostUnavailable, "tpm.Save", errTPMUnavailable)
}

var errTPMUnavailable = tpmUnavailableError{}

type tpmUnavailableError struct{}

func (tpmUnavailableError) Error() string {
	return "no TPM backend is bundled in this build"
}
