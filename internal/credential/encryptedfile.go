package credential

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/lamco-admin/wayland-rdp-sub008/internal/rdpwire"
)

// EncryptedFileStore is the encrypted-file restore-token fallback (§6
// Persistence), used when neither a keyring nor a sandbox-private plain
// store is appropriate. The key-derivation shape (env-var seed, hashed
// into a fixed-width key if not already one) mirrors the teacher's
// GetEncryptionKey (api/pkg/crypto/encryption.go), adapted from stdlib
// AES-256-GCM to golang.org/x/crypto's ChaCha20-Poly1305 + HKDF, both of
// which are direct teacher dependencies pulled in for its SSH key tooling
// rather than introduced fresh.
type EncryptedFileStore struct {
	inner *FileStore
	aead  interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
		NonceSize() int
	}
	mu sync.Mutex
}

// NewEncryptedFileStore builds a store whose file contents are sealed with
// a key derived via HKDF-SHA256 from keySeed (e.g. an environment
// variable, matching the teacher's HELIX_ENCRYPTION_KEY convention).
func NewEncryptedFileStore(path string, keySeed []byte) (*EncryptedFileStore, error) {
	if len(keySeed) == 0 {
		return nil, rdpwire.Wrap(rdpwire.ErrConfiguration, "encryptedfile.New", errNoKeySeed)
	}
	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, keySeed, nil, []byte("rdp-bridge-restore-token-v1"))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, rdpwire.Wrap(rdpwire.ErrConfiguration, "encryptedfile.New", err)
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, rdpwire.Wrap(rdpwire.ErrConfiguration, "encryptedfile.New", err)
	}
	if path == "" {
		path = defaultStatePath("restore-tokens.enc")
	}
	return &EncryptedFileStore{inner: &FileStore{path: path}, aead: aead}, nil
}

var errNoKeySeed = errors.New("encrypted file credential backend requires a non-empty key seed")

func (e *EncryptedFileStore) Load(ctx context.Context, compositorIdentity, profileID string) (string, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.inner.read()
	if err != nil {
		return "", false, rdpwire.Wrap(rdpwire.ErrHostUnavailable, "encryptedfile.Load", err)
	}
	sealed, ok := m[key(compositorIdentity, profileID)]
	if !ok {
		return "", false, nil
	}
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", false, rdpwire.Wrap(rdpwire.ErrProtocol, "encryptedfile.Load", err)
	}
	nonceSize := e.aead.NonceSize()
	if len(raw) < nonceSize {
		return "", false, rdpwire.Wrap(rdpwire.ErrProtocol, "encryptedfile.Load", errCiphertextTooShort)
	}
	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := e.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", false, rdpwire.Wrap(rdpwire.ErrProtocol, "encryptedfile.Load", err)
	}
	return string(plaintext), true, nil
}

var errCiphertextTooShort = errors.New("encrypted restore token ciphertext shorter than nonce")

func (e *EncryptedFileStore) Save(ctx context.Context, compositorIdentity, profileID, token string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.inner.read()
	if err != nil {
		return rdpwire.Wrap(rdpwire.ErrHostUnavailable, "encryptedfile.Save", err)
	}
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return rdpwire.Wrap(rdpwire.ErrConfiguration, "encryptedfile.Save", err)
	}
	sealed := e.aead.Seal(nonce, nonce, []byte(token), nil)
	m[key(compositorIdentity, profileID)] = base64.StdEncoding.EncodeToString(sealed)
	if err := e.inner.write(m); err != nil {
		return rdpwire.Wrap(rdpwire.ErrHostUnavailable, "encryptedfile.Save", err)
	}
	return nil
}
