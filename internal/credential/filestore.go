package credential

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/lamco-admin/wayland-rdp-sub008/internal/rdpwire"
)

// FileStore is the sandbox-private restore-token store (§6 Persistence):
// plaintext tokens in a single JSON file under the process's state
// directory, for hosts where no keyring is reachable (e.g. inside a
// container namespace with its own private XDG_STATE_HOME). Follows the
// teacher's `os.Getenv("XDG_RUNTIME_DIR")` idiom (desktop-bridge/main.go)
// rather than pulling in an XDG-lookup library the pack never uses.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	if path == "" {
		path = defaultStatePath("restore-tokens.json")
	}
	return &FileStore{path: path}
}

func defaultStatePath(name string) string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "rdp-bridge", name)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "rdp-bridge", name)
	}
	return filepath.Join(home, ".local", "state", "rdp-bridge", name)
}

func (f *FileStore) read() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	m := map[string]string{}
	if len(data) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func (f *FileStore) write(m map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, data, 0o600)
}

func (f *FileStore) Load(ctx context.Context, compositorIdentity, profileID string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, err := f.read()
	if err != nil {
		return "", false, rdpwire.Wrap(rdpwire.ErrHostUnavailable, "filestore.Load", err)
	}
	tok, ok := m[key(compositorIdentity, profileID)]
	return tok, ok, nil
}

func (f *FileStore) Save(ctx context.Context, compositorIdentity, profileID, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, err := f.read()
	if err != nil {
		return rdpwire.Wrap(rdpwire.ErrHostUnavailable, "filestore.Save", err)
	}
	m[key(compositorIdentity, profileID)] = token
	if err := f.write(m); err != nil {
		return rdpwire.Wrap(rdpwire.ErrHostUnavailable, "filestore.Save", err)
	}
	return nil
}
