package credential

import (
	"context"
	"path/filepath"
	"testing"
)

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, "tokens.json"))

	ctx := context.Background()
	if _, ok, err := store.Load(ctx, "gnome-47", "profile-a"); err != nil || ok {
		t.Fatalf("expected no token yet, got ok=%v err=%v", ok, err)
	}

	if err := store.Save(ctx, "gnome-47", "profile-a", "tok-123"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	tok, ok, err := store.Load(ctx, "gnome-47", "profile-a")
	if err != nil || !ok || tok != "tok-123" {
		t.Fatalf("expected tok-123/true, got %q/%v (err=%v)", tok, ok, err)
	}

	if _, ok, err := store.Load(ctx, "gnome-47", "profile-b"); err != nil || ok {
		t.Fatalf("expected distinct profile id to miss, got ok=%v err=%v", ok, err)
	}
}

func TestEncryptedFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewEncryptedFileStore(filepath.Join(dir, "tokens.enc"), []byte("test-seed-material"))
	if err != nil {
		t.Fatalf("NewEncryptedFileStore: %v", err)
	}

	ctx := context.Background()
	if err := store.Save(ctx, "sway-1.9", "profile-a", "secret-token"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	tok, ok, err := store.Load(ctx, "sway-1.9", "profile-a")
	if err != nil || !ok || tok != "secret-token" {
		t.Fatalf("expected secret-token/true, got %q/%v (err=%v)", tok, ok, err)
	}

	// Wrong key must fail to decrypt rather than silently returning garbage.
	wrongKeyStore, err := NewEncryptedFileStore(filepath.Join(dir, "tokens.enc"), []byte("different-seed"))
	if err != nil {
		t.Fatalf("NewEncryptedFileStore (wrong key): %v", err)
	}
	if _, _, err := wrongKeyStore.Load(ctx, "sway-1.9", "profile-a"); err == nil {
		t.Fatal("expected decryption failure with a different key")
	}
}

func TestEncryptedFileStoreRejectsEmptySeed(t *testing.T) {
	if _, err := NewEncryptedFileStore("", nil); err == nil {
		t.Fatal("expected error for empty key seed")
	}
}

func TestCompositeStoreFallsThroughOnMiss(t *testing.T) {
	dir := t.TempDir()
	primary := NewFileStore(filepath.Join(dir, "primary.json"))
	secondary := NewFileStore(filepath.Join(dir, "secondary.json"))
	ctx := context.Background()
	if err := secondary.Save(ctx, "gnome-47", "profile-a", "from-secondary"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	composite := NewCompositeStore(nil, primary, secondary)
	tok, ok, err := composite.Load(ctx, "gnome-47", "profile-a")
	if err != nil || !ok || tok != "from-secondary" {
		t.Fatalf("expected fallthrough to secondary, got %q/%v (err=%v)", tok, ok, err)
	}
}
