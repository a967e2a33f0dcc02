package pollcache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStoreContract(t *testing.T) {
	store := newFileStore(t.TempDir())
	if store.Driver() != DriverFile {
		t.Fatalf("unexpected driver %q", store.Driver())
	}
	runStoreContract(t, store)
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	if err := newFileStore(dir).Set(ctx, ProfileKey, []byte(`{"id":"u1"}`)); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	got, ok, err := newFileStore(dir).Get(ctx, ProfileKey)
	if err != nil || !ok || string(got) != `{"id":"u1"}` {
		t.Fatalf("expected value after reopen, ok=%v err=%v body=%q", ok, err, got)
	}
	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if !info.IsDir() {
		t.Fatalf("expected directory")
	}
}

func TestFileStoreFlushKeepsForeignFiles(t *testing.T) {
	dir := t.TempDir()
	store := newFileStore(dir)
	ctx := context.Background()
	foreign := filepath.Join(dir, "README")
	if err := os.WriteFile(foreign, []byte("keep"), 0o600); err != nil {
		t.Fatalf("write foreign file: %v", err)
	}
	if err := store.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := store.Flush(ctx); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	if _, err := os.Stat(foreign); err != nil {
		t.Fatalf("expected foreign file kept: %v", err)
	}
}

func TestFileStoreFlushMissingDir(t *testing.T) {
	store := &fileStore{dir: filepath.Join(t.TempDir(), "gone")}
	if err := store.Flush(context.Background()); err != nil {
		t.Fatalf("expected flush of missing dir to succeed, got %v", err)
	}
}

func TestFileStoreWriteFailuresCleanUp(t *testing.T) {
	dir := t.TempDir()
	store := newFileStore(dir)
	ctx := context.Background()

	origRename := renameFile
	renameFile = func(string, string) error { return errors.New("rename failed") }
	err := store.Set(ctx, "k", []byte("v"))
	renameFile = origRename
	if err == nil {
		t.Fatalf("expected rename error")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected temp file removed, found %d entries", len(entries))
	}

	origCreate := createTempFile
	createTempFile = func(string, string) (*os.File, error) { return nil, errors.New("create failed") }
	err = store.Set(ctx, "k", []byte("v"))
	createTempFile = origCreate
	if err == nil {
		t.Fatalf("expected create error")
	}
}
