package plainfile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/paperKV/lib/db"
)

func openDir(t *testing.T, dir string) *plainFileImpl {
	t.Helper()
	database, err := NewPlainFileDB(&DBOptions{Dir: dir})
	if err != nil {
		t.Fatalf("failed to open %s: %v", dir, err)
	}
	return database.(*plainFileImpl)
}

func TestRequiresDirectory(t *testing.T) {
	if _, err := NewPlainFileDB(nil); err == nil {
		t.Errorf("expected an error without options")
	}
	if _, err := NewPlainFileDB(&DBOptions{}); err == nil {
		t.Errorf("expected an error without a directory")
	}
}

func TestPersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()

	first := openDir(t, dir)
	if err := first.Set("user/42", []byte("alice")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	first.Close()

	second := openDir(t, dir)
	value, ok, err := second.Get("user/42")
	if err != nil || !ok {
		t.Fatalf("expected key after reopen, got ok=%v err=%v", ok, err)
	}
	if string(value) != "alice" {
		t.Errorf("expected %q, got %q", "alice", value)
	}
}

func TestKeysStayInsideDirectory(t *testing.T) {
	dir := t.TempDir()
	database := openDir(t, dir)

	for _, key := range []string{"../escape", "a/b/c", "..", "."} {
		if err := database.Set(key, []byte(key)); err != nil {
			t.Fatalf("Set(%q) failed: %v", key, err)
		}
		if filepath.Dir(database.pathFor(key)) != dir {
			t.Errorf("key %q maps outside of the directory: %s", key, database.pathFor(key))
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 4 {
		t.Errorf("expected 4 files, got %d", len(entries))
	}
}

func TestRestoresLeftoverBackup(t *testing.T) {
	dir := t.TempDir()
	database := openDir(t, dir)

	if err := database.Set("doc", []byte("complete")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// simulate a crash in the middle of a rewrite: the backup holds the old value,
	// the value file holds a partial write
	path := database.pathFor("doc")
	if err := os.Rename(path, path+backupExt); err != nil {
		t.Fatalf("failed to move file aside: %v", err)
	}
	if err := os.WriteFile(path, []byte("comp"), 0o644); err != nil {
		t.Fatalf("failed to write partial file: %v", err)
	}

	if info := database.GetInfo(); info.Keys != 1 {
		t.Errorf("expected 1 key while backup is pending, got %d", info.Keys)
	}

	value, ok, err := database.Get("doc")
	if err != nil || !ok {
		t.Fatalf("expected restored key, got ok=%v err=%v", ok, err)
	}
	if string(value) != "complete" {
		t.Errorf("expected backup content %q, got %q", "complete", value)
	}
	if _, err := os.Stat(path + backupExt); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected backup to be gone after restore, stat err=%v", err)
	}
}

func TestBackupWithoutValueFile(t *testing.T) {
	dir := t.TempDir()
	database := openDir(t, dir)

	// crash right after the current file was moved aside
	path := database.pathFor("orphan")
	if err := os.WriteFile(path+backupExt, []byte("last-good"), 0o644); err != nil {
		t.Fatalf("failed to write backup: %v", err)
	}

	ok, err := database.Has("orphan")
	if err != nil || !ok {
		t.Fatalf("expected Has to see the backup, got ok=%v err=%v", ok, err)
	}

	value, ok, err := database.Get("orphan")
	if err != nil || !ok || string(value) != "last-good" {
		t.Fatalf("expected %q, got %q ok=%v err=%v", "last-good", value, ok, err)
	}
}

func TestSetOverPendingBackup(t *testing.T) {
	dir := t.TempDir()
	database := openDir(t, dir)

	path := database.pathFor("k")
	if err := os.WriteFile(path+backupExt, []byte("old"), 0o644); err != nil {
		t.Fatalf("failed to write backup: %v", err)
	}
	if err := os.WriteFile(path, []byte("broken"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	if err := database.Set("k", []byte("new")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	value, _, err := database.Get("k")
	if err != nil || string(value) != "new" {
		t.Errorf("expected %q, got %q err=%v", "new", value, err)
	}
	if _, err := os.Stat(path + backupExt); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected no backup after a completed write")
	}
}

func TestClearKeepsForeignFiles(t *testing.T) {
	dir := t.TempDir()
	database := openDir(t, dir)

	foreign := filepath.Join(dir, "README")
	if err := os.WriteFile(foreign, []byte("keep me"), 0o644); err != nil {
		t.Fatalf("failed to write foreign file: %v", err)
	}
	if err := database.Set("a", []byte("1")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if err := database.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, err := os.Stat(foreign); err != nil {
		t.Errorf("Clear removed a file it does not own: %v", err)
	}
	if ok, _ := database.Has("a"); ok {
		t.Errorf("key survived Clear")
	}
}

func TestSaveLoadUnsupported(t *testing.T) {
	database := openDir(t, t.TempDir())
	if database.SupportsFeature(db.FeatureSave) || database.SupportsFeature(db.FeatureLoad) {
		t.Errorf("plainfile must not report Save/Load")
	}
	if err := database.Save(nil); !errors.Is(err, db.ErrUnsupported) {
		t.Errorf("expected ErrUnsupported from Save, got %v", err)
	}
	if err := database.Load(nil); !errors.Is(err, db.ErrUnsupported) {
		t.Errorf("expected ErrUnsupported from Load, got %v", err)
	}
}
