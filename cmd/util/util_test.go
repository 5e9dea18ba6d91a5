package util

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ValentinKolb/paperKV/lib/common"
	"github.com/ValentinKolb/paperKV/lib/db"
	"github.com/spf13/viper"
)

func TestWrapString(t *testing.T) {
	text := strings.Repeat("word ", 40)
	for _, line := range strings.Split(WrapString(text), "\n") {
		if len(line) > Wrap {
			t.Errorf("line longer than %d characters: %q", Wrap, line)
		}
	}

	if got := WrapString("  short   text "); got != "short text" {
		t.Errorf("unexpected result %q", got)
	}

	// a single word longer than Wrap stays intact
	long := strings.Repeat("x", Wrap+10)
	if got := WrapString(long); got != long {
		t.Errorf("long word was split: %q", got)
	}
}

func TestValidateBookName(t *testing.T) {
	valid := []string{"default", "users", "my-book", "book.perf", "ünïcödé"}
	invalid := []string{"", ".", "..", "a/b", `a\b`, "a\x00b"}

	for _, name := range valid {
		if err := ValidateBookName(name); err != nil {
			t.Errorf("ValidateBookName(%q) = %v, want nil", name, err)
		}
	}
	for _, name := range invalid {
		if err := ValidateBookName(name); err == nil {
			t.Errorf("ValidateBookName(%q) = nil, want error", name)
		}
	}
}

func TestGetBookConfig(t *testing.T) {
	t.Cleanup(viper.Reset)

	viper.Set("data-dir", "/tmp/books")
	viper.Set("engine", "PlainFile")
	viper.Set("codec", "yaml")
	viper.Set("workers", 3)
	viper.Set("log-level", "debug")

	conf, err := GetBookConfig("notes")
	if err != nil {
		t.Fatalf("GetBookConfig failed: %v", err)
	}
	want := common.BookConfig{
		Name:     "notes",
		DataDir:  "/tmp/books",
		Engine:   common.EnginePlainFile,
		Codec:    "yaml",
		Workers:  3,
		LogLevel: "debug",
	}
	if *conf != want {
		t.Errorf("got %+v, want %+v", *conf, want)
	}

	viper.Set("engine", "redis")
	if _, err := GetBookConfig("notes"); err == nil {
		t.Errorf("expected an error for an unknown engine")
	}

	viper.Set("engine", "maple")
	viper.Set("codec", "xml")
	if _, err := GetBookConfig("notes"); err == nil {
		t.Errorf("expected an error for an unknown codec")
	}
}

func TestDBFactory(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		engine common.Engine
		impl   db.Implementation
		path   string // created below dir, empty for in-memory engines
	}{
		{common.EngineMaple, db.ImplMaple, ""},
		{common.EnginePlainFile, db.ImplPlainFile, "notes"},
		{common.EngineSQLite, db.ImplSQLite, "notes.db"},
	}
	for _, tt := range tests {
		t.Run(string(tt.engine), func(t *testing.T) {
			conf := &common.BookConfig{Name: "notes", DataDir: filepath.Join(dir, "data"), Engine: tt.engine}
			factory, err := DBFactory(conf)
			if err != nil {
				t.Fatalf("DBFactory failed: %v", err)
			}
			engine, err := factory()
			if err != nil {
				t.Fatalf("factory failed: %v", err)
			}
			defer engine.Close()

			if got := engine.GetInfo().DbType; got != tt.impl {
				t.Errorf("got engine %s, want %s", got, tt.impl)
			}
			if tt.path != "" {
				if _, err := os.Stat(filepath.Join(conf.DataDir, tt.path)); err != nil {
					t.Errorf("expected %s to exist: %v", tt.path, err)
				}
			}
		})
	}

	if _, err := DBFactory(&common.BookConfig{Name: "../escape", Engine: common.EngineSQLite}); err == nil {
		t.Errorf("expected an invalid book name to be rejected")
	}
}

func TestOpenBook(t *testing.T) {
	conf := &common.BookConfig{
		Name:    "open",
		DataDir: t.TempDir(),
		Engine:  common.EngineSQLite,
		Codec:   "gob",
		Workers: 2,
	}

	b, err := OpenBook[map[string]int](conf)
	if err != nil {
		t.Fatalf("OpenBook failed: %v", err)
	}
	if _, err := b.Write("k", map[string]int{"a": 1}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if b.Codec().Name() != "gob" || b.Stats().Workers != 2 {
		t.Errorf("options not applied: codec=%s workers=%d", b.Codec().Name(), b.Stats().Workers)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// reopen and read back
	b, err = OpenBook[map[string]int](conf)
	if err != nil {
		t.Fatalf("OpenBook failed: %v", err)
	}
	defer b.Close()
	got, found, err := b.Read("k")
	if err != nil || !found || got["a"] != 1 {
		t.Errorf("got %v found=%v err=%v", got, found, err)
	}
}

func TestCheckDocumentCodec(t *testing.T) {
	for _, name := range []string{"json", "JSON", "yaml"} {
		if err := CheckDocumentCodec(name); err != nil {
			t.Errorf("CheckDocumentCodec(%q) = %v, want nil", name, err)
		}
	}
	for _, name := range []string{"gob", "proto", "protojson", "xml"} {
		if err := CheckDocumentCodec(name); err == nil {
			t.Errorf("CheckDocumentCodec(%q) = nil, want error", name)
		}
	}
}
