package instrumented

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ValentinKolb/paperKV/lib/db"
	"github.com/ValentinKolb/paperKV/lib/db/engines/maple"
	"github.com/ValentinKolb/paperKV/lib/store"
	"github.com/ValentinKolb/paperKV/lib/store/lstore"
	"github.com/VictoriaMetrics/metrics"
)

func newTestStore(t *testing.T, name string, set *metrics.Set) store.IStore {
	t.Helper()
	inner, err := lstore.NewLocalStore(func() (db.KVDB, error) {
		return maple.NewMapleDB(nil), nil
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	s := NewInstrumentedStore(name, inner, set)
	t.Cleanup(func() { s.Close() })
	return s
}

func exposition(set *metrics.Set) string {
	var buf bytes.Buffer
	set.WritePrometheus(&buf)
	return buf.String()
}

func TestCountsOperations(t *testing.T) {
	set := metrics.NewSet()
	s := newTestStore(t, "users", set)

	for i := 0; i < 3; i++ {
		if err := s.Set("k", []byte("v")); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}
	if _, _, err := s.Get("k"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if _, _, err := s.Get("missing"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if err := s.Delete("k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	out := exposition(set)
	for _, want := range []string{
		`paperkv_store_ops_total{book="users",op="set"} 3`,
		`paperkv_store_ops_total{book="users",op="get"} 2`,
		`paperkv_store_ops_total{book="users",op="delete"} 1`,
		`paperkv_store_get_hits_total{book="users"} 1`,
		`paperkv_store_get_misses_total{book="users"} 1`,
		`paperkv_store_errors_total{book="users",op="set"} 0`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing series %q in:\n%s", want, out)
		}
	}
}

func TestCountsErrors(t *testing.T) {
	set := metrics.NewSet()
	s := newTestStore(t, "closed", set)

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := s.Set("k", nil); err == nil {
		t.Fatalf("expected an error from a closed store")
	}

	if out := exposition(set); !strings.Contains(out, `paperkv_store_errors_total{book="closed",op="set"} 1`) {
		t.Errorf("error was not counted:\n%s", out)
	}
}

func TestBooksAreSeparated(t *testing.T) {
	set := metrics.NewSet()
	a := newTestStore(t, "a", set)
	b := newTestStore(t, "b", set)

	_ = a.Set("k", nil)
	_ = a.Set("k", nil)
	_ = b.Set("k", nil)

	out := exposition(set)
	if !strings.Contains(out, `paperkv_store_ops_total{book="a",op="set"} 2`) ||
		!strings.Contains(out, `paperkv_store_ops_total{book="b",op="set"} 1`) {
		t.Errorf("series of different books are mixed up:\n%s", out)
	}
}
