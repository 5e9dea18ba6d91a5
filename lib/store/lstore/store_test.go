package lstore

import (
	"errors"
	"io"
	"testing"

	"github.com/ValentinKolb/paperKV/lib/db"
	"github.com/ValentinKolb/paperKV/lib/db/engines/maple"
	"github.com/ValentinKolb/paperKV/lib/store"
)

func newMapleStore(t *testing.T) store.IStore {
	t.Helper()
	s, err := NewLocalStore(func() (db.KVDB, error) {
		return maple.NewMapleDB(nil), nil
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return s
}

func TestBasicOperations(t *testing.T) {
	s := newMapleStore(t)
	defer s.Close()

	if err := s.Set("a", []byte("1")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	value, ok, err := s.Get("a")
	if err != nil || !ok || string(value) != "1" {
		t.Fatalf("Get returned %q ok=%v err=%v", value, ok, err)
	}

	if ok, err := s.Has("a"); err != nil || !ok {
		t.Errorf("Has returned ok=%v err=%v", ok, err)
	}

	if err := s.Delete("a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok, err := s.Get("a"); err != nil || ok {
		t.Errorf("expected missing key after Delete, ok=%v err=%v", ok, err)
	}
	if err := s.Delete("a"); err != nil {
		t.Errorf("Delete of a missing key must not fail: %v", err)
	}

	for _, key := range []string{"x", "y", "z"} {
		if err := s.Set(key, []byte(key)); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	info, err := s.GetDBInfo()
	if err != nil {
		t.Fatalf("GetDBInfo failed: %v", err)
	}
	if info.Keys != 0 || info.DbType != db.ImplMaple {
		t.Errorf("unexpected info after Clear: %+v", info)
	}
}

func TestFactoryError(t *testing.T) {
	cause := errors.New("disk on fire")
	_, err := NewLocalStore(func() (db.KVDB, error) {
		return nil, cause
	})
	if !errors.Is(err, cause) {
		t.Fatalf("expected factory error to be wrapped, got %v", err)
	}
	var storeErr *store.Error
	if !errors.As(err, &storeErr) || storeErr.Code != store.RetCIOError {
		t.Errorf("expected RetCIOError, got %v", err)
	}
}

func TestClosedStore(t *testing.T) {
	s := newMapleStore(t)
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close must be a no-op, got %v", err)
	}

	var storeErr *store.Error
	if err := s.Set("k", nil); !errors.As(err, &storeErr) || storeErr.Code != store.RetCInvalidOperation {
		t.Errorf("expected RetCInvalidOperation after Close, got %v", err)
	}
}

// readOnlyDB reports only Get and Has and fails every call
type readOnlyDB struct{}

func (readOnlyDB) Set(string, []byte) error          { return db.ErrUnsupported }
func (readOnlyDB) Delete(string) error               { return db.ErrUnsupported }
func (readOnlyDB) Clear() error                      { return db.ErrUnsupported }
func (readOnlyDB) Get(string) ([]byte, bool, error)  { return nil, false, errors.New("medium failure") }
func (readOnlyDB) Has(string) (bool, error)          { return false, nil }
func (readOnlyDB) Save(io.Writer) error              { return db.ErrUnsupported }
func (readOnlyDB) Load(io.Reader) error              { return db.ErrUnsupported }
func (readOnlyDB) GetInfo() db.DatabaseInfo          { return db.DatabaseInfo{} }
func (readOnlyDB) Close() error                      { return nil }
func (readOnlyDB) SupportsFeature(f db.Feature) bool { return (db.FeatureGet|db.FeatureHas)&f == f }

func TestErrorCodes(t *testing.T) {
	s, err := NewLocalStore(func() (db.KVDB, error) { return readOnlyDB{}, nil })
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	var storeErr *store.Error

	if err := s.Set("k", []byte("v")); !errors.As(err, &storeErr) || storeErr.Code != store.RetCUnsupportedOperation {
		t.Errorf("expected RetCUnsupportedOperation for Set, got %v", err)
	}
	if err := s.Clear(); !errors.As(err, &storeErr) || storeErr.Code != store.RetCUnsupportedOperation {
		t.Errorf("expected RetCUnsupportedOperation for Clear, got %v", err)
	}
	if _, _, err := s.Get("k"); !errors.As(err, &storeErr) || storeErr.Code != store.RetCIOError {
		t.Errorf("expected RetCIOError for Get, got %v", err)
	}
}
