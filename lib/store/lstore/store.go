package lstore

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/ValentinKolb/paperKV/lib/db"
	"github.com/ValentinKolb/paperKV/lib/store"
)

type storeImpl struct {
	db     db.KVDB
	closed atomic.Bool
}

// NewLocalStore creates a new local store instance.
// This store implementation is not distributed and only works on a single node.
// Whether data survives a restart depends on the engine created by factory.
func NewLocalStore(factory store.DBFactory) (store.IStore, error) {
	database, err := factory()
	if err != nil {
		return nil, store.WrapError(store.RetCIOError, "failed to open database", err)
	}
	return &storeImpl{db: database}, nil
}

// check returns an error if the store was closed or the engine lacks feature
func (s *storeImpl) check(feature db.Feature) error {
	if s.closed.Load() {
		return store.NewError(store.RetCInvalidOperation, "store is closed")
	}
	if !s.db.SupportsFeature(feature) {
		return store.NewError(store.RetCUnsupportedOperation, fmt.Sprintf("%s operation is not supported", feature))
	}
	return nil
}

// wrap turns an engine error into a *store.Error
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, db.ErrUnsupported) {
		return store.WrapError(store.RetCUnsupportedOperation, op+" failed", err)
	}
	return store.WrapError(store.RetCIOError, op+" failed", err)
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Set(key string, value []byte) error {
	if err := s.check(db.FeatureSet); err != nil {
		return err
	}
	return wrap("Set", s.db.Set(key, value))
}

func (s *storeImpl) Delete(key string) error {
	if err := s.check(db.FeatureDelete); err != nil {
		return err
	}
	return wrap("Delete", s.db.Delete(key))
}

func (s *storeImpl) Clear() error {
	if err := s.check(db.FeatureClear); err != nil {
		return err
	}
	return wrap("Clear", s.db.Clear())
}

func (s *storeImpl) Get(key string) ([]byte, bool, error) {
	if err := s.check(db.FeatureGet); err != nil {
		return nil, false, err
	}
	val, ok, err := s.db.Get(key)
	if err != nil {
		return nil, false, wrap("Get", err)
	}
	return val, ok, nil
}

func (s *storeImpl) Has(key string) (bool, error) {
	if err := s.check(db.FeatureHas); err != nil {
		return false, err
	}
	ok, err := s.db.Has(key)
	if err != nil {
		return false, wrap("Has", err)
	}
	return ok, nil
}

func (s *storeImpl) GetDBInfo() (db.DatabaseInfo, error) {
	if s.closed.Load() {
		return db.DatabaseInfo{}, store.NewError(store.RetCInvalidOperation, "store is closed")
	}
	return s.db.GetInfo(), nil
}

// Close closes the underlying database. Calling Close more than once is a no-op.
func (s *storeImpl) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return wrap("Close", s.db.Close())
}
