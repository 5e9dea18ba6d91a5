package book

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/paperKV/lib/codec"
	"github.com/ValentinKolb/paperKV/lib/db"
	"github.com/ValentinKolb/paperKV/lib/pool"
	"github.com/ValentinKolb/paperKV/lib/store"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("book")

// Entry is the payload of ReadAsync: the value and whether the key existed
type Entry[T any] struct {
	Value T
	Found bool
}

// Void is the payload of operations without a result
type Void struct{}

// Book stores values of type T under string keys. Every operation exists as a
// synchronous method running on the caller's goroutine and as an asynchronous
// one running on the book's worker pool.
//
// A Book performs no locking around its store, the store must be safe for
// concurrent use (all stores of this module are).
type Book[T any] struct {
	name  string
	store store.IStore
	codec codec.ICodec
	pool  *pool.Pool

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// New creates a book named name on top of s. The book owns s and closes it on Close.
func New[T any](name string, s store.IStore, opts ...Option) *Book[T] {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	b := &Book[T]{
		name:  name,
		store: s,
		codec: o.codec,
		pool:  pool.New(name, o.workers, o.registry),
	}
	log.Debugf("book %s opened (codec=%s, workers=%d)", name, o.codec.Name(), o.workers)
	return b
}

// Name returns the name of the book
func (b *Book[T]) Name() string {
	return b.name
}

// Codec returns the codec values are encoded with
func (b *Book[T]) Codec() codec.ICodec {
	return b.codec
}

// Stats returns the counters of the book's worker pool
func (b *Book[T]) Stats() pool.Stats {
	return b.pool.Stats()
}

// Info returns information about the database underlying the book
func (b *Book[T]) Info() (db.DatabaseInfo, error) {
	if b.closed.Load() {
		return db.DatabaseInfo{}, ErrClosed
	}
	return b.store.GetDBInfo()
}

// Close stops accepting operations, waits for all queued asynchronous operations
// (and their callbacks) to finish and closes the store. Later calls return the
// result of the first one.
//
// Close must not be called from a callback, it would wait for itself.
func (b *Book[T]) Close() error {
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		b.pool.Close()
		b.closeErr = b.store.Close()
		log.Debugf("book %s closed", b.name)
	})
	return b.closeErr
}

// --------------------------------------------------------------------------
// Synchronous operations
// --------------------------------------------------------------------------

// Write stores value under key. A nil value (nil pointer, map, slice, ...) deletes key.
// It returns the book to allow chaining.
func (b *Book[T]) Write(key string, value T) (*Book[T], error) {
	if b.closed.Load() {
		return b, ErrClosed
	}
	return b, b.write(key, value)
}

// Read returns the value stored under key. A missing key is not an error, found is false then.
func (b *Book[T]) Read(key string) (value T, found bool, err error) {
	if b.closed.Load() {
		return value, false, ErrClosed
	}
	return b.read(key)
}

// ReadOr returns the value stored under key or def if the key does not exist
func (b *Book[T]) ReadOr(key string, def T) (T, error) {
	if b.closed.Load() {
		var zero T
		return zero, ErrClosed
	}
	return b.readOr(key, def)
}

// Exist reports whether a value is stored under key
func (b *Book[T]) Exist(key string) (bool, error) {
	if b.closed.Load() {
		return false, ErrClosed
	}
	return b.exist(key)
}

// Delete removes key. Deleting a missing key is not an error.
func (b *Book[T]) Delete(key string) error {
	if b.closed.Load() {
		return ErrClosed
	}
	return b.delete(key)
}

// Destroy removes all keys of the book. Destroying an empty book is not an error.
func (b *Book[T]) Destroy() error {
	if b.closed.Load() {
		return ErrClosed
	}
	return b.destroy()
}

// --------------------------------------------------------------------------
// Implementations shared by the synchronous and asynchronous forms
// --------------------------------------------------------------------------

func (b *Book[T]) write(key string, value T) error {
	if isNil(value) {
		return b.delete(key)
	}
	data, err := b.codec.Encode(value)
	if err != nil {
		return store.WrapError(store.RetCSerializationError, fmt.Sprintf("failed to encode value of %q", key), err)
	}
	return b.store.Set(key, data)
}

func (b *Book[T]) read(key string) (T, bool, error) {
	var value T
	data, ok, err := b.store.Get(key)
	if err != nil || !ok {
		return value, false, err
	}
	if err := b.codec.Decode(data, &value); err != nil {
		var zero T
		return zero, false, store.WrapError(store.RetCSerializationError,
			fmt.Sprintf("failed to decode value of %q as %T", key, value), err)
	}
	return value, true, nil
}

func (b *Book[T]) readOr(key string, def T) (T, error) {
	value, ok, err := b.read(key)
	if err != nil {
		return value, err
	}
	if !ok {
		return def, nil
	}
	return value, nil
}

func (b *Book[T]) exist(key string) (bool, error) {
	return b.store.Has(key)
}

func (b *Book[T]) delete(key string) error {
	return b.store.Delete(key)
}

func (b *Book[T]) destroy() error {
	return b.store.Clear()
}

// isNil reports whether v is nil or a typed nil of a nilable kind
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return rv.IsNil()
	default:
		return false
	}
}
