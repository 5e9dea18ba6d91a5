package instrumented

import (
	"fmt"
	"time"

	"github.com/ValentinKolb/paperKV/lib/db"
	"github.com/ValentinKolb/paperKV/lib/store"
	"github.com/VictoriaMetrics/metrics"
)

// opMetrics holds the series of one operation of one book
type opMetrics struct {
	calls    *metrics.Counter
	errors   *metrics.Counter
	duration *metrics.Histogram
}

func newOpMetrics(set *metrics.Set, book, op string) opMetrics {
	labels := fmt.Sprintf(`{book=%q,op=%q}`, book, op)
	return opMetrics{
		calls:    set.GetOrCreateCounter("paperkv_store_ops_total" + labels),
		errors:   set.GetOrCreateCounter("paperkv_store_errors_total" + labels),
		duration: set.GetOrCreateHistogram("paperkv_store_op_duration_seconds" + labels),
	}
}

// observe records one call that started at start and ended with err
func (m opMetrics) observe(start time.Time, err error) {
	m.calls.Inc()
	m.duration.UpdateDuration(start)
	if err != nil {
		m.errors.Inc()
	}
}

// storeImpl decorates an IStore with VictoriaMetrics counters and histograms
type storeImpl struct {
	inner store.IStore

	set, get, has, del, clear, info opMetrics
	hits, misses                    *metrics.Counter
}

// NewInstrumentedStore wraps inner so that every call is counted and timed in set.
// All series carry the label book=name. Two stores with the same name share their series.
func NewInstrumentedStore(name string, inner store.IStore, set *metrics.Set) store.IStore {
	labels := fmt.Sprintf(`{book=%q}`, name)
	return &storeImpl{
		inner:  inner,
		set:    newOpMetrics(set, name, "set"),
		get:    newOpMetrics(set, name, "get"),
		has:    newOpMetrics(set, name, "has"),
		del:    newOpMetrics(set, name, "delete"),
		clear:  newOpMetrics(set, name, "clear"),
		info:   newOpMetrics(set, name, "info"),
		hits:   set.GetOrCreateCounter("paperkv_store_get_hits_total" + labels),
		misses: set.GetOrCreateCounter("paperkv_store_get_misses_total" + labels),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docs see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Set(key string, value []byte) error {
	start := time.Now()
	err := s.inner.Set(key, value)
	s.set.observe(start, err)
	return err
}

func (s *storeImpl) Get(key string) ([]byte, bool, error) {
	start := time.Now()
	value, ok, err := s.inner.Get(key)
	s.get.observe(start, err)
	if err == nil {
		if ok {
			s.hits.Inc()
		} else {
			s.misses.Inc()
		}
	}
	return value, ok, err
}

func (s *storeImpl) Has(key string) (bool, error) {
	start := time.Now()
	ok, err := s.inner.Has(key)
	s.has.observe(start, err)
	return ok, err
}

func (s *storeImpl) Delete(key string) error {
	start := time.Now()
	err := s.inner.Delete(key)
	s.del.observe(start, err)
	return err
}

func (s *storeImpl) Clear() error {
	start := time.Now()
	err := s.inner.Clear()
	s.clear.observe(start, err)
	return err
}

func (s *storeImpl) GetDBInfo() (db.DatabaseInfo, error) {
	start := time.Now()
	info, err := s.inner.GetDBInfo()
	s.info.observe(start, err)
	return info, err
}

func (s *storeImpl) Close() error {
	return s.inner.Close()
}
