package serve

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/ValentinKolb/paperKV/cmd/util"
	"github.com/ValentinKolb/paperKV/lib/book"
	"github.com/ValentinKolb/paperKV/lib/common"
	"github.com/ValentinKolb/paperKV/lib/db"
	"github.com/ValentinKolb/paperKV/lib/pool"
	"github.com/ValentinKolb/paperKV/lib/store"
	"github.com/ValentinKolb/paperKV/lib/store/dstore"
	"github.com/ValentinKolb/paperKV/lib/store/instrumented"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	gometrics "github.com/rcrowley/go-metrics"
)

var log = logger.GetLogger("serve")

// maxBodyBytes limits the size of a written value
const maxBodyBytes = 32 << 20

var errBookNotFound = errors.New("book not found")

// server serves the books of one data directory over HTTP. Books hold JSON documents.
//
// In local mode books are opened on first use. In cluster mode the books are the
// configured shards, each replicated with raft, and other names are unknown.
type server struct {
	conf     common.ServerConfig
	books    *xsync.MapOf[string, *book.Book[any]]
	metrics  *metrics.Set
	registry gometrics.Registry
	nh       *dragonboat.NodeHost
}

// newServer creates the server and, in cluster mode, starts the raft shards
func newServer(conf common.ServerConfig) (*server, error) {
	if err := util.CheckDocumentCodec(conf.Book.Codec); err != nil {
		return nil, err
	}

	s := &server{
		conf:     conf,
		books:    xsync.NewMapOf[string, *book.Book[any]](),
		metrics:  metrics.NewSet(),
		registry: gometrics.NewRegistry(),
	}

	if conf.IsCluster() {
		if err := s.startShards(); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

// startShards starts one raft replica per configured book
func (s *server) startShards() error {
	// a replicated engine is rebuilt from snapshots, which plainfile cannot take
	if s.conf.Book.Engine == common.EnginePlainFile {
		return fmt.Errorf("engine %s does not support snapshots and cannot be used in cluster mode", s.conf.Book.Engine)
	}

	nh, err := dragonboat.NewNodeHost(s.conf.ToNodeHostConfig())
	if err != nil {
		return fmt.Errorf("failed to create node host: %w", err)
	}
	s.nh = nh

	timeout := time.Duration(s.conf.TimeoutSecond) * time.Second
	for name, shardID := range s.conf.Shards {
		conf := s.bookConfig(name)
		factory, err := util.DBFactory(conf)
		if err != nil {
			return err
		}
		opts, err := s.bookOptions(conf)
		if err != nil {
			return err
		}

		// Start Raft for the shard
		if err := nh.StartConcurrentReplica(s.conf.ClusterMembers, false, dstore.CreateStateMachineFactory(factory), s.conf.ToDragonboatConfig(shardID)); err != nil {
			return fmt.Errorf("failed to start shard %d (book %s): %w", shardID, name, err)
		}

		st := instrumented.NewInstrumentedStore(name, dstore.NewDistributedStore(nh, shardID, timeout), s.metrics)
		s.books.Store(name, book.New[any](name, st, opts...))
		log.Infof("started book %s on shard %d", name, shardID)
	}
	return nil
}

func (s *server) bookConfig(name string) *common.BookConfig {
	conf := s.conf.Book
	conf.Name = name
	return &conf
}

func (s *server) bookOptions(conf *common.BookConfig) ([]book.Option, error) {
	return util.BookOptions(conf, book.WithMetricsRegistry(s.registry))
}

// lookup returns the open book called name, opening it in local mode
func (s *server) lookup(name string) (*book.Book[any], error) {
	if s.conf.IsCluster() {
		if b, ok := s.books.Load(name); ok {
			return b, nil
		}
		return nil, errBookNotFound
	}

	var openErr error
	b, ok := s.books.Compute(name, func(old *book.Book[any], loaded bool) (*book.Book[any], bool) {
		if loaded {
			return old, false
		}
		conf := s.bookConfig(name)
		opts, err := s.bookOptions(conf)
		if err != nil {
			openErr = err
			return nil, true
		}
		st, err := util.OpenStore(conf)
		if err != nil {
			openErr = err
			return nil, true
		}
		log.Infof("opened book %s (%s)", name, conf.Engine)
		return book.New[any](name, instrumented.NewInstrumentedStore(name, st, s.metrics), opts...), false
	})
	if !ok {
		return nil, openErr
	}
	return b, nil
}

// Close closes all books and stops the node host
func (s *server) Close() {
	s.books.Range(func(name string, b *book.Book[any]) bool {
		if err := b.Close(); err != nil {
			log.Warningf("failed to close book %s: %v", name, err)
		}
		return true
	})
	s.books.Clear()
	if s.nh != nil {
		s.nh.Close()
	}
}

// --------------------------------------------------------------------------
// HTTP handlers
// --------------------------------------------------------------------------

// handler returns the routes of the server
func (s *server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /books/{book}/{key...}", s.handleWrite)
	mux.HandleFunc("GET /books/{book}/{key...}", s.handleRead)
	mux.HandleFunc("HEAD /books/{book}/{key...}", s.handleExist)
	mux.HandleFunc("DELETE /books/{book}/{key...}", s.handleDelete)
	mux.HandleFunc("GET /books/{book}", s.handleInfo)
	mux.HandleFunc("DELETE /books/{book}", s.handleDestroy)
	mux.HandleFunc("GET /books", s.handleList)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("GET /debug/pools", s.handlePools)

	if s.conf.Book.LogLevel == "debug" {
		return loggerMiddleware(mux)
	}
	return mux
}

// open resolves the book of the request and writes the error response if that fails
func (s *server) open(w http.ResponseWriter, r *http.Request) (*book.Book[any], bool) {
	name := r.PathValue("book")
	if err := util.ValidateBookName(name); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return nil, false
	}
	b, err := s.lookup(name)
	if err != nil {
		writeStoreError(w, err)
		return nil, false
	}
	return b, true
}

func (s *server) handleWrite(w http.ResponseWriter, r *http.Request) {
	b, ok := s.open(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	defer r.Body.Close()
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}

	var value any
	if err := json.Unmarshal(body, &value); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("body is not valid JSON: %w", err))
		return
	}

	if _, err := await(r, b.WriteAsync(r.PathValue("key"), value, nil)); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleRead(w http.ResponseWriter, r *http.Request) {
	b, ok := s.open(w, r)
	if !ok {
		return
	}

	entry, err := await(r, b.ReadAsync(r.PathValue("key"), nil))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if !entry.Found {
		writeError(w, http.StatusNotFound, errors.New("key not found"))
		return
	}
	writeJSON(w, http.StatusOK, entry.Value)
}

func (s *server) handleExist(w http.ResponseWriter, r *http.Request) {
	b, ok := s.open(w, r)
	if !ok {
		return
	}

	found, err := await(r, b.ExistAsync(r.PathValue("key"), nil))
	switch {
	case err != nil:
		w.WriteHeader(statusOf(err))
	case found:
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *server) handleDelete(w http.ResponseWriter, r *http.Request) {
	b, ok := s.open(w, r)
	if !ok {
		return
	}

	if _, err := await(r, b.DeleteAsync(r.PathValue("key"), nil)); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleDestroy(w http.ResponseWriter, r *http.Request) {
	b, ok := s.open(w, r)
	if !ok {
		return
	}

	if _, err := await(r, b.DestroyAsync(nil)); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// bookInfo is the response of GET /books/{book}
type bookInfo struct {
	Name  string          `json:"name"`
	Codec string          `json:"codec"`
	DB    db.DatabaseInfo `json:"db"`
	Pool  pool.Stats      `json:"pool"`
}

func (s *server) handleInfo(w http.ResponseWriter, r *http.Request) {
	b, ok := s.open(w, r)
	if !ok {
		return
	}

	info, err := b.Info()
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bookInfo{
		Name:  b.Name(),
		Codec: b.Codec().Name(),
		DB:    info,
		Pool:  b.Stats(),
	})
}

func (s *server) handleList(w http.ResponseWriter, _ *http.Request) {
	names := make([]string, 0, s.books.Size())
	s.books.Range(func(name string, _ *book.Book[any]) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	writeJSON(w, http.StatusOK, names)
}

func (s *server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	s.metrics.WritePrometheus(w)
	metrics.WriteProcessMetrics(w)
}

func (s *server) handlePools(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	gometrics.WriteJSONOnce(s.registry, w)
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// await waits for the task or until the client gives up
func await[R any](r *http.Request, t *book.Task[R]) (R, error) {
	select {
	case <-t.Done():
		return t.Wait()
	case <-r.Context().Done():
		var zero R
		return zero, r.Context().Err()
	}
}

// statusOf maps an error of a book operation to a HTTP status code
func statusOf(err error) int {
	var storeErr *store.Error
	var panicErr *book.PanicError
	switch {
	case errors.Is(err, errBookNotFound):
		return http.StatusNotFound
	case errors.Is(err, book.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.As(err, &panicErr):
		return http.StatusInternalServerError
	case errors.As(err, &storeErr):
		switch storeErr.Code {
		case store.RetCInvalidOperation:
			return http.StatusBadRequest
		case store.RetCUnsupportedOperation:
			return http.StatusNotImplemented
		case store.RetCSerializationError:
			return http.StatusUnprocessableEntity
		default:
			return http.StatusInternalServerError
		}
	default:
		// the client went away or the book could not be opened
		return http.StatusServiceUnavailable
	}
}

func writeStoreError(w http.ResponseWriter, err error) {
	code := statusOf(err)
	if code >= http.StatusInternalServerError {
		log.Errorf("request failed: %v", err)
	}
	writeError(w, code, err)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warningf("failed to write response: %v", err)
	}
}

// --------------------------------------------------------------------------
// Middleware (logging)
// --------------------------------------------------------------------------

// responseWriter is a custom ResponseWriter that captures status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code before writing it
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// loggerMiddleware is a middleware that logs HTTP requests
func loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create custom response writer to capture status code
		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		// Process request
		next.ServeHTTP(rw, r)

		// Log the request
		log.Debugf("%s %s => %d took %s", r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	})
}
