package serve

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/ValentinKolb/paperKV/lib/book"
	"github.com/ValentinKolb/paperKV/lib/common"
	"github.com/ValentinKolb/paperKV/lib/store"
)

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func testConfig(t *testing.T, engine common.Engine) common.ServerConfig {
	t.Helper()
	return common.ServerConfig{
		Book: common.BookConfig{
			DataDir:  t.TempDir(),
			Engine:   engine,
			Codec:    "json",
			Workers:  4,
			LogLevel: "info",
		},
	}
}

func startServer(t *testing.T, conf common.ServerConfig) (*server, *httptest.Server) {
	t.Helper()
	s, err := newServer(conf)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	ts := httptest.NewServer(s.handler())
	t.Cleanup(func() {
		ts.Close()
		s.Close()
	})
	return s, ts
}

func do(t *testing.T, method, url, body string) (int, string) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	return resp.StatusCode, string(data)
}

func expectStatus(t *testing.T, method, url, body string, want int) string {
	t.Helper()
	got, resp := do(t, method, url, body)
	if got != want {
		t.Fatalf("%s %s: expected status %d, got %d (%s)", method, url, want, got, resp)
	}
	return resp
}

func decodeJSON(t *testing.T, s string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("response is not JSON: %v (%s)", err, s)
	}
	return v
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestKeyLifecycle(t *testing.T) {
	_, ts := startServer(t, testConfig(t, common.EngineMaple))
	url := ts.URL + "/books/users/alice"
	doc := `{"name":"Alice","age":30,"tags":["a","b"]}`

	expectStatus(t, http.MethodHead, url, "", http.StatusNotFound)
	expectStatus(t, http.MethodGet, url, "", http.StatusNotFound)

	expectStatus(t, http.MethodPut, url, doc, http.StatusNoContent)
	expectStatus(t, http.MethodHead, url, "", http.StatusOK)

	got := expectStatus(t, http.MethodGet, url, "", http.StatusOK)
	if !reflect.DeepEqual(decodeJSON(t, got), decodeJSON(t, doc)) {
		t.Errorf("got %s, want %s", got, doc)
	}

	expectStatus(t, http.MethodDelete, url, "", http.StatusNoContent)
	expectStatus(t, http.MethodGet, url, "", http.StatusNotFound)

	// deleting a missing key is fine
	expectStatus(t, http.MethodDelete, url, "", http.StatusNoContent)
}

func TestScalarValues(t *testing.T) {
	_, ts := startServer(t, testConfig(t, common.EngineMaple))

	for i, doc := range []string{`"text"`, `42`, `true`, `[1,2,3]`, `{}`} {
		url := fmt.Sprintf("%s/books/values/%d", ts.URL, i)
		expectStatus(t, http.MethodPut, url, doc, http.StatusNoContent)
		got := expectStatus(t, http.MethodGet, url, "", http.StatusOK)
		if !reflect.DeepEqual(decodeJSON(t, got), decodeJSON(t, doc)) {
			t.Errorf("got %s, want %s", got, doc)
		}
	}
}

func TestWriteNullDeletes(t *testing.T) {
	_, ts := startServer(t, testConfig(t, common.EngineMaple))
	url := ts.URL + "/books/b/k"

	expectStatus(t, http.MethodPut, url, `{"v":1}`, http.StatusNoContent)
	expectStatus(t, http.MethodPut, url, `null`, http.StatusNoContent)
	expectStatus(t, http.MethodHead, url, "", http.StatusNotFound)
}

func TestInvalidBody(t *testing.T) {
	_, ts := startServer(t, testConfig(t, common.EngineMaple))

	resp := expectStatus(t, http.MethodPut, ts.URL+"/books/b/k", `{not json`, http.StatusBadRequest)
	if !strings.Contains(resp, "error") {
		t.Errorf("expected an error document, got %s", resp)
	}
	expectStatus(t, http.MethodHead, ts.URL+"/books/b/k", "", http.StatusNotFound)
}

func TestKeysWithSlashes(t *testing.T) {
	_, ts := startServer(t, testConfig(t, common.EngineMaple))
	url := ts.URL + "/books/b/a/b/c"

	expectStatus(t, http.MethodPut, url, `"nested"`, http.StatusNoContent)
	if got := expectStatus(t, http.MethodGet, url, "", http.StatusOK); strings.TrimSpace(got) != `"nested"` {
		t.Errorf("unexpected value %s", got)
	}
	expectStatus(t, http.MethodHead, ts.URL+"/books/b/a", "", http.StatusNotFound)
}

func TestDestroyAndInfo(t *testing.T) {
	_, ts := startServer(t, testConfig(t, common.EngineMaple))

	for i := 0; i < 5; i++ {
		expectStatus(t, http.MethodPut, fmt.Sprintf("%s/books/b/%d", ts.URL, i), `1`, http.StatusNoContent)
	}

	var info bookInfo
	resp := expectStatus(t, http.MethodGet, ts.URL+"/books/b", "", http.StatusOK)
	if err := json.Unmarshal([]byte(resp), &info); err != nil {
		t.Fatalf("failed to decode info: %v", err)
	}
	if info.Name != "b" || info.Codec != "json" || info.DB.Keys != 5 || info.Pool.Workers != 4 {
		t.Errorf("unexpected info %+v", info)
	}

	expectStatus(t, http.MethodDelete, ts.URL+"/books/b", "", http.StatusNoContent)
	expectStatus(t, http.MethodDelete, ts.URL+"/books/b", "", http.StatusNoContent)
	for i := 0; i < 5; i++ {
		expectStatus(t, http.MethodHead, fmt.Sprintf("%s/books/b/%d", ts.URL, i), "", http.StatusNotFound)
	}
}

func TestBooksAreIndependent(t *testing.T) {
	_, ts := startServer(t, testConfig(t, common.EngineMaple))

	expectStatus(t, http.MethodPut, ts.URL+"/books/one/k", `"one"`, http.StatusNoContent)
	expectStatus(t, http.MethodPut, ts.URL+"/books/two/k", `"two"`, http.StatusNoContent)
	expectStatus(t, http.MethodDelete, ts.URL+"/books/one", "", http.StatusNoContent)

	expectStatus(t, http.MethodHead, ts.URL+"/books/one/k", "", http.StatusNotFound)
	if got := expectStatus(t, http.MethodGet, ts.URL+"/books/two/k", "", http.StatusOK); strings.TrimSpace(got) != `"two"` {
		t.Errorf("unexpected value %s", got)
	}

	var names []string
	if err := json.Unmarshal([]byte(expectStatus(t, http.MethodGet, ts.URL+"/books", "", http.StatusOK)), &names); err != nil {
		t.Fatalf("failed to decode book list: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"one", "two"}) {
		t.Errorf("unexpected books %v", names)
	}
}

func TestConcurrentRequests(t *testing.T) {
	_, ts := startServer(t, testConfig(t, common.EngineMaple))

	var wg sync.WaitGroup
	errs := make(chan error, 200)
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				url := fmt.Sprintf("%s/books/c/%d-%d", ts.URL, g, i)
				req, _ := http.NewRequest(http.MethodPut, url, strings.NewReader(fmt.Sprint(i)))
				resp, err := http.DefaultClient.Do(req)
				if err != nil {
					errs <- err
					continue
				}
				resp.Body.Close()
				if resp.StatusCode != http.StatusNoContent {
					errs <- fmt.Errorf("PUT %s: status %d", url, resp.StatusCode)
				}
			}
		}(g)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	var info bookInfo
	if err := json.Unmarshal([]byte(expectStatus(t, http.MethodGet, ts.URL+"/books/c", "", http.StatusOK)), &info); err != nil {
		t.Fatalf("failed to decode info: %v", err)
	}
	if info.DB.Keys != 200 {
		t.Errorf("expected 200 keys, got %d", info.DB.Keys)
	}
}

func TestPersistentEngines(t *testing.T) {
	for _, engine := range []common.Engine{common.EngineSQLite, common.EnginePlainFile} {
		t.Run(string(engine), func(t *testing.T) {
			conf := testConfig(t, engine)

			s, err := newServer(conf)
			if err != nil {
				t.Fatalf("failed to create server: %v", err)
			}
			ts := httptest.NewServer(s.handler())
			expectStatus(t, http.MethodPut, ts.URL+"/books/notes/first", `{"text":"kept"}`, http.StatusNoContent)
			ts.Close()
			s.Close()

			// a second server on the same data directory sees the value
			_, ts2 := startServer(t, conf)
			got := expectStatus(t, http.MethodGet, ts2.URL+"/books/notes/first", "", http.StatusOK)
			if !reflect.DeepEqual(decodeJSON(t, got), decodeJSON(t, `{"text":"kept"}`)) {
				t.Errorf("unexpected value %s", got)
			}
		})
	}
}

func TestYAMLCodec(t *testing.T) {
	conf := testConfig(t, common.EngineMaple)
	conf.Book.Codec = "yaml"
	_, ts := startServer(t, conf)

	doc := `{"name":"yaml","list":[1,2]}`
	expectStatus(t, http.MethodPut, ts.URL+"/books/y/k", doc, http.StatusNoContent)
	got := expectStatus(t, http.MethodGet, ts.URL+"/books/y/k", "", http.StatusOK)
	if !reflect.DeepEqual(decodeJSON(t, got), decodeJSON(t, doc)) {
		t.Errorf("got %s, want %s", got, doc)
	}
}

func TestMetricsEndpoints(t *testing.T) {
	_, ts := startServer(t, testConfig(t, common.EngineMaple))

	expectStatus(t, http.MethodPut, ts.URL+"/books/m/k", `1`, http.StatusNoContent)
	expectStatus(t, http.MethodGet, ts.URL+"/books/m/k", "", http.StatusOK)
	expectStatus(t, http.MethodGet, ts.URL+"/books/m/missing", "", http.StatusNotFound)

	prom := expectStatus(t, http.MethodGet, ts.URL+"/metrics", "", http.StatusOK)
	for _, want := range []string{
		`paperkv_store_ops_total{book="m",op="set"} 1`,
		`paperkv_store_ops_total{book="m",op="get"} 2`,
		`paperkv_store_get_hits_total{book="m"} 1`,
		`paperkv_store_get_misses_total{book="m"} 1`,
	} {
		if !strings.Contains(prom, want) {
			t.Errorf("metrics do not contain %q", want)
		}
	}

	pools := expectStatus(t, http.MethodGet, ts.URL+"/debug/pools", "", http.StatusOK)
	var parsed map[string]any
	if err := json.Unmarshal([]byte(pools), &parsed); err != nil {
		t.Fatalf("pool metrics are not JSON: %v", err)
	}
	if _, ok := parsed["pool.m.submitted"]; !ok {
		t.Errorf("pool metrics lack pool.m.submitted: %s", pools)
	}
}

func TestNewServerRejectsConfig(t *testing.T) {
	t.Run("document codec", func(t *testing.T) {
		conf := testConfig(t, common.EngineMaple)
		conf.Book.Codec = "gob"
		if _, err := newServer(conf); err == nil {
			t.Errorf("expected gob to be rejected")
		}
	})

	t.Run("plainfile in cluster mode", func(t *testing.T) {
		conf := testConfig(t, common.EnginePlainFile)
		conf.Shards = map[string]uint64{"users": 100}
		if _, err := newServer(conf); err == nil {
			t.Errorf("expected plainfile to be rejected in cluster mode")
		}
	})
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unknown book", errBookNotFound, http.StatusNotFound},
		{"closed", book.ErrClosed, http.StatusServiceUnavailable},
		{"closed race", fmt.Errorf("%w: pool closed", book.ErrClosed), http.StatusServiceUnavailable},
		{"panic", &book.PanicError{Value: "boom"}, http.StatusInternalServerError},
		{"invalid", store.NewError(store.RetCInvalidOperation, "closed"), http.StatusBadRequest},
		{"unsupported", store.NewError(store.RetCUnsupportedOperation, "no"), http.StatusNotImplemented},
		{"serialization", store.WrapError(store.RetCSerializationError, "decode", errors.New("bad")), http.StatusUnprocessableEntity},
		{"io", store.WrapError(store.RetCIOError, "disk", errors.New("full")), http.StatusInternalServerError},
		{"other", errors.New("something"), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusOf(tt.err); got != tt.want {
				t.Errorf("statusOf(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestParseShards(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    map[string]uint64
		wantErr bool
	}{
		{"empty", "", nil, false},
		{"blank", "  ", nil, false},
		{"single", "users=100", map[string]uint64{"users": 100}, false},
		{"multiple", "users=100, orders = 200", map[string]uint64{"users": 100, "orders": 200}, false},
		{"missing id", "users", nil, true},
		{"bad id", "users=abc", nil, true},
		{"zero id", "users=0", nil, true},
		{"duplicate id", "a=1,b=1", nil, true},
		{"duplicate name", "a=1,a=2", nil, true},
		{"bad name", "a/b=1", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseShards(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseShards(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseShards(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
