package gcs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

type uploadRecorder struct {
	mu     sync.Mutex
	paths  []string
	names  []string
	bodies []string
}

func newTestStore(t *testing.T, handler http.Handler) *BlobStore {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	store, err := Open(context.Background(), Config{Bucket: "test-bucket"},
		option.WithEndpoint(server.URL+"/storage/v1/"),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)
}

func TestPutObjectUploads(t *testing.T) {
	t.Parallel()

	rec := &uploadRecorder{}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		rec.mu.Lock()
		rec.paths = append(rec.paths, r.URL.Path)
		rec.names = append(rec.names, r.URL.Query().Get("name"))
		rec.bodies = append(rec.bodies, string(body))
		rec.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"bucket":"test-bucket","name":%q}`, r.URL.Query().Get("name"))
	})
	store := newTestStore(t, handler)

	uri, err := store.PutObject(context.Background(), "reports/2025-01-02/run-1.json", "application/json",
		bytes.NewReader([]byte(`{"run_id":"run-1"}`)))
	require.NoError(t, err)
	require.Equal(t, "gs://test-bucket/reports/2025-01-02/run-1.json", uri)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.paths, 1)
	require.Contains(t, rec.paths[0], "/b/test-bucket/o")
	require.Equal(t, "reports/2025-01-02/run-1.json", rec.names[0])
	require.Contains(t, rec.bodies[0], `{"run_id":"run-1"}`)
	require.Contains(t, rec.bodies[0], "application/json")
}

func TestPutObjectServerError(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	store := newTestStore(t, handler)

	_, err := store.PutObject(context.Background(), "reports/run.json", "", bytes.NewReader([]byte("x")))
	require.Error(t, err)
}

func TestPutObjectRequiresPath(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, http.NotFoundHandler())
	_, err := store.PutObject(context.Background(), " ", "", bytes.NewReader(nil))
	require.Error(t, err)
}
