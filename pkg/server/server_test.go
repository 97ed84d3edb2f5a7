package server

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adfharrison1/go-indexdb/pkg/documents"
	"github.com/adfharrison1/go-indexdb/pkg/indexing"
	"github.com/adfharrison1/go-indexdb/pkg/storage/memory"
)

func newTestServer(t *testing.T) (*Server, *prometheus.Registry) {
	t.Helper()
	sm, err := memory.New()
	require.NoError(t, err)
	t.Cleanup(func() { sm.Close() })

	reg := prometheus.NewRegistry()
	service := documents.NewService(sm, documents.WithMetrics(indexing.NewMetrics(reg)))
	return NewServer(service, reg), reg
}

func TestServer_RoutesAndMetrics(t *testing.T) {
	srv, reg := newTestServer(t)
	router := srv.Router()

	req := httptest.NewRequest("PUT", "/stores/people", bytes.NewBufferString(`{"indexes":[{"name":"age","field":"age"}]}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	req = httptest.NewRequest("POST", "/stores/people/documents", bytes.NewBufferString(`{"_id":"a","age":3}`))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	assert.Equal(t, 2, testutil.CollectAndCount(srv.duration))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `indexdb_http_request_duration_seconds_count{code="201",method="POST",route="/stores/{store}/documents"} 1`)
	assert.Contains(t, body, `indexdb_index_writes_total{collection="people/age",op="add"} 1`)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestServer_RequestID(t *testing.T) {
	srv, _ := newTestServer(t)

	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, w.Header().Get(RequestIDHeader), 36)

	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set(RequestIDHeader, "caller-id")
	w = httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	assert.Equal(t, "caller-id", w.Header().Get(RequestIDHeader))
}

func TestServer_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest("GET", "/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "no route for GET /nowhere"))
}
