package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/koustreak/contentstore/internal/config"
	"github.com/koustreak/contentstore/internal/datastore/s3store"
	"github.com/koustreak/contentstore/internal/errs"
	"github.com/koustreak/contentstore/internal/filestore"
	"github.com/koustreak/contentstore/internal/filestore/memory"
	"github.com/koustreak/contentstore/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T, cfg s3store.Config, opts ...Option) (http.Handler, *memory.Backend) {
	t.Helper()
	backend := memory.New()
	store, err := s3store.New(cfg,
		s3store.WithLogger(logger.Nop()),
		s3store.WithBackendFactory(func(context.Context, filestore.Options) (filestore.Backend, error) {
			return backend, nil
		}),
	)
	require.NoError(t, err)
	return New(config.ServerConfig{}, store, logger.Nop(), opts...).Handler(), backend
}

func testStoreConfig() s3store.Config {
	return s3store.Config{
		BucketName:      "test-bucket",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
	}
}

func objectPath(prefix, uid string) string {
	return (&url.URL{Path: prefix + uid}).EscapedPath()
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func postObject(t *testing.T, h http.Handler, name, meta string) writeResponse {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/objects?name="+url.QueryEscape(name), strings.NewReader("eggheads"))
	if meta != "" {
		req.Header.Set(MetaHeader, meta)
	}
	rr := serve(h, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var resp writeResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp
}

func TestWriteReadDestroy(t *testing.T) {
	h, _ := newTestHandler(t, testStoreConfig())

	created := postObject(t, h, "A Big Name.png", `{"potato":44}`)
	assert.True(t, strings.HasSuffix(created.UID, "/A Big Name.png"), created.UID)
	assert.Equal(t, "http://test-bucket.s3.amazonaws.com/"+created.UID, created.URL)

	rr := serve(h, httptest.NewRequest(http.MethodGet, objectPath("/objects/", created.UID), nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "eggheads", rr.Body.String())
	assert.JSONEq(t, `{"potato":44}`, rr.Header().Get(MetaHeader))

	rr = serve(h, httptest.NewRequest(http.MethodDelete, objectPath("/objects/", created.UID), nil))
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = serve(h, httptest.NewRequest(http.MethodGet, objectPath("/objects/", created.UID), nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestWrite_Path(t *testing.T) {
	h, backend := newTestHandler(t, testStoreConfig())

	req := httptest.NewRequest(http.MethodPost, "/objects?path=some/path/on/s3", strings.NewReader("x"))
	req.Header.Set("Content-Type", "text/plain")
	rr := serve(h, req)
	require.Equal(t, http.StatusCreated, rr.Code)

	var resp writeResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "some/path/on/s3", resp.UID)

	_, header, ok := backend.Stored("test-bucket", "some/path/on/s3")
	require.True(t, ok)
	assert.Equal(t, "text/plain", header.Get("Content-Type"))
}

func TestWrite_BadMeta(t *testing.T) {
	h, backend := newTestHandler(t, testStoreConfig())

	req := httptest.NewRequest(http.MethodPost, "/objects?name=a.txt", strings.NewReader("x"))
	req.Header.Set(MetaHeader, `{"nested":{"no":1}}`)
	rr := serve(h, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, backend.CallsTo(memory.OpPut))
}

func TestWrite_NotConfigured(t *testing.T) {
	h, _ := newTestHandler(t, s3store.Config{BucketName: "test-bucket"})

	rr := serve(h, httptest.NewRequest(http.MethodPost, "/objects?name=a.txt", strings.NewReader("x")))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "access_key_id")
}

func TestRead_Absent(t *testing.T) {
	h, backend := newTestHandler(t, testStoreConfig())
	backend.AddBucket("test-bucket", "")

	rr := serve(h, httptest.NewRequest(http.MethodGet, "/objects/2011/05/03/nothing", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRead_BackendFailure(t *testing.T) {
	h, backend := newTestHandler(t, testStoreConfig())
	transient := errs.New(errs.ErrKindConnectionFailed, "connection reset by peer")
	backend.FailNext(memory.OpGet, transient)
	backend.FailNext(memory.OpGet, transient)

	rr := serve(h, httptest.NewRequest(http.MethodGet, "/objects/x", nil))
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestURL(t *testing.T) {
	h, _ := newTestHandler(t, testStoreConfig())

	tests := []struct {
		name   string
		target string
		status int
		prefix string
	}{
		{"public", "/urls/some/path", http.StatusOK, "http://test-bucket.s3.amazonaws.com/some/path"},
		{"host override", "/urls/some/path?host=cdn.example.com&scheme=https", http.StatusOK, "https://cdn.example.com/some/path"},
		{"expiring", "/urls/some/path?expires=" + strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10), http.StatusOK, "https://test-bucket.s3.amazonaws.com/some/path?"},
		{"bad expires", "/urls/some/path?expires=tomorrow", http.StatusBadRequest, ""},
		{"past expires", "/urls/some/path?expires=1", http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(h, httptest.NewRequest(http.MethodGet, tt.target, nil))
			require.Equal(t, tt.status, rr.Code, rr.Body.String())
			if tt.prefix == "" {
				return
			}
			var resp urlResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.True(t, strings.HasPrefix(resp.URL, tt.prefix), resp.URL)
		})
	}
}

func TestWildcardUID_Empty(t *testing.T) {
	h, _ := newTestHandler(t, testStoreConfig())

	rr := serve(h, httptest.NewRequest(http.MethodDelete, "/objects/", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	backend := memory.New()
	store, err := s3store.New(testStoreConfig(),
		s3store.WithLogger(logger.Nop()),
		s3store.WithMetrics(reg),
		s3store.WithBackendFactory(func(context.Context, filestore.Options) (filestore.Backend, error) {
			return backend, nil
		}),
	)
	require.NoError(t, err)
	h := New(config.ServerConfig{}, store, logger.Nop(), WithMetrics(reg)).Handler()

	postObject(t, h, "egg.png", "")

	rr := serve(h, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "contentstore_s3store_operations_total")
}

func TestMetricsEndpoint_Disabled(t *testing.T) {
	h, _ := newTestHandler(t, testStoreConfig())

	rr := serve(h, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAccessLog(t *testing.T) {
	buf := &bytes.Buffer{}
	log := logger.New(&logger.Config{Level: "info", Format: "json", Output: buf})
	store, err := s3store.New(testStoreConfig(), s3store.WithLogger(logger.Nop()))
	require.NoError(t, err)
	h := New(config.ServerConfig{}, store, log).Handler()

	rr := serve(h, httptest.NewRequest(http.MethodDelete, "/objects/", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	var entry map[string]interface{}
	require.NoError(t, json.NewDecoder(io.LimitReader(buf, 1<<16)).Decode(&entry))
	assert.Equal(t, "http request", entry["message"])
	assert.Equal(t, "DELETE", entry["method"])
	assert.Equal(t, float64(http.StatusBadRequest), entry["status"])
	assert.NotEmpty(t, entry["request_id"])
}
