package minio

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/koustreak/contentstore/internal/errs"
	"github.com/koustreak/contentstore/internal/filestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func optsWith(extra map[string]any) filestore.Options {
	return filestore.Options{AccessKey: "XXXXXXXXX", SecretKey: "XXXXXXXXX", Extra: extra}
}

func newTestDriver(t *testing.T, handler http.HandlerFunc) *Driver {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	d, err := New(context.Background(), optsWith(map[string]any{
		"endpoint": strings.TrimPrefix(srv.URL, "http://"),
		"secure":   false,
	}))
	require.NoError(t, err)
	return d
}

func TestSyncClock(t *testing.T) {
	d := newTestDriver(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	require.NoError(t, d.SyncClock(context.Background()))
	assert.Less(t, d.ClockSkew().Abs(), time.Minute)
}

func TestSyncClock_TooSkewed(t *testing.T) {
	d := newTestDriver(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Date", time.Now().Add(-2*time.Hour).UTC().Format(http.TimeFormat))
		w.WriteHeader(http.StatusForbidden)
	})

	err := d.SyncClock(context.Background())
	assert.True(t, errs.IsInvalidInput(err))
}

func TestSyncClock_Unreachable(t *testing.T) {
	d := newTestDriver(t, func(w http.ResponseWriter, r *http.Request) {})
	d.endpoint = "127.0.0.1:1"

	err := d.SyncClock(context.Background())
	assert.True(t, errs.IsConnectionFailed(err))
}

func TestPresignGetURL_PastExpiry(t *testing.T) {
	d := newTestDriver(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := d.PresignGetURL(context.Background(), "media", "a/b", time.Now().Add(-time.Minute), nil)
	assert.True(t, errs.IsInvalidInput(err))
}

func TestPresignGetURL(t *testing.T) {
	d := newTestDriver(t, func(w http.ResponseWriter, r *http.Request) {})
	d2, err := New(context.Background(), filestore.Options{
		AccessKey: "XXXXXXXXX",
		SecretKey: "XXXXXXXXX",
		Region:    "eu-west-1",
		Extra:     map[string]any{"endpoint": d.endpoint, "secure": false, "bucket_lookup": "path"},
	})
	require.NoError(t, err)

	u, err := d2.PresignGetURL(context.Background(), "media", "some/path/on/s3", time.Now().Add(time.Hour), nil)
	require.NoError(t, err)
	assert.Contains(t, u, "/media/some/path/on/s3?")
	assert.Contains(t, u, "X-Amz-Expires=")
}
