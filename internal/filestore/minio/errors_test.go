package minio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"testing"

	"github.com/koustreak/contentstore/internal/errs"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind errs.ErrKind
	}{
		{"no such key", miniogo.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound}, errs.ErrKindNotFound},
		{"no such bucket", miniogo.ErrorResponse{Code: "NoSuchBucket"}, errs.ErrKindNotFound},
		{"bare 404", miniogo.ErrorResponse{StatusCode: http.StatusNotFound}, errs.ErrKindNotFound},
		{"access denied", miniogo.ErrorResponse{Code: "AccessDenied", StatusCode: http.StatusForbidden}, errs.ErrKindPermissionDenied},
		{"conflict", miniogo.ErrorResponse{Code: "OperationAborted", StatusCode: http.StatusConflict}, errs.ErrKindConflict},
		{"bare 409", miniogo.ErrorResponse{StatusCode: http.StatusConflict}, errs.ErrKindConflict},
		{"server error", miniogo.ErrorResponse{Code: "InternalError", StatusCode: http.StatusInternalServerError}, errs.ErrKindQueryFailed},
		{"deadline", fmt.Errorf("wrapped: %w", context.DeadlineExceeded), errs.ErrKindTimeout},
		{"eof", &url.Error{Op: "Put", URL: "https://s3.amazonaws.com", Err: io.EOF}, errs.ErrKindConnectionFailed},
		{"reset", &net.OpError{Op: "read", Net: "tcp", Err: syscall.ECONNRESET}, errs.ErrKindConnectionFailed},
		{"other", errors.New("boom"), errs.ErrKindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.err, "op failed")
			assert.Equal(t, tt.kind, got.Kind)
			assert.ErrorIs(t, got, tt.err)
		})
	}

	assert.Nil(t, mapError(nil, "nothing"))
}

func TestPutOptions(t *testing.T) {
	opts, err := putOptions(map[string]string{
		"Content-Type":    "image/png",
		"Cache-Control":   "max-age=60",
		"x-amz-acl":       "public-read",
		"x-amz-meta-json": `{"a":"b"}`,
	})
	assert.NoError(t, err)
	assert.Equal(t, "image/png", opts.ContentType)
	assert.Equal(t, "max-age=60", opts.CacheControl)
	assert.Equal(t, map[string]string{
		"x-amz-acl":       "public-read",
		"x-amz-meta-json": `{"a":"b"}`,
	}, opts.UserMetadata)

	_, err = putOptions(map[string]string{"Expires": "not a date"})
	assert.True(t, errs.IsInvalidInput(err))
}

func TestNew_BucketLookup(t *testing.T) {
	_, err := New(context.Background(), optsWith(map[string]any{"bucket_lookup": "sideways"}))
	assert.True(t, errs.IsInvalidInput(err))

	d, err := New(context.Background(), optsWith(map[string]any{"endpoint": "localhost:9000", "secure": false, "bucket_lookup": "path"}))
	assert.NoError(t, err)
	assert.Equal(t, "localhost:9000", d.endpoint)
	assert.False(t, d.secure)
}
