package filestore

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/koustreak/contentstore/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions_Extra(t *testing.T) {
	opts := Options{Extra: map[string]any{
		"endpoint": "localhost:9000",
		"secure":   false,
		"empty":    "",
		"wrong":    42,
	}}

	assert.Equal(t, "localhost:9000", opts.String("endpoint", "s3.amazonaws.com"))
	assert.Equal(t, "fallback", opts.String("empty", "fallback"))
	assert.Equal(t, "fallback", opts.String("wrong", "fallback"))
	assert.False(t, opts.Bool("secure", true))
	assert.True(t, Options{}.Bool("secure", true))
}

func TestOpen_Unregistered(t *testing.T) {
	_, err := Open(context.Background(), "does-not-exist", Options{})
	assert.True(t, errs.IsInvalidInput(err))
}

func TestRegisterProvider(t *testing.T) {
	var got Options
	RegisterProvider("test-provider", func(_ context.Context, opts Options) (Backend, error) {
		got = opts
		return nil, nil
	})

	_, err := Open(context.Background(), "test-provider", Options{Region: "eu-west-1"})
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", got.Region)
	assert.Contains(t, Providers(), "test-provider")
}

func TestNewObject(t *testing.T) {
	obj := NewObject(io.NopCloser(strings.NewReader("body")), HeaderFrom(map[string]string{
		"x-amz-meta-json": `{"a":1}`,
	}))

	assert.Equal(t, `{"a":1}`, obj.Header().Get("X-Amz-Meta-Json"))
	data, err := io.ReadAll(obj)
	require.NoError(t, err)
	assert.Equal(t, "body", string(data))

	assert.NotNil(t, NewObject(io.NopCloser(strings.NewReader("")), nil).Header())
}
