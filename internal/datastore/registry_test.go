package datastore

import (
	"context"
	"errors"
	"testing"

	"github.com/koustreak/contentstore/internal/content"
	"github.com/koustreak/contentstore/internal/errs"
	"github.com/koustreak/contentstore/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStore struct {
	DataStore
	label string
}

func (s *stubStore) Write(context.Context, content.Content, WriteOptions) (string, error) {
	return s.label, nil
}

func TestOpen(t *testing.T) {
	Register("stub", func(_ context.Context, decode func(any) error, log *logger.Logger) (DataStore, error) {
		var opts struct{ Label string }
		if err := decode(&opts); err != nil {
			return nil, err
		}
		require.NotNil(t, log)
		return &stubStore{label: opts.Label}, nil
	})

	store, err := Open(context.Background(), "stub", func(v any) error {
		v.(*struct{ Label string }).Label = "configured"
		return nil
	}, logger.Nop())
	require.NoError(t, err)

	uid, err := store.Write(context.Background(), content.NewItem(nil, "", nil), WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, "configured", uid)
	assert.Contains(t, Registered(), "stub")
}

func TestOpen_NilDecodeAndLogger(t *testing.T) {
	Register("stub-defaults", func(_ context.Context, decode func(any) error, log *logger.Logger) (DataStore, error) {
		assert.NotNil(t, log)
		return &stubStore{}, decode(nil)
	})

	_, err := Open(context.Background(), "stub-defaults", nil, nil)
	assert.NoError(t, err)
}

func TestOpen_FactoryError(t *testing.T) {
	boom := errors.New("boom")
	Register("stub-broken", func(context.Context, func(any) error, *logger.Logger) (DataStore, error) {
		return nil, boom
	})

	_, err := Open(context.Background(), "stub-broken", nil, logger.Nop())
	assert.ErrorIs(t, err, boom)
}

func TestOpen_Unregistered(t *testing.T) {
	_, err := Open(context.Background(), "no-such-store", nil, logger.Nop())
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))
	assert.Contains(t, err.Error(), "no-such-store")
}
