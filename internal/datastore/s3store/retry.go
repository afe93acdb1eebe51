package s3store

import (
	"context"
	"io"

	"github.com/koustreak/contentstore/internal/errs"
	"github.com/koustreak/contentstore/internal/filestore"
)

// withRetry runs fn against the current client. If building the client or
// fn fails with a connection error the client is discarded and fn runs once
// more against a freshly built one. The second outcome is final.
func (s *Store) withRetry(ctx context.Context, op string, fn func(filestore.Backend) error) error {
	b, err := s.backend(ctx)
	if err == nil {
		err = fn(b)
	}
	if !errs.IsConnectionFailed(err) {
		return err
	}

	s.log.DebugWith("retrying after connection failure", map[string]interface{}{
		"operation": op,
		"bucket":    s.cfg.BucketName,
		"error":     err.Error(),
	})
	s.metrics.recordRetry(op)
	if b != nil {
		s.dropBackend(b)
	}

	if b, err = s.backend(ctx); err != nil {
		return err
	}
	return fn(b)
}

// backend returns the cached client, building it on first use.
func (s *Store) backend(ctx context.Context) (filestore.Backend, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}

	b, err := s.newBackend(ctx, filestore.Options{
		AccessKey:     s.cfg.AccessKeyID,
		SecretKey:     s.cfg.SecretAccessKey,
		Region:        s.cfg.Region,
		UseIAMProfile: s.cfg.UseIAMProfile,
		Extra:         s.cfg.BackendOptions,
	})
	if err != nil {
		return nil, err
	}
	if syncer, ok := b.(filestore.ClockSyncer); ok && s.cfg.syncClock() {
		if err := syncer.SyncClock(ctx); err != nil {
			closeBackend(b)
			return nil, err
		}
	}

	s.log.InfoWith("storage client ready", map[string]interface{}{
		"provider": s.cfg.Provider,
		"bucket":   s.cfg.BucketName,
		"region":   s.cfg.Region,
	})
	s.client = b
	return b, nil
}

// dropBackend forgets failed if it is still the cached client.
func (s *Store) dropBackend(failed filestore.Backend) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == failed {
		closeBackend(s.client)
		s.client = nil
	}
}

func closeBackend(b filestore.Backend) {
	if c, ok := b.(io.Closer); ok {
		_ = c.Close()
	}
}
