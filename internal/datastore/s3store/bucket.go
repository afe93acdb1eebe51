package s3store

import (
	"context"

	"github.com/koustreak/contentstore/internal/errs"
	"github.com/koustreak/contentstore/internal/filestore"
)

// BucketExists reports whether the configured bucket can be located.
func (s *Store) BucketExists(ctx context.Context) (bool, error) {
	err := s.withRetry(ctx, opBucketExists, func(b filestore.Backend) error {
		_, err := b.GetBucketLocation(ctx, s.cfg.BucketName)
		return err
	})
	if errs.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ensureBucketInitialized creates the bucket in the configured region if it
// does not exist. The check runs until it first succeeds.
func (s *Store) ensureBucketInitialized(ctx context.Context) error {
	s.bucketMu.Lock()
	defer s.bucketMu.Unlock()
	if s.bucketInitialized {
		return nil
	}

	exists, err := s.BucketExists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		err := s.withRetry(ctx, opCreateBucket, func(b filestore.Backend) error {
			return b.CreateBucket(ctx, s.cfg.BucketName, s.cfg.Region)
		})
		if err != nil {
			return err
		}
		s.log.InfoWith("created bucket", map[string]interface{}{
			"bucket": s.cfg.BucketName,
			"region": s.cfg.Region,
		})
	}
	s.bucketInitialized = true
	return nil
}
