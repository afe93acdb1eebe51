// Package filestore defines the storage backend capability the data store
// talks to.
//
// All providers (MinIO, AWS S3, in-memory) implement the Backend interface.
// Callers depend only on this package, never on a specific provider package.
//
// Usage:
//
//	import _ "github.com/koustreak/contentstore/internal/filestore/minio"
//
//	backend, err := filestore.Open(ctx, "minio", filestore.Options{
//	    AccessKey: "AKIA...",
//	    SecretKey: "...",
//	    Region:    "eu-west-1",
//	})
//	if err != nil { ... }
//
//	err = backend.PutObject(ctx, "media", "a/b.png", f, size, headers)
package filestore

import (
	"context"
	"io"
	"net/url"
	"time"
)

// Backend is the single interface all storage providers must implement.
// Errors are returned as *errs.Error; errs.IsConnectionFailed marks the
// transient, connection-level failures a caller may retry.
type Backend interface {
	// PutObject streams body to key inside bucket. size is -1 when unknown.
	// headers carries raw storage headers (Content-Type, x-amz-acl,
	// x-amz-meta-*, …) exactly as they should be sent.
	PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64, headers map[string]string) error

	// GetObject opens a streaming handle to the object at key inside bucket.
	// The caller MUST call Object.Close() after reading.
	GetObject(ctx context.Context, bucket, key string) (Object, error)

	// DeleteObject removes the object at key inside bucket.
	DeleteObject(ctx context.Context, bucket, key string) error

	// GetBucketLocation returns the region constraint of bucket.
	// A missing bucket is reported as a not-found error.
	GetBucketLocation(ctx context.Context, bucket string) (string, error)

	// CreateBucket creates bucket with the given location constraint.
	// An empty location means the provider default.
	CreateBucket(ctx context.Context, bucket, location string) error

	// PresignGetURL returns a time-limited HTTPS URL that allows anyone to
	// download the object until expiresAt. query holds extra parameters
	// (e.g. response-content-disposition) to sign into the URL.
	PresignGetURL(ctx context.Context, bucket, key string, expiresAt time.Time, query url.Values) (string, error)
}

// ClockSyncer is optionally implemented by providers that can check the
// local clock against the service before signing requests.
type ClockSyncer interface {
	SyncClock(ctx context.Context) error
}
