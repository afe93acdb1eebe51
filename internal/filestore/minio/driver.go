// Package minio provides a MinIO (minio-go) implementation of filestore.Backend.
// It talks to AWS S3 by default and to any S3-compatible service when the
// "endpoint" extra option is set.
//
// Usage:
//
//	backend, err := minio.New(ctx, filestore.Options{
//	    AccessKey: "minioadmin",
//	    SecretKey: "minioadmin",
//	    Extra:     map[string]any{"endpoint": "localhost:9000", "secure": false},
//	})
package minio

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/koustreak/contentstore/internal/errs"
	"github.com/koustreak/contentstore/internal/filestore"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	// Provider is the name the driver registers under.
	Provider = "minio"

	// DefaultEndpoint is used when no "endpoint" extra option is given.
	DefaultEndpoint = "s3.amazonaws.com"

	// MaxClockSkew is the largest clock difference S3 accepts on signed requests.
	MaxClockSkew = 15 * time.Minute
)

func init() {
	filestore.RegisterProvider(Provider, func(ctx context.Context, opts filestore.Options) (filestore.Backend, error) {
		return New(ctx, opts)
	})
}

// Driver is a MinIO implementation of filestore.Backend.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	client   *miniogo.Client
	endpoint string
	secure   bool
	http     *http.Client
	skew     time.Duration
}

// New builds a minio-go client from opts. No request is made; use SyncClock
// to probe the service.
//
// Recognised extra options: "endpoint" (string), "secure" (bool, default
// true), "bucket_lookup" ("auto", "dns" or "path").
func New(_ context.Context, opts filestore.Options) (*Driver, error) {
	lookup, err := parseBucketLookup(opts.String("bucket_lookup", "auto"))
	if err != nil {
		return nil, err
	}

	creds := credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, "")
	if opts.UseIAMProfile {
		creds = credentials.NewIAM("")
	}

	endpoint := opts.String("endpoint", DefaultEndpoint)
	secure := opts.Bool("secure", true)

	client, err := miniogo.New(endpoint, &miniogo.Options{
		Creds:        creds,
		Secure:       secure,
		Region:       opts.Region,
		BucketLookup: lookup,
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to create minio client", err)
	}

	return &Driver{
		client:   client,
		endpoint: endpoint,
		secure:   secure,
		http:     &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// --- filestore.Backend implementation ---

// PutObject uploads body to key inside bucket with the given headers.
func (d *Driver) PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64, headers map[string]string) error {
	opts, err := putOptions(headers)
	if err != nil {
		return err
	}
	if _, err := d.client.PutObject(ctx, bucket, key, body, size, opts); err != nil {
		return mapError(err, "failed to put object")
	}
	return nil
}

// GetObject opens a streaming handle to the object at key inside bucket.
// The caller MUST call Object.Close() after reading.
func (d *Driver) GetObject(ctx context.Context, bucket, key string) (filestore.Object, error) {
	obj, err := d.client.GetObject(ctx, bucket, key, miniogo.GetObjectOptions{})
	if err != nil {
		return nil, mapError(err, "failed to get object")
	}

	// GetObject is lazy; Stat performs the request and surfaces NoSuchKey.
	stat, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, mapError(err, "failed to stat object after get")
	}

	header := stat.Metadata.Clone()
	if header == nil {
		header = http.Header{}
	}
	if stat.ContentType != "" {
		header.Set("Content-Type", stat.ContentType)
	}
	return filestore.NewObject(obj, header), nil
}

// DeleteObject removes the object at key inside bucket.
func (d *Driver) DeleteObject(ctx context.Context, bucket, key string) error {
	if err := d.client.RemoveObject(ctx, bucket, key, miniogo.RemoveObjectOptions{}); err != nil {
		return mapError(err, "failed to delete object")
	}
	return nil
}

// GetBucketLocation returns the region bucket lives in.
func (d *Driver) GetBucketLocation(ctx context.Context, bucket string) (string, error) {
	loc, err := d.client.GetBucketLocation(ctx, bucket)
	if err != nil {
		return "", mapError(err, "failed to get bucket location")
	}
	return loc, nil
}

// CreateBucket creates bucket in location.
func (d *Driver) CreateBucket(ctx context.Context, bucket, location string) error {
	err := d.client.MakeBucket(ctx, bucket, miniogo.MakeBucketOptions{Region: location})
	if err != nil {
		// Another writer won the race; the bucket is ours either way.
		if miniogo.ToErrorResponse(err).Code == "BucketAlreadyOwnedByYou" {
			return nil
		}
		return mapError(err, "failed to create bucket")
	}
	return nil
}

// PresignGetURL returns a time-limited public download URL for the object.
func (d *Driver) PresignGetURL(ctx context.Context, bucket, key string, expiresAt time.Time, query url.Values) (string, error) {
	ttl := time.Until(expiresAt)
	if ttl < time.Second {
		return "", errs.Newf(errs.ErrKindInvalidInput, "presign expiry %s is in the past", expiresAt.UTC().Format(time.RFC3339))
	}
	u, err := d.client.PresignedGetObject(ctx, bucket, key, ttl, query)
	if err != nil {
		return "", mapError(err, "failed to generate presigned URL")
	}
	return u.String(), nil
}

// SyncClock measures the difference between the local clock and the
// service's Date header. Signed requests fail once the skew exceeds
// MaxClockSkew, so that case is reported up front.
func (d *Driver) SyncClock(ctx context.Context) error {
	scheme := "http"
	if d.secure {
		scheme = "https"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, scheme+"://"+d.endpoint+"/", nil)
	if err != nil {
		return errs.Wrap(errs.ErrKindInvalidInput, "failed to build clock probe", err)
	}

	before := time.Now()
	resp, err := d.http.Do(req)
	if err != nil {
		return mapError(err, "clock probe failed")
	}
	resp.Body.Close()

	date, err := http.ParseTime(resp.Header.Get("Date"))
	if err != nil {
		// Nothing to compare against; some S3-compatible services omit Date.
		return nil
	}

	d.skew = date.Sub(before)
	if d.skew > MaxClockSkew || d.skew < -MaxClockSkew {
		return errs.Newf(errs.ErrKindInvalidInput, "local clock differs from %s by %s", d.endpoint, d.skew)
	}
	return nil
}

// ClockSkew returns the skew measured by the last SyncClock call.
func (d *Driver) ClockSkew() time.Duration {
	return d.skew
}

// --- internal helpers ---

// putOptions splits raw headers into the typed fields minio-go expects.
// Everything else (x-amz-acl, x-amz-meta-*, …) travels as user metadata,
// which minio-go sends verbatim for x-amz-* keys.
func putOptions(headers map[string]string) (miniogo.PutObjectOptions, error) {
	opts := miniogo.PutObjectOptions{UserMetadata: make(map[string]string, len(headers))}
	for k, v := range headers {
		switch strings.ToLower(k) {
		case "content-type":
			opts.ContentType = v
		case "content-encoding":
			opts.ContentEncoding = v
		case "content-disposition":
			opts.ContentDisposition = v
		case "content-language":
			opts.ContentLanguage = v
		case "cache-control":
			opts.CacheControl = v
		case "x-amz-storage-class":
			opts.StorageClass = v
		case "expires":
			t, err := http.ParseTime(v)
			if err != nil {
				return opts, errs.Wrap(errs.ErrKindInvalidInput, "invalid Expires header", err)
			}
			opts.Expires = t
		default:
			opts.UserMetadata[k] = v
		}
	}
	return opts, nil
}

func parseBucketLookup(s string) (miniogo.BucketLookupType, error) {
	switch s {
	case "auto":
		return miniogo.BucketLookupAuto, nil
	case "dns":
		return miniogo.BucketLookupDNS, nil
	case "path":
		return miniogo.BucketLookupPath, nil
	default:
		return miniogo.BucketLookupAuto, errs.Newf(errs.ErrKindInvalidInput, "unknown bucket_lookup %q", s)
	}
}

// compile-time checks
var (
	_ filestore.Backend     = (*Driver)(nil)
	_ filestore.ClockSyncer = (*Driver)(nil)
)
