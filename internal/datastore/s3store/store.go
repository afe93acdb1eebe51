// Package s3store is a datastore.DataStore backed by an S3 bucket.
//
// The store talks to S3 through a filestore.Backend chosen by
// Config.Provider. It creates the bucket on first write, retries once on
// connection failures and keeps item metadata in an x-amz-meta header.
//
// Usage:
//
//	store, err := s3store.New(s3store.Config{
//	    BucketName:      "assets",
//	    AccessKeyID:     key,
//	    SecretAccessKey: secret,
//	    Region:          "eu-west-1",
//	}, s3store.WithLogger(log))
//
//	uid, err := store.Write(ctx, content.NewItem(data, "egg.png", nil), datastore.WriteOptions{})
//	rec, ok, err := store.Read(ctx, uid)
package s3store

import (
	"context"
	"errors"
	"io"
	"maps"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/koustreak/contentstore/internal/content"
	"github.com/koustreak/contentstore/internal/datastore"
	"github.com/koustreak/contentstore/internal/errs"
	"github.com/koustreak/contentstore/internal/filestore"
	"github.com/koustreak/contentstore/internal/logger"
)

const (
	opWrite        = "write"
	opRead         = "read"
	opDestroy      = "destroy"
	opURLFor       = "url_for"
	opBucketExists = "bucket_exists"
	opCreateBucket = "create_bucket"
)

// Store is an S3-backed data store. It is safe for concurrent use.
type Store struct {
	cfg        Config
	log        *logger.Logger
	metrics    *storeMetrics
	newBackend filestore.Factory
	now        func() time.Time
	registerer prometheus.Registerer

	mu         sync.Mutex
	client     filestore.Backend
	configured bool

	bucketMu          sync.Mutex
	bucketInitialized bool
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. The default is logger.Global().
func WithLogger(l *logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics registers store metrics with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(s *Store) {
		s.registerer = reg
	}
}

// WithBackendFactory replaces the provider lookup with f. Every client the
// store builds, including rebuilds after a connection failure, comes from f.
func WithBackendFactory(f filestore.Factory) Option {
	return func(s *Store) {
		s.newBackend = f
	}
}

// WithClock sets the time source used for generated uids.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a store. Required settings are checked on first use, not here.
func New(cfg Config, opts ...Option) (*Store, error) {
	cfg.ApplyDefaults()
	s := &Store{
		cfg: cfg,
		log: logger.Global(),
		now: time.Now,
	}
	s.newBackend = func(ctx context.Context, o filestore.Options) (filestore.Backend, error) {
		return filestore.Open(ctx, s.cfg.Provider, o)
	}
	for _, opt := range opts {
		opt(s)
	}

	m, err := newStoreMetrics(s.registerer, cfg.BucketName)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to register s3store metrics", err)
	}
	s.metrics = m
	return s, nil
}

// Config returns the effective configuration.
func (s *Store) Config() Config {
	return s.cfg
}

// Write stores c under a new uid, or under opts.Path when given.
func (s *Store) Write(ctx context.Context, c content.Content, opts datastore.WriteOptions) (uid string, err error) {
	defer func(start time.Time) { s.metrics.recordOperation(opWrite, start, err) }(time.Now())

	if err := s.ensureConfigured(); err != nil {
		return "", err
	}
	if err := s.ensureBucketInitialized(ctx); err != nil {
		return "", err
	}

	headers := map[string]string{"Content-Type": c.ContentType()}
	maps.Copy(headers, opts.Headers)
	full, err := s.storageHeaders(headers, c.Metadata())
	if err != nil {
		return "", err
	}

	uid = opts.Path
	if uid == "" {
		uid = s.generateUID(c.Filename())
	}
	key := s.storageKey(uid)

	err = s.withRetry(ctx, opWrite, func(b filestore.Backend) error {
		body, err := c.Open()
		if err != nil {
			return errs.Wrap(errs.ErrKindInvalidInput, "failed to open content", err)
		}
		defer body.Close()
		return b.PutObject(ctx, s.cfg.BucketName, key, body, c.Size(), full)
	})
	if err != nil {
		return "", err
	}
	return uid, nil
}

// Read fetches the item stored under uid. A missing item yields ok == false
// and a nil error.
func (s *Store) Read(ctx context.Context, uid string) (rec *datastore.Record, ok bool, err error) {
	defer func(start time.Time) { s.metrics.recordOperation(opRead, start, err) }(time.Now())

	if err := s.ensureConfigured(); err != nil {
		return nil, false, err
	}

	key := s.storageKey(uid)
	var (
		data   []byte
		header http.Header
	)
	err = s.withRetry(ctx, opRead, func(b filestore.Backend) error {
		obj, err := b.GetObject(ctx, s.cfg.BucketName, key)
		if err != nil {
			return err
		}
		defer obj.Close()

		d, err := io.ReadAll(obj)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return errs.Wrap(errs.ErrKindTimeout, "object body read interrupted", err)
			}
			return errs.Wrap(errs.ErrKindConnectionFailed, "failed to read object body", err)
		}
		data, header = d, obj.Header()
		return nil
	})
	if errs.IsNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	meta, err := headersToMeta(header)
	if err != nil {
		return nil, false, err
	}
	return &datastore.Record{Data: data, Meta: meta}, true, nil
}

// Destroy deletes the item stored under uid. Not-found and conflict
// responses are logged and swallowed.
func (s *Store) Destroy(ctx context.Context, uid string) (err error) {
	defer func(start time.Time) { s.metrics.recordOperation(opDestroy, start, err) }(time.Now())

	if err := s.ensureConfigured(); err != nil {
		return err
	}

	err = s.withRetry(ctx, opDestroy, func(b filestore.Backend) error {
		return b.DeleteObject(ctx, s.cfg.BucketName, s.storageKey(uid))
	})
	if errs.IsNotFound(err) || errs.IsConflict(err) {
		s.log.WarnWith("s3 data store destroy error", err, map[string]interface{}{
			"uid":    uid,
			"bucket": s.cfg.BucketName,
		})
		return nil
	}
	return err
}

// URLFor returns a public URL for uid, or a signed one when opts.Expires is
// set. Public URLs are built locally and need no configuration.
func (s *Store) URLFor(ctx context.Context, uid string, opts datastore.URLOptions) (u string, err error) {
	if opts.Expires.IsZero() {
		return s.publicURL(uid, opts), nil
	}

	defer func(start time.Time) { s.metrics.recordOperation(opURLFor, start, err) }(time.Now())
	if err := s.ensureConfigured(); err != nil {
		return "", err
	}

	key := s.storageKey(uid)
	err = s.withRetry(ctx, opURLFor, func(b filestore.Backend) error {
		var err error
		u, err = b.PresignGetURL(ctx, s.cfg.BucketName, key, opts.Expires, opts.Query)
		return err
	})
	if err != nil {
		return "", err
	}
	return u, nil
}

func (s *Store) publicURL(uid string, opts datastore.URLOptions) string {
	scheme := firstNonEmpty(opts.Scheme, s.cfg.URLScheme, DefaultURLScheme)
	host := firstNonEmpty(opts.Host, s.cfg.URLHost)
	if host == "" {
		if subdomainPattern.MatchString(s.cfg.BucketName) {
			host = s.cfg.BucketName + "." + defaultDomain
		} else {
			host = defaultDomain + "/" + s.cfg.BucketName
		}
	}
	return scheme + "://" + host + "/" + s.storageKey(uid)
}

// Domain returns the service host for the configured region.
func (s *Store) Domain() (string, error) {
	return Domain(s.cfg.Region)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// ensureConfigured fails with a not-configured error naming the first
// missing setting. Success is remembered.
func (s *Store) ensureConfigured() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.configured {
		return nil
	}
	if field := s.cfg.missingField(); field != "" {
		return errs.Newf(errs.ErrKindNotConfigured, "you need to configure the s3 data store with %s", field)
	}
	s.configured = true
	return nil
}

// compile-time check
var _ datastore.DataStore = (*Store)(nil)
