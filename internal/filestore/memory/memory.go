// Package memory provides an in-process filestore.Backend. It keeps objects
// in maps, records every call and can be told to fail upcoming calls, which
// makes it the test double for everything built on filestore.
package memory

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/koustreak/contentstore/internal/errs"
	"github.com/koustreak/contentstore/internal/filestore"
)

// Provider is the name the backend registers under.
const Provider = "memory"

// Op names a Backend method for call recording and fault injection.
type Op string

const (
	OpPut       Op = "put_object"
	OpGet       Op = "get_object"
	OpDelete    Op = "delete_object"
	OpLocation  Op = "get_bucket_location"
	OpCreate    Op = "create_bucket"
	OpPresign   Op = "presign_get_url"
	OpClockSync Op = "sync_clock"
)

const defaultDomain = "s3.amazonaws.com"

// shared is handed out by the registered provider so that every client the
// data store builds (including rebuilds after a transient failure) sees the
// same objects.
var shared = New()

func init() {
	filestore.RegisterProvider(Provider, func(_ context.Context, _ filestore.Options) (filestore.Backend, error) {
		return shared, nil
	})
}

// Shared returns the instance used by the registered "memory" provider.
func Shared() *Backend {
	return shared
}

// Call is one recorded Backend invocation.
type Call struct {
	Op       Op
	Bucket   string
	Key      string
	Location string
	Headers  map[string]string
}

type object struct {
	data   []byte
	header http.Header
}

// Backend is an in-memory filestore.Backend. It is safe for concurrent use.
type Backend struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	faults  map[Op][]error
	calls   []Call
}

type bucket struct {
	location string
	objects  map[string]object
}

// New returns an empty backend.
func New() *Backend {
	return &Backend{
		buckets: make(map[string]*bucket),
		faults:  make(map[Op][]error),
	}
}

// FailNext queues err to be returned by the next call to op. Queued errors
// are consumed in order, one per call.
func (b *Backend) FailNext(op Op, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.faults[op] = append(b.faults[op], err)
}

// Calls returns the recorded calls, oldest first.
func (b *Backend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Call(nil), b.calls...)
}

// CallsTo returns the recorded calls to op.
func (b *Backend) CallsTo(op Op) []Call {
	var out []Call
	for _, c := range b.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Reset drops all buckets, faults and recorded calls.
func (b *Backend) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buckets = make(map[string]*bucket)
	b.faults = make(map[Op][]error)
	b.calls = nil
}

// AddBucket creates bucket without recording a call.
func (b *Backend) AddBucket(name, location string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.buckets[name]; !ok {
		b.buckets[name] = &bucket{location: location, objects: make(map[string]object)}
	}
}

// HasBucket reports whether bucket exists.
func (b *Backend) HasBucket(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.buckets[name]
	return ok
}

// Stored returns a copy of the raw object at key inside bucket.
func (b *Backend) Stored(bucketName, key string) ([]byte, http.Header, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bk, ok := b.buckets[bucketName]
	if !ok {
		return nil, nil, false
	}
	obj, ok := bk.objects[key]
	if !ok {
		return nil, nil, false
	}
	return bytes.Clone(obj.data), obj.header.Clone(), true
}

// --- filestore.Backend implementation ---

func (b *Backend) PutObject(_ context.Context, bucketName, key string, body io.Reader, _ int64, headers map[string]string) error {
	if err := b.record(Call{Op: OpPut, Bucket: bucketName, Key: key, Headers: cloneHeaders(headers)}); err != nil {
		return err
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return errs.Wrap(errs.ErrKindUnknown, "failed to read object body", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	bk, ok := b.buckets[bucketName]
	if !ok {
		return errs.Newf(errs.ErrKindNotFound, "NoSuchBucket: %s", bucketName)
	}
	bk.objects[key] = object{data: data, header: filestore.HeaderFrom(headers)}
	return nil
}

func (b *Backend) GetObject(_ context.Context, bucketName, key string) (filestore.Object, error) {
	if err := b.record(Call{Op: OpGet, Bucket: bucketName, Key: key}); err != nil {
		return nil, err
	}

	data, header, ok := b.Stored(bucketName, key)
	if !ok {
		return nil, errs.Newf(errs.ErrKindNotFound, "NoSuchKey: %s/%s", bucketName, key)
	}
	return filestore.NewObject(io.NopCloser(bytes.NewReader(data)), header), nil
}

// DeleteObject reports a missing key as not found, which S3 itself does not
// do; callers treat both outcomes the same way.
func (b *Backend) DeleteObject(_ context.Context, bucketName, key string) error {
	if err := b.record(Call{Op: OpDelete, Bucket: bucketName, Key: key}); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	bk, ok := b.buckets[bucketName]
	if !ok {
		return errs.Newf(errs.ErrKindNotFound, "NoSuchBucket: %s", bucketName)
	}
	if _, ok := bk.objects[key]; !ok {
		return errs.Newf(errs.ErrKindNotFound, "NoSuchKey: %s/%s", bucketName, key)
	}
	delete(bk.objects, key)
	return nil
}

func (b *Backend) GetBucketLocation(_ context.Context, bucketName string) (string, error) {
	if err := b.record(Call{Op: OpLocation, Bucket: bucketName}); err != nil {
		return "", err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	bk, ok := b.buckets[bucketName]
	if !ok {
		return "", errs.Newf(errs.ErrKindNotFound, "NoSuchBucket: %s", bucketName)
	}
	return bk.location, nil
}

func (b *Backend) CreateBucket(_ context.Context, bucketName, location string) error {
	if err := b.record(Call{Op: OpCreate, Bucket: bucketName, Location: location}); err != nil {
		return err
	}
	b.AddBucket(bucketName, location)
	return nil
}

// PresignGetURL returns a URL shaped like an S3 presigned URL. The signature
// is a digest of the request, not a real SigV4 signature.
func (b *Backend) PresignGetURL(_ context.Context, bucketName, key string, expiresAt time.Time, query url.Values) (string, error) {
	if err := b.record(Call{Op: OpPresign, Bucket: bucketName, Key: key}); err != nil {
		return "", err
	}

	ttl := time.Until(expiresAt)
	if ttl < time.Second {
		return "", errs.Newf(errs.ErrKindInvalidInput, "presign expiry %s is in the past", expiresAt.UTC().Format(time.RFC3339))
	}

	q := url.Values{}
	for k, vs := range query {
		q[k] = append([]string(nil), vs...)
	}
	q.Set("X-Amz-Expires", strconv.Itoa(int(ttl.Seconds())))
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s/%s?%d", bucketName, key, expiresAt.Unix())))
	q.Set("X-Amz-Signature", hex.EncodeToString(sum[:]))

	u := url.URL{
		Scheme:   "https",
		Host:     bucketName + "." + defaultDomain,
		Path:     "/" + key,
		RawQuery: q.Encode(),
	}
	return u.String(), nil
}

// SyncClock records the call and returns any queued fault.
func (b *Backend) SyncClock(_ context.Context) error {
	return b.record(Call{Op: OpClockSync})
}

func (b *Backend) record(c Call) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, c)
	if q := b.faults[c.Op]; len(q) > 0 {
		b.faults[c.Op] = q[1:]
		return q[0]
	}
	return nil
}

func cloneHeaders(h map[string]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// compile-time checks
var (
	_ filestore.Backend     = (*Backend)(nil)
	_ filestore.ClockSyncer = (*Backend)(nil)
)
