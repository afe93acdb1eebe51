// Package datastore defines what a content pipeline needs from a data store
// and a registry that selects an implementation by short name.
//
// Usage:
//
//	import _ "github.com/koustreak/contentstore/internal/datastore/s3store"
//
//	store, err := datastore.Open(ctx, "s3", node.Decode, log)
//	uid, err := store.Write(ctx, item, datastore.WriteOptions{})
package datastore

import (
	"context"
	"net/url"
	"time"

	"github.com/koustreak/contentstore/internal/content"
)

// DataStore persists content items and hands back opaque uids.
type DataStore interface {
	// Write stores c and returns its uid.
	Write(ctx context.Context, c content.Content, opts WriteOptions) (string, error)

	// Read fetches the item stored under uid. ok is false, with a nil error,
	// when nothing is stored there.
	Read(ctx context.Context, uid string) (rec *Record, ok bool, err error)

	// Destroy removes the item stored under uid. Removing a missing item is
	// not an error.
	Destroy(ctx context.Context, uid string) error

	// URLFor returns a URL the item can be fetched from directly.
	URLFor(ctx context.Context, uid string, opts URLOptions) (string, error)
}

// WriteOptions tunes a single Write.
type WriteOptions struct {
	// Path is used verbatim as the uid instead of a generated one.
	Path string

	// Headers are extra storage headers. They take precedence over
	// store-level defaults and over the generated metadata header.
	Headers map[string]string
}

// URLOptions tunes a single URLFor.
type URLOptions struct {
	// Expires, when set, asks for a signed time-limited URL.
	Expires time.Time

	// Query holds extra parameters signed into an expiring URL.
	Query url.Values

	// Scheme overrides the store's URL scheme.
	Scheme string

	// Host overrides the store's URL host. It may carry a path prefix.
	Host string
}

// Record is the payload and metadata returned by Read.
type Record struct {
	Data []byte
	Meta content.Meta
}
