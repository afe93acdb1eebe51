package filestore

import (
	"context"
	"sort"
	"sync"

	"github.com/koustreak/contentstore/internal/errs"
)

// Options holds the settings used to construct a provider client.
type Options struct {
	// AccessKey is the access key ID (S3 style).
	AccessKey string

	// SecretKey is the secret access key.
	SecretKey string

	// Region is the service region. Empty means the provider default.
	Region string

	// UseIAMProfile makes the provider resolve credentials from the instance
	// profile instead of AccessKey/SecretKey.
	UseIAMProfile bool

	// Extra carries provider-specific settings verbatim (endpoint, secure,
	// bucket_lookup, force_path_style, …).
	Extra map[string]any
}

// String returns the Extra value under key, or def when absent or not a string.
func (o Options) String(key, def string) string {
	if v, ok := o.Extra[key].(string); ok && v != "" {
		return v
	}
	return def
}

// Bool returns the Extra value under key, or def when absent or not a bool.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o.Extra[key].(bool); ok {
		return v
	}
	return def
}

// Factory constructs a Backend for a provider.
type Factory func(ctx context.Context, opts Options) (Backend, error)

var (
	providersMu sync.RWMutex
	providers   = make(map[string]Factory)
)

// RegisterProvider makes a provider available to Open under name.
// Provider packages call this from an init function.
func RegisterProvider(name string, f Factory) {
	providersMu.Lock()
	defer providersMu.Unlock()
	providers[name] = f
}

// Providers returns the registered provider names, sorted.
func Providers() []string {
	providersMu.RLock()
	defer providersMu.RUnlock()
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open constructs a Backend using the provider registered under name.
// Ensure the provider package has been imported, e.g.
// _ "github.com/koustreak/contentstore/internal/filestore/minio".
func Open(ctx context.Context, name string, opts Options) (Backend, error) {
	providersMu.RLock()
	f, ok := providers[name]
	providersMu.RUnlock()
	if !ok {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "filestore: unsupported provider %q (not registered)", name)
	}
	return f(ctx, opts)
}
