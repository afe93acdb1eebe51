package datastore

import (
	"context"
	"sort"
	"sync"

	"github.com/koustreak/contentstore/internal/errs"
	"github.com/koustreak/contentstore/internal/logger"
)

// Factory builds a DataStore. decode fills the implementation's own options
// struct from configuration (e.g. yaml.Node.Decode); it may be nil when no
// options were given.
type Factory func(ctx context.Context, decode func(any) error, log *logger.Logger) (DataStore, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register makes a data store available to Open under name. Implementation
// packages call this from an init function.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[name] = f
}

// Registered returns the registered names, sorted.
func Registered() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open builds the data store registered under name.
func Open(ctx context.Context, name string, decode func(any) error, log *logger.Logger) (DataStore, error) {
	mu.RLock()
	f, ok := factories[name]
	mu.RUnlock()
	if !ok {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "datastore: %q is not registered", name)
	}
	if log == nil {
		log = logger.Global()
	}
	if decode == nil {
		decode = func(any) error { return nil }
	}

	log.InfoWith("opening data store", map[string]interface{}{"datastore": name})
	return f(ctx, decode, log)
}
