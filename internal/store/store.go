// Package store provides named, versioned response stores for the offline
// gateway. A store maps a request key (method plus URL) to the most recent
// response captured for it. Backends must guarantee atomic per-key put/get;
// no cross-key transaction is ever required.
package store

import (
	"context"
	"time"
)

// Entry is a cached response body plus the metadata needed to replay it.
type Entry struct {
	URL        string            `json:"url"`
	Status     int               `json:"status"`
	StatusText string            `json:"status_text"`
	Headers    map[string]string `json:"headers"`
	Body       []byte            `json:"body"`
	StoredAt   time.Time         `json:"stored_at"`
}

// Clone returns a deep copy of the entry. Callers that mutate headers or
// body must clone first so the stored copy stays intact.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Headers = make(map[string]string, len(e.Headers))
	for k, v := range e.Headers {
		clone.Headers[k] = v
	}
	clone.Body = append([]byte(nil), e.Body...)
	return &clone
}

// Key builds the store key for a request identity. Only GET requests are
// ever stored, but the method is kept in the key so that never has to be
// assumed at read time.
func Key(method, url string) string {
	return method + " " + url
}

// Store is a single named generation of cached responses.
type Store interface {
	// Get retrieves the entry for a key. The boolean reports whether the
	// key was present.
	Get(ctx context.Context, key string) (*Entry, bool, error)

	// Put stores an entry under a key, overwriting any previous entry
	// atomically.
	Put(ctx context.Context, key string, entry *Entry) error

	// Delete removes an entry. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys lists all keys currently present.
	Keys(ctx context.Context) ([]string, error)

	// Len reports the number of entries.
	Len(ctx context.Context) (int, error)
}

// Storage manages the lifecycle of named stores. At most one store is
// treated as current by the worker; Storage itself is version-agnostic.
type Storage interface {
	// Open returns the store with the given name, creating it if absent.
	Open(ctx context.Context, name string) (Store, error)

	// Names lists the names of all existing stores.
	Names(ctx context.Context) ([]string, error)

	// Remove deletes a store and all of its entries. Removing an absent
	// store is not an error.
	Remove(ctx context.Context, name string) error
}
