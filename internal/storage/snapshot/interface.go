// Package snapshot holds the substrates behind the cache store. A substrate
// only stores and returns entries with their write timestamps; freshness is
// decided by the caller.
package snapshot

import (
	"context"
	"encoding/json"
	"time"
)

// Entry is one cached payload and the time it was fetched upstream
type Entry struct {
	Key       string          `json:"key"`
	Payload   json.RawMessage `json:"payload"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// Store is a key/value substrate with retrievable write timestamps
type Store interface {
	// Get returns the entry for key; found is false on a miss.
	Get(ctx context.Context, key string) (entry Entry, found bool, err error)

	// Put upserts entry under entry.Key.
	Put(ctx context.Context, entry Entry) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Sweep removes entries fetched before olderThan and reports how many.
	Sweep(ctx context.Context, olderThan time.Time) (int, error)

	Close() error
}
