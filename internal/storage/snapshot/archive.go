package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/newthinker/marketlens/internal/storage/archive"
)

// Archive keeps one JSON object per entry in an object store. Keys map to
// paths by turning ':' separators into directories: quote:AAPL is
// quote/AAPL.json.
type Archive struct {
	store archive.Storage
}

// NewArchive wraps an object store.
func NewArchive(store archive.Storage) *Archive {
	return &Archive{store: store}
}

func objectPath(key string) string {
	return strings.ReplaceAll(key, ":", "/") + ".json"
}

func (a *Archive) Get(ctx context.Context, key string) (Entry, bool, error) {
	data, err := a.store.Read(ctx, objectPath(key))
	if errors.Is(err, archive.ErrNotExist) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return e, true, nil
}

func (a *Archive) Put(ctx context.Context, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return a.store.Write(ctx, objectPath(entry.Key), data)
}

func (a *Archive) Delete(ctx context.Context, key string) error {
	err := a.store.Delete(ctx, objectPath(key))
	if errors.Is(err, archive.ErrNotExist) {
		return nil
	}
	return err
}

// Sweep reads every object to compare fetched_at; undecodable objects are
// removed too.
func (a *Archive) Sweep(ctx context.Context, olderThan time.Time) (int, error) {
	paths, err := a.store.List(ctx, "")
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, p := range paths {
		if !strings.HasSuffix(p, ".json") {
			continue
		}
		data, err := a.store.Read(ctx, p)
		if errors.Is(err, archive.ErrNotExist) {
			continue
		}
		if err != nil {
			return removed, err
		}

		var e Entry
		if err := json.Unmarshal(data, &e); err == nil && !e.FetchedAt.Before(olderThan) {
			continue
		}
		if err := a.store.Delete(ctx, p); err != nil && !errors.Is(err, archive.ErrNotExist) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func (a *Archive) Close() error {
	return nil
}
