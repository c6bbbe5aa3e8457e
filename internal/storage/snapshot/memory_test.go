package snapshot

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_Store(t *testing.T) {
	testStore(t, NewMemory(100), "")
}

func TestMemory_EvictsLeastRecentlyUsed(t *testing.T) {
	m := NewMemory(2)
	ctx := context.Background()
	put := func(k string) {
		require.NoError(t, m.Put(ctx, Entry{Key: k, Payload: json.RawMessage(`{}`), FetchedAt: base}))
	}

	put("a")
	put("b")
	_, _, _ = m.Get(ctx, "a") // a is now most recent
	put("c")

	_, found, _ := m.Get(ctx, "b")
	assert.False(t, found, "b should be evicted")
	_, found, _ = m.Get(ctx, "a")
	assert.True(t, found)
	assert.Equal(t, 2, m.Len())
	assert.Equal(t, int64(1), m.Evictions())
}

func TestMemory_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultMaxEntries, NewMemory(0).maxEntries)
}
