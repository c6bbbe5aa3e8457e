package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)

// testStore runs the behaviour every substrate must share.
func testStore(t *testing.T, s Store, ns string) {
	t.Helper()
	ctx := context.Background()
	key := func(k string) string { return ns + k }

	t.Run("miss", func(t *testing.T) {
		_, found, err := s.Get(ctx, key("quote:NONE"))
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("put get upsert", func(t *testing.T) {
		e := Entry{Key: key("quote:AAPL"), Payload: json.RawMessage(`{"price":1}`), FetchedAt: base}
		require.NoError(t, s.Put(ctx, e))

		got, found, err := s.Get(ctx, e.Key)
		require.NoError(t, err)
		require.True(t, found)
		assert.JSONEq(t, `{"price":1}`, string(got.Payload))
		assert.True(t, base.Equal(got.FetchedAt))

		e.Payload = json.RawMessage(`{"price":2}`)
		e.FetchedAt = base.Add(time.Minute)
		require.NoError(t, s.Put(ctx, e))

		got, _, err = s.Get(ctx, e.Key)
		require.NoError(t, err)
		assert.JSONEq(t, `{"price":2}`, string(got.Payload))
		assert.True(t, base.Add(time.Minute).Equal(got.FetchedAt))
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, Entry{Key: key("quote:DEL"), Payload: json.RawMessage(`{}`), FetchedAt: base}))
		require.NoError(t, s.Delete(ctx, key("quote:DEL")))
		require.NoError(t, s.Delete(ctx, key("quote:DEL")))

		_, found, err := s.Get(ctx, key("quote:DEL"))
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("sweep", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			require.NoError(t, s.Put(ctx, Entry{
				Key:       key(fmt.Sprintf("history:OLD%d:252", i)),
				Payload:   json.RawMessage(`[]`),
				FetchedAt: base.Add(-48 * time.Hour),
			}))
		}
		require.NoError(t, s.Put(ctx, Entry{Key: key("history:NEW:252"), Payload: json.RawMessage(`[]`), FetchedAt: base}))

		removed, err := s.Sweep(ctx, base.Add(-24*time.Hour))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, removed, 3)

		_, found, _ := s.Get(ctx, key("history:OLD0:252"))
		assert.False(t, found)
		_, found, _ = s.Get(ctx, key("history:NEW:252"))
		assert.True(t, found)
	})
}
