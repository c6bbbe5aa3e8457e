package ratelimit

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/newthinker/marketlens/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_SequentialSpacing(t *testing.T) {
	start := time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)
	fake := clock.NewFake(start)
	l := New(time.Second, fake)
	ctx := context.Background()

	const n = 5
	for i := 0; i < n; i++ {
		_, err := l.Acquire(ctx)
		require.NoError(t, err)
	}

	elapsed := fake.Now().Sub(start)
	assert.GreaterOrEqual(t, elapsed, time.Duration(n-1)*time.Second)
	assert.Equal(t, int64(n), l.Stats().Grants)
}

func TestLimiter_FirstAcquireIsImmediate(t *testing.T) {
	fake := clock.NewFake(time.Now())
	l := New(time.Second, fake)

	wait, err := l.Acquire(context.Background())
	require.NoError(t, err)
	assert.Zero(t, wait)
	assert.Zero(t, fake.Slept())
}

func TestLimiter_NoWaitAfterIdle(t *testing.T) {
	fake := clock.NewFake(time.Now())
	l := New(time.Second, fake)
	ctx := context.Background()

	_, err := l.Acquire(ctx)
	require.NoError(t, err)
	fake.Advance(5 * time.Second)

	wait, err := l.Acquire(ctx)
	require.NoError(t, err)
	assert.Zero(t, wait, "interval already elapsed, grant should be immediate")
}

func TestLimiter_ConcurrentCallersGetDistinctSlots(t *testing.T) {
	const interval = 20 * time.Millisecond
	l := New(interval, clock.Real{})
	ctx := context.Background()

	const n = 5
	var (
		mu     sync.Mutex
		grants []time.Time
		wg     sync.WaitGroup
	)
	start := time.Now()
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Acquire(ctx)
			assert.NoError(t, err)
			mu.Lock()
			grants = append(grants, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, time.Since(start), time.Duration(n-1)*interval)

	sort.Slice(grants, func(i, j int) bool { return grants[i].Before(grants[j]) })
	last := grants[len(grants)-1].Sub(grants[0])
	assert.GreaterOrEqual(t, last, time.Duration(n-2)*interval, "grants must be spread out, not burst")
}

func TestLimiter_CancelledWaitReleasesSlot(t *testing.T) {
	const interval = 200 * time.Millisecond
	l := New(interval, clock.Real{})

	_, err := l.Acquire(context.Background())
	require.NoError(t, err)
	first := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx)
	require.Error(t, err)

	_, err = l.Acquire(context.Background())
	require.NoError(t, err)

	// Without rollback the third caller would queue behind the abandoned slot.
	assert.Less(t, time.Since(first), 2*interval-20*time.Millisecond)
}

func TestLimiter_CancelledBeforeAcquire(t *testing.T) {
	l := New(time.Second, clock.NewFake(time.Now()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, l.Stats().Grants)
}
