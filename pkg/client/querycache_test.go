package client

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryCacheLoadMemoises(t *testing.T) {
	cache := NewQueryCache()
	calls := 0
	fetch := func(ctx context.Context) (interface{}, error) {
		calls++
		return "page-1", nil
	}

	key := Key("patients", "page=1")
	value, err := cache.Load(context.Background(), key, fetch)
	require.NoError(t, err)
	assert.Equal(t, "page-1", value)

	value, err = cache.Load(context.Background(), key, fetch)
	require.NoError(t, err)
	assert.Equal(t, "page-1", value)
	assert.Equal(t, 1, calls)
}

func TestQueryCacheCollapsesConcurrentFetches(t *testing.T) {
	cache := NewQueryCache()
	var calls int32
	started := make(chan struct{})
	gate := make(chan struct{})
	fetch := func(ctx context.Context) (interface{}, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(started)
		}
		<-gate
		return "shared", nil
	}

	key := Key("patients", "page=1")
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		value, err := cache.Load(context.Background(), key, fetch)
		assert.NoError(t, err)
		assert.Equal(t, "shared", value)
	}()

	// Wait until the first fetch is in flight, then join it with a second
	// caller before letting the fetch finish.
	<-started
	go func() {
		defer wg.Done()
		value, err := cache.Load(context.Background(), key, fetch)
		assert.NoError(t, err)
		assert.Equal(t, "shared", value)
	}()
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestQueryCacheInvalidateDropsResourceOnly(t *testing.T) {
	cache := NewQueryCache()
	loader := func(value string) func(context.Context) (interface{}, error) {
		return func(ctx context.Context) (interface{}, error) { return value, nil }
	}
	_, err := cache.Load(context.Background(), Key("patients", "page=1"), loader("p1"))
	require.NoError(t, err)
	_, err = cache.Load(context.Background(), Key("patients", "page=2"), loader("p2"))
	require.NoError(t, err)
	_, err = cache.Load(context.Background(), Key("doctors", "page=1"), loader("d1"))
	require.NoError(t, err)

	cache.Invalidate("patients")

	_, ok := cache.Get(Key("patients", "page=1"))
	assert.False(t, ok)
	_, ok = cache.Get(Key("patients", "page=2"))
	assert.False(t, ok)
	_, ok = cache.Get(Key("doctors", "page=1"))
	assert.True(t, ok)
}

func TestQueryCacheInvalidateFencesInFlightFetch(t *testing.T) {
	cache := NewQueryCache()
	started := make(chan struct{})
	finish := make(chan struct{})
	fetch := func(ctx context.Context) (interface{}, error) {
		close(started)
		<-finish
		return "stale", nil
	}

	key := Key("patients", "page=1")
	done := make(chan struct{})
	go func() {
		defer close(done)
		value, err := cache.Load(context.Background(), key, fetch)
		assert.NoError(t, err)
		assert.Equal(t, "stale", value)
	}()

	<-started
	// A mutation lands while the fetch is still in flight.
	cache.Invalidate("patients")
	close(finish)
	<-done

	// The in-flight result was returned to its caller but never stored.
	_, ok := cache.Get(key)
	assert.False(t, ok)
}

func TestQueryCacheClear(t *testing.T) {
	cache := NewQueryCache()
	_, err := cache.Load(context.Background(), Key("patients", "page=1"), func(ctx context.Context) (interface{}, error) {
		return "p1", nil
	})
	require.NoError(t, err)

	cache.Clear()
	_, ok := cache.Get(Key("patients", "page=1"))
	assert.False(t, ok)
}
