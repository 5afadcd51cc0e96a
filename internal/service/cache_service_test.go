package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appErrors "github.com/medicore/medicore-api/pkg/errors"
)

type memoryCacheRepo struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{entries: make(map[string][]byte)}
}

func (m *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	raw, ok := m.entries[key]
	m.mu.Unlock()
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.entries[key] = raw
	m.mu.Unlock()
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.entries {
		if key == pattern || strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
		}
	}
	return nil
}

func TestListKeyCanonicalOrdering(t *testing.T) {
	a := ListKey("patients", 2, 20, map[string]string{"gender": "f", "company_id": "co1"})
	b := ListKey("patients", 2, 20, map[string]string{"company_id": "co1", "gender": "f"})
	assert.Equal(t, a, b)
	assert.Equal(t, "list:patients:p2:s20:company_id=co1&gender=f", a)
}

func TestListKeySkipsEmptyFilters(t *testing.T) {
	withEmpty := ListKey("patients", 1, 20, map[string]string{"search": "", "gender": "m"})
	without := ListKey("patients", 1, 20, map[string]string{"gender": "m"})
	assert.Equal(t, without, withEmpty)
}

func TestCacheServiceGetMissThenHit(t *testing.T) {
	repo := newMemoryCacheRepo()
	svc := NewCacheService(repo, nil, time.Minute, zap.NewNop(), true)

	var out string
	hit, err := svc.Get(context.Background(), "item:patients:p1", &out)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, svc.Set(context.Background(), "item:patients:p1", "cached", 0))
	hit, err = svc.Get(context.Background(), "item:patients:p1", &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "cached", out)
}

func TestCacheServiceLoadBackfills(t *testing.T) {
	repo := newMemoryCacheRepo()
	svc := NewCacheService(repo, nil, time.Minute, zap.NewNop(), true)

	calls := 0
	loader := func(ctx context.Context) (interface{}, error) {
		calls++
		return "fresh", nil
	}
	value, err := svc.Load(context.Background(), "list:patients:p1:s20:", 0, loader)
	require.NoError(t, err)
	assert.Equal(t, "fresh", value)
	assert.Equal(t, 1, calls)

	var cached string
	hit, err := svc.Get(context.Background(), "list:patients:p1:s20:", &cached)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "fresh", cached)
}

func TestCacheServiceLoadErrorNotCached(t *testing.T) {
	repo := newMemoryCacheRepo()
	svc := NewCacheService(repo, nil, time.Minute, zap.NewNop(), true)

	_, err := svc.Load(context.Background(), "list:visits:p1:s20:", 0, func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("db down")
	})
	require.Error(t, err)
	assert.Empty(t, repo.entries)
}

func TestCacheServiceInvalidatePattern(t *testing.T) {
	repo := newMemoryCacheRepo()
	svc := NewCacheService(repo, nil, time.Minute, zap.NewNop(), true)

	require.NoError(t, svc.Set(context.Background(), ListKey("patients", 1, 20, nil), "page1", 0))
	require.NoError(t, svc.Set(context.Background(), ListKey("patients", 2, 20, nil), "page2", 0))
	require.NoError(t, svc.Set(context.Background(), ItemKey("patients", "p1"), "item", 0))
	require.NoError(t, svc.Set(context.Background(), ListKey("doctors", 1, 20, nil), "other", 0))

	require.NoError(t, svc.Invalidate(context.Background(), ListPattern("patients")))

	var out string
	hit, _ := svc.Get(context.Background(), ListKey("patients", 1, 20, nil), &out)
	assert.False(t, hit)
	hit, _ = svc.Get(context.Background(), ItemKey("patients", "p1"), &out)
	assert.True(t, hit)
	hit, _ = svc.Get(context.Background(), ListKey("doctors", 1, 20, nil), &out)
	assert.True(t, hit)
}

func TestCacheServiceDisabledPassesThrough(t *testing.T) {
	var svc *CacheService

	assert.False(t, svc.Enabled())
	hit, err := svc.Get(context.Background(), "item:patients:p1", nil)
	require.NoError(t, err)
	assert.False(t, hit)
	require.NoError(t, svc.Set(context.Background(), "item:patients:p1", "x", 0))
	require.NoError(t, svc.Invalidate(context.Background(), ListPattern("patients")))

	calls := 0
	value, err := svc.Load(context.Background(), "key", 0, func(ctx context.Context) (interface{}, error) {
		calls++
		return "direct", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "direct", value)
	assert.Equal(t, 1, calls)
}
