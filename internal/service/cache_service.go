package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	appErrors "github.com/medicore/medicore-api/pkg/errors"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CacheService orchestrates cache operations and related metrics. Concurrent
// loads for the same key are collapsed into a single upstream call.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
	group      singleflight.Group
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger, enabled: enabled}
}

// ListKey builds the canonical cache key for a list query. Filter pairs are
// sorted by name so equivalent queries always map to the same key; omitted
// filters must simply not appear in the map.
func ListKey(resource string, page, size int, filters map[string]string) string {
	parts := make([]string, 0, len(filters))
	for name, value := range filters {
		if value == "" {
			continue
		}
		parts = append(parts, name+"="+value)
	}
	sort.Strings(parts)
	return fmt.Sprintf("list:%s:p%d:s%d:%s", resource, page, size, strings.Join(parts, "&"))
}

// ListPattern is the invalidation pattern covering every cached page of a
// resource.
func ListPattern(resource string) string {
	return fmt.Sprintf("list:%s:*", resource)
}

// ItemKey builds the cache key for a single resource payload.
func ItemKey(resource, id string) string {
	return fmt.Sprintf("item:%s:%s", resource, id)
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Get attempts to retrieve a cached entry. It returns true when the cache
// was hit.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	duration := time.Since(start)
	if err != nil {
		if errors.Is(err, appErrors.ErrCacheMiss) {
			if s.metrics != nil {
				s.metrics.RecordCacheOperation(false, duration)
			}
			return false, nil
		}
		if s.metrics != nil {
			s.metrics.RecordCacheOperation(false, duration)
		}
		if s.logger != nil {
			s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
		return false, err
	}
	if s.metrics != nil {
		s.metrics.RecordCacheOperation(true, duration)
	}
	return true, nil
}

// Set stores the value in cache.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	start := time.Now()
	err := s.repo.Set(ctx, key, value, ttl)
	if s.metrics != nil {
		s.metrics.ObserveCacheWrite(time.Since(start))
	}
	if err != nil && s.logger != nil {
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
	return err
}

// Load collapses concurrent loads for the same key: the first caller runs fn
// and writes the result to cache, later callers share that result. When
// caching is disabled fn runs directly.
func (s *CacheService) Load(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	if !s.Enabled() {
		return fn(ctx)
	}
	value, err, _ := s.group.Do(key, func() (interface{}, error) {
		result, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		if err := s.Set(ctx, key, result, ttl); err != nil && s.logger != nil {
			s.logger.Warn("cache backfill failed", zap.String("key", key), zap.Error(err))
		}
		return result, nil
	})
	return value, err
}

// Invalidate removes cached values for the provided pattern. Called only
// after a mutation commits; a failed write never evicts.
func (s *CacheService) Invalidate(ctx context.Context, pattern string) error {
	if !s.Enabled() {
		return nil
	}
	if err := s.repo.DeleteByPattern(ctx, pattern); err != nil {
		if s.logger != nil {
			s.logger.Warn("cache invalidate failed", zap.String("pattern", pattern), zap.Error(err))
		}
		return err
	}
	return nil
}
