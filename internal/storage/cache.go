// internal/storage/cache.go
package storage

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CachedStore fronts another Store with an expiring LRU for reads. Writes go
// to the backend first and then refresh the cache.
type CachedStore struct {
	backend Store
	cache   *expirable.LRU[string, string]

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCachedStore caches up to size entries for ttl each.
func NewCachedStore(backend Store, size int, ttl time.Duration) *CachedStore {
	if size <= 0 {
		size = 1000
	}
	return &CachedStore{
		backend: backend,
		cache:   expirable.NewLRU[string, string](size, nil, ttl),
	}
}

func (s *CachedStore) Set(ctx context.Context, key, value string) error {
	if err := s.backend.Set(ctx, key, value); err != nil {
		s.cache.Remove(key)
		return err
	}
	s.cache.Add(key, value)
	return nil
}

func (s *CachedStore) Get(ctx context.Context, key string) (string, bool, error) {
	if v, ok := s.cache.Get(key); ok {
		s.hits.Add(1)
		return v, true, nil
	}
	s.misses.Add(1)
	v, ok, err := s.backend.Get(ctx, key)
	if err != nil || !ok {
		return v, ok, err
	}
	s.cache.Add(key, v)
	return v, true, nil
}

func (s *CachedStore) Delete(ctx context.Context, key string) error {
	s.cache.Remove(key)
	return s.backend.Delete(ctx, key)
}

// Keys always asks the backend; the cache never holds the full keyspace.
func (s *CachedStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	return s.backend.Keys(ctx, pattern)
}

func (s *CachedStore) Clear(ctx context.Context) error {
	s.cache.Purge()
	return s.backend.Clear(ctx)
}

func (s *CachedStore) Close() error {
	s.cache.Purge()
	return s.backend.Close()
}

// CacheStats reports the cache's size and hit ratio.
type CacheStats struct {
	Size    int     `json:"size"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

func (s *CachedStore) Stats() CacheStats {
	hits, misses := s.hits.Load(), s.misses.Load()
	st := CacheStats{Size: s.cache.Len(), Hits: hits, Misses: misses}
	if total := hits + misses; total > 0 {
		st.HitRate = float64(hits) / float64(total)
	}
	return st
}
