package ipfs

import (
	"context"
	"time"

	"propchain/internal/common/cache"
	"propchain/internal/common/retry"
)

// CachedStore caches reads of immutable documents and retries transient
// gateway failures. Publishing passes through untouched.
type CachedStore struct {
	Store
	cache  *cache.CacheService
	ttl    time.Duration
	policy retry.Policy
}

// NewCachedStore wraps next; a nil cache disables caching but keeps retries.
func NewCachedStore(next Store, c *cache.CacheService, ttl time.Duration, policy retry.Policy) *CachedStore {
	return &CachedStore{Store: next, cache: c, ttl: ttl, policy: policy}
}

func (s *CachedStore) Fetch(ctx context.Context, cid string) ([]byte, error) {
	return cache.GetOrSet(ctx, s.cache, "doc:"+cid, s.ttl, func() ([]byte, error) {
		return retry.Value(ctx, s.policy, func() ([]byte, error) {
			return s.Store.Fetch(ctx, cid)
		})
	})
}
