package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/devsecops-academy/progression-engine/internal/application/query"
	"github.com/devsecops-academy/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE OVERVIEW CACHE
// ══════════════════════════════════════════════════════════════════════════════

// ProfileCache caches profile overview snapshots. It implements
// query.OverviewCache for read-through and the invalidator interfaces
// used by the write path: every committed write drops the snapshot.
type ProfileCache struct {
	cache *Cache
}

// NewProfileCache creates a new ProfileCache.
func NewProfileCache(cache *Cache) *ProfileCache {
	return &ProfileCache{cache: cache}
}

// GetOverview returns the cached overview snapshot for a user.
// Returns shared.ErrNotFound on a cache miss.
func (p *ProfileCache) GetOverview(ctx context.Context, userID string) (*query.GetProfileOverviewResult, error) {
	var overview query.GetProfileOverviewResult

	err := p.cache.Get(ctx, OverviewKey(userID), &overview)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get cached overview: %w", err)
	}

	return &overview, nil
}

// SetOverview stores the overview snapshot.
func (p *ProfileCache) SetOverview(ctx context.Context, userID string, overview *query.GetProfileOverviewResult) error {
	if err := p.cache.Set(ctx, OverviewKey(userID), overview, TTLOverviewCache); err != nil {
		return fmt.Errorf("failed to cache overview: %w", err)
	}
	return nil
}

// InvalidateProfile drops the user's overview snapshot.
func (p *ProfileCache) InvalidateProfile(ctx context.Context, userID string) error {
	if err := p.cache.Delete(ctx, OverviewKey(userID)); err != nil {
		return fmt.Errorf("failed to invalidate overview: %w", err)
	}
	return nil
}
