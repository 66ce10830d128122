package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/devsecops-academy/progression-engine/internal/domain/progression"
	"github.com/devsecops-academy/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD CACHE
// Sorted set keyed by XP plus a hash with display metadata per user.
// The worker rebuilds the whole structure on a schedule; the XP gained
// event handler keeps scores fresh between rebuilds.
// ══════════════════════════════════════════════════════════════════════════════

// leaderboardMetaKey holds per-user display metadata (username, level).
func leaderboardMetaKey() string {
	return PrefixLeaderboard + "meta"
}

// entryMeta is the display metadata stored per user.
type entryMeta struct {
	Username string `json:"username"`
	Level    int    `json:"level"`
}

// LeaderboardCache implements query.LeaderboardCache and the score updater
// used by the XP gained event handler.
type LeaderboardCache struct {
	cache *Cache
}

// NewLeaderboardCache creates a new LeaderboardCache.
func NewLeaderboardCache(cache *Cache) *LeaderboardCache {
	return &LeaderboardCache{cache: cache}
}

// Rebuild replaces the cached leaderboard with the given entries.
func (l *LeaderboardCache) Rebuild(ctx context.Context, entries []progression.LeaderboardEntry) error {
	client := l.cache.Client()

	zMembers := make([]redis.Z, 0, len(entries))
	metaFields := make(map[string]interface{}, len(entries))
	for _, e := range entries {
		zMembers = append(zMembers, redis.Z{Score: float64(e.XP), Member: e.UserID})

		raw, err := json.Marshal(entryMeta{Username: e.Username, Level: e.Level})
		if err != nil {
			return fmt.Errorf("failed to marshal leaderboard meta: %w", err)
		}
		metaFields[e.UserID] = raw
	}

	pipe := client.TxPipeline()
	pipe.Del(ctx, LeaderboardKey(), leaderboardMetaKey())
	if len(zMembers) > 0 {
		pipe.ZAdd(ctx, LeaderboardKey(), zMembers...)
		pipe.HSet(ctx, leaderboardMetaKey(), metaFields)
	}
	pipe.Expire(ctx, LeaderboardKey(), TTLLeaderboardCache)
	pipe.Expire(ctx, leaderboardMetaKey(), TTLLeaderboardCache)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to rebuild leaderboard cache: %w", err)
	}

	return nil
}

// UpdateScore sets a single user's XP in the cached leaderboard.
// A user missing from the set is added; display metadata is filled in
// on the next rebuild.
func (l *LeaderboardCache) UpdateScore(ctx context.Context, userID string, xp int) error {
	err := l.cache.Client().ZAdd(ctx, LeaderboardKey(), redis.Z{
		Score:  float64(xp),
		Member: userID,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to update leaderboard score: %w", err)
	}

	return nil
}

// GetCachedTop returns the top entries by XP descending.
// Returns shared.ErrNotFound when the cache is empty or expired.
func (l *LeaderboardCache) GetCachedTop(ctx context.Context, limit int) ([]progression.LeaderboardEntry, error) {
	client := l.cache.Client()

	zs, err := client.ZRevRangeWithScores(ctx, LeaderboardKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read leaderboard cache: %w", err)
	}
	if len(zs) == 0 {
		return nil, shared.ErrNotFound
	}

	userIDs := make([]string, len(zs))
	for i, z := range zs {
		userIDs[i] = z.Member.(string)
	}

	rawMeta, err := client.HMGet(ctx, leaderboardMetaKey(), userIDs...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read leaderboard meta: %w", err)
	}

	entries := make([]progression.LeaderboardEntry, len(zs))
	for i, z := range zs {
		entry := progression.LeaderboardEntry{
			Rank:     i + 1,
			UserID:   userIDs[i],
			Username: userIDs[i], // fallback until the next rebuild
			XP:       int(z.Score),
		}

		if raw, ok := rawMeta[i].(string); ok && raw != "" {
			var meta entryMeta
			if err := json.Unmarshal([]byte(raw), &meta); err == nil {
				entry.Username = meta.Username
				entry.Level = meta.Level
			}
		}

		entries[i] = entry
	}

	return entries, nil
}

// Invalidate drops the cached leaderboard entirely.
func (l *LeaderboardCache) Invalidate(ctx context.Context) error {
	if err := l.cache.Delete(ctx, LeaderboardKey(), leaderboardMetaKey()); err != nil {
		return fmt.Errorf("failed to invalidate leaderboard cache: %w", err)
	}
	return nil
}
