package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devsecops-academy/progression-engine/internal/domain/achievement"
	"github.com/devsecops-academy/progression-engine/internal/domain/lesson"
	"github.com/devsecops-academy/progression-engine/internal/domain/profile"
	"github.com/devsecops-academy/progression-engine/internal/domain/progression"
	"github.com/devsecops-academy/progression-engine/internal/domain/shared"
	"github.com/devsecops-academy/progression-engine/pkg/timeutil"
)

// stubStore serves canned reads. Writes are never exercised by queries.
type stubStore struct {
	profile *profile.Profile
	stats   achievement.StatsSnapshot
	reads   int
}

func (s *stubStore) ReadProfile(ctx context.Context, userID string) (*profile.Profile, error) {
	s.reads++
	if s.profile == nil || s.profile.ID != userID {
		return nil, shared.ErrProfileNotFound
	}
	return s.profile.Clone(), nil
}

func (s *stubStore) ReadLessonProgress(ctx context.Context, userID, lessonID string) (*lesson.Progress, error) {
	return nil, nil
}

func (s *stubStore) ReadStats(ctx context.Context, userID string) (achievement.StatsSnapshot, error) {
	return s.stats, nil
}

func (s *stubStore) ReadEarnedAchievements(ctx context.Context, userID string) (map[string]bool, error) {
	return nil, nil
}

func (s *stubStore) WriteAtomic(ctx context.Context, userID string, set *progression.MutationSet) error {
	return nil
}

// stubAchievementCatalog serves a fixed catalog and earned list.
type stubAchievementCatalog struct {
	catalog []achievement.Achievement
	earned  []achievement.UserAchievement
}

func (c *stubAchievementCatalog) ListAchievements(ctx context.Context) ([]achievement.Achievement, error) {
	return c.catalog, nil
}

func (c *stubAchievementCatalog) ListEarned(ctx context.Context, userID string) ([]achievement.UserAchievement, error) {
	return c.earned, nil
}

// memOverviewCache is an in-memory OverviewCache.
type memOverviewCache struct {
	overviews map[string]*GetProfileOverviewResult
	sets      int
}

func (c *memOverviewCache) GetOverview(ctx context.Context, userID string) (*GetProfileOverviewResult, error) {
	if ov, ok := c.overviews[userID]; ok {
		return ov, nil
	}
	return nil, shared.ErrNotFound
}

func (c *memOverviewCache) SetOverview(ctx context.Context, userID string, overview *GetProfileOverviewResult) error {
	if c.overviews == nil {
		c.overviews = make(map[string]*GetProfileOverviewResult)
	}
	c.overviews[userID] = overview
	c.sets++
	return nil
}

func overviewFixture() (*stubStore, *stubAchievementCatalog) {
	store := &stubStore{
		profile: &profile.Profile{
			ID:            "u-1",
			Username:      "gopher",
			XP:            1250,
			Level:         2,
			CurrentStreak: 3,
			LongestStreak: 8,
		},
		stats: achievement.StatsSnapshot{
			LessonsCompleted: 7,
			ChallengesPassed: 2,
			TimeSpentMinutes: 240,
		},
	}
	catalog := &stubAchievementCatalog{
		catalog: []achievement.Achievement{
			{
				ID:        "first-lesson",
				Name:      "First Steps",
				Rarity:    achievement.RarityCommon,
				XPBonus:   50,
				Condition: achievement.Require(achievement.StatLessonsCompleted, achievement.OpGTE, 1),
			},
		},
		earned: []achievement.UserAchievement{
			{ID: "ua-1", UserID: "u-1", AchievementID: "first-lesson", EarnedAt: timeutil.Date(2026, 2, 1)},
		},
	}
	return store, catalog
}

func TestGetProfileOverview_BuildsDerivedFields(t *testing.T) {
	store, catalog := overviewFixture()
	h := NewGetProfileOverviewHandler(store, catalog, nil, nil)

	res, err := h.Handle(context.Background(), GetProfileOverviewQuery{UserID: "u-1"})

	require.NoError(t, err)
	assert.Equal(t, "gopher", res.Username)
	assert.Equal(t, 1250, res.XP)
	assert.Equal(t, 2, res.Level)
	assert.Equal(t, 250, res.XPIntoLevel)
	assert.Equal(t, 750, res.XPToNextLevel)
	assert.Equal(t, 7, res.LessonsCompleted)
	assert.Equal(t, 2, res.ChallengesPassed)
	assert.Equal(t, 240, res.TimeSpentMinutes)
	assert.Equal(t, len(res.Achievements), res.AchievementsEarned)
	assert.False(t, res.GeneratedAt.IsZero())

	require.Len(t, res.Achievements, 1)
	assert.Equal(t, "first-lesson", res.Achievements[0].AchievementID)
	assert.Equal(t, "First Steps", res.Achievements[0].Name)
	assert.Equal(t, "common", res.Achievements[0].Rarity)
	assert.Equal(t, 50, res.Achievements[0].XPBonus)
}

func TestGetProfileOverview_CacheReadThrough(t *testing.T) {
	store, catalog := overviewFixture()
	cache := &memOverviewCache{}
	h := NewGetProfileOverviewHandler(store, catalog, cache, nil)

	// First call misses the cache and fills it.
	first, err := h.Handle(context.Background(), GetProfileOverviewQuery{UserID: "u-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)
	assert.Equal(t, 1, store.reads)

	// Second call is served from the cache without hitting the store.
	second, err := h.Handle(context.Background(), GetProfileOverviewQuery{UserID: "u-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, store.reads)
	assert.Equal(t, first, second)
}

func TestGetProfileOverview_SkipCacheBypassesCache(t *testing.T) {
	store, catalog := overviewFixture()
	cache := &memOverviewCache{}
	h := NewGetProfileOverviewHandler(store, catalog, cache, nil)

	_, err := h.Handle(context.Background(), GetProfileOverviewQuery{UserID: "u-1"})
	require.NoError(t, err)

	_, err = h.Handle(context.Background(), GetProfileOverviewQuery{UserID: "u-1", SkipCache: true})
	require.NoError(t, err)

	// SkipCache read the store directly and did not refresh the cache.
	assert.Equal(t, 2, store.reads)
	assert.Equal(t, 1, cache.sets)
}

func TestGetProfileOverview_UnknownUser(t *testing.T) {
	store, catalog := overviewFixture()
	h := NewGetProfileOverviewHandler(store, catalog, nil, nil)

	_, err := h.Handle(context.Background(), GetProfileOverviewQuery{UserID: "ghost"})

	assert.True(t, shared.IsNotFound(err))
}

func TestGetProfileOverview_ValidatesQuery(t *testing.T) {
	store, catalog := overviewFixture()
	h := NewGetProfileOverviewHandler(store, catalog, nil, nil)

	_, err := h.Handle(context.Background(), GetProfileOverviewQuery{})

	assert.True(t, shared.IsValidation(err))
}

func TestGetProfileOverview_UnknownCatalogEntryDegrades(t *testing.T) {
	// An earned fact whose catalog entry was removed still shows up,
	// just without name and rarity.
	store, catalog := overviewFixture()
	catalog.earned = append(catalog.earned, achievement.UserAchievement{
		ID:            "ua-2",
		UserID:        "u-1",
		AchievementID: "retired-achievement",
		EarnedAt:      time.Now(),
	})

	h := NewGetProfileOverviewHandler(store, catalog, nil, nil)
	res, err := h.Handle(context.Background(), GetProfileOverviewQuery{UserID: "u-1"})

	require.NoError(t, err)
	require.Len(t, res.Achievements, 2)
	assert.Equal(t, "retired-achievement", res.Achievements[1].AchievementID)
	assert.Empty(t, res.Achievements[1].Name)
}
