package query

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devsecops-academy/progression-engine/internal/domain/progression"
	"github.com/devsecops-academy/progression-engine/internal/domain/shared"
)

// stubLeaderboardReader generates a ranked top of the requested size.
type stubLeaderboardReader struct {
	total int
	calls int
}

func (r *stubLeaderboardReader) ListTopProfiles(ctx context.Context, limit int) ([]progression.LeaderboardEntry, error) {
	r.calls++
	if limit > r.total {
		limit = r.total
	}
	entries := make([]progression.LeaderboardEntry, limit)
	for i := range entries {
		entries[i] = progression.LeaderboardEntry{
			UserID:   fmt.Sprintf("u-%d", i+1),
			Username: fmt.Sprintf("user%d", i+1),
			XP:       10000 - i*100,
			Level:    (10000-i*100)/1000 + 1,
			Rank:     i + 1,
		}
	}
	return entries, nil
}

// stubLeaderboardCache serves a fixed cached top.
type stubLeaderboardCache struct {
	top   []progression.LeaderboardEntry
	calls int
}

func (c *stubLeaderboardCache) GetCachedTop(ctx context.Context, limit int) ([]progression.LeaderboardEntry, error) {
	c.calls++
	if len(c.top) == 0 {
		return nil, shared.ErrNotFound
	}
	if limit > len(c.top) {
		limit = len(c.top)
	}
	return c.top[:limit], nil
}

func TestGetLeaderboard_DefaultsToTwenty(t *testing.T) {
	reader := &stubLeaderboardReader{total: 50}
	h := NewGetLeaderboardHandler(reader, nil, nil)

	res, err := h.Handle(context.Background(), GetLeaderboardQuery{})

	require.NoError(t, err)
	assert.Len(t, res.Entries, 20)
	assert.Equal(t, 1, res.Page)
	assert.Equal(t, 20, res.PageSize)
	assert.Equal(t, 1, res.Entries[0].Rank)
	assert.Equal(t, "u-1", res.Entries[0].UserID)
}

func TestGetLeaderboard_Pagination(t *testing.T) {
	reader := &stubLeaderboardReader{total: 50}
	h := NewGetLeaderboardHandler(reader, nil, nil)

	res, err := h.Handle(context.Background(), GetLeaderboardQuery{Limit: 10, Offset: 10})

	require.NoError(t, err)
	require.Len(t, res.Entries, 10)
	assert.Equal(t, 2, res.Page)
	assert.Equal(t, 11, res.Entries[0].Rank)
	assert.Equal(t, "u-11", res.Entries[0].UserID)
}

func TestGetLeaderboard_OffsetPastEnd(t *testing.T) {
	reader := &stubLeaderboardReader{total: 5}
	h := NewGetLeaderboardHandler(reader, nil, nil)

	res, err := h.Handle(context.Background(), GetLeaderboardQuery{Limit: 10, Offset: 30})

	require.NoError(t, err)
	assert.Empty(t, res.Entries)
}

func TestGetLeaderboard_CapsLimitAtHundred(t *testing.T) {
	reader := &stubLeaderboardReader{total: 500}
	h := NewGetLeaderboardHandler(reader, nil, nil)

	res, err := h.Handle(context.Background(), GetLeaderboardQuery{Limit: 400})

	require.NoError(t, err)
	assert.Len(t, res.Entries, 100)
	assert.Equal(t, 100, res.PageSize)
}

func TestGetLeaderboard_ServedFromCache(t *testing.T) {
	reader := &stubLeaderboardReader{total: 50}
	cache := &stubLeaderboardCache{top: []progression.LeaderboardEntry{
		{UserID: "cached-1", Username: "cached", XP: 9000, Level: 10, Rank: 1},
	}}
	h := NewGetLeaderboardHandler(reader, cache, nil)

	res, err := h.Handle(context.Background(), GetLeaderboardQuery{Limit: 1})

	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, "cached-1", res.Entries[0].UserID)
	assert.Equal(t, 0, reader.calls)
}

func TestGetLeaderboard_CacheMissFallsBackToStore(t *testing.T) {
	reader := &stubLeaderboardReader{total: 50}
	cache := &stubLeaderboardCache{}
	h := NewGetLeaderboardHandler(reader, cache, nil)

	res, err := h.Handle(context.Background(), GetLeaderboardQuery{Limit: 5})

	require.NoError(t, err)
	assert.Len(t, res.Entries, 5)
	assert.Equal(t, 1, cache.calls)
	assert.Equal(t, 1, reader.calls)
}

func TestGetLeaderboard_ValidatesQuery(t *testing.T) {
	h := NewGetLeaderboardHandler(&stubLeaderboardReader{}, nil, nil)

	_, err := h.Handle(context.Background(), GetLeaderboardQuery{Limit: -1})
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(context.Background(), GetLeaderboardQuery{Offset: -1})
	assert.True(t, shared.IsValidation(err))
}
