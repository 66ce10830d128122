package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devsecops-academy/progression-engine/internal/domain/progression"
)

type fakeReader struct {
	entries []progression.LeaderboardEntry
	err     error
	lastN   int
}

func (r *fakeReader) ListTopProfiles(ctx context.Context, limit int) ([]progression.LeaderboardEntry, error) {
	r.lastN = limit
	return r.entries, r.err
}

type fakeRebuilder struct {
	rebuilt []progression.LeaderboardEntry
	err     error
}

func (c *fakeRebuilder) Rebuild(ctx context.Context, entries []progression.LeaderboardEntry) error {
	c.rebuilt = entries
	return c.err
}

func TestRebuildLeaderboardJob_Run(t *testing.T) {
	reader := &fakeReader{entries: []progression.LeaderboardEntry{
		{Rank: 1, UserID: "u-1", Username: "gopher", XP: 5000, Level: 6},
		{Rank: 2, UserID: "u-2", Username: "rustacean", XP: 3000, Level: 4},
	}}
	cache := &fakeRebuilder{}

	cfg := DefaultRebuildLeaderboardConfig()
	cfg.TopN = 50
	job := NewRebuildLeaderboardJob(reader, cache, nil, cfg)

	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, 50, reader.lastN)
	assert.Len(t, cache.rebuilt, 2)

	stats := job.LastRebuildStats()
	require.NotNil(t, stats)
	assert.Equal(t, 2, stats.EntriesSeen)
	assert.True(t, stats.CacheUpdated)
}

func TestRebuildLeaderboardJob_ReaderFailureSkipsRebuild(t *testing.T) {
	reader := &fakeReader{err: errors.New("store unavailable")}
	cache := &fakeRebuilder{}
	job := NewRebuildLeaderboardJob(reader, cache, nil, DefaultRebuildLeaderboardConfig())

	err := job.Run(context.Background())

	assert.Error(t, err)
	assert.Nil(t, cache.rebuilt)
	assert.Nil(t, job.LastRebuildStats())
}

func TestRebuildLeaderboardJob_ConfigurableName(t *testing.T) {
	reader := &fakeReader{}
	cache := &fakeRebuilder{}

	job := NewRebuildLeaderboardJob(reader, cache, nil, DefaultRebuildLeaderboardConfig())
	assert.Equal(t, "rebuild_leaderboard", job.Name())

	// Two instances with different depths need distinct names to share
	// one scheduler.
	cfg := DefaultRebuildLeaderboardConfig()
	cfg.Name = "resync_leaderboard_nightly"
	cfg.TopN = 1000
	nightly := NewRebuildLeaderboardJob(reader, cache, nil, cfg)
	assert.Equal(t, "resync_leaderboard_nightly", nightly.Name())
}
