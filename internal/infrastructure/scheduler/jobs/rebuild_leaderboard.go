// Package jobs contains implementations of scheduled jobs for the
// progression engine.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/devsecops-academy/progression-engine/internal/domain/progression"
)

// ══════════════════════════════════════════════════════════════════════════════
// REBUILD LEADERBOARD JOB
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardRebuilder replaces the cached leaderboard with fresh entries.
type LeaderboardRebuilder interface {
	Rebuild(ctx context.Context, entries []progression.LeaderboardEntry) error
}

// RebuildLeaderboardJob reloads the top profiles from the store and
// replaces the cached leaderboard. Incremental score updates from XP
// events keep scores fresh between runs; the rebuild restores display
// metadata and evicts users whose rows were removed.
type RebuildLeaderboardJob struct {
	reader progression.LeaderboardReader
	cache  LeaderboardRebuilder
	logger *slog.Logger
	config RebuildLeaderboardConfig

	lastRebuildStats atomic.Value // *RebuildStats
}

// RebuildLeaderboardConfig contains configuration for the rebuild job.
type RebuildLeaderboardConfig struct {
	// Name is the job name. Must be unique within a scheduler, so a
	// second instance with a different depth needs its own name.
	Name string

	// TopN is how many profiles to load into the cache.
	TopN int

	// Timeout is the maximum duration for the rebuild operation.
	Timeout time.Duration
}

// DefaultRebuildLeaderboardConfig returns sensible defaults.
func DefaultRebuildLeaderboardConfig() RebuildLeaderboardConfig {
	return RebuildLeaderboardConfig{
		Name:    "rebuild_leaderboard",
		TopN:    100,
		Timeout: time.Minute,
	}
}

// RebuildStats contains statistics from a rebuild run.
type RebuildStats struct {
	StartedAt    time.Time
	CompletedAt  time.Time
	Duration     time.Duration
	EntriesSeen  int
	CacheUpdated bool
}

// NewRebuildLeaderboardJob creates a new rebuild leaderboard job.
func NewRebuildLeaderboardJob(
	reader progression.LeaderboardReader,
	cache LeaderboardRebuilder,
	logger *slog.Logger,
	config RebuildLeaderboardConfig,
) *RebuildLeaderboardJob {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Name == "" {
		config.Name = "rebuild_leaderboard"
	}
	if config.TopN <= 0 {
		config.TopN = 100
	}

	return &RebuildLeaderboardJob{
		reader: reader,
		cache:  cache,
		logger: logger,
		config: config,
	}
}

// Name returns the job name.
func (j *RebuildLeaderboardJob) Name() string {
	return j.config.Name
}

// Description returns a human-readable description.
func (j *RebuildLeaderboardJob) Description() string {
	return "Reloads top profiles from the store into the leaderboard cache"
}

// Run executes the rebuild job.
func (j *RebuildLeaderboardJob) Run(ctx context.Context) error {
	startedAt := time.Now()
	stats := &RebuildStats{StartedAt: startedAt}

	j.logger.Info("starting leaderboard rebuild", "job", j.config.Name, "top_n", j.config.TopN)

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	entries, err := j.reader.ListTopProfiles(ctx, j.config.TopN)
	if err != nil {
		return fmt.Errorf("failed to load top profiles: %w", err)
	}
	stats.EntriesSeen = len(entries)

	if err := j.cache.Rebuild(ctx, entries); err != nil {
		return fmt.Errorf("failed to rebuild leaderboard cache: %w", err)
	}
	stats.CacheUpdated = true

	stats.CompletedAt = time.Now()
	stats.Duration = stats.CompletedAt.Sub(startedAt)
	j.lastRebuildStats.Store(stats)

	j.logger.Info("leaderboard rebuild completed",
		"job", j.config.Name,
		"duration", stats.Duration.String(),
		"entries", stats.EntriesSeen,
	)

	return nil
}

// LastRebuildStats returns statistics from the last rebuild.
func (j *RebuildLeaderboardJob) LastRebuildStats() *RebuildStats {
	stats := j.lastRebuildStats.Load()
	if stats == nil {
		return nil
	}
	return stats.(*RebuildStats)
}
