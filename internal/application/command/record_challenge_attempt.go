package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/devsecops-academy/progression-engine/internal/domain/achievement"
	"github.com/devsecops-academy/progression-engine/internal/domain/challenge"
	"github.com/devsecops-academy/progression-engine/internal/domain/profile"
	"github.com/devsecops-academy/progression-engine/internal/domain/progression"
	"github.com/devsecops-academy/progression-engine/internal/domain/shared"
	"github.com/devsecops-academy/progression-engine/pkg/logger"
	"github.com/devsecops-academy/progression-engine/pkg/retry"
	"github.com/devsecops-academy/progression-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// RecordChallengeAttemptCommand appends a challenge attempt to the user's
// attempt log. A passed attempt also awards XP, counts toward the daily
// streak and may unlock achievements; a failed attempt changes nothing else.
type RecordChallengeAttemptCommand struct {
	// UserID is the internal user identifier.
	UserID string

	// ChallengeID identifies the challenge in the catalog.
	ChallengeID string

	// Score is the attempt score, 0 to 100.
	Score int

	// Passed is whether the attempt passed.
	Passed bool

	// TimeTakenMinutes is how long the attempt took.
	TimeTakenMinutes int
}

// Validate checks the command for correctness.
func (c RecordChallengeAttemptCommand) Validate() error {
	if c.UserID == "" {
		return errors.New("record_challenge_attempt: user_id is required")
	}
	if c.ChallengeID == "" {
		return errors.New("record_challenge_attempt: challenge_id is required")
	}
	if c.Score < 0 || c.Score > 100 {
		return errors.New("record_challenge_attempt: score must be 0-100")
	}
	if c.TimeTakenMinutes < 0 {
		return errors.New("record_challenge_attempt: time_taken_minutes cannot be negative")
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RESULT
// ══════════════════════════════════════════════════════════════════════════════

// RecordChallengeAttemptResult describes the recorded attempt.
type RecordChallengeAttemptResult struct {
	// Attempt is the appended log entry.
	Attempt *challenge.Attempt

	// Profile is the post-write state of the user profile. For a failed
	// attempt this is the profile as it was read: nothing changed.
	Profile *profile.Profile

	// UnlockedAchievements lists achievements unlocked by this attempt,
	// sorted by achievement ID. Always empty for failed attempts.
	UnlockedAchievements []string

	// XPEarned is the total XP awarded: challenge reward plus bonuses.
	XPEarned int

	// LeveledUp is true if the user's level increased.
	LeveledUp bool

	// Attempts is how many write attempts the command took.
	Attempts int
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// RecordChallengeAttemptHandlerConfig contains handler settings.
type RecordChallengeAttemptHandlerConfig struct {
	// Retrier drives the conflict retry loop.
	Retrier *retry.Retrier

	// Clock returns the current time. Injected for tests.
	Clock func() time.Time
}

// DefaultRecordChallengeAttemptHandlerConfig returns the default settings.
func DefaultRecordChallengeAttemptHandlerConfig() RecordChallengeAttemptHandlerConfig {
	return RecordChallengeAttemptHandlerConfig{
		Retrier: retry.ConflictRetrier(),
		Clock:   timeutil.Now,
	}
}

// RecordChallengeAttemptHandler coordinates attempt recording.
// The attempt log is append-only: every call adds a new entry, there is
// no idempotence short-circuit here.
type RecordChallengeAttemptHandler struct {
	store          progression.Store
	challenges     progression.ChallengeCatalog
	engine         *achievement.Engine
	eventPublisher shared.EventPublisher
	cache          ProfileCacheInvalidator
	logger         *logger.Logger
	config         RecordChallengeAttemptHandlerConfig
}

// NewRecordChallengeAttemptHandler creates a new handler.
// Pass nil cache to skip invalidation.
func NewRecordChallengeAttemptHandler(
	store progression.Store,
	challenges progression.ChallengeCatalog,
	engine *achievement.Engine,
	eventPublisher shared.EventPublisher,
	cache ProfileCacheInvalidator,
	log *logger.Logger,
	config RecordChallengeAttemptHandlerConfig,
) *RecordChallengeAttemptHandler {
	if config.Retrier == nil {
		config.Retrier = retry.ConflictRetrier()
	}
	if config.Clock == nil {
		config.Clock = timeutil.Now
	}
	if log == nil {
		log = logger.Default()
	}

	return &RecordChallengeAttemptHandler{
		store:          store,
		challenges:     challenges,
		engine:         engine,
		eventPublisher: eventPublisher,
		cache:          cache,
		logger:         log.With(logger.Component("record_challenge_attempt")),
		config:         config,
	}
}

// attemptOutcome carries the committed state needed for events.
type attemptOutcome struct {
	attempt        *challenge.Attempt
	profile        *profile.Profile
	unlocked       []achievement.Achievement
	xpEarned       int
	oldLevel       profile.Level
	streakBefore   int
	streakWasReset bool
	streakExtended bool
}

// Handle executes the command.
func (h *RecordChallengeAttemptHandler) Handle(ctx context.Context, cmd RecordChallengeAttemptCommand) (*RecordChallengeAttemptResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("progression", "RecordChallengeAttempt", shared.ErrValidation, "invalid command", err)
	}

	ch, err := h.challenges.FindChallenge(ctx, cmd.ChallengeID)
	if err != nil {
		return nil, fmt.Errorf("record_challenge_attempt: %w", err)
	}

	var outcome *attemptOutcome
	attempts := 0

	err = h.config.Retrier.Do(ctx, func(ctx context.Context) error {
		attempts++

		out, attemptErr := h.attempt(ctx, cmd, ch)
		if attemptErr != nil {
			if shared.IsRetryable(attemptErr) {
				h.logger.Warn("write conflict, retrying from fresh snapshot",
					logger.UserID(cmd.UserID),
					logger.ChallengeID(cmd.ChallengeID),
					logger.Attempt(attempts),
				)
				return retry.Retryable(attemptErr)
			}
			return retry.Permanent(attemptErr)
		}

		outcome = out
		return nil
	})
	if err != nil {
		if shared.IsRetryable(err) {
			return nil, shared.WrapError(
				"progression", "RecordChallengeAttempt",
				shared.ErrConcurrencyExhausted,
				"gave up after repeated write conflicts", err,
			)
		}
		return nil, fmt.Errorf("record_challenge_attempt: %w", err)
	}

	h.invalidateCache(ctx, cmd.UserID)
	h.publishEvents(cmd, outcome)

	h.logger.Info("challenge attempt recorded",
		logger.UserID(cmd.UserID),
		logger.ChallengeID(cmd.ChallengeID),
		logger.Int("score", cmd.Score),
		logger.Bool("passed", cmd.Passed),
		logger.XPAmount(outcome.xpEarned),
	)

	return &RecordChallengeAttemptResult{
		Attempt:              outcome.attempt,
		Profile:              outcome.profile,
		UnlockedAchievements: achievementIDs(outcome.unlocked),
		XPEarned:             outcome.xpEarned,
		LeveledUp:            outcome.profile.Level > outcome.oldLevel,
		Attempts:             attempts,
	}, nil
}

// attempt runs one full recording cycle against a fresh snapshot.
func (h *RecordChallengeAttemptHandler) attempt(
	ctx context.Context,
	cmd RecordChallengeAttemptCommand,
	ch *challenge.Challenge,
) (*attemptOutcome, error) {
	p, err := h.store.ReadProfile(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}

	now := h.config.Clock()

	att, err := challenge.NewAttempt(challenge.NewAttemptParams{
		ID:               uuid.NewString(),
		UserID:           cmd.UserID,
		ChallengeID:      cmd.ChallengeID,
		Score:            cmd.Score,
		Passed:           cmd.Passed,
		TimeTakenMinutes: cmd.TimeTakenMinutes,
	}, now)
	if err != nil {
		return nil, err
	}

	// Failed attempt: append the log entry and nothing else.
	// The profile row is not touched, so there is no version to check.
	if !cmd.Passed {
		set := progression.NewMutationSet().AddChallengeAttempt(att)
		if err := h.store.WriteAtomic(ctx, cmd.UserID, set); err != nil {
			return nil, err
		}
		return &attemptOutcome{
			attempt:  att,
			profile:  p,
			oldLevel: p.Level,
		}, nil
	}

	expectedVersion := p.Version
	oldLevel := p.Level
	streakBefore := p.CurrentStreak

	if _, err := p.GainXP(profile.XP(ch.XPReward)); err != nil {
		return nil, shared.WrapError("profile", "GainXP", shared.ErrNegativeValue, "invalid xp delta", err)
	}

	update := profile.ApplyActivity(p.LastActivityDate, p.CurrentStreak, p.LongestStreak, now)
	p.CurrentStreak = update.CurrentStreak
	p.LongestStreak = update.LongestStreak
	p.LastActivityDate = update.LastActivityDate

	snapshot, err := h.postWriteSnapshot(ctx, cmd, p)
	if err != nil {
		return nil, err
	}

	earned, err := h.store.ReadEarnedAchievements(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}
	snapshot.AchievementsEarned = len(earned)

	unlocked, err := h.engine.Evaluate(snapshot, earned)
	if err != nil {
		return nil, shared.WrapError("achievement", "Evaluate", shared.ErrInvalidInput, "rule evaluation failed", err)
	}

	bonus := achievement.TotalBonus(unlocked)
	if bonus > 0 {
		if _, err := p.GainXP(profile.XP(bonus)); err != nil {
			return nil, shared.WrapError("profile", "GainXP", shared.ErrNegativeValue, "invalid bonus delta", err)
		}
	}

	set := progression.NewMutationSet().
		AddChallengeAttempt(att).
		AddProfileUpdate(p, expectedVersion)
	for _, a := range unlocked {
		set.AddUserAchievement(&achievement.UserAchievement{
			ID:            uuid.NewString(),
			UserID:        cmd.UserID,
			AchievementID: a.ID,
			EarnedAt:      now,
		})
	}

	if err := h.store.WriteAtomic(ctx, cmd.UserID, set); err != nil {
		return nil, err
	}

	return &attemptOutcome{
		attempt:        att,
		profile:        p,
		unlocked:       unlocked,
		xpEarned:       ch.XPReward + bonus,
		oldLevel:       oldLevel,
		streakBefore:   streakBefore,
		streakWasReset: update.WasReset,
		streakExtended: update.Extended,
	}, nil
}

// postWriteSnapshot builds the stats snapshot as it will look after the
// pending write commits.
func (h *RecordChallengeAttemptHandler) postWriteSnapshot(
	ctx context.Context,
	cmd RecordChallengeAttemptCommand,
	p *profile.Profile,
) (achievement.StatsSnapshot, error) {
	snapshot, err := h.store.ReadStats(ctx, cmd.UserID)
	if err != nil {
		return achievement.StatsSnapshot{}, err
	}

	snapshot.ChallengesPassed++
	snapshot.TimeSpentMinutes += cmd.TimeTakenMinutes
	snapshot.XP = int(p.XP)
	snapshot.Level = int(p.Level)
	snapshot.CurrentStreak = p.CurrentStreak
	snapshot.LongestStreak = p.LongestStreak

	return snapshot, nil
}

// invalidateCache drops the cached profile overview after a committed write.
func (h *RecordChallengeAttemptHandler) invalidateCache(ctx context.Context, userID string) {
	if h.cache == nil {
		return
	}
	if err := h.cache.InvalidateProfile(ctx, userID); err != nil {
		h.logger.Warn("failed to invalidate profile cache",
			logger.UserID(userID),
			logger.Err(err),
		)
	}
}

// publishEvents emits post-commit notifications.
func (h *RecordChallengeAttemptHandler) publishEvents(
	cmd RecordChallengeAttemptCommand,
	out *attemptOutcome,
) {
	if h.eventPublisher == nil {
		return
	}

	_ = h.eventPublisher.Publish(shared.NewChallengeAttemptedEvent(
		cmd.UserID, cmd.ChallengeID, out.attempt.ID, cmd.Score, cmd.Passed,
	))

	if !cmd.Passed {
		return
	}

	_ = h.eventPublisher.Publish(shared.NewXPGainedEvent(
		cmd.UserID, out.xpEarned, int(out.profile.XP), "challenge", cmd.ChallengeID,
	))

	if out.profile.Level > out.oldLevel {
		_ = h.eventPublisher.Publish(shared.NewLevelUpEvent(
			cmd.UserID, int(out.oldLevel), int(out.profile.Level), int(out.profile.XP),
		))
	}

	if out.streakWasReset && out.streakBefore > 0 {
		_ = h.eventPublisher.Publish(shared.NewStreakBrokenEvent(cmd.UserID, out.streakBefore))
	}
	if out.streakExtended {
		_ = h.eventPublisher.Publish(shared.NewStreakExtendedEvent(
			cmd.UserID, out.profile.CurrentStreak, out.profile.LongestStreak,
		))
	}

	for _, a := range out.unlocked {
		_ = h.eventPublisher.Publish(shared.NewAchievementUnlockedEvent(
			cmd.UserID, a.ID, string(a.Rarity), a.XPBonus,
		))
	}
}
