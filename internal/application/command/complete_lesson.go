// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/devsecops-academy/progression-engine/internal/domain/achievement"
	"github.com/devsecops-academy/progression-engine/internal/domain/lesson"
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

// CompleteLessonCommand marks a lesson as completed for a user, awards XP,
// updates the daily streak and evaluates achievement unlocks.
type CompleteLessonCommand struct {
	// UserID is the internal user identifier.
	UserID string

	// LessonID identifies the lesson in the catalog.
	LessonID string

	// TimeSpentMinutes is the time the user spent on the lesson.
	TimeSpentMinutes int
}

// Validate checks the command for correctness.
func (c CompleteLessonCommand) Validate() error {
	if c.UserID == "" {
		return errors.New("complete_lesson: user_id is required")
	}
	if c.LessonID == "" {
		return errors.New("complete_lesson: lesson_id is required")
	}
	if c.TimeSpentMinutes < 0 {
		return errors.New("complete_lesson: time_spent_minutes cannot be negative")
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RESULT
// ══════════════════════════════════════════════════════════════════════════════

// CompleteLessonResult describes the outcome of a lesson completion.
type CompleteLessonResult struct {
	// Profile is the post-write state of the user profile.
	Profile *profile.Profile

	// UnlockedAchievements lists achievements unlocked by this completion,
	// sorted by achievement ID.
	UnlockedAchievements []string

	// XPEarned is the total XP awarded: lesson reward plus achievement bonuses.
	XPEarned int

	// LeveledUp is true if the user's level increased.
	LeveledUp bool

	// AlreadyCompleted is true when the lesson was completed earlier.
	// In that case nothing was written and no XP was awarded.
	AlreadyCompleted bool

	// Attempts is how many write attempts the completion took.
	Attempts int
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// ProfileCacheInvalidator drops cached read models after a committed write.
type ProfileCacheInvalidator interface {
	InvalidateProfile(ctx context.Context, userID string) error
}

// CompleteLessonHandlerConfig contains handler settings.
type CompleteLessonHandlerConfig struct {
	// Retrier drives the conflict retry loop.
	Retrier *retry.Retrier

	// Clock returns the current time. Injected for tests.
	Clock func() time.Time
}

// DefaultCompleteLessonHandlerConfig returns the default settings.
func DefaultCompleteLessonHandlerConfig() CompleteLessonHandlerConfig {
	return CompleteLessonHandlerConfig{
		Retrier: retry.ConflictRetrier(),
		Clock:   timeutil.Now,
	}
}

// CompleteLessonHandler coordinates lesson completion: it rereads state,
// applies XP and streak updates, evaluates achievements and writes everything
// as one atomic mutation set. On a write conflict the whole cycle restarts
// from a fresh snapshot.
type CompleteLessonHandler struct {
	store          progression.Store
	lessons        progression.LessonCatalog
	engine         *achievement.Engine
	eventPublisher shared.EventPublisher
	cache          ProfileCacheInvalidator
	logger         *logger.Logger
	config         CompleteLessonHandlerConfig
}

// NewCompleteLessonHandler creates a new handler.
// Pass nil cache to skip invalidation.
func NewCompleteLessonHandler(
	store progression.Store,
	lessons progression.LessonCatalog,
	engine *achievement.Engine,
	eventPublisher shared.EventPublisher,
	cache ProfileCacheInvalidator,
	log *logger.Logger,
	config CompleteLessonHandlerConfig,
) *CompleteLessonHandler {
	if config.Retrier == nil {
		config.Retrier = retry.ConflictRetrier()
	}
	if config.Clock == nil {
		config.Clock = timeutil.Now
	}
	if log == nil {
		log = logger.Default()
	}

	return &CompleteLessonHandler{
		store:          store,
		lessons:        lessons,
		engine:         engine,
		eventPublisher: eventPublisher,
		cache:          cache,
		logger:         log.With(logger.Component("complete_lesson")),
		config:         config,
	}
}

// completionOutcome carries the committed state needed for events.
type completionOutcome struct {
	profile          *profile.Profile
	unlocked         []achievement.Achievement
	xpEarned         int
	oldLevel         profile.Level
	streakBefore     int
	streakWasReset   bool
	streakExtended   bool
	alreadyCompleted bool
}

// Handle executes the command.
//
// Completing the same lesson twice is a no-op: the second call returns the
// current profile with AlreadyCompleted set and awards nothing.
func (h *CompleteLessonHandler) Handle(ctx context.Context, cmd CompleteLessonCommand) (*CompleteLessonResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("progression", "CompleteLesson", shared.ErrValidation, "invalid command", err)
	}

	lsn, err := h.lessons.FindLesson(ctx, cmd.LessonID)
	if err != nil {
		return nil, fmt.Errorf("complete_lesson: %w", err)
	}
	if !lsn.Published {
		return nil, shared.ErrLessonUnpublished
	}

	var outcome *completionOutcome
	attempts := 0

	err = h.config.Retrier.Do(ctx, func(ctx context.Context) error {
		attempts++

		out, attemptErr := h.attempt(ctx, cmd, lsn)
		if attemptErr != nil {
			if shared.IsRetryable(attemptErr) {
				h.logger.Warn("write conflict, retrying from fresh snapshot",
					logger.UserID(cmd.UserID),
					logger.LessonID(cmd.LessonID),
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
				"progression", "CompleteLesson",
				shared.ErrConcurrencyExhausted,
				"gave up after repeated write conflicts", err,
			)
		}
		return nil, fmt.Errorf("complete_lesson: %w", err)
	}

	result := &CompleteLessonResult{
		Profile:              outcome.profile,
		UnlockedAchievements: achievementIDs(outcome.unlocked),
		XPEarned:             outcome.xpEarned,
		LeveledUp:            outcome.profile.Level > outcome.oldLevel,
		AlreadyCompleted:     outcome.alreadyCompleted,
		Attempts:             attempts,
	}

	if !outcome.alreadyCompleted {
		h.invalidateCache(ctx, cmd.UserID)
		h.publishEvents(cmd, lsn, outcome)

		h.logger.Info("lesson completed",
			logger.UserID(cmd.UserID),
			logger.LessonID(cmd.LessonID),
			logger.XPAmount(result.XPEarned),
			logger.LevelValue(int(outcome.profile.Level)),
			logger.Attempt(attempts),
		)
	}

	return result, nil
}

// attempt runs one full completion cycle against a fresh snapshot.
// Any shared.IsRetryable error from the write invalidates the snapshot
// and the caller restarts the cycle.
func (h *CompleteLessonHandler) attempt(
	ctx context.Context,
	cmd CompleteLessonCommand,
	lsn *lesson.Lesson,
) (*completionOutcome, error) {
	p, err := h.store.ReadProfile(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}

	prog, err := h.store.ReadLessonProgress(ctx, cmd.UserID, cmd.LessonID)
	if err != nil {
		return nil, err
	}
	if prog != nil && prog.IsCompleted() {
		return &completionOutcome{profile: p, alreadyCompleted: true}, nil
	}

	now := h.config.Clock()

	if prog == nil {
		prog, err = lesson.NewProgress(uuid.NewString(), cmd.UserID, cmd.LessonID, now)
		if err != nil {
			return nil, err
		}
	}
	if err := prog.Complete(cmd.TimeSpentMinutes, now); err != nil {
		return nil, err
	}

	expectedVersion := p.Version
	oldLevel := p.Level
	streakBefore := p.CurrentStreak

	if _, err := p.GainXP(profile.XP(lsn.XPReward)); err != nil {
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
		AddLessonProgress(prog).
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

	return &completionOutcome{
		profile:        p,
		unlocked:       unlocked,
		xpEarned:       lsn.XPReward + bonus,
		oldLevel:       oldLevel,
		streakBefore:   streakBefore,
		streakWasReset: update.WasReset,
		streakExtended: update.Extended,
	}, nil
}

// postWriteSnapshot builds the stats snapshot as it will look after the
// pending write commits. Achievements are evaluated against this post-state:
// completing the first lesson must satisfy "lessons_completed >= 1".
func (h *CompleteLessonHandler) postWriteSnapshot(
	ctx context.Context,
	cmd CompleteLessonCommand,
	p *profile.Profile,
) (achievement.StatsSnapshot, error) {
	snapshot, err := h.store.ReadStats(ctx, cmd.UserID)
	if err != nil {
		return achievement.StatsSnapshot{}, err
	}

	snapshot.LessonsCompleted++
	snapshot.TimeSpentMinutes += cmd.TimeSpentMinutes
	snapshot.XP = int(p.XP)
	snapshot.Level = int(p.Level)
	snapshot.CurrentStreak = p.CurrentStreak
	snapshot.LongestStreak = p.LongestStreak

	return snapshot, nil
}

// invalidateCache drops the cached profile overview after a committed write.
// Cache failures are logged, never surfaced: the write already succeeded.
func (h *CompleteLessonHandler) invalidateCache(ctx context.Context, userID string) {
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

// publishEvents emits post-commit notifications. Failures are ignored:
// events are best-effort, the source of truth has already been written.
func (h *CompleteLessonHandler) publishEvents(
	cmd CompleteLessonCommand,
	lsn *lesson.Lesson,
	out *completionOutcome,
) {
	if h.eventPublisher == nil {
		return
	}

	_ = h.eventPublisher.Publish(shared.NewLessonCompletedEvent(cmd.UserID, cmd.LessonID, out.xpEarned))
	_ = h.eventPublisher.Publish(shared.NewXPGainedEvent(
		cmd.UserID, out.xpEarned, int(out.profile.XP), "lesson", cmd.LessonID,
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

// achievementIDs projects unlocked achievements to their identifiers.
func achievementIDs(achievements []achievement.Achievement) []string {
	ids := make([]string, 0, len(achievements))
	for _, a := range achievements {
		ids = append(ids, a.ID)
	}
	return ids
}
