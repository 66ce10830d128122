package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devsecops-academy/progression-engine/internal/domain/achievement"
	"github.com/devsecops-academy/progression-engine/internal/domain/challenge"
	"github.com/devsecops-academy/progression-engine/internal/domain/profile"
	"github.com/devsecops-academy/progression-engine/internal/domain/progression"
	"github.com/devsecops-academy/progression-engine/internal/domain/shared"
	"github.com/devsecops-academy/progression-engine/pkg/timeutil"
)

func newAttemptHandler(
	store *fakeStore,
	catalog *fakeChallengeCatalog,
	engine *achievement.Engine,
	bus *recordingPublisher,
	clockDay int,
) *RecordChallengeAttemptHandler {
	return NewRecordChallengeAttemptHandler(store, catalog, engine, bus, nil, nil, RecordChallengeAttemptHandlerConfig{
		Retrier: fastRetrier(),
		Clock:   fixedClock(timeutil.Date(2026, 3, clockDay)),
	})
}

func firstChallengeEngine(t *testing.T) *achievement.Engine {
	t.Helper()
	engine, err := achievement.NewEngine([]achievement.Achievement{
		{
			ID:        "first-challenge",
			Name:      "Hands On",
			Rarity:    achievement.RarityCommon,
			XPBonus:   75,
			Condition: achievement.Require(achievement.StatChallengesPassed, achievement.OpGTE, 1),
		},
	})
	require.NoError(t, err)
	return engine
}

func TestRecordChallengeAttempt_PassedAwardsXP(t *testing.T) {
	store := newFakeStore()
	store.seedProfile(testProfile("u-1"))
	catalog := &fakeChallengeCatalog{challenges: map[string]*challenge.Challenge{
		"ch-1": testChallenge("ch-1", 200),
	}}
	bus := &recordingPublisher{}

	h := newAttemptHandler(store, catalog, emptyEngine(t), bus, 10)
	res, err := h.Handle(context.Background(), RecordChallengeAttemptCommand{
		UserID:           "u-1",
		ChallengeID:      "ch-1",
		Score:            92,
		Passed:           true,
		TimeTakenMinutes: 15,
	})

	require.NoError(t, err)
	assert.Equal(t, 200, res.XPEarned)
	assert.Equal(t, profile.XP(200), res.Profile.XP)
	assert.Equal(t, 1, res.Profile.CurrentStreak)
	assert.Equal(t, 1, res.Attempts)

	require.NotNil(t, res.Attempt)
	assert.Equal(t, 92, res.Attempt.Score)
	assert.True(t, res.Attempt.Passed)

	assert.Equal(t, 1, store.writeCalls)
	assert.Equal(t, 4, store.profileVersion("u-1"))

	assert.True(t, bus.has(shared.EventChallengeAttempted))
	assert.True(t, bus.has(shared.EventXPGained))
}

func TestRecordChallengeAttempt_FailedAppendsWithoutTouchingProfile(t *testing.T) {
	store := newFakeStore()
	store.seedProfile(testProfile("u-1"))
	catalog := &fakeChallengeCatalog{challenges: map[string]*challenge.Challenge{
		"ch-1": testChallenge("ch-1", 200),
	}}
	bus := &recordingPublisher{}

	h := newAttemptHandler(store, catalog, emptyEngine(t), bus, 10)
	res, err := h.Handle(context.Background(), RecordChallengeAttemptCommand{
		UserID:           "u-1",
		ChallengeID:      "ch-1",
		Score:            40,
		Passed:           false,
		TimeTakenMinutes: 30,
	})

	require.NoError(t, err)
	assert.Equal(t, 0, res.XPEarned)
	assert.Equal(t, profile.XP(0), res.Profile.XP)
	assert.Equal(t, 0, res.Profile.CurrentStreak)
	assert.Empty(t, res.UnlockedAchievements)

	// The attempt is logged; the profile version is untouched.
	assert.Equal(t, 1, store.writeCalls)
	assert.Equal(t, 3, store.profileVersion("u-1"))
	require.Len(t, store.lastMutations, 1)
	_, ok := store.lastMutations[0].(progression.InsertChallengeAttempt)
	assert.True(t, ok)

	// The attempt event still goes out; no XP or streak events.
	assert.True(t, bus.has(shared.EventChallengeAttempted))
	assert.False(t, bus.has(shared.EventXPGained))
	assert.False(t, bus.has(shared.EventStreakExtended))
}

func TestRecordChallengeAttempt_FailedRetriesCountSeparately(t *testing.T) {
	store := newFakeStore()
	store.seedProfile(testProfile("u-1"))
	catalog := &fakeChallengeCatalog{challenges: map[string]*challenge.Challenge{
		"ch-1": testChallenge("ch-1", 200),
	}}
	engine := firstChallengeEngine(t)

	// Two failed attempts do not unlock anything.
	for i := 0; i < 2; i++ {
		h := newAttemptHandler(store, catalog, engine, &recordingPublisher{}, 10)
		res, err := h.Handle(context.Background(), RecordChallengeAttemptCommand{
			UserID: "u-1", ChallengeID: "ch-1", Score: 30, Passed: false,
		})
		require.NoError(t, err)
		assert.Empty(t, res.UnlockedAchievements)
	}

	// The first pass unlocks first-challenge with its bonus.
	h := newAttemptHandler(store, catalog, engine, &recordingPublisher{}, 10)
	res, err := h.Handle(context.Background(), RecordChallengeAttemptCommand{
		UserID: "u-1", ChallengeID: "ch-1", Score: 95, Passed: true,
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"first-challenge"}, res.UnlockedAchievements)
	assert.Equal(t, 275, res.XPEarned)
	assert.Equal(t, profile.XP(275), res.Profile.XP)
	assert.Len(t, store.attempts, 3)
}

func TestRecordChallengeAttempt_RepassingSameChallengeCountsEveryPass(t *testing.T) {
	store := newFakeStore()
	store.seedProfile(testProfile("u-1"))
	catalog := &fakeChallengeCatalog{challenges: map[string]*challenge.Challenge{
		"ch-1": testChallenge("ch-1", 100),
	}}
	engine, err := achievement.NewEngine([]achievement.Achievement{
		{
			ID:        "persistent",
			Name:      "Persistent",
			Rarity:    achievement.RarityCommon,
			XPBonus:   25,
			Condition: achievement.Require(achievement.StatChallengesPassed, achievement.OpGTE, 2),
		},
	})
	require.NoError(t, err)

	h := newAttemptHandler(store, catalog, engine, &recordingPublisher{}, 10)
	res, err := h.Handle(context.Background(), RecordChallengeAttemptCommand{
		UserID: "u-1", ChallengeID: "ch-1", Score: 90, Passed: true,
	})
	require.NoError(t, err)
	assert.Empty(t, res.UnlockedAchievements)

	// Passed attempts count as rows: re-passing the same challenge
	// moves the counter to 2 and crosses the threshold.
	h = newAttemptHandler(store, catalog, engine, &recordingPublisher{}, 11)
	res, err = h.Handle(context.Background(), RecordChallengeAttemptCommand{
		UserID: "u-1", ChallengeID: "ch-1", Score: 95, Passed: true,
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"persistent"}, res.UnlockedAchievements)
	assert.Equal(t, 125, res.XPEarned)
	assert.Len(t, store.attempts, 2)
}

func TestRecordChallengeAttempt_RetriesConflict(t *testing.T) {
	store := newFakeStore()
	store.seedProfile(testProfile("u-1"))
	store.conflictsLeft = 1
	catalog := &fakeChallengeCatalog{challenges: map[string]*challenge.Challenge{
		"ch-1": testChallenge("ch-1", 200),
	}}

	h := newAttemptHandler(store, catalog, emptyEngine(t), &recordingPublisher{}, 10)
	res, err := h.Handle(context.Background(), RecordChallengeAttemptCommand{
		UserID: "u-1", ChallengeID: "ch-1", Score: 90, Passed: true,
	})

	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, profile.XP(200), res.Profile.XP)
}

func TestRecordChallengeAttempt_GivesUpAfterThreeConflicts(t *testing.T) {
	store := newFakeStore()
	store.seedProfile(testProfile("u-1"))
	store.conflictsLeft = 3
	catalog := &fakeChallengeCatalog{challenges: map[string]*challenge.Challenge{
		"ch-1": testChallenge("ch-1", 200),
	}}

	h := newAttemptHandler(store, catalog, emptyEngine(t), &recordingPublisher{}, 10)
	_, err := h.Handle(context.Background(), RecordChallengeAttemptCommand{
		UserID: "u-1", ChallengeID: "ch-1", Score: 90, Passed: true,
	})

	require.Error(t, err)
	assert.True(t, shared.IsConcurrencyExhausted(err))
	assert.ErrorIs(t, err, shared.ErrConcurrencyExhausted)
}

func TestRecordChallengeAttempt_UnknownChallenge(t *testing.T) {
	store := newFakeStore()
	store.seedProfile(testProfile("u-1"))
	catalog := &fakeChallengeCatalog{challenges: map[string]*challenge.Challenge{}}

	h := newAttemptHandler(store, catalog, emptyEngine(t), &recordingPublisher{}, 10)
	_, err := h.Handle(context.Background(), RecordChallengeAttemptCommand{
		UserID: "u-1", ChallengeID: "ghost", Score: 90, Passed: true,
	})

	assert.True(t, shared.IsNotFound(err))
}

func TestRecordChallengeAttempt_ValidatesCommand(t *testing.T) {
	h := newAttemptHandler(newFakeStore(), &fakeChallengeCatalog{}, emptyEngine(t), &recordingPublisher{}, 10)

	_, err := h.Handle(context.Background(), RecordChallengeAttemptCommand{ChallengeID: "ch-1", Score: 50})
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(context.Background(), RecordChallengeAttemptCommand{UserID: "u-1", ChallengeID: "ch-1", Score: 101})
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(context.Background(), RecordChallengeAttemptCommand{UserID: "u-1", ChallengeID: "ch-1", Score: -1})
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(context.Background(), RecordChallengeAttemptCommand{UserID: "u-1", ChallengeID: "ch-1", Score: 50, TimeTakenMinutes: -2})
	assert.True(t, shared.IsValidation(err))
}
