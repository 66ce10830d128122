package command

import (
	"context"
	"sync"
	"time"

	"github.com/devsecops-academy/progression-engine/internal/domain/achievement"
	"github.com/devsecops-academy/progression-engine/internal/domain/challenge"
	"github.com/devsecops-academy/progression-engine/internal/domain/lesson"
	"github.com/devsecops-academy/progression-engine/internal/domain/profile"
	"github.com/devsecops-academy/progression-engine/internal/domain/progression"
	"github.com/devsecops-academy/progression-engine/internal/domain/shared"
	"github.com/devsecops-academy/progression-engine/pkg/retry"
	"github.com/devsecops-academy/progression-engine/pkg/timeutil"
)

// fakeStore is an in-memory progression.Store with real optimistic
// concurrency semantics: WriteAtomic rejects a stale profile version
// and applies the whole mutation set or nothing.
type fakeStore struct {
	mu sync.Mutex

	profiles map[string]*profile.Profile
	progress map[string]*lesson.Progress // keyed by userID+"/"+lessonID
	attempts []*challenge.Attempt
	earned   map[string]map[string]bool // userID -> achievementID

	// conflictsLeft forces that many WriteAtomic calls to fail with
	// a write conflict before writes start succeeding.
	conflictsLeft int

	writeCalls    int
	lastMutations []progression.Mutation
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		profiles: make(map[string]*profile.Profile),
		progress: make(map[string]*lesson.Progress),
		earned:   make(map[string]map[string]bool),
	}
}

func (s *fakeStore) seedProfile(p *profile.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ID] = p.Clone()
}

func (s *fakeStore) profileVersion(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profiles[userID].Version
}

func progressKey(userID, lessonID string) string {
	return userID + "/" + lessonID
}

func (s *fakeStore) ReadProfile(ctx context.Context, userID string) (*profile.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, shared.ErrProfileNotFound
	}
	return p.Clone(), nil
}

func (s *fakeStore) ReadLessonProgress(ctx context.Context, userID, lessonID string) (*lesson.Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prog, ok := s.progress[progressKey(userID, lessonID)]
	if !ok {
		return nil, nil
	}
	return prog.Clone(), nil
}

func (s *fakeStore) ReadStats(ctx context.Context, userID string) (achievement.StatsSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var snap achievement.StatsSnapshot
	for _, prog := range s.progress {
		if prog.UserID != userID {
			continue
		}
		if prog.IsCompleted() {
			snap.LessonsCompleted++
		}
		snap.TimeSpentMinutes += prog.TimeSpentMinutes
	}
	for _, att := range s.attempts {
		if att.UserID != userID {
			continue
		}
		// Row semantics: every passed attempt counts, re-passes included.
		if att.Passed {
			snap.ChallengesPassed++
		}
		snap.TimeSpentMinutes += att.TimeTakenMinutes
	}
	snap.AchievementsEarned = len(s.earned[userID])
	if p, ok := s.profiles[userID]; ok {
		snap.XP = int(p.XP)
		snap.Level = int(p.Level)
		snap.CurrentStreak = p.CurrentStreak
		snap.LongestStreak = p.LongestStreak
	}
	return snap, nil
}

func (s *fakeStore) ReadEarnedAchievements(ctx context.Context, userID string) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]bool, len(s.earned[userID]))
	for id := range s.earned[userID] {
		out[id] = true
	}
	return out, nil
}

func (s *fakeStore) WriteAtomic(ctx context.Context, userID string, set *progression.MutationSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.writeCalls++
	s.lastMutations = set.Mutations()

	if s.conflictsLeft > 0 {
		s.conflictsLeft--
		return shared.ErrWriteConflict
	}

	// Version check before touching anything.
	for _, m := range set.Mutations() {
		if upd, ok := m.(progression.UpdateProfile); ok {
			stored, exists := s.profiles[upd.Profile.ID]
			if !exists {
				return shared.ErrProfileNotFound
			}
			if stored.Version != upd.ExpectedVersion {
				return shared.ErrWriteConflict
			}
		}
	}

	for _, m := range set.Mutations() {
		switch mut := m.(type) {
		case progression.UpsertLessonProgress:
			s.progress[progressKey(mut.Progress.UserID, mut.Progress.LessonID)] = mut.Progress.Clone()
		case progression.UpdateProfile:
			updated := mut.Profile.Clone()
			updated.Version = mut.ExpectedVersion + 1
			s.profiles[updated.ID] = updated
		case progression.InsertChallengeAttempt:
			s.attempts = append(s.attempts, mut.Attempt)
		case progression.InsertUserAchievement:
			if s.earned[mut.Earned.UserID] == nil {
				s.earned[mut.Earned.UserID] = make(map[string]bool)
			}
			s.earned[mut.Earned.UserID][mut.Earned.AchievementID] = true
		}
	}
	return nil
}

func (s *fakeStore) CreateProfile(ctx context.Context, p *profile.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.profiles {
		if existing.Username == p.Username || existing.Email == p.Email {
			return shared.ErrProfileAlreadyExists
		}
	}
	s.profiles[p.ID] = p.Clone()
	return nil
}

// fakeLessonCatalog serves lessons from a map.
type fakeLessonCatalog struct {
	lessons map[string]*lesson.Lesson
}

func (c *fakeLessonCatalog) FindLesson(ctx context.Context, lessonID string) (*lesson.Lesson, error) {
	lsn, ok := c.lessons[lessonID]
	if !ok {
		return nil, shared.ErrLessonNotFound
	}
	return lsn, nil
}

func (c *fakeLessonCatalog) ListPublishedLessons(ctx context.Context) ([]*lesson.Lesson, error) {
	var out []*lesson.Lesson
	for _, lsn := range c.lessons {
		if lsn.Published {
			out = append(out, lsn)
		}
	}
	return out, nil
}

// fakeChallengeCatalog serves challenges from a map.
type fakeChallengeCatalog struct {
	challenges map[string]*challenge.Challenge
}

func (c *fakeChallengeCatalog) FindChallenge(ctx context.Context, challengeID string) (*challenge.Challenge, error) {
	ch, ok := c.challenges[challengeID]
	if !ok {
		return nil, shared.ErrChallengeNotFound
	}
	return ch, nil
}

// recordingPublisher captures published event types.
type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.EventType
}

func (p *recordingPublisher) Publish(event shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event.EventType())
	return nil
}

func (p *recordingPublisher) published() []shared.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]shared.EventType(nil), p.events...)
}

func (p *recordingPublisher) has(eventType shared.EventType) bool {
	for _, et := range p.published() {
		if et == eventType {
			return true
		}
	}
	return false
}

// fastRetrier keeps the conflict retry protocol but without real backoff.
func fastRetrier() *retry.Retrier {
	return retry.New(
		retry.WithMaxAttempts(3),
		retry.WithInitialDelay(time.Millisecond),
		retry.WithMaxDelay(2*time.Millisecond),
	)
}

func fixedClock(day time.Time) func() time.Time {
	return func() time.Time { return day }
}

func testProfile(userID string) *profile.Profile {
	return &profile.Profile{
		ID:                   userID,
		Username:             "gopher",
		Email:                "gopher@example.com",
		XP:                   0,
		Level:                1,
		DifficultyPreference: profile.DifficultyBeginner,
		Version:              3,
		CreatedAt:            timeutil.Date(2026, 1, 1),
	}
}

func publishedLesson(id string, xpReward int) *lesson.Lesson {
	return &lesson.Lesson{
		ID:               id,
		Title:            "Threat Modeling Basics",
		Category:         "security",
		Difficulty:       "beginner",
		EstimatedMinutes: 30,
		XPReward:         xpReward,
		Published:        true,
	}
}

func testChallenge(id string, xpReward int) *challenge.Challenge {
	return &challenge.Challenge{
		ID:       id,
		LessonID: "lesson-1",
		Title:    "Patch the Vulnerability",
		Type:     challenge.TypeCode,
		XPReward: xpReward,
	}
}
