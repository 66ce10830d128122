package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/devsecops-academy/progression-engine/internal/domain/achievement"
	"github.com/devsecops-academy/progression-engine/internal/domain/challenge"
	"github.com/devsecops-academy/progression-engine/internal/domain/lesson"
	"github.com/devsecops-academy/progression-engine/internal/domain/profile"
	"github.com/devsecops-academy/progression-engine/internal/domain/progression"
	"github.com/devsecops-academy/progression-engine/internal/domain/shared"
	"github.com/devsecops-academy/progression-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS STORE IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// Store implements progression.Store, progression.ProfileCreator and
// progression.LeaderboardReader for PostgreSQL.
//
// Concurrency model: the profiles row carries a version column. WriteAtomic
// applies the whole mutation set in one transaction and compares the version
// against the snapshot the caller read. A stale snapshot rolls everything
// back and surfaces shared.ErrOptimisticLock.
type Store struct {
	conn *Connection
}

// NewStore creates a new Store.
func NewStore(conn *Connection) *Store {
	return &Store{conn: conn}
}

// ─────────────────────────────────────────────────────────────────────────────
// Reads
// ─────────────────────────────────────────────────────────────────────────────

const profileColumns = `
	id, username, email, password_hash, avatar_url, bio,
	xp, level, current_streak, longest_streak, last_activity_date,
	difficulty_preference, version, created_at, updated_at
`

// ReadProfile returns a user profile by ID.
func (s *Store) ReadProfile(ctx context.Context, userID string) (*profile.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`

	row := s.conn.QueryRow(ctx, query, userID)
	p, err := scanProfile(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrProfileNotFound
		}
		return nil, mapStoreError("ReadProfile", err)
	}

	return p, nil
}

// ReadLessonProgress returns the user's progress for a lesson,
// or nil without an error when there was no interaction yet.
func (s *Store) ReadLessonProgress(ctx context.Context, userID, lessonID string) (*lesson.Progress, error) {
	query := `
		SELECT id, user_id, lesson_id, status, progress_pct,
			   started_at, completed_at, time_spent_minutes, updated_at
		FROM user_lesson_progress
		WHERE user_id = $1 AND lesson_id = $2
	`

	row := s.conn.QueryRow(ctx, query, userID, lessonID)
	prog, err := scanLessonProgress(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, nil
		}
		return nil, mapStoreError("ReadLessonProgress", err)
	}

	return prog, nil
}

// ReadStats returns the aggregate stats snapshot for a user.
// Counters come from the progress tables, streaks and XP from the profile.
// challenges_passed counts passed attempt rows: re-passing the same
// challenge counts every pass. Time spent sums every progress and attempt
// row, completed or not.
func (s *Store) ReadStats(ctx context.Context, userID string) (achievement.StatsSnapshot, error) {
	query := `
		SELECT
			p.xp,
			p.level,
			p.current_streak,
			p.longest_streak,
			COALESCE(lp.completed_count, 0),
			COALESCE(lp.lesson_minutes, 0),
			COALESCE(ca.passed_count, 0),
			COALESCE(ca.attempt_minutes, 0),
			COALESCE(ua.earned_count, 0)
		FROM profiles p
		LEFT JOIN (
			SELECT user_id,
				   COUNT(*) FILTER (WHERE status = 'completed') AS completed_count,
				   COALESCE(SUM(time_spent_minutes), 0) AS lesson_minutes
			FROM user_lesson_progress
			WHERE user_id = $1
			GROUP BY user_id
		) lp ON lp.user_id = p.id
		LEFT JOIN (
			SELECT user_id,
				   COUNT(*) FILTER (WHERE passed) AS passed_count,
				   COALESCE(SUM(time_taken_minutes), 0) AS attempt_minutes
			FROM user_challenge_attempts
			WHERE user_id = $1
			GROUP BY user_id
		) ca ON ca.user_id = p.id
		LEFT JOIN (
			SELECT user_id, COUNT(*) AS earned_count
			FROM user_achievements
			WHERE user_id = $1
			GROUP BY user_id
		) ua ON ua.user_id = p.id
		WHERE p.id = $1
	`

	var snapshot achievement.StatsSnapshot
	var lessonMinutes, attemptMinutes int

	err := s.conn.QueryRow(ctx, query, userID).Scan(
		&snapshot.XP,
		&snapshot.Level,
		&snapshot.CurrentStreak,
		&snapshot.LongestStreak,
		&snapshot.LessonsCompleted,
		&lessonMinutes,
		&snapshot.ChallengesPassed,
		&attemptMinutes,
		&snapshot.AchievementsEarned,
	)
	if err != nil {
		if IsNoRows(err) {
			return achievement.StatsSnapshot{}, shared.ErrProfileNotFound
		}
		return achievement.StatsSnapshot{}, mapStoreError("ReadStats", err)
	}

	snapshot.TimeSpentMinutes = lessonMinutes + attemptMinutes
	return snapshot, nil
}

// ReadEarnedAchievements returns the set of achievement IDs the user
// has already unlocked.
func (s *Store) ReadEarnedAchievements(ctx context.Context, userID string) (map[string]bool, error) {
	query := `SELECT achievement_id FROM user_achievements WHERE user_id = $1`

	rows, err := s.conn.Query(ctx, query, userID)
	if err != nil {
		return nil, mapStoreError("ReadEarnedAchievements", err)
	}
	defer rows.Close()

	earned := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan achievement id: %w", err)
		}
		earned[id] = true
	}

	return earned, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Atomic write
// ─────────────────────────────────────────────────────────────────────────────

// WriteAtomic applies the mutation set in a single transaction, in order.
// Either every mutation is visible to other readers or none is.
func (s *Store) WriteAtomic(ctx context.Context, userID string, set *progression.MutationSet) error {
	if set == nil || set.Len() == 0 {
		return nil
	}

	err := s.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		for _, m := range set.Mutations() {
			switch mut := m.(type) {
			case progression.UpsertLessonProgress:
				if err := s.upsertLessonProgress(ctx, tx, mut.Progress); err != nil {
					return err
				}
			case progression.UpdateProfile:
				if err := s.updateProfile(ctx, tx, mut.Profile, mut.ExpectedVersion); err != nil {
					return err
				}
			case progression.InsertChallengeAttempt:
				if err := s.insertChallengeAttempt(ctx, tx, mut.Attempt); err != nil {
					return err
				}
			case progression.InsertUserAchievement:
				if err := s.insertUserAchievement(ctx, tx, mut.Earned); err != nil {
					return err
				}
			default:
				return fmt.Errorf("postgres: unknown mutation type %T", m)
			}
		}
		return nil
	})
	if err != nil {
		return mapStoreError("WriteAtomic", err)
	}

	return nil
}

// upsertLessonProgress creates or replaces the per-lesson progress row.
func (s *Store) upsertLessonProgress(ctx context.Context, tx pgx.Tx, prog *lesson.Progress) error {
	if err := prog.CheckInvariants(); err != nil {
		return shared.WrapError("lesson", "WriteAtomic", shared.ErrInvalidEntity, "inconsistent progress", err)
	}

	query := `
		INSERT INTO user_lesson_progress (
			id, user_id, lesson_id, status, progress_pct,
			started_at, completed_at, time_spent_minutes, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id, lesson_id) DO UPDATE SET
			status = EXCLUDED.status,
			progress_pct = EXCLUDED.progress_pct,
			completed_at = EXCLUDED.completed_at,
			time_spent_minutes = EXCLUDED.time_spent_minutes,
			updated_at = EXCLUDED.updated_at
	`

	_, err := tx.Exec(ctx, query,
		prog.ID,
		prog.UserID,
		prog.LessonID,
		string(prog.Status),
		prog.ProgressPct,
		nullableTime(prog.StartedAt),
		nullableTime(prog.CompletedAt),
		prog.TimeSpentMinutes,
		prog.UpdatedAt,
	)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return shared.ErrLessonNotFound
		}
		return fmt.Errorf("failed to upsert lesson progress: %w", err)
	}

	return nil
}

// updateProfile writes the profile row with a version check.
// Zero affected rows on an existing profile means the snapshot is stale.
func (s *Store) updateProfile(ctx context.Context, tx pgx.Tx, p *profile.Profile, expectedVersion int) error {
	if err := p.CheckInvariants(); err != nil {
		return shared.WrapError("profile", "WriteAtomic", shared.ErrInvalidEntity, "inconsistent profile", err)
	}

	query := `
		UPDATE profiles SET
			xp = $1,
			level = $2,
			current_streak = $3,
			longest_streak = $4,
			last_activity_date = $5,
			avatar_url = $6,
			bio = $7,
			difficulty_preference = $8,
			version = version + 1,
			updated_at = $9
		WHERE id = $10 AND version = $11
	`

	tag, err := tx.Exec(ctx, query,
		int(p.XP),
		int(p.Level),
		p.CurrentStreak,
		p.LongestStreak,
		nullableTime(p.LastActivityDate),
		p.AvatarURL,
		p.Bio,
		string(p.DifficultyPreference),
		p.UpdatedAt,
		p.ID,
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}

	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM profiles WHERE id = $1)`, p.ID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check profile existence: %w", err)
		}
		if !exists {
			return shared.ErrProfileNotFound
		}
		return shared.ErrWriteConflict
	}

	return nil
}

// insertChallengeAttempt appends an attempt to the log.
func (s *Store) insertChallengeAttempt(ctx context.Context, tx pgx.Tx, att *challenge.Attempt) error {
	query := `
		INSERT INTO user_challenge_attempts (
			id, user_id, challenge_id, score, passed, time_taken_minutes, attempted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := tx.Exec(ctx, query,
		att.ID,
		att.UserID,
		att.ChallengeID,
		att.Score,
		att.Passed,
		att.TimeTakenMinutes,
		att.AttemptedAt,
	)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return shared.ErrChallengeNotFound
		}
		return fmt.Errorf("failed to insert challenge attempt: %w", err)
	}

	return nil
}

// insertUserAchievement records an unlock. A unique violation means another
// writer unlocked the same achievement first: the snapshot is stale and the
// caller retries, seeing the unlock in the earned set.
func (s *Store) insertUserAchievement(ctx context.Context, tx pgx.Tx, ua *achievement.UserAchievement) error {
	query := `
		INSERT INTO user_achievements (id, user_id, achievement_id, earned_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := tx.Exec(ctx, query, ua.ID, ua.UserID, ua.AchievementID, ua.EarnedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrWriteConflict
		}
		if IsForeignKeyViolation(err) {
			return shared.ErrAchievementNotFound
		}
		return fmt.Errorf("failed to insert user achievement: %w", err)
	}

	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Profile creation
// ─────────────────────────────────────────────────────────────────────────────

// CreateProfile persists a new profile.
func (s *Store) CreateProfile(ctx context.Context, p *profile.Profile) error {
	if err := p.CheckInvariants(); err != nil {
		return shared.WrapError("profile", "Create", shared.ErrInvalidEntity, "inconsistent profile", err)
	}

	query := `
		INSERT INTO profiles (
			id, username, email, password_hash, avatar_url, bio,
			xp, level, current_streak, longest_streak, last_activity_date,
			difficulty_preference, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := s.conn.Exec(ctx, query,
		p.ID,
		p.Username,
		p.Email,
		p.PasswordHash,
		p.AvatarURL,
		p.Bio,
		int(p.XP),
		int(p.Level),
		p.CurrentStreak,
		p.LongestStreak,
		nullableTime(p.LastActivityDate),
		string(p.DifficultyPreference),
		p.Version,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrProfileAlreadyExists
		}
		return mapStoreError("CreateProfile", err)
	}

	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Leaderboard read model
// ─────────────────────────────────────────────────────────────────────────────

// ListTopProfiles returns the top profiles ordered by XP descending.
func (s *Store) ListTopProfiles(ctx context.Context, limit int) ([]progression.LeaderboardEntry, error) {
	query := `
		SELECT id, username, xp, level
		FROM profiles
		ORDER BY xp DESC, username ASC
		LIMIT $1
	`

	rows, err := s.conn.Query(ctx, query, limit)
	if err != nil {
		return nil, mapStoreError("ListTopProfiles", err)
	}
	defer rows.Close()

	var entries []progression.LeaderboardEntry
	rank := 0
	for rows.Next() {
		rank++
		entry := progression.LeaderboardEntry{Rank: rank}
		if err := rows.Scan(&entry.UserID, &entry.Username, &entry.XP, &entry.Level); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard entry: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Scan helpers
// ─────────────────────────────────────────────────────────────────────────────

// scanProfile scans a single profile row.
func scanProfile(row pgx.Row) (*profile.Profile, error) {
	var p profile.Profile
	var xp, level int
	var lastActivity *time.Time
	var difficulty string

	err := row.Scan(
		&p.ID,
		&p.Username,
		&p.Email,
		&p.PasswordHash,
		&p.AvatarURL,
		&p.Bio,
		&xp,
		&level,
		&p.CurrentStreak,
		&p.LongestStreak,
		&lastActivity,
		&difficulty,
		&p.Version,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.XP = profile.XP(xp)
	p.Level = profile.Level(level)
	p.DifficultyPreference = profile.Difficulty(difficulty)
	if lastActivity != nil {
		p.LastActivityDate = timeutil.StartOfDay(*lastActivity)
	}

	return &p, nil
}

// scanLessonProgress scans a single lesson progress row.
func scanLessonProgress(row pgx.Row) (*lesson.Progress, error) {
	var prog lesson.Progress
	var status string
	var startedAt, completedAt *time.Time

	err := row.Scan(
		&prog.ID,
		&prog.UserID,
		&prog.LessonID,
		&status,
		&prog.ProgressPct,
		&startedAt,
		&completedAt,
		&prog.TimeSpentMinutes,
		&prog.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	prog.Status = lesson.Status(status)
	if startedAt != nil {
		prog.StartedAt = *startedAt
	}
	if completedAt != nil {
		prog.CompletedAt = *completedAt
	}

	return &prog, nil
}

// nullableTime converts a zero time to NULL.
func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// mapStoreError maps infrastructure failures to shared error kinds.
// Timeouts are surfaced as shared.ErrTimeout: the caller cannot know whether
// the write committed, so the retry protocol treats them like conflicts.
func mapStoreError(op string, err error) error {
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return shared.WrapError("progression", op, shared.ErrTimeout, "store operation timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	return fmt.Errorf("postgres: %s: %w", op, err)
}
