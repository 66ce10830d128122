package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/devsecops-academy/progression-engine/internal/domain/achievement"
	"github.com/devsecops-academy/progression-engine/internal/domain/challenge"
	"github.com/devsecops-academy/progression-engine/internal/domain/lesson"
	"github.com/devsecops-academy/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// CatalogRepository implements progression.LessonCatalog,
// progression.ChallengeCatalog and progression.AchievementCatalog.
// Catalogs are read-only at runtime; seeding happens at deploy time.
type CatalogRepository struct {
	conn *Connection
}

// NewCatalogRepository creates a new CatalogRepository.
func NewCatalogRepository(conn *Connection) *CatalogRepository {
	return &CatalogRepository{conn: conn}
}

// ─────────────────────────────────────────────────────────────────────────────
// Lessons
// ─────────────────────────────────────────────────────────────────────────────

const lessonColumns = `
	id, title, description, category, difficulty,
	estimated_minutes, xp_reward, order_index, published, created_at
`

// FindLesson returns a lesson by ID.
func (r *CatalogRepository) FindLesson(ctx context.Context, lessonID string) (*lesson.Lesson, error) {
	query := `SELECT ` + lessonColumns + ` FROM lessons WHERE id = $1`

	row := r.conn.QueryRow(ctx, query, lessonID)
	l, err := scanLesson(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrLessonNotFound
		}
		return nil, mapStoreError("FindLesson", err)
	}

	return l, nil
}

// ListPublishedLessons returns published lessons ordered by their index.
func (r *CatalogRepository) ListPublishedLessons(ctx context.Context) ([]*lesson.Lesson, error) {
	query := `SELECT ` + lessonColumns + ` FROM lessons WHERE published ORDER BY order_index ASC`

	rows, err := r.conn.Query(ctx, query)
	if err != nil {
		return nil, mapStoreError("ListPublishedLessons", err)
	}
	defer rows.Close()

	var lessons []*lesson.Lesson
	for rows.Next() {
		l, err := scanLesson(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lesson: %w", err)
		}
		lessons = append(lessons, l)
	}

	return lessons, rows.Err()
}

// scanLesson scans a single lesson row.
func scanLesson(row pgx.Row) (*lesson.Lesson, error) {
	var l lesson.Lesson
	var difficulty string

	err := row.Scan(
		&l.ID,
		&l.Title,
		&l.Description,
		&l.Category,
		&difficulty,
		&l.EstimatedMinutes,
		&l.XPReward,
		&l.OrderIndex,
		&l.Published,
		&l.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	l.Difficulty = lesson.Difficulty(difficulty)
	return &l, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Challenges
// ─────────────────────────────────────────────────────────────────────────────

// FindChallenge returns a challenge by ID.
func (r *CatalogRepository) FindChallenge(ctx context.Context, challengeID string) (*challenge.Challenge, error) {
	query := `
		SELECT id, lesson_id, title, type, xp_reward, time_limit_minutes, created_at
		FROM challenges
		WHERE id = $1
	`

	var ch challenge.Challenge
	var chType string

	err := r.conn.QueryRow(ctx, query, challengeID).Scan(
		&ch.ID,
		&ch.LessonID,
		&ch.Title,
		&chType,
		&ch.XPReward,
		&ch.TimeLimitMinutes,
		&ch.CreatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrChallengeNotFound
		}
		return nil, mapStoreError("FindChallenge", err)
	}

	ch.Type = challenge.Type(chType)
	return &ch, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Achievements
// ─────────────────────────────────────────────────────────────────────────────

// ListAchievements returns the full achievement catalog.
// Unlock conditions are stored as JSONB and validated on load: a broken
// catalog entry fails loudly here rather than silently during evaluation.
func (r *CatalogRepository) ListAchievements(ctx context.Context) ([]achievement.Achievement, error) {
	query := `
		SELECT id, name, description, icon, category, rarity, xp_bonus, unlock_condition
		FROM achievements
		ORDER BY id ASC
	`

	rows, err := r.conn.Query(ctx, query)
	if err != nil {
		return nil, mapStoreError("ListAchievements", err)
	}
	defer rows.Close()

	var achievements []achievement.Achievement
	for rows.Next() {
		var a achievement.Achievement
		var rarity string
		var rawCondition []byte

		if err := rows.Scan(
			&a.ID,
			&a.Name,
			&a.Description,
			&a.Icon,
			&a.Category,
			&rarity,
			&a.XPBonus,
			&rawCondition,
		); err != nil {
			return nil, fmt.Errorf("failed to scan achievement: %w", err)
		}

		a.Rarity = achievement.Rarity(rarity)
		a.Condition, err = achievement.ParseCondition(rawCondition)
		if err != nil {
			return nil, fmt.Errorf("invalid condition for achievement %q: %w", a.ID, err)
		}

		achievements = append(achievements, a)
	}

	return achievements, rows.Err()
}

// ListEarned returns the user's unlock records, newest first.
func (r *CatalogRepository) ListEarned(ctx context.Context, userID string) ([]achievement.UserAchievement, error) {
	query := `
		SELECT id, user_id, achievement_id, earned_at
		FROM user_achievements
		WHERE user_id = $1
		ORDER BY earned_at DESC
	`

	rows, err := r.conn.Query(ctx, query, userID)
	if err != nil {
		return nil, mapStoreError("ListEarned", err)
	}
	defer rows.Close()

	var earned []achievement.UserAchievement
	for rows.Next() {
		var ua achievement.UserAchievement
		if err := rows.Scan(&ua.ID, &ua.UserID, &ua.AchievementID, &ua.EarnedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user achievement: %w", err)
		}
		earned = append(earned, ua)
	}

	return earned, rows.Err()
}

// SeedAchievements inserts catalog entries that are not present yet.
// Existing entries are left untouched.
func (r *CatalogRepository) SeedAchievements(ctx context.Context, catalog []achievement.Achievement) error {
	query := `
		INSERT INTO achievements (id, name, description, icon, category, rarity, xp_bonus, unlock_condition)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`

	for _, a := range catalog {
		raw, err := achievement.EncodeCondition(a.Condition)
		if err != nil {
			return fmt.Errorf("invalid condition for achievement %q: %w", a.ID, err)
		}

		if _, err := r.conn.Exec(ctx, query,
			a.ID, a.Name, a.Description, a.Icon, a.Category, string(a.Rarity), a.XPBonus, raw,
		); err != nil {
			return mapStoreError("SeedAchievements", err)
		}
	}

	return nil
}
