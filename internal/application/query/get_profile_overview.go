// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
// Each query is a self-contained use case with its own request/response types.
package query

import (
	"context"
	"errors"
	"time"

	"github.com/devsecops-academy/progression-engine/internal/domain/achievement"
	"github.com/devsecops-academy/progression-engine/internal/domain/progression"
	"github.com/devsecops-academy/progression-engine/internal/domain/shared"
	"github.com/devsecops-academy/progression-engine/pkg/logger"
	"github.com/devsecops-academy/progression-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PROFILE OVERVIEW QUERY
// Собирает полный снимок профиля: прогресс, статистики, достижения.
// Все производные поля (уровень, проценты) вычисляет движок, не клиент.
// ══════════════════════════════════════════════════════════════════════════════

// GetProfileOverviewQuery содержит параметры запроса.
type GetProfileOverviewQuery struct {
	// UserID - внутренний ID пользователя.
	UserID string

	// SkipCache - прочитать напрямую из хранилища, минуя кеш.
	SkipCache bool
}

// Validate проверяет корректность параметров запроса.
func (q *GetProfileOverviewQuery) Validate() error {
	if q.UserID == "" {
		return errors.New("user_id is required")
	}
	return nil
}

// EarnedAchievementDTO - DTO факта разблокировки.
type EarnedAchievementDTO struct {
	// AchievementID - идентификатор достижения.
	AchievementID string `json:"achievement_id"`

	// Name - название из каталога.
	Name string `json:"name"`

	// Rarity - редкость из каталога.
	Rarity string `json:"rarity"`

	// XPBonus - бонусный опыт из каталога.
	XPBonus int `json:"xp_bonus"`

	// EarnedAt - когда разблокировано.
	EarnedAt time.Time `json:"earned_at"`
}

// GetProfileOverviewResult содержит снимок профиля.
type GetProfileOverviewResult struct {
	// UserID - внутренний ID пользователя.
	UserID string `json:"user_id"`

	// Username - отображаемое имя.
	Username string `json:"username"`

	// AvatarURL - ссылка на аватар.
	AvatarURL string `json:"avatar_url,omitempty"`

	// Bio - описание профиля.
	Bio string `json:"bio,omitempty"`

	// XP - накопленный опыт.
	XP int `json:"xp"`

	// Level - текущий уровень.
	Level int `json:"level"`

	// XPIntoLevel - опыт, набранный внутри текущего уровня.
	XPIntoLevel int `json:"xp_into_level"`

	// XPToNextLevel - опыт до следующего уровня.
	XPToNextLevel int `json:"xp_to_next_level"`

	// CurrentStreak - текущая серия активных дней.
	CurrentStreak int `json:"current_streak"`

	// LongestStreak - лучшая серия за всё время.
	LongestStreak int `json:"longest_streak"`

	// LessonsCompleted - завершено уроков.
	LessonsCompleted int `json:"lessons_completed"`

	// ChallengesPassed - пройдено испытаний.
	ChallengesPassed int `json:"challenges_passed"`

	// TimeSpentMinutes - суммарное время обучения.
	TimeSpentMinutes int `json:"time_spent_minutes"`

	// AchievementsEarned - всего разблокировано достижений.
	AchievementsEarned int `json:"achievements_earned"`

	// Achievements - разблокированные достижения.
	Achievements []EarnedAchievementDTO `json:"achievements"`

	// GeneratedAt - время генерации снимка.
	GeneratedAt time.Time `json:"generated_at"`
}

// OverviewCache - кеш снимков профиля (read-through).
type OverviewCache interface {
	// GetOverview возвращает кешированный снимок или shared.ErrNotFound.
	GetOverview(ctx context.Context, userID string) (*GetProfileOverviewResult, error)

	// SetOverview сохраняет снимок в кеш.
	SetOverview(ctx context.Context, userID string, overview *GetProfileOverviewResult) error
}

// GetProfileOverviewHandler обрабатывает запросы снимка профиля.
type GetProfileOverviewHandler struct {
	store        progression.Store
	achievements progression.AchievementCatalog
	cache        OverviewCache
	logger       *logger.Logger
}

// NewGetProfileOverviewHandler создаёт новый обработчик.
// Кеш опционален: nil отключает read-through.
func NewGetProfileOverviewHandler(
	store progression.Store,
	achievements progression.AchievementCatalog,
	cache OverviewCache,
	log *logger.Logger,
) *GetProfileOverviewHandler {
	if log == nil {
		log = logger.Default()
	}

	return &GetProfileOverviewHandler{
		store:        store,
		achievements: achievements,
		cache:        cache,
		logger:       log.With(logger.Component("get_profile_overview")),
	}
}

// Handle выполняет запрос.
func (h *GetProfileOverviewHandler) Handle(ctx context.Context, query GetProfileOverviewQuery) (*GetProfileOverviewResult, error) {
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetProfileOverview", shared.ErrValidation, err.Error(), err)
	}

	if !query.SkipCache && h.cache != nil {
		cached, err := h.cache.GetOverview(ctx, query.UserID)
		if err == nil && cached != nil {
			return cached, nil
		}
	}

	p, err := h.store.ReadProfile(ctx, query.UserID)
	if err != nil {
		return nil, err
	}

	stats, err := h.store.ReadStats(ctx, query.UserID)
	if err != nil {
		return nil, err
	}

	earned, err := h.achievements.ListEarned(ctx, query.UserID)
	if err != nil {
		return nil, err
	}

	catalog, err := h.achievements.ListAchievements(ctx)
	if err != nil {
		return nil, err
	}

	result := &GetProfileOverviewResult{
		UserID:             p.ID,
		Username:           p.Username,
		AvatarURL:          p.AvatarURL,
		Bio:                p.Bio,
		XP:                 int(p.XP),
		Level:              int(p.Level),
		XPIntoLevel:        int(p.XPIntoLevel()),
		XPToNextLevel:      int(p.XPToNextLevel()),
		CurrentStreak:      p.CurrentStreak,
		LongestStreak:      p.LongestStreak,
		LessonsCompleted:   stats.LessonsCompleted,
		ChallengesPassed:   stats.ChallengesPassed,
		TimeSpentMinutes:   stats.TimeSpentMinutes,
		AchievementsEarned: len(earned),
		Achievements:       h.toAchievementDTOs(earned, catalog),
		GeneratedAt:        timeutil.Now(),
	}

	if !query.SkipCache && h.cache != nil {
		if err := h.cache.SetOverview(ctx, query.UserID, result); err != nil {
			h.logger.Warn("failed to cache profile overview",
				logger.UserID(query.UserID),
				logger.Err(err),
			)
		}
	}

	return result, nil
}

// toAchievementDTOs обогащает факты разблокировки данными каталога.
func (h *GetProfileOverviewHandler) toAchievementDTOs(
	earned []achievement.UserAchievement,
	catalog []achievement.Achievement,
) []EarnedAchievementDTO {
	byID := make(map[string]achievement.Achievement, len(catalog))
	for _, a := range catalog {
		byID[a.ID] = a
	}

	dtos := make([]EarnedAchievementDTO, 0, len(earned))
	for _, ua := range earned {
		dto := EarnedAchievementDTO{
			AchievementID: ua.AchievementID,
			EarnedAt:      ua.EarnedAt,
		}
		if a, ok := byID[ua.AchievementID]; ok {
			dto.Name = a.Name
			dto.Rarity = string(a.Rarity)
			dto.XPBonus = a.XPBonus
		}
		dtos = append(dtos, dto)
	}

	return dtos
}
