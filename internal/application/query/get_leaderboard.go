package query

import (
	"context"
	"errors"
	"time"

	"github.com/devsecops-academy/progression-engine/internal/domain/progression"
	"github.com/devsecops-academy/progression-engine/internal/domain/shared"
	"github.com/devsecops-academy/progression-engine/pkg/logger"
	"github.com/devsecops-academy/progression-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LEADERBOARD QUERY
// Получает топ-N профилей по XP. Источник - кеш (sorted set в Redis),
// при промахе - прямой запрос к хранилищу.
// ══════════════════════════════════════════════════════════════════════════════

// GetLeaderboardQuery содержит параметры запроса лидерборда.
type GetLeaderboardQuery struct {
	// Limit - количество записей (по умолчанию 20, максимум 100).
	Limit int

	// Offset - смещение для пагинации.
	Offset int
}

// Validate проверяет корректность параметров запроса.
func (q *GetLeaderboardQuery) Validate() error {
	if q.Limit < 0 {
		return errors.New("limit cannot be negative")
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	if q.Limit == 0 {
		q.Limit = 20
	}
	if q.Offset < 0 {
		return errors.New("offset cannot be negative")
	}
	return nil
}

// LeaderboardEntryDTO - DTO для записи лидерборда.
type LeaderboardEntryDTO struct {
	// Rank - позиция в рейтинге (начиная с 1).
	Rank int `json:"rank"`

	// UserID - внутренний ID пользователя.
	UserID string `json:"user_id"`

	// Username - отображаемое имя.
	Username string `json:"username"`

	// XP - накопленный опыт.
	XP int `json:"xp"`

	// Level - уровень пользователя.
	Level int `json:"level"`
}

// GetLeaderboardResult содержит результат запроса лидерборда.
type GetLeaderboardResult struct {
	// Entries - записи лидерборда.
	Entries []LeaderboardEntryDTO `json:"entries"`

	// GeneratedAt - время генерации результата.
	GeneratedAt time.Time `json:"generated_at"`

	// Page - текущая страница (1-based).
	Page int `json:"page"`

	// PageSize - размер страницы.
	PageSize int `json:"page_size"`
}

// LeaderboardCache - кеш топа лидерборда.
type LeaderboardCache interface {
	// GetCachedTop возвращает кешированный топ или shared.ErrNotFound.
	GetCachedTop(ctx context.Context, limit int) ([]progression.LeaderboardEntry, error)
}

// GetLeaderboardHandler обрабатывает запросы лидерборда.
type GetLeaderboardHandler struct {
	reader progression.LeaderboardReader
	cache  LeaderboardCache
	logger *logger.Logger
}

// NewGetLeaderboardHandler создаёт новый обработчик.
// Кеш опционален: nil означает чтение только из хранилища.
func NewGetLeaderboardHandler(
	reader progression.LeaderboardReader,
	cache LeaderboardCache,
	log *logger.Logger,
) *GetLeaderboardHandler {
	if log == nil {
		log = logger.Default()
	}

	return &GetLeaderboardHandler{
		reader: reader,
		cache:  cache,
		logger: log.With(logger.Component("get_leaderboard")),
	}
}

// Handle выполняет запрос.
func (h *GetLeaderboardHandler) Handle(ctx context.Context, query GetLeaderboardQuery) (*GetLeaderboardResult, error) {
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetLeaderboard", shared.ErrValidation, err.Error(), err)
	}

	entries, err := h.load(ctx, query.Limit+query.Offset)
	if err != nil {
		return nil, shared.WrapError("query", "GetLeaderboard", shared.ErrServiceUnavailable, "failed to load leaderboard", err)
	}

	entries = paginate(entries, query.Offset, query.Limit)

	dtos := make([]LeaderboardEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = LeaderboardEntryDTO{
			Rank:     e.Rank,
			UserID:   e.UserID,
			Username: e.Username,
			XP:       e.XP,
			Level:    e.Level,
		}
	}

	page := 1
	if query.Limit > 0 {
		page = (query.Offset / query.Limit) + 1
	}

	return &GetLeaderboardResult{
		Entries:     dtos,
		GeneratedAt: timeutil.Now(),
		Page:        page,
		PageSize:    query.Limit,
	}, nil
}

// load читает топ из кеша, при промахе - из хранилища.
func (h *GetLeaderboardHandler) load(ctx context.Context, limit int) ([]progression.LeaderboardEntry, error) {
	if h.cache != nil {
		cached, err := h.cache.GetCachedTop(ctx, limit)
		if err == nil && len(cached) > 0 {
			return cached, nil
		}
		if err != nil && !shared.IsNotFound(err) {
			h.logger.Warn("leaderboard cache read failed", logger.Err(err))
		}
	}

	return h.reader.ListTopProfiles(ctx, limit)
}

// paginate применяет пагинацию к записям.
func paginate(entries []progression.LeaderboardEntry, offset, limit int) []progression.LeaderboardEntry {
	if offset >= len(entries) {
		return []progression.LeaderboardEntry{}
	}

	end := offset + limit
	if end > len(entries) {
		end = len(entries)
	}

	return entries[offset:end]
}
