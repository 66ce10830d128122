// Package eventhandler содержит обработчики доменных событий.
package eventhandler

import (
	"context"
	"time"

	"github.com/devsecops-academy/progression-engine/internal/domain/shared"
	"github.com/devsecops-academy/progression-engine/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON XP GAINED HANDLER
// Инкрементально обновляет кешированный лидерборд при изменении XP.
// Полная пересборка кеша выполняется воркером по расписанию; этот
// обработчик лишь держит счёт свежим между пересборками.
// ═══════════════════════════════════════════════════════════════════════════

// LeaderboardScoreUpdater обновляет счёт одного пользователя в кеше лидерборда.
type LeaderboardScoreUpdater interface {
	// UpdateScore устанавливает XP пользователя в кеше.
	UpdateScore(ctx context.Context, userID string, xp int) error
}

// OnXPGainedHandler обрабатывает событие начисления опыта.
type OnXPGainedHandler struct {
	leaderboard LeaderboardScoreUpdater
	logger      *logger.Logger
	timeout     time.Duration
}

// NewOnXPGainedHandler создаёт новый обработчик.
func NewOnXPGainedHandler(leaderboard LeaderboardScoreUpdater, log *logger.Logger) *OnXPGainedHandler {
	if log == nil {
		log = logger.Default()
	}

	return &OnXPGainedHandler{
		leaderboard: leaderboard,
		logger:      log.With(logger.Component("on_xp_gained")),
		timeout:     5 * time.Second,
	}
}

// Handle обрабатывает событие. Реализует интерфейс shared.EventHandler.
func (h *OnXPGainedHandler) Handle(event shared.Event) error {
	xpEvent, ok := event.(shared.XPGainedEvent)
	if !ok {
		h.logger.Warn("received non-XPGainedEvent",
			logger.String("event_type", string(event.EventType())),
		)
		return nil
	}

	if h.leaderboard == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	if err := h.leaderboard.UpdateScore(ctx, xpEvent.UserID, xpEvent.NewTotal); err != nil {
		// Кеш не источник истины: следующая пересборка исправит расхождение.
		h.logger.Warn("failed to update leaderboard score",
			logger.UserID(xpEvent.UserID),
			logger.XPAmount(xpEvent.NewTotal),
			logger.Err(err),
		)
		return nil
	}

	return nil
}

// EventType возвращает тип события, который обрабатывает этот handler.
func (h *OnXPGainedHandler) EventType() shared.EventType {
	return shared.EventXPGained
}
