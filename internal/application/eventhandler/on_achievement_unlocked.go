package eventhandler

import (
	"context"
	"time"

	"github.com/devsecops-academy/progression-engine/internal/domain/shared"
	"github.com/devsecops-academy/progression-engine/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON ACHIEVEMENT UNLOCKED HANDLER
// Сбрасывает кешированный снимок профиля: разблокировка меняет список
// достижений, и следующий запрос должен увидеть свежие данные.
// Также пишет структурированную запись для аудита разблокировок.
// ═══════════════════════════════════════════════════════════════════════════

// ProfileCacheDropper сбрасывает кешированный снимок профиля.
type ProfileCacheDropper interface {
	// InvalidateProfile удаляет снимок пользователя из кеша.
	InvalidateProfile(ctx context.Context, userID string) error
}

// OnAchievementUnlockedHandler обрабатывает событие разблокировки достижения.
type OnAchievementUnlockedHandler struct {
	cache   ProfileCacheDropper
	logger  *logger.Logger
	timeout time.Duration
}

// NewOnAchievementUnlockedHandler создаёт новый обработчик.
func NewOnAchievementUnlockedHandler(cache ProfileCacheDropper, log *logger.Logger) *OnAchievementUnlockedHandler {
	if log == nil {
		log = logger.Default()
	}

	return &OnAchievementUnlockedHandler{
		cache:   cache,
		logger:  log.With(logger.Component("on_achievement_unlocked")),
		timeout: 5 * time.Second,
	}
}

// Handle обрабатывает событие. Реализует интерфейс shared.EventHandler.
func (h *OnAchievementUnlockedHandler) Handle(event shared.Event) error {
	unlockEvent, ok := event.(shared.AchievementUnlockedEvent)
	if !ok {
		h.logger.Warn("received non-AchievementUnlockedEvent",
			logger.String("event_type", string(event.EventType())),
		)
		return nil
	}

	h.logger.Info("achievement unlocked",
		logger.UserID(unlockEvent.UserID),
		logger.AchievementID(unlockEvent.AchievementID),
		logger.String("rarity", unlockEvent.Rarity),
		logger.XPAmount(unlockEvent.XPBonus),
	)

	if h.cache == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	if err := h.cache.InvalidateProfile(ctx, unlockEvent.UserID); err != nil {
		h.logger.Warn("failed to invalidate profile cache",
			logger.UserID(unlockEvent.UserID),
			logger.Err(err),
		)
	}

	return nil
}

// EventType возвращает тип события, который обрабатывает этот handler.
func (h *OnAchievementUnlockedHandler) EventType() shared.EventType {
	return shared.EventAchievementUnlocked
}
