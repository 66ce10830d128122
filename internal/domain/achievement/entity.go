// Package achievement содержит каталог достижений DevSecOps Academy
// и движок декларативных условий разблокировки.
package achievement

import (
	"errors"
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// Rarity определяет редкость достижения.
type Rarity string

const (
	// RarityCommon - обычное достижение.
	RarityCommon Rarity = "common"
	// RarityRare - редкое достижение.
	RarityRare Rarity = "rare"
	// RarityEpic - эпическое достижение.
	RarityEpic Rarity = "epic"
	// RarityLegendary - легендарное достижение.
	RarityLegendary Rarity = "legendary"
)

// IsValid проверяет, что редкость корректна.
func (r Rarity) IsValid() bool {
	switch r {
	case RarityCommon, RarityRare, RarityEpic, RarityLegendary:
		return true
	default:
		return false
	}
}

// Rank возвращает порядковый номер редкости (для сортировки каталога).
func (r Rarity) Rank() int {
	switch r {
	case RarityCommon:
		return 0
	case RarityRare:
		return 1
	case RarityEpic:
		return 2
	case RarityLegendary:
		return 3
	default:
		return -1
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT (Каталог, read-only в рантайме)
// ══════════════════════════════════════════════════════════════════════════════

// Achievement - элемент каталога достижений. Каталог загружается при старте
// и в рантайме не меняется; условие разблокировки - данные, а не код.
type Achievement struct {
	// ID - уникальный идентификатор достижения.
	ID string

	// Name - название.
	Name string

	// Description - описание.
	Description string

	// Icon - имя иконки для презентационного слоя.
	Icon string

	// Category - категория (progress, streak, challenge, mastery).
	Category string

	// Rarity - редкость.
	Rarity Rarity

	// XPBonus - бонусный опыт за разблокировку.
	XPBonus int

	// Condition - декларативное условие разблокировки.
	Condition Condition
}

// ErrInvalidAchievement - некорректный элемент каталога.
var ErrInvalidAchievement = errors.New("invalid achievement definition")

// Validate проверяет корректность элемента каталога.
func (a *Achievement) Validate() error {
	if strings.TrimSpace(a.ID) == "" || strings.TrimSpace(a.Name) == "" {
		return ErrInvalidAchievement
	}
	if !a.Rarity.IsValid() {
		return ErrInvalidAchievement
	}
	if a.XPBonus < 0 {
		return ErrInvalidAchievement
	}
	return a.Condition.Validate()
}

// ══════════════════════════════════════════════════════════════════════════════
// USER ACHIEVEMENT (Факт разблокировки)
// ══════════════════════════════════════════════════════════════════════════════

// UserAchievement - факт разблокировки достижения пользователем.
// Инвариант: не более одной записи на пару (пользователь, достижение),
// повторная оценка условий дубликатов не создаёт.
type UserAchievement struct {
	// ID - уникальный идентификатор записи.
	ID string

	// UserID - идентификатор пользователя.
	UserID string

	// AchievementID - идентификатор достижения.
	AchievementID string

	// EarnedAt - когда разблокировано.
	EarnedAt time.Time
}
