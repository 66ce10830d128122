package achievement

import (
	"fmt"
	"sort"
)

// ══════════════════════════════════════════════════════════════════════════════
// RULE ENGINE
// ══════════════════════════════════════════════════════════════════════════════

// Engine оценивает каталог достижений против снимка статистик.
// Движок без состояния: каталог фиксируется при создании, оценка -
// чистая функция от снимка и множества уже полученных достижений.
type Engine struct {
	catalog []Achievement
	byID    map[string]Achievement
}

// NewEngine создаёт движок с валидацией каталога.
func NewEngine(catalog []Achievement) (*Engine, error) {
	byID := make(map[string]Achievement, len(catalog))
	for i := range catalog {
		if err := catalog[i].Validate(); err != nil {
			return nil, fmt.Errorf("invalid catalog entry %q: %w", catalog[i].ID, err)
		}
		if _, exists := byID[catalog[i].ID]; exists {
			return nil, fmt.Errorf("duplicate catalog entry %q", catalog[i].ID)
		}
		byID[catalog[i].ID] = catalog[i]
	}

	return &Engine{catalog: catalog, byID: byID}, nil
}

// Catalog возвращает копию каталога.
func (e *Engine) Catalog() []Achievement {
	out := make([]Achievement, len(e.catalog))
	copy(out, e.catalog)
	return out
}

// Find возвращает элемент каталога по идентификатору.
func (e *Engine) Find(id string) (Achievement, bool) {
	a, ok := e.byID[id]
	return a, ok
}

// Evaluate возвращает достижения, условия которых выполнены на снимке
// и которых ещё нет в alreadyEarned. Результат детерминирован:
// отсортирован по идентификатору независимо от порядка каталога.
func (e *Engine) Evaluate(snapshot StatsSnapshot, alreadyEarned map[string]bool) ([]Achievement, error) {
	var qualified []Achievement

	for _, a := range e.catalog {
		if alreadyEarned[a.ID] {
			continue
		}

		ok, err := a.Condition.Evaluate(snapshot)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate achievement %q: %w", a.ID, err)
		}
		if ok {
			qualified = append(qualified, a)
		}
	}

	sort.Slice(qualified, func(i, j int) bool {
		return qualified[i].ID < qualified[j].ID
	})

	return qualified, nil
}

// TotalBonus суммирует бонусный опыт набора достижений.
func TotalBonus(achievements []Achievement) int {
	total := 0
	for _, a := range achievements {
		total += a.XPBonus
	}
	return total
}

// ══════════════════════════════════════════════════════════════════════════════
// DEFAULT CATALOG
// ══════════════════════════════════════════════════════════════════════════════

// DefaultCatalog возвращает встроенный каталог достижений.
// Используется сидом базы и тестами; продакшен читает каталог из хранилища.
func DefaultCatalog() []Achievement {
	return []Achievement{
		{
			ID:          "first-lesson",
			Name:        "First Steps",
			Description: "Complete your first lesson",
			Icon:        "graduation-cap",
			Category:    "progress",
			Rarity:      RarityCommon,
			XPBonus:     50,
			Condition:   Require(StatLessonsCompleted, OpGTE, 1),
		},
		{
			ID:          "five-lessons",
			Name:        "Five Lessons",
			Description: "Complete five lessons",
			Icon:        "book-open",
			Category:    "progress",
			Rarity:      RarityCommon,
			XPBonus:     100,
			Condition:   Require(StatLessonsCompleted, OpGTE, 5),
		},
		{
			ID:          "twenty-lessons",
			Name:        "Scholar",
			Description: "Complete twenty lessons",
			Icon:        "library",
			Category:    "progress",
			Rarity:      RarityEpic,
			XPBonus:     500,
			Condition:   Require(StatLessonsCompleted, OpGTE, 20),
		},
		{
			ID:          "streak-7",
			Name:        "Week of Fire",
			Description: "Stay active seven days in a row",
			Icon:        "flame",
			Category:    "streak",
			Rarity:      RarityRare,
			XPBonus:     150,
			Condition:   Require(StatCurrentStreak, OpGTE, 7),
		},
		{
			ID:          "streak-30",
			Name:        "Iron Will",
			Description: "Stay active thirty days in a row",
			Icon:        "shield",
			Category:    "streak",
			Rarity:      RarityLegendary,
			XPBonus:     1000,
			Condition:   Require(StatCurrentStreak, OpGTE, 30),
		},
		{
			ID:          "first-challenge",
			Name:        "Challenger",
			Description: "Pass your first challenge",
			Icon:        "swords",
			Category:    "challenge",
			Rarity:      RarityCommon,
			XPBonus:     50,
			Condition:   Require(StatChallengesPassed, OpGTE, 1),
		},
		{
			ID:          "ten-challenges",
			Name:        "Gauntlet Runner",
			Description: "Pass ten challenges",
			Icon:        "trophy",
			Category:    "challenge",
			Rarity:      RarityRare,
			XPBonus:     250,
			Condition:   Require(StatChallengesPassed, OpGTE, 10),
		},
		{
			ID:          "xp-5000",
			Name:        "Seasoned Defender",
			Description: "Accumulate 5000 XP",
			Icon:        "star",
			Category:    "mastery",
			Rarity:      RarityEpic,
			XPBonus:     300,
			Condition:   Require(StatXP, OpGTE, 5000),
		},
		{
			ID:          "level-10",
			Name:        "Security Master",
			Description: "Reach level 10",
			Icon:        "crown",
			Category:    "mastery",
			Rarity:      RarityLegendary,
			XPBonus:     750,
			Condition:   Require(StatLevel, OpGTE, 10),
		},
		{
			ID:          "marathon",
			Name:        "Marathon",
			Description: "Spend ten hours learning with a week-long streak",
			Icon:        "timer",
			Category:    "mastery",
			Rarity:      RarityEpic,
			XPBonus:     400,
			Condition: Require(StatTimeSpentMinutes, OpGTE, 600).
				And(StatCurrentStreak, OpGTE, 7),
		},
	}
}
