package profile

import (
	"time"

	"github.com/devsecops-academy/progression-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STREAK TRACKER (Серия активных дней)
// ══════════════════════════════════════════════════════════════════════════════

// StreakUpdate - результат засчитывания активности за день.
type StreakUpdate struct {
	// CurrentStreak - новая текущая серия.
	CurrentStreak int

	// LongestStreak - новая лучшая серия.
	LongestStreak int

	// LastActivityDate - новая дата последней активности (начало дня UTC).
	LastActivityDate time.Time

	// WasReset - true, если серия была сброшена из-за пропущенных дней.
	WasReset bool

	// Extended - true, если серия выросла (первый день тоже считается).
	Extended bool
}

// ApplyActivity - чистая функция обновления серии.
//
// Политика:
//   - активности ещё не было: серия начинается с 1;
//   - тот же день: ничего не меняется (повторные завершения за день
//     серию не раздувают);
//   - следующий день: серия увеличивается на 1;
//   - пропущен хотя бы один день: серия сбрасывается на 1.
//
// Лучшая серия всегда равна max(прежняя лучшая, новая текущая).
func ApplyActivity(lastActivityDate time.Time, currentStreak, longestStreak int, today time.Time) StreakUpdate {
	day := timeutil.StartOfDay(today)

	update := StreakUpdate{
		CurrentStreak:    currentStreak,
		LongestStreak:    longestStreak,
		LastActivityDate: day,
	}

	switch {
	case lastActivityDate.IsZero():
		update.CurrentStreak = 1
		update.Extended = true

	case timeutil.IsSameDay(lastActivityDate, day):
		// Активность за сегодня уже засчитана.
		update.LastActivityDate = timeutil.StartOfDay(lastActivityDate)

	case timeutil.IsNextDay(lastActivityDate, day):
		update.CurrentStreak = currentStreak + 1
		update.Extended = true

	default:
		update.CurrentStreak = 1
		update.WasReset = true
		update.Extended = true
	}

	if update.CurrentStreak > update.LongestStreak {
		update.LongestStreak = update.CurrentStreak
	}

	return update
}

// IsStreakBroken проверяет, сломана ли серия к указанному моменту
// (последняя активность была позавчера или раньше).
func IsStreakBroken(lastActivityDate time.Time, now time.Time) bool {
	if lastActivityDate.IsZero() {
		return false
	}
	return timeutil.DaysBetween(lastActivityDate, now) > 1
}
