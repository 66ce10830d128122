package achievement

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATS SNAPSHOT (Словарь статистик)
// ══════════════════════════════════════════════════════════════════════════════

// Stat - имя статистики из фиксированного словаря.
// Условия формулируются только над агрегатным снимком, без доступа
// к истории и без сравнений между пользователями.
type Stat string

const (
	// StatLessonsCompleted - завершено уроков.
	StatLessonsCompleted Stat = "lessons_completed"
	// StatChallengesPassed - успешно пройдено испытаний.
	StatChallengesPassed Stat = "challenges_passed"
	// StatCurrentStreak - текущая серия дней.
	StatCurrentStreak Stat = "current_streak"
	// StatLongestStreak - лучшая серия дней.
	StatLongestStreak Stat = "longest_streak"
	// StatXP - накопленный опыт.
	StatXP Stat = "xp"
	// StatLevel - текущий уровень.
	StatLevel Stat = "level"
	// StatTimeSpentMinutes - суммарное время обучения в минутах.
	StatTimeSpentMinutes Stat = "time_spent_minutes"
	// StatAchievementsEarned - уже разблокировано достижений.
	// Снимок фиксируется до текущей оценки: достижение, разблокированное
	// этим же действием, в счётчик не входит.
	StatAchievementsEarned Stat = "achievements_earned"
)

// IsValid проверяет, что имя статистики входит в словарь.
func (s Stat) IsValid() bool {
	switch s {
	case StatLessonsCompleted, StatChallengesPassed, StatCurrentStreak,
		StatLongestStreak, StatXP, StatLevel, StatTimeSpentMinutes,
		StatAchievementsEarned:
		return true
	default:
		return false
	}
}

// StatsSnapshot - агрегатный снимок статистик пользователя на момент оценки.
type StatsSnapshot struct {
	LessonsCompleted   int
	ChallengesPassed   int
	CurrentStreak      int
	LongestStreak      int
	XP                 int
	Level              int
	TimeSpentMinutes   int
	AchievementsEarned int
}

// Value возвращает значение статистики по имени.
func (s StatsSnapshot) Value(stat Stat) (int, bool) {
	switch stat {
	case StatLessonsCompleted:
		return s.LessonsCompleted, true
	case StatChallengesPassed:
		return s.ChallengesPassed, true
	case StatCurrentStreak:
		return s.CurrentStreak, true
	case StatLongestStreak:
		return s.LongestStreak, true
	case StatXP:
		return s.XP, true
	case StatLevel:
		return s.Level, true
	case StatTimeSpentMinutes:
		return s.TimeSpentMinutes, true
	case StatAchievementsEarned:
		return s.AchievementsEarned, true
	default:
		return 0, false
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CONDITION (Декларативное условие разблокировки)
// ══════════════════════════════════════════════════════════════════════════════

// Op - оператор числового сравнения.
type Op string

const (
	OpGTE Op = "gte"
	OpGT  Op = "gt"
	OpEQ  Op = "eq"
	OpLTE Op = "lte"
	OpLT  Op = "lt"
)

// IsValid проверяет, что оператор корректен.
func (o Op) IsValid() bool {
	switch o {
	case OpGTE, OpGT, OpEQ, OpLTE, OpLT:
		return true
	default:
		return false
	}
}

// compare применяет оператор к паре значений.
func (o Op) compare(actual, expected int) bool {
	switch o {
	case OpGTE:
		return actual >= expected
	case OpGT:
		return actual > expected
	case OpEQ:
		return actual == expected
	case OpLTE:
		return actual <= expected
	case OpLT:
		return actual < expected
	default:
		return false
	}
}

// Requirement - одно числовое сравнение: статистика op значение.
type Requirement struct {
	Stat  Stat `json:"stat"`
	Op    Op   `json:"op"`
	Value int  `json:"value"`
}

// Condition - конъюнкция простых сравнений. Пустое условие невалидно:
// достижение без требований раздавалось бы всем.
type Condition struct {
	All []Requirement `json:"all"`
}

var (
	// ErrEmptyCondition - условие без требований.
	ErrEmptyCondition = errors.New("unlock condition must have at least one requirement")

	// ErrUnknownStat - неизвестное имя статистики в условии.
	ErrUnknownStat = errors.New("unknown statistic in unlock condition")

	// ErrUnknownOp - неизвестный оператор в условии.
	ErrUnknownOp = errors.New("unknown operator in unlock condition")
)

// Require - шорткат для условия из одного требования.
func Require(stat Stat, op Op, value int) Condition {
	return Condition{All: []Requirement{{Stat: stat, Op: op, Value: value}}}
}

// And добавляет требование к условию.
func (c Condition) And(stat Stat, op Op, value int) Condition {
	c.All = append(c.All, Requirement{Stat: stat, Op: op, Value: value})
	return c
}

// Validate проверяет корректность условия.
func (c Condition) Validate() error {
	if len(c.All) == 0 {
		return ErrEmptyCondition
	}
	for _, req := range c.All {
		if !req.Stat.IsValid() {
			return fmt.Errorf("%w: %q", ErrUnknownStat, req.Stat)
		}
		if !req.Op.IsValid() {
			return fmt.Errorf("%w: %q", ErrUnknownOp, req.Op)
		}
	}
	return nil
}

// Evaluate - чистый предикат: выполняется ли условие на снимке статистик.
func (c Condition) Evaluate(snapshot StatsSnapshot) (bool, error) {
	if err := c.Validate(); err != nil {
		return false, err
	}

	for _, req := range c.All {
		actual, ok := snapshot.Value(req.Stat)
		if !ok {
			return false, fmt.Errorf("%w: %q", ErrUnknownStat, req.Stat)
		}
		if !req.Op.compare(actual, req.Value) {
			return false, nil
		}
	}
	return true, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// JSON CODEC (Условия хранятся в каталоге как JSONB)
// ══════════════════════════════════════════════════════════════════════════════

// ParseCondition декодирует условие из JSON-представления каталога.
func ParseCondition(raw []byte) (Condition, error) {
	var c Condition
	if err := json.Unmarshal(raw, &c); err != nil {
		return Condition{}, fmt.Errorf("failed to decode unlock condition: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Condition{}, err
	}
	return c, nil
}

// EncodeCondition кодирует условие в JSON для хранения.
func EncodeCondition(c Condition) ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(c)
}
