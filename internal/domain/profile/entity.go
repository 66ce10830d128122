// Package profile содержит доменную модель профиля пользователя DevSecOps Academy.
// Это ядро бизнес-логики - здесь нет внешних зависимостей.
package profile

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// XP представляет накопленные очки опыта пользователя.
type XP int

// IsValid проверяет, что XP неотрицательный.
func (x XP) IsValid() bool {
	return x >= 0
}

// Add складывает XP.
func (x XP) Add(delta XP) XP {
	return x + delta
}

// Level представляет уровень пользователя, вычисляемый из XP.
type Level int

// IsValid проверяет, что уровень не меньше первого.
func (l Level) IsValid() bool {
	return l >= 1
}

// XPPerLevel - сколько XP нужно на один уровень.
const XPPerLevel = 1000

// CalculateLevel вычисляет уровень на основе XP.
// Формула: floor(XP / 1000) + 1. Уровень всегда выводится из XP
// и никогда не хранится независимо от этой формулы.
func CalculateLevel(xp XP) Level {
	if xp < 0 {
		return 1
	}
	return Level(xp/XPPerLevel) + 1
}

// ApplyXP - чистая функция начисления опыта.
// Возвращает новый XP и новый уровень. Отрицательная дельта - ошибка
// вызывающей стороны, опыт никогда не отнимается.
func ApplyXP(current XP, delta XP) (XP, Level, error) {
	if delta < 0 {
		return 0, 0, ErrNegativeDelta
	}
	if !current.IsValid() {
		return 0, 0, ErrInvalidXP
	}

	newXP := current.Add(delta)
	return newXP, CalculateLevel(newXP), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// Difficulty определяет предпочитаемую сложность уроков.
type Difficulty string

const (
	// DifficultyBeginner - начальный уровень.
	DifficultyBeginner Difficulty = "beginner"
	// DifficultyIntermediate - средний уровень.
	DifficultyIntermediate Difficulty = "intermediate"
	// DifficultyAdvanced - продвинутый уровень.
	DifficultyAdvanced Difficulty = "advanced"
)

// IsValid проверяет, что сложность корректна.
func (d Difficulty) IsValid() bool {
	switch d {
	case DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced:
		return true
	default:
		return false
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: PROFILE
// ══════════════════════════════════════════════════════════════════════════════

// Profile - центральная сущность движка прогрессии: один профиль на пользователя.
// Мутируется только координатором завершений, всегда целиком в одной
// атомарной записи.
type Profile struct {
	// ID - внутренний уникальный идентификатор (UUID в строковом формате).
	ID string

	// Username - отображаемое имя пользователя.
	Username string

	// Email - адрес электронной почты.
	Email string

	// PasswordHash - bcrypt-хеш пароля (сессиями движок не занимается).
	PasswordHash string

	// AvatarURL - ссылка на аватар (опционально).
	AvatarURL string

	// Bio - короткое описание профиля.
	Bio string

	// XP - накопленный опыт. Монотонно не убывает.
	XP XP

	// Level - уровень. Инвариант: Level == CalculateLevel(XP) всегда.
	Level Level

	// CurrentStreak - текущая серия активных дней.
	CurrentStreak int

	// LongestStreak - лучшая серия активных дней за всё время.
	LongestStreak int

	// LastActivityDate - дата последней засчитанной активности.
	// Нулевое значение означает, что активности ещё не было.
	LastActivityDate time.Time

	// DifficultyPreference - предпочитаемая сложность уроков.
	DifficultyPreference Difficulty

	// Version - версия записи для оптимистичной блокировки.
	// Инкрементируется хранилищем при каждой успешной записи.
	Version int

	// CreatedAt - время создания записи.
	CreatedAt time.Time

	// UpdatedAt - время последнего обновления.
	UpdatedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrInvalidXP - невалидное значение XP.
	ErrInvalidXP = errors.New("invalid xp: must be non-negative")

	// ErrNegativeDelta - попытка начислить отрицательный XP.
	ErrNegativeDelta = errors.New("invalid xp delta: must be non-negative")

	// ErrInvalidUsername - невалидное имя пользователя.
	ErrInvalidUsername = errors.New("invalid username: must be 2-50 chars without whitespace")

	// ErrInvalidEmail - невалидный email.
	ErrInvalidEmail = errors.New("invalid email")

	// ErrInvalidDifficulty - невалидная сложность.
	ErrInvalidDifficulty = errors.New("invalid difficulty preference")

	// ErrLevelMismatch - уровень не соответствует XP.
	ErrLevelMismatch = errors.New("level does not match xp")
)

// ══════════════════════════════════════════════════════════════════════════════
// FACTORY & VALIDATION
// ══════════════════════════════════════════════════════════════════════════════

// NewProfileParams содержит параметры для создания нового профиля.
type NewProfileParams struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Difficulty   Difficulty
}

// NewProfile создаёт новый профиль с валидацией всех полей.
// Новый пользователь начинает с нулевым опытом и пустой серией.
func NewProfile(params NewProfileParams) (*Profile, error) {
	if params.ID == "" {
		return nil, errors.New("profile id is required")
	}

	username := strings.TrimSpace(params.Username)
	if len(username) < 2 || len(username) > 50 || strings.ContainsAny(username, " \t\n\r") {
		return nil, ErrInvalidUsername
	}

	email := strings.TrimSpace(params.Email)
	if len(email) < 3 || !strings.Contains(email, "@") {
		return nil, ErrInvalidEmail
	}

	difficulty := params.Difficulty
	if difficulty == "" {
		difficulty = DifficultyBeginner
	}
	if !difficulty.IsValid() {
		return nil, ErrInvalidDifficulty
	}

	now := time.Now().UTC()

	return &Profile{
		ID:                   params.ID,
		Username:             username,
		Email:                email,
		PasswordHash:         params.PasswordHash,
		XP:                   0,
		Level:                CalculateLevel(0),
		CurrentStreak:        0,
		LongestStreak:        0,
		DifficultyPreference: difficulty,
		Version:              0,
		CreatedAt:            now,
		UpdatedAt:            now,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN METHODS (Business Logic)
// ══════════════════════════════════════════════════════════════════════════════

// GainXP начисляет опыт и пересчитывает уровень.
// Возвращает true, если уровень вырос.
func (p *Profile) GainXP(delta XP) (leveledUp bool, err error) {
	newXP, newLevel, err := ApplyXP(p.XP, delta)
	if err != nil {
		return false, err
	}

	leveledUp = newLevel > p.Level
	p.XP = newXP
	p.Level = newLevel
	p.UpdatedAt = time.Now().UTC()

	return leveledUp, nil
}

// RecordActivity засчитывает активность за указанный день и обновляет серию.
func (p *Profile) RecordActivity(today time.Time) {
	update := ApplyActivity(p.LastActivityDate, p.CurrentStreak, p.LongestStreak, today)

	p.CurrentStreak = update.CurrentStreak
	p.LongestStreak = update.LongestStreak
	p.LastActivityDate = update.LastActivityDate
	p.UpdatedAt = time.Now().UTC()
}

// CheckInvariants проверяет инварианты профиля.
// Хранилище вызывает это перед записью: рассогласованный профиль
// не должен попасть в базу.
func (p *Profile) CheckInvariants() error {
	if !p.XP.IsValid() {
		return ErrInvalidXP
	}
	if p.Level != CalculateLevel(p.XP) {
		return ErrLevelMismatch
	}
	if p.CurrentStreak < 0 || p.LongestStreak < p.CurrentStreak {
		return errors.New("streak counters are inconsistent")
	}
	return nil
}

// XPIntoLevel возвращает, сколько опыта набрано внутри текущего уровня.
func (p *Profile) XPIntoLevel() XP {
	return p.XP % XPPerLevel
}

// XPToNextLevel возвращает, сколько опыта осталось до следующего уровня.
func (p *Profile) XPToNextLevel() XP {
	return XPPerLevel - p.XPIntoLevel()
}

// String возвращает строковое представление профиля для логирования.
func (p *Profile) String() string {
	return fmt.Sprintf(
		"Profile{ID: %s, Username: %s, XP: %d, Level: %d, Streak: %d}",
		p.ID, p.Username, p.XP, p.Level, p.CurrentStreak,
	)
}

// Clone создаёт глубокую копию профиля.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}

	clone := *p
	return &clone
}
