// Package challenge содержит доменную модель испытаний DevSecOps Academy
// и журнала попыток пользователя.
package challenge

import (
	"errors"
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// Type определяет вид испытания.
type Type string

const (
	// TypeCode - практическое задание с кодом.
	TypeCode Type = "code"
	// TypeQuiz - квиз с вопросами.
	TypeQuiz Type = "quiz"
	// TypeScenario - сценарное задание (инцидент, расследование).
	TypeScenario Type = "scenario"
)

// IsValid проверяет, что тип корректен.
func (t Type) IsValid() bool {
	switch t {
	case TypeCode, TypeQuiz, TypeScenario:
		return true
	default:
		return false
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CHALLENGE (Каталог, read-only для движка)
// ══════════════════════════════════════════════════════════════════════════════

// Challenge - испытание из каталога, привязанное к уроку.
type Challenge struct {
	// ID - уникальный идентификатор испытания.
	ID string

	// LessonID - урок, к которому относится испытание.
	LessonID string

	// Title - название.
	Title string

	// Type - вид испытания.
	Type Type

	// XPReward - награда за успешное прохождение.
	XPReward int

	// TimeLimitMinutes - лимит времени (0 - без лимита).
	TimeLimitMinutes int

	// CreatedAt - время создания записи.
	CreatedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrInvalidScore - балл вне диапазона 0-100.
	ErrInvalidScore = errors.New("invalid score: must be 0-100")

	// ErrInvalidTimeTaken - отрицательное время.
	ErrInvalidTimeTaken = errors.New("invalid time taken: must be non-negative")
)

// ══════════════════════════════════════════════════════════════════════════════
// ATTEMPT (Журнал попыток, append-only)
// ══════════════════════════════════════════════════════════════════════════════

// Attempt - одна попытка прохождения испытания.
// Журнал попыток только пополняется: записи никогда не обновляются
// и не удаляются, каждая попытка - новый факт.
type Attempt struct {
	// ID - уникальный идентификатор попытки.
	ID string

	// UserID - идентификатор пользователя.
	UserID string

	// ChallengeID - идентификатор испытания.
	ChallengeID string

	// Score - набранный балл (0-100).
	Score int

	// Passed - пройдено ли испытание.
	Passed bool

	// TimeTakenMinutes - затраченное время.
	TimeTakenMinutes int

	// AttemptedAt - время попытки.
	AttemptedAt time.Time
}

// NewAttemptParams содержит параметры для записи попытки.
type NewAttemptParams struct {
	ID               string
	UserID           string
	ChallengeID      string
	Score            int
	Passed           bool
	TimeTakenMinutes int
}

// NewAttempt создаёт запись попытки с валидацией всех полей.
func NewAttempt(params NewAttemptParams, now time.Time) (*Attempt, error) {
	if strings.TrimSpace(params.ID) == "" {
		return nil, errors.New("attempt id is required")
	}
	if strings.TrimSpace(params.UserID) == "" {
		return nil, errors.New("user id is required")
	}
	if strings.TrimSpace(params.ChallengeID) == "" {
		return nil, errors.New("challenge id is required")
	}
	if params.Score < 0 || params.Score > 100 {
		return nil, ErrInvalidScore
	}
	if params.TimeTakenMinutes < 0 {
		return nil, ErrInvalidTimeTaken
	}

	return &Attempt{
		ID:               params.ID,
		UserID:           params.UserID,
		ChallengeID:      params.ChallengeID,
		Score:            params.Score,
		Passed:           params.Passed,
		TimeTakenMinutes: params.TimeTakenMinutes,
		AttemptedAt:      now,
	}, nil
}
