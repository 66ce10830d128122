// Package lesson содержит доменную модель уроков DevSecOps Academy
// и прогресса пользователя по урокам.
package lesson

import (
	"errors"
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// Difficulty определяет сложность урока.
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

// Status определяет статус прохождения урока пользователем.
// Переходы однонаправленные: not_started -> in_progress -> completed.
type Status string

const (
	// StatusNotStarted - пользователь ещё не открывал урок.
	StatusNotStarted Status = "not_started"
	// StatusInProgress - урок начат, но не завершён.
	StatusInProgress Status = "in_progress"
	// StatusCompleted - урок завершён. Терминальный статус.
	StatusCompleted Status = "completed"
)

// IsValid проверяет, что статус корректен.
func (s Status) IsValid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusCompleted:
		return true
	default:
		return false
	}
}

// rank возвращает порядковый номер статуса для проверки переходов.
func (s Status) rank() int {
	switch s {
	case StatusNotStarted:
		return 0
	case StatusInProgress:
		return 1
	case StatusCompleted:
		return 2
	default:
		return -1
	}
}

// CanTransitionTo проверяет допустимость перехода статуса.
func (s Status) CanTransitionTo(next Status) bool {
	return next.IsValid() && next.rank() >= s.rank()
}

// ══════════════════════════════════════════════════════════════════════════════
// LESSON (Каталог, read-only для движка)
// ══════════════════════════════════════════════════════════════════════════════

// Lesson - урок из каталога. Движок прогрессии каталог не редактирует,
// только читает награды и проверяет существование.
type Lesson struct {
	// ID - уникальный идентификатор урока.
	ID string

	// Title - название урока.
	Title string

	// Description - описание.
	Description string

	// Category - категория (например, "container-security").
	Category string

	// Difficulty - сложность.
	Difficulty Difficulty

	// EstimatedMinutes - оценка времени прохождения.
	EstimatedMinutes int

	// XPReward - награда за завершение.
	XPReward int

	// OrderIndex - позиция в курсе.
	OrderIndex int

	// Published - опубликован ли урок.
	Published bool

	// CreatedAt - время создания записи.
	CreatedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrInvalidProgressPct - процент прогресса вне диапазона 0-100.
	ErrInvalidProgressPct = errors.New("invalid progress percentage: must be 0-100")

	// ErrInvalidTimeSpent - отрицательное время.
	ErrInvalidTimeSpent = errors.New("invalid time spent: must be non-negative")

	// ErrBackwardTransition - попытка перевести статус назад.
	ErrBackwardTransition = errors.New("progress status cannot move backwards")

	// ErrAlreadyCompleted - урок уже завершён.
	ErrAlreadyCompleted = errors.New("lesson already completed")
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS (Прогресс пользователя по уроку)
// ══════════════════════════════════════════════════════════════════════════════

// Progress - прогресс одного пользователя по одному уроку.
// Создаётся при первом взаимодействии с уроком.
//
// Инвариант: Status == completed => ProgressPct == 100 и CompletedAt установлен.
type Progress struct {
	// ID - уникальный идентификатор записи.
	ID string

	// UserID - идентификатор пользователя.
	UserID string

	// LessonID - идентификатор урока.
	LessonID string

	// Status - текущий статус прохождения.
	Status Status

	// ProgressPct - процент прохождения (0-100).
	ProgressPct int

	// StartedAt - время первого взаимодействия.
	StartedAt time.Time

	// CompletedAt - время завершения. Нулевое до завершения.
	CompletedAt time.Time

	// TimeSpentMinutes - суммарное время работы над уроком.
	TimeSpentMinutes int

	// UpdatedAt - время последнего обновления.
	UpdatedAt time.Time
}

// NewProgress создаёт запись прогресса при первом взаимодействии с уроком.
func NewProgress(id, userID, lessonID string, now time.Time) (*Progress, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("progress id is required")
	}
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("user id is required")
	}
	if strings.TrimSpace(lessonID) == "" {
		return nil, errors.New("lesson id is required")
	}

	return &Progress{
		ID:        id,
		UserID:    userID,
		LessonID:  lessonID,
		Status:    StatusInProgress,
		StartedAt: now,
		UpdatedAt: now,
	}, nil
}

// IsCompleted возвращает true, если урок уже завершён.
func (p *Progress) IsCompleted() bool {
	return p.Status == StatusCompleted
}

// Advance обновляет процент прохождения незавершённого урока.
func (p *Progress) Advance(pct int, now time.Time) error {
	if p.IsCompleted() {
		return ErrAlreadyCompleted
	}
	if pct < 0 || pct > 100 {
		return ErrInvalidProgressPct
	}
	if pct < p.ProgressPct {
		return ErrBackwardTransition
	}

	p.Status = StatusInProgress
	p.ProgressPct = pct
	p.UpdatedAt = now
	return nil
}

// Complete переводит урок в завершённое состояние.
// Повторное завершение - ошибка ErrAlreadyCompleted: вызывающая сторона
// должна проверить IsCompleted и обработать это как идемпотентный no-op.
func (p *Progress) Complete(timeSpentMinutes int, now time.Time) error {
	if p.IsCompleted() {
		return ErrAlreadyCompleted
	}
	if timeSpentMinutes < 0 {
		return ErrInvalidTimeSpent
	}

	p.Status = StatusCompleted
	p.ProgressPct = 100
	p.CompletedAt = now
	p.TimeSpentMinutes += timeSpentMinutes
	p.UpdatedAt = now
	return nil
}

// CheckInvariants проверяет инварианты записи прогресса.
func (p *Progress) CheckInvariants() error {
	if p.ProgressPct < 0 || p.ProgressPct > 100 {
		return ErrInvalidProgressPct
	}
	if p.TimeSpentMinutes < 0 {
		return ErrInvalidTimeSpent
	}
	if p.Status == StatusCompleted && (p.ProgressPct != 100 || p.CompletedAt.IsZero()) {
		return errors.New("completed progress must have 100% and a completion time")
	}
	return nil
}

// Clone создаёт копию записи прогресса.
func (p *Progress) Clone() *Progress {
	if p == nil {
		return nil
	}

	clone := *p
	return &clone
}
