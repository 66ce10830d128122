// Package progression определяет контракты хранилища прогресса.
// Реализации живут в infrastructure, доменный слой знает только интерфейсы.
package progression

import (
	"context"
	"time"

	"github.com/devsecops-academy/progression-engine/internal/domain/achievement"
	"github.com/devsecops-academy/progression-engine/internal/domain/challenge"
	"github.com/devsecops-academy/progression-engine/internal/domain/lesson"
	"github.com/devsecops-academy/progression-engine/internal/domain/profile"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS STORE
// ══════════════════════════════════════════════════════════════════════════════

// Store - долговременное хранилище прогресса. Единственный разделяемый
// мутабельный ресурс движка: координатор перечитывает состояние в начале
// каждого вызова и никогда не кеширует мутабельные копии между запросами.
type Store interface {
	// ReadProfile возвращает профиль пользователя.
	// Возвращает shared.ErrNotFound, если профиль не существует.
	ReadProfile(ctx context.Context, userID string) (*profile.Profile, error)

	// ReadLessonProgress возвращает прогресс пользователя по уроку.
	// Возвращает nil без ошибки, если взаимодействия ещё не было.
	ReadLessonProgress(ctx context.Context, userID, lessonID string) (*lesson.Progress, error)

	// ReadStats возвращает агрегатный снимок статистик пользователя.
	ReadStats(ctx context.Context, userID string) (achievement.StatsSnapshot, error)

	// ReadEarnedAchievements возвращает множество идентификаторов
	// уже полученных достижений.
	ReadEarnedAchievements(ctx context.Context, userID string) (map[string]bool, error)

	// WriteAtomic применяет упорядоченный набор мутаций целиком:
	// либо все изменения видны другим читателям, либо ни одно.
	//
	// Возвращает shared.ErrOptimisticLock, если конкурентная запись
	// инвалидировала снимок, на котором построен набор (проверка версии
	// профиля либо уникальности записи достижения). Вызывающая сторона
	// обязана перечитать состояние и повторить.
	// Возвращает shared.ErrNotFound при ссылке на несуществующую сущность.
	WriteAtomic(ctx context.Context, userID string, set *MutationSet) error
}

// CreateProfile выносится отдельно от Store: регистрация не участвует
// в протоколе оптимистичных повторов.
type ProfileCreator interface {
	// CreateProfile сохраняет новый профиль.
	// Возвращает shared.ErrAlreadyExists при конфликте username/email.
	CreateProfile(ctx context.Context, p *profile.Profile) error
}

// ══════════════════════════════════════════════════════════════════════════════
// MUTATION SET
// ══════════════════════════════════════════════════════════════════════════════

// MutationSet - упорядоченный набор изменений для одной атомарной записи.
// Порядок добавления сохраняется при применении.
type MutationSet struct {
	mutations []Mutation
}

// Mutation - одно изменение в наборе.
type Mutation interface {
	isMutation()
}

// UpsertLessonProgress создаёт или обновляет запись прогресса по уроку.
type UpsertLessonProgress struct {
	Progress *lesson.Progress
}

// UpdateProfile обновляет профиль с проверкой версии: запись отклоняется,
// если текущая версия в хранилище не равна ExpectedVersion.
type UpdateProfile struct {
	Profile         *profile.Profile
	ExpectedVersion int
}

// InsertChallengeAttempt дописывает попытку в журнал.
type InsertChallengeAttempt struct {
	Attempt *challenge.Attempt
}

// InsertUserAchievement записывает факт разблокировки достижения.
type InsertUserAchievement struct {
	Earned *achievement.UserAchievement
}

func (UpsertLessonProgress) isMutation()   {}
func (UpdateProfile) isMutation()          {}
func (InsertChallengeAttempt) isMutation() {}
func (InsertUserAchievement) isMutation()  {}

// NewMutationSet создаёт пустой набор мутаций.
func NewMutationSet() *MutationSet {
	return &MutationSet{}
}

// Mutations возвращает мутации в порядке добавления.
func (ms *MutationSet) Mutations() []Mutation {
	return ms.mutations
}

// Len возвращает количество мутаций в наборе.
func (ms *MutationSet) Len() int {
	return len(ms.mutations)
}

// AddLessonProgress добавляет upsert прогресса по уроку.
func (ms *MutationSet) AddLessonProgress(p *lesson.Progress) *MutationSet {
	ms.mutations = append(ms.mutations, UpsertLessonProgress{Progress: p})
	return ms
}

// AddProfileUpdate добавляет обновление профиля с ожидаемой версией.
func (ms *MutationSet) AddProfileUpdate(p *profile.Profile, expectedVersion int) *MutationSet {
	ms.mutations = append(ms.mutations, UpdateProfile{Profile: p, ExpectedVersion: expectedVersion})
	return ms
}

// AddChallengeAttempt добавляет запись попытки.
func (ms *MutationSet) AddChallengeAttempt(a *challenge.Attempt) *MutationSet {
	ms.mutations = append(ms.mutations, InsertChallengeAttempt{Attempt: a})
	return ms
}

// AddUserAchievement добавляет факт разблокировки.
func (ms *MutationSet) AddUserAchievement(ua *achievement.UserAchievement) *MutationSet {
	ms.mutations = append(ms.mutations, InsertUserAchievement{Earned: ua})
	return ms
}

// ══════════════════════════════════════════════════════════════════════════════
// CATALOGS (read-only)
// ══════════════════════════════════════════════════════════════════════════════

// LessonCatalog - каталог уроков.
type LessonCatalog interface {
	// FindLesson возвращает урок по идентификатору.
	// Возвращает shared.ErrNotFound, если урока нет.
	FindLesson(ctx context.Context, lessonID string) (*lesson.Lesson, error)

	// ListPublishedLessons возвращает опубликованные уроки
	// в порядке OrderIndex.
	ListPublishedLessons(ctx context.Context) ([]*lesson.Lesson, error)
}

// ChallengeCatalog - каталог испытаний.
type ChallengeCatalog interface {
	// FindChallenge возвращает испытание по идентификатору.
	// Возвращает shared.ErrNotFound, если испытания нет.
	FindChallenge(ctx context.Context, challengeID string) (*challenge.Challenge, error)
}

// AchievementCatalog - каталог достижений.
type AchievementCatalog interface {
	// ListAchievements возвращает весь каталог достижений.
	ListAchievements(ctx context.Context) ([]achievement.Achievement, error)

	// ListEarned возвращает факты разблокировки пользователя.
	ListEarned(ctx context.Context, userID string) ([]achievement.UserAchievement, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// READ MODELS
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardEntry - строка рейтинга по XP.
type LeaderboardEntry struct {
	UserID   string
	Username string
	XP       int
	Level    int
	Rank     int
}

// LeaderboardReader - источник рейтинга для read-side запросов.
type LeaderboardReader interface {
	// ListTopProfiles возвращает первые limit профилей по убыванию XP.
	ListTopProfiles(ctx context.Context, limit int) ([]LeaderboardEntry, error)
}

// ProfileOverview - полный снимок профиля для презентационного слоя.
// Движок возвращает все производные поля: вызывающая сторона никогда
// не пересчитывает уровень или проценты сама.
type ProfileOverview struct {
	Profile       *profile.Profile
	Stats         achievement.StatsSnapshot
	Earned        []achievement.UserAchievement
	XPIntoLevel   int
	XPToNextLevel int
	GeneratedAt   time.Time
}
