package profile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/devsecops-academy/progression-engine/pkg/timeutil"
)

func TestApplyActivity_FirstEverActivity(t *testing.T) {
	today := timeutil.Date(2026, 3, 10)

	upd := ApplyActivity(time.Time{}, 0, 0, today)

	assert.Equal(t, 1, upd.CurrentStreak)
	assert.Equal(t, 1, upd.LongestStreak)
	assert.Equal(t, timeutil.Date(2026, 3, 10), upd.LastActivityDate)
	assert.True(t, upd.Extended)
	assert.False(t, upd.WasReset)
}

func TestApplyActivity_SameDayIsNoOp(t *testing.T) {
	day := timeutil.Date(2026, 3, 10)

	upd := ApplyActivity(day, 4, 9, day.Add(6*time.Hour))

	assert.Equal(t, 4, upd.CurrentStreak)
	assert.Equal(t, 9, upd.LongestStreak)
	assert.Equal(t, day, upd.LastActivityDate)
	assert.False(t, upd.Extended)
	assert.False(t, upd.WasReset)
}

func TestApplyActivity_NextDayExtends(t *testing.T) {
	upd := ApplyActivity(timeutil.Date(2026, 3, 10), 4, 9, timeutil.Date(2026, 3, 11))

	assert.Equal(t, 5, upd.CurrentStreak)
	assert.Equal(t, 9, upd.LongestStreak)
	assert.True(t, upd.Extended)
	assert.False(t, upd.WasReset)
}

func TestApplyActivity_GapResetsToOne(t *testing.T) {
	upd := ApplyActivity(timeutil.Date(2026, 3, 10), 7, 7, timeutil.Date(2026, 3, 14))

	assert.Equal(t, 1, upd.CurrentStreak)
	assert.Equal(t, 7, upd.LongestStreak)
	assert.True(t, upd.WasReset)
	assert.True(t, upd.Extended)
}

func TestApplyActivity_LongestTracksNewRecord(t *testing.T) {
	upd := ApplyActivity(timeutil.Date(2026, 3, 10), 9, 9, timeutil.Date(2026, 3, 11))

	assert.Equal(t, 10, upd.CurrentStreak)
	assert.Equal(t, 10, upd.LongestStreak)
}

func TestApplyActivity_LongestSurvivesReset(t *testing.T) {
	// A 30-day record is kept even after a long break.
	upd := ApplyActivity(timeutil.Date(2026, 1, 1), 30, 30, timeutil.Date(2026, 3, 1))

	assert.Equal(t, 1, upd.CurrentStreak)
	assert.Equal(t, 30, upd.LongestStreak)
	assert.True(t, upd.WasReset)
}

func TestApplyActivity_CrossMonthBoundary(t *testing.T) {
	upd := ApplyActivity(timeutil.Date(2026, 2, 28), 3, 5, timeutil.Date(2026, 3, 1))

	assert.Equal(t, 4, upd.CurrentStreak)
	assert.True(t, upd.Extended)
}

func TestIsStreakBroken(t *testing.T) {
	now := timeutil.Date(2026, 3, 12)

	assert.False(t, IsStreakBroken(time.Time{}, now))
	assert.False(t, IsStreakBroken(timeutil.Date(2026, 3, 12), now))
	assert.False(t, IsStreakBroken(timeutil.Date(2026, 3, 11), now))
	assert.True(t, IsStreakBroken(timeutil.Date(2026, 3, 10), now))
}

func TestRecordActivity_UpdatesProfileStreak(t *testing.T) {
	p := &Profile{
		CurrentStreak:    2,
		LongestStreak:    5,
		LastActivityDate: timeutil.Date(2026, 3, 10),
	}

	p.RecordActivity(timeutil.Date(2026, 3, 11))

	assert.Equal(t, 3, p.CurrentStreak)
	assert.Equal(t, 5, p.LongestStreak)
	assert.Equal(t, timeutil.Date(2026, 3, 11), p.LastActivityDate)
}
