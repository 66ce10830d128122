package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartOfDay(t *testing.T) {
	ts := time.Date(2026, 3, 10, 17, 42, 13, 500, time.UTC)

	got := StartOfDay(ts)

	assert.Equal(t, Date(2026, 3, 10), got)
}

func TestIsSameDay(t *testing.T) {
	morning := time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC)
	evening := time.Date(2026, 3, 10, 23, 59, 59, 0, time.UTC)

	assert.True(t, IsSameDay(morning, evening))
	assert.False(t, IsSameDay(evening, evening.Add(time.Second)))
}

func TestIsNextDay(t *testing.T) {
	assert.True(t, IsNextDay(Date(2026, 3, 10), Date(2026, 3, 11)))
	assert.False(t, IsNextDay(Date(2026, 3, 10), Date(2026, 3, 10)))
	assert.False(t, IsNextDay(Date(2026, 3, 10), Date(2026, 3, 12)))
	assert.False(t, IsNextDay(Date(2026, 3, 11), Date(2026, 3, 10)))
}

func TestDaysBetween(t *testing.T) {
	assert.Equal(t, 0, DaysBetween(Date(2026, 3, 10), Date(2026, 3, 10)))
	assert.Equal(t, 1, DaysBetween(Date(2026, 3, 10), Date(2026, 3, 11)))
	assert.Equal(t, 4, DaysBetween(Date(2026, 3, 10), Date(2026, 3, 14)))

	// Time of day does not matter.
	late := time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)
	early := time.Date(2026, 3, 11, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, 1, DaysBetween(late, early))
}

func TestDaysBetween_MonthAndYearBoundaries(t *testing.T) {
	assert.Equal(t, 1, DaysBetween(Date(2026, 2, 28), Date(2026, 3, 1)))
	assert.Equal(t, 1, DaysBetween(Date(2025, 12, 31), Date(2026, 1, 1)))
}

func TestFormatAndParseDate(t *testing.T) {
	day := Date(2026, 3, 10)

	str := FormatDateStr(day)
	assert.Equal(t, "2026-03-10", str)

	parsed, err := ParseDate(str)
	require.NoError(t, err)
	assert.Equal(t, day, parsed)

	_, err = ParseDate("10.03.2026")
	assert.Error(t, err)
}
