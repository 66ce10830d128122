package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCronExpression_FieldCount(t *testing.T) {
	_, err := ParseCronExpression("* * * *")
	assert.Error(t, err)

	_, err = ParseCronExpression("* * * * * *")
	assert.Error(t, err)

	_, err = ParseCronExpression("0 3 * * *")
	assert.NoError(t, err)
}

func TestParseCronExpression_InvalidFields(t *testing.T) {
	tests := []string{
		"60 * * * *",  // minute out of range
		"* 24 * * *",  // hour out of range
		"* * * * 7",   // weekday out of range
		"abc * * * *", // not a number
		"*/0 * * * *", // zero step
	}

	for _, expr := range tests {
		t.Run(expr, func(t *testing.T) {
			_, err := ParseCronExpression(expr)
			assert.Error(t, err)
		})
	}
}

func TestCronExpression_NextEveryFiveMinutes(t *testing.T) {
	ce, err := ParseCronExpression(Every5Minutes)
	require.NoError(t, err)

	after := time.Date(2026, 3, 10, 12, 3, 30, 0, time.UTC)
	next := ce.Next(after)

	assert.Equal(t, time.Date(2026, 3, 10, 12, 5, 0, 0, time.UTC), next)
}

func TestCronExpression_NextDailyAtThree(t *testing.T) {
	ce, err := ParseCronExpression("0 3 * * *")
	require.NoError(t, err)

	// After 03:00 today the next match is 03:00 tomorrow.
	after := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	next := ce.Next(after)

	assert.Equal(t, time.Date(2026, 3, 11, 3, 0, 0, 0, time.UTC), next)
}

func TestCronExpression_NextSkipsCurrentMinute(t *testing.T) {
	ce, err := ParseCronExpression(EveryMinute)
	require.NoError(t, err)

	after := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	next := ce.Next(after)

	assert.Equal(t, time.Date(2026, 3, 10, 12, 1, 0, 0, time.UTC), next)
}

func TestCronExpression_WeekdayMatch(t *testing.T) {
	ce, err := ParseCronExpression(EverySunday)
	require.NoError(t, err)

	// 2026-03-10 is a Tuesday; the next Sunday is 2026-03-15.
	after := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	next := ce.Next(after)

	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), next)
	assert.Equal(t, time.Sunday, next.Weekday())
}

func TestCronExpression_ListAndRange(t *testing.T) {
	ce, err := ParseCronExpression("15,45 9-17 * * *")
	require.NoError(t, err)

	after := time.Date(2026, 3, 10, 17, 46, 0, 0, time.UTC)
	next := ce.Next(after)

	// Past the working window: next match is 09:15 the following day.
	assert.Equal(t, time.Date(2026, 3, 11, 9, 15, 0, 0, time.UTC), next)
}

func TestIntervalSchedule_Next(t *testing.T) {
	s := NewIntervalSchedule(15 * time.Minute)

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, base.Add(15*time.Minute), s.Next(base))
	assert.Equal(t, "@every 15m0s", s.String())
}
