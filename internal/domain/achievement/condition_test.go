package achievement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCondition_Operators(t *testing.T) {
	snap := StatsSnapshot{LessonsCompleted: 5}

	tests := []struct {
		name string
		op   Op
		val  int
		want bool
	}{
		{"gte met", OpGTE, 5, true},
		{"gte not met", OpGTE, 6, false},
		{"gt met", OpGT, 4, true},
		{"gt not met", OpGT, 5, false},
		{"eq met", OpEQ, 5, true},
		{"eq not met", OpEQ, 4, false},
		{"lte met", OpLTE, 5, true},
		{"lte not met", OpLTE, 4, false},
		{"lt met", OpLT, 6, true},
		{"lt not met", OpLT, 5, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond := Require(StatLessonsCompleted, tt.op, tt.val)
			got, err := cond.Evaluate(snap)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCondition_ConjunctionRequiresAllRequirements(t *testing.T) {
	cond := Require(StatLessonsCompleted, OpGTE, 3).
		And(StatCurrentStreak, OpGTE, 7)

	met, err := cond.Evaluate(StatsSnapshot{LessonsCompleted: 10, CurrentStreak: 7})
	require.NoError(t, err)
	assert.True(t, met)

	met, err = cond.Evaluate(StatsSnapshot{LessonsCompleted: 10, CurrentStreak: 6})
	require.NoError(t, err)
	assert.False(t, met)

	met, err = cond.Evaluate(StatsSnapshot{LessonsCompleted: 2, CurrentStreak: 7})
	require.NoError(t, err)
	assert.False(t, met)
}

func TestCondition_EmptyIsInvalid(t *testing.T) {
	var cond Condition

	assert.ErrorIs(t, cond.Validate(), ErrEmptyCondition)

	_, err := cond.Evaluate(StatsSnapshot{})
	assert.ErrorIs(t, err, ErrEmptyCondition)
}

func TestCondition_UnknownStatFailsEvaluation(t *testing.T) {
	cond := Require("reputation", OpGTE, 1)

	_, err := cond.Evaluate(StatsSnapshot{})

	assert.ErrorIs(t, err, ErrUnknownStat)
}

func TestCondition_UnknownOpFailsValidation(t *testing.T) {
	cond := Require(StatXP, "between", 100)

	assert.ErrorIs(t, cond.Validate(), ErrUnknownOp)
}

func TestParseCondition(t *testing.T) {
	raw := []byte(`{"all":[{"stat":"current_streak","op":"gte","value":7}]}`)

	cond, err := ParseCondition(raw)

	require.NoError(t, err)
	require.Len(t, cond.All, 1)
	assert.Equal(t, StatCurrentStreak, cond.All[0].Stat)
	assert.Equal(t, OpGTE, cond.All[0].Op)
	assert.Equal(t, 7, cond.All[0].Value)
}

func TestParseCondition_RejectsInvalidPayload(t *testing.T) {
	_, err := ParseCondition([]byte(`{"all":[]}`))
	assert.Error(t, err)

	_, err = ParseCondition([]byte(`not json`))
	assert.Error(t, err)
}

func TestEncodeCondition_RoundTrip(t *testing.T) {
	cond := Require(StatXP, OpGTE, 5000).And(StatLevel, OpGTE, 5)

	raw, err := EncodeCondition(cond)
	require.NoError(t, err)

	parsed, err := ParseCondition(raw)
	require.NoError(t, err)
	assert.Equal(t, cond, parsed)
}

func TestStatsSnapshot_Value(t *testing.T) {
	snap := StatsSnapshot{
		LessonsCompleted:   1,
		ChallengesPassed:   2,
		CurrentStreak:      3,
		LongestStreak:      4,
		XP:                 5,
		Level:              6,
		TimeSpentMinutes:   7,
		AchievementsEarned: 8,
	}

	for stat, want := range map[Stat]int{
		StatLessonsCompleted:   1,
		StatChallengesPassed:   2,
		StatCurrentStreak:      3,
		StatLongestStreak:      4,
		StatXP:                 5,
		StatLevel:              6,
		StatTimeSpentMinutes:   7,
		StatAchievementsEarned: 8,
	} {
		got, ok := snap.Value(stat)
		assert.True(t, ok, "stat %s", stat)
		assert.Equal(t, want, got, "stat %s", stat)
	}

	_, ok := snap.Value("unknown")
	assert.False(t, ok)
}

func TestCondition_AchievementsEarnedStat(t *testing.T) {
	cond := Require(StatAchievementsEarned, OpGTE, 3)
	require.NoError(t, cond.Validate())

	met, err := cond.Evaluate(StatsSnapshot{AchievementsEarned: 3})
	require.NoError(t, err)
	assert.True(t, met)

	met, err = cond.Evaluate(StatsSnapshot{AchievementsEarned: 2})
	require.NoError(t, err)
	assert.False(t, met)
}
