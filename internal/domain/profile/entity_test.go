package profile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateLevel(t *testing.T) {
	assert.Equal(t, Level(1), CalculateLevel(0))
	assert.Equal(t, Level(1), CalculateLevel(999))
	assert.Equal(t, Level(2), CalculateLevel(1000))
	assert.Equal(t, Level(2), CalculateLevel(1999))
	assert.Equal(t, Level(3), CalculateLevel(2000))
	assert.Equal(t, Level(11), CalculateLevel(10500))
}

func TestApplyXP_CrossesLevelBoundary(t *testing.T) {
	newXP, newLevel, err := ApplyXP(950, 100)

	require.NoError(t, err)
	assert.Equal(t, XP(1050), newXP)
	assert.Equal(t, Level(2), newLevel)
}

func TestApplyXP_ExactBoundaryStaysBelow(t *testing.T) {
	// 999 XP is still level 1, 1000 is level 2.
	newXP, newLevel, err := ApplyXP(900, 99)
	require.NoError(t, err)
	assert.Equal(t, XP(999), newXP)
	assert.Equal(t, Level(1), newLevel)

	newXP, newLevel, err = ApplyXP(newXP, 1)
	require.NoError(t, err)
	assert.Equal(t, XP(1000), newXP)
	assert.Equal(t, Level(2), newLevel)
}

func TestApplyXP_NegativeDeltaRejected(t *testing.T) {
	_, _, err := ApplyXP(500, -1)

	assert.ErrorIs(t, err, ErrNegativeDelta)
}

func TestApplyXP_ZeroDeltaIsAllowed(t *testing.T) {
	newXP, newLevel, err := ApplyXP(500, 0)

	require.NoError(t, err)
	assert.Equal(t, XP(500), newXP)
	assert.Equal(t, Level(1), newLevel)
}

func TestGainXP_ReportsLevelUp(t *testing.T) {
	p := &Profile{XP: 950, Level: 1}

	leveledUp, err := p.GainXP(100)

	require.NoError(t, err)
	assert.True(t, leveledUp)
	assert.Equal(t, XP(1050), p.XP)
	assert.Equal(t, Level(2), p.Level)
}

func TestGainXP_NoLevelUpWithinLevel(t *testing.T) {
	p := &Profile{XP: 100, Level: 1}

	leveledUp, err := p.GainXP(200)

	require.NoError(t, err)
	assert.False(t, leveledUp)
	assert.Equal(t, XP(300), p.XP)
	assert.Equal(t, Level(1), p.Level)
}

func TestGainXP_NegativeDeltaLeavesProfileUntouched(t *testing.T) {
	p := &Profile{XP: 500, Level: 1}

	_, err := p.GainXP(-50)

	assert.ErrorIs(t, err, ErrNegativeDelta)
	assert.Equal(t, XP(500), p.XP)
	assert.Equal(t, Level(1), p.Level)
}

func TestXPIntoLevelAndToNext(t *testing.T) {
	p := &Profile{XP: 1250, Level: 2}

	assert.Equal(t, XP(250), p.XPIntoLevel())
	assert.Equal(t, XP(750), p.XPToNextLevel())
}

func TestNewProfile_Defaults(t *testing.T) {
	p, err := NewProfile(NewProfileParams{
		ID:       "u-1",
		Username: "gopher",
		Email:    "gopher@example.com",
	})

	require.NoError(t, err)
	assert.Equal(t, XP(0), p.XP)
	assert.Equal(t, Level(1), p.Level)
	assert.Equal(t, 0, p.CurrentStreak)
	assert.Equal(t, 0, p.LongestStreak)
	assert.True(t, p.LastActivityDate.IsZero())
	assert.Equal(t, DifficultyBeginner, p.DifficultyPreference)
	assert.Equal(t, 0, p.Version)
}

func TestNewProfile_Validation(t *testing.T) {
	tests := []struct {
		name    string
		params  NewProfileParams
		wantErr error
	}{
		{
			name:    "username too short",
			params:  NewProfileParams{ID: "u-1", Username: "a", Email: "a@b.c"},
			wantErr: ErrInvalidUsername,
		},
		{
			name:    "username with whitespace",
			params:  NewProfileParams{ID: "u-1", Username: "go pher", Email: "a@b.c"},
			wantErr: ErrInvalidUsername,
		},
		{
			name:    "email without at sign",
			params:  NewProfileParams{ID: "u-1", Username: "gopher", Email: "nope"},
			wantErr: ErrInvalidEmail,
		},
		{
			name:    "unknown difficulty",
			params:  NewProfileParams{ID: "u-1", Username: "gopher", Email: "a@b.c", Difficulty: "expert"},
			wantErr: ErrInvalidDifficulty,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProfile(tt.params)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCheckInvariants_LevelMustMatchXP(t *testing.T) {
	p := &Profile{XP: 2500, Level: 2}

	assert.ErrorIs(t, p.CheckInvariants(), ErrLevelMismatch)

	p.Level = CalculateLevel(p.XP)
	assert.NoError(t, p.CheckInvariants())
}

func TestCheckInvariants_StreakConsistency(t *testing.T) {
	p := &Profile{XP: 0, Level: 1, CurrentStreak: 5, LongestStreak: 3}

	assert.Error(t, p.CheckInvariants())
}

func TestClone_IsIndependent(t *testing.T) {
	p := &Profile{ID: "u-1", XP: 100, Level: 1, UpdatedAt: time.Now()}

	clone := p.Clone()
	clone.XP = 900

	assert.Equal(t, XP(100), p.XP)
	assert.Equal(t, XP(900), clone.XP)
}
