package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/devsecops-academy/progression-engine/internal/domain/profile"
	"github.com/devsecops-academy/progression-engine/internal/domain/shared"
)

func newRegisterHandler(store *fakeStore, bus *recordingPublisher) *RegisterUserHandler {
	return NewRegisterUserHandler(store, bus, nil, RegisterUserHandlerConfig{
		BcryptCost: bcrypt.MinCost,
	})
}

func TestRegisterUser_CreatesFreshProfile(t *testing.T) {
	store := newFakeStore()
	bus := &recordingPublisher{}

	h := newRegisterHandler(store, bus)
	res, err := h.Handle(context.Background(), RegisterUserCommand{
		Username: "gopher",
		Email:    "gopher@example.com",
		Password: "s3cure-pass",
	})

	require.NoError(t, err)
	require.NotNil(t, res.Profile)
	assert.NotEmpty(t, res.Profile.ID)
	assert.Equal(t, "gopher", res.Profile.Username)
	assert.Equal(t, profile.XP(0), res.Profile.XP)
	assert.Equal(t, profile.Level(1), res.Profile.Level)
	assert.Equal(t, profile.DifficultyBeginner, res.Profile.DifficultyPreference)

	// The password is stored hashed, never as plaintext.
	assert.NotEqual(t, "s3cure-pass", res.Profile.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(res.Profile.PasswordHash), []byte("s3cure-pass")))

	stored, err := store.ReadProfile(context.Background(), res.Profile.ID)
	require.NoError(t, err)
	assert.Equal(t, "gopher", stored.Username)

	assert.True(t, bus.has(shared.EventUserRegistered))
}

func TestRegisterUser_HonorsDifficultyPreference(t *testing.T) {
	h := newRegisterHandler(newFakeStore(), &recordingPublisher{})

	res, err := h.Handle(context.Background(), RegisterUserCommand{
		Username:   "gopher",
		Email:      "gopher@example.com",
		Password:   "s3cure-pass",
		Difficulty: "advanced",
	})

	require.NoError(t, err)
	assert.Equal(t, profile.DifficultyAdvanced, res.Profile.DifficultyPreference)
}

func TestRegisterUser_DuplicateUsername(t *testing.T) {
	store := newFakeStore()
	h := newRegisterHandler(store, &recordingPublisher{})

	_, err := h.Handle(context.Background(), RegisterUserCommand{
		Username: "gopher",
		Email:    "first@example.com",
		Password: "s3cure-pass",
	})
	require.NoError(t, err)

	_, err = h.Handle(context.Background(), RegisterUserCommand{
		Username: "gopher",
		Email:    "second@example.com",
		Password: "s3cure-pass",
	})

	assert.True(t, shared.IsAlreadyExists(err))
}

func TestRegisterUser_ValidatesCommand(t *testing.T) {
	h := newRegisterHandler(newFakeStore(), &recordingPublisher{})

	tests := []struct {
		name string
		cmd  RegisterUserCommand
	}{
		{"missing username", RegisterUserCommand{Email: "a@b.c", Password: "s3cure-pass"}},
		{"missing email", RegisterUserCommand{Username: "gopher", Password: "s3cure-pass"}},
		{"short password", RegisterUserCommand{Username: "gopher", Email: "a@b.c", Password: "short"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Handle(context.Background(), tt.cmd)
			assert.True(t, shared.IsValidation(err))
		})
	}
}

func TestRegisterUser_InvalidProfileFieldsRejected(t *testing.T) {
	h := newRegisterHandler(newFakeStore(), &recordingPublisher{})

	_, err := h.Handle(context.Background(), RegisterUserCommand{
		Username: "x",
		Email:    "a@b.c",
		Password: "s3cure-pass",
	})
	assert.ErrorIs(t, err, profile.ErrInvalidUsername)

	_, err = h.Handle(context.Background(), RegisterUserCommand{
		Username:   "gopher",
		Email:      "a@b.c",
		Password:   "s3cure-pass",
		Difficulty: "impossible",
	})
	assert.ErrorIs(t, err, profile.ErrInvalidDifficulty)
}
