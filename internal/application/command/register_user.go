package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/devsecops-academy/progression-engine/internal/domain/profile"
	"github.com/devsecops-academy/progression-engine/internal/domain/progression"
	"github.com/devsecops-academy/progression-engine/internal/domain/shared"
	"github.com/devsecops-academy/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// RegisterUserCommand creates a new user profile.
type RegisterUserCommand struct {
	// Username is the display name, 2-50 characters without whitespace.
	Username string

	// Email is the user's email address.
	Email string

	// Password is the plaintext password. Hashed before storage,
	// never persisted or logged as-is.
	Password string

	// Difficulty is the preferred lesson difficulty. Optional,
	// defaults to beginner.
	Difficulty string
}

// Validate checks the command for correctness.
func (c RegisterUserCommand) Validate() error {
	if c.Username == "" {
		return errors.New("register_user: username is required")
	}
	if c.Email == "" {
		return errors.New("register_user: email is required")
	}
	if len(c.Password) < 8 {
		return errors.New("register_user: password must be at least 8 characters")
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RESULT
// ══════════════════════════════════════════════════════════════════════════════

// RegisterUserResult describes the created profile.
type RegisterUserResult struct {
	// Profile is the newly created profile.
	Profile *profile.Profile
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// RegisterUserHandlerConfig contains handler settings.
type RegisterUserHandlerConfig struct {
	// BcryptCost is the bcrypt hashing cost. Zero means bcrypt.DefaultCost.
	BcryptCost int
}

// DefaultRegisterUserHandlerConfig returns the default settings.
func DefaultRegisterUserHandlerConfig() RegisterUserHandlerConfig {
	return RegisterUserHandlerConfig{
		BcryptCost: bcrypt.DefaultCost,
	}
}

// RegisterUserHandler creates user profiles. Registration sits outside the
// optimistic retry protocol: a new profile has no version to conflict on,
// uniqueness of username and email is enforced by the store.
type RegisterUserHandler struct {
	profiles       progression.ProfileCreator
	eventPublisher shared.EventPublisher
	logger         *logger.Logger
	config         RegisterUserHandlerConfig
}

// NewRegisterUserHandler creates a new handler.
func NewRegisterUserHandler(
	profiles progression.ProfileCreator,
	eventPublisher shared.EventPublisher,
	log *logger.Logger,
	config RegisterUserHandlerConfig,
) *RegisterUserHandler {
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	if log == nil {
		log = logger.Default()
	}

	return &RegisterUserHandler{
		profiles:       profiles,
		eventPublisher: eventPublisher,
		logger:         log.With(logger.Component("register_user")),
		config:         config,
	}
}

// Handle executes the command.
func (h *RegisterUserHandler) Handle(ctx context.Context, cmd RegisterUserCommand) (*RegisterUserResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("profile", "Register", shared.ErrValidation, "invalid command", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cmd.Password), h.config.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("register_user: failed to hash password: %w", err)
	}

	p, err := profile.NewProfile(profile.NewProfileParams{
		ID:           uuid.NewString(),
		Username:     cmd.Username,
		Email:        cmd.Email,
		PasswordHash: string(hash),
		Difficulty:   profile.Difficulty(cmd.Difficulty),
	})
	if err != nil {
		return nil, fmt.Errorf("register_user: %w", err)
	}

	if err := h.profiles.CreateProfile(ctx, p); err != nil {
		if shared.IsAlreadyExists(err) {
			return nil, err
		}
		return nil, fmt.Errorf("register_user: failed to create profile: %w", err)
	}

	if h.eventPublisher != nil {
		_ = h.eventPublisher.Publish(shared.NewUserRegisteredEvent(p.ID, p.Username, p.Email))
	}

	h.logger.Info("user registered",
		logger.UserID(p.ID),
		logger.String("username", p.Username),
	)

	return &RegisterUserResult{Profile: p}, nil
}
