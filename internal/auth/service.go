package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"time"

	"github.com/google/uuid"

	"github.com/caseworks/auth-api/internal/logging"
	"github.com/caseworks/auth-api/internal/user"
)

var (
	ErrMissingCredentials = errors.New("email and password are required")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailRequired      = errors.New("email is required")
	ErrUsernameRequired   = errors.New("username is required")
	ErrPasswordRequired   = errors.New("password is required")
	ErrPasswordTooShort   = errors.New("password is too short")
	ErrInvalidEmailFormat = errors.New("invalid email format")

	ErrInvalidOrExpiredResetToken = errors.New("reset token is invalid or has expired")

	// ErrNotifierFailure means the reset token was persisted but delivery
	// failed. The token stays valid until natural expiry, so retrying the
	// forgot-password request is safe.
	ErrNotifierFailure = errors.New("failed to deliver reset notification")
)

// Notifier delivers a password reset token to the user out-of-band.
type Notifier interface {
	SendPasswordResetEmail(ctx context.Context, toEmail, token string) error
}

// AvatarStore persists uploaded avatar files and returns an opaque
// reference to the stored object.
type AvatarStore interface {
	Store(ctx context.Context, userID int64, filename, contentType string, body io.Reader) (string, error)
}

// Service handles authentication business logic
type Service struct {
	userRepo        user.Repository
	notifier        Notifier
	avatars         AvatarStore
	hasher          *PasswordHasher
	tokens          *TokenService
	resetTokens     *ResetTokenGenerator
	logger          *logging.Logger
	tokenDuration   time.Duration
	passwordMinLen  int
	notifierTimeout time.Duration
}

func NewService(
	userRepo user.Repository,
	notifier Notifier,
	avatars AvatarStore,
	hasher *PasswordHasher,
	tokens *TokenService,
	resetTokens *ResetTokenGenerator,
	logger *logging.Logger,
	tokenDuration time.Duration,
	passwordMinLen int,
	notifierTimeout time.Duration,
) *Service {
	return &Service{
		userRepo:        userRepo,
		notifier:        notifier,
		avatars:         avatars,
		hasher:          hasher,
		tokens:          tokens,
		resetTokens:     resetTokens,
		logger:          logger,
		tokenDuration:   tokenDuration,
		passwordMinLen:  passwordMinLen,
		notifierTimeout: notifierTimeout,
	}
}

// Signup creates a new user account with the default role, an empty login
// history and a freshly generated external user id.
func (s *Service) Signup(ctx context.Context, username, email, password string) (*user.User, error) {
	if username == "" {
		return nil, ErrUsernameRequired
	}
	if email == "" {
		return nil, ErrEmailRequired
	}
	if len(email) > 254 {
		return nil, ErrInvalidEmailFormat
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidEmailFormat
	}
	if password == "" {
		return nil, ErrPasswordRequired
	}
	if len(password) < s.passwordMinLen {
		return nil, ErrPasswordTooShort
	}

	passwordHash, err := s.hasher.Hash(ctx, password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	newUser, err := s.userRepo.Create(ctx, uuid.NewString(), username, email, passwordHash)
	if err != nil {
		if errors.Is(err, user.ErrDuplicateEmail) || errors.Is(err, user.ErrDuplicateUsername) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return newUser, nil
}

// Login authenticates a user, records the login and returns a bearer token
// carrying a snapshot of the user's claims.
//
// Unknown email and wrong password produce the identical
// ErrInvalidCredentials so a caller cannot tell which part was wrong.
func (s *Service) Login(ctx context.Context, email, password, sourceAddress string) (string, *user.User, error) {
	if email == "" || password == "" {
		return "", nil, ErrMissingCredentials
	}

	existing, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("failed to get user: %w", err)
	}

	if !s.hasher.Verify(ctx, password, existing.PasswordHash) {
		return "", nil, ErrInvalidCredentials
	}

	updated, err := s.userRepo.RecordLogin(ctx, existing.ID, user.LoginRecord{
		LoginAt:   time.Now(),
		IPAddress: sourceAddress,
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to record login: %w", err)
	}

	token, err := s.tokens.Issue(updated, s.tokenDuration)
	if err != nil {
		return "", nil, fmt.Errorf("failed to issue token: %w", err)
	}

	return token, updated, nil
}

// Introspect verifies a bearer token and returns its claims unchanged from
// issuance. No side effects.
func (s *Service) Introspect(tokenStr string) (*Claims, error) {
	return s.tokens.Verify(tokenStr)
}

// ForgotPassword generates and stores a reset token for the user with the
// given email, then delivers it via the notifier.
//
// The token is persisted before delivery is attempted; if delivery fails
// the call returns ErrNotifierFailure without rolling the token back, so a
// retry eventually delivers a token that is still valid.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	existing, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.ErrNotFound
		}
		return fmt.Errorf("failed to get user: %w", err)
	}

	token, expiresAt, err := s.resetTokens.Generate()
	if err != nil {
		return fmt.Errorf("failed to generate reset token: %w", err)
	}

	if err := s.userRepo.SetResetToken(ctx, existing.ID, token, expiresAt); err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}

	notifyCtx, cancel := context.WithTimeout(ctx, s.notifierTimeout)
	defer cancel()

	if err := s.notifier.SendPasswordResetEmail(notifyCtx, existing.Email, token); err != nil {
		s.logger.Warn("reset token stored but delivery failed",
			"user_id", existing.UserID, "error", err.Error())
		return fmt.Errorf("%w: %w", ErrNotifierFailure, err)
	}

	return nil
}

// ResetPassword consumes a reset token: it replaces the password hash and
// clears the token in one atomic step, so the token is single use. Wrong,
// already-used and expired tokens all yield ErrInvalidOrExpiredResetToken.
//
// Outstanding bearer tokens are not invalidated by a reset; they remain
// verifiable until natural expiry.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return ErrInvalidOrExpiredResetToken
	}
	if newPassword == "" {
		return ErrPasswordRequired
	}
	if len(newPassword) < s.passwordMinLen {
		return ErrPasswordTooShort
	}

	passwordHash, err := s.hasher.Hash(ctx, newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if _, err := s.userRepo.ResetPasswordByToken(ctx, token, passwordHash); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return ErrInvalidOrExpiredResetToken
		}
		return fmt.Errorf("failed to reset password: %w", err)
	}

	return nil
}

// UpdateAvatar stores the uploaded file and records the returned reference
// on the user.
func (s *Service) UpdateAvatar(ctx context.Context, id int64, filename, contentType string, body io.Reader) (*user.User, error) {
	ref, err := s.avatars.Store(ctx, id, filename, contentType, body)
	if err != nil {
		return nil, fmt.Errorf("failed to store avatar: %w", err)
	}

	updated, err := s.userRepo.UpdateAvatar(ctx, id, ref)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("failed to update avatar: %w", err)
	}

	return updated, nil
}
