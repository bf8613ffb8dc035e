package user

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("user not found")
	ErrDuplicateEmail    = errors.New("email already exists")
	ErrDuplicateUsername = errors.New("username already exists")
)

// Repository is the durable storage boundary for user records. Mutating
// operations are atomic per record: RecordLogin appends to the login history
// and ResetPasswordByToken validates and clears the reset token in a single
// conditional write, so two concurrent resets with the same token cannot
// both succeed.
type Repository interface {
	// Create persists a new user with the default role, online=false and an
	// empty login history. Uniqueness violations are reported as
	// ErrDuplicateEmail or ErrDuplicateUsername.
	Create(ctx context.Context, userID, username, email, passwordHash string) (*User, error)

	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id int64) (*User, error)

	// RecordLogin sets online=true and appends rec to the login history,
	// preserving submission order per user. Returns the updated record.
	RecordLogin(ctx context.Context, id int64, rec LoginRecord) (*User, error)

	// SetResetToken stores a pending reset token and its expiry on the user.
	SetResetToken(ctx context.Context, id int64, token string, expiresAt time.Time) error

	// ResetPasswordByToken replaces the password hash and clears both reset
	// fields for the user whose stored token equals token and whose expiry
	// is still in the future. Returns ErrNotFound when no row matches,
	// which covers wrong, already-used and expired tokens alike.
	ResetPasswordByToken(ctx context.Context, token, passwordHash string) (*User, error)

	// UpdateAvatar replaces the stored avatar reference.
	UpdateAvatar(ctx context.Context, id int64, ref string) (*User, error)
}
