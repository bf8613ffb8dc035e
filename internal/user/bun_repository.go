package user

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/uptrace/bun"

	"github.com/caseworks/auth-api/internal/database"
)

// BunRepository is the Postgres-backed Repository implementation.
type BunRepository struct {
	db *bun.DB
}

var _ Repository = (*BunRepository)(nil)

func NewBunRepository(db *bun.DB) *BunRepository {
	return &BunRepository{db: db}
}

// Create inserts a new user into the database
func (r *BunRepository) Create(ctx context.Context, userID, username, email, passwordHash string) (*User, error) {
	dbUser := &database.User{
		UserID:       userID,
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         string(DefaultRole),
		Online:       false,
		LoginHistory: []database.LoginRecord{},
	}

	_, err := r.db.NewInsert().
		Model(dbUser).
		Returning("*").
		Exec(ctx)

	if err != nil {
		if mapped := mapUniqueViolation(err); mapped != nil {
			return nil, mapped
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// GetByEmail retrieves a user by email
func (r *BunRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	dbUser := new(database.User)
	err := r.db.NewSelect().
		Model(dbUser).
		Where("email = ?", email).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// GetByID retrieves a user by internal ID
func (r *BunRepository) GetByID(ctx context.Context, id int64) (*User, error) {
	dbUser := new(database.User)
	err := r.db.NewSelect().
		Model(dbUser).
		Where("id = ?", id).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// RecordLogin marks the user online and appends one entry to the login
// history. The append runs as a single UPDATE so concurrent logins for the
// same user cannot lose entries.
func (r *BunRepository) RecordLogin(ctx context.Context, id int64, rec LoginRecord) (*User, error) {
	entry, err := json.Marshal([]database.LoginRecord{{
		LoginAt:   rec.LoginAt,
		IPAddress: rec.IPAddress,
	}})
	if err != nil {
		return nil, fmt.Errorf("failed to encode login record: %w", err)
	}

	dbUser := new(database.User)
	res, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("online = TRUE").
		Set("login_history = login_history || ?::jsonb", string(entry)).
		Set("updated_at = NOW()").
		Where("id = ?", id).
		Returning("*").
		Exec(ctx, dbUser)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to record login: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return nil, ErrNotFound
	}

	return mapDBUserToModel(dbUser), nil
}

// SetResetToken stores a pending password reset token and its expiry.
func (r *BunRepository) SetResetToken(ctx context.Context, id int64, token string, expiresAt time.Time) error {
	res, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("reset_password_token = ?", token).
		Set("reset_password_expires = ?", expiresAt).
		Set("updated_at = NOW()").
		Where("id = ?", id).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to set reset token: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// ResetPasswordByToken performs the validate-and-clear of a reset token as
// one conditional UPDATE. The WHERE clause matches the stored token and a
// still-future expiry, so of two concurrent calls with the same token
// exactly one sees a matched row; the other gets ErrNotFound.
func (r *BunRepository) ResetPasswordByToken(ctx context.Context, token, passwordHash string) (*User, error) {
	dbUser := new(database.User)
	res, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("password_hash = ?", passwordHash).
		Set("reset_password_token = NULL").
		Set("reset_password_expires = NULL").
		Set("updated_at = NOW()").
		Where("reset_password_token = ?", token).
		Where("reset_password_expires > NOW()").
		Returning("*").
		Exec(ctx, dbUser)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to reset password: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return nil, ErrNotFound
	}

	return mapDBUserToModel(dbUser), nil
}

// UpdateAvatar replaces the stored avatar reference for the given user.
func (r *BunRepository) UpdateAvatar(ctx context.Context, id int64, ref string) (*User, error) {
	dbUser := new(database.User)
	res, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("avatar = ?", ref).
		Set("updated_at = NOW()").
		Where("id = ?", id).
		Returning("*").
		Exec(ctx, dbUser)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update avatar: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return nil, ErrNotFound
	}

	return mapDBUserToModel(dbUser), nil
}

// mapUniqueViolation translates a Postgres unique violation into a domain
// error, or returns nil if err is something else.
func mapUniqueViolation(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return nil
	}
	switch {
	case strings.Contains(pqErr.Constraint, "username"):
		return ErrDuplicateUsername
	case strings.Contains(pqErr.Constraint, "email"):
		return ErrDuplicateEmail
	default:
		return nil
	}
}

// mapDBUserToModel converts database model to domain model
func mapDBUserToModel(dbu *database.User) *User {
	history := make([]LoginRecord, len(dbu.LoginHistory))
	for i, rec := range dbu.LoginHistory {
		history[i] = LoginRecord{LoginAt: rec.LoginAt, IPAddress: rec.IPAddress}
	}

	return &User{
		ID:                   dbu.ID,
		UserID:               dbu.UserID,
		Username:             dbu.Username,
		Email:                dbu.Email,
		PasswordHash:         dbu.PasswordHash,
		Role:                 Role(dbu.Role),
		Online:               dbu.Online,
		LoginHistory:         history,
		ResetPasswordToken:   dbu.ResetPasswordToken,
		ResetPasswordExpires: dbu.ResetPasswordExpires,
		Avatar:               dbu.Avatar,
		Bio:                  dbu.Bio,
		Phone:                dbu.Phone,
		Address:              dbu.Address,
		CreatedAt:            dbu.CreatedAt,
		UpdatedAt:            dbu.UpdatedAt,
	}
}
