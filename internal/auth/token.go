package auth

import (
	"errors"
	"fmt"
	"time"

	"aidanwoods.dev/go-paseto"

	"github.com/caseworks/auth-api/internal/user"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Claims is the identity snapshot embedded in a bearer token at issuance.
// It does not reflect later user mutations; a client sees updated claims
// only after re-authenticating.
type Claims struct {
	ID           int64              `json:"id"`
	UserID       string             `json:"user_id"`
	Username     string             `json:"username"`
	Email        string             `json:"email"`
	Role         user.Role          `json:"role"`
	LoginHistory []user.LoginRecord `json:"login_history"`
	IssuedAt     time.Time          `json:"iat"`
	ExpiresAt    time.Time          `json:"exp"`
}

// TokenService issues and verifies bearer identity tokens.
// Uses PASETO v4.local (symmetric encryption with XChaCha20-Poly1305);
// tokens are tamper evident and carry an embedded expiry.
type TokenService struct {
	symmetricKey paseto.V4SymmetricKey
}

// NewTokenService builds a TokenService from a process-wide 32-byte key.
// Rotating the key invalidates all previously issued tokens.
func NewTokenService(symmetricKey []byte) (*TokenService, error) {
	if len(symmetricKey) != 32 {
		return nil, fmt.Errorf("symmetric key must be exactly 32 bytes, got %d", len(symmetricKey))
	}

	key, err := paseto.V4SymmetricKeyFromBytes(symmetricKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create symmetric key: %w", err)
	}

	return &TokenService{symmetricKey: key}, nil
}

// Issue generates a token for u valid for ttl from now.
func (s *TokenService) Issue(u *user.User, ttl time.Duration) (string, error) {
	now := time.Now()

	token := paseto.NewToken()
	token.SetIssuedAt(now)
	token.SetExpiration(now.Add(ttl))
	if err := token.Set("id", u.ID); err != nil {
		return "", fmt.Errorf("failed to set claim: %w", err)
	}
	token.SetString("user_id", u.UserID)
	token.SetString("username", u.Username)
	token.SetString("email", u.Email)
	token.SetString("role", string(u.Role))
	if err := token.Set("login_history", u.LoginHistory); err != nil {
		return "", fmt.Errorf("failed to set claim: %w", err)
	}

	return token.V4Encrypt(s.symmetricKey, nil), nil
}

// Verify validates a token and returns the claims exactly as issued.
// Returns ErrExpiredToken past the embedded expiry and ErrInvalidToken for
// bad signatures or malformed structure.
func (s *TokenService) Verify(tokenStr string) (*Claims, error) {
	parser := paseto.NewParser()

	token, err := parser.ParseV4Local(s.symmetricKey, tokenStr, nil)
	if err != nil {
		// The parser checks expiration by default; distinguish expired from invalid
		if errors.Is(err, &paseto.RuleError{}) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims := &Claims{}
	if err := token.Get("id", &claims.ID); err != nil {
		return nil, ErrInvalidToken
	}

	var strErr error
	get := func(key string) string {
		v, err := token.GetString(key)
		if err != nil && strErr == nil {
			strErr = err
		}
		return v
	}
	claims.UserID = get("user_id")
	claims.Username = get("username")
	claims.Email = get("email")
	claims.Role = user.Role(get("role"))
	if strErr != nil {
		return nil, ErrInvalidToken
	}

	if err := token.Get("login_history", &claims.LoginHistory); err != nil {
		return nil, ErrInvalidToken
	}

	issuedAt, err := token.GetIssuedAt()
	if err != nil {
		return nil, ErrInvalidToken
	}
	expiresAt, err := token.GetExpiration()
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims.IssuedAt = issuedAt
	claims.ExpiresAt = expiresAt

	return claims, nil
}
