package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caseworks/auth-api/internal/user"
)

func testTokenKey() []byte {
	return []byte("0123456789abcdef0123456789abcdef")
}

func testTokenUser() *user.User {
	return &user.User{
		ID:       42,
		UserID:   "0f8fad5b-d9cb-469f-a165-70867728950e",
		Username: "alice",
		Email:    "alice@x.com",
		Role:     user.RoleIntaker,
		LoginHistory: []user.LoginRecord{
			{LoginAt: time.Date(2026, 8, 1, 9, 30, 0, 0, time.UTC), IPAddress: "10.0.0.5"},
			{LoginAt: time.Date(2026, 8, 2, 17, 5, 0, 0, time.UTC), IPAddress: "10.0.0.9"},
		},
	}
}

func TestNewTokenService_KeyLength(t *testing.T) {
	t.Parallel()

	_, err := NewTokenService([]byte("too-short"))
	require.Error(t, err)

	_, err = NewTokenService(testTokenKey())
	require.NoError(t, err)
}

func TestTokenService_IssueAndVerify(t *testing.T) {
	t.Parallel()

	svc, err := NewTokenService(testTokenKey())
	require.NoError(t, err)

	u := testTokenUser()
	token, err := svc.Issue(u, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.Verify(token)
	require.NoError(t, err)

	assert.Equal(t, u.ID, claims.ID)
	assert.Equal(t, u.UserID, claims.UserID)
	assert.Equal(t, u.Username, claims.Username)
	assert.Equal(t, u.Email, claims.Email)
	assert.Equal(t, u.Role, claims.Role)
	require.Len(t, claims.LoginHistory, 2)
	assert.True(t, claims.LoginHistory[0].LoginAt.Equal(u.LoginHistory[0].LoginAt))
	assert.Equal(t, u.LoginHistory[1].IPAddress, claims.LoginHistory[1].IPAddress)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt, time.Minute)
}

func TestTokenService_Expired(t *testing.T) {
	t.Parallel()

	svc, err := NewTokenService(testTokenKey())
	require.NoError(t, err)

	token, err := svc.Issue(testTokenUser(), -time.Second)
	require.NoError(t, err)

	_, err = svc.Verify(token)
	require.ErrorIs(t, err, ErrExpiredToken)
}

func TestTokenService_ExpiryBoundary(t *testing.T) {
	t.Parallel()

	svc, err := NewTokenService(testTokenKey())
	require.NoError(t, err)

	token, err := svc.Issue(testTokenUser(), 300*time.Millisecond)
	require.NoError(t, err)

	// Still inside the validity window.
	_, err = svc.Verify(token)
	require.NoError(t, err)

	time.Sleep(400 * time.Millisecond)

	_, err = svc.Verify(token)
	require.ErrorIs(t, err, ErrExpiredToken)
}

func TestTokenService_InvalidToken(t *testing.T) {
	t.Parallel()

	svc, err := NewTokenService(testTokenKey())
	require.NoError(t, err)

	_, err = svc.Verify("not-a-token")
	require.ErrorIs(t, err, ErrInvalidToken)

	token, err := svc.Issue(testTokenUser(), time.Hour)
	require.NoError(t, err)

	// Tampering invalidates the token.
	tampered := token[:len(token)-4] + "AAAA"
	_, err = svc.Verify(tampered)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenService_WrongKey(t *testing.T) {
	t.Parallel()

	issuer, err := NewTokenService(testTokenKey())
	require.NoError(t, err)
	verifier, err := NewTokenService([]byte("fedcba9876543210fedcba9876543210"))
	require.NoError(t, err)

	token, err := issuer.Issue(testTokenUser(), time.Hour)
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}
