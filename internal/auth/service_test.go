package auth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caseworks/auth-api/internal/logging"
	"github.com/caseworks/auth-api/internal/user"
)

// --- fakes ---

type fakeUserRepo struct {
	mu    sync.Mutex
	seq   int64
	users map[int64]*user.User
}

var _ user.Repository = (*fakeUserRepo)(nil)

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[int64]*user.User)}
}

func copyUser(u *user.User) *user.User {
	cp := *u
	cp.LoginHistory = append([]user.LoginRecord(nil), u.LoginHistory...)
	if u.ResetPasswordToken != nil {
		token := *u.ResetPasswordToken
		cp.ResetPasswordToken = &token
	}
	if u.ResetPasswordExpires != nil {
		expires := *u.ResetPasswordExpires
		cp.ResetPasswordExpires = &expires
	}
	if u.Avatar != nil {
		ref := *u.Avatar
		cp.Avatar = &ref
	}
	return &cp
}

func (f *fakeUserRepo) Create(_ context.Context, userID, username, email, passwordHash string) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, existing := range f.users {
		if existing.Email == email {
			return nil, user.ErrDuplicateEmail
		}
		if existing.Username == username {
			return nil, user.ErrDuplicateUsername
		}
	}

	f.seq++
	now := time.Now()
	u := &user.User{
		ID:           f.seq,
		UserID:       userID,
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         user.DefaultRole,
		LoginHistory: []user.LoginRecord{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	f.users[u.ID] = u
	return copyUser(u), nil
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, u := range f.users {
		if u.Email == email {
			return copyUser(u), nil
		}
	}
	return nil, user.ErrNotFound
}

func (f *fakeUserRepo) GetByID(_ context.Context, id int64) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return copyUser(u), nil
}

func (f *fakeUserRepo) RecordLogin(_ context.Context, id int64, rec user.LoginRecord) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	u.Online = true
	u.LoginHistory = append(u.LoginHistory, rec)
	u.UpdatedAt = time.Now()
	return copyUser(u), nil
}

func (f *fakeUserRepo) SetResetToken(_ context.Context, id int64, token string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[id]
	if !ok {
		return user.ErrNotFound
	}
	u.ResetPasswordToken = &token
	u.ResetPasswordExpires = &expiresAt
	u.UpdatedAt = time.Now()
	return nil
}

func (f *fakeUserRepo) ResetPasswordByToken(_ context.Context, token, passwordHash string) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, u := range f.users {
		if u.ResetPasswordToken != nil && *u.ResetPasswordToken == token &&
			u.ResetPasswordExpires != nil && u.ResetPasswordExpires.After(time.Now()) {
			u.PasswordHash = passwordHash
			u.ResetPasswordToken = nil
			u.ResetPasswordExpires = nil
			u.UpdatedAt = time.Now()
			return copyUser(u), nil
		}
	}
	return nil, user.ErrNotFound
}

func (f *fakeUserRepo) UpdateAvatar(_ context.Context, id int64, ref string) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	u.Avatar = &ref
	u.UpdatedAt = time.Now()
	return copyUser(u), nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	err    error
	emails []string
	tokens []string
}

func (f *fakeNotifier) SendPasswordResetEmail(_ context.Context, toEmail, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}
	f.emails = append(f.emails, toEmail)
	f.tokens = append(f.tokens, token)
	return nil
}

func (f *fakeNotifier) lastToken(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.tokens) == 0 {
		t.Fatal("no reset token was delivered")
	}
	return f.tokens[len(f.tokens)-1]
}

type fakeAvatarStore struct {
	err error
}

func (f *fakeAvatarStore) Store(_ context.Context, userID int64, filename, _ string, body io.Reader) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if _, err := io.Copy(io.Discard, body); err != nil {
		return "", err
	}
	return fmt.Sprintf("avatars/%d/%s", userID, filename), nil
}

// --- helpers ---

func newTestService(t *testing.T) (*Service, *fakeUserRepo, *fakeNotifier, *fakeAvatarStore) {
	t.Helper()

	tokens, err := NewTokenService(testTokenKey())
	require.NoError(t, err)

	repo := newFakeUserRepo()
	notifier := &fakeNotifier{}
	avatars := &fakeAvatarStore{}

	svc := NewService(
		repo,
		notifier,
		avatars,
		NewPasswordHasher(4),
		tokens,
		NewResetTokenGenerator(time.Hour),
		logging.NewLogger(true),
		30*24*time.Hour,
		8,
		time.Second,
	)
	return svc, repo, notifier, avatars
}

func signupAlice(t *testing.T, svc *Service) *user.User {
	t.Helper()
	u, err := svc.Signup(context.Background(), "alice", "alice@x.com", "Secret123")
	require.NoError(t, err)
	return u
}

// --- tests ---

func TestSignup(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newTestService(t)

	u := signupAlice(t, svc)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, "alice@x.com", u.Email)
	assert.Equal(t, user.DefaultRole, u.Role)
	assert.False(t, u.Online)
	assert.Empty(t, u.LoginHistory)
	assert.NotEmpty(t, u.UserID)
	assert.NotEqual(t, "Secret123", u.PasswordHash)
	assert.Contains(t, u.PasswordHash, "$argon2id$")
}

func TestSignup_GeneratesDistinctUserIDs(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Signup(ctx, "alice", "alice@x.com", "Secret123")
	require.NoError(t, err)
	second, err := svc.Signup(ctx, "bob", "bob@x.com", "Secret123")
	require.NoError(t, err)

	assert.NotEqual(t, first.UserID, second.UserID)
}

func TestSignup_Validation(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		username string
		email    string
		password string
		wantErr  error
	}{
		{"missing username", "", "alice@x.com", "Secret123", ErrUsernameRequired},
		{"missing email", "alice", "", "Secret123", ErrEmailRequired},
		{"bad email", "alice", "not-an-email", "Secret123", ErrInvalidEmailFormat},
		{"missing password", "alice", "alice@x.com", "", ErrPasswordRequired},
		{"short password", "alice", "alice@x.com", "short", ErrPasswordTooShort},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Signup(ctx, tc.username, tc.email, tc.password)
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestSignup_Duplicates(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	signupAlice(t, svc)

	_, err := svc.Signup(ctx, "alice2", "alice@x.com", "Secret123")
	require.ErrorIs(t, err, user.ErrDuplicateEmail)

	_, err = svc.Signup(ctx, "alice", "alice2@x.com", "Secret123")
	require.ErrorIs(t, err, user.ErrDuplicateUsername)
}

func TestLogin(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	signupAlice(t, svc)

	token, loggedIn, err := svc.Login(ctx, "alice@x.com", "Secret123", "203.0.113.7")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	assert.True(t, loggedIn.Online)
	require.Len(t, loggedIn.LoginHistory, 1)
	assert.Equal(t, "203.0.113.7", loggedIn.LoginHistory[0].IPAddress)
	assert.WithinDuration(t, time.Now(), loggedIn.LoginHistory[0].LoginAt, time.Minute)

	claims, err := svc.Introspect(token)
	require.NoError(t, err)
	assert.Equal(t, loggedIn.ID, claims.ID)
	assert.Equal(t, loggedIn.UserID, claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "alice@x.com", claims.Email)
	assert.Equal(t, user.DefaultRole, claims.Role)
	require.Len(t, claims.LoginHistory, 1)
	assert.Equal(t, "203.0.113.7", claims.LoginHistory[0].IPAddress)
}

func TestLogin_HistoryPreservesOrder(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	signupAlice(t, svc)

	addrs := []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}
	for _, addr := range addrs {
		_, _, err := svc.Login(ctx, "alice@x.com", "Secret123", addr)
		require.NoError(t, err)
	}

	_, u, err := svc.Login(ctx, "alice@x.com", "Secret123", "10.0.0.4")
	require.NoError(t, err)

	require.Len(t, u.LoginHistory, 4)
	for i, addr := range append(addrs, "10.0.0.4") {
		assert.Equal(t, addr, u.LoginHistory[i].IPAddress)
	}
}

func TestLogin_UniformInvalidCredentials(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	signupAlice(t, svc)

	_, _, wrongPassword := svc.Login(ctx, "alice@x.com", "wrong-password", "10.0.0.1")
	_, _, unknownEmail := svc.Login(ctx, "nobody@x.com", "Secret123", "10.0.0.1")

	// Both failure modes must be indistinguishable to the caller.
	require.ErrorIs(t, wrongPassword, ErrInvalidCredentials)
	require.ErrorIs(t, unknownEmail, ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
}

func TestLogin_MissingCredentials(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.Login(ctx, "", "Secret123", "10.0.0.1")
	require.ErrorIs(t, err, ErrMissingCredentials)

	_, _, err = svc.Login(ctx, "alice@x.com", "", "10.0.0.1")
	require.ErrorIs(t, err, ErrMissingCredentials)
}

func TestForgotPassword(t *testing.T) {
	t.Parallel()

	svc, repo, notifier, _ := newTestService(t)
	ctx := context.Background()

	created := signupAlice(t, svc)

	require.NoError(t, svc.ForgotPassword(ctx, "alice@x.com"))

	token := notifier.lastToken(t)
	assert.Len(t, token, 40)

	stored, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ResetPasswordToken)
	assert.Equal(t, token, *stored.ResetPasswordToken)
	require.NotNil(t, stored.ResetPasswordExpires)
	assert.WithinDuration(t, time.Now().Add(time.Hour), *stored.ResetPasswordExpires, time.Minute)
}

func TestForgotPassword_UnknownEmail(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newTestService(t)

	err := svc.ForgotPassword(context.Background(), "nobody@x.com")
	require.ErrorIs(t, err, user.ErrNotFound)
}

func TestForgotPassword_DeliveryFailureKeepsToken(t *testing.T) {
	t.Parallel()

	svc, repo, notifier, _ := newTestService(t)
	ctx := context.Background()

	created := signupAlice(t, svc)
	notifier.err = errors.New("smtp unreachable")

	err := svc.ForgotPassword(ctx, "alice@x.com")
	require.ErrorIs(t, err, ErrNotifierFailure)

	// Partial failure: the token stays persisted so a retry is safe.
	stored, getErr := repo.GetByID(ctx, created.ID)
	require.NoError(t, getErr)
	require.NotNil(t, stored.ResetPasswordToken)
	require.NotNil(t, stored.ResetPasswordExpires)
}

func TestResetPassword(t *testing.T) {
	t.Parallel()

	svc, repo, notifier, _ := newTestService(t)
	ctx := context.Background()

	created := signupAlice(t, svc)
	require.NoError(t, svc.ForgotPassword(ctx, "alice@x.com"))
	token := notifier.lastToken(t)

	require.NoError(t, svc.ResetPassword(ctx, token, "NewPass456"))

	// Token is single use and both fields are cleared.
	stored, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.ResetPasswordToken)
	assert.Nil(t, stored.ResetPasswordExpires)

	// Old password no longer works, new one does.
	_, _, err = svc.Login(ctx, "alice@x.com", "Secret123", "10.0.0.1")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = svc.Login(ctx, "alice@x.com", "NewPass456", "10.0.0.1")
	require.NoError(t, err)

	// Second use of the same token fails.
	err = svc.ResetPassword(ctx, token, "Another789")
	require.ErrorIs(t, err, ErrInvalidOrExpiredResetToken)
}

func TestResetPassword_WrongToken(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newTestService(t)

	err := svc.ResetPassword(context.Background(), "deadbeef", "NewPass456")
	require.ErrorIs(t, err, ErrInvalidOrExpiredResetToken)

	err = svc.ResetPassword(context.Background(), "", "NewPass456")
	require.ErrorIs(t, err, ErrInvalidOrExpiredResetToken)
}

func TestResetPassword_ExpiredToken(t *testing.T) {
	t.Parallel()

	svc, repo, _, _ := newTestService(t)
	ctx := context.Background()

	created := signupAlice(t, svc)
	require.NoError(t, repo.SetResetToken(ctx, created.ID, "expired-token", time.Now().Add(-time.Minute)))

	err := svc.ResetPassword(ctx, "expired-token", "NewPass456")
	require.ErrorIs(t, err, ErrInvalidOrExpiredResetToken)
}

func TestResetPassword_Validation(t *testing.T) {
	t.Parallel()

	svc, _, notifier, _ := newTestService(t)
	ctx := context.Background()

	signupAlice(t, svc)
	require.NoError(t, svc.ForgotPassword(ctx, "alice@x.com"))
	token := notifier.lastToken(t)

	require.ErrorIs(t, svc.ResetPassword(ctx, token, ""), ErrPasswordRequired)
	require.ErrorIs(t, svc.ResetPassword(ctx, token, "short"), ErrPasswordTooShort)
}

func TestResetPassword_ConcurrentUseSingleWinner(t *testing.T) {
	t.Parallel()

	svc, _, notifier, _ := newTestService(t)
	ctx := context.Background()

	signupAlice(t, svc)
	require.NoError(t, svc.ForgotPassword(ctx, "alice@x.com"))
	token := notifier.lastToken(t)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = svc.ResetPassword(ctx, token, fmt.Sprintf("NewPass45%d", i))
		}()
	}
	wg.Wait()

	var succeeded, rejected int
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrInvalidOrExpiredResetToken):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one concurrent reset must win")
	assert.Equal(t, 1, rejected)
}

func TestIntrospect(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	signupAlice(t, svc)
	token, _, err := svc.Login(ctx, "alice@x.com", "Secret123", "10.0.0.1")
	require.NoError(t, err)

	claims, err := svc.Introspect(token)
	require.NoError(t, err)
	assert.Equal(t, "alice@x.com", claims.Email)

	_, err = svc.Introspect("garbage")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestIntrospect_SnapshotDoesNotReflectLaterLogins(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	signupAlice(t, svc)
	token, _, err := svc.Login(ctx, "alice@x.com", "Secret123", "10.0.0.1")
	require.NoError(t, err)

	_, _, err = svc.Login(ctx, "alice@x.com", "Secret123", "10.0.0.2")
	require.NoError(t, err)

	claims, err := svc.Introspect(token)
	require.NoError(t, err)
	// Claims are frozen at issuance; the second login is not visible.
	require.Len(t, claims.LoginHistory, 1)
}

func TestUpdateAvatar(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	created := signupAlice(t, svc)

	updated, err := svc.UpdateAvatar(ctx, created.ID, "me.png", "image/png", bytes.NewReader([]byte("png-bytes")))
	require.NoError(t, err)
	require.NotNil(t, updated.Avatar)
	assert.Equal(t, fmt.Sprintf("avatars/%d/me.png", created.ID), *updated.Avatar)
}

func TestUpdateAvatar_UnknownUser(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newTestService(t)

	_, err := svc.UpdateAvatar(context.Background(), 9999, "me.png", "image/png", bytes.NewReader(nil))
	require.ErrorIs(t, err, user.ErrNotFound)
}
