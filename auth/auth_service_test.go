package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/jrsteele09/go-user-admin/auth"
	apperrors "github.com/jrsteele09/go-user-admin/internal/errors"
	"github.com/jrsteele09/go-user-admin/sessions"
	"github.com/jrsteele09/go-user-admin/users"
	fakeuserrepo "github.com/jrsteele09/go-user-admin/users/repofake"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testUsername = "alice"
	testPassword = "Secr3t!"
)

// testFixture holds all test dependencies
type testFixture struct {
	now      time.Time
	users    *users.Service
	sessions *sessions.InMemoryStore
	service  *auth.Service
}

func (f *testFixture) Now() time.Time { return f.now }

// setupTestFixture creates a new test fixture with all dependencies
func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	f := &testFixture{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}

	userService, err := users.NewService(fakeuserrepo.NewFakeUserRepo(),
		users.WithHashCost(bcrypt.MinCost),
		users.WithNowTime(f.Now),
	)
	require.NoError(t, err)
	f.users = userService
	f.sessions = sessions.NewInMemoryStoreWithClock(f.Now)

	f.service, err = auth.NewService(f.users, f.sessions,
		auth.WithNowTime(f.Now),
		auth.WithSessionTTL(10*time.Minute),
	)
	require.NoError(t, err)
	return f
}

func (f *testFixture) anonymousSession(t *testing.T) *sessions.Session {
	t.Helper()
	s, err := sessions.New(f.now, 10*time.Minute)
	require.NoError(t, err)
	require.NoError(t, f.sessions.Set(context.Background(), s))
	return s
}

func TestNewService_RequiresDependencies(t *testing.T) {
	_, err := auth.NewService(nil, sessions.NewInMemoryStore())
	require.Error(t, err)

	userService, err := users.NewService(fakeuserrepo.NewFakeUserRepo())
	require.NoError(t, err)
	_, err = auth.NewService(userService, nil)
	require.Error(t, err)
}

func TestRegisterThenLogin(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	u, err := f.service.Register(ctx, testUsername, testPassword)
	require.NoError(t, err)
	require.Equal(t, users.RoleUser, u.Role)
	require.NotEqual(t, testPassword, u.PasswordHash)

	_, err = f.service.Register(ctx, testUsername, "Another1")
	require.ErrorIs(t, err, apperrors.ErrDuplicateUsername)

	anon := f.anonymousSession(t)
	sess, err := f.service.Login(ctx, anon, testUsername, testPassword)
	require.NoError(t, err)
	require.True(t, sess.Authenticated())
	require.Equal(t, u.ID, sess.UserID)
	require.Equal(t, testUsername, sess.Username)
	require.Equal(t, f.now.Add(10*time.Minute), sess.ExpiresAt)

	t.Run("session is rotated", func(t *testing.T) {
		require.NotEqual(t, anon.ID, sess.ID)
		require.NotEqual(t, anon.CSRFToken, sess.CSRFToken)

		_, err := f.sessions.Get(ctx, anon.ID)
		require.ErrorIs(t, err, apperrors.ErrSessionNotFound)

		stored, err := f.sessions.Get(ctx, sess.ID)
		require.NoError(t, err)
		require.Equal(t, u.ID, stored.UserID)
	})

	t.Run("logout destroys the session", func(t *testing.T) {
		require.NoError(t, f.service.Logout(ctx, sess))
		_, err := f.sessions.Get(ctx, sess.ID)
		require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
		require.NoError(t, f.service.Logout(ctx, sess))
		require.NoError(t, f.service.Logout(ctx, nil))
	})
}

func TestLogin_UsernameIsCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	_, err := f.service.Register(ctx, "Alice", testPassword)
	require.NoError(t, err)

	sess, err := f.service.Login(ctx, nil, "ALICE", testPassword)
	require.NoError(t, err)
	require.Equal(t, testUsername, sess.Username)
}

func TestLogin_Failures(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	_, err := f.service.Register(ctx, testUsername, testPassword)
	require.NoError(t, err)

	tests := []struct {
		name     string
		username string
		password string
		wantErr  error
	}{
		{"unknown user", "bob", testPassword, apperrors.ErrInvalidCredentials},
		{"wrong password", testUsername, "Wrong1!", apperrors.ErrInvalidCredentials},
		{"empty password", testUsername, "", apperrors.ErrInvalidCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			anon := f.anonymousSession(t)
			sess, err := f.service.Login(ctx, anon, tt.username, tt.password)
			require.ErrorIs(t, err, tt.wantErr)
			require.Nil(t, sess)

			kept, err := f.sessions.Get(ctx, anon.ID)
			require.NoError(t, err)
			require.False(t, kept.Authenticated())
		})
	}
}

func TestLogin_BlockedUser(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	_, err := f.users.Create(ctx, users.CreateUser{Username: "mallory", Password: testPassword, Blocked: true})
	require.NoError(t, err)

	_, err = f.service.Login(ctx, nil, "mallory", testPassword)
	require.ErrorIs(t, err, apperrors.ErrUserBlocked)

	_, err = f.service.Login(ctx, nil, "mallory", "Wrong1!")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestAuthorize(t *testing.T) {
	ctx := context.Background()

	login := func(t *testing.T, f *testFixture) (*users.User, *sessions.Session) {
		t.Helper()
		u, err := f.service.Register(ctx, testUsername, testPassword)
		require.NoError(t, err)
		sess, err := f.service.Login(ctx, nil, testUsername, testPassword)
		require.NoError(t, err)
		return u, sess
	}

	t.Run("active user", func(t *testing.T) {
		f := setupTestFixture(t)
		u, sess := login(t, f)

		got, err := f.service.Authorize(ctx, sess)
		require.NoError(t, err)
		require.Equal(t, u.ID, got.ID)
	})

	t.Run("anonymous session", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.service.Authorize(ctx, f.anonymousSession(t))
		require.ErrorIs(t, err, apperrors.ErrSessionNotFound)

		_, err = f.service.Authorize(ctx, nil)
		require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
	})

	t.Run("blocked user", func(t *testing.T) {
		f := setupTestFixture(t)
		u, sess := login(t, f)
		blocked := true
		_, err := f.users.Update(ctx, u.ID, users.UpdateUser{Blocked: &blocked})
		require.NoError(t, err)

		_, err = f.service.Authorize(ctx, sess)
		require.ErrorIs(t, err, apperrors.ErrUserBlocked)
		_, err = f.sessions.Get(ctx, sess.ID)
		require.ErrorIs(t, err, apperrors.ErrSessionNotFound, "the session is destroyed")
	})

	t.Run("deleted user", func(t *testing.T) {
		f := setupTestFixture(t)
		u, sess := login(t, f)
		require.NoError(t, f.users.Delete(ctx, u.ID))

		_, err := f.service.Authorize(ctx, sess)
		require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
		_, err = f.sessions.Get(ctx, sess.ID)
		require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
	})
}

func TestRegister_Validation(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.service.Register(context.Background(), "al", testPassword)
	require.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = f.service.Register(context.Background(), testUsername, "weak")
	require.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestErrorMessage(t *testing.T) {
	require.Empty(t, auth.ErrorMessage(nil))
	require.Equal(t, auth.InvalidCredentialsMsg, auth.ErrorMessage(apperrors.ErrInvalidCredentials))
	require.Equal(t, auth.DuplicateUsernameMsg, auth.ErrorMessage(apperrors.Wrapf(apperrors.ErrDuplicateUsername, "ctx")))
	require.Equal(t, auth.UnavailableMsg, auth.ErrorMessage(apperrors.Unavailable(context.DeadlineExceeded)))
	require.Equal(t, "username is required", auth.ErrorMessage(apperrors.Invalid("username", "username is required")))
	require.Equal(t, auth.UnexpectedMsg, auth.ErrorMessage(context.Canceled))
}
