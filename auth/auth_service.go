package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/go-user-admin/internal/errors"
	"github.com/jrsteele09/go-user-admin/sessions"
	"github.com/jrsteele09/go-user-admin/users"
	"github.com/rs/zerolog/log"
)

const DefaultSessionTTL = 30 * time.Minute

var (
	dummyHashOnce sync.Once
	dummyHash     string
)

// Compared against when the username is unknown so both failure paths cost a bcrypt check.
func timingHash() string {
	dummyHashOnce.Do(func() {
		h, err := users.HashPassword("not-a-real-password-Aa1")
		if err != nil {
			log.Err(err).Msg("[auth] failed to build timing hash")
			return
		}
		dummyHash = h
	})
	return dummyHash
}

// Service authenticates users against the user service and binds them to sessions.
type Service struct {
	users    *users.Service
	sessions sessions.Store
	ttl      time.Duration
	nowTime  func() time.Time
}

// ServiceOption defines a function type to modify the Service instance.
type ServiceOption func(*Service)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

// WithSessionTTL sets the lifetime of sessions created at login
func WithSessionTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func NewService(userService *users.Service, sessionStore sessions.Store, options ...ServiceOption) (*Service, error) {
	if userService == nil {
		return nil, errors.New("[auth NewService] user service is required")
	}
	if sessionStore == nil {
		return nil, errors.New("[auth NewService] session store is required")
	}

	s := &Service{
		users:    userService,
		sessions: sessionStore,
		ttl:      DefaultSessionTTL,
		nowTime:  time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Login checks the credentials and, on success, replaces current with a new session bound to the user.
// current may be nil. The returned session has a fresh ID and CSRF token.
func (s *Service) Login(ctx context.Context, current *sessions.Session, username, password string) (*sessions.Session, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			_ = users.CheckPasswordHash(password, timingHash())
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, apperrors.Wrapf(err, "[auth Service Login] user lookup")
	}
	if !user.CheckPassword(password) {
		return nil, apperrors.ErrInvalidCredentials
	}
	if user.Blocked {
		return nil, apperrors.ErrUserBlocked
	}

	if current != nil {
		if err := s.sessions.Destroy(ctx, current.ID); err != nil {
			return nil, apperrors.Wrapf(err, "[auth Service Login] destroy anonymous session")
		}
	}

	next, err := sessions.New(s.nowTime(), s.ttl)
	if err != nil {
		return nil, apperrors.Wrapf(err, "[auth Service Login] new session")
	}
	next.UserID = user.ID
	next.Username = user.Username
	if err := s.sessions.Set(ctx, next); err != nil {
		return nil, apperrors.Wrapf(err, "[auth Service Login] store session")
	}
	return next, nil
}

// Logout destroys the session. A nil session is a no-op.
func (s *Service) Logout(ctx context.Context, current *sessions.Session) error {
	if current == nil {
		return nil
	}
	if err := s.sessions.Destroy(ctx, current.ID); err != nil {
		return apperrors.Wrapf(err, "[auth Service Logout] destroy session %s", current.Username)
	}
	return nil
}

// Authorize reloads the user an authenticated session is bound to. Sessions whose user has since
// been deleted or blocked are destroyed and fail with ErrSessionNotFound or ErrUserBlocked.
func (s *Service) Authorize(ctx context.Context, current *sessions.Session) (*users.User, error) {
	if !current.Authenticated() {
		return nil, apperrors.ErrSessionNotFound
	}
	user, err := s.users.Get(ctx, current.UserID)
	if err != nil && !apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.Wrapf(err, "[auth Service Authorize] user lookup")
	}
	if err == nil && !user.Blocked {
		return user, nil
	}

	if destroyErr := s.sessions.Destroy(ctx, current.ID); destroyErr != nil {
		log.Err(destroyErr).Str("user_id", current.UserID).Msg("[auth Service Authorize] failed to destroy revoked session")
	}
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrSessionNotFound, "[auth Service Authorize] user %s no longer exists", current.UserID)
	}
	return nil, apperrors.Wrapf(apperrors.ErrUserBlocked, "[auth Service Authorize] user %s", user.Username)
}

// Register creates a user with the user role.
func (s *Service) Register(ctx context.Context, username, password string) (*users.User, error) {
	u, err := s.users.Create(ctx, users.CreateUser{
		Username: username,
		Password: password,
		Role:     users.RoleUser,
	})
	if err != nil {
		return nil, apperrors.Wrapf(err, "[auth Service Register]")
	}
	return u, nil
}
