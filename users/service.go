package users

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/jrsteele09/go-user-admin/internal/errors"
	"github.com/jrsteele09/go-user-admin/internal/utils"
	"golang.org/x/crypto/bcrypt"
)

// CreateUser holds the fields accepted when a user is created
type CreateUser struct {
	Username string
	Password string
	Role     RoleType
	Blocked  bool
}

// UpdateUser is a partial update; nil fields are left untouched
type UpdateUser struct {
	Username *string
	Password *string
	Role     *RoleType
	Blocked  *bool
}

// Service implements user management on top of a Repo
type Service struct {
	repo     Repo
	hashCost int
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

// WithHashCost overrides the bcrypt cost (tests use bcrypt.MinCost)
func WithHashCost(cost int) ServiceOption {
	return func(s *Service) {
		s.hashCost = cost
	}
}

func NewService(repo Repo, options ...ServiceOption) (*Service, error) {
	if repo == nil {
		return nil, errors.New("[users NewService] repo is required")
	}
	s := &Service{
		repo:     repo,
		hashCost: bcrypt.DefaultCost,
		nowTime:  time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

func (s *Service) List(ctx context.Context) ([]*User, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, apperrors.Wrapf(err, "[users Service List] failed to list users")
	}
	return list, nil
}

func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	if id == "" {
		return nil, apperrors.Wrapf(apperrors.ErrNotFound, "[users Service Get] empty id")
	}
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.Wrapf(err, "[users Service Get] user %s", id)
	}
	return u, nil
}

// FindByUsername normalises username before the lookup
func (s *Service) FindByUsername(ctx context.Context, username string) (*User, error) {
	u, err := s.repo.GetByUsername(ctx, NormaliseUsername(username))
	if err != nil {
		return nil, apperrors.Wrapf(err, "[users Service FindByUsername] lookup failed")
	}
	return u, nil
}

func (s *Service) Create(ctx context.Context, input CreateUser) (*User, error) {
	username := NormaliseUsername(input.Username)
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := ValidatePasswordStrength(input.Password); err != nil {
		return nil, err
	}
	if input.Role == "" {
		input.Role = RoleUser
	}
	if err := ValidateRole(input.Role); err != nil {
		return nil, err
	}

	hash, err := HashPasswordWithCost(input.Password, s.hashCost)
	if err != nil {
		return nil, apperrors.Wrapf(err, "[users Service Create] failed to hash password")
	}

	now := s.nowTime().UTC()
	u := &User{
		Username:     username,
		PasswordHash: hash,
		Role:         input.Role,
		Blocked:      input.Blocked,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, apperrors.Wrapf(err, "[users Service Create] failed to store user %s", username)
	}
	return u, nil
}

func (s *Service) Update(ctx context.Context, id string, input UpdateUser) (*User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	u = u.Clone()

	if input.Username != nil {
		username := NormaliseUsername(*input.Username)
		if err := ValidateUsername(username); err != nil {
			return nil, err
		}
		u.Username = username
	}
	if input.Role != nil {
		if err := ValidateRole(*input.Role); err != nil {
			return nil, err
		}
		u.Role = *input.Role
	}
	u.Blocked = utils.ValueOr(input.Blocked, u.Blocked)
	if input.Password != nil {
		if err := ValidatePasswordStrength(*input.Password); err != nil {
			return nil, err
		}
		hash, err := HashPasswordWithCost(*input.Password, s.hashCost)
		if err != nil {
			return nil, apperrors.Wrapf(err, "[users Service Update] failed to hash password")
		}
		u.PasswordHash = hash
	}

	u.UpdatedAt = s.nowTime().UTC()
	if err := s.repo.Update(ctx, u); err != nil {
		return nil, apperrors.Wrapf(err, "[users Service Update] failed to store user %s", id)
	}
	return u, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return apperrors.Wrapf(apperrors.ErrNotFound, "[users Service Delete] empty id")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return apperrors.Wrapf(err, "[users Service Delete] user %s", id)
	}
	return nil
}

// EnsureAdmin creates an admin account named username unless a user with that name already exists.
// It reports whether a user was created.
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) (bool, error) {
	_, err := s.FindByUsername(ctx, username)
	if err == nil {
		return false, nil
	}
	if !apperrors.Is(err, apperrors.ErrNotFound) {
		return false, err
	}
	if _, err := s.Create(ctx, CreateUser{Username: username, Password: password, Role: RoleAdmin}); err != nil {
		if apperrors.Is(err, apperrors.ErrDuplicateUsername) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
