package users

import "context"

// Repo is the credential store. Implementations must enforce username uniqueness
// (ErrDuplicateUsername), return ErrNotFound for unknown ids or usernames and wrap
// backend failures with ErrStoreUnavailable.
type Repo interface {
	Create(ctx context.Context, user *User) error
	Update(ctx context.Context, user *User) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	// List returns every user ordered by creation time, then username
	List(ctx context.Context) ([]*User, error)
}
