// Package sqlrepo implements users.Repo on a relational database through sqlx.
// The same queries serve PostgreSQL (pgx driver) and SQLite (sqlite3 driver);
// sqlx rebinds the named parameters for each.
package sqlrepo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	apperrors "github.com/jrsteele09/go-user-admin/internal/errors"
	"github.com/jrsteele09/go-user-admin/users"
	"github.com/mattn/go-sqlite3"
)

const pgUniqueViolation = "23505"

const (
	userColumns = `id, username, password_hash, role, blocked, created_at, updated_at`

	insertUserQuery = `INSERT INTO users (` + userColumns + `)
		VALUES (:id, :username, :password_hash, :role, :blocked, :created_at, :updated_at)`

	updateUserQuery = `UPDATE users
		SET username = :username, password_hash = :password_hash, role = :role, blocked = :blocked, updated_at = :updated_at
		WHERE id = :id`

	deleteUserQuery       = `DELETE FROM users WHERE id = ?`
	selectUserByIDQuery   = `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	selectUserByNameQuery = `SELECT ` + userColumns + ` FROM users WHERE username = ?`
	selectAllUsersQuery   = `SELECT ` + userColumns + ` FROM users ORDER BY created_at, username`
)

var _ users.Repo = (*Repo)(nil)

type Repo struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Create(ctx context.Context, user *users.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if _, err := r.db.NamedExecContext(ctx, insertUserQuery, user); err != nil {
		return mapError(err)
	}
	return nil
}

func (r *Repo) Update(ctx context.Context, user *users.User) error {
	res, err := r.db.NamedExecContext(ctx, updateUserQuery, user)
	if err != nil {
		return mapError(err)
	}
	return requireAffected(res)
}

func (r *Repo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(deleteUserQuery), id)
	if err != nil {
		return mapError(err)
	}
	return requireAffected(res)
}

func (r *Repo) GetByID(ctx context.Context, id string) (*users.User, error) {
	u := &users.User{}
	if err := r.db.GetContext(ctx, u, r.db.Rebind(selectUserByIDQuery), id); err != nil {
		return nil, mapError(err)
	}
	return u, nil
}

func (r *Repo) GetByUsername(ctx context.Context, username string) (*users.User, error) {
	u := &users.User{}
	if err := r.db.GetContext(ctx, u, r.db.Rebind(selectUserByNameQuery), username); err != nil {
		return nil, mapError(err)
	}
	return u, nil
}

func (r *Repo) List(ctx context.Context) ([]*users.User, error) {
	list := make([]*users.User, 0)
	if err := r.db.SelectContext(ctx, &list, selectAllUsersQuery); err != nil {
		return nil, mapError(err)
	}
	return list, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.Unavailable(err)
	}
	if n == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// mapError translates driver errors into the users.Repo error contract
func mapError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return apperrors.ErrDuplicateUsername
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) && liteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return apperrors.ErrDuplicateUsername
	}

	return apperrors.Unavailable(err)
}
