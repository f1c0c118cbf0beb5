// Package storage opens the credential store selected by DB_CONNECTION_STRING
// and runs the embedded schema migrations against SQL backends.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	apperrors "github.com/jrsteele09/go-user-admin/internal/errors"
	"github.com/jrsteele09/go-user-admin/internal/storage/migrations"
	"github.com/jrsteele09/go-user-admin/users"
	fakeuserrepo "github.com/jrsteele09/go-user-admin/users/repofake"
	"github.com/jrsteele09/go-user-admin/users/sqlrepo"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
)

const pingTimeout = 5 * time.Second

// Store is an opened credential store
type Store struct {
	Users   users.Repo
	Backend string
	db      *sqlx.DB
	schema  *migrator
}

// Close releases the database handle, if any
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks the backend is reachable and its schema is migrated
func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	if err := s.db.PingContext(ctx); err != nil {
		return err
	}
	return s.schema.ensure(ctx)
}

// migrator runs the migrations once they first succeed. A failed attempt is retried on the next call.
type migrator struct {
	mu      sync.Mutex
	done    bool
	db      *sql.DB
	dialect string
}

func (m *migrator) ensure(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done {
		return nil
	}
	if err := runMigrations(ctx, m.db, m.dialect); err != nil {
		return apperrors.Unavailable(fmt.Errorf("migrations failed: %w", err))
	}
	m.done = true
	log.Info().Str("dialect", m.dialect).Msg("User store schema is up to date")
	return nil
}

// migratingRepo makes sure the schema exists before delegating to the SQL repo
type migratingRepo struct {
	schema *migrator
	next   users.Repo
}

func (r migratingRepo) Create(ctx context.Context, user *users.User) error {
	if err := r.schema.ensure(ctx); err != nil {
		return err
	}
	return r.next.Create(ctx, user)
}

func (r migratingRepo) Update(ctx context.Context, user *users.User) error {
	if err := r.schema.ensure(ctx); err != nil {
		return err
	}
	return r.next.Update(ctx, user)
}

func (r migratingRepo) Delete(ctx context.Context, id string) error {
	if err := r.schema.ensure(ctx); err != nil {
		return err
	}
	return r.next.Delete(ctx, id)
}

func (r migratingRepo) GetByID(ctx context.Context, id string) (*users.User, error) {
	if err := r.schema.ensure(ctx); err != nil {
		return nil, err
	}
	return r.next.GetByID(ctx, id)
}

func (r migratingRepo) GetByUsername(ctx context.Context, username string) (*users.User, error) {
	if err := r.schema.ensure(ctx); err != nil {
		return nil, err
	}
	return r.next.GetByUsername(ctx, username)
}

func (r migratingRepo) List(ctx context.Context) ([]*users.User, error) {
	if err := r.schema.ensure(ctx); err != nil {
		return nil, err
	}
	return r.next.List(ctx)
}

type target struct {
	driver  string
	dialect string
	dsn     string
}

// Open selects a backend from databaseURL. An unreachable database is logged and the store is
// still returned so that the process can serve; requests then fail with ErrStoreUnavailable
// until the database comes up, at which point the migrations run.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	t, err := parseURL(databaseURL)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return &Store{Users: fakeuserrepo.NewFakeUserRepo(), Backend: "memory"}, nil
	}

	db, err := sqlx.Open(t.driver, t.dsn)
	if err != nil {
		return nil, fmt.Errorf("[storage Open] failed to open %s: %w", t.driver, err)
	}
	if t.dsn == ":memory:" {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}

	schema := &migrator{db: db.DB, dialect: t.dialect}
	s := &Store{
		Users:   migratingRepo{schema: schema, next: sqlrepo.New(db)},
		Backend: t.driver,
		db:      db,
		schema:  schema,
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.Error().Err(err).Str("driver", t.driver).Msg("[storage Open] database unreachable, migrations deferred")
		return s, nil
	}

	if err := schema.ensure(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("[storage Open] %w", err)
	}
	log.Info().Str("driver", t.driver).Msg("Connected to user store")
	return s, nil
}

func parseURL(databaseURL string) (*target, error) {
	switch {
	case databaseURL == "" || databaseURL == "memory://" || databaseURL == "memory":
		return nil, nil
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return &target{driver: "pgx", dialect: "postgres", dsn: databaseURL}, nil
	case strings.HasPrefix(databaseURL, "sqlite://"):
		return &target{driver: "sqlite3", dialect: "sqlite3", dsn: strings.TrimPrefix(databaseURL, "sqlite://")}, nil
	case strings.HasPrefix(databaseURL, "sqlite:"):
		return &target{driver: "sqlite3", dialect: "sqlite3", dsn: strings.TrimPrefix(databaseURL, "sqlite:")}, nil
	}
	return nil, fmt.Errorf("[storage parseURL] unsupported database url scheme in %q", redact(databaseURL))
}

// redact drops everything after the scheme so credentials never reach the logs
func redact(databaseURL string) string {
	if i := strings.Index(databaseURL, "://"); i >= 0 {
		return databaseURL[:i+3] + "..."
	}
	return "..."
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

func runMigrations(ctx context.Context, db *sql.DB, dialect string) error {
	goose.SetBaseFS(migrations.Migrations)
	goose.SetLogger(gooseLogger{})
	if err := goose.SetDialect(dialect); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, ".")
}

// gooseLogger routes goose output through zerolog
type gooseLogger struct{}

func (gooseLogger) Printf(format string, v ...interface{}) {
	log.Debug().Msgf(strings.TrimSpace(format), v...)
}

func (gooseLogger) Fatalf(format string, v ...interface{}) {
	log.Fatal().Msgf(strings.TrimSpace(format), v...)
}
