package sessions

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/jrsteele09/go-user-admin/csrf"
)

const idBytes = 32

// Session is the server-side state behind the sid cookie.
// A session is anonymous until UserID is set by a successful login.
type Session struct {
	ID        string    `json:"id"`                 // Opaque random identifier, rotated at login
	UserID    string    `json:"user_id,omitempty"`  // Authenticated user, empty for anonymous sessions
	Username  string    `json:"username,omitempty"` // Display name of the authenticated user
	CSRFToken string    `json:"csrf_token"`         // Token every state-changing request must echo back
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store is the session backend. Implementations serialise access per session ID.
type Store interface {
	// Get returns ErrSessionNotFound for unknown or expired sessions
	Get(ctx context.Context, id string) (*Session, error)
	// Set stores the session until its ExpiresAt
	Set(ctx context.Context, session *Session) error
	// Destroy removes the session; unknown IDs are not an error
	Destroy(ctx context.Context, id string) error
}

// New creates an anonymous session with a fresh ID and CSRF token
func New(now time.Time, ttl time.Duration) (*Session, error) {
	id, err := NewID()
	if err != nil {
		return nil, err
	}
	token, err := csrf.NewToken()
	if err != nil {
		return nil, err
	}
	return &Session{
		ID:        id,
		CSRFToken: token,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}, nil
}

// NewID returns a random session identifier
func NewID() (string, error) {
	b := make([]byte, idBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("[sessions NewID] failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Authenticated is the access guard predicate
func (s *Session) Authenticated() bool {
	return s != nil && s.UserID != ""
}

func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Clone returns a copy safe to hand out of a store
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
