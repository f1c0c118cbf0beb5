package sessions

import (
	"context"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/go-user-admin/internal/errors"
	"github.com/rs/zerolog/log"
)

var _ Store = (*InMemoryStore)(nil)

// InMemoryStore is an in-process session store for single-instance deployments
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	nowTime  func() time.Time
}

// NewInMemoryStore creates a new in-memory session store
func NewInMemoryStore() *InMemoryStore {
	return NewInMemoryStoreWithClock(time.Now)
}

func NewInMemoryStoreWithClock(nowTime func() time.Time) *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]*Session),
		nowTime:  nowTime,
	}
}

// Get retrieves a session; expired sessions are removed on the way
func (r *InMemoryStore) Get(_ context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, apperrors.ErrSessionNotFound
	}

	r.mu.RLock()
	session, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, apperrors.ErrSessionNotFound
	}

	if session.Expired(r.nowTime()) {
		r.mu.Lock()
		// re-check, a concurrent Set may have replaced it
		if current, ok := r.sessions[id]; ok && current.Expired(r.nowTime()) {
			delete(r.sessions, id)
		}
		r.mu.Unlock()
		return nil, apperrors.ErrSessionNotFound
	}
	return session.Clone(), nil
}

// Set creates or updates a session
func (r *InMemoryStore) Set(_ context.Context, session *Session) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("[sessions InMemoryStore Set] session id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// store a copy to avoid external modifications
	r.sessions[session.ID] = session.Clone()
	return nil
}

// Destroy removes a session
func (r *InMemoryStore) Destroy(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, id)
	return nil
}

// DeleteExpired removes every session that expired before now and returns how many were dropped
func (r *InMemoryStore) DeleteExpired() int {
	now := r.nowTime()

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, s := range r.sessions {
		if s.Expired(now) {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}

// Len is the number of stored sessions, expired ones included
func (r *InMemoryStore) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// RunJanitor calls DeleteExpired every interval until ctx is done
func (r *InMemoryStore) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.DeleteExpired(); n > 0 {
				log.Debug().Int("removed", n).Msg("expired sessions removed")
			}
		}
	}
}
