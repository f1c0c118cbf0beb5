package server

import (
	"context"
	"net/http"

	"github.com/jrsteele09/go-user-admin/auth"
	"github.com/jrsteele09/go-user-admin/csrf"
	apperrors "github.com/jrsteele09/go-user-admin/internal/errors"
	"github.com/jrsteele09/go-user-admin/sessions"
	"github.com/rs/zerolog/log"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeySession stores the *sessions.Session attached to the request
	ContextKeySession ContextKey = "session"
	// ContextKeyCSRFToken stores the token views embed in their forms
	ContextKeyCSRFToken ContextKey = "csrf_token"
	// ContextKeyUserID stores the authenticated user ID
	ContextKeyUserID ContextKey = "user_id"
)

// SessionFromContext returns the session attached by SessionMiddleware, or nil
func SessionFromContext(ctx context.Context) *sessions.Session {
	sess, _ := ctx.Value(ContextKeySession).(*sessions.Session)
	return sess
}

// CSRFTokenFromContext returns the token exposed by CSRFTokenMiddleware
func CSRFTokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(ContextKeyCSRFToken).(string)
	return token
}

// SessionMiddleware attaches the session named by the sid cookie. Requests without a valid
// cookie get a new anonymous session which is stored and sent back straight away.
func (s *Server) SessionMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.loadSession(r)
		if err != nil {
			if !apperrors.Is(err, apperrors.ErrSessionNotFound) {
				log.Err(err).Str("path", r.URL.Path).Msg("[SessionMiddleware] failed to load session")
				http.Error(w, auth.UnavailableMsg, http.StatusServiceUnavailable)
				return
			}

			sess, err = sessions.New(s.nowTime(), s.config.GetSessionTTL())
			if err == nil {
				err = s.sessions.Set(r.Context(), sess)
			}
			if err != nil {
				log.Err(err).Str("path", r.URL.Path).Msg("[SessionMiddleware] failed to start session")
				http.Error(w, auth.UnavailableMsg, http.StatusServiceUnavailable)
				return
			}
			if err := s.setSessionCookie(w, sess); err != nil {
				log.Err(err).Msg("[SessionMiddleware] failed to encode session cookie")
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
		}

		ctx := context.WithValue(r.Context(), ContextKeySession, sess)
		next(w, r.WithContext(ctx))
	}
}

// loadSession returns ErrSessionNotFound for anything a new session should replace
func (s *Server) loadSession(r *http.Request) (*sessions.Session, error) {
	cookie, err := r.Cookie(sessions.CookieName)
	if err != nil || cookie.Value == "" {
		return nil, apperrors.ErrSessionNotFound
	}
	id, err := s.cookies.Decode(cookie.Value)
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrSessionNotFound, "%v", err)
	}
	sess, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if sess.Expired(s.nowTime()) {
		_ = s.sessions.Destroy(r.Context(), sess.ID)
		return nil, apperrors.ErrSessionNotFound
	}
	return sess, nil
}

// CSRFMiddleware rejects state-changing requests that do not echo the session's token
func (s *Server) CSRFMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if csrf.SafeMethod(r.Method) {
			next(w, r)
			return
		}
		sess := SessionFromContext(r.Context())
		if sess == nil || !csrf.Valid(sess.CSRFToken, csrf.FromRequest(r)) {
			log.Warn().
				Err(apperrors.ErrCSRFMismatch).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Msg("[CSRFMiddleware] rejected request")
			http.Error(w, "Invalid or missing CSRF token", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

// CSRFTokenMiddleware exposes the session's token to the views
func (s *Server) CSRFTokenMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := SessionFromContext(r.Context())
		if sess == nil {
			next(w, r)
			return
		}
		ctx := context.WithValue(r.Context(), ContextKeyCSRFToken, sess.CSRFToken)
		next(w, r.WithContext(ctx))
	}
}

// RequireSession is the access guard for user management routes. The session's user is
// reloaded on every request so deleting or blocking an account ends its sessions.
func (s *Server) RequireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := SessionFromContext(r.Context())
		if !sess.Authenticated() {
			redirectWithError(w, r, RouteLogin, auth.NotLoggedInMsg)
			return
		}

		user, err := s.auth.Authorize(r.Context(), sess)
		switch {
		case err == nil:
		case apperrors.Is(err, apperrors.ErrUserBlocked):
			log.Info().Err(err).Str("path", r.URL.Path).Msg("[RequireSession] session revoked")
			clearSessionCookie(w)
			redirectWithError(w, r, RouteLogin, auth.UserBlockedMsg)
			return
		case apperrors.Is(err, apperrors.ErrSessionNotFound):
			log.Info().Err(err).Str("path", r.URL.Path).Msg("[RequireSession] session revoked")
			clearSessionCookie(w)
			redirectWithError(w, r, RouteLogin, auth.AccountRemovedMsg)
			return
		case csrf.SafeMethod(r.Method):
			pageError(w, r, "RequireSession", err)
			return
		default:
			log.Err(err).Str("path", r.URL.Path).Msg("[RequireSession] failed to load session user")
			redirectWithError(w, r, RouteUsers, auth.ErrorMessage(err))
			return
		}

		ctx := context.WithValue(r.Context(), ContextKeyUserID, user.ID)
		next(w, r.WithContext(ctx))
	}
}
