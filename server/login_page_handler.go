package server

import (
	"net/http"

	"github.com/jrsteele09/go-user-admin/auth"
	apperrors "github.com/jrsteele09/go-user-admin/internal/errors"
	"github.com/rs/zerolog/log"
)

// LoginPageHandler displays the login page (GET /login)
func (s *Server) LoginPageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		s.renderPage(w, r, http.StatusOK, pageLogin, PageData{
			Title:   "Log in",
			Error:   query.Get("error"),
			Success: query.Get("success"),
			Form:    UserForm{Username: query.Get("username")},
		})
	}
}

// LoginSubmissionHandler processes the login form submission
func (s *Server) LoginSubmissionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		username := r.PostFormValue("username")
		password := r.PostFormValue("password")

		sess, err := s.auth.Login(r.Context(), SessionFromContext(r.Context()), username, password)
		if err != nil {
			if apperrors.Is(err, apperrors.ErrStoreUnavailable) {
				log.Err(err).Msg("[LoginSubmissionHandler] store unavailable")
			} else {
				log.Info().Err(err).Str("username", username).Str("client", s.clientIP(r)).Msg("[LoginSubmissionHandler] login failed")
			}
			redirectWithFormError(w, r, RouteLogin, auth.ErrorMessage(err), username)
			return
		}

		if err := s.setSessionCookie(w, sess); err != nil {
			log.Err(err).Msg("[LoginSubmissionHandler] failed to encode session cookie")
			redirectWithError(w, r, RouteLogin, auth.UnexpectedMsg)
			return
		}
		log.Info().Str("username", sess.Username).Msg("[LoginSubmissionHandler] user logged in")
		redirectSuccess(w, r, RouteUsers)
	}
}

// LogoutHandler destroys the session and clears the cookie (GET /logout)
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.auth.Logout(r.Context(), SessionFromContext(r.Context())); err != nil {
			log.Err(err).Msg("[LogoutHandler] failed to destroy session")
		}
		clearSessionCookie(w)
		redirectSuccess(w, r, RouteLogin)
	}
}
