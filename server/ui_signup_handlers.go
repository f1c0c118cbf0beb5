package server

import (
	"net/http"

	"github.com/jrsteele09/go-user-admin/auth"
	"github.com/rs/zerolog/log"
)

const registeredMsg = "Account created, you can now log in"

// RegisterPageHandler displays the registration form (GET /register)
func (s *Server) RegisterPageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		s.renderPage(w, r, http.StatusOK, pageRegister, PageData{
			Title: "Register",
			Error: query.Get("error"),
			Form:  UserForm{Username: query.Get("username")},
		})
	}
}

// RegisterSubmissionHandler creates a user account from the registration form (POST /register)
func (s *Server) RegisterSubmissionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}

		username := r.PostFormValue("username")
		u, err := s.auth.Register(r.Context(), username, r.PostFormValue("password"))
		if err != nil {
			log.Info().Err(err).Msg("[RegisterSubmissionHandler] registration rejected")
			redirectWithFormError(w, r, RouteRegister, auth.ErrorMessage(err), username)
			return
		}

		log.Info().Str("username", u.Username).Msg("[RegisterSubmissionHandler] user registered")
		redirectWithMessage(w, r, RouteLogin, registeredMsg)
	}
}
