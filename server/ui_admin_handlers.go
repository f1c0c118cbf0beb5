package server

import (
	"net/http"

	"github.com/jrsteele09/go-user-admin/auth"
	apperrors "github.com/jrsteele09/go-user-admin/internal/errors"
	"github.com/jrsteele09/go-user-admin/internal/utils"
	"github.com/jrsteele09/go-user-admin/users"
	"github.com/rs/zerolog/log"
)

const (
	userCreatedMsg = "User created"
	userUpdatedMsg = "User updated"
	userDeletedMsg = "User deleted"
	selfDeletedMsg = "Your account was deleted"
)

var roleOptions = []users.RoleType{users.RoleUser, users.RoleAdmin}

// pageError answers a page load that failed; store outages are 503, anything else 500
func pageError(w http.ResponseWriter, r *http.Request, handler string, err error) {
	log.Err(err).Str("path", r.URL.Path).Msg("[" + handler + "] failed")
	if apperrors.Is(err, apperrors.ErrStoreUnavailable) {
		http.Error(w, auth.UnavailableMsg, http.StatusServiceUnavailable)
		return
	}
	http.Error(w, auth.UnexpectedMsg, http.StatusInternalServerError)
}

// UsersListHandler lists all users (GET /users)
func (s *Server) UsersListHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := s.users.List(r.Context())
		if err != nil {
			pageError(w, r, "UsersListHandler", err)
			return
		}
		query := r.URL.Query()
		s.renderPage(w, r, http.StatusOK, pageUsers, PageData{
			Title:   "Users",
			Users:   list,
			Error:   query.Get("error"),
			Success: query.Get("success"),
		})
	}
}

// NewUserFormHandler renders the create form (GET /users/new)
func (s *Server) NewUserFormHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		s.renderPage(w, r, http.StatusOK, pageUserForm, PageData{
			Title:  "New user",
			Roles:  roleOptions,
			Action: RouteUsers,
			Form:   UserForm{Username: query.Get("username"), Role: users.RoleUser},
			Error:  query.Get("error"),
		})
	}
}

// CreateUserHandler creates a user from the new-user form (POST /users)
func (s *Server) CreateUserHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		u, err := s.users.Create(r.Context(), users.CreateUser{
			Username: r.PostFormValue("username"),
			Password: r.PostFormValue("password"),
			Role:     users.RoleType(r.PostFormValue("role")),
			Blocked:  checkboxValue(r, "blocked"),
		})
		if err != nil {
			log.Info().Err(err).Msg("[CreateUserHandler] create rejected")
			redirectWithFormError(w, r, RouteUsersNew, auth.ErrorMessage(err), r.PostFormValue("username"))
			return
		}
		log.Info().Str("username", u.Username).Str("by", SessionFromContext(r.Context()).Username).Msg("[CreateUserHandler] user created")
		redirectWithMessage(w, r, RouteUsers, userCreatedMsg)
	}
}

// DeleteUserHandler removes a user (POST /users/delete/{id})
func (s *Server) DeleteUserHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if err := s.users.Delete(r.Context(), id); err != nil {
			log.Info().Err(err).Str("id", id).Msg("[DeleteUserHandler] delete failed")
			redirectWithError(w, r, RouteUsers, auth.ErrorMessage(err))
			return
		}

		sess := SessionFromContext(r.Context())
		log.Info().Str("id", id).Str("by", sess.Username).Msg("[DeleteUserHandler] user deleted")
		if id == sess.UserID {
			if err := s.auth.Logout(r.Context(), sess); err != nil {
				log.Err(err).Msg("[DeleteUserHandler] failed to end own session")
			}
			clearSessionCookie(w)
			redirectWithMessage(w, r, RouteLogin, selfDeletedMsg)
			return
		}
		redirectWithMessage(w, r, RouteUsers, userDeletedMsg)
	}
}

// EditUserFormHandler renders the edit form (GET /users/edit/{id})
func (s *Server) EditUserFormHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := s.users.Get(r.Context(), r.PathValue("id"))
		if apperrors.Is(err, apperrors.ErrNotFound) {
			redirectWithError(w, r, RouteUsers, auth.UserNotFoundMsg)
			return
		}
		if err != nil {
			pageError(w, r, "EditUserFormHandler", err)
			return
		}
		s.renderPage(w, r, http.StatusOK, pageUserForm, PageData{
			Title:  "Edit " + u.Username,
			User:   u,
			Roles:  roleOptions,
			Action: usersUpdatePrefix + u.ID,
			Form:   UserForm{Username: u.Username, Role: u.Role, Blocked: u.Blocked},
			Error:  r.URL.Query().Get("error"),
		})
	}
}

// UpdateUserHandler applies the edit form (POST /users/update/{id}).
// Empty username, password or role fields leave the stored value unchanged.
func (s *Server) UpdateUserHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		id := r.PathValue("id")

		input := users.UpdateUser{Blocked: utils.Ptr(checkboxValue(r, "blocked"))}
		if v := r.PostFormValue("username"); v != "" {
			input.Username = utils.Ptr(v)
		}
		if v := r.PostFormValue("password"); v != "" {
			input.Password = utils.Ptr(v)
		}
		if v := r.PostFormValue("role"); v != "" {
			input.Role = utils.Ptr(users.RoleType(v))
		}

		u, err := s.users.Update(r.Context(), id, input)
		if err != nil {
			log.Info().Err(err).Str("id", id).Msg("[UpdateUserHandler] update rejected")
			if apperrors.Is(err, apperrors.ErrNotFound) {
				redirectWithError(w, r, RouteUsers, auth.ErrorMessage(err))
				return
			}
			redirectWithError(w, r, usersEditPrefix+id, auth.ErrorMessage(err))
			return
		}

		sess := SessionFromContext(r.Context())
		if u.ID == sess.UserID && u.Username != sess.Username {
			renamed := sess.Clone()
			renamed.Username = u.Username
			if err := s.sessions.Set(r.Context(), renamed); err != nil {
				log.Err(err).Msg("[UpdateUserHandler] failed to refresh session username")
			}
		}
		log.Info().Str("id", id).Str("by", sess.Username).Msg("[UpdateUserHandler] user updated")
		redirectWithMessage(w, r, RouteUsers, userUpdatedMsg)
	}
}

func checkboxValue(r *http.Request, name string) bool {
	switch r.PostFormValue(name) {
	case "on", "true", "1":
		return true
	}
	return false
}
