package server

import (
	"net/http"
)

// IndexHandler sends signed in users to the user list
func (s *Server) IndexHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		redirectSuccess(w, r, RouteUsers)
	}
}
