package server

import (
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/jrsteele09/go-user-admin/sessions"
)

// setSessionCookie sends the signed session cookie; it lives exactly as long as the session
func (s *Server) setSessionCookie(w http.ResponseWriter, sess *sessions.Session) error {
	value, err := s.cookies.Encode(sess)
	if err != nil {
		return err
	}
	maxAge := int(sess.ExpiresAt.Sub(s.nowTime()).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessions.CookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
		Expires:  sess.ExpiresAt.UTC(),
	})
	return nil
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessions.CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// clientIP is the rate limit key: the first X-Forwarded-For hop behind a trusted proxy, otherwise the peer address
func (s *Server) clientIP(r *http.Request) string {
	if s.config.GetTrustProxy() {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// redirectSuccess helper for htmx-aware success redirects
func redirectSuccess(w http.ResponseWriter, r *http.Request, path string) {
	if isHTMXRequest(r) {
		w.Header().Set("HX-Redirect", path)
		w.WriteHeader(http.StatusNoContent) // 204 - no content, just redirect instruction
		return
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}

// redirectWithError helper for htmx-aware error redirects
func redirectWithError(w http.ResponseWriter, r *http.Request, path, errorMsg string) {
	redirectSuccess(w, r, path+"?error="+url.QueryEscape(errorMsg))
}

// maxEchoedUsername bounds what a failed form post carries back in the query
const maxEchoedUsername = 64

// redirectWithFormError is redirectWithError that also hands the submitted username back to the form
func redirectWithFormError(w http.ResponseWriter, r *http.Request, path, errorMsg, username string) {
	query := url.Values{"error": {errorMsg}}
	if username = strings.TrimSpace(username); username != "" && len(username) <= maxEchoedUsername {
		query.Set("username", username)
	}
	redirectSuccess(w, r, path+"?"+query.Encode())
}

// redirectWithMessage redirects with a ?success= flag the target page displays
func redirectWithMessage(w http.ResponseWriter, r *http.Request, path, msg string) {
	redirectSuccess(w, r, path+"?success="+url.QueryEscape(msg))
}

// isHTMXRequest checks if the request was initiated by HTMX
func isHTMXRequest(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}
