// Package csrf issues and checks the per-session tokens that state-changing requests must echo back.
package csrf

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
)

const (
	// FieldName is the hidden form field the templates render the token into
	FieldName = "_csrf"
	// HeaderName carries the token for htmx / fetch requests
	HeaderName = "X-CSRF-Token"

	tokenBytes = 32
)

// NewToken returns an unguessable base64url token
func NewToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("[csrf NewToken] failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Valid compares in constant time. An empty expected token never validates.
func Valid(expected, got string) bool {
	if expected == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}

// SafeMethod reports whether method is idempotent and exempt from the check
func SafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}

// FromRequest reads the submitted token, preferring the header over the form field
func FromRequest(r *http.Request) string {
	if token := r.Header.Get(HeaderName); token != "" {
		return token
	}
	return r.PostFormValue(FieldName)
}
