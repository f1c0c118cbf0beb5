package sessions

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	apperrors "github.com/jrsteele09/go-user-admin/internal/errors"
)

// CookieName is the session cookie
const CookieName = "sid"

// CookieCodec signs session IDs into cookie values so that a forged or tampered
// cookie is rejected before the store is consulted.
type CookieCodec struct {
	secret  []byte
	nowTime func() time.Time
}

func NewCookieCodec(secret []byte) (*CookieCodec, error) {
	if len(secret) == 0 {
		return nil, apperrors.ErrMissingSecret
	}
	return &CookieCodec{secret: secret, nowTime: time.Now}, nil
}

// WithClock replaces the clock used to validate expiry (tests)
func (c *CookieCodec) WithClock(nowTime func() time.Time) *CookieCodec {
	c.nowTime = nowTime
	return c
}

// Encode returns a signed HS256 token carrying the session ID and expiry
func (c *CookieCodec) Encode(s *Session) (string, error) {
	claims := jwt.RegisteredClaims{
		ID:        s.ID,
		IssuedAt:  jwt.NewNumericDate(s.CreatedAt),
		ExpiresAt: jwt.NewNumericDate(s.ExpiresAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("[sessions CookieCodec Encode] failed to sign cookie: %w", err)
	}
	return signed, nil
}

// Decode verifies the signature and expiry and returns the session ID
func (c *CookieCodec) Decode(value string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(value, claims, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(c.nowTime), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", apperrors.ErrSessionExpired
		}
		return "", apperrors.Wrapf(apperrors.ErrInvalidCookie, "%v", err)
	}
	if claims.ID == "" {
		return "", apperrors.ErrInvalidCookie
	}
	return claims.ID, nil
}
