package config

import "time"

const (
	sessionSecretVar   = "SESSION_SECRET"
	sessionTTLVar      = "SESSION_TTL"
	loginRateLimitVar  = "LOGIN_RATE_LIMIT"
	loginRateWindowVar = "LOGIN_RATE_WINDOW"
	trustProxyVar      = "TRUST_PROXY"

	minSessionSecretLength = 32
)

type SecurityConfig interface {
	GetSessionSecret() []byte
	GetSessionTTL() time.Duration
	GetLoginRateLimit() int
	GetLoginRateWindow() time.Duration
	GetTrustProxy() bool
}

type Security struct{}

var _ SecurityConfig = Security{}

// GetSessionSecret has no default; Validate fails when it is missing
func (Security) GetSessionSecret() []byte {
	return []byte(GetEnv(sessionSecretVar, ""))
}

func (Security) GetSessionTTL() time.Duration {
	return GetEnvDuration(sessionTTLVar, 30*time.Minute)
}

func (Security) GetLoginRateLimit() int {
	return GetEnvInt(loginRateLimitVar, 5)
}

func (Security) GetLoginRateWindow() time.Duration {
	return GetEnvDuration(loginRateWindowVar, time.Minute)
}

// GetTrustProxy makes the login rate limiter key on X-Forwarded-For instead of the peer address
func (Security) GetTrustProxy() bool {
	return GetEnvBool(trustProxyVar, false)
}
