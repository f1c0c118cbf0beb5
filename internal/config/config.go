package config

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	apperrors "github.com/jrsteele09/go-user-admin/internal/errors"
	"github.com/rs/zerolog/log"
)

type Config interface {
	EnvConfig
	StoreConfig
	SecurityConfig
	Validate() error
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetAdminUsername() string
	GetAdminPassword() string
}

type StoreConfig interface {
	GetDatabaseURL() string
	GetRedisURL() string
}

type mainConfig struct {
	EnvVars
	Store
	Security
}

// New loads an optional .env file into the process environment and returns a Config reading from it.
// Variables already set in the environment win over the file.
func New(envFiles ...string) Config {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg("[config New] failed to load .env file")
	}
	return mainConfig{}
}

// Validate rejects configurations the server must not start with.
func (c mainConfig) Validate() error {
	secret := c.GetSessionSecret()
	if len(secret) == 0 {
		return apperrors.Wrapf(apperrors.ErrMissingSecret, "[config Validate] %s must be set", sessionSecretVar)
	}
	if len(secret) < minSessionSecretLength {
		return apperrors.Wrapf(apperrors.ErrWeakSecret, "[config Validate] %s must be at least %d bytes", sessionSecretVar, minSessionSecretLength)
	}
	if c.GetLoginRateLimit() < 1 {
		return apperrors.Invalid(loginRateLimitVar, "must be a positive integer")
	}
	if c.GetLoginRateWindow() <= 0 {
		return apperrors.Invalid(loginRateWindowVar, "must be a positive duration")
	}
	if c.GetSessionTTL() <= 0 {
		return apperrors.Invalid(sessionTTLVar, "must be a positive duration")
	}
	return nil
}
