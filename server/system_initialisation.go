package server

import (
	"context"

	apperrors "github.com/jrsteele09/go-user-admin/internal/errors"
	"github.com/rs/zerolog/log"
)

// InitialiseSystem creates the bootstrap admin account named by ADMIN_USERNAME / ADMIN_PASSWORD.
// It is idempotent. An unreachable store is logged and skipped so the server can still start.
func (s *Server) InitialiseSystem(ctx context.Context) error {
	username := s.config.GetAdminUsername()
	password := s.config.GetAdminPassword()
	if username == "" || password == "" {
		return nil
	}

	created, err := s.users.EnsureAdmin(ctx, username, password)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrStoreUnavailable) {
			log.Warn().Err(err).Msg("[Server InitialiseSystem] store unavailable, skipping admin bootstrap")
			return nil
		}
		return apperrors.Wrapf(err, "[Server InitialiseSystem] failed to bootstrap admin %s", username)
	}

	if created {
		log.Info().Str("username", username).Msg("👤 Admin account created")
	}
	return nil
}
