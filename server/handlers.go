package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const healthCheckTimeout = 2 * time.Second

type healthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

// HealthHandler reports liveness plus the state of each configured backing service (GET /healthz).
// Any failing component turns the response into a 503.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		if len(s.healthChecks) > 0 {
			resp.Components = make(map[string]string, len(s.healthChecks))
		}
		for name, check := range s.healthChecks {
			if err := check(ctx); err != nil {
				log.Warn().Err(err).Str("component", name).Msg("[HealthHandler] component unhealthy")
				resp.Components[name] = "unavailable"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Components[name] = "ok"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.Err(err).Msg("[HealthHandler] failed to encode response")
		}
	}
}
