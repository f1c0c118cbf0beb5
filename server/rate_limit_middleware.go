package server

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/jrsteele09/go-user-admin/auth"
	apperrors "github.com/jrsteele09/go-user-admin/internal/errors"
	"github.com/jrsteele09/go-user-admin/ratelimit"
	"github.com/rs/zerolog/log"
)

// RateLimitMiddleware counts every request against the client's key and answers 429 once the
// window's budget is spent. Denied requests never reach next.
func (s *Server) RateLimitMiddleware(limiter ratelimit.Limiter) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			key := s.clientIP(r)
			res, err := limiter.Check(r.Context(), key)
			if err != nil {
				log.Err(err).Str("client", key).Msg("[RateLimitMiddleware] limiter unavailable")
				http.Error(w, auth.UnavailableMsg, http.StatusServiceUnavailable)
				return
			}

			resetSeconds := strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds())))
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			w.Header().Set("X-RateLimit-Reset", resetSeconds)

			if !res.Allowed {
				log.Warn().
					Err(apperrors.ErrRateLimited).
					Str("client", key).
					Str("path", r.URL.Path).
					Msg("[RateLimitMiddleware] too many attempts")
				w.Header().Set("Retry-After", resetSeconds)
				http.Error(w, tooManyAttemptsMessage(s.config.GetLoginRateWindow()), http.StatusTooManyRequests)
				return
			}
			next(w, r)
		}
	}
}

func tooManyAttemptsMessage(window time.Duration) string {
	return fmt.Sprintf("Too many login attempts. Try again in %s.", humanDuration(window))
}

func humanDuration(d time.Duration) string {
	plural := func(n int64, unit string) string {
		if n == 1 {
			return "1 " + unit
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}
	if d >= time.Minute && d%time.Minute == 0 {
		return plural(int64(d/time.Minute), "minute")
	}
	return plural(int64(math.Ceil(d.Seconds())), "second")
}
