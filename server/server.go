package server

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/go-user-admin/auth"
	"github.com/jrsteele09/go-user-admin/internal/config"
	"github.com/jrsteele09/go-user-admin/ratelimit"
	"github.com/jrsteele09/go-user-admin/sessions"
	"github.com/jrsteele09/go-user-admin/users"
	"github.com/rs/zerolog/log"
)

// HealthCheck reports whether a backing service is reachable
type HealthCheck func(ctx context.Context) error

// Dependencies holds the stores and services the server is wired to
type Dependencies struct {
	Users        *users.Service         // User management on top of the credential store
	Sessions     sessions.Store         // Session backend
	LoginLimiter ratelimit.Limiter      // Brute force protection for POST /login
	HealthChecks map[string]HealthCheck // Reported by /healthz, keyed by component name
}

type Server struct {
	env          string // Environment (e.g., "DEV", "PROD")
	mux          *http.ServeMux
	routes       []string
	config       config.Config
	users        *users.Service
	auth         *auth.Service
	sessions     sessions.Store
	cookies      *sessions.CookieCodec
	loginLimiter ratelimit.Limiter
	healthChecks map[string]HealthCheck
	pages        map[string]*template.Template
	nowTime      func() time.Time
}

// ServerOption defines a function type to modify the Server instance.
type ServerOption func(*Server)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServerOption {
	return func(s *Server) {
		s.nowTime = nowFunc
	}
}

func New(cfg config.Config, deps Dependencies, options ...ServerOption) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("[Server New] config is required")
	}
	if deps.Users == nil || deps.Sessions == nil || deps.LoginLimiter == nil {
		return nil, errors.New("[Server New] users, sessions and login limiter are required")
	}

	s := &Server{
		env:          cfg.GetEnv(),
		mux:          http.NewServeMux(),
		config:       cfg,
		users:        deps.Users,
		sessions:     deps.Sessions,
		loginLimiter: deps.LoginLimiter,
		healthChecks: deps.HealthChecks,
		nowTime:      time.Now,
	}
	for _, opt := range options {
		opt(s)
	}

	cookies, err := sessions.NewCookieCodec(cfg.GetSessionSecret())
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to create cookie codec: %w", err)
	}
	s.cookies = cookies.WithClock(s.nowTime)

	s.auth, err = auth.NewService(deps.Users, deps.Sessions,
		auth.WithSessionTTL(cfg.GetSessionTTL()),
		auth.WithNowTime(s.nowTime),
	)
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to create auth service: %w", err)
	}

	if s.pages, err = parsePages(); err != nil {
		return nil, fmt.Errorf("[Server New] failed to parse templates: %w", err)
	}

	if err := s.InitialiseSystem(context.Background()); err != nil {
		return nil, fmt.Errorf("[Server New] failed to initialise the system: %w", err)
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != config.DevEnv {
		return
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)
		if len(parts) > 1 {
			log.Debug().Msg(colourMethod(parts[0]) + " " + parts[1])
		} else {
			log.Debug().Msg(colourMethod("") + " " + parts[0])
		}
	}
}
