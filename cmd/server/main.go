package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-user-admin/internal/config"
	"github.com/jrsteele09/go-user-admin/internal/storage"
	"github.com/jrsteele09/go-user-admin/ratelimit"
	"github.com/jrsteele09/go-user-admin/server"
	"github.com/jrsteele09/go-user-admin/sessions"
	"github.com/jrsteele09/go-user-admin/users"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	sessionJanitorInterval = time.Minute
	shutdownTimeout        = 5 * time.Second
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Error running server")
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	configureLogging(c.GetEnv())
	if err := c.Validate(); err != nil {
		return fmt.Errorf("[run] invalid configuration: %w", err)
	}
	displayAppname(c.GetAppName())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.Open(ctx, c.GetDatabaseURL())
	if err != nil {
		return fmt.Errorf("[run] failed to open store: %w", err)
	}
	defer store.Close()

	deps, closeBackends, err := newDependencies(ctx, c, store)
	if err != nil {
		return err
	}
	defer closeBackends()

	handler, err := server.New(c, deps)
	if err != nil {
		return fmt.Errorf("[run] failed to create server: %w", err)
	}

	httpServer := &http.Server{
		Addr:              c.GetPort(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() { serveErr <- listenAndServe(httpServer) }()

	select {
	case err := <-serveErr:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(httpServer)
}

// newDependencies wires the user service to the store and picks Redis or in-memory backends for
// sessions and rate limit counters.
func newDependencies(ctx context.Context, c config.Config, store *storage.Store) (server.Dependencies, func(), error) {
	userService, err := users.NewService(store.Users)
	if err != nil {
		return server.Dependencies{}, nil, fmt.Errorf("[newDependencies] %w", err)
	}
	limits := ratelimit.Config{Limit: c.GetLoginRateLimit(), Window: c.GetLoginRateWindow()}
	deps := server.Dependencies{
		Users:        userService,
		HealthChecks: map[string]server.HealthCheck{"database": store.Ping},
	}

	redisURL := c.GetRedisURL()
	if redisURL == "" {
		memorySessions := sessions.NewInMemoryStore()
		memoryLimiter, err := ratelimit.NewInMemoryLimiter(limits)
		if err != nil {
			return server.Dependencies{}, nil, fmt.Errorf("[newDependencies] %w", err)
		}
		go memorySessions.RunJanitor(ctx, sessionJanitorInterval)
		go memoryLimiter.RunSweeper(ctx)

		deps.Sessions = memorySessions
		deps.LoginLimiter = memoryLimiter
		log.Info().Str("users", store.Backend).Msg("Sessions and rate limits kept in memory")
		return deps, func() {}, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return server.Dependencies{}, nil, fmt.Errorf("[newDependencies] invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", opts.Addr).Msg("Redis is unreachable, session requests will fail until it recovers")
	}

	redisLimiter, err := ratelimit.NewRedisLimiter(client, limits)
	if err != nil {
		_ = client.Close()
		return server.Dependencies{}, nil, fmt.Errorf("[newDependencies] %w", err)
	}
	deps.Sessions = sessions.NewRedisStore(client)
	deps.LoginLimiter = redisLimiter
	deps.HealthChecks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	log.Info().Str("users", store.Backend).Str("redis", opts.Addr).Msg("Sessions and rate limits kept in Redis")

	return deps, func() { _ = client.Close() }, nil
}

func configureLogging(env string) {
	zerolog.TimeFieldFormat = time.RFC3339
	if env == config.DevEnv {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
