// Package ratelimit counts attempts per client key in fixed windows.
//
// The first attempt for a key opens a window of the configured length. Attempts inside the
// window increment the counter and are allowed while the counter is at most Limit. Once the
// window has elapsed the next attempt opens a new window.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// Result describes the outcome of one attempt.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	// RetryAfter is the time until the current window closes.
	RetryAfter time.Duration
}

// Limiter records an attempt for key and reports whether it is allowed.
type Limiter interface {
	Check(ctx context.Context, key string) (Result, error)
}

// Config holds the window parameters shared by every backend.
type Config struct {
	Limit  int
	Window time.Duration
}

func (c Config) validate() error {
	if c.Limit < 1 {
		return errors.New("[ratelimit] limit must be at least 1")
	}
	if c.Window <= 0 {
		return errors.New("[ratelimit] window must be positive")
	}
	return nil
}

func newResult(cfg Config, count int, retryAfter time.Duration) Result {
	remaining := cfg.Limit - count
	if remaining < 0 {
		remaining = 0
	}
	if retryAfter < 0 {
		retryAfter = 0
	}
	return Result{
		Allowed:    count <= cfg.Limit,
		Limit:      cfg.Limit,
		Remaining:  remaining,
		RetryAfter: retryAfter,
	}
}
