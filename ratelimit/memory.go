package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	start time.Time
	count int
}

// InMemoryLimiter keeps counters in a mutex guarded map.
type InMemoryLimiter struct {
	config  Config
	windows map[string]*window
	lock    sync.Mutex
	nowTime func() time.Time
}

var _ Limiter = (*InMemoryLimiter)(nil)

// LimiterOption modifies an InMemoryLimiter.
type LimiterOption func(*InMemoryLimiter)

// WithNowTime sets the clock (primarily for testing)
func WithNowTime(nowFunc func() time.Time) LimiterOption {
	return func(l *InMemoryLimiter) {
		l.nowTime = nowFunc
	}
}

func NewInMemoryLimiter(cfg Config, options ...LimiterOption) (*InMemoryLimiter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	l := &InMemoryLimiter{
		config:  cfg,
		windows: make(map[string]*window),
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(l)
	}
	return l, nil
}

func (l *InMemoryLimiter) Check(_ context.Context, key string) (Result, error) {
	now := l.nowTime()

	l.lock.Lock()
	defer l.lock.Unlock()

	w, ok := l.windows[key]
	if !ok || now.After(w.start.Add(l.config.Window)) {
		w = &window{start: now}
		l.windows[key] = w
	}
	w.count++

	return newResult(l.config, w.count, w.start.Add(l.config.Window).Sub(now)), nil
}

// Sweep drops counters whose window has elapsed and returns how many were removed.
func (l *InMemoryLimiter) Sweep() int {
	now := l.nowTime()

	l.lock.Lock()
	defer l.lock.Unlock()

	removed := 0
	for key, w := range l.windows {
		if now.After(w.start.Add(l.config.Window)) {
			delete(l.windows, key)
			removed++
		}
	}
	return removed
}

// RunSweeper calls Sweep every window until ctx is cancelled.
func (l *InMemoryLimiter) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(l.config.Window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}
