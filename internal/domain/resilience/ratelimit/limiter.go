package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Config tunes the fixed-window limiter.
type Config struct {
	Window        time.Duration
	Limit         int
	MaxConcurrent int
}

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed   bool
	Remaining int
	Limit     int
	ResetAt   time.Time
}

// LimitedError is returned when an identity exceeds its quota or concurrency
// ceiling. ResetAt tells callers when the window reopens.
type LimitedError struct {
	Identity string
	ResetAt  time.Time
}

func (e *LimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, resets at %s", e.Identity, e.ResetAt.Format(time.RFC3339))
}

type window struct {
	start    time.Time
	count    int
	inFlight int
}

// Limiter applies a fixed-window quota plus an independent in-flight ceiling
// per identity. Admission is charged on attempt and never refunded; only the
// concurrency slot is released when the call finishes.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window

	windowSize    time.Duration
	limit         int
	maxConcurrent int

	now func() time.Time
}

// NewLimiter builds a limiter with the given quota configuration.
func NewLimiter(cfg Config) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 100
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 10
	}
	return &Limiter{
		windows:       make(map[string]*window),
		windowSize:    cfg.Window,
		limit:         cfg.Limit,
		maxConcurrent: cfg.MaxConcurrent,
		now:           time.Now,
	}
}

// Acquire admits or rejects one call for the identity. On admission the
// caller must invoke the returned release function exactly once when the
// call completes; release frees the concurrency slot, not the window count.
func (l *Limiter) Acquire(identity string) (Decision, func(), error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[identity]
	if !ok {
		w = &window{start: now}
		l.windows[identity] = w
	}
	if !now.Before(w.start.Add(l.windowSize)) {
		w.start = now
		w.count = 0
	}
	resetAt := w.start.Add(l.windowSize)

	if w.count >= l.limit {
		return Decision{Allowed: false, Remaining: 0, Limit: l.limit, ResetAt: resetAt},
			nil, &LimitedError{Identity: identity, ResetAt: resetAt}
	}
	if w.inFlight >= l.maxConcurrent {
		return Decision{Allowed: false, Remaining: l.limit - w.count, Limit: l.limit, ResetAt: resetAt},
			nil, &LimitedError{Identity: identity, ResetAt: resetAt}
	}

	w.count++
	w.inFlight++

	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Lock()
			if w := l.windows[identity]; w != nil && w.inFlight > 0 {
				w.inFlight--
			}
			l.mu.Unlock()
		})
	}

	return Decision{
		Allowed:   true,
		Remaining: l.limit - w.count,
		Limit:     l.limit,
		ResetAt:   resetAt,
	}, release, nil
}

// Peek reports the current quota state without consuming admission.
func (l *Limiter) Peek(identity string) Decision {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[identity]
	if !ok || !now.Before(w.start.Add(l.windowSize)) {
		return Decision{
			Allowed:   true,
			Remaining: l.limit,
			Limit:     l.limit,
			ResetAt:   now.Add(l.windowSize),
		}
	}
	return Decision{
		Allowed:   w.count < l.limit,
		Remaining: l.limit - w.count,
		Limit:     l.limit,
		ResetAt:   w.start.Add(l.windowSize),
	}
}

// Stats summarises tracked identities for diagnostics.
func (l *Limiter) Stats() map[string]any {
	l.mu.Lock()
	defer l.mu.Unlock()

	inFlight := 0
	for _, w := range l.windows {
		inFlight += w.inFlight
	}
	return map[string]any{
		"identities":     len(l.windows),
		"in_flight":      inFlight,
		"limit":          l.limit,
		"window_seconds": int(l.windowSize.Seconds()),
		"max_concurrent": l.maxConcurrent,
	}
}
