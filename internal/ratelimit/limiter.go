package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Defaults applied when New receives a non-positive value.
const (
	DefaultCeiling = 5000
	DefaultWindow  = time.Hour
)

// Decision is the outcome of one Admit call.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

type entry struct {
	count       int
	windowStart time.Time
}

// Limiter admits at most ceiling requests per address in any window.
type Limiter struct {
	ceiling int
	window  time.Duration
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
}

// New creates a Limiter.
func New(ceiling int, window time.Duration) *Limiter {
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		ceiling: ceiling,
		window:  window,
		now:     time.Now,
		entries: make(map[string]*entry),
	}
}

// WithClock replaces the time source. Call it before the Limiter is shared.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Ceiling returns the per-window request limit.
func (l *Limiter) Ceiling() int {
	return l.ceiling
}

// Admit records a request from addr and reports whether it may proceed.
func (l *Limiter) Admit(addr string) Decision {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[addr]
	switch {
	case !ok:
		e = &entry{count: 1, windowStart: now}
		l.entries[addr] = e
	case now.Sub(e.windowStart) > l.window:
		e.count = 1
		e.windowStart = now
	default:
		e.count++
	}

	d := Decision{Allowed: true, ResetAt: e.windowStart.Add(l.window)}
	if e.count > l.ceiling {
		e.count--
		d.Allowed = false
	}
	d.Remaining = l.ceiling - e.count
	return d
}

// Sweep drops entries whose window has lapsed and returns how many it removed.
func (l *Limiter) Sweep() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for addr, e := range l.entries {
		if now.Sub(e.windowStart) > l.window {
			delete(l.entries, addr)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked addresses.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Run sweeps every interval until ctx is cancelled.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
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
