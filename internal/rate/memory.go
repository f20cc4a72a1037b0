package rate

import (
	"sync"
	"time"
)

type window struct {
	attempts int
	openedAt time.Time
}

// Limiter throttles per-client bursts with fixed windows. The router keys
// it by route name plus client address, so a kiosk hammering the submit
// endpoint cannot starve logins from other clients.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]window
	sweptAt time.Time
}

func NewLimiter() *Limiter {
	return &Limiter{windows: map[string]window{}, sweptAt: time.Now().UTC()}
}

// Allow records one attempt under key and reports whether it still fits
// within limit attempts per span. Stale windows are swept opportunistically
// so idle clients do not accumulate.
func (l *Limiter) Allow(key string, limit int, span time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now().UTC()
	if now.Sub(l.sweptAt) > time.Minute {
		for k, w := range l.windows {
			if now.Sub(w.openedAt) > 3*span {
				delete(l.windows, k)
			}
		}
		l.sweptAt = now
	}
	w, ok := l.windows[key]
	if !ok || now.Sub(w.openedAt) >= span {
		l.windows[key] = window{attempts: 1, openedAt: now}
		return true
	}
	if w.attempts >= limit {
		return false
	}
	w.attempts++
	l.windows[key] = w
	return true
}
