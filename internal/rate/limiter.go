package rate

import (
	"sync"
	"time"
)

// WindowLimiter counts events per key over a fixed window. The purchase
// endpoint uses it keyed by client address to keep card retries in check.
type WindowLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	windows map[string]*window
	swept   time.Time
}

type window struct {
	openedAt time.Time
	count    int
}

// NewWindowLimiter creates limiter allowing limit events per key per window.
func NewWindowLimiter(limit int, windowSize time.Duration) *WindowLimiter {
	return &WindowLimiter{
		limit:   limit,
		window:  windowSize,
		windows: make(map[string]*window),
		swept:   time.Now(),
	}
}

// Allow records one event for key and reports whether it fits the window.
func (l *WindowLimiter) Allow(key string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweep(now)

	w, ok := l.windows[key]
	if !ok || now.Sub(w.openedAt) >= l.window {
		l.windows[key] = &window{openedAt: now, count: 1}
		return true
	}
	if w.count >= l.limit {
		return false
	}
	w.count++
	return true
}

// sweep drops expired windows at most once per window duration.
func (l *WindowLimiter) sweep(now time.Time) {
	if l.window <= 0 || now.Sub(l.swept) < l.window {
		return
	}
	for key, w := range l.windows {
		if now.Sub(w.openedAt) >= l.window {
			delete(l.windows, key)
		}
	}
	l.swept = now
}
