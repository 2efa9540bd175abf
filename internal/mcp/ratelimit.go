// ABOUTME: Per-session token-bucket rate limiting for tool calls
// ABOUTME: Idle limiters are pruned so the map stays bounded by active sessions

package mcp

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limiterIdleTTL is how long an unused limiter is kept.
const limiterIdleTTL = 10 * time.Minute

// pruneThreshold is the map size above which idle limiters are pruned.
const pruneThreshold = 1024

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// sessionLimiter allows perMinute tool calls per session with an equal burst.
// A nil *sessionLimiter allows everything.
type sessionLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	perMinute int
	now       func() time.Time
}

func newSessionLimiter(perMinute int) *sessionLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &sessionLimiter{
		limiters:  make(map[string]*limiterEntry),
		perMinute: perMinute,
		now:       time.Now,
	}
}

// Allow reports whether sessionID may make another call now.
func (l *sessionLimiter) Allow(sessionID string) bool {
	if l == nil {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	entry, ok := l.limiters[sessionID]
	if !ok {
		if len(l.limiters) >= pruneThreshold {
			l.pruneLocked(now)
		}
		entry = &limiterEntry{
			limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMinute)), l.perMinute),
		}
		l.limiters[sessionID] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// pruneLocked drops limiters idle longer than limiterIdleTTL. Must be called with mu held.
func (l *sessionLimiter) pruneLocked(now time.Time) {
	for id, entry := range l.limiters {
		if now.Sub(entry.lastSeen) > limiterIdleTTL {
			delete(l.limiters, id)
		}
	}
}
