package telegram

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// userLimiter keeps one token bucket per user and forgets idle users.
type userLimiter struct {
	mu              sync.Mutex
	limit           rate.Limit
	burst           int
	entries         map[int64]*limiterEntry
	entryTTL        time.Duration
	cleanupInterval time.Duration
	lastCleanup     time.Time
	now             func() time.Time
}

// newUserLimiter returns nil when rps or burst is not positive, which disables limiting.
func newUserLimiter(rps float64, burst int, now func() time.Time) *userLimiter {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	if now == nil {
		now = time.Now
	}
	return &userLimiter{
		limit:           rate.Limit(rps),
		burst:           burst,
		entries:         make(map[int64]*limiterEntry),
		entryTTL:        15 * time.Minute,
		cleanupInterval: 5 * time.Minute,
		lastCleanup:     now(),
		now:             now,
	}
}

func (l *userLimiter) allow(userID int64) bool {
	if l == nil {
		return true
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastCleanup) >= l.cleanupInterval {
		for key, entry := range l.entries {
			if now.Sub(entry.lastSeen) > l.entryTTL {
				delete(l.entries, key)
			}
		}
		l.lastCleanup = now
	}

	entry, ok := l.entries[userID]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[userID] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}
