package ratelimit

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

var (
	// Allow 5 commands in 5s per session
	RATE_LIMIT       = rate.Every(time.Second)
	RATE_LIMIT_BURST = 5

	// Auto remove key from map after 5m
	LRU_EXPIRE_TIME = 5 * time.Minute
)

// Limits how fast chat commands sent to the fake contact are acted on.
// Each session gets its own bucket; idle buckets expire.
type CommandLimiter struct {
	sessions *expirable.LRU[uint32, *bucket]
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
}

func NewCommandLimiter() *CommandLimiter {
	return NewCustomCommandLimiter(RATE_LIMIT, RATE_LIMIT_BURST, LRU_EXPIRE_TIME)
}

func NewCustomCommandLimiter(limit rate.Limit, burst int, expiry time.Duration) *CommandLimiter {
	return &CommandLimiter{
		sessions: expirable.NewLRU[uint32, *bucket](0, nil, expiry),
		limit:    limit,
		burst:    burst,
	}
}

type bucket struct {
	limiter *rate.Limiter
	// Set after the first rejection, cleared by the next allowed command
	warned bool
}

// Reports whether a command from the session may be processed now.
// When it may not, warn is true for the first rejection in a row only,
// so the user is told once instead of on every dropped command.
func (l *CommandLimiter) Allow(sessionId uint32) (ok bool, warn bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, exists := l.sessions.Get(sessionId)
	if !exists {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.sessions.Add(sessionId, b)
	}
	if b.limiter.Allow() {
		b.warned = false
		return true, false
	}
	warn = !b.warned
	b.warned = true
	return false, warn
}

// Drops the bucket of a closed session.
func (l *CommandLimiter) Forget(sessionId uint32) {
	l.sessions.Remove(sessionId)
}
