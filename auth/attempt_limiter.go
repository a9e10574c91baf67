package auth

import (
	"sync"
	"time"
)

// AttemptLimiter counts one-time password attempts per challenge token and
// remembers challenges that were already redeemed. Entries live as long as
// a challenge token can, so memory stays bounded by the login rate.
type AttemptLimiter struct {
	max     int
	ttl     time.Duration
	nowFunc func() time.Time

	mu      sync.Mutex
	entries map[string]*attempts
}

type attempts struct {
	attempts int
	redeemed bool
	expires  time.Time
}

// NewAttemptLimiter allows max codes to be tried per challenge. max <= 0 means no
// cap, though redeemed challenges are still refused.
func NewAttemptLimiter(max int, ttl time.Duration) *AttemptLimiter {
	return &AttemptLimiter{
		max:     max,
		ttl:     ttl,
		nowFunc: time.Now,
		entries: make(map[string]*attempts),
	}
}

// entry must be called with mu held.
func (l *AttemptLimiter) entry(id string) *attempts {
	now := l.nowFunc()
	for k, e := range l.entries {
		if now.After(e.expires) {
			delete(l.entries, k)
		}
	}
	e, ok := l.entries[id]
	if !ok {
		e = &attempts{expires: now.Add(l.ttl)}
		l.entries[id] = e
	}
	return e
}

// Reserve counts an attempt for the challenge before the code is checked.
// It returns false once the challenge is redeemed or its attempts are used
// up. Reserved attempts are never refunded.
func (l *AttemptLimiter) Reserve(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.entry(id)
	if e.redeemed {
		return false
	}
	if l.max > 0 && e.attempts >= l.max {
		return false
	}
	e.attempts++
	return true
}

// Redeem marks the challenge as used so it cannot mint a second session.
// Only the first caller for a challenge gets true.
func (l *AttemptLimiter) Redeem(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.entry(id)
	if e.redeemed {
		return false
	}
	e.redeemed = true
	return true
}
