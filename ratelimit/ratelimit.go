package ratelimit

import (
	"time"
)

// Limiter tracks backoff state for a single rate-limited remote call.
// Backoff starts at the configured minimum, doubles on every consecutive
// error after the first up to the configured max, and resets fully on the
// first success. Expiry is timestamp-based: the limiter never schedules
// anything, it just compares elapsed time on query.
//
// The limiter gates on backoff expiry only. Minimum spacing between calls
// comes from the dispatch ticker that drives it; after a success the very
// next tick may proceed.
//
// Limiter is not safe for concurrent use; each session owns exactly one.
type Limiter struct {
	minBackoff     time.Duration
	maxBackoff     time.Duration
	notifyInterval time.Duration

	backoff         time.Duration
	limitedUntil    time.Time
	lastNotify      time.Time
	consecutiveErrs int
	now             func() time.Time
}

// New creates a Limiter with the given backoff bounds and notify throttle.
func New(minBackoff, maxBackoff, notifyInterval time.Duration) *Limiter {
	return &Limiter{
		minBackoff:     minBackoff,
		maxBackoff:     maxBackoff,
		notifyInterval: notifyInterval,
		backoff:        minBackoff,
		now:            time.Now,
	}
}

// SetClock replaces the time source, for tests.
func (l *Limiter) SetClock(now func() time.Time) {
	l.now = now
}

// CanProceed reports whether a call may be made right now. Pure query.
func (l *Limiter) CanProceed() bool {
	return !l.now().Before(l.limitedUntil)
}

// RecordSuccess resets backoff to the minimum and clears the limit.
func (l *Limiter) RecordSuccess() {
	l.backoff = l.minBackoff
	l.consecutiveErrs = 0
	l.limitedUntil = time.Time{}
}

// RecordRateLimitError marks the limiter as limited for the current backoff
// window. A second consecutive error doubles the backoff, capped at the max.
// The returned bool says whether the caller should surface a user-facing
// notification; notifications are throttled to once per notify interval so
// a burst of 429s produces a single toast.
func (l *Limiter) RecordRateLimitError() bool {
	now := l.now()
	l.consecutiveErrs++
	if l.consecutiveErrs > 1 {
		l.backoff *= 2
		if l.backoff > l.maxBackoff {
			l.backoff = l.maxBackoff
		}
	}
	l.limitedUntil = now.Add(l.backoff)

	if l.lastNotify.IsZero() || now.Sub(l.lastNotify) >= l.notifyInterval {
		l.lastNotify = now
		return true
	}
	return false
}

// Backoff returns the backoff currently in force.
func (l *Limiter) Backoff() time.Duration {
	return l.backoff
}

// ConsecutiveErrors returns the current error streak length.
func (l *Limiter) ConsecutiveErrors() int {
	return l.consecutiveErrs
}

// Reset restores the limiter to its initial state. Called at session start.
func (l *Limiter) Reset() {
	l.backoff = l.minBackoff
	l.consecutiveErrs = 0
	l.limitedUntil = time.Time{}
	l.lastNotify = time.Time{}
}
