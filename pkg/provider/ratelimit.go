package provider

import (
	"sync"
	"time"

	"github.com/pitchside/rebuild-server/pkg/apierr"
)

// RateLimiter enforces the provider's per-minute and per-day call budgets
// using fixed windows. Limits come from the active rebuild config and may be
// swapped at any time via SetLimits.
type RateLimiter struct {
	mu sync.Mutex

	perMinute int
	perDay    int

	minuteStart time.Time
	minuteCount int
	day         string
	dayCount    int

	now func() time.Time
}

// NewRateLimiter creates a limiter with the given budgets. Non-positive
// budgets fall back to conservative defaults.
func NewRateLimiter(perMinute, perDay int) *RateLimiter {
	l := &RateLimiter{now: time.Now}
	l.SetLimits(perMinute, perDay)
	return l
}

// SetLimits replaces both budgets. Window counters are kept so switching the
// active config mid-day does not reset consumed quota.
func (l *RateLimiter) SetLimits(perMinute, perDay int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if perMinute < 1 {
		perMinute = 10
	}
	if perDay < 1 {
		perDay = 100
	}
	l.perMinute = perMinute
	l.perDay = perDay
}

// Allow consumes one call from both windows, or returns a rate-limited
// ProviderError when either budget is exhausted.
func (l *RateLimiter) Allow() error {
	return l.allowAt(l.now())
}

// allowAt is the testable core of Allow.
func (l *RateLimiter) allowAt(now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.minuteStart) >= time.Minute {
		l.minuteStart = now
		l.minuteCount = 0
	}
	day := now.UTC().Format("2006-01-02")
	if day != l.day {
		l.day = day
		l.dayCount = 0
	}

	if l.dayCount >= l.perDay {
		return apierr.RateLimited("provider daily quota of %d calls exhausted", l.perDay)
	}
	if l.minuteCount >= l.perMinute {
		return apierr.RateLimited("provider per-minute limit of %d calls exhausted", l.perMinute)
	}

	l.minuteCount++
	l.dayCount++
	return nil
}
