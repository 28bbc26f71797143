package provider

import (
	"sync"
	"time"
)

// UsageTracker counts provider calls per UTC day for the status endpoint.
// The count is advisory: it informs operators whether quota remains and
// never blocks a request itself.
type UsageTracker struct {
	mu    sync.Mutex
	day   string
	count int
	now   func() time.Time
}

// NewUsageTracker creates an empty tracker.
func NewUsageTracker() *UsageTracker {
	return &UsageTracker{now: time.Now}
}

// Record counts one provider call against today.
func (u *UsageTracker) Record() {
	u.mu.Lock()
	defer u.mu.Unlock()
	day := u.now().UTC().Format("2006-01-02")
	if day != u.day {
		u.day = day
		u.count = 0
	}
	u.count++
}

// Today returns the number of calls recorded for the current UTC day.
func (u *UsageTracker) Today() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.now().UTC().Format("2006-01-02") != u.day {
		return 0
	}
	return u.count
}
