// Package poll implements client-side polling of seed job progress. A Poller
// fetches a job snapshot on a fixed cadence, reports each snapshot to an
// update callback, and fires a terminal callback exactly once when the job
// reaches completed or failed. Stopping the poller, or cancelling its
// context, before the job finishes suppresses the terminal callback.
package poll

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultInterval is the cadence used when none is configured.
const DefaultInterval = 3 * time.Second

// JobSnapshot is one observed state of a seed job.
type JobSnapshot struct {
	ID          string
	Status      string
	Progress    int
	Total       int
	CurrentItem string
	Error       string
}

// Terminal reports whether the snapshot is a finished job.
func (s JobSnapshot) Terminal() bool {
	return s.Status == "completed" || s.Status == "failed"
}

// Fetcher retrieves the current snapshot of the watched job.
type Fetcher func(ctx context.Context) (JobSnapshot, error)

// Poller watches one job until it finishes or is stopped.
type Poller struct {
	fetch      Fetcher
	interval   time.Duration
	logger     *slog.Logger
	onUpdate   func(JobSnapshot)
	onTerminal func(JobSnapshot)

	stopOnce     sync.Once
	terminalOnce sync.Once
	stop         chan struct{}
	done         chan struct{}
}

// Option configures a Poller.
type Option func(*Poller)

// WithInterval overrides the poll cadence.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithLogger sets the logger for fetch failures.
func WithLogger(l *slog.Logger) Option {
	return func(p *Poller) {
		if l != nil {
			p.logger = l
		}
	}
}

// OnUpdate registers a callback invoked for every successful fetch,
// terminal snapshots included.
func OnUpdate(fn func(JobSnapshot)) Option {
	return func(p *Poller) { p.onUpdate = fn }
}

// OnTerminal registers the callback fired once when the job finishes.
func OnTerminal(fn func(JobSnapshot)) Option {
	return func(p *Poller) { p.onTerminal = fn }
}

// New creates a Poller for the given fetcher.
func New(fetch Fetcher, opts ...Option) *Poller {
	p := &Poller{
		fetch:    fetch,
		interval: DefaultInterval,
		logger:   slog.Default(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the poll loop on its own goroutine and returns immediately.
func (p *Poller) Start(ctx context.Context) {
	go p.run(ctx)
}

// Watch runs the poll loop on the calling goroutine until the job finishes,
// ctx is cancelled, or Stop is called.
func (p *Poller) Watch(ctx context.Context) {
	p.run(ctx)
}

// Stop halts polling. A job that has not yet reached a terminal state never
// gets its terminal callback. Safe to call more than once.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

// Done returns a channel closed when the poll loop has exited.
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// First poll happens immediately rather than one interval in.
	if p.poll(ctx) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case <-ticker.C:
			if p.poll(ctx) {
				return
			}
		}
	}
}

// poll fetches once and returns true when polling should stop. Fetch
// failures are logged and tolerated; the next tick retries.
func (p *Poller) poll(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-p.stop:
		return true
	default:
	}

	snap, err := p.fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		p.logger.Warn("job poll failed", "error", err)
		return false
	}

	// Stop can land while a fetch is in flight; the stale snapshot must
	// not reach the callbacks after the caller has disposed of us.
	select {
	case <-ctx.Done():
		return true
	case <-p.stop:
		return true
	default:
	}

	if p.onUpdate != nil {
		p.onUpdate(snap)
	}
	if snap.Terminal() {
		p.terminalOnce.Do(func() {
			if p.onTerminal != nil {
				p.onTerminal(snap)
			}
		})
		return true
	}
	return false
}
