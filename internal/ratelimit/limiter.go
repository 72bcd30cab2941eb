// Package ratelimit gates outbound provider calls with a sliding-window call log.
//
// A Limiter remembers the time of every granted call made during the last window
// and refuses to grant more than MaxRequests of them. Acquire blocks the caller
// until the oldest call ages out; Allowed and Status only observe.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Defaults match the free-tier quota of the embedding and chat providers.
const (
	DefaultMaxRequests = 15
	DefaultWindow      = 60 * time.Second
)

// MinWait is the shortest suspension Acquire performs between two attempts.
const MinWait = time.Millisecond

var (
	// ErrInvalidConfiguration is returned by New for non-positive limits.
	ErrInvalidConfiguration = errors.New("invalid rate limiter configuration")

	// ErrCancelled is returned by Acquire when the caller's context fires while waiting.
	ErrCancelled = errors.New("rate limiter wait cancelled")
)

// Logger is satisfied by *zap.Logger and by the gofulmen logging.Logger.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
}

// Observer is notified once per finished Acquire call.
type Observer interface {
	ObserveAcquire(waited time.Duration, err error)
}

// Opts holds optional collaborators for NewWithOpts.
type Opts struct {
	// Name labels log lines and metrics. Defaults to "default".
	Name     string
	Clock    Clock
	Logger   Logger
	Observer Observer
}

// Limiter is safe for concurrent use.
type Limiter struct {
	name        string
	maxRequests int
	window      time.Duration
	clock       Clock
	logger      Logger
	observer    Observer

	mu    sync.Mutex
	calls []time.Time
}

// New creates a limiter granting at most maxRequests calls per window.
func New(maxRequests int, window time.Duration) (*Limiter, error) {
	return NewWithOpts(maxRequests, window, Opts{})
}

// NewWithOpts creates a limiter with the given options. Zero-valued options fall back to defaults.
func NewWithOpts(maxRequests int, window time.Duration, opts Opts) (*Limiter, error) {
	if maxRequests <= 0 {
		return nil, fmt.Errorf("%w: max requests must be positive, got %d", ErrInvalidConfiguration, maxRequests)
	}
	if window <= 0 {
		return nil, fmt.Errorf("%w: window must be positive, got %s", ErrInvalidConfiguration, window)
	}

	if opts.Name == "" {
		opts.Name = "default"
	}
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Limiter{
		name:        opts.Name,
		maxRequests: maxRequests,
		window:      window,
		clock:       opts.Clock,
		logger:      opts.Logger,
		observer:    opts.Observer,
		calls:       make([]time.Time, 0, maxRequests),
	}, nil
}

// Name returns the limiter label.
func (l *Limiter) Name() string {
	return l.name
}

// MaxRequests returns the number of calls allowed per window.
func (l *Limiter) MaxRequests() int {
	return l.maxRequests
}

// Window returns the width of the sliding window.
func (l *Limiter) Window() time.Duration {
	return l.window
}

// Allowed reports whether a call would be granted right now. It does not reserve a slot.
func (l *Limiter) Allowed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pruneLocked(l.clock.Now())
	return len(l.calls) < l.maxRequests
}

// Record logs a call unconditionally.
//
// Callers must have seen Allowed return true; use Acquire to check and record atomically.
func (l *Limiter) Record() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.pruneLocked(now)
	l.calls = append(l.calls, now)
}

// Acquire blocks until a slot is free and records the call.
//
// The wait is recomputed after every wake-up. If ctx is done before a slot is granted,
// Acquire returns an error matching both ErrCancelled and ctx.Err() and records nothing.
func (l *Limiter) Acquire(ctx context.Context) error {
	start := l.clock.Now()
	if err := ctx.Err(); err != nil {
		return l.finish(start, fmt.Errorf("%w: %w", ErrCancelled, err))
	}

	for attempt := 0; ; attempt++ {
		wait, granted := l.reserve()
		if granted {
			return l.finish(start, nil)
		}

		fields := []zap.Field{
			zap.String("limiter", l.name),
			zap.Int("max_requests", l.maxRequests),
			zap.Duration("window", l.window),
			zap.Float64("wait_seconds", wait.Seconds()),
		}
		if attempt == 0 {
			l.logger.Warn("Rate limit reached, waiting for a free slot", fields...)
		} else {
			l.logger.Debug("Slot still taken after wake-up, waiting again", fields...)
		}

		if err := l.sleep(ctx, wait); err != nil {
			return l.finish(start, fmt.Errorf("%w: %w", ErrCancelled, err))
		}
	}
}

// Status returns a snapshot of the current window.
func (l *Limiter) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.pruneLocked(now)

	count := len(l.calls)
	status := Status{
		Name:         l.name,
		MaxRequests:  l.maxRequests,
		Window:       l.window,
		CurrentCount: count,
		Remaining:    max(l.maxRequests-count, 0),
		CanProceed:   count < l.maxRequests,
	}
	if count > 0 {
		status.ResetIn = max(l.window-now.Sub(l.calls[0]), 0)
	}
	return status
}

// reserve records a call if there is room, otherwise returns how long the oldest call has left.
func (l *Limiter) reserve() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.pruneLocked(now)

	if len(l.calls) < l.maxRequests {
		l.calls = append(l.calls, now)
		return 0, true
	}

	wait := l.window - now.Sub(l.calls[0])
	if wait < MinWait {
		wait = MinWait
	}
	return wait, false
}

// pruneLocked drops calls that are a full window old. The log is sorted, so it stops at the first live entry.
func (l *Limiter) pruneLocked(now time.Time) {
	expired := 0
	for expired < len(l.calls) && now.Sub(l.calls[expired]) >= l.window {
		expired++
	}
	if expired == 0 {
		return
	}
	n := copy(l.calls, l.calls[expired:])
	l.calls = l.calls[:n]
}

func (l *Limiter) sleep(ctx context.Context, d time.Duration) error {
	timer := l.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Limiter) finish(start time.Time, err error) error {
	waited := l.clock.Now().Sub(start)
	if err == nil {
		l.logger.Debug("Rate limit slot granted",
			zap.String("limiter", l.name),
			zap.Duration("waited", waited))
	}
	if l.observer != nil {
		l.observer.ObserveAcquire(waited, err)
	}
	return err
}
