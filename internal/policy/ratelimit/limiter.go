// Package ratelimit implements the process-wide sliding-window gate that
// bounds outbound metadata requests over a 1-second and a 60-second window.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/tubeshelf/internal/metrics"
)

const (
	secondWindow = time.Second
	minuteWindow = time.Minute

	defaultSecondBackoff = 50 * time.Millisecond
	defaultMinuteBackoff = time.Second
)

// LimitsFunc reports the current per-second and per-minute ceilings. It is
// consulted on every check so runtime changes apply to the next Acquire.
type LimitsFunc func() (perSecond, perMinute int)

// Config holds limiter configuration.
type Config struct {
	Limits        LimitsFunc
	SecondBackoff time.Duration
	MinuteBackoff time.Duration
	Logger        *zap.Logger
	// Now and Sleep are overridable for tests.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Limiter is a two-window sliding log limiter. Both windows must have room
// before a slot is granted.
type Limiter struct {
	mu     sync.Mutex
	second []time.Time
	minute []time.Time

	limits        LimitsFunc
	secondBackoff time.Duration
	minuteBackoff time.Duration
	now           func() time.Time
	sleep         func(ctx context.Context, d time.Duration) error
	logger        *zap.Logger
	waitLog       rate.Sometimes
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	l := &Limiter{
		limits:        cfg.Limits,
		secondBackoff: cfg.SecondBackoff,
		minuteBackoff: cfg.MinuteBackoff,
		now:           cfg.Now,
		sleep:         cfg.Sleep,
		logger:        cfg.Logger,
		waitLog:       rate.Sometimes{Interval: 5 * time.Second},
	}
	if l.limits == nil {
		l.limits = func() (int, int) { return 0, 0 }
	}
	if l.secondBackoff <= 0 {
		l.secondBackoff = defaultSecondBackoff
	}
	if l.minuteBackoff <= 0 {
		l.minuteBackoff = defaultMinuteBackoff
	}
	if l.now == nil {
		l.now = time.Now
	}
	if l.sleep == nil {
		l.sleep = sleepContext
	}
	if l.logger == nil {
		l.logger = zap.NewNop()
	}
	return l
}

// Acquire blocks until both windows have room, then records the request.
// Each full window costs a fixed backoff before the next check.
func (l *Limiter) Acquire(ctx context.Context) error {
	start := l.now()
	for {
		backoff := l.tryReserve()
		if backoff == 0 {
			if waited := l.now().Sub(start); waited > time.Millisecond {
				metrics.ObserveRateLimitDelay(waited)
			}
			return nil
		}
		l.waitLog.Do(func() {
			l.logger.Debug("rate limit reached, backing off", zap.Duration("backoff", backoff))
		})
		if err := l.sleep(ctx, backoff); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}
}

// tryReserve prunes both windows and either records a request, returning
// zero, or returns the backoff for the window that is full.
func (l *Limiter) tryReserve() time.Duration {
	perSecond, perMinute := l.limits()

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.second = prune(l.second, now.Add(-secondWindow))
	l.minute = prune(l.minute, now.Add(-minuteWindow))

	if perSecond > 0 && len(l.second) >= perSecond {
		return l.secondBackoff
	}
	if perMinute > 0 && len(l.minute) >= perMinute {
		return l.minuteBackoff
	}
	l.second = append(l.second, now)
	l.minute = append(l.minute, now)
	return 0
}

// prune drops timestamps at or before cutoff; entries are in ascending order.
func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return stamps
	}
	return append(stamps[:0], stamps[i:]...)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
