// Package retrylimit provides an adaptive rate limiter and retry loop for
// talking to remote services that throttle or flap.
//
// Example usage:
//
//	lim := retrylimit.NewAdaptiveLimiter(5, 1, 20, 1, 0.5)
//	err := retrylimit.Do(ctx, retrylimit.DefaultConfig(), lim, func(ctx context.Context) error {
//	    return doSomeWork(ctx)
//	})
package retrylimit

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// AdaptiveLimiter is a token bucket whose rate grows on success and shrinks
// when the remote side pushes back.
type AdaptiveLimiter struct {
	mu        sync.Mutex
	limiter   *rate.Limiter
	minLimit  rate.Limit
	maxLimit  rate.Limit
	stepUp    rate.Limit
	stepDown  float64
	cooldown  time.Duration
	lastError time.Time
}

// NewAdaptiveLimiter creates a limiter starting at initial requests per second,
// kept within [min, max]. stepUp is added after a success; stepDown multiplies
// the rate after a throttling error.
func NewAdaptiveLimiter(initial, min, max rate.Limit, stepUp rate.Limit, stepDown float64) *AdaptiveLimiter {
	if min < 1 {
		min = 1
	}
	if initial < min {
		initial = min
	}
	return &AdaptiveLimiter{
		limiter:  rate.NewLimiter(initial, max(1, int(initial))),
		minLimit: min,
		maxLimit: max,
		stepUp:   stepUp,
		stepDown: stepDown,
		cooldown: 10 * time.Second,
	}
}

func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// Success raises the rate unless an error was seen during the cooldown.
func (a *AdaptiveLimiter) Success() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if time.Since(a.lastError) > a.cooldown {
		a.adjust(a.limiter.Limit() + a.stepUp)
	}
}

// Throttled lowers the rate after the remote side signalled overload.
func (a *AdaptiveLimiter) Throttled() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastError = time.Now()
	a.adjust(rate.Limit(float64(a.limiter.Limit()) * a.stepDown))
}

func (a *AdaptiveLimiter) CurrentLimit() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return float64(a.limiter.Limit())
}

func (a *AdaptiveLimiter) adjust(l rate.Limit) {
	l = min(max(l, a.minLimit), a.maxLimit)
	if l != a.limiter.Limit() {
		a.limiter.SetLimit(l)
		a.limiter.SetBurst(max(1, int(l)))
	}
}

// StatusCoder is implemented by errors carrying an HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// StatusError is a minimal StatusCoder for callers that only have a code.
type StatusError struct {
	Code int
	Err  error
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("status %d: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("status %d", e.Code)
}

func (e *StatusError) Unwrap() error   { return e.Err }
func (e *StatusError) StatusCode() int { return e.Code }

type fatalError struct{ err error }

func (f *fatalError) Error() string { return f.err.Error() }
func (f *fatalError) Unwrap() error { return f.err }

// Fatal marks err as not worth retrying.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

func IsFatal(err error) bool {
	var f *fatalError
	return errors.As(err, &f)
}

// Status extracts an HTTP status from err, if any error in its chain carries one.
func Status(err error) (int, bool) {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode(), true
	}
	return 0, false
}

// Throttling reports 429 and 5xx responses.
func Throttling(err error) bool {
	code, ok := Status(err)
	return ok && (code == http.StatusTooManyRequests || code >= 500)
}

// Retryable decides whether an attempt's error should be retried.
// Client errors other than 429 are not.
func Retryable(err error) bool {
	if IsFatal(err) {
		return false
	}
	if code, ok := Status(err); ok && code >= 400 && code < 500 && code != http.StatusTooManyRequests {
		return false
	}
	return true
}

type Config struct {
	// MaxAttempts of 0 retries until the context ends.
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
	OnRetry      func(attempt int, err error, wait time.Duration)
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:  5,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Backoff yields exponentially growing delays.
type Backoff struct {
	cfg  Config
	next time.Duration
}

func NewBackoff(cfg Config) *Backoff {
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay < cfg.InitialDelay {
		cfg.MaxDelay = cfg.InitialDelay
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 2
	}
	return &Backoff{cfg: cfg, next: cfg.InitialDelay}
}

func (b *Backoff) Next() time.Duration {
	d := b.next
	b.next = min(time.Duration(float64(b.next)*b.cfg.Multiplier), b.cfg.MaxDelay)
	if b.cfg.Jitter && d >= 4 {
		d += time.Duration(rand.Int64N(int64(d / 4)))
	}
	return d
}

func (b *Backoff) Reset() { b.next = b.cfg.InitialDelay }

// Sleep waits for d or until ctx ends.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do runs fn until it succeeds, returns a non-retryable error, attempts run
// out, or ctx ends. lim may be nil.
func Do(ctx context.Context, cfg Config, lim *AdaptiveLimiter, fn func(ctx context.Context) error) error {
	backoff := NewBackoff(cfg)
	var err error
	for attempt := 1; cfg.MaxAttempts == 0 || attempt <= cfg.MaxAttempts; attempt++ {
		if lim != nil {
			if werr := lim.Wait(ctx); werr != nil {
				return werr
			}
		}

		if err = fn(ctx); err == nil {
			if lim != nil {
				lim.Success()
			}
			return nil
		}
		if !Retryable(err) {
			return err
		}
		if lim != nil && Throttling(err) {
			lim.Throttled()
		}

		wait := backoff.Next()
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, wait)
		}
		if serr := Sleep(ctx, wait); serr != nil {
			return serr
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", cfg.MaxAttempts, err)
}
