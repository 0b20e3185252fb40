package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const initialBackoff = 100 * time.Millisecond

// Limiter wraps rate.Limiter with exponential backoff after the upstream
// reports throttling
type Limiter struct {
	limiter   *rate.Limiter
	name      string
	mu        sync.Mutex
	backoff   time.Duration
	maxWait   time.Duration
	penalized bool
}

// NewLimiter creates a new rate limiter
// perMinute specifies the number of requests allowed per minute; zero or
// less disables limiting
func NewLimiter(name string, perMinute int) *Limiter {
	l := &Limiter{
		name:    name,
		backoff: initialBackoff,
		maxWait: 2 * time.Minute,
	}
	if perMinute <= 0 {
		l.limiter = rate.NewLimiter(rate.Inf, 1)
		return l
	}

	// Convert per-minute rate to per-second
	rps := float64(perMinute) / 60.0
	// Allow burst of up to 5 requests or 1/10th of per-minute limit
	burst := perMinute / 10
	if burst < 1 {
		burst = 1
	}
	if burst > 5 {
		burst = 5
	}
	l.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	return l
}

// Wait blocks for the current backoff, if any, then until a token is
// available or the context is cancelled
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	delay := time.Duration(0)
	if l.penalized {
		delay = l.backoff
	}
	l.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return l.limiter.Wait(ctx)
}

// Allow reports whether an event may happen now
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// SignalRateLimited should be called when a 429 response is received
// It applies exponential backoff
func (l *Limiter) SignalRateLimited() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.penalized = true
	l.backoff *= 2
	if l.backoff > l.maxWait {
		l.backoff = l.maxWait
	}
}

// ResetBackoff resets the backoff duration after successful request
func (l *Limiter) ResetBackoff() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.penalized = false
	l.backoff = initialBackoff
}

// GetBackoff returns the current backoff duration
func (l *Limiter) GetBackoff() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.backoff
}

// Name returns the limiter name
func (l *Limiter) Name() string {
	return l.name
}
