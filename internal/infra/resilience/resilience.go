// Package resilience wraps outbound calls to the document store and the
// agent API: bounded retries, a shared circuit breaker and a concurrency
// cap.
package resilience

import (
	"context"
	"math/rand"
	"time"

	"github.com/sony/gobreaker"
)

// Config tunes the retry and concurrency behaviour of one upstream.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int
}

// RetryWithBackoff runs fn up to 1+MaxRetries times, doubling the wait
// between attempts and adding jitter so concurrent callers spread out.
// Cancellation is checked before every attempt and during every wait.
func RetryWithBackoff(ctx context.Context, cfg Config, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if attempt == cfg.MaxRetries {
			break
		}

		wait := cfg.InitialBackoff << attempt
		if half := int64(wait / 2); half > 0 {
			wait += time.Duration(rand.Int63n(half))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return lastErr
}

// NewCircuitBreaker builds the breaker shared by all calls to one
// upstream. It opens once at least five requests in the window have been
// seen and 60% of them failed, probes again after ten seconds, and lets
// three requests through while half-open.
func NewCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && ratio >= 0.6
		},
	})
}

// Bulkhead caps how many calls may be in flight against one upstream at
// a time, so a slow database cannot absorb every handler goroutine.
type Bulkhead struct {
	slots chan struct{}
}

// NewBulkhead creates a bulkhead admitting up to max concurrent holders.
func NewBulkhead(max int) *Bulkhead {
	return &Bulkhead{slots: make(chan struct{}, max)}
}

// Acquire takes a slot, blocking until one frees up or ctx is done.
func (b *Bulkhead) Acquire(ctx context.Context) error {
	select {
	case b.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a slot taken by Acquire.
func (b *Bulkhead) Release() {
	<-b.slots
}
