// Package ratelimit spaces out requests to the same host with token buckets.
// A request holds its host until Done, and the next one waits a full interval
// from that point, so slow responses never shrink the gap.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/rpa-crawler/internal/telemetry"
)

// Limiter manages per-host rate limits.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// Config holds rate limiter configuration.
type Config struct {
	// Interval is the minimum gap between the end of one request to a host
	// and the start of the next. Zero or negative disables pacing.
	Interval time.Duration
	Burst    int
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	limit := rate.Inf
	if cfg.Interval > 0 {
		limit = rate.Every(cfg.Interval)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

// Wait blocks until a token is available for the host of rawURL.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := hostOf(rawURL)
	limiter := l.forHost(host)

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	// Immediate grants are not delays.
	if d := time.Since(start); d > time.Millisecond {
		telemetry.ObserveRateLimitDelay(host, d)
	}
	return nil
}

// Done marks the request to rawURL as finished. The host's bucket is emptied
// at this instant so the next Wait blocks for a full interval.
func (l *Limiter) Done(rawURL string) {
	if l.limit == rate.Inf {
		return
	}
	host := hostOf(rawURL)
	drained := rate.NewLimiter(l.limit, l.burst)
	drained.AllowN(time.Now(), l.burst)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.limiters[host] = drained
}

func (l *Limiter) forHost(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[host] = limiter
	}
	return limiter
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return u.Hostname()
}
