// Package ratelimit throttles requests per endpoint. OKX applies its REST
// limits to each endpoint separately, so every endpoint gets its own token
// bucket created on first use.
package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter provides per-endpoint rate limiting.
type RateLimiter struct {
	mu        sync.RWMutex
	endpoints map[string]*rate.Limiter
	requests  int
	period    time.Duration
	metrics   *Metrics
}

// Metrics tracks statistics about rate limiter usage.
type Metrics struct {
	totalRequests   atomic.Int64
	allowedRequests atomic.Int64
	deniedRequests  atomic.Int64
	waited          atomic.Int64
}

// New creates a RateLimiter allowing requests per period on each endpoint.
func New(requests int, period time.Duration) *RateLimiter {
	return &RateLimiter{
		endpoints: make(map[string]*rate.Limiter),
		requests:  requests,
		period:    period,
		metrics:   &Metrics{},
	}
}

func limitFor(requests int, period time.Duration) rate.Limit {
	return rate.Limit(float64(requests) / period.Seconds())
}

// Wait blocks until the endpoint's bucket allows a request or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context, endpoint string) error {
	r.metrics.totalRequests.Add(1)
	limiter := r.endpoint(endpoint)

	if limiter.Tokens() < 1 {
		r.metrics.waited.Add(1)
	}
	if err := limiter.Wait(ctx); err != nil {
		r.metrics.deniedRequests.Add(1)
		return err
	}
	r.metrics.allowedRequests.Add(1)
	return nil
}

// SetEndpointLimit overrides the limit of one endpoint.
func (r *RateLimiter) SetEndpointLimit(endpoint string, requests int, period time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limiter, ok := r.endpoints[endpoint]; ok {
		limiter.SetLimit(limitFor(requests, period))
		limiter.SetBurst(requests)
		return
	}
	r.endpoints[endpoint] = rate.NewLimiter(limitFor(requests, period), requests)
}

func (r *RateLimiter) endpoint(endpoint string) *rate.Limiter {
	r.mu.RLock()
	limiter, ok := r.endpoints[endpoint]
	r.mu.RUnlock()
	if ok {
		return limiter
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if limiter, ok := r.endpoints[endpoint]; ok {
		return limiter
	}
	limiter = rate.NewLimiter(limitFor(r.requests, r.period), r.requests)
	r.endpoints[endpoint] = limiter
	return limiter
}

// Metrics returns a snapshot of the current rate limiter statistics.
func (r *RateLimiter) Metrics() MetricsSnapshot {
	r.mu.RLock()
	endpoints := len(r.endpoints)
	r.mu.RUnlock()

	return MetricsSnapshot{
		TotalRequests:   r.metrics.totalRequests.Load(),
		AllowedRequests: r.metrics.allowedRequests.Load(),
		DeniedRequests:  r.metrics.deniedRequests.Load(),
		Waited:          r.metrics.waited.Load(),
		Endpoints:       endpoints,
	}
}

// MetricsSnapshot is a point-in-time capture of rate limiter statistics.
type MetricsSnapshot struct {
	TotalRequests   int64
	AllowedRequests int64
	DeniedRequests  int64
	// Waited counts requests that found their bucket empty.
	Waited    int64
	Endpoints int
}
