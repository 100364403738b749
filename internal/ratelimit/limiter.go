package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Upstream identifies one of the upstream feeds we call.
type Upstream string

const (
	// UpstreamPlayer is the live player feed
	UpstreamPlayer Upstream = "player"
	// UpstreamMap is the marker feed
	UpstreamMap Upstream = "map"
)

// Limiter manages outbound rate limits per upstream.
// Limiters are created lazily on first use with the shared rate and burst.
type Limiter struct {
	limiters map[Upstream]*rate.Limiter
	limit    rate.Limit
	burst    int
	mu       sync.Mutex
}

// New creates a Limiter allowing rps requests per second to each upstream.
// A non-positive rps disables limiting.
func New(rps float64, burst int) *Limiter {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[Upstream]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

func (l *Limiter) get(u Upstream) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, exists := l.limiters[u]
	if !exists {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[u] = limiter
	}
	return limiter
}

// Wait blocks until the rate limiter permits a call to the given upstream.
// It returns an error if the context is canceled before the call can proceed
func (l *Limiter) Wait(ctx context.Context, u Upstream) error {
	if l == nil || l.limit == rate.Inf {
		return ctx.Err()
	}
	return l.get(u).Wait(ctx)
}

// Allow reports whether a call to the given upstream may happen now
func (l *Limiter) Allow(u Upstream) bool {
	if l == nil || l.limit == rate.Inf {
		return true
	}
	return l.get(u).Allow()
}
