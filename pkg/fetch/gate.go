package fetch

import (
	"context"

	"golang.org/x/time/rate"
)

// Gate admits aggregation requests: a per-host permit from the pool, then a token from
// the shared rate limiter. Every concurrent frontier source passes through one Gate.
type Gate struct {
	limiter *rate.Limiter
	hosts   *HostSemaphorePool
}

// NewGate creates a Gate allowing rps requests per second overall (burst 1).
// A non-positive rps disables the rate limit; a nil pool disables per-host limits.
func NewGate(rps float64, hosts *HostSemaphorePool) *Gate {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &Gate{limiter: rate.NewLimiter(limit, 1), hosts: hosts}
}

// Enter blocks until the request may proceed. The returned release must be called
// when the request completes.
func (g *Gate) Enter(ctx context.Context, host string) (release func(), err error) {
	if g.hosts == nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return func() {}, nil
	}
	if err := g.hosts.Acquire(ctx, host); err != nil {
		return nil, err
	}
	if err := g.limiter.Wait(ctx); err != nil {
		g.hosts.Release(host)
		return nil, err
	}
	return func() { g.hosts.Release(host) }, nil
}
