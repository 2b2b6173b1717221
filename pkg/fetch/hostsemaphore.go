package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"portal-harvester/pkg/utils"
)

// HostSemaphorePool bounds in-flight requests per host. One pool is shared by every
// aggregation source so the limit holds across sitemap, probe and seed traffic.
type HostSemaphorePool struct {
	sems           map[string]*semaphore.Weighted
	mu             sync.Mutex
	limit          int64
	acquireTimeout time.Duration
	log            *logrus.Entry
}

// NewHostSemaphorePool creates a pool allowing maxPerHost concurrent requests per host.
// A positive acquireTimeout bounds each Acquire and yields ErrSemaphoreTimeout.
func NewHostSemaphorePool(maxPerHost int, acquireTimeout time.Duration, log *logrus.Entry) *HostSemaphorePool {
	limit := int64(maxPerHost)
	if limit <= 0 {
		limit = 2
		log.Warnf("max_concurrent_per_host invalid or zero, defaulting to %d", limit)
	}
	return &HostSemaphorePool{
		sems:           make(map[string]*semaphore.Weighted),
		limit:          limit,
		acquireTimeout: acquireTimeout,
		log:            log,
	}
}

func (p *HostSemaphorePool) semFor(host string) *semaphore.Weighted {
	p.mu.Lock()
	defer p.mu.Unlock()
	sem, ok := p.sems[host]
	if !ok {
		sem = semaphore.NewWeighted(p.limit)
		p.sems[host] = sem
		p.log.WithFields(logrus.Fields{"host": host, "limit": p.limit}).Debug("Created host semaphore")
	}
	return sem
}

// Acquire takes one permit for host, blocking until one frees up, the acquire timeout
// passes or ctx ends.
func (p *HostSemaphorePool) Acquire(ctx context.Context, host string) error {
	sem := p.semFor(host)
	acquireCtx := ctx
	if p.acquireTimeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, p.acquireTimeout)
		defer cancel()
	}
	if err := sem.Acquire(acquireCtx, 1); err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: host %s after %v", utils.ErrSemaphoreTimeout, host, p.acquireTimeout)
		}
		return err
	}
	return nil
}

// Release returns one permit for host
func (p *HostSemaphorePool) Release(host string) {
	p.mu.Lock()
	sem, ok := p.sems[host]
	p.mu.Unlock()
	if !ok {
		p.log.Errorf("Release called for unknown host: %s", host)
		return
	}
	sem.Release(1)
}

// Len returns the number of tracked hosts
func (p *HostSemaphorePool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sems)
}
