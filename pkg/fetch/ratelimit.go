package fetch

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// RateLimiter enforces a per-host politeness delay between the end of one request and
// the start of the next. Wait holds the host's slot; Done releases it once the request
// has completed and starts the delay from that moment.
type RateLimiter struct {
	next         map[string]time.Time
	delays       map[string]time.Duration
	mu           sync.Mutex
	defaultDelay time.Duration
	log          *logrus.Entry
}

// NewRateLimiter creates a RateLimiter; defaultDelay applies when Wait gets a non-positive delay
func NewRateLimiter(defaultDelay time.Duration, log *logrus.Entry) *RateLimiter {
	return &RateLimiter{
		next:         make(map[string]time.Time),
		delays:       make(map[string]time.Duration),
		defaultDelay: defaultDelay,
		log:          log,
	}
}

// Wait blocks until the host's next slot. The first request to a host never waits.
// Concurrent callers are spaced by the delay even before Done is called.
// Returns ctx.Err() if the context ends first; the reserved slot is kept either way.
func (rl *RateLimiter) Wait(ctx context.Context, host string, delay time.Duration) error {
	if delay <= 0 {
		delay = rl.defaultDelay
	}

	rl.mu.Lock()
	now := time.Now()
	slot := now
	if reserved, ok := rl.next[host]; ok && reserved.After(now) {
		slot = reserved
	}
	rl.next[host] = slot.Add(jitter(delay))
	rl.delays[host] = delay
	rl.mu.Unlock()

	wait := slot.Sub(now)
	if wait <= 0 {
		return ctx.Err()
	}
	rl.log.WithFields(logrus.Fields{"host": host, "sleep": wait, "delay": delay}).Debug("Politeness delay")

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done records that a request to host has finished. The next Wait for the host
// returns no earlier than the last delay after this call.
func (rl *RateLimiter) Done(host string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delay, ok := rl.delays[host]
	if !ok {
		delay = rl.defaultDelay
	}
	earliest := time.Now().Add(jitter(delay))
	if earliest.After(rl.next[host]) {
		rl.next[host] = earliest
	}
}
