package fetch

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// HostLimiter keeps one token bucket per host. A nil *HostLimiter never waits.
type HostLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
	log      *logrus.Entry
}

// NewHostLimiter returns a limiter allowing rps requests per second per host, or nil when rps <= 0
func NewHostLimiter(rps float64, burst int, log *logrus.Entry) *HostLimiter {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &HostLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(rps),
		burst:    burst,
		log:      log,
	}
}

// Wait blocks until a request to host is allowed or ctx is done
func (l *HostLimiter) Wait(ctx context.Context, host string) error {
	if l == nil {
		return nil
	}
	lim := l.forHost(host)
	if lim.Tokens() < 1 {
		l.log.WithField("host", host).Debug("Rate limit applied")
	}
	return lim.Wait(ctx)
}

// Hosts returns the number of hosts seen so far
func (l *HostLimiter) Hosts() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

func (l *HostLimiter) forHost(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[host]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[host] = lim
	}
	return lim
}
