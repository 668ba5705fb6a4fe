// Package ratelimit paces requests per network host.
package ratelimit

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultInterval is the minimum spacing between two requests to one host.
const DefaultInterval = 1200 * time.Millisecond

// HostLimiter enforces a minimum interval between dispatches to the same
// host. Callers targeting different hosts never wait on each other.
type HostLimiter struct {
	interval time.Duration

	mu    sync.Mutex
	hosts map[string]*rate.Limiter
}

func NewHostLimiter(interval time.Duration) *HostLimiter {
	return &HostLimiter{
		interval: interval,
		hosts:    make(map[string]*rate.Limiter),
	}
}

func (l *HostLimiter) Interval() time.Duration {
	return l.interval
}

// Wait blocks until a request to rawURL's host may be dispatched. URLs
// without a host are not limited. The first request to a host never waits.
func (l *HostLimiter) Wait(ctx context.Context, rawURL string) error {
	if l == nil || l.interval <= 0 {
		return nil
	}
	host := Host(rawURL)
	if host == "" {
		return nil
	}
	return l.limiter(host).Wait(ctx)
}

// Hosts reports how many distinct hosts have been seen.
func (l *HostLimiter) Hosts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hosts)
}

// limiters are never evicted; the host set is bounded by the provider set.
func (l *HostLimiter) limiter(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.hosts[host]
	if !ok {
		lim = rate.NewLimiter(rate.Every(l.interval), 1)
		l.hosts[host] = lim
	}
	return lim
}

// Host extracts the lower-cased host[:port] of rawURL, or "".
func Host(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}
