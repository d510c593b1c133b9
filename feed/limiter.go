package feed

import (
	"context"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// domainLimiter bounds parallel requests per host and spaces out their
// starts.
type domainLimiter struct {
	perDomain int64
	delay     time.Duration

	mu    sync.Mutex
	hosts map[string]*hostLimit
}

type hostLimit struct {
	slots *semaphore.Weighted
	// pace is nil when no delay is configured.
	pace *rate.Limiter
}

func newDomainLimiter(perDomain int, delay time.Duration) *domainLimiter {
	if perDomain < 1 {
		perDomain = 1
	}
	return &domainLimiter{
		perDomain: int64(perDomain),
		delay:     delay,
		hosts:     make(map[string]*hostLimit),
	}
}

func (dl *domainLimiter) host(domain string) *hostLimit {
	dl.mu.Lock()
	defer dl.mu.Unlock()

	h, ok := dl.hosts[domain]
	if !ok {
		h = &hostLimit{slots: semaphore.NewWeighted(dl.perDomain)}
		if dl.delay > 0 {
			h.pace = rate.NewLimiter(rate.Every(dl.delay), 1)
		}
		dl.hosts[domain] = h
	}
	return h
}

// acquire gets a slot for the domain, blocking if necessary. Request starts
// to one domain are at least delay apart; each waiter reserves its own
// token, so concurrent callers never share a start time.
func (dl *domainLimiter) acquire(ctx context.Context, domain string) error {
	h := dl.host(domain)
	if err := h.slots.Acquire(ctx, 1); err != nil {
		return err
	}
	if h.pace != nil {
		if err := h.pace.Wait(ctx); err != nil {
			h.slots.Release(1)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}
	}
	return nil
}

// release returns a slot for the domain.
func (dl *domainLimiter) release(domain string) {
	dl.host(domain).slots.Release(1)
}

// extractDomain gets the host from a URL.
func extractDomain(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Host == "" {
		return feedURL
	}
	return u.Host
}
