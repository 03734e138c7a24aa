package feed

import (
	"context"
	"net/url"
	"sync"
	"time"
)

// Politeness settings for parallel runs.
const (
	// maxConcurrencyPerDomain limits parallel requests to any single host.
	maxConcurrencyPerDomain = 2
	// delayBetweenDomainRequests is the minimum delay between requests to
	// the same host.
	delayBetweenDomainRequests = 500 * time.Millisecond
)

// domainLimiter controls rate limiting per domain to avoid overwhelming hosts
// when feeds are fetched in parallel.
type domainLimiter struct {
	mu          sync.Mutex
	semaphores  map[string]chan struct{}
	lastRequest map[string]time.Time
}

func newDomainLimiter() *domainLimiter {
	return &domainLimiter{
		semaphores:  make(map[string]chan struct{}),
		lastRequest: make(map[string]time.Time),
	}
}

// acquire gets a slot for the domain, blocking if necessary. It also enforces
// the minimum delay between requests to the same domain.
func (dl *domainLimiter) acquire(ctx context.Context, domain string) error {
	dl.mu.Lock()
	sem, ok := dl.semaphores[domain]
	if !ok {
		sem = make(chan struct{}, maxConcurrencyPerDomain)
		dl.semaphores[domain] = sem
	}
	dl.mu.Unlock()

	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	dl.mu.Lock()
	lastReq := dl.lastRequest[domain]
	dl.mu.Unlock()

	if !lastReq.IsZero() {
		elapsed := time.Since(lastReq)
		if elapsed < delayBetweenDomainRequests {
			select {
			case <-time.After(delayBetweenDomainRequests - elapsed):
			case <-ctx.Done():
				// Release the semaphore on cancel.
				<-sem
				return ctx.Err()
			}
		}
	}

	return nil
}

// release returns a slot for the domain and records the request time.
func (dl *domainLimiter) release(domain string) {
	dl.mu.Lock()
	defer dl.mu.Unlock()

	dl.lastRequest[domain] = time.Now()
	if sem, ok := dl.semaphores[domain]; ok {
		<-sem
	}
}

// extractDomain gets the host from a URL.
func extractDomain(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil {
		return feedURL // fallback to full URL
	}
	return u.Host
}
