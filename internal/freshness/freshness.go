// Package freshness decides which feeds need to be re-fetched.
//
// Staleness is a property of a URL, not of a subscription: every feed
// record sharing a URL is fresh as soon as any of them was fetched inside
// the window. The decision is computed from persisted last_fetched values at
// call time, so it holds across process instances.
package freshness

import (
	"context"
	"fmt"
	"time"

	"rss_digest/internal/model"
)

// DefaultWindow is how long a successful fetch keeps a URL fresh.
const DefaultWindow = 3 * time.Hour

// Store is the subset of storage the cache reads.
type Store interface {
	LatestFetchByURL(ctx context.Context, urls []string) (map[string]time.Time, error)
}

// Partition splits requested feeds into those served from storage and those
// needing a refetch. Input order is preserved within each side.
type Partition struct {
	Fresh []model.Feed
	Stale []model.Feed
}

// Cache classifies feeds against a shared freshness window.
type Cache struct {
	store  Store
	window time.Duration
	now    func() time.Time
}

// New creates a Cache. A non-positive window falls back to DefaultWindow.
func New(store Store, window time.Duration) *Cache {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Cache{store: store, window: window, now: time.Now}
}

// SetClock overrides the time source.
func (c *Cache) SetClock(now func() time.Time) {
	c.now = now
}

// Window returns the configured freshness window.
func (c *Cache) Window() time.Duration {
	return c.window
}

// Cutoff returns the instant at or before which a fetch is stale.
func (c *Cache) Cutoff() time.Time {
	return c.now().Add(-c.window)
}

// Classify partitions feeds by the most recent fetch of their URL.
func (c *Cache) Classify(ctx context.Context, feeds []model.Feed) (Partition, error) {
	var p Partition
	if len(feeds) == 0 {
		return p, nil
	}

	seen := make(map[string]bool, len(feeds))
	urls := make([]string, 0, len(feeds))
	for _, f := range feeds {
		if !seen[f.URL] {
			seen[f.URL] = true
			urls = append(urls, f.URL)
		}
	}

	latest, err := c.store.LatestFetchByURL(ctx, urls)
	if err != nil {
		return p, fmt.Errorf("latest fetch by url: %w", err)
	}

	now := c.now()
	for _, f := range feeds {
		last, ok := latest[f.URL]
		if ok && IsFresh(last, now, c.window) {
			p.Fresh = append(p.Fresh, f)
		} else {
			p.Stale = append(p.Stale, f)
		}
	}
	return p, nil
}

// IsFresh reports whether a fetch at last is still inside window at now.
// A fetch exactly window old is stale.
func IsFresh(last, now time.Time, window time.Duration) bool {
	return now.Sub(last) < window
}
