// Package scheduler keeps feeds warm by refreshing stale URLs in the
// background, so generation requests mostly hit the freshness cache.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"rss_digest/internal/freshness"
	"rss_digest/internal/model"
	"rss_digest/internal/refresh"
)

// Store lists the feeds a warm cycle should refresh.
type Store interface {
	ListStaleFeeds(ctx context.Context, cutoff time.Time) ([]model.Feed, error)
}

// Refresher refreshes feeds and exposes the freshness window it honours.
type Refresher interface {
	Refresh(ctx context.Context, feeds []model.Feed) refresh.Summary
	Cache() *freshness.Cache
}

var _ Refresher = (*refresh.Orchestrator)(nil)

// Scheduler periodically refreshes one feed per stale URL.
type Scheduler struct {
	store     Store
	refresher Refresher
	log       *slog.Logger
	tick      time.Duration
}

// New creates a Scheduler that runs every interval.
func New(store Store, r Refresher, log *slog.Logger, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = r.Cache().Window()
	}
	return &Scheduler{
		store:     store,
		refresher: r,
		log:       log,
		tick:      interval,
	}
}

// SetTickInterval overrides the cycle interval.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	s.tick = d
}

// Run starts the warm loop, blocking until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.WarmOnce(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.WarmOnce(ctx)
		}
	}
}

// WarmOnce refreshes every URL whose latest fetch is outside the freshness
// window. Per-feed failures are logged and tallied in the summary.
func (s *Scheduler) WarmOnce(ctx context.Context) refresh.Summary {
	if ctx.Err() != nil {
		return refresh.Summary{}
	}

	feeds, err := s.store.ListStaleFeeds(ctx, s.refresher.Cache().Cutoff())
	if err != nil {
		s.log.Error("list stale feeds", "error", err)
		return refresh.Summary{}
	}
	if len(feeds) == 0 {
		s.log.Debug("warm cycle: nothing stale")
		return refresh.Summary{}
	}

	start := time.Now()
	sum := s.refresher.Refresh(ctx, feeds)
	s.log.Info("warm cycle",
		"count", len(feeds),
		"succeeded", sum.Succeeded,
		"failed", sum.Failed,
		"ingested", sum.Ingested,
		"duration", time.Since(start))
	return sum
}
