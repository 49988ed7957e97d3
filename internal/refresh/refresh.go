// Package refresh brings stale feeds up to date and assembles the article set
// for a generation request.
//
// A refresh cycle settles every stale feed independently: one unreachable or
// malformed feed is tallied as a failure and never aborts its siblings. The
// only fatal outcome of Collect is an empty article set, reported as
// *NoContentError.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"rss_digest/internal/fetcher"
	"rss_digest/internal/filter"
	"rss_digest/internal/freshness"
	"rss_digest/internal/model"
)

const (
	// DefaultLimit caps the article set of one generation request.
	DefaultLimit       = 100
	defaultConcurrency = 8
	defaultTimeout     = 30 * time.Second
)

// ErrNoContent matches every *NoContentError.
var ErrNoContent = errors.New("no articles in range")

// ErrInvalidRange is returned when a request's start is after its end.
var ErrInvalidRange = errors.New("start is after end")

// NoContentError reports that no stored article satisfies a request after a
// best-effort refresh. Summary tells whether refresh failures contributed.
type NoContentError struct {
	Summary Summary
}

func (e *NoContentError) Error() string {
	return fmt.Sprintf("%s (refreshed %d, failed %d)", ErrNoContent, e.Summary.Succeeded, e.Summary.Failed)
}

// Is makes errors.Is(err, ErrNoContent) hold.
func (e *NoContentError) Is(target error) bool {
	return target == ErrNoContent
}

// Fetcher fetches and normalizes one feed document.
type Fetcher interface {
	FetchAndParse(ctx context.Context, url string) (*fetcher.Feed, error)
}

// Store is the subset of storage the orchestrator needs.
type Store interface {
	freshness.Store
	GetFeeds(ctx context.Context, owner string, ids []int64) ([]model.Feed, error)
	UpsertArticle(ctx context.Context, a model.Article, feedID int64) (*model.StoredArticle, error)
	MarkFetched(ctx context.Context, feedID int64, meta model.FeedMeta, at time.Time) error
	AdoptSiblingArticles(ctx context.Context, feedID int64) (int64, error)
	QueryByFeedsAndRange(ctx context.Context, feedIDs []int64, start, end time.Time, limit int) ([]model.StoredArticle, error)
}

// Options tunes an Orchestrator. Zero values select defaults.
type Options struct {
	Window      time.Duration
	Limit       int
	Concurrency int
	Timeout     time.Duration
	// Rate caps fetch starts per second. Zero means unlimited.
	Rate float64
}

// Outcome is the result of refreshing one feed. Err is nil on success.
type Outcome struct {
	FeedID   int64
	URL      string
	Ingested int
	Err      error
}

// Summary folds the outcomes of one refresh cycle.
type Summary struct {
	Succeeded int
	Failed    int
	Ingested  int
	Outcomes  []Outcome
}

// Failures returns the failed outcomes.
func (s Summary) Failures() []Outcome {
	var out []Outcome
	for _, o := range s.Outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

// Request selects the article set for one generation.
type Request struct {
	Owner   string
	FeedIDs []int64
	Start   time.Time
	End     time.Time
	Limit   int
	Rules   []model.Rule
}

// Result is the article set handed to prompt assembly.
type Result struct {
	Feeds    []model.Feed
	Articles []model.StoredArticle
	Count    int
	Summary  Summary
	Fresh    int
	Stale    int
}

// Orchestrator refreshes stale feeds concurrently and queries the store.
type Orchestrator struct {
	fetcher     Fetcher
	store       Store
	cache       *freshness.Cache
	log         *slog.Logger
	limit       int
	concurrency int
	timeout     time.Duration
	limiter     *rate.Limiter
	inflight    singleflight.Group
	now         func() time.Time
}

// New creates an Orchestrator.
func New(f Fetcher, store Store, log *slog.Logger, opts Options) *Orchestrator {
	o := &Orchestrator{
		fetcher:     f,
		store:       store,
		cache:       freshness.New(store, opts.Window),
		log:         log,
		limit:       opts.Limit,
		concurrency: opts.Concurrency,
		timeout:     opts.Timeout,
		now:         time.Now,
	}
	if o.limit <= 0 {
		o.limit = DefaultLimit
	}
	if o.concurrency <= 0 {
		o.concurrency = defaultConcurrency
	}
	if o.timeout <= 0 {
		o.timeout = defaultTimeout
	}
	if opts.Rate > 0 {
		o.limiter = rate.NewLimiter(rate.Limit(opts.Rate), 1)
	}
	return o
}

// Cache returns the freshness cache used to classify feeds.
func (o *Orchestrator) Cache() *freshness.Cache {
	return o.cache
}

// Refresh fetches and ingests every feed concurrently. It never fails as a
// whole: each feed's error is recorded in its Outcome. Outcomes follow the
// order of feeds; a feed listed twice is refreshed once.
func (o *Orchestrator) Refresh(ctx context.Context, feeds []model.Feed) Summary {
	feeds = uniqueFeeds(feeds)
	outcomes := make([]Outcome, len(feeds))

	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for i, feed := range feeds {
		g.Go(func() error {
			outcomes[i] = o.refreshFeed(ctx, feed)
			return nil
		})
	}
	_ = g.Wait()

	s := Summary{Outcomes: outcomes}
	for _, out := range outcomes {
		if out.Err != nil {
			s.Failed++
			continue
		}
		s.Succeeded++
		s.Ingested += out.Ingested
	}
	return s
}

func (o *Orchestrator) refreshFeed(ctx context.Context, feed model.Feed) Outcome {
	out := Outcome{FeedID: feed.ID, URL: feed.URL}

	doc, err := o.fetch(ctx, feed.URL)
	if err != nil {
		out.Err = err
		o.log.Error("refresh feed", "feed_id", feed.ID, "url", feed.URL, "error", err)
		return out
	}

	fetchedAt := o.now().UTC()
	for _, a := range doc.Articles {
		if _, err := o.store.UpsertArticle(ctx, a, feed.ID); err != nil {
			out.Err = fmt.Errorf("upsert article %s: %w", a.GUID, err)
			o.log.Error("ingest article", "feed_id", feed.ID, "guid", a.GUID, "error", err)
			return out
		}
		out.Ingested++
	}

	if err := o.store.MarkFetched(ctx, feed.ID, doc.Meta, fetchedAt); err != nil {
		out.Err = fmt.Errorf("mark fetched: %w", err)
		o.log.Error("mark fetched", "feed_id", feed.ID, "error", err)
		return out
	}

	o.log.Debug("refreshed feed", "feed_id", feed.ID, "url", feed.URL, "count", out.Ingested)
	return out
}

// fetch shares one in-flight download between all callers asking for the
// same URL, including feeds of other accounts in concurrent requests. The
// download is detached from the caller that started it, so a cancelled
// request only abandons its own wait; it is still bounded by the timeout.
func (o *Orchestrator) fetch(ctx context.Context, url string) (*fetcher.Feed, error) {
	ch := o.inflight.DoChan(url, func() (any, error) {
		base := context.WithoutCancel(ctx)
		if o.limiter != nil {
			if err := o.limiter.Wait(base); err != nil {
				return nil, fmt.Errorf("wait for fetch slot: %w", err)
			}
		}
		fctx, cancel := context.WithTimeout(base, o.timeout)
		defer cancel()
		return o.fetcher.FetchAndParse(fctx, url)
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("fetch %s: %w", url, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*fetcher.Feed), nil
	}
}

// Collect refreshes the stale feeds of a request and returns the matching
// articles, newest first. Refresh failures are reported in Result.Summary;
// an empty set is a *NoContentError.
func (o *Orchestrator) Collect(ctx context.Context, req Request) (*Result, error) {
	if req.Start.After(req.End) {
		return nil, ErrInvalidRange
	}
	rules, err := filter.Compile(req.Rules)
	if err != nil {
		return nil, fmt.Errorf("compile rules: %w", err)
	}

	feeds, err := o.store.GetFeeds(ctx, req.Owner, req.FeedIDs)
	if err != nil {
		return nil, fmt.Errorf("get feeds: %w", err)
	}
	if len(feeds) == 0 {
		return nil, &NoContentError{}
	}

	part, err := o.cache.Classify(ctx, feeds)
	if err != nil {
		return nil, fmt.Errorf("classify feeds: %w", err)
	}

	summary := o.Refresh(ctx, part.Stale)

	ids := make([]int64, 0, len(feeds))
	for _, f := range feeds {
		ids = append(ids, f.ID)
		if _, err := o.store.AdoptSiblingArticles(ctx, f.ID); err != nil {
			return nil, fmt.Errorf("adopt sibling articles: %w", err)
		}
	}

	limit := req.Limit
	if limit <= 0 || limit > o.limit {
		limit = o.limit
	}
	queryLimit := limit
	if len(req.Rules) > 0 {
		queryLimit = 0
	}

	articles, err := o.store.QueryByFeedsAndRange(ctx, ids, req.Start, req.End, queryLimit)
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}

	kept := articles[:0]
	for _, a := range articles {
		if rules.Match(a.Article) {
			kept = append(kept, a)
		}
	}
	if len(kept) > limit {
		kept = kept[:limit]
	}
	if len(kept) == 0 {
		return nil, &NoContentError{Summary: summary}
	}

	return &Result{
		Feeds:    feeds,
		Articles: kept,
		Count:    len(kept),
		Summary:  summary,
		Fresh:    len(part.Fresh),
		Stale:    len(part.Stale),
	}, nil
}

func uniqueFeeds(feeds []model.Feed) []model.Feed {
	seen := make(map[int64]bool, len(feeds))
	out := make([]model.Feed, 0, len(feeds))
	for _, f := range feeds {
		if seen[f.ID] {
			continue
		}
		seen[f.ID] = true
		out = append(out, f)
	}
	return out
}
