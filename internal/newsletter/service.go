// Package newsletter is the application service behind the HTTP API and the
// Telegram bot: subscriptions, article collection, drafting and the
// persisted results.
package newsletter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"rss_digest/internal/fetcher"
	"rss_digest/internal/model"
	"rss_digest/internal/prompt"
	"rss_digest/internal/refresh"
	"rss_digest/internal/storage"
)

const (
	// DefaultPeriod is the date range used when a request names none.
	DefaultPeriod     = 7 * 24 * time.Hour
	defaultGenTimeout = 5 * time.Minute
)

// ErrInvalidFeed wraps the reason a URL cannot be subscribed to.
var ErrInvalidFeed = errors.New("invalid feed")

// Checker validates a feed URL without persisting anything.
type Checker interface {
	Check(ctx context.Context, url string) error
}

// Collector assembles the article set of a request.
type Collector interface {
	Collect(ctx context.Context, req refresh.Request) (*refresh.Result, error)
}

// Generator drafts a newsletter from a prompt.
type Generator interface {
	Generate(ctx context.Context, p prompt.Prompt) (*model.Draft, error)
	Stream(ctx context.Context, p prompt.Prompt, onPartial func(model.Draft)) (*model.Draft, error)
}

// Store is the persistence the service needs.
type Store interface {
	storage.NewsletterStore
	CreateFeed(ctx context.Context, feed *model.Feed) error
	GetFeed(ctx context.Context, id int64) (*model.Feed, error)
	ListFeeds(ctx context.Context, owner string) ([]model.Feed, error)
	DeleteFeed(ctx context.Context, id int64) error
}

// Request describes one newsletter generation.
type Request struct {
	// FeedIDs selects feeds; empty means every feed of the owner.
	FeedIDs []int64
	Start   time.Time
	End     time.Time
	Limit   int
	Rules   []model.Rule
}

// Result is a persisted newsletter together with how its articles were
// gathered.
type Result struct {
	Newsletter *model.Newsletter
	Collected  *refresh.Result
}

// Service implements the account-facing operations.
type Service struct {
	store     Store
	checker   Checker
	collector Collector
	generator Generator
	log       *slog.Logger
	timeout   time.Duration
	now       func() time.Time
}

// New creates a Service.
func New(store Store, checker Checker, collector Collector, generator Generator, log *slog.Logger) *Service {
	return &Service{
		store:     store,
		checker:   checker,
		collector: collector,
		generator: generator,
		log:       log,
		timeout:   defaultGenTimeout,
		now:       time.Now,
	}
}

// SetTimeout overrides the overall budget of one generation.
func (s *Service) SetTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// ValidateFeed reports why url cannot be subscribed to, or nil.
func (s *Service) ValidateFeed(ctx context.Context, url string) error {
	if err := s.checker.Check(ctx, strings.TrimSpace(url)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidFeed, err)
	}
	return nil
}

// Subscribe validates url and records a subscription for owner. Metadata
// stays empty until the first refresh.
func (s *Service) Subscribe(ctx context.Context, owner, url string) (*model.Feed, error) {
	url = strings.TrimSpace(url)
	if err := s.ValidateFeed(ctx, url); err != nil {
		return nil, err
	}
	feed := &model.Feed{Owner: owner, URL: url}
	if err := s.store.CreateFeed(ctx, feed); err != nil {
		return nil, fmt.Errorf("create feed: %w", err)
	}
	s.log.Info("feed subscribed", "owner", owner, "feed_id", feed.ID, "url", url)
	return feed, nil
}

// Unsubscribe deletes one of owner's feeds and detaches it from every
// article, purging articles no other feed references.
func (s *Service) Unsubscribe(ctx context.Context, owner string, feedID int64) error {
	if _, err := s.Feed(ctx, owner, feedID); err != nil {
		return err
	}
	if err := s.store.DeleteFeed(ctx, feedID); err != nil {
		return fmt.Errorf("delete feed: %w", err)
	}
	s.log.Info("feed unsubscribed", "owner", owner, "feed_id", feedID)
	return nil
}

// Feeds lists owner's subscriptions.
func (s *Service) Feeds(ctx context.Context, owner string) ([]model.Feed, error) {
	feeds, err := s.store.ListFeeds(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list feeds: %w", err)
	}
	return feeds, nil
}

// Feed returns one of owner's feeds. Feeds of other owners are not found.
func (s *Service) Feed(ctx context.Context, owner string, feedID int64) (*model.Feed, error) {
	feed, err := s.store.GetFeed(ctx, feedID)
	if err != nil {
		return nil, fmt.Errorf("get feed: %w", err)
	}
	if feed.Owner != owner {
		return nil, fmt.Errorf("feed %d: %w", feedID, storage.ErrNotFound)
	}
	return feed, nil
}

// Collect refreshes and gathers the articles of req without drafting.
func (s *Service) Collect(ctx context.Context, owner string, req Request) (*refresh.Result, error) {
	rr, err := s.resolve(ctx, owner, req)
	if err != nil {
		return nil, err
	}
	return s.collector.Collect(ctx, rr)
}

// Generate collects articles, drafts a newsletter in one shot and stores it.
func (s *Service) Generate(ctx context.Context, owner string, req Request) (*Result, error) {
	return s.generate(ctx, owner, req, func(ctx context.Context, p prompt.Prompt) (*model.Draft, error) {
		return s.generator.Generate(ctx, p)
	})
}

// Stream is Generate with incremental draft updates passed to onPartial.
func (s *Service) Stream(ctx context.Context, owner string, req Request, onPartial func(model.Draft)) (*Result, error) {
	return s.generate(ctx, owner, req, func(ctx context.Context, p prompt.Prompt) (*model.Draft, error) {
		return s.generator.Stream(ctx, p, onPartial)
	})
}

type draftFunc func(ctx context.Context, p prompt.Prompt) (*model.Draft, error)

func (s *Service) generate(ctx context.Context, owner string, req Request, draft draftFunc) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rr, err := s.resolve(ctx, owner, req)
	if err != nil {
		return nil, err
	}
	collected, err := s.collector.Collect(ctx, rr)
	if err != nil {
		return nil, err
	}
	if collected.Summary.Failed > 0 {
		s.log.Warn("some feeds failed to refresh", "owner", owner, "count", collected.Summary.Failed)
	}

	settings, err := s.store.GetSettings(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}

	d, err := draft(ctx, prompt.Build(*settings, rr.Start, rr.End, collected.Articles))
	if err != nil {
		return nil, fmt.Errorf("draft newsletter: %w", err)
	}

	n := &model.Newsletter{
		Owner:          owner,
		FeedIDs:        rr.FeedIDs,
		Start:          rr.Start,
		End:            rr.End,
		Draft:          *d,
		ArticleCount:   collected.Count,
		RefreshedFeeds: collected.Summary.Succeeded,
		FailedFeeds:    collected.Summary.Failed,
	}
	if err := s.store.CreateNewsletter(ctx, n); err != nil {
		return nil, fmt.Errorf("create newsletter: %w", err)
	}
	s.log.Info("newsletter generated", "owner", owner, "id", n.ID, "count", collected.Count)
	return &Result{Newsletter: n, Collected: collected}, nil
}

// resolve fills defaults: every feed of owner and the last DefaultPeriod.
func (s *Service) resolve(ctx context.Context, owner string, req Request) (refresh.Request, error) {
	rr := refresh.Request{
		Owner:   owner,
		FeedIDs: req.FeedIDs,
		Start:   req.Start,
		End:     req.End,
		Limit:   req.Limit,
		Rules:   req.Rules,
	}
	if rr.End.IsZero() {
		rr.End = s.now().UTC()
	}
	if rr.Start.IsZero() {
		rr.Start = rr.End.Add(-DefaultPeriod)
	}
	if len(rr.FeedIDs) == 0 {
		feeds, err := s.Feeds(ctx, owner)
		if err != nil {
			return rr, err
		}
		for _, f := range feeds {
			rr.FeedIDs = append(rr.FeedIDs, f.ID)
		}
	}
	return rr, nil
}

// Newsletters lists owner's newsletters, newest first.
func (s *Service) Newsletters(ctx context.Context, owner string) ([]model.Newsletter, error) {
	out, err := s.store.ListNewsletters(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list newsletters: %w", err)
	}
	return out, nil
}

// Newsletter returns one of owner's newsletters.
func (s *Service) Newsletter(ctx context.Context, owner, id string) (*model.Newsletter, error) {
	n, err := s.store.GetNewsletter(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get newsletter: %w", err)
	}
	if n.Owner != owner {
		return nil, fmt.Errorf("newsletter %s: %w", id, storage.ErrNotFound)
	}
	return n, nil
}

// DeleteNewsletter removes one of owner's newsletters.
func (s *Service) DeleteNewsletter(ctx context.Context, owner, id string) error {
	if _, err := s.Newsletter(ctx, owner, id); err != nil {
		return err
	}
	if err := s.store.DeleteNewsletter(ctx, id); err != nil {
		return fmt.Errorf("delete newsletter: %w", err)
	}
	return nil
}

// Settings returns owner's generation settings, defaults when none stored.
func (s *Service) Settings(ctx context.Context, owner string) (*model.Settings, error) {
	st, err := s.store.GetSettings(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	return st, nil
}

// UpdateSettings stores owner's settings.
func (s *Service) UpdateSettings(ctx context.Context, owner string, st model.Settings) (*model.Settings, error) {
	st.Owner = owner
	if err := s.store.PutSettings(ctx, &st); err != nil {
		return nil, fmt.Errorf("put settings: %w", err)
	}
	return &st, nil
}

// ensure the fetcher satisfies Checker.
var _ Checker = (*fetcher.Fetcher)(nil)
