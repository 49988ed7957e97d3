// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"
	"time"

	"rss_digest/internal/model"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a record violates a uniqueness rule,
	// e.g. the same owner subscribing to the same URL twice.
	ErrDuplicate = errors.New("already exists")
	// ErrConflict marks a write that lost a race with a concurrent writer.
	// Article upserts retry on it internally and never return it unwrapped
	// unless the retry budget is exhausted.
	ErrConflict = errors.New("write conflict")
)

// FeedStore persists feed subscriptions.
type FeedStore interface {
	CreateFeed(ctx context.Context, feed *model.Feed) error
	GetFeed(ctx context.Context, id int64) (*model.Feed, error)
	ListFeeds(ctx context.Context, owner string) ([]model.Feed, error)
	GetFeeds(ctx context.Context, owner string, ids []int64) ([]model.Feed, error)
	LatestFetchByURL(ctx context.Context, urls []string) (map[string]time.Time, error)
	ListStaleFeeds(ctx context.Context, cutoff time.Time) ([]model.Feed, error)
	MarkFetched(ctx context.Context, feedID int64, meta model.FeedMeta, at time.Time) error
	DeleteFeed(ctx context.Context, id int64) error
}

// ArticleStore persists deduplicated articles and their feed attribution.
type ArticleStore interface {
	UpsertArticle(ctx context.Context, a model.Article, feedID int64) (*model.StoredArticle, error)
	GetArticle(ctx context.Context, guid string) (*model.StoredArticle, error)
	QueryByFeedsAndRange(ctx context.Context, feedIDs []int64, start, end time.Time, limit int) ([]model.StoredArticle, error)
	RemoveFeedReference(ctx context.Context, feedID int64) (int64, error)
	AdoptSiblingArticles(ctx context.Context, feedID int64) (int64, error)
}

// NewsletterStore persists generated newsletters and account settings.
type NewsletterStore interface {
	CreateNewsletter(ctx context.Context, n *model.Newsletter) error
	ListNewsletters(ctx context.Context, owner string) ([]model.Newsletter, error)
	GetNewsletter(ctx context.Context, id string) (*model.Newsletter, error)
	DeleteNewsletter(ctx context.Context, id string) error

	GetSettings(ctx context.Context, owner string) (*model.Settings, error)
	PutSettings(ctx context.Context, s *model.Settings) error
}

// Storage is the interface for all persistence operations.
type Storage interface {
	FeedStore
	ArticleStore
	NewsletterStore

	Close() error
}
