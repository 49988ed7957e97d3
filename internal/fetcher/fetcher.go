// Package fetcher downloads RSS and Atom documents and normalizes them into
// articles and feed metadata.
package fetcher

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/mmcdole/gofeed"

	"rss_digest/internal/model"
)

const (
	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 5 * 1024 * 1024
	userAgent      = "RSSDigest/1.0 (+newsletter drafting)"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// FetchError reports that a feed origin could not be reached or answered
// with a non-200 status. Timeouts are FetchErrors wrapping
// context.DeadlineExceeded.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError reports a body that is not a recognizable RSS or Atom document.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Feed is a fetched and normalized feed document.
type Feed struct {
	Meta     model.FeedMeta
	Articles []model.Article
}

// Fetcher downloads and parses RSS feeds.
type Fetcher struct {
	client  HTTPClient
	timeout time.Duration
	now     func() time.Time
}

// New creates a Fetcher with the given HTTP client.
func New(client HTTPClient) *Fetcher {
	return &Fetcher{
		client:  client,
		timeout: defaultTimeout,
		now:     time.Now,
	}
}

// SetTimeout overrides the per-fetch timeout.
func (f *Fetcher) SetTimeout(d time.Duration) {
	if d > 0 {
		f.timeout = d
	}
}

// Fetch downloads and parses the document at feedURL without normalizing it.
// It never retries.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, &FetchError{URL: feedURL, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml;q=0.9, */*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: feedURL, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{URL: feedURL, StatusCode: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &FetchError{URL: feedURL, Err: fmt.Errorf("read body: %w", err)}
	}

	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, &ParseError{URL: feedURL, Err: err}
	}
	return feed, nil
}

// FetchAndParse downloads feedURL and returns its metadata and normalized
// articles. Items without a publication date are stamped with the fetch time.
func (f *Fetcher) FetchAndParse(ctx context.Context, feedURL string) (*Feed, error) {
	raw, err := f.Fetch(ctx, feedURL)
	if err != nil {
		return nil, err
	}
	return Normalize(raw, f.now()), nil
}

// Check reports why feedURL cannot be subscribed to, or nil if it serves a
// parseable feed. Nothing is persisted.
func (f *Fetcher) Check(ctx context.Context, feedURL string) error {
	if err := ValidateURL(feedURL); err != nil {
		return err
	}
	_, err := f.Fetch(ctx, feedURL)
	return err
}

// Validate reports whether feedURL serves a parseable RSS or Atom feed.
func (f *Fetcher) Validate(ctx context.Context, feedURL string) bool {
	return f.Check(ctx, feedURL) == nil
}

// ValidateURL checks that raw is an absolute http(s) URL.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid url %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid url %q: missing host", raw)
	}
	return nil
}

// ItemGUID returns the GUID for an RSS item.
// If the item has no GUID, a SHA-256 hash of title+link is used.
func ItemGUID(item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	h := sha256.Sum256([]byte(item.Title + "|" + item.Link))
	return fmt.Sprintf("sha256:%x", h[:16])
}
