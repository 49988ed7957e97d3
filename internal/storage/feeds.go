package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"rss_digest/internal/model"
)

const feedColumns = `id, owner, url, title, description, link, image, language, last_fetched, created_at`

// CreateFeed inserts a new feed and populates its ID and CreatedAt.
func (s *SQLite) CreateFeed(ctx context.Context, feed *model.Feed) error {
	now := formatTime(time.Now())
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO feeds (owner, url, title, description, link, image, language, last_fetched, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		feed.Owner, feed.URL, feed.Title, feed.Description, feed.Link, feed.Image, feed.Language,
		nullTime(feed.LastFetched), now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert feed %q: %w", feed.URL, ErrDuplicate)
		}
		return fmt.Errorf("insert feed: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	feed.ID = id
	feed.CreatedAt = parseTime(now)
	return nil
}

// GetFeed returns a single feed by its ID.
func (s *SQLite) GetFeed(ctx context.Context, id int64) (*model.Feed, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+feedColumns+` FROM feeds WHERE id = ?`, id)
	f, err := scanFeed(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("feed %d: %w", id, ErrNotFound)
	}
	return f, err
}

// ListFeeds returns all feeds belonging to the given owner.
func (s *SQLite) ListFeeds(ctx context.Context, owner string) ([]model.Feed, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+feedColumns+` FROM feeds WHERE owner = ? ORDER BY id`, owner,
	)
	if err != nil {
		return nil, fmt.Errorf("query feeds: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanFeeds(rows)
}

// GetFeeds returns the feeds among ids that belong to owner, ordered by ID.
// Unknown or foreign IDs are silently skipped.
func (s *SQLite) GetFeeds(ctx context.Context, owner string, ids []int64) ([]model.Feed, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := append([]any{owner}, int64Args(ids)...)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+feedColumns+` FROM feeds WHERE owner = ? AND id IN (`+placeholders(len(ids))+`) ORDER BY id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query feeds by id: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanFeeds(rows)
}

// LatestFetchByURL returns, for each URL that has ever been fetched, the most
// recent last_fetched across every feed record sharing that URL regardless of
// owner. URLs that were never fetched are absent from the map.
func (s *SQLite) LatestFetchByURL(ctx context.Context, urls []string) (map[string]time.Time, error) {
	out := make(map[string]time.Time, len(urls))
	if len(urls) == 0 {
		return out, nil
	}
	args := make([]any, len(urls))
	for i, u := range urls {
		args[i] = u
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT url, MAX(last_fetched) FROM feeds
		 WHERE url IN (`+placeholders(len(urls))+`) AND last_fetched IS NOT NULL
		 GROUP BY url`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query latest fetch: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var url, last string
		if err := rows.Scan(&url, &last); err != nil {
			return nil, fmt.Errorf("scan latest fetch: %w", err)
		}
		out[url] = parseTime(last)
	}
	return out, rows.Err()
}

// ListStaleFeeds returns one representative feed (the oldest record) per URL
// whose most recent fetch is at or before cutoff, or that was never fetched.
func (s *SQLite) ListStaleFeeds(ctx context.Context, cutoff time.Time) ([]model.Feed, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+feedColumns+` FROM feeds
		 WHERE id IN (
		     SELECT MIN(id) FROM feeds GROUP BY url
		     HAVING MAX(last_fetched) IS NULL OR MAX(last_fetched) <= ?
		 )
		 ORDER BY id`,
		formatTime(cutoff),
	)
	if err != nil {
		return nil, fmt.Errorf("query stale feeds: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanFeeds(rows)
}

// MarkFetched stores fresh display metadata and last_fetched for a feed.
// The update is skipped when the stored last_fetched is already newer than
// at, which keeps last_fetched monotonically non-decreasing.
func (s *SQLite) MarkFetched(ctx context.Context, feedID int64, meta model.FeedMeta, at time.Time) error {
	ts := formatTime(at)
	res, err := s.db.ExecContext(ctx,
		`UPDATE feeds SET title = ?, description = ?, link = ?, image = ?, language = ?, last_fetched = ?
		 WHERE id = ? AND (last_fetched IS NULL OR last_fetched <= ?)`,
		meta.Title, meta.Description, meta.Link, meta.Image, meta.Language, ts, feedID, ts,
	)
	if err != nil {
		return fmt.Errorf("mark fetched: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		if _, err := s.GetFeed(ctx, feedID); err != nil {
			return err
		}
	}
	return nil
}

// DeleteFeed removes a feed and, in the same transaction, its references
// from every article, purging articles left without a source.
func (s *SQLite) DeleteFeed(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := removeFeedReference(ctx, tx, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM feeds WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete feed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("feed %d: %w", id, ErrNotFound)
	}
	return tx.Commit()
}

func scanFeed(row scannable) (*model.Feed, error) {
	var f model.Feed
	var lastFetched sql.NullString
	var created string
	err := row.Scan(&f.ID, &f.Owner, &f.URL, &f.Title, &f.Description, &f.Link, &f.Image, &f.Language,
		&lastFetched, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan feed: %w", err)
	}
	if lastFetched.Valid {
		t := parseTime(lastFetched.String)
		f.LastFetched = &t
	}
	f.CreatedAt = parseTime(created)
	return &f, nil
}

func scanFeeds(rows *sql.Rows) ([]model.Feed, error) {
	var feeds []model.Feed
	for rows.Next() {
		f, err := scanFeed(rows)
		if err != nil {
			return nil, err
		}
		feeds = append(feeds, *f)
	}
	return feeds, rows.Err()
}
