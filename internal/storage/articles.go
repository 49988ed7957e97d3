package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"rss_digest/internal/model"
)

const (
	maxUpsertAttempts = 5
	upsertBackoff     = 20 * time.Millisecond
)

const articleColumns = `a.guid, a.title, a.link, a.content, a.summary, a.author, a.categories, a.image,
	a.pub_date, a.primary_feed_id, a.created_at`

// UpsertArticle records that feedID produced a. The first sighting of a GUID
// inserts the article with feedID as its primary feed; later sightings add
// feedID to the source set. Repeating the same (GUID, feed) pair is a no-op.
//
// The insert is attempted first; a uniqueness violation means another feed
// already stored the GUID and the call degrades to the set-union path inside
// the same transaction. Lock contention is retried with a short backoff.
func (s *SQLite) UpsertArticle(ctx context.Context, a model.Article, feedID int64) (*model.StoredArticle, error) {
	if a.GUID == "" {
		return nil, fmt.Errorf("upsert article: empty guid")
	}

	var lastErr error
	for attempt := 0; attempt < maxUpsertAttempts; attempt++ {
		stored, err := s.upsertArticle(ctx, a, feedID)
		if !errors.Is(err, ErrConflict) {
			return stored, err
		}
		lastErr = err
		s.conflicts.Add(1)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(upsertBackoff * time.Duration(attempt+1)):
		}
	}
	return nil, fmt.Errorf("upsert article %q after %d attempts: %w", a.GUID, maxUpsertAttempts, lastErr)
}

func (s *SQLite) upsertArticle(ctx context.Context, a model.Article, feedID int64) (*model.StoredArticle, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, conflictOr(fmt.Errorf("begin tx: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	// A feed deleted concurrently must not be written back into an article.
	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM feeds WHERE id = ?`, feedID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("feed %d: %w", feedID, ErrNotFound)
	}
	if err != nil {
		return nil, conflictOr(fmt.Errorf("check feed: %w", err))
	}

	categories, err := json.Marshal(nonNil(a.Categories))
	if err != nil {
		return nil, fmt.Errorf("encode categories: %w", err)
	}

	now := formatTime(time.Now())
	_, err = tx.ExecContext(ctx,
		`INSERT INTO articles (guid, title, link, content, summary, author, categories, image, pub_date, primary_feed_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.GUID, a.Title, a.Link, a.Content, a.Summary, a.Author, string(categories), a.Image,
		formatTime(a.PubDate), feedID, now,
	)
	if err != nil && !isUniqueViolation(err) {
		return nil, conflictOr(fmt.Errorf("insert article: %w", err))
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO article_sources (article_guid, feed_id, added_at) VALUES (?, ?, ?)`,
		a.GUID, feedID, now,
	); err != nil {
		return nil, conflictOr(fmt.Errorf("add article source: %w", err))
	}

	stored, err := getArticle(ctx, tx, a.GUID)
	if err != nil {
		return nil, conflictOr(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, conflictOr(fmt.Errorf("commit: %w", err))
	}
	return stored, nil
}

// GetArticle returns a stored article by GUID.
func (s *SQLite) GetArticle(ctx context.Context, guid string) (*model.StoredArticle, error) {
	return getArticle(ctx, s.db, guid)
}

func getArticle(ctx context.Context, q querier, guid string) (*model.StoredArticle, error) {
	row := q.QueryRowContext(ctx, `SELECT `+articleColumns+`, '' FROM articles a WHERE a.guid = ?`, guid)
	a, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("article %q: %w", guid, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	sources, err := loadSources(ctx, q, []string{guid})
	if err != nil {
		return nil, err
	}
	a.SourceFeeds = sources[guid]
	return a, nil
}

// QueryByFeedsAndRange returns articles produced by any of feedIDs (as primary
// or additional source) whose publication date lies in [start, end], newest
// first, at most limit of them. A non-positive limit means no cap.
//
// FeedTitle is taken from the earliest of the requested feeds that carries the
// article, so callers see their own subscription's name.
func (s *SQLite) QueryByFeedsAndRange(ctx context.Context, feedIDs []int64, start, end time.Time, limit int) ([]model.StoredArticle, error) {
	if len(feedIDs) == 0 || end.Before(start) {
		return nil, nil
	}
	if limit <= 0 {
		limit = -1
	}

	in := placeholders(len(feedIDs))
	ids := int64Args(feedIDs)

	var args []any
	args = append(args, ids...)
	args = append(args, formatTime(start), formatTime(end))
	args = append(args, ids...)
	args = append(args, ids...)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+articleColumns+`,
		        COALESCE((SELECT COALESCE(NULLIF(f.title, ''), f.url)
		                  FROM article_sources s JOIN feeds f ON f.id = s.feed_id
		                  WHERE s.article_guid = a.guid AND s.feed_id IN (`+in+`)
		                  ORDER BY s.added_at, s.feed_id LIMIT 1), '')
		 FROM articles a
		 WHERE a.pub_date >= ? AND a.pub_date <= ?
		   AND (a.primary_feed_id IN (`+in+`)
		        OR EXISTS (SELECT 1 FROM article_sources s
		                   WHERE s.article_guid = a.guid AND s.feed_id IN (`+in+`)))
		 ORDER BY a.pub_date DESC, a.guid
		 LIMIT ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}

	var articles []model.StoredArticle
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		articles = append(articles, *a)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate articles: %w", err)
	}
	// The connection must be released before the next query.
	_ = rows.Close()

	if len(articles) == 0 {
		return nil, nil
	}

	guids := make([]string, len(articles))
	for i, a := range articles {
		guids[i] = a.GUID
	}
	sources, err := loadSources(ctx, s.db, guids)
	if err != nil {
		return nil, err
	}
	for i := range articles {
		articles[i].SourceFeeds = sources[articles[i].GUID]
	}
	return articles, nil
}

// RemoveFeedReference drops feedID from every article's source set and
// deletes the articles left without any source. It returns the number of
// purged articles.
func (s *SQLite) RemoveFeedReference(ctx context.Context, feedID int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	purged, err := removeFeedReference(ctx, tx, feedID)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return purged, nil
}

func removeFeedReference(ctx context.Context, tx *sql.Tx, feedID int64) (int64, error) {
	if _, err := tx.ExecContext(ctx, `DELETE FROM article_sources WHERE feed_id = ?`, feedID); err != nil {
		return 0, fmt.Errorf("delete article sources: %w", err)
	}

	// Articles that keep other sources get the earliest remaining one as primary.
	if _, err := tx.ExecContext(ctx,
		`UPDATE articles SET primary_feed_id = (
		     SELECT s.feed_id FROM article_sources s
		     WHERE s.article_guid = articles.guid
		     ORDER BY s.added_at, s.feed_id LIMIT 1)
		 WHERE primary_feed_id = ?
		   AND EXISTS (SELECT 1 FROM article_sources s WHERE s.article_guid = articles.guid)`,
		feedID,
	); err != nil {
		return 0, fmt.Errorf("reassign primary feed: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM articles
		 WHERE primary_feed_id = ?
		   AND NOT EXISTS (SELECT 1 FROM article_sources s WHERE s.article_guid = articles.guid)`,
		feedID,
	)
	if err != nil {
		return 0, fmt.Errorf("purge orphaned articles: %w", err)
	}
	purged, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return purged, nil
}

// AdoptSiblingArticles adds feedID to the source set of every article
// produced by another feed record with the same URL. It lets a subscription
// that is fresh only through a sibling's fetch see that fetch's articles.
func (s *SQLite) AdoptSiblingArticles(ctx context.Context, feedID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO article_sources (article_guid, feed_id, added_at)
		 SELECT DISTINCT s.article_guid, me.id, ?
		 FROM feeds me
		 JOIN feeds sib ON sib.url = me.url AND sib.id <> me.id
		 JOIN article_sources s ON s.feed_id = sib.id
		 WHERE me.id = ?`,
		formatTime(time.Now()), feedID,
	)
	if err != nil {
		return 0, fmt.Errorf("adopt sibling articles: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func loadSources(ctx context.Context, q querier, guids []string) (map[string][]int64, error) {
	args := make([]any, len(guids))
	for i, g := range guids {
		args[i] = g
	}
	rows, err := q.QueryContext(ctx,
		`SELECT article_guid, feed_id FROM article_sources
		 WHERE article_guid IN (`+placeholders(len(guids))+`)
		 ORDER BY article_guid, feed_id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query article sources: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string][]int64, len(guids))
	for rows.Next() {
		var guid string
		var feedID int64
		if err := rows.Scan(&guid, &feedID); err != nil {
			return nil, fmt.Errorf("scan article source: %w", err)
		}
		out[guid] = append(out[guid], feedID)
	}
	return out, rows.Err()
}

func scanArticle(row scannable) (*model.StoredArticle, error) {
	var a model.StoredArticle
	var categories, pubDate, created string
	err := row.Scan(&a.GUID, &a.Title, &a.Link, &a.Content, &a.Summary, &a.Author, &categories, &a.Image,
		&pubDate, &a.PrimaryFeed, &created, &a.FeedTitle)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan article: %w", err)
	}
	if err := json.Unmarshal([]byte(categories), &a.Categories); err != nil {
		return nil, fmt.Errorf("decode categories: %w", err)
	}
	a.PubDate = parseTime(pubDate)
	a.CreatedAt = parseTime(created)
	return &a, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
