package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"rss_digest/internal/model"
)

const newsletterColumns = `id, owner, feed_ids, start_date, end_date, draft, article_count,
	refreshed_feeds, failed_feeds, created_at`

// CreateNewsletter stores a generated newsletter, assigning ID and CreatedAt.
func (s *SQLite) CreateNewsletter(ctx context.Context, n *model.Newsletter) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	feedIDs, err := json.Marshal(n.FeedIDs)
	if err != nil {
		return fmt.Errorf("encode feed ids: %w", err)
	}
	draft, err := json.Marshal(n.Draft)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}

	now := formatTime(time.Now())
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO newsletters (`+newsletterColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.Owner, string(feedIDs), formatTime(n.Start), formatTime(n.End), string(draft), n.ArticleCount,
		n.RefreshedFeeds, n.FailedFeeds, now,
	)
	if err != nil {
		return fmt.Errorf("insert newsletter: %w", err)
	}
	n.CreatedAt = parseTime(now)
	return nil
}

// ListNewsletters returns the owner's newsletters, newest first.
func (s *SQLite) ListNewsletters(ctx context.Context, owner string) ([]model.Newsletter, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+newsletterColumns+` FROM newsletters WHERE owner = ? ORDER BY created_at DESC, rowid DESC`,
		owner,
	)
	if err != nil {
		return nil, fmt.Errorf("query newsletters: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Newsletter
	for rows.Next() {
		n, err := scanNewsletter(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

// GetNewsletter returns a newsletter by ID.
func (s *SQLite) GetNewsletter(ctx context.Context, id string) (*model.Newsletter, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+newsletterColumns+` FROM newsletters WHERE id = ?`, id)
	n, err := scanNewsletter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("newsletter %s: %w", id, ErrNotFound)
	}
	return n, err
}

// DeleteNewsletter removes a newsletter by ID.
func (s *SQLite) DeleteNewsletter(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM newsletters WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete newsletter: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("newsletter %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetSettings returns the owner's settings, or the defaults if none are stored.
func (s *SQLite) GetSettings(ctx context.Context, owner string) (*model.Settings, error) {
	var st model.Settings
	var updated string
	err := s.db.QueryRowContext(ctx,
		`SELECT owner, tone, audience, language, instructions, updated_at FROM settings WHERE owner = ?`, owner,
	).Scan(&st.Owner, &st.Tone, &st.Audience, &st.Language, &st.Instructions, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		def := model.DefaultSettings(owner)
		return &def, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan settings: %w", err)
	}
	st.UpdatedAt = parseTime(updated)
	return &st, nil
}

// PutSettings creates or replaces the owner's settings.
func (s *SQLite) PutSettings(ctx context.Context, st *model.Settings) error {
	now := formatTime(time.Now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (owner, tone, audience, language, instructions, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (owner) DO UPDATE SET
		     tone = excluded.tone, audience = excluded.audience, language = excluded.language,
		     instructions = excluded.instructions, updated_at = excluded.updated_at`,
		st.Owner, st.Tone, st.Audience, st.Language, st.Instructions, now,
	)
	if err != nil {
		return fmt.Errorf("upsert settings: %w", err)
	}
	st.UpdatedAt = parseTime(now)
	return nil
}

func scanNewsletter(row scannable) (*model.Newsletter, error) {
	var n model.Newsletter
	var feedIDs, start, end, draft, created string
	err := row.Scan(&n.ID, &n.Owner, &feedIDs, &start, &end, &draft, &n.ArticleCount,
		&n.RefreshedFeeds, &n.FailedFeeds, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan newsletter: %w", err)
	}
	if err := json.Unmarshal([]byte(feedIDs), &n.FeedIDs); err != nil {
		return nil, fmt.Errorf("decode feed ids: %w", err)
	}
	if err := json.Unmarshal([]byte(draft), &n.Draft); err != nil {
		return nil, fmt.Errorf("decode draft: %w", err)
	}
	n.Start = parseTime(start)
	n.End = parseTime(end)
	n.CreatedAt = parseTime(created)
	return &n, nil
}
