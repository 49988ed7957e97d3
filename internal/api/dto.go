package api

import (
	"time"

	"rss_digest/internal/model"
	"rss_digest/internal/newsletter"
	"rss_digest/internal/refresh"
)

type feedJSON struct {
	ID          int64      `json:"id"`
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Link        string     `json:"link,omitempty"`
	Image       string     `json:"image,omitempty"`
	Language    string     `json:"language,omitempty"`
	LastFetched *time.Time `json:"last_fetched"`
	CreatedAt   time.Time  `json:"created_at"`
}

func toFeedJSON(f model.Feed) feedJSON {
	return feedJSON{
		ID:          f.ID,
		URL:         f.URL,
		Title:       f.Title,
		Description: f.Description,
		Link:        f.Link,
		Image:       f.Image,
		Language:    f.Language,
		LastFetched: f.LastFetched,
		CreatedAt:   f.CreatedAt,
	}
}

type articleJSON struct {
	GUID        string    `json:"guid"`
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	Summary     string    `json:"summary"`
	Author      string    `json:"author,omitempty"`
	Categories  []string  `json:"categories,omitempty"`
	Image       string    `json:"image,omitempty"`
	PubDate     time.Time `json:"pub_date"`
	FeedTitle   string    `json:"feed_title"`
	SourceFeeds []int64   `json:"source_feeds"`
	SourceCount int       `json:"source_count"`
}

func toArticleJSON(a model.StoredArticle) articleJSON {
	return articleJSON{
		GUID:        a.GUID,
		Title:       a.Title,
		Link:        a.Link,
		Summary:     a.Summary,
		Author:      a.Author,
		Categories:  a.Categories,
		Image:       a.Image,
		PubDate:     a.PubDate,
		FeedTitle:   a.FeedTitle,
		SourceFeeds: a.SourceFeeds,
		SourceCount: a.SourceCount(),
	}
}

type failureJSON struct {
	FeedID int64  `json:"feed_id"`
	URL    string `json:"url"`
	Error  string `json:"error"`
}

type summaryJSON struct {
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Ingested  int           `json:"ingested"`
	Failures  []failureJSON `json:"failures,omitempty"`
}

func toSummaryJSON(s refresh.Summary) summaryJSON {
	out := summaryJSON{Succeeded: s.Succeeded, Failed: s.Failed, Ingested: s.Ingested}
	for _, f := range s.Failures() {
		out.Failures = append(out.Failures, failureJSON{FeedID: f.FeedID, URL: f.URL, Error: f.Err.Error()})
	}
	return out
}

type newsletterJSON struct {
	ID             string      `json:"id"`
	FeedIDs        []int64     `json:"feed_ids"`
	Start          time.Time   `json:"start"`
	End            time.Time   `json:"end"`
	Draft          model.Draft `json:"draft"`
	ArticleCount   int         `json:"article_count"`
	RefreshedFeeds int         `json:"refreshed_feeds"`
	FailedFeeds    int         `json:"failed_feeds"`
	CreatedAt      time.Time   `json:"created_at"`
}

func toNewsletterJSON(n model.Newsletter) newsletterJSON {
	return newsletterJSON{
		ID:             n.ID,
		FeedIDs:        n.FeedIDs,
		Start:          n.Start,
		End:            n.End,
		Draft:          n.Draft,
		ArticleCount:   n.ArticleCount,
		RefreshedFeeds: n.RefreshedFeeds,
		FailedFeeds:    n.FailedFeeds,
		CreatedAt:      n.CreatedAt,
	}
}

type resultJSON struct {
	Newsletter newsletterJSON `json:"newsletter"`
	Refresh    summaryJSON    `json:"refresh"`
}

func toResultJSON(r *newsletter.Result) resultJSON {
	return resultJSON{
		Newsletter: toNewsletterJSON(*r.Newsletter),
		Refresh:    toSummaryJSON(r.Collected.Summary),
	}
}

type settingsJSON struct {
	Tone         string     `json:"tone"`
	Audience     string     `json:"audience"`
	Language     string     `json:"language"`
	Instructions string     `json:"instructions"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

func toSettingsJSON(s model.Settings) settingsJSON {
	out := settingsJSON{
		Tone:         s.Tone,
		Audience:     s.Audience,
		Language:     s.Language,
		Instructions: s.Instructions,
	}
	if !s.UpdatedAt.IsZero() {
		out.UpdatedAt = &s.UpdatedAt
	}
	return out
}
