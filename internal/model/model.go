// Package model defines the domain types used across the application.
package model

import "time"

// Feed represents one account's subscription to an RSS/Atom URL.
// Display metadata comes from the most recent successful fetch.
type Feed struct {
	ID          int64
	Owner       string
	URL         string
	Title       string
	Description string
	Link        string
	Image       string
	Language    string
	LastFetched *time.Time
	CreatedAt   time.Time
}

// DisplayName returns the feed title, falling back to its URL.
func (f Feed) DisplayName() string {
	if f.Title != "" {
		return f.Title
	}
	return f.URL
}

// FeedMeta is the feed-level metadata carried by a parsed document.
type FeedMeta struct {
	Title       string
	Description string
	Link        string
	Image       string
	Language    string
}

// Article is a normalized feed item. GUID is the deduplication key and is
// shared by every feed that syndicates the same item.
type Article struct {
	GUID       string
	Title      string
	Link       string
	Content    string
	Summary    string
	Author     string
	Categories []string
	Image      string
	PubDate    time.Time
}

// StoredArticle is an Article together with its feed attribution.
// PrimaryFeed is always a member of SourceFeeds.
type StoredArticle struct {
	Article
	PrimaryFeed int64
	SourceFeeds []int64
	// FeedTitle is the title of the feed the article is presented under.
	FeedTitle string
	CreatedAt time.Time
}

// SourceCount is the number of feeds that produced the article.
func (a StoredArticle) SourceCount() int {
	return len(a.SourceFeeds)
}

// Draft is the structured result produced by the generation gateway.
type Draft struct {
	Titles           []string `json:"titles" validate:"len=5,dive,required"`
	Subjects         []string `json:"subjects" validate:"len=5,dive,required"`
	Body             string   `json:"body" validate:"required"`
	TopAnnouncements []string `json:"top_announcements" validate:"len=5,dive,required"`
	AdditionalInfo   string   `json:"additional_info,omitempty"`
}

// Newsletter is a persisted generation result.
type Newsletter struct {
	ID             string
	Owner          string
	FeedIDs        []int64
	Start          time.Time
	End            time.Time
	Draft          Draft
	ArticleCount   int
	RefreshedFeeds int
	FailedFeeds    int
	CreatedAt      time.Time
}

// Settings holds per-account generation preferences.
type Settings struct {
	Owner        string
	Tone         string
	Audience     string
	Language     string
	Instructions string
	UpdatedAt    time.Time
}

// DefaultSettings returns the settings used when an account has none stored.
func DefaultSettings(owner string) Settings {
	return Settings{
		Owner:    owner,
		Tone:     "informative",
		Audience: "general readers",
		Language: "English",
	}
}

// RuleKind selects how a keyword rule affects an article.
type RuleKind string

// Rule kinds.
const (
	RuleInclude   RuleKind = "include"
	RuleExclude   RuleKind = "exclude"
	RuleIncludeRe RuleKind = "include_re"
	RuleExcludeRe RuleKind = "exclude_re"
)

// RuleScope selects which article text a rule is matched against.
type RuleScope string

// Rule scopes.
const (
	ScopeTitle   RuleScope = "title"
	ScopeContent RuleScope = "content"
	ScopeAll     RuleScope = "all"
)

// Rule narrows a generation request by keyword or pattern.
type Rule struct {
	Kind  RuleKind  `json:"kind" validate:"oneof=include exclude include_re exclude_re"`
	Scope RuleScope `json:"scope" validate:"omitempty,oneof=title content all"`
	Value string    `json:"value" validate:"required"`
}

// IsRegex reports whether the rule value is a regular expression.
func (r Rule) IsRegex() bool {
	return r.Kind == RuleIncludeRe || r.Kind == RuleExcludeRe
}

// IsInclude reports whether the rule selects rather than vetoes.
func (r Rule) IsInclude() bool {
	return r.Kind == RuleInclude || r.Kind == RuleIncludeRe
}
