package bot

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"rss_digest/internal/model"
	"rss_digest/internal/newsletter"
	"rss_digest/internal/refresh"
)

func TestParseDigestArgs(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	days := func(n int) time.Time { return now.Add(-time.Duration(n) * 24 * time.Hour) }

	tests := []struct {
		name    string
		args    string
		want    newsletter.Request
		wantErr bool
	}{
		{
			name: "defaults",
			args: "",
			want: newsletter.Request{Start: days(7), End: now},
		},
		{
			name: "days only",
			args: "14",
			want: newsletter.Request{Start: days(14), End: now},
		},
		{
			name: "days and feed ids",
			args: "3 1 2",
			want: newsletter.Request{Start: days(3), End: now, FeedIDs: []int64{1, 2}},
		},
		{
			name: "explicit day suffix and hashed ids",
			args: "#4 30d #5",
			want: newsletter.Request{Start: days(30), End: now, FeedIDs: []int64{4, 5}},
		},
		{
			name: "word rules",
			args: "+go -crypto",
			want: newsletter.Request{Start: days(7), End: now, Rules: []model.Rule{
				{Kind: model.RuleInclude, Scope: model.ScopeAll, Value: "go"},
				{Kind: model.RuleExclude, Scope: model.ScopeAll, Value: "crypto"},
			}},
		},
		{
			name: "scoped regex rules",
			args: "7 -s title +/^Go\\s1\\.\\d+/ -/beta/",
			want: newsletter.Request{Start: days(7), End: now, Rules: []model.Rule{
				{Kind: model.RuleIncludeRe, Scope: model.ScopeTitle, Value: `^Go\s1\.\d+`},
				{Kind: model.RuleExcludeRe, Scope: model.ScopeTitle, Value: "beta"},
			}},
		},
		{name: "zero days", args: "0", wantErr: true},
		{name: "too many days", args: "400d", wantErr: true},
		{name: "bad scope", args: "-s body +go", wantErr: true},
		{name: "missing scope", args: "-s", wantErr: true},
		{name: "bad regex", args: "+/[unclosed/", wantErr: true},
		{name: "stray word", args: "golang", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDigestArgs(tt.args, now)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseDigestArgs() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseIDArg(t *testing.T) {
	tests := []struct {
		name    string
		args    string
		want    int64
		wantErr bool
	}{
		{name: "valid", args: "42", want: 42},
		{name: "hash prefix", args: "#42", want: 42},
		{name: "extra args ignored", args: "7 extra", want: 7},
		{name: "empty", args: "", wantErr: true},
		{name: "not a number", args: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseIDArg(tt.args)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseIDArg() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFormatFeedList(t *testing.T) {
	fetched := time.Date(2026, 3, 9, 8, 30, 0, 0, time.UTC)

	t.Run("empty", func(t *testing.T) {
		if got := FormatFeedList(nil); !strings.Contains(got, "no feeds yet") {
			t.Errorf("unexpected reply: %s", got)
		}
	})

	t.Run("titled and untitled", func(t *testing.T) {
		got := FormatFeedList([]model.Feed{
			{ID: 1, URL: "https://a.com/rss", Title: "Feed A", LastFetched: &fetched},
			{ID: 2, URL: "https://b.com/rss"},
		})
		want := "Your feeds:\n" +
			"\n#1 Feed A\n   https://a.com/rss\n   fetched 2026-03-09 08:30 UTC\n" +
			"\n#2 https://b.com/rss\n   not fetched yet\n"
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("FormatFeedList() mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestFormatFeedInfo(t *testing.T) {
	fetched := time.Date(2026, 3, 9, 8, 30, 0, 0, time.UTC)
	got := FormatFeedInfo(&model.Feed{
		ID:          3,
		URL:         "https://go.example.com/feed.atom",
		Title:       "Go Blog",
		Description: "News from the Go team",
		Language:    "en",
		LastFetched: &fetched,
		CreatedAt:   time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
	})
	want := "#3 Go Blog\n" +
		"URL: https://go.example.com/feed.atom\n" +
		"About: News from the Go team\n" +
		"Language: en\n" +
		"Last fetch: 2026-03-09 08:30 UTC\n" +
		"Added: 2026-01-02\n"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FormatFeedInfo() mismatch (-want +got):\n%s", diff)
	}
}

func TestFormatNewsletter(t *testing.T) {
	n := &model.Newsletter{
		Start:        time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC),
		End:          time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
		ArticleCount: 2,
		Draft: model.Draft{
			Titles:           []string{"T1", "T2"},
			Body:             "  Body text.  ",
			TopAnnouncements: []string{"A1"},
			AdditionalInfo:   "See you next week.",
		},
	}
	sum := refresh.Summary{Succeeded: 1, Failed: 1, Outcomes: []refresh.Outcome{
		{FeedID: 1},
		{FeedID: 2, URL: "https://down.example.com", Err: errors.New("timeout")},
	}}

	want := "Newsletter 2026-03-03 to 2026-03-10 (2 articles)\n" +
		"\nTitle ideas:\n1. T1\n2. T2\n" +
		"\nTop announcements:\n1. A1\n" +
		"\nBody text.\n" +
		"\nSee you next week.\n" +
		"\n1 feed(s) could not be refreshed:\n#2 https://down.example.com\n"
	if diff := cmp.Diff(want, FormatNewsletter(n, sum)); diff != "" {
		t.Errorf("FormatNewsletter() mismatch (-want +got):\n%s", diff)
	}
}

func TestFormatArticles(t *testing.T) {
	pub := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	res := &refresh.Result{
		Feeds: []model.Feed{{ID: 1}, {ID: 2}},
		Articles: []model.StoredArticle{
			{Article: model.Article{Title: "Shared", Link: "https://x.com/1", PubDate: pub}, FeedTitle: "X", SourceFeeds: []int64{1, 2}},
			{Article: model.Article{Title: "Solo", PubDate: pub}, FeedTitle: "Y", SourceFeeds: []int64{2}},
			{Article: model.Article{Title: "Hidden", PubDate: pub}, FeedTitle: "Y", SourceFeeds: []int64{2}},
		},
		Count: 3,
	}

	want := "3 article(s) from 2 feed(s):\n" +
		"\nShared\n   X, 2026-03-09, 2 sources\n   https://x.com/1\n" +
		"\nSolo\n   Y, 2026-03-09\n" +
		"\n...and 1 more.\n"
	if diff := cmp.Diff(want, FormatArticles(res, 2)); diff != "" {
		t.Errorf("FormatArticles() mismatch (-want +got):\n%s", diff)
	}
}

func TestFormatNoContent(t *testing.T) {
	tests := []struct {
		name string
		sum  refresh.Summary
		want string
	}{
		{
			name: "nothing published",
			sum:  refresh.Summary{Succeeded: 2},
			want: "No articles were published in that period.",
		},
		{
			name: "refresh failures",
			sum: refresh.Summary{Failed: 1, Outcomes: []refresh.Outcome{
				{FeedID: 5, URL: "https://down.example.com", Err: errors.New("boom")},
			}},
			want: "No articles found.\n\n1 feed(s) could not be refreshed:\n#5 https://down.example.com\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, FormatNoContent(tt.sum)); diff != "" {
				t.Errorf("FormatNoContent() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSplitMessage(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
		want []string
	}{
		{name: "fits", text: "short", max: 10, want: []string{"short"}},
		{name: "line boundaries", text: "aaa\nbbb\nccc\n", max: 8, want: []string{"aaa\nbbb", "ccc"}},
		{name: "long line cut", text: "abcdefghij", max: 4, want: []string{"abcd", "efgh", "ij"}},
		{name: "rune safe", text: "привет\nмир", max: 7, want: []string{"привет", "мир"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, SplitMessage(tt.text, tt.max)); diff != "" {
				t.Errorf("SplitMessage() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
