package prompt

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"rss_digest/internal/model"
)

func TestBuild(t *testing.T) {
	start := time.Date(2026, 5, 25, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	articles := []model.StoredArticle{
		{
			Article: model.Article{
				Title:   "Go 1.25 released",
				Link:    "https://go.dev/blog/go1.25",
				Summary: "New GC and json/v2 experiment.",
				PubDate: time.Date(2026, 5, 30, 9, 0, 0, 0, time.UTC),
			},
			FeedTitle:   "Go Blog",
			SourceFeeds: []int64{1, 4, 9},
		},
		{
			Article: model.Article{
				Title:   "Release notes",
				Content: "<p>Fixed <b>bugs</b></p>",
				PubDate: time.Date(2026, 5, 26, 9, 0, 0, 0, time.UTC),
			},
			FeedTitle:   "Changelog",
			SourceFeeds: []int64{2},
		},
	}

	p := Build(model.DefaultSettings("alice"), start, end, articles)

	wantUser := `Period: 2026-05-25 to 2026-06-01
Articles: 2

## 1. Go 1.25 released
Source: Go Blog
Published: 2026-05-30
Covered by 3 sources
Link: https://go.dev/blog/go1.25
New GC and json/v2 experiment.

## 2. Release notes
Source: Changelog
Published: 2026-05-26
Fixed bugs
`
	if diff := cmp.Diff(wantUser, p.User); diff != "" {
		t.Errorf("user prompt mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildSystemUsesSettings(t *testing.T) {
	tests := []struct {
		name     string
		settings model.Settings
		want     []string
		wantNot  []string
	}{
		{
			name:     "defaults",
			settings: model.DefaultSettings("alice"),
			want:     []string{"English", "informative", "general readers", "five titles"},
			wantNot:  []string{"Additional instructions"},
		},
		{
			name: "custom",
			settings: model.Settings{
				Tone:         "playful",
				Audience:     "platform engineers",
				Language:     "German",
				Instructions: "Mention the on-call rota.",
			},
			want: []string{"German", "playful", "platform engineers", "Mention the on-call rota."},
		},
		{
			name:     "blank fields fall back",
			settings: model.Settings{Tone: "  "},
			want:     []string{"informative"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Build(tt.settings, time.Time{}, time.Time{}, nil).System
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("system prompt missing %q:\n%s", w, got)
				}
			}
			for _, w := range tt.wantNot {
				if strings.Contains(got, w) {
					t.Errorf("system prompt should not contain %q:\n%s", w, got)
				}
			}
		})
	}
}
