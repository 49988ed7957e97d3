// Package prompt turns a collected article set into a language-model prompt.
package prompt

import (
	"fmt"
	"strings"
	"time"

	"rss_digest/internal/fetcher"
	"rss_digest/internal/model"
)

const (
	articleTextRunes = 600
	dateLayout       = "2006-01-02"
)

// Prompt is a system/user message pair.
type Prompt struct {
	System string
	User   string
}

// Build assembles the prompt for a newsletter covering [start, end].
// Articles are listed in the given order; those produced by more than one
// feed are marked so the model can weigh them as widely covered.
func Build(settings model.Settings, start, end time.Time, articles []model.StoredArticle) Prompt {
	return Prompt{
		System: system(settings),
		User:   user(start, end, articles),
	}
}

func system(s model.Settings) string {
	var b strings.Builder
	b.WriteString("You are an editor drafting an email newsletter from a list of recent articles.\n")
	fmt.Fprintf(&b, "Write in %s with a %s tone for %s.\n", orDefault(s.Language, "English"), orDefault(s.Tone, "informative"), orDefault(s.Audience, "general readers"))
	b.WriteString("Only use facts present in the articles. Prefer stories covered by several sources.\n")
	b.WriteString("Respond with JSON containing exactly five titles, five email subject lines, ")
	b.WriteString("a markdown body, five top announcements and optional additional_info.")
	if extra := strings.TrimSpace(s.Instructions); extra != "" {
		b.WriteString("\n\nAdditional instructions from the author:\n")
		b.WriteString(extra)
	}
	return b.String()
}

func user(start, end time.Time, articles []model.StoredArticle) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Period: %s to %s\n", start.UTC().Format(dateLayout), end.UTC().Format(dateLayout))
	fmt.Fprintf(&b, "Articles: %d\n", len(articles))
	for i, a := range articles {
		fmt.Fprintf(&b, "\n## %d. %s\n", i+1, a.Title)
		fmt.Fprintf(&b, "Source: %s\n", a.FeedTitle)
		fmt.Fprintf(&b, "Published: %s\n", a.PubDate.UTC().Format(dateLayout))
		if n := a.SourceCount(); n > 1 {
			fmt.Fprintf(&b, "Covered by %d sources\n", n)
		}
		if a.Link != "" {
			fmt.Fprintf(&b, "Link: %s\n", a.Link)
		}
		if text := articleText(a.Article); text != "" {
			b.WriteString(text)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func articleText(a model.Article) string {
	text := a.Summary
	if text == "" {
		text = fetcher.PlainText(a.Content)
	}
	return fetcher.Truncate(text, articleTextRunes)
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}
