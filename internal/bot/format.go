package bot

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"rss_digest/internal/model"
	"rss_digest/internal/refresh"
)

const (
	dateLayout      = "2006-01-02"
	timeLayout      = "2006-01-02 15:04 UTC"
	previewArticles = 20
)

// FormatFeedList formats a list of feeds for display.
func FormatFeedList(feeds []model.Feed) string {
	if len(feeds) == 0 {
		return "You have no feeds yet. Use /add <url> to add one."
	}
	var b strings.Builder
	b.WriteString("Your feeds:\n")
	for _, f := range feeds {
		fmt.Fprintf(&b, "\n#%d %s\n", f.ID, f.DisplayName())
		if f.Title != "" {
			fmt.Fprintf(&b, "   %s\n", f.URL)
		}
		if f.LastFetched == nil {
			b.WriteString("   not fetched yet\n")
		} else {
			fmt.Fprintf(&b, "   fetched %s\n", f.LastFetched.UTC().Format(timeLayout))
		}
	}
	return b.String()
}

// FormatFeedInfo formats detailed information about a single feed.
func FormatFeedInfo(feed *model.Feed) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d %s\n", feed.ID, feed.DisplayName())
	fmt.Fprintf(&b, "URL: %s\n", feed.URL)
	if feed.Description != "" {
		fmt.Fprintf(&b, "About: %s\n", feed.Description)
	}
	if feed.Link != "" {
		fmt.Fprintf(&b, "Site: %s\n", feed.Link)
	}
	if feed.Language != "" {
		fmt.Fprintf(&b, "Language: %s\n", feed.Language)
	}
	if feed.LastFetched != nil {
		fmt.Fprintf(&b, "Last fetch: %s\n", feed.LastFetched.UTC().Format(timeLayout))
	} else {
		b.WriteString("Last fetch: never\n")
	}
	fmt.Fprintf(&b, "Added: %s\n", feed.CreatedAt.UTC().Format(dateLayout))
	return b.String()
}

// FormatNewsletter renders a generated newsletter as a chat message.
func FormatNewsletter(n *model.Newsletter, sum refresh.Summary) string {
	d := n.Draft
	var b strings.Builder
	fmt.Fprintf(&b, "Newsletter %s to %s (%d articles)\n",
		n.Start.UTC().Format(dateLayout), n.End.UTC().Format(dateLayout), n.ArticleCount)

	writeList(&b, "Title ideas", d.Titles)
	writeList(&b, "Subject lines", d.Subjects)
	writeList(&b, "Top announcements", d.TopAnnouncements)

	b.WriteString("\n")
	b.WriteString(strings.TrimSpace(d.Body))
	b.WriteString("\n")

	if info := strings.TrimSpace(d.AdditionalInfo); info != "" {
		fmt.Fprintf(&b, "\n%s\n", info)
	}
	if sum.Failed > 0 {
		b.WriteString("\n")
		b.WriteString(FormatFailures(sum))
	}
	return b.String()
}

func writeList(b *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:\n", heading)
	for i, it := range items {
		fmt.Fprintf(b, "%d. %s\n", i+1, it)
	}
}

// FormatArticles previews the article set of a digest request.
func FormatArticles(res *refresh.Result, max int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d article(s) from %d feed(s):\n", res.Count, len(res.Feeds))
	for i, a := range res.Articles {
		if i == max {
			fmt.Fprintf(&b, "\n...and %d more.\n", len(res.Articles)-max)
			break
		}
		fmt.Fprintf(&b, "\n%s\n", a.Title)
		fmt.Fprintf(&b, "   %s, %s", a.FeedTitle, a.PubDate.UTC().Format(dateLayout))
		if a.SourceCount() > 1 {
			fmt.Fprintf(&b, ", %d sources", a.SourceCount())
		}
		b.WriteString("\n")
		if a.Link != "" {
			fmt.Fprintf(&b, "   %s\n", a.Link)
		}
	}
	if res.Summary.Failed > 0 {
		b.WriteString("\n")
		b.WriteString(FormatFailures(res.Summary))
	}
	return b.String()
}

// FormatNoContent explains an empty digest, separating "nothing published"
// from "feeds could not be reached".
func FormatNoContent(sum refresh.Summary) string {
	if sum.Failed == 0 {
		return "No articles were published in that period."
	}
	return "No articles found.\n\n" + FormatFailures(sum)
}

// FormatFailures lists feeds that could not be refreshed.
func FormatFailures(sum refresh.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d feed(s) could not be refreshed:\n", sum.Failed)
	for _, o := range sum.Failures() {
		fmt.Fprintf(&b, "#%d %s\n", o.FeedID, o.URL)
	}
	return b.String()
}

// SplitMessage breaks text into chunks of at most max runes, preferring
// line boundaries.
func SplitMessage(text string, max int) []string {
	if utf8.RuneCountInString(text) <= max {
		return []string{text}
	}

	var out []string
	var cur strings.Builder
	curLen := 0
	flush := func() {
		if curLen > 0 {
			out = append(out, strings.TrimRight(cur.String(), "\n"))
			cur.Reset()
			curLen = 0
		}
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		n := utf8.RuneCountInString(line)
		if curLen+n > max {
			flush()
		}
		for n > max {
			r := []rune(line)
			out = append(out, string(r[:max]))
			line = string(r[max:])
			n -= max
		}
		cur.WriteString(line)
		curLen += n
	}
	flush()
	return out
}
