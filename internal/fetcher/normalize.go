package fetcher

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"rss_digest/internal/model"
)

const summaryMaxRunes = 500

// Normalize converts a parsed document into feed metadata and articles.
// fetchedAt stands in for missing publication dates.
func Normalize(feed *gofeed.Feed, fetchedAt time.Time) *Feed {
	out := &Feed{
		Meta: model.FeedMeta{
			Title:       strings.TrimSpace(feed.Title),
			Description: PlainText(feed.Description),
			Link:        strings.TrimSpace(feed.Link),
			Language:    strings.TrimSpace(feed.Language),
		},
	}
	if feed.Image != nil {
		out.Meta.Image = feed.Image.URL
	}

	seen := make(map[string]bool, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		a, ok := normalizeItem(item, fetchedAt)
		if !ok || seen[a.GUID] {
			continue
		}
		seen[a.GUID] = true
		out.Articles = append(out.Articles, a)
	}
	return out
}

func normalizeItem(item *gofeed.Item, fetchedAt time.Time) (model.Article, bool) {
	link := strings.TrimSpace(item.Link)
	if link == "" && len(item.Links) > 0 {
		link = strings.TrimSpace(item.Links[0])
	}
	title := strings.TrimSpace(item.Title)
	if title == "" && link == "" {
		return model.Article{}, false
	}

	content := item.Content
	if content == "" {
		content = item.Description
	}
	summary := item.Description
	if summary == "" {
		summary = item.Content
	}

	pub := fetchedAt
	switch {
	case item.PublishedParsed != nil:
		pub = *item.PublishedParsed
	case item.UpdatedParsed != nil:
		pub = *item.UpdatedParsed
	}

	var categories []string
	for _, c := range item.Categories {
		if c = strings.TrimSpace(c); c != "" {
			categories = append(categories, c)
		}
	}

	return model.Article{
		GUID:       strings.TrimSpace(ItemGUID(item)),
		Title:      title,
		Link:       link,
		Content:    strings.TrimSpace(content),
		Summary:    Truncate(PlainText(summary), summaryMaxRunes),
		Author:     itemAuthor(item),
		Categories: categories,
		Image:      itemImage(item, content),
		PubDate:    pub.UTC(),
	}, true
}

func itemAuthor(item *gofeed.Item) string {
	if item.Author != nil && item.Author.Name != "" {
		return item.Author.Name
	}
	for _, a := range item.Authors {
		if a != nil && a.Name != "" {
			return a.Name
		}
	}
	return ""
}

func itemImage(item *gofeed.Item, html string) string {
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}
	for _, enc := range item.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") && enc.URL != "" {
			return enc.URL
		}
	}
	return firstImage(html)
}

// PlainText strips markup from an HTML fragment and collapses whitespace.
func PlainText(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.Join(strings.Fields(html), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func firstImage(html string) string {
	if !strings.Contains(html, "<img") {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	src, _ := doc.Find("img[src]").First().Attr("src")
	return src
}

// Truncate shortens s to at most n runes, marking the cut with "...".
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	if n <= 3 {
		return string([]rune(s)[:n])
	}
	return strings.TrimSpace(string([]rune(s)[:n-3])) + "..."
}
