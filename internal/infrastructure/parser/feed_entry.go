package parser

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"EcoPulse/internal/domain"
)

// entryToArticle converts one feed item. Items without a title, link or
// resolvable publication date are discarded with a reason.
func entryToArticle(item *gofeed.Item, source string) (domain.RawArticle, string, bool) {
	if item == nil {
		return domain.RawArticle{}, "empty item", false
	}

	title := strings.TrimSpace(item.Title)
	if title == "" {
		return domain.RawArticle{}, "missing title", false
	}

	link := strings.TrimSpace(item.Link)
	if link == "" {
		return domain.RawArticle{}, "missing link", false
	}

	publishedAt, ok := publishedTime(item)
	if !ok {
		return domain.RawArticle{}, "missing publication date", false
	}

	description := cleanText(item.Description)
	if description == "" {
		description = cleanText(item.Content)
	}

	return domain.RawArticle{
		Title:       cleanText(title),
		URL:         link,
		Source:      source,
		Description: description,
		ImageURL:    imageURL(item),
		PublishedAt: publishedAt.UTC(),
	}, "", true
}

func publishedTime(item *gofeed.Item) (time.Time, bool) {
	if item.PublishedParsed != nil && !item.PublishedParsed.IsZero() {
		return *item.PublishedParsed, true
	}
	if item.UpdatedParsed != nil && !item.UpdatedParsed.IsZero() {
		return *item.UpdatedParsed, true
	}
	return time.Time{}, false
}

func imageURL(item *gofeed.Item) string {
	for _, enc := range item.Enclosures {
		if enc != nil && strings.TrimSpace(enc.URL) != "" {
			return strings.TrimSpace(enc.URL)
		}
	}
	if item.Image != nil {
		return strings.TrimSpace(item.Image.URL)
	}
	return ""
}

// cleanText strips markup from feed summaries and collapses whitespace.
func cleanText(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	text := raw
	if strings.ContainsAny(raw, "<&") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw)); err == nil {
			text = doc.Text()
		}
	}

	return strings.Join(strings.Fields(text), " ")
}

// displayName prefers the configured name, then the feed title, then the bare host.
func displayName(configured, feedTitle, endpoint string) string {
	if name := strings.TrimSpace(configured); name != "" {
		return name
	}
	if title := strings.TrimSpace(feedTitle); title != "" {
		return title
	}
	return domain.Hostname(endpoint)
}
