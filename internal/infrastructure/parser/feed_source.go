package parser

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"

	"EcoPulse/internal/config"
	"EcoPulse/internal/domain"
	"EcoPulse/internal/ports"
)

const (
	defaultFeedTimeout = 15 * time.Second
	userAgent          = "EcoPulse/1.0 (+feed fetcher)"
)

// FeedSource implements ports.FeedSource over the configured syndication feeds.
type FeedSource struct {
	feeds   []config.FeedConfig
	timeout time.Duration
	client  *http.Client
	logger  *slog.Logger
}

var _ ports.FeedSource = (*FeedSource)(nil)

// NewFeedSource wires the feed list; a nil client gets a default one.
func NewFeedSource(feeds []config.FeedConfig, timeout time.Duration, client *http.Client, log *slog.Logger) *FeedSource {
	if timeout <= 0 {
		timeout = defaultFeedTimeout
	}
	if client == nil {
		client = &http.Client{}
	}
	return &FeedSource{
		feeds:   feeds,
		timeout: timeout,
		client:  client,
		logger:  log,
	}
}

type feedOutcome struct {
	articles []domain.RawArticle
	health   domain.FeedHealth
}

// FetchFeeds pulls every feed concurrently. A failing feed contributes a health
// record with status error and no articles; it never affects its siblings.
func (s *FeedSource) FetchFeeds(ctx context.Context) domain.FeedResult {
	outcomes := make([]feedOutcome, len(s.feeds))

	var g errgroup.Group
	for i, feed := range s.feeds {
		i, feed := i, feed
		g.Go(func() error {
			outcomes[i] = s.fetchOne(ctx, feed)
			return nil
		})
	}
	_ = g.Wait()

	var result domain.FeedResult
	for _, o := range outcomes {
		result.Articles = append(result.Articles, o.articles...)
		result.Health = append(result.Health, o.health)
	}

	s.debug("feeds done", "feeds", len(s.feeds), "articles", len(result.Articles))
	return result
}

func (s *FeedSource) fetchOne(ctx context.Context, feed config.FeedConfig) feedOutcome {
	start := time.Now()
	health := domain.FeedHealth{
		Name: displayName(feed.Name, "", feed.URL),
		URL:  feed.URL,
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	fp := gofeed.NewParser()
	fp.Client = s.client
	fp.UserAgent = userAgent

	parsed, err := fp.ParseURLWithContext(feed.URL, fetchCtx)
	health.Elapsed = time.Since(start)
	if err != nil {
		health.Status = domain.FeedStatusError
		health.Error = err.Error()
		s.warn("feed failed", "feed", health.Name, "url", feed.URL, "error", err)
		return feedOutcome{health: health}
	}

	health.Name = displayName(feed.Name, parsed.Title, feed.URL)

	articles := make([]domain.RawArticle, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		article, reason, ok := entryToArticle(item, health.Name)
		if !ok {
			s.debug("discard feed item", "feed", health.Name, "reason", reason, "title", item.Title)
			continue
		}
		articles = append(articles, article)
	}

	health.Status = domain.FeedStatusOK
	health.ItemCount = len(articles)
	s.debug("feed produced articles", "feed", health.Name, "count", len(articles), "elapsed", health.Elapsed)
	return feedOutcome{articles: articles, health: health}
}

func (s *FeedSource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *FeedSource) warn(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
