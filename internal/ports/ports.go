package ports

import (
	"context"
	"time"

	"EcoPulse/internal/domain"
)

// FeedSource pulls items from every configured syndication feed.
type FeedSource interface {
	FetchFeeds(ctx context.Context) domain.FeedResult
}

// SearchSource queries the keyword news search API.
type SearchSource interface {
	Search(ctx context.Context) domain.SearchResult
}

// Oracle is the language-model service: one user prompt in, free text out.
type Oracle interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// TopicStore persists topic state, score history and article rows.
type TopicStore interface {
	KnownTopics(ctx context.Context) ([]domain.TopicRef, error)
	GetTopic(ctx context.Context, name string) (domain.TopicState, bool, error)
	// SaveTopicRun upserts the state, appends the snapshot and inserts new articles
	// in one unit; it reports how many article rows were actually inserted.
	SaveTopicRun(ctx context.Context, state domain.TopicState, snapshot domain.TopicScoreSnapshot, articles []domain.StoredArticle) (int, error)
}

// TopicReader serves read-only lookups of stored topics, history and articles.
type TopicReader interface {
	GetTopic(ctx context.Context, name string) (domain.TopicState, bool, error)
	// History returns up to limit snapshots, newest first; limit <= 0 means all.
	History(ctx context.Context, name string, limit int) ([]domain.TopicScoreSnapshot, error)
	Article(ctx context.Context, url string) (domain.StoredArticle, error)
}

// Notifier publishes alerts about breaking or anomalous topics.
type Notifier interface {
	PublishAlert(ctx context.Context, message string) error
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
