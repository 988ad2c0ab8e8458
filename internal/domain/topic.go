package domain

import "time"

// Classification maps one article of a batch to a topic name.
type Classification struct {
	ArticleIndex int
	TopicName    string
	IsNew        bool
}

// TopicRef is the read-only view of a known topic used as classification context.
type TopicRef struct {
	Name     string
	Keywords []string
}

// TopicScoreSnapshot is one immutable point-in-time scoring result for a topic.
type TopicScoreSnapshot struct {
	TopicName    string
	Health       DimensionResult
	Ecological   DimensionResult
	Economic     DimensionResult
	OverallScore int
	Urgency      Urgency
	Anomalous    bool
	Summary      string
	Category     string
	Region       string
	Keywords     []string
	ArticleCount int
	ImageURL     string
	Fallback     bool
	RecordedAt   time.Time
}

// DimensionScores is a compact triple of validated dimension scores.
type DimensionScores struct {
	Health     int
	Ecological int
	Economic   int
}

// Scores extracts the numeric triple from the snapshot.
func (s TopicScoreSnapshot) Scores() DimensionScores {
	return DimensionScores{
		Health:     s.Health.Score,
		Ecological: s.Ecological.Score,
		Economic:   s.Economic.Score,
	}
}

// TopicState is the durable per-topic record maintained across runs.
type TopicState struct {
	Name          string
	Slug          string
	Category      string
	Region        string
	CurrentScore  int
	PreviousScore int
	Urgency       Urgency
	Summary       string
	HealthScore   int
	HealthLevel   SeverityLevel
	EcoScore      int
	EcoLevel      SeverityLevel
	EconScore     int
	EconLevel     SeverityLevel
	ArticleCount  int
	ImageURL      string
	Keywords      []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Scores returns the latest persisted dimension scores.
func (t TopicState) Scores() DimensionScores {
	return DimensionScores{
		Health:     t.HealthScore,
		Ecological: t.EcoScore,
		Economic:   t.EconScore,
	}
}

// StoredArticle is an article row persisted alongside its topic.
type StoredArticle struct {
	MergedArticle
	TopicName string
}

// RunSummary is what a single pipeline invocation reports to its caller.
type RunSummary struct {
	RunID           string       `json:"run_id"`
	StartedAt       time.Time    `json:"started_at"`
	FinishedAt      time.Time    `json:"finished_at"`
	FeedArticles    int          `json:"feed_articles"`
	SearchArticles  int          `json:"search_articles"`
	SearchRaw       int          `json:"search_raw"`
	MergedArticles  int          `json:"merged_articles"`
	Classified      int          `json:"classified"`
	Rejected        int          `json:"rejected"`
	TopicsProcessed int          `json:"topics_processed"`
	TopicErrors     int          `json:"topic_errors"`
	ArticlesAdded   int          `json:"articles_added"`
	HistoryWritten  int          `json:"history_written"`
	Clamped         int          `json:"clamped"`
	Anomalies       int          `json:"anomalies"`
	FeedHealth      []FeedHealth `json:"feed_health"`
}
