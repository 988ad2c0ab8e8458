package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"EcoPulse/internal/config"
	"EcoPulse/internal/domain"
	"EcoPulse/internal/infrastructure/storage"
	"EcoPulse/internal/logging"
)

const amazonRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Forest Watch</title>
  <item>
    <title>Amazon deforestation hits record</title>
    <link>https://forest.example.org/amazon-record</link>
    <description>Satellite data shows clearing at a new high.</description>
    <pubDate>Mon, 05 Oct 2026 10:00:00 GMT</pubDate>
  </item>
</channel>
</rss>`

const (
	classificationReply = `{"classifications": [{"articleIndex": 0, "topicName": "Amazon Deforestation", "isNew": true}], "rejected": []}`
	scoringReply        = `{"health": {"reasoning": "Smoke.", "level": "MODERATE", "score": 35},
		"ecological": {"reasoning": "Forest loss.", "level": "SEVERE", "score": 80},
		"economic": {"reasoning": "Mixed.", "level": "MODERATE", "score": 40},
		"summary": "Record clearing.", "category": "biodiversity", "region": "Brazil", "keywords": ["amazon"]}`
)

func oracleServer(t *testing.T) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) == 0 {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		content := scoringReply
		if strings.HasPrefix(req.Messages[0].Content, "You are an editor") {
			content = classificationReply
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-test",
			"object": "chat.completion",
			"model":  "test-model",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]string{"role": "assistant", "content": content},
			}},
		})
	}))
}

func testConfig(feedURL, oracleURL string) config.Config {
	return config.Config{
		Logging:     config.LoggingConfig{Level: "error"},
		Scheduler:   config.SchedulerConfig{CronExpression: "0 */6 * * *", Timezone: "UTC"},
		Feeds:       []config.FeedConfig{{Name: "Forest Watch", URL: feedURL}},
		FeedTimeout: 5 * time.Second,
		Oracle: config.OracleConfig{
			Endpoint: oracleURL,
			Model:    "test-model",
			APIKey:   "test-key",
			Timeout:  5 * time.Second,
		},
		Database: config.DatabaseConfig{Driver: config.DriverSQLite, DSN: ":memory:"},
	}
}

func TestRunOnceEndToEnd(t *testing.T) {
	t.Parallel()

	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(amazonRSS))
	}))
	defer feed.Close()
	oracle := oracleServer(t)
	defer oracle.Close()

	ctx := context.Background()
	application, err := New(ctx, testConfig(feed.URL, oracle.URL), logging.Discard())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = application.Close() }()

	summary, err := application.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.FeedArticles != 1 || summary.SearchArticles != 0 {
		t.Fatalf("unexpected fetch counts: %+v", summary)
	}
	if summary.TopicsProcessed != 1 || summary.ArticlesAdded != 1 || summary.TopicErrors != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	summary, err = application.RunOnce(ctx)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if summary.ArticlesAdded != 0 || summary.HistoryWritten != 1 {
		t.Fatalf("article must not be inserted twice: %+v", summary)
	}

	report, err := application.Topic(ctx, "Amazon Deforestation", 0)
	if err != nil {
		t.Fatalf("topic: %v", err)
	}
	if report.Topic.CurrentScore != 54 || report.Topic.PreviousScore != 54 || len(report.History) != 2 {
		t.Fatalf("unexpected report: state=%+v history=%d", report.Topic, len(report.History))
	}
}

func TestShowReadsPersistedRuns(t *testing.T) {
	t.Parallel()

	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(amazonRSS))
	}))
	defer feed.Close()
	oracle := oracleServer(t)
	defer oracle.Close()

	ctx := context.Background()
	cfg := testConfig(feed.URL, oracle.URL)
	cfg.Database.DSN = filepath.Join(t.TempDir(), "ecopulse.db")

	application, err := New(ctx, cfg, logging.Discard())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := application.RunOnce(ctx); err != nil {
			t.Fatalf("run: %v", err)
		}
	}
	if err := application.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Read-side lookups work without oracle credentials.
	cfg.Oracle = config.OracleConfig{}

	report, err := ShowTopic(ctx, cfg, logging.Discard(), "Amazon Deforestation", 1)
	if err != nil {
		t.Fatalf("show topic: %v", err)
	}
	if report.Topic.Slug != "amazon-deforestation" || len(report.History) != 1 || report.History[0].OverallScore != 54 {
		t.Fatalf("unexpected report: %+v", report)
	}

	article, err := ShowArticle(ctx, cfg, logging.Discard(), "https://forest.example.org/amazon-record")
	if err != nil {
		t.Fatalf("show article: %v", err)
	}
	if article.TopicName != "Amazon Deforestation" || article.Provenance != domain.ProvenanceFeed {
		t.Fatalf("unexpected article: %+v", article)
	}

	if _, err := ShowTopic(ctx, cfg, logging.Discard(), "Coral Bleaching", 0); !errors.Is(err, ErrTopicNotFound) {
		t.Fatalf("expected ErrTopicNotFound, got %v", err)
	}
	if _, err := ShowArticle(ctx, cfg, logging.Discard(), "https://missing.example/"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected storage.ErrNotFound, got %v", err)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig("http://127.0.0.1:1/feed", "http://127.0.0.1:1")
	cfg.Oracle.APIKey = ""
	if _, err := New(context.Background(), cfg, logging.Discard()); !errors.Is(err, config.ErrMissingOracleKey) {
		t.Fatalf("expected ErrMissingOracleKey, got %v", err)
	}

	cfg = testConfig("http://127.0.0.1:1/feed", "http://127.0.0.1:1")
	cfg.Database = config.DatabaseConfig{Driver: config.DriverPostgres}
	if _, err := New(context.Background(), cfg, logging.Discard()); !errors.Is(err, config.ErrMissingDatabaseDSN) {
		t.Fatalf("expected ErrMissingDatabaseDSN, got %v", err)
	}

	cfg = testConfig("http://127.0.0.1:1/feed", "http://127.0.0.1:1")
	cfg.Scheduler.CronExpression = "whenever"
	if _, err := New(context.Background(), cfg, logging.Discard()); err == nil {
		t.Fatal("expected invalid cron expression error")
	}
}

func TestMigrate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if err := Migrate(ctx, config.Config{Database: config.DatabaseConfig{Driver: config.DriverMemory}}, logging.Discard()); err != nil {
		t.Fatalf("memory migrate: %v", err)
	}
	if err := Migrate(ctx, config.Config{Database: config.DatabaseConfig{Driver: config.DriverSQLite, DSN: ":memory:"}}, logging.Discard()); err != nil {
		t.Fatalf("sqlite migrate: %v", err)
	}
	if err := Migrate(ctx, config.Config{Database: config.DatabaseConfig{Driver: config.DriverSQLite}}, logging.Discard()); !errors.Is(err, config.ErrMissingDatabaseDSN) {
		t.Fatalf("expected ErrMissingDatabaseDSN, got %v", err)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	t.Parallel()

	cfg := testConfig("http://127.0.0.1:1/feed", "http://127.0.0.1:1")
	cfg.Database = config.DatabaseConfig{Driver: config.DriverMemory}
	application, err := New(context.Background(), cfg, logging.Discard())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- application.Serve(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}
