package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"EcoPulse/internal/domain"
	"EcoPulse/internal/infrastructure/storage"
)

const amazonClassifyReply = `{"classifications": [{"articleIndex": 0, "topicName": "Amazon Deforestation", "isNew": true}], "rejected": []}`

func fixedClock() func() time.Time {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return now }
}

func amazonSources(published time.Time) (stubFeeds, stubSearch) {
	article := rawArticle("Amazon deforestation hits record", "https://news.example/amazon-record", published)
	article.ImageURL = "https://img.example/amazon.jpg"
	dup := article
	dup.Title = "Record Amazon clearing (wire copy)"
	dup.ImageURL = ""

	feeds := stubFeeds{result: domain.FeedResult{
		Articles: []domain.RawArticle{article},
		Health:   []domain.FeedHealth{{Name: "Mongabay", Status: domain.FeedStatusOK, ItemCount: 1}},
	}}
	search := stubSearch{result: domain.SearchResult{Articles: []domain.RawArticle{dup}, RawCount: 1, FilteredCount: 1}}
	return feeds, search
}

func TestPipelineAmazonScenario(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	published := time.Date(2024, 4, 30, 8, 0, 0, 0, time.UTC)
	feeds, search := amazonSources(published)
	store := storage.NewMemoryStore()
	oracle := &stubOracle{
		classify: []string{amazonClassifyReply, amazonClassifyReply},
		score:    map[string]string{"Amazon Deforestation": amazonScoringReply},
	}

	pipeline := NewPipeline(PipelineDeps{
		Feeds:  feeds,
		Search: search,
		Oracle: oracle,
		Store:  store,
		Now:    fixedClock(),
	})

	summary, err := pipeline.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.RunID == "" {
		t.Fatal("expected a run id")
	}
	if summary.MergedArticles != 1 || summary.TopicsProcessed != 1 || summary.ArticlesAdded != 1 || summary.HistoryWritten != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	state, found, err := store.GetTopic(ctx, "Amazon Deforestation")
	if err != nil || !found {
		t.Fatalf("topic not stored: found=%v err=%v", found, err)
	}
	if state.CurrentScore != 54 || state.PreviousScore != 0 || state.Urgency != domain.UrgencyModerate {
		t.Fatalf("expected current=54 previous=0 moderate, got %d/%d/%s", state.CurrentScore, state.PreviousScore, state.Urgency)
	}
	if state.Slug != "amazon-deforestation" || state.Category != "biodiversity" || state.ImageURL != "https://img.example/amazon.jpg" {
		t.Fatalf("unexpected topic fields: %+v", state)
	}

	stored, err := store.Article(ctx, "https://news.example/amazon-record")
	if err != nil {
		t.Fatalf("article: %v", err)
	}
	if stored.Provenance != domain.ProvenanceFeed || stored.Title != "Amazon deforestation hits record" {
		t.Fatalf("feed copy must win: %+v", stored)
	}

	// The same coverage on the next run rotates the score and adds no article rows.
	summary, err = pipeline.Run(ctx)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if summary.ArticlesAdded != 0 || summary.HistoryWritten != 1 {
		t.Fatalf("unexpected second summary: %+v", summary)
	}
	state, _, _ = store.GetTopic(ctx, "Amazon Deforestation")
	if state.PreviousScore != 54 || state.CurrentScore != 54 || state.ArticleCount != 2 {
		t.Fatalf("unexpected rotated state: %+v", state)
	}
	history, _ := store.History(ctx, "Amazon Deforestation", 0)
	if len(history) != 2 {
		t.Fatalf("expected 2 history rows, got %d", len(history))
	}
	if !strings.Contains(oracle.prompts[2], "Amazon Deforestation") {
		t.Fatalf("second classification must see the stored topic")
	}
}

func TestPipelineMisconfigured(t *testing.T) {
	t.Parallel()

	feeds, _ := amazonSources(time.Now())
	_, err := NewPipeline(PipelineDeps{Feeds: feeds, Store: storage.NewMemoryStore()}).Run(context.Background())
	if !errors.Is(err, ErrPipelineMisconfigured) {
		t.Fatalf("expected ErrPipelineMisconfigured, got %v", err)
	}

	_, err = NewPipeline(PipelineDeps{Oracle: &stubOracle{}, Store: storage.NewMemoryStore()}).Run(context.Background())
	if !errors.Is(err, ErrPipelineMisconfigured) {
		t.Fatalf("expected ErrPipelineMisconfigured without sources, got %v", err)
	}
}

func TestPipelineEmptyPoolSkipsOracle(t *testing.T) {
	t.Parallel()

	oracle := &stubOracle{}
	pipeline := NewPipeline(PipelineDeps{
		Feeds:    stubFeeds{result: domain.FeedResult{Health: []domain.FeedHealth{{Name: "down", Status: domain.FeedStatusError}}}},
		Search:   stubSearch{},
		Oracle:   oracle,
		Store:    storage.NewMemoryStore(),
		Denylist: domain.NewDenylist([]string{"example.com"}),
	})

	summary, err := pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.MergedArticles != 0 || oracle.calls() != 0 {
		t.Fatalf("expected no oracle calls for an empty pool, got %d", oracle.calls())
	}
	if summary.FinishedAt.IsZero() || len(summary.FeedHealth) != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestPipelineClassificationFailureWritesNothing(t *testing.T) {
	t.Parallel()

	feeds, search := amazonSources(time.Now())
	store := storage.NewMemoryStore()
	pipeline := NewPipeline(PipelineDeps{
		Feeds:  feeds,
		Search: search,
		Oracle: &stubOracle{classify: []string{"The articles look interesting, but I can't produce JSON."}},
		Store:  store,
	})

	summary, err := pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.TopicsProcessed != 0 || store.ArticleCount() != 0 {
		t.Fatalf("expected nothing persisted, got %+v", summary)
	}
}

type failingStore struct {
	*storage.MemoryStore
	failTopic string
	knownErr  error
}

func (f failingStore) KnownTopics(ctx context.Context) ([]domain.TopicRef, error) {
	if f.knownErr != nil {
		return nil, f.knownErr
	}
	return f.MemoryStore.KnownTopics(ctx)
}

func (f failingStore) SaveTopicRun(ctx context.Context, state domain.TopicState, snap domain.TopicScoreSnapshot, articles []domain.StoredArticle) (int, error) {
	if state.Name == f.failTopic {
		return 0, errors.New("disk full")
	}
	return f.MemoryStore.SaveTopicRun(ctx, state, snap, articles)
}

func TestPipelineIsolatesTopicFailures(t *testing.T) {
	t.Parallel()

	now := time.Now()
	feeds := stubFeeds{result: domain.FeedResult{Articles: []domain.RawArticle{
		rawArticle("Spill", "https://n.example/spill", now),
		rawArticle("Heat", "https://n.example/heat", now),
	}}}
	oracle := &stubOracle{classify: []string{
		`{"classifications": [{"articleIndex": 0, "topicName": "Bad Topic"}, {"articleIndex": 1, "topicName": "Ocean Heat"}]}`,
	}}
	store := failingStore{MemoryStore: storage.NewMemoryStore(), failTopic: "Bad Topic"}

	summary, err := NewPipeline(PipelineDeps{Feeds: feeds, Oracle: oracle, Store: store}).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.TopicErrors != 1 || summary.TopicsProcessed != 1 {
		t.Fatalf("expected one failed and one processed topic, got %+v", summary)
	}
	state, found, _ := store.GetTopic(context.Background(), "Ocean Heat")
	if !found || state.CurrentScore != 50 {
		t.Fatalf("expected default-scored topic, got found=%v %+v", found, state)
	}
}

func TestPipelineKnownTopicsError(t *testing.T) {
	t.Parallel()

	feeds, _ := amazonSources(time.Now())
	store := failingStore{MemoryStore: storage.NewMemoryStore(), knownErr: errors.New("connection refused")}

	_, err := NewPipeline(PipelineDeps{Feeds: feeds, Oracle: &stubOracle{}, Store: store}).Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("expected known topics error, got %v", err)
	}
}

func TestPipelinePublishesAlerts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemoryStore()
	prior := MergeTopicState(nil, domain.TopicScoreSnapshot{
		TopicName:    "Wildfire Smoke",
		Health:       dim(domain.LevelMinimal, 20),
		Ecological:   dim(domain.LevelModerate, 40),
		Economic:     dim(domain.LevelMinimal, 10),
		OverallScore: 26,
		Urgency:      domain.UrgencyInformational,
	}, time.Now())
	if _, err := store.SaveTopicRun(ctx, prior, domain.TopicScoreSnapshot{TopicName: prior.Name}, nil); err != nil {
		t.Fatalf("seed: %v", err)
	}

	feeds := stubFeeds{result: domain.FeedResult{Articles: []domain.RawArticle{
		rawArticle("Smoke blankets the coast", "https://n.example/smoke", time.Now()),
	}}}
	oracle := &stubOracle{
		classify: []string{`{"classifications": [{"articleIndex": 0, "topicName": "wildfire smoke"}]}`},
		score: map[string]string{"Wildfire Smoke": `{
			"health": {"level": "SEVERE", "score": 90},
			"ecological": {"level": "SEVERE", "score": 85},
			"economic": {"level": "SEVERE", "score": 80},
			"summary": "Hazardous air across the region."
		}`},
	}
	notifier := &recordingNotifier{err: errors.New("telegram down")}

	summary, err := NewPipeline(PipelineDeps{Feeds: feeds, Oracle: oracle, Store: store, Notifier: notifier}).Run(ctx)
	if err != nil {
		t.Fatalf("alert delivery failure must not fail the run: %v", err)
	}
	if summary.Anomalies != 1 {
		t.Fatalf("expected an anomalous topic, got %+v", summary)
	}
	if len(notifier.messages) != 1 {
		t.Fatalf("expected one alert, got %d", len(notifier.messages))
	}
	msg := notifier.messages[0]
	if !strings.Contains(msg, "*Wildfire Smoke* [BREAKING] score 86 (was 26)") || !strings.Contains(msg, "health jumped 20 -> 90") {
		t.Fatalf("unexpected alert message:\n%s", msg)
	}
}

func TestBuildAlertMessageEscapesMarkdown(t *testing.T) {
	t.Parallel()

	msg := buildAlertMessage([]alert{{state: domain.TopicState{
		Name:          "Oil_spill *Gulf",
		Urgency:       domain.UrgencyBreaking,
		CurrentScore:  88,
		PreviousScore: 40,
		Summary:       "Slick spreads near [port] of `Tampico`_",
	}}})

	want := "*Oil\\_spill \\*Gulf* [BREAKING] score 88 (was 40)\n" +
		"Slick spreads near \\[port] of \\`Tampico\\`\\_"
	if msg != want {
		t.Fatalf("unexpected alert message:\n got %q\nwant %q", msg, want)
	}
}
