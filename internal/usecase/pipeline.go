package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"EcoPulse/internal/domain"
	"EcoPulse/internal/logging"
	"EcoPulse/internal/ports"
	"EcoPulse/internal/severity"
)

// ErrPipelineMisconfigured is returned before any fetch when a required collaborator is missing.
var ErrPipelineMisconfigured = errors.New("pipeline misconfigured")

// Settings carries the tunable knobs of a pipeline run.
type Settings struct {
	ClassifyBatchSize   int
	MaxArticlesPerTopic int
	AnomalyThreshold    int
	ClampWarnRatio      float64
}

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Feeds    ports.FeedSource
	Search   ports.SearchSource
	Oracle   ports.Oracle
	Store    ports.TopicStore
	Notifier ports.Notifier
	Denylist domain.Denylist
	Settings Settings
	Extract  Extractor
	Logger   *slog.Logger
	Now      func() time.Time
}

// Pipeline implements the fetch-merge-classify-score-aggregate workflow.
type Pipeline struct {
	feeds      ports.FeedSource
	search     ports.SearchSource
	oracle     ports.Oracle
	store      ports.TopicStore
	notifier   ports.Notifier
	denylist   domain.Denylist
	settings   Settings
	classifier *Classifier
	scorer     *Scorer
	logger     *slog.Logger
	now        func() time.Time
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	settings := deps.Settings
	if settings.AnomalyThreshold <= 0 {
		settings.AnomalyThreshold = severity.DefaultAnomalyThreshold
	}
	if settings.ClampWarnRatio <= 0 {
		settings.ClampWarnRatio = severity.DefaultClampWarnRatio
	}

	return &Pipeline{
		feeds:      deps.Feeds,
		search:     deps.Search,
		oracle:     deps.Oracle,
		store:      deps.Store,
		notifier:   deps.Notifier,
		denylist:   deps.Denylist,
		settings:   settings,
		classifier: NewClassifier(deps.Oracle, deps.Extract, settings.ClassifyBatchSize, logger.With("stage", "classify")),
		scorer:     NewScorer(deps.Oracle, deps.Extract, settings.MaxArticlesPerTopic, logger.With("stage", "score")),
		logger:     logger,
		now:        now,
	}
}

type topicGroup struct {
	name     string
	isNew    bool
	articles []domain.MergedArticle
}

type alert struct {
	state  domain.TopicState
	shifts []severity.Shift
}

// Run executes one pipeline invocation. Partial failures are logged and counted;
// an error is returned only when the run could not start or the topic store is unreadable.
func (p *Pipeline) Run(ctx context.Context) (domain.RunSummary, error) {
	summary := domain.RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: p.now(),
	}
	log := p.logger.With("run_id", summary.RunID)

	if p.oracle == nil || p.store == nil || (p.feeds == nil && p.search == nil) {
		return summary, fmt.Errorf("%w: oracle, store and at least one source are required", ErrPipelineMisconfigured)
	}

	feedResult, searchResult := p.fetch(ctx)
	summary.FeedArticles = len(feedResult.Articles)
	summary.SearchArticles = len(searchResult.Articles)
	summary.SearchRaw = searchResult.RawCount
	summary.FeedHealth = feedResult.Health
	p.reportSourceHealth(log, feedResult, searchResult)

	merged := MergeArticles(feedResult.Articles, searchResult.Articles, p.denylist)
	summary.MergedArticles = len(merged.Articles)
	log.Info("articles merged",
		"feed", merged.FeedCount,
		"search", merged.SearchCount,
		"merged", len(merged.Articles),
	)

	if len(merged.Articles) == 0 {
		summary.FinishedAt = p.now()
		log.Info("no articles to classify")
		return summary, nil
	}

	known, err := p.store.KnownTopics(ctx)
	if err != nil {
		summary.FinishedAt = p.now()
		return summary, fmt.Errorf("load known topics: %w", err)
	}

	classified := p.classifier.Classify(ctx, merged.Articles, known)
	summary.Classified = len(classified.Classifications)
	summary.Rejected = classified.Rejected

	var (
		monitor severity.ClampMonitor
		alerts  []alert
	)
	for _, group := range groupByTopic(merged.Articles, classified.Classifications) {
		if ctx.Err() != nil {
			log.Warn("run interrupted, remaining topics skipped", "error", ctx.Err())
			break
		}

		state, shifts, inserted, err := p.processTopic(ctx, log, group, &monitor)
		if err != nil {
			summary.TopicErrors++
			log.Error("topic not persisted", "topic", group.name, "error", err)
			continue
		}

		summary.TopicsProcessed++
		summary.HistoryWritten++
		summary.ArticlesAdded += inserted
		if len(shifts) > 0 {
			summary.Anomalies++
		}
		if state.Urgency == domain.UrgencyBreaking || len(shifts) > 0 {
			alerts = append(alerts, alert{state: state, shifts: shifts})
		}
	}

	summary.Clamped = monitor.Adjusted()
	if monitor.Degraded(p.settings.ClampWarnRatio) {
		log.Warn("oracle output quality degraded: many dimension scores needed clamping",
			"clamped", monitor.Adjusted(),
			"total", monitor.Total(),
			"threshold", p.settings.ClampWarnRatio,
		)
	}

	p.publishAlerts(ctx, log, alerts)

	summary.FinishedAt = p.now()
	log.Info("pipeline run finished",
		"topics", summary.TopicsProcessed,
		"topic_errors", summary.TopicErrors,
		"articles_added", summary.ArticlesAdded,
		"history", summary.HistoryWritten,
		"rejected", summary.Rejected,
		"clamped", summary.Clamped,
		"anomalies", summary.Anomalies,
	)
	return summary, nil
}

// fetch runs both fetchers concurrently; each isolates its own unit failures.
func (p *Pipeline) fetch(ctx context.Context) (domain.FeedResult, domain.SearchResult) {
	var (
		feedResult   domain.FeedResult
		searchResult domain.SearchResult
		g            errgroup.Group
	)

	if p.feeds != nil {
		g.Go(func() error {
			feedResult = p.feeds.FetchFeeds(ctx)
			return nil
		})
	}
	if p.search != nil {
		g.Go(func() error {
			searchResult = p.search.Search(ctx)
			return nil
		})
	}
	_ = g.Wait()

	return feedResult, searchResult
}

func (p *Pipeline) reportSourceHealth(log *slog.Logger, feeds domain.FeedResult, search domain.SearchResult) {
	healthy := 0
	for _, h := range feeds.Health {
		if h.Status == domain.FeedStatusOK {
			healthy++
		}
	}

	log.Info("sources fetched",
		"feeds_total", len(feeds.Health),
		"feeds_healthy", healthy,
		"feed_articles", len(feeds.Articles),
		"search_raw", search.RawCount,
		"search_articles", len(search.Articles),
		"search_failed_groups", search.FailedGroups,
	)

	switch {
	case p.search != nil && search.RawCount == 0 && healthy > 0:
		log.Warn("search api returned no articles while feeds are healthy")
	case len(feeds.Health) > 0 && healthy == 0 && len(search.Articles) > 0:
		log.Warn("all feeds failed while search returned articles")
	}
}

func (p *Pipeline) processTopic(ctx context.Context, log *slog.Logger, group topicGroup, monitor *severity.ClampMonitor) (domain.TopicState, []severity.Shift, int, error) {
	existing, found, err := p.store.GetTopic(ctx, group.name)
	if err != nil {
		return domain.TopicState{}, nil, 0, fmt.Errorf("read topic: %w", err)
	}

	var (
		prior   *domain.DimensionScores
		current *domain.TopicState
	)
	if found {
		scores := existing.Scores()
		prior = &scores
		current = &existing
	}

	raw := p.scorer.Score(ctx, group.name, group.articles)
	snap, shifts := Assess(raw, prior, p.settings.AnomalyThreshold, monitor, log)

	sorted := sortNewestFirst(group.articles)
	snap.ArticleCount = len(sorted)
	snap.ImageURL = firstImage(sorted)
	snap.RecordedAt = p.now()

	state := MergeTopicState(current, snap, snap.RecordedAt)

	stored := make([]domain.StoredArticle, 0, len(sorted))
	for _, a := range sorted {
		stored = append(stored, domain.StoredArticle{MergedArticle: a, TopicName: state.Name})
	}

	inserted, err := p.store.SaveTopicRun(ctx, state, snap, stored)
	if err != nil {
		return domain.TopicState{}, nil, 0, fmt.Errorf("save topic run: %w", err)
	}

	log.Info("topic scored",
		"topic", state.Name,
		"new", !found,
		"classified_new", group.isNew,
		"articles", len(sorted),
		"overall", state.CurrentScore,
		"previous", state.PreviousScore,
		"urgency", state.Urgency,
		"fallback", snap.Fallback,
		"anomalous", snap.Anomalous,
	)
	return state, shifts, inserted, nil
}

func (p *Pipeline) publishAlerts(ctx context.Context, log *slog.Logger, alerts []alert) {
	if p.notifier == nil || len(alerts) == 0 {
		return
	}
	if err := p.notifier.PublishAlert(ctx, buildAlertMessage(alerts)); err != nil {
		log.Warn("alert delivery failed", "alerts", len(alerts), "error", err)
	}
}

// groupByTopic collects classified articles per topic in first-seen order.
func groupByTopic(articles []domain.MergedArticle, classifications []domain.Classification) []topicGroup {
	index := map[string]int{}
	var groups []topicGroup
	for _, cl := range classifications {
		if cl.ArticleIndex < 0 || cl.ArticleIndex >= len(articles) {
			continue
		}
		pos, ok := index[cl.TopicName]
		if !ok {
			pos = len(groups)
			index[cl.TopicName] = pos
			groups = append(groups, topicGroup{name: cl.TopicName, isNew: cl.IsNew})
		}
		groups[pos].articles = append(groups[pos].articles, articles[cl.ArticleIndex])
	}
	return groups
}

func firstImage(articles []domain.MergedArticle) string {
	for _, a := range articles {
		if a.ImageURL != "" {
			return a.ImageURL
		}
	}
	return ""
}

func buildAlertMessage(alerts []alert) string {
	var b strings.Builder
	for _, a := range alerts {
		fmt.Fprintf(&b, "*%s* [%s] score %d (was %d)\n", escapeMarkdown(a.state.Name), strings.ToUpper(string(a.state.Urgency)), a.state.CurrentScore, a.state.PreviousScore)
		for _, s := range a.shifts {
			fmt.Fprintf(&b, "  %s jumped %d -> %d\n", s.Dimension, s.Previous, s.Current)
		}
		if a.state.Summary != "" {
			b.WriteString(escapeMarkdown(a.state.Summary))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

// escapeMarkdown neutralises the entity markers of Telegram's legacy Markdown mode.
func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
