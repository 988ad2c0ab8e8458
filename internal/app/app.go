package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"EcoPulse/internal/config"
	"EcoPulse/internal/domain"
	"EcoPulse/internal/infrastructure/llm"
	"EcoPulse/internal/infrastructure/parser"
	"EcoPulse/internal/infrastructure/scheduler"
	"EcoPulse/internal/infrastructure/search"
	"EcoPulse/internal/infrastructure/storage"
	"EcoPulse/internal/infrastructure/telegram"
	"EcoPulse/internal/logging"
	"EcoPulse/internal/ports"
	"EcoPulse/internal/usecase"
)

const shutdownTimeout = 30 * time.Second

// ErrTopicNotFound is returned by topic lookups for a name the store has never seen.
var ErrTopicNotFound = errors.New("topic not found")

// topicStore is what the SQL and memory stores both provide.
type topicStore interface {
	ports.TopicStore
	ports.TopicReader
}

// TopicReport is a topic's current state with its most recent score history.
type TopicReport struct {
	Topic   domain.TopicState           `json:"topic"`
	History []domain.TopicScoreSnapshot `json:"history"`
}

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	logger    *slog.Logger
	closeFn   func() error
	reader    ports.TopicReader
	pipeline  *usecase.Pipeline
	scheduler *usecase.Scheduler
}

// New validates cfg, opens the topic store and builds the pipeline.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := scheduler.ValidateSpec(cfg.Scheduler.CronExpression); err != nil {
		return nil, err
	}

	store, closeFn, err := openStore(ctx, cfg.Database, baseLogger.With("component", "storage"))
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{}
	denylist := domain.NewDenylist(cfg.Denylist)

	feeds := parser.NewFeedSource(cfg.Feeds, cfg.FeedTimeout, httpClient, baseLogger.With("component", "feeds"))

	var searchSource ports.SearchSource
	if cfg.Search.APIKey != "" {
		searchSource = search.NewClient(cfg.Search, denylist, httpClient, baseLogger.With("component", "search"))
	} else {
		baseLogger.Warn("search api key is not configured, keyword search disabled")
	}

	var notifier ports.Notifier
	if cfg.Notifications.Telegram.Enabled() {
		notifier = telegram.NewNotifier(cfg.Notifications.Telegram.BotToken, cfg.Notifications.Telegram.ChatID)
	}

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Feeds:    feeds,
		Search:   searchSource,
		Oracle:   llm.NewChatGPTClient(cfg.Oracle, httpClient),
		Store:    store,
		Notifier: notifier,
		Denylist: denylist,
		Settings: usecase.Settings{
			ClassifyBatchSize:   cfg.Oracle.ClassifyBatchSize,
			MaxArticlesPerTopic: cfg.Oracle.MaxArticlesPerTopic,
			AnomalyThreshold:    cfg.Scoring.AnomalyThreshold,
			ClampWarnRatio:      cfg.Scoring.ClampWarnRatio,
		},
		Logger: baseLogger.With("component", "pipeline"),
	})

	driver := scheduler.NewCronScheduler(cfg.Scheduler.CronExpression, cfg.Scheduler.Location(), baseLogger.With("component", "cron"))

	return &Application{
		logger:    baseLogger,
		closeFn:   closeFn,
		reader:    store,
		pipeline:  pipeline,
		scheduler: usecase.NewScheduler(driver, pipeline, baseLogger.With("component", "scheduler")),
	}, nil
}

// RunOnce performs a single pipeline execution.
func (a *Application) RunOnce(ctx context.Context) (domain.RunSummary, error) {
	return a.pipeline.Run(ctx)
}

// Serve runs the pipeline on the configured schedule until ctx is cancelled.
func (a *Application) Serve(ctx context.Context) error {
	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	<-ctx.Done()
	a.logger.Info("shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return a.scheduler.Stop(stopCtx)
}

// Topic reports the stored state and up to limit history rows of name.
func (a *Application) Topic(ctx context.Context, name string, limit int) (TopicReport, error) {
	return loadTopicReport(ctx, a.reader, name, limit)
}

// Close releases the topic store.
func (a *Application) Close() error {
	if a.closeFn == nil {
		return nil
	}
	return a.closeFn()
}

// Migrate creates the SQL schema without requiring the oracle configuration.
func Migrate(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if logger == nil {
		logger = logging.New(cfg.Logging.Level)
	}
	if cfg.Database.Driver == config.DriverMemory {
		logger.Info("memory driver selected, nothing to migrate")
		return nil
	}
	if cfg.Database.DSN == "" {
		return config.ErrMissingDatabaseDSN
	}

	_, closeFn, err := openStore(ctx, cfg.Database, logger.With("component", "storage"))
	if err != nil {
		return err
	}
	return closeFn()
}

// ShowTopic opens the store read-side and reports one topic. It needs no oracle configuration.
func ShowTopic(ctx context.Context, cfg config.Config, logger *slog.Logger, name string, limit int) (TopicReport, error) {
	reader, closeFn, err := openReader(ctx, cfg, logger)
	if err != nil {
		return TopicReport{}, err
	}
	defer func() { _ = closeFn() }()

	return loadTopicReport(ctx, reader, name, limit)
}

// ShowArticle opens the store read-side and loads one stored article by URL.
func ShowArticle(ctx context.Context, cfg config.Config, logger *slog.Logger, url string) (domain.StoredArticle, error) {
	reader, closeFn, err := openReader(ctx, cfg, logger)
	if err != nil {
		return domain.StoredArticle{}, err
	}
	defer func() { _ = closeFn() }()

	article, err := reader.Article(ctx, url)
	if err != nil {
		return domain.StoredArticle{}, fmt.Errorf("load article: %w", err)
	}
	return article, nil
}

func openReader(ctx context.Context, cfg config.Config, logger *slog.Logger) (ports.TopicReader, func() error, error) {
	if logger == nil {
		logger = logging.New(cfg.Logging.Level)
	}
	if cfg.Database.Driver != config.DriverMemory && cfg.Database.DSN == "" {
		return nil, nil, config.ErrMissingDatabaseDSN
	}
	return openStore(ctx, cfg.Database, logger.With("component", "storage"))
}

func loadTopicReport(ctx context.Context, reader ports.TopicReader, name string, limit int) (TopicReport, error) {
	state, found, err := reader.GetTopic(ctx, name)
	if err != nil {
		return TopicReport{}, fmt.Errorf("load topic: %w", err)
	}
	if !found {
		return TopicReport{}, fmt.Errorf("%w: %q", ErrTopicNotFound, name)
	}

	history, err := reader.History(ctx, state.Name, limit)
	if err != nil {
		return TopicReport{}, fmt.Errorf("load history: %w", err)
	}
	return TopicReport{Topic: state, History: history}, nil
}

// openStore returns the configured store; SQL stores are migrated on open.
func openStore(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (topicStore, func() error, error) {
	if cfg.Driver == config.DriverMemory {
		logger.Warn("memory driver selected, topic state is not persisted")
		return storage.NewMemoryStore(), func() error { return nil }, nil
	}

	store, err := storage.Open(ctx, cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("migrate %s: %w", cfg.Driver, err)
	}
	logger.Info("topic store ready", "driver", cfg.Driver)

	return store, store.Close, nil
}
