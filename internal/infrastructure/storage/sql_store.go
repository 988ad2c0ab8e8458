package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"EcoPulse/internal/domain"
	"EcoPulse/internal/ports"
)

// ErrNotFound is returned by lookups that require an existing row.
var ErrNotFound = errors.New("not found")

var topicColumns = []string{
	"name", "slug", "category", "region", "current_score", "previous_score", "urgency", "summary",
	"health_score", "health_level", "eco_score", "eco_level", "econ_score", "econ_level",
	"article_count", "image_url", "keywords", "created_at", "updated_at",
}

var historyColumns = []string{
	"topic_name", "overall_score", "urgency", "anomalous", "fallback",
	"health_score", "health_level", "health_reasoning",
	"eco_score", "eco_level", "eco_reasoning",
	"econ_score", "econ_level", "econ_reasoning",
	"summary", "category", "region", "keywords", "article_count", "image_url", "recorded_at",
}

// The creation time and slug are kept from the first insert.
const topicUpsertSuffix = `ON CONFLICT (name) DO UPDATE SET
	category = excluded.category,
	region = excluded.region,
	current_score = excluded.current_score,
	previous_score = excluded.previous_score,
	urgency = excluded.urgency,
	summary = excluded.summary,
	health_score = excluded.health_score,
	health_level = excluded.health_level,
	eco_score = excluded.eco_score,
	eco_level = excluded.eco_level,
	econ_score = excluded.econ_score,
	econ_level = excluded.econ_level,
	article_count = excluded.article_count,
	image_url = excluded.image_url,
	keywords = excluded.keywords,
	updated_at = excluded.updated_at`

// SQLStore persists topics, score history and articles into Postgres or SQLite.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	builder sq.StatementBuilderType
	now     func() time.Time
}

var (
	_ ports.TopicStore  = (*SQLStore)(nil)
	_ ports.TopicReader = (*SQLStore)(nil)
)

// NewSQLStore wires a sql.DB opened with the dialect's driver.
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{
		db:      db,
		dialect: dialect,
		builder: sq.StatementBuilder.PlaceholderFormat(dialect.Placeholder),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Open connects to driver/dsn and verifies the connection.
func Open(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(dialect.DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect.Name, err)
	}
	if dialect.Name == SQLite.Name {
		// A single writer avoids SQLITE_BUSY and keeps :memory: databases shared.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect.Name, err)
	}

	return NewSQLStore(db, dialect), nil
}

// Close releases the underlying pool.
func (s *SQLStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Migrate creates the schema if it does not exist yet.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for i, stmt := range s.dialect.migrations() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}

// KnownTopics lists every topic name with its keywords, most recently updated first.
func (s *SQLStore) KnownTopics(ctx context.Context) ([]domain.TopicRef, error) {
	query, args, err := s.builder.Select("name", "keywords").From("topics").OrderBy("updated_at DESC", "name").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build known topics: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query known topics: %w", err)
	}

	var result []domain.TopicRef
	for rows.Next() {
		var (
			ref      domain.TopicRef
			keywords string
		)
		if err := rows.Scan(&ref.Name, &keywords); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		if ref.Keywords, err = decodeKeywords(keywords); err != nil {
			_ = rows.Close()
			return nil, err
		}
		result = append(result, ref)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return result, nil
}

// GetTopic loads the current state of name; found is false when the topic is new.
func (s *SQLStore) GetTopic(ctx context.Context, name string) (domain.TopicState, bool, error) {
	query, args, err := s.builder.Select(topicColumns...).From("topics").Where(sq.Eq{"name": name}).ToSql()
	if err != nil {
		return domain.TopicState{}, false, fmt.Errorf("build get topic: %w", err)
	}

	var (
		state                      domain.TopicState
		urgency                    string
		healthLvl, ecoLvl, econLvl string
		keywords                   string
		createdAt, updatedAt       string
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(
		&state.Name, &state.Slug, &state.Category, &state.Region,
		&state.CurrentScore, &state.PreviousScore, &urgency, &state.Summary,
		&state.HealthScore, &healthLvl, &state.EcoScore, &ecoLvl, &state.EconScore, &econLvl,
		&state.ArticleCount, &state.ImageURL, &keywords, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.TopicState{}, false, nil
	}
	if err != nil {
		return domain.TopicState{}, false, fmt.Errorf("query topic %q: %w", name, err)
	}

	state.Urgency = domain.Urgency(urgency)
	state.HealthLevel = domain.SeverityLevel(healthLvl)
	state.EcoLevel = domain.SeverityLevel(ecoLvl)
	state.EconLevel = domain.SeverityLevel(econLvl)
	if state.Keywords, err = decodeKeywords(keywords); err != nil {
		return domain.TopicState{}, false, err
	}
	if state.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.TopicState{}, false, err
	}
	if state.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return domain.TopicState{}, false, err
	}

	return state, true, nil
}

// SaveTopicRun writes the topic upsert, the history row and the article rows in
// one transaction. Articles whose URL is already stored are skipped.
func (s *SQLStore) SaveTopicRun(ctx context.Context, state domain.TopicState, snapshot domain.TopicScoreSnapshot, articles []domain.StoredArticle) (inserted int, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.upsertTopic(ctx, tx, state); err != nil {
		return 0, err
	}
	if err = s.insertHistory(ctx, tx, snapshot); err != nil {
		return 0, err
	}
	if inserted, err = s.insertArticles(ctx, tx, articles); err != nil {
		return 0, err
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

func (s *SQLStore) upsertTopic(ctx context.Context, tx *sql.Tx, state domain.TopicState) error {
	keywords, err := encodeKeywords(state.Keywords)
	if err != nil {
		return err
	}

	query, args, err := s.builder.Insert("topics").
		Columns(topicColumns...).
		Values(
			state.Name, state.Slug, state.Category, state.Region,
			state.CurrentScore, state.PreviousScore, string(state.Urgency), state.Summary,
			state.HealthScore, string(state.HealthLevel), state.EcoScore, string(state.EcoLevel),
			state.EconScore, string(state.EconLevel),
			state.ArticleCount, state.ImageURL, keywords,
			formatTime(state.CreatedAt), formatTime(state.UpdatedAt),
		).
		Suffix(topicUpsertSuffix).
		ToSql()
	if err != nil {
		return fmt.Errorf("build topic upsert: %w", err)
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert topic %q: %w", state.Name, err)
	}
	return nil
}

func (s *SQLStore) insertHistory(ctx context.Context, tx *sql.Tx, snap domain.TopicScoreSnapshot) error {
	keywords, err := encodeKeywords(snap.Keywords)
	if err != nil {
		return err
	}

	query, args, err := s.builder.Insert("topic_score_history").
		Columns(historyColumns...).
		Values(
			snap.TopicName, snap.OverallScore, string(snap.Urgency), boolToInt(snap.Anomalous), boolToInt(snap.Fallback),
			snap.Health.Score, string(snap.Health.Level), snap.Health.Reasoning,
			snap.Ecological.Score, string(snap.Ecological.Level), snap.Ecological.Reasoning,
			snap.Economic.Score, string(snap.Economic.Level), snap.Economic.Reasoning,
			snap.Summary, snap.Category, snap.Region, keywords, snap.ArticleCount, snap.ImageURL,
			formatTime(snap.RecordedAt),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build history insert: %w", err)
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert history for %q: %w", snap.TopicName, err)
	}
	return nil
}

func (s *SQLStore) insertArticles(ctx context.Context, tx *sql.Tx, articles []domain.StoredArticle) (int, error) {
	created := formatTime(s.now())
	inserted := 0
	for _, a := range articles {
		query, args, err := s.builder.Insert("articles").
			Columns("url", "topic_name", "title", "source", "description", "image_url", "provenance", "published_at", "created_at").
			Values(a.URL, a.TopicName, a.Title, a.Source, a.Description, a.ImageURL, string(a.Provenance), formatTime(a.PublishedAt), created).
			Suffix("ON CONFLICT (url) DO NOTHING").
			ToSql()
		if err != nil {
			return 0, fmt.Errorf("build article insert: %w", err)
		}

		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, fmt.Errorf("insert article %q: %w", a.URL, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		inserted += int(n)
	}
	return inserted, nil
}

// History returns up to limit snapshots of name, newest first.
func (s *SQLStore) History(ctx context.Context, name string, limit int) ([]domain.TopicScoreSnapshot, error) {
	builder := s.builder.Select(historyColumns...).
		From("topic_score_history").
		Where(sq.Eq{"topic_name": name}).
		OrderBy("id DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build history: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var result []domain.TopicScoreSnapshot
	for rows.Next() {
		var (
			snap                       domain.TopicScoreSnapshot
			urgency                    string
			anomalous, fallback        int
			healthLvl, ecoLvl, econLvl string
			keywords, recordedAt       string
		)
		if err := rows.Scan(
			&snap.TopicName, &snap.OverallScore, &urgency, &anomalous, &fallback,
			&snap.Health.Score, &healthLvl, &snap.Health.Reasoning,
			&snap.Ecological.Score, &ecoLvl, &snap.Ecological.Reasoning,
			&snap.Economic.Score, &econLvl, &snap.Economic.Reasoning,
			&snap.Summary, &snap.Category, &snap.Region, &keywords, &snap.ArticleCount, &snap.ImageURL,
			&recordedAt,
		); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		snap.Urgency = domain.Urgency(urgency)
		snap.Anomalous = anomalous != 0
		snap.Fallback = fallback != 0
		snap.Health.Level = domain.SeverityLevel(healthLvl)
		snap.Ecological.Level = domain.SeverityLevel(ecoLvl)
		snap.Economic.Level = domain.SeverityLevel(econLvl)
		if snap.Keywords, err = decodeKeywords(keywords); err != nil {
			return nil, err
		}
		if snap.RecordedAt, err = parseTime(recordedAt); err != nil {
			return nil, err
		}
		result = append(result, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return result, nil
}

// Article loads one stored article by URL.
func (s *SQLStore) Article(ctx context.Context, url string) (domain.StoredArticle, error) {
	query, args, err := s.builder.
		Select("url", "topic_name", "title", "source", "description", "image_url", "provenance", "published_at").
		From("articles").
		Where(sq.Eq{"url": url}).
		ToSql()
	if err != nil {
		return domain.StoredArticle{}, fmt.Errorf("build article: %w", err)
	}

	var (
		a                       domain.StoredArticle
		provenance, publishedAt string
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(
		&a.URL, &a.TopicName, &a.Title, &a.Source, &a.Description, &a.ImageURL, &provenance, &publishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.StoredArticle{}, fmt.Errorf("article %q: %w", url, ErrNotFound)
	}
	if err != nil {
		return domain.StoredArticle{}, fmt.Errorf("query article %q: %w", url, err)
	}
	a.Provenance = domain.Provenance(provenance)
	if a.PublishedAt, err = parseTime(publishedAt); err != nil {
		return domain.StoredArticle{}, err
	}
	return a, nil
}

func encodeKeywords(keywords []string) (string, error) {
	if keywords == nil {
		keywords = []string{}
	}
	raw, err := json.Marshal(keywords)
	if err != nil {
		return "", fmt.Errorf("encode keywords: %w", err)
	}
	return string(raw), nil
}

func decodeKeywords(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var keywords []string
	if err := json.Unmarshal([]byte(raw), &keywords); err != nil {
		return nil, fmt.Errorf("decode keywords: %w", err)
	}
	return keywords, nil
}

// storedTimeLayout has a fixed-width fraction so stored values sort lexically.
const storedTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(storedTimeLayout)
}

func parseTime(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", raw, err)
	}
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
