package storage

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// Dialect captures the differences between the supported SQL backends.
type Dialect struct {
	Name        string
	DriverName  string
	Placeholder sq.PlaceholderFormat
	serialKey   string
}

var (
	// Postgres is served by github.com/lib/pq.
	Postgres = Dialect{
		Name:        "postgres",
		DriverName:  "postgres",
		Placeholder: sq.Dollar,
		serialKey:   "BIGSERIAL PRIMARY KEY",
	}
	// SQLite is served by modernc.org/sqlite.
	SQLite = Dialect{
		Name:        "sqlite",
		DriverName:  "sqlite",
		Placeholder: sq.Question,
		serialKey:   "INTEGER PRIMARY KEY AUTOINCREMENT",
	}
)

// DialectFor resolves a configured driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case Postgres.Name:
		return Postgres, nil
	case SQLite.Name:
		return SQLite, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported sql driver %q", driver)
	}
}

// Timestamps are stored as RFC 3339 text and booleans as 0/1 so the same
// statements run unchanged on both backends.
func (d Dialect) migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS topics (
			name           TEXT PRIMARY KEY,
			slug           TEXT NOT NULL,
			category       TEXT NOT NULL DEFAULT 'other',
			region         TEXT NOT NULL DEFAULT 'global',
			current_score  INTEGER NOT NULL DEFAULT 0,
			previous_score INTEGER NOT NULL DEFAULT 0,
			urgency        TEXT NOT NULL DEFAULT 'informational',
			summary        TEXT NOT NULL DEFAULT '',
			health_score   INTEGER NOT NULL DEFAULT 0,
			health_level   TEXT NOT NULL DEFAULT '',
			eco_score      INTEGER NOT NULL DEFAULT 0,
			eco_level      TEXT NOT NULL DEFAULT '',
			econ_score     INTEGER NOT NULL DEFAULT 0,
			econ_level     TEXT NOT NULL DEFAULT '',
			article_count  INTEGER NOT NULL DEFAULT 0,
			image_url      TEXT NOT NULL DEFAULT '',
			keywords       TEXT NOT NULL DEFAULT '[]',
			created_at     TEXT NOT NULL,
			updated_at     TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS topics_slug_idx ON topics (slug)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS topic_score_history (
			id               %s,
			topic_name       TEXT NOT NULL REFERENCES topics (name),
			overall_score    INTEGER NOT NULL,
			urgency          TEXT NOT NULL,
			anomalous        INTEGER NOT NULL DEFAULT 0,
			fallback         INTEGER NOT NULL DEFAULT 0,
			health_score     INTEGER NOT NULL,
			health_level     TEXT NOT NULL,
			health_reasoning TEXT NOT NULL DEFAULT '',
			eco_score        INTEGER NOT NULL,
			eco_level        TEXT NOT NULL,
			eco_reasoning    TEXT NOT NULL DEFAULT '',
			econ_score       INTEGER NOT NULL,
			econ_level       TEXT NOT NULL,
			econ_reasoning   TEXT NOT NULL DEFAULT '',
			summary          TEXT NOT NULL DEFAULT '',
			category         TEXT NOT NULL DEFAULT '',
			region           TEXT NOT NULL DEFAULT '',
			keywords         TEXT NOT NULL DEFAULT '[]',
			article_count    INTEGER NOT NULL DEFAULT 0,
			image_url        TEXT NOT NULL DEFAULT '',
			recorded_at      TEXT NOT NULL
		)`, d.serialKey),
		`CREATE INDEX IF NOT EXISTS topic_score_history_topic_idx ON topic_score_history (topic_name, recorded_at)`,
		`CREATE TABLE IF NOT EXISTS articles (
			url          TEXT PRIMARY KEY,
			topic_name   TEXT NOT NULL REFERENCES topics (name),
			title        TEXT NOT NULL,
			source       TEXT NOT NULL DEFAULT '',
			description  TEXT NOT NULL DEFAULT '',
			image_url    TEXT NOT NULL DEFAULT '',
			provenance   TEXT NOT NULL,
			published_at TEXT NOT NULL,
			created_at   TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS articles_topic_idx ON articles (topic_name)`,
	}
}
