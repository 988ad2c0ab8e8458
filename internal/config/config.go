package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone   = "UTC"
	configPathEnv     = "ECOPULSE_CONFIG"
	logLevelEnv       = "LOG_LEVEL"
	databaseDSNEnv    = "DATABASE_DSN"
	databaseDriverEnv = "DATABASE_DRIVER"
	oracleAPIKeyEnv   = "ORACLE_API_KEY"
	oracleModelEnv    = "ORACLE_MODEL"
	oracleEndpointEnv = "ORACLE_ENDPOINT"
	searchAPIKeyEnv   = "SEARCH_API_KEY"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

var (
	ErrMissingOracleKey   = errors.New("oracle api key is not configured")
	ErrMissingDatabaseDSN = errors.New("database dsn is not configured")
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Feeds         []FeedConfig       `yaml:"feeds"`
	FeedTimeout   time.Duration      `yaml:"feedTimeout"`
	Search        SearchConfig       `yaml:"search"`
	Denylist      []string           `yaml:"denylist"`
	Oracle        OracleConfig       `yaml:"oracle"`
	Scoring       ScoringConfig      `yaml:"scoring"`
	Database      DatabaseConfig     `yaml:"database"`
	Notifications NotificationConfig `yaml:"notifications"`
}

// LoggingConfig sets the slog level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// SchedulerConfig defines when the pipeline should run.
type SchedulerConfig struct {
	CronExpression string         `yaml:"cronExpression"`
	Timezone       string         `yaml:"timezone"`
	location       *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// FeedConfig is one syndication feed endpoint. Name is optional.
type FeedConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// SearchConfig describes the keyword news search API.
type SearchConfig struct {
	Endpoint   string        `yaml:"endpoint"`
	APIKey     string        `yaml:"apiKey"`
	Keywords   []string      `yaml:"keywords"`
	GroupSize  int           `yaml:"groupSize"`
	MaxResults int           `yaml:"maxResults"`
	Language   string        `yaml:"language"`
	Timeout    time.Duration `yaml:"timeout"`
}

// OracleConfig defines how to contact the language-model API.
type OracleConfig struct {
	Endpoint            string        `yaml:"endpoint"`
	Model               string        `yaml:"model"`
	APIKey              string        `yaml:"apiKey"`
	Timeout             time.Duration `yaml:"timeout"`
	ClassifyBatchSize   int           `yaml:"classifyBatchSize"`
	MaxArticlesPerTopic int           `yaml:"maxArticlesPerTopic"`
}

// ScoringConfig carries the tunable thresholds of the severity rules.
type ScoringConfig struct {
	AnomalyThreshold int     `yaml:"anomalyThreshold"`
	ClampWarnRatio   float64 `yaml:"clampWarnRatio"`
}

// DatabaseConfig selects the topic store backend.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// Enabled reports whether both credentials are present.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// Load reads YAML configuration (if present), the .env file and environment overrides.
// An empty path falls back to ECOPULSE_CONFIG.
func Load(path string) Config {
	cfg := defaultConfig()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("config: cannot read .env: %v", err)
	}

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	return cfg
}

// Validate reports configuration problems that must abort a run before any fetch.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Oracle.APIKey) == "" {
		return ErrMissingOracleKey
	}

	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
		if strings.TrimSpace(c.Database.DSN) == "" {
			return ErrMissingDatabaseDSN
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(databaseDriverEnv); v != "" {
		c.Database.Driver = v
	}

	if v := os.Getenv(oracleAPIKeyEnv); v != "" {
		c.Oracle.APIKey = v
	}

	if v := os.Getenv(oracleModelEnv); v != "" {
		c.Oracle.Model = v
	}

	if v := os.Getenv(oracleEndpointEnv); v != "" {
		c.Oracle.Endpoint = v
	}

	if v := os.Getenv(searchAPIKeyEnv); v != "" {
		c.Search.APIKey = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}

	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}

	if override.Scheduler.CronExpression != "" {
		base.Scheduler.CronExpression = override.Scheduler.CronExpression
	}
	if override.Scheduler.Timezone != "" {
		base.Scheduler.Timezone = override.Scheduler.Timezone
	}

	if len(override.Feeds) > 0 {
		base.Feeds = override.Feeds
	}
	if override.FeedTimeout > 0 {
		base.FeedTimeout = override.FeedTimeout
	}

	if override.Search.Endpoint != "" {
		base.Search.Endpoint = override.Search.Endpoint
	}
	if override.Search.APIKey != "" {
		base.Search.APIKey = override.Search.APIKey
	}
	if len(override.Search.Keywords) > 0 {
		base.Search.Keywords = override.Search.Keywords
	}
	if override.Search.GroupSize > 0 {
		base.Search.GroupSize = override.Search.GroupSize
	}
	if override.Search.MaxResults > 0 {
		base.Search.MaxResults = override.Search.MaxResults
	}
	if override.Search.Language != "" {
		base.Search.Language = override.Search.Language
	}
	if override.Search.Timeout > 0 {
		base.Search.Timeout = override.Search.Timeout
	}

	if override.Denylist != nil {
		base.Denylist = override.Denylist
	}

	if override.Oracle.Endpoint != "" {
		base.Oracle.Endpoint = override.Oracle.Endpoint
	}
	if override.Oracle.Model != "" {
		base.Oracle.Model = override.Oracle.Model
	}
	if override.Oracle.APIKey != "" {
		base.Oracle.APIKey = override.Oracle.APIKey
	}
	if override.Oracle.Timeout > 0 {
		base.Oracle.Timeout = override.Oracle.Timeout
	}
	if override.Oracle.ClassifyBatchSize > 0 {
		base.Oracle.ClassifyBatchSize = override.Oracle.ClassifyBatchSize
	}
	if override.Oracle.MaxArticlesPerTopic > 0 {
		base.Oracle.MaxArticlesPerTopic = override.Oracle.MaxArticlesPerTopic
	}

	if override.Scoring.AnomalyThreshold > 0 {
		base.Scoring.AnomalyThreshold = override.Scoring.AnomalyThreshold
	}
	if override.Scoring.ClampWarnRatio > 0 {
		base.Scoring.ClampWarnRatio = override.Scoring.ClampWarnRatio
	}

	if override.Database.Driver != "" {
		base.Database.Driver = override.Database.Driver
	}
	if override.Database.DSN != "" {
		base.Database.DSN = override.Database.DSN
	}

	if override.Notifications.Telegram.BotToken != "" {
		base.Notifications.Telegram.BotToken = override.Notifications.Telegram.BotToken
	}
	if override.Notifications.Telegram.ChatID != "" {
		base.Notifications.Telegram.ChatID = override.Notifications.Telegram.ChatID
	}

	return base
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging:   LoggingConfig{Level: "info"},
		Scheduler: SchedulerConfig{CronExpression: "0 */6 * * *", Timezone: defaultTimezone, location: tz},
		Feeds: []FeedConfig{
			{URL: "https://www.theguardian.com/environment/rss"},
			{URL: "https://feeds.bbci.co.uk/news/science_and_environment/rss.xml"},
			{URL: "https://insideclimatenews.org/feed/"},
			{URL: "https://grist.org/feed/"},
			{URL: "https://news.mongabay.com/feed/"},
		},
		FeedTimeout: 15 * time.Second,
		Search: SearchConfig{
			Endpoint: "https://gnews.io/api/v4/search",
			Keywords: []string{
				"pollution", "deforestation", "wildfire", "drought", "flooding",
				"oil spill", "air quality", "biodiversity loss", "coral bleaching", "heatwave",
			},
			GroupSize:  5,
			MaxResults: 10,
			Language:   "en",
			Timeout:    15 * time.Second,
		},
		Denylist: []string{
			"ebay.com", "etsy.com", "amazon.com", "aliexpress.com",
			"buzzfeed.com", "listverse.com", "ranker.com", "pinterest.com",
		},
		Oracle: OracleConfig{
			Endpoint:            "https://api.openai.com/v1",
			Model:               "gpt-4o-mini",
			Timeout:             60 * time.Second,
			ClassifyBatchSize:   20,
			MaxArticlesPerTopic: 10,
		},
		Scoring: ScoringConfig{
			AnomalyThreshold: 25,
			ClampWarnRatio:   0.30,
		},
		Database: DatabaseConfig{Driver: DriverSQLite, DSN: "file:ecopulse.db?_pragma=busy_timeout(5000)"},
	}
}
