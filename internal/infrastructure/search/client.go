package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"EcoPulse/internal/config"
	"EcoPulse/internal/domain"
	"EcoPulse/internal/ports"
)

const (
	defaultGroupSize  = 5
	defaultMaxResults = 10
	defaultTimeout    = 15 * time.Second
)

var (
	ErrUnauthorized = errors.New("search api rejected credentials")
	ErrRateLimited  = errors.New("search api rate limit reached")
)

// Client talks to a GNews-style keyword search API.
type Client struct {
	endpoint   string
	apiKey     string
	language   string
	keywords   []string
	groupSize  int
	maxResults int
	timeout    time.Duration
	denylist   domain.Denylist
	http       *http.Client
	logger     *slog.Logger
}

var _ ports.SearchSource = (*Client)(nil)

// NewClient creates a reusable search client; a nil httpClient gets a default one.
func NewClient(cfg config.SearchConfig, denylist domain.Denylist, httpClient *http.Client, log *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	c := &Client{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		language:   cfg.Language,
		keywords:   cfg.Keywords,
		groupSize:  cfg.GroupSize,
		maxResults: cfg.MaxResults,
		timeout:    cfg.Timeout,
		denylist:   denylist,
		http:       httpClient,
		logger:     log,
	}
	if c.groupSize <= 0 {
		c.groupSize = defaultGroupSize
	}
	if c.maxResults <= 0 {
		c.maxResults = defaultMaxResults
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	return c
}

// Search issues one query per keyword group. Failed groups count as zero results.
func (c *Client) Search(ctx context.Context) domain.SearchResult {
	var result domain.SearchResult

	for _, group := range GroupKeywords(c.keywords, c.groupSize) {
		items, err := c.query(ctx, group)
		if err != nil {
			result.FailedGroups++
			switch {
			case errors.Is(err, ErrUnauthorized):
				c.warn("search group skipped: invalid or missing api key", "keywords", group, "error", err)
			case errors.Is(err, ErrRateLimited):
				c.warn("search group skipped: rate limited", "keywords", group, "error", err)
			default:
				c.warn("search group failed", "keywords", group, "error", err)
			}
			continue
		}

		result.RawCount += len(items)
		for _, item := range items {
			article, reason, ok := c.toArticle(item)
			if !ok {
				c.debug("discard search result", "reason", reason, "url", item.URL)
				continue
			}
			result.Articles = append(result.Articles, article)
		}
	}

	result.FilteredCount = len(result.Articles)
	c.info("search done", "raw", result.RawCount, "kept", result.FilteredCount, "failed_groups", result.FailedGroups)
	return result
}

// GroupKeywords splits keywords into chunks of at most size entries.
func GroupKeywords(keywords []string, size int) [][]string {
	if size <= 0 {
		size = defaultGroupSize
	}

	var cleaned []string
	for _, k := range keywords {
		if k = strings.TrimSpace(k); k != "" {
			cleaned = append(cleaned, k)
		}
	}

	var groups [][]string
	for start := 0; start < len(cleaned); start += size {
		end := min(start+size, len(cleaned))
		groups = append(groups, cleaned[start:end])
	}
	return groups
}

// BuildQuery OR-joins a keyword group, quoting multi-word phrases.
func BuildQuery(group []string) string {
	terms := make([]string, 0, len(group))
	for _, k := range group {
		if strings.ContainsAny(k, " \t") {
			k = strconv.Quote(k)
		}
		terms = append(terms, k)
	}
	return strings.Join(terms, " OR ")
}

type apiResponse struct {
	Articles []apiArticle    `json:"articles"`
	Errors   json.RawMessage `json:"errors"`
}

type apiArticle struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Image       string `json:"image"`
	PublishedAt string `json:"publishedAt"`
	Source      struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	} `json:"source"`
}

func (c *Client) query(ctx context.Context, group []string) ([]apiArticle, error) {
	reqURL, err := c.buildURL(group)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// The request URL carries the api key.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s", ErrUnauthorized, readSnippet(resp.Body))
	case http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: %s", ErrRateLimited, readSnippet(resp.Body))
	default:
		return nil, fmt.Errorf("unexpected status %s: %s", resp.Status, readSnippet(resp.Body))
	}

	var payload apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(payload.Errors) > 0 && string(payload.Errors) != "null" && string(payload.Errors) != "[]" {
		return nil, fmt.Errorf("search api errors: %s", string(payload.Errors))
	}

	return payload.Articles, nil
}

func (c *Client) buildURL(group []string) (string, error) {
	parsed, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid search endpoint %s: %w", c.endpoint, err)
	}

	q := parsed.Query()
	q.Set("q", BuildQuery(group))
	q.Set("max", strconv.Itoa(c.maxResults))
	if c.language != "" {
		q.Set("lang", c.language)
	}
	q.Set("apikey", c.apiKey)
	parsed.RawQuery = q.Encode()
	return parsed.String(), nil
}

func (c *Client) toArticle(item apiArticle) (domain.RawArticle, string, bool) {
	title := strings.TrimSpace(item.Title)
	description := strings.TrimSpace(item.Description)
	link := strings.TrimSpace(item.URL)

	if title == "" || description == "" {
		return domain.RawArticle{}, "missing title or description", false
	}
	if link == "" {
		return domain.RawArticle{}, "missing url", false
	}
	if c.denylist.BlocksSource(item.Source.Name) || c.denylist.BlocksURL(link) {
		return domain.RawArticle{}, "denylisted domain", false
	}

	publishedAt, err := time.Parse(time.RFC3339, strings.TrimSpace(item.PublishedAt))
	if err != nil {
		return domain.RawArticle{}, "unparseable publication date", false
	}

	source := strings.TrimSpace(item.Source.Name)
	if source == "" {
		source = domain.Hostname(link)
	}

	return domain.RawArticle{
		Title:       title,
		URL:         link,
		Source:      source,
		Description: description,
		ImageURL:    strings.TrimSpace(item.Image),
		PublishedAt: publishedAt.UTC(),
	}, "", true
}

func readSnippet(r io.Reader) string {
	payload, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(payload))
}

func (c *Client) debug(msg string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}

func (c *Client) info(msg string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Info(msg, args...)
	}
}

func (c *Client) warn(msg string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}
