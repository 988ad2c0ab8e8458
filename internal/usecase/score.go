package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"EcoPulse/internal/domain"
	"EcoPulse/internal/logging"
	"EcoPulse/internal/ports"
)

const (
	defaultMaxArticlesPerTopic = 10
	maxKeywords                = 10
	defaultCategory            = "other"
	defaultRegion              = "global"
)

// Categories the oracle may assign to a topic.
var Categories = []string{
	"climate", "pollution", "biodiversity", "water", "energy", "disasters", "policy", defaultCategory,
}

// Scorer asks the oracle for the three-dimension severity rubric of a topic.
type Scorer struct {
	oracle      ports.Oracle
	extract     Extractor
	maxArticles int
	logger      *slog.Logger
}

// NewScorer wires the oracle; maxArticles bounds the articles quoted in the prompt.
func NewScorer(oracle ports.Oracle, extract Extractor, maxArticles int, log *slog.Logger) *Scorer {
	if maxArticles <= 0 {
		maxArticles = defaultMaxArticlesPerTopic
	}
	if extract == nil {
		extract = ExtractJSON
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Scorer{oracle: oracle, extract: extract, maxArticles: maxArticles, logger: log}
}

type dimensionReply struct {
	Reasoning string   `json:"reasoning"`
	Level     string   `json:"level"`
	Score     *float64 `json:"score"`
}

type scoringReply struct {
	Health     *dimensionReply `json:"health"`
	Ecological *dimensionReply `json:"ecological"`
	Economic   *dimensionReply `json:"economic"`
	Summary    string          `json:"summary"`
	Category   string          `json:"category"`
	Region     string          `json:"region"`
	Keywords   []string        `json:"keywords"`
}

// Score returns the raw (not yet validated) snapshot for topic. Any oracle
// failure yields DefaultSnapshot; Score never returns an error.
func (s *Scorer) Score(ctx context.Context, topic string, articles []domain.MergedArticle) domain.TopicScoreSnapshot {
	prompt := BuildScoringPrompt(topic, limitArticles(articles, s.maxArticles))

	reply, err := s.oracle.Complete(ctx, prompt)
	if err != nil {
		s.logger.Warn("scoring oracle call failed, using default assessment", "topic", topic, "error", err)
		return DefaultSnapshot(topic)
	}

	var parsed scoringReply
	if !decodeReply(s.extract, reply, &parsed) {
		s.logger.Warn("scoring reply not parseable, using default assessment", "topic", topic, "raw", logging.Truncate(reply, replyLogLimit))
		return DefaultSnapshot(topic)
	}

	health, okH := parsed.Health.toResult()
	eco, okE := parsed.Ecological.toResult()
	econ, okC := parsed.Economic.toResult()
	if !okH || !okE || !okC {
		s.logger.Warn("scoring reply missing a dimension score, using default assessment", "topic", topic, "raw", logging.Truncate(reply, replyLogLimit))
		return DefaultSnapshot(topic)
	}

	summary := strings.TrimSpace(parsed.Summary)
	if summary == "" {
		summary = defaultSummary(topic)
	}

	return domain.TopicScoreSnapshot{
		TopicName:  topic,
		Health:     health,
		Ecological: eco,
		Economic:   econ,
		Summary:    summary,
		Category:   normalizeCategory(parsed.Category),
		Region:     normalizeRegion(parsed.Region),
		Keywords:   normalizeKeywords(parsed.Keywords),
	}
}

// maxRawScore bounds oracle scores before the int conversion; validation clamps further.
const maxRawScore = 1e6

func (d *dimensionReply) toResult() (domain.DimensionResult, bool) {
	if d == nil || d.Score == nil {
		return domain.DimensionResult{}, false
	}
	score := *d.Score
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return domain.DimensionResult{}, false
	}
	return domain.DimensionResult{
		Reasoning: strings.TrimSpace(d.Reasoning),
		Level:     domain.ParseSeverityLevel(d.Level),
		Score:     int(math.Round(math.Max(-maxRawScore, math.Min(maxRawScore, score)))),
	}, true
}

// DefaultSnapshot is the structurally valid assessment used when the oracle fails.
func DefaultSnapshot(topic string) domain.TopicScoreSnapshot {
	dim := domain.DimensionResult{
		Reasoning: "Automated assessment unavailable; default moderate severity applied.",
		Level:     domain.LevelModerate,
		Score:     50,
	}
	return domain.TopicScoreSnapshot{
		TopicName:  topic,
		Health:     dim,
		Ecological: dim,
		Economic:   dim,
		Summary:    defaultSummary(topic),
		Category:   defaultCategory,
		Region:     defaultRegion,
		Fallback:   true,
	}
}

func defaultSummary(topic string) string {
	return fmt.Sprintf("Ongoing coverage of %s; a detailed severity assessment could not be produced for this update.", topic)
}

// BuildScoringPrompt renders the rubric request for one topic.
func BuildScoringPrompt(topic string, articles []domain.MergedArticle) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Assess the severity of the environmental topic %q using only the articles below.\n\n", topic)
	b.WriteString("Score three dimensions independently: health (human health impact), ecological (damage to ecosystems and wildlife), ")
	b.WriteString("economic (costs, livelihoods, infrastructure).\n")
	b.WriteString("For each dimension give 2-3 sentences of reasoning grounded in the articles, a level and a score that lies inside the level's range:\n")
	b.WriteString("- MINIMAL: 0-25\n- MODERATE: 26-50\n- SIGNIFICANT: 51-75\n- SEVERE: 76-100\n")
	b.WriteString("- INSUFFICIENT_DATA: score -1, when the articles do not support an assessment of that dimension.\n")
	b.WriteString("Do NOT compute or return an overall score or an urgency; those are derived elsewhere.\n\n")
	fmt.Fprintf(&b, "Also return a one or two sentence summary, a category (one of: %s), ", strings.Join(Categories, ", "))
	b.WriteString("the affected region, and up to 10 short keywords.\n\n")

	b.WriteString("Articles:\n")
	for i, a := range articles {
		fmt.Fprintf(&b, "%d. %s (%s, %s)\n", i+1, a.Title, a.Source, a.PublishedAt.Format("2006-01-02"))
		if a.Description != "" {
			fmt.Fprintf(&b, "   %s\n", logging.Truncate(a.Description, promptDescriptionLimit))
		}
	}

	b.WriteString("\nRespond with JSON only, in this exact shape:\n")
	b.WriteString(`{"health": {"reasoning": "...", "level": "MODERATE", "score": 40}, `)
	b.WriteString(`"ecological": {"reasoning": "...", "level": "SEVERE", "score": 80}, `)
	b.WriteString(`"economic": {"reasoning": "...", "level": "INSUFFICIENT_DATA", "score": -1}, `)
	b.WriteString(`"summary": "...", "category": "pollution", "region": "...", "keywords": ["..."]}`)
	b.WriteString("\n")

	return b.String()
}

// limitArticles keeps the newest n articles.
func limitArticles(articles []domain.MergedArticle, n int) []domain.MergedArticle {
	sorted := sortNewestFirst(articles)
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func sortNewestFirst(articles []domain.MergedArticle) []domain.MergedArticle {
	sorted := make([]domain.MergedArticle, len(articles))
	copy(sorted, articles)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PublishedAt.After(sorted[j].PublishedAt)
	})
	return sorted
}

func normalizeCategory(raw string) string {
	c := strings.ToLower(strings.TrimSpace(raw))
	for _, known := range Categories {
		if c == known {
			return c
		}
	}
	return defaultCategory
}

func normalizeRegion(raw string) string {
	if r := strings.TrimSpace(raw); r != "" {
		return r
	}
	return defaultRegion
}

func normalizeKeywords(raw []string) []string {
	out := MergeKeywords(nil, raw)
	if len(out) > maxKeywords {
		out = out[:maxKeywords]
	}
	return out
}
