package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"EcoPulse/internal/domain"
	"EcoPulse/internal/logging"
	"EcoPulse/internal/ports"
)

const (
	defaultClassifyBatchSize = 20
	promptDescriptionLimit   = 300
	replyLogLimit            = 500
)

// Classifier asks the oracle to drop non-news items and group the rest into topics.
type Classifier struct {
	oracle    ports.Oracle
	extract   Extractor
	batchSize int
	logger    *slog.Logger
}

// NewClassifier wires the oracle; batchSize <= 0 uses the default of 20.
func NewClassifier(oracle ports.Oracle, extract Extractor, batchSize int, log *slog.Logger) *Classifier {
	if batchSize <= 0 {
		batchSize = defaultClassifyBatchSize
	}
	if extract == nil {
		extract = ExtractJSON
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Classifier{oracle: oracle, extract: extract, batchSize: batchSize, logger: log}
}

// ClassifyResult aggregates classification across every sub-batch.
type ClassifyResult struct {
	Classifications []domain.Classification
	Rejected        int
}

type classificationReply struct {
	Classifications *[]struct {
		ArticleIndex *int   `json:"articleIndex"`
		TopicName    string `json:"topicName"`
	} `json:"classifications"`
	Rejected         []int           `json:"rejected"`
	RejectionReasons json.RawMessage `json:"rejectionReasons"`
}

// Classify processes articles in sequential sub-batches. Article indices in the
// result refer to the full articles slice.
func (c *Classifier) Classify(ctx context.Context, articles []domain.MergedArticle, known []domain.TopicRef) ClassifyResult {
	var result ClassifyResult
	topics := newTopicIndex(known)

	for start := 0; start < len(articles); start += c.batchSize {
		end := min(start+c.batchSize, len(articles))
		batch := articles[start:end]

		classifications, rejected := c.classifyBatch(ctx, batch, topics)
		for _, cl := range classifications {
			cl.ArticleIndex += start
			result.Classifications = append(result.Classifications, cl)
		}
		result.Rejected += rejected
	}

	if len(articles) > 0 {
		kept := len(result.Classifications)
		c.logger.Info("classification done",
			"total", len(articles),
			"kept", kept,
			"rejected", result.Rejected,
			"relevance_rate", fmt.Sprintf("%.2f", float64(kept)/float64(len(articles))),
		)
	}

	return result
}

func (c *Classifier) classifyBatch(ctx context.Context, batch []domain.MergedArticle, topics *topicIndex) ([]domain.Classification, int) {
	prompt := BuildClassificationPrompt(batch, topics.refs())

	reply, err := c.oracle.Complete(ctx, prompt)
	if err != nil {
		c.logger.Warn("classification oracle call failed", "batch_size", len(batch), "error", err)
		return nil, 0
	}

	var parsed classificationReply
	if !decodeReply(c.extract, reply, &parsed) || parsed.Classifications == nil {
		c.logger.Warn("classification reply not parseable", "batch_size", len(batch), "raw", logging.Truncate(reply, replyLogLimit))
		return nil, 0
	}

	rejected := make(map[int]struct{}, len(parsed.Rejected))
	reasons := parseReasons(parsed.RejectionReasons)
	for _, idx := range parsed.Rejected {
		if idx < 0 || idx >= len(batch) {
			continue
		}
		if _, dup := rejected[idx]; dup {
			continue
		}
		rejected[idx] = struct{}{}
		c.logger.Info("article rejected", "title", batch[idx].Title, "reason", reasons[idx])
	}

	assigned := make(map[int]struct{}, len(batch))
	var out []domain.Classification
	for _, entry := range *parsed.Classifications {
		if entry.ArticleIndex == nil {
			continue
		}
		idx := *entry.ArticleIndex
		if idx < 0 || idx >= len(batch) {
			c.logger.Debug("classification index out of range", "index", idx)
			continue
		}
		if _, skip := rejected[idx]; skip {
			continue
		}
		if _, dup := assigned[idx]; dup {
			continue
		}
		name := strings.Join(strings.Fields(entry.TopicName), " ")
		if name == "" {
			continue
		}

		canonical, isNew := topics.resolve(name)
		assigned[idx] = struct{}{}
		out = append(out, domain.Classification{
			ArticleIndex: idx,
			TopicName:    canonical,
			IsNew:        isNew,
		})
	}

	return out, len(rejected)
}

// parseReasons accepts either {"3": "listicle"} or [{"index":3,"reason":"listicle"}].
func parseReasons(raw json.RawMessage) map[int]string {
	reasons := map[int]string{}
	if len(raw) == 0 {
		return reasons
	}

	var byKey map[string]string
	if err := json.Unmarshal(raw, &byKey); err == nil {
		for k, v := range byKey {
			if idx, err := strconv.Atoi(strings.TrimSpace(k)); err == nil {
				reasons[idx] = v
			}
		}
		return reasons
	}

	var list []struct {
		Index  int    `json:"index"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, item := range list {
			reasons[item.Index] = item.Reason
		}
	}
	return reasons
}

// topicIndex resolves oracle topic names against known topics case-insensitively
// and remembers topics proposed earlier in the same run.
type topicIndex struct {
	byKey   map[string]string
	ordered []domain.TopicRef
	known   map[string]bool
}

func newTopicIndex(known []domain.TopicRef) *topicIndex {
	idx := &topicIndex{byKey: map[string]string{}, known: map[string]bool{}}
	for _, ref := range known {
		key := strings.ToLower(strings.TrimSpace(ref.Name))
		if key == "" {
			continue
		}
		if _, ok := idx.byKey[key]; ok {
			continue
		}
		idx.byKey[key] = ref.Name
		idx.known[key] = true
		idx.ordered = append(idx.ordered, ref)
	}
	return idx
}

// resolve returns the canonical spelling and whether the topic does not exist in the store.
func (t *topicIndex) resolve(name string) (string, bool) {
	key := strings.ToLower(name)
	if canonical, ok := t.byKey[key]; ok {
		return canonical, !t.known[key]
	}
	t.byKey[key] = name
	t.ordered = append(t.ordered, domain.TopicRef{Name: name})
	return name, true
}

func (t *topicIndex) refs() []domain.TopicRef {
	return t.ordered
}

// BuildClassificationPrompt renders the filter-and-group request for one batch.
func BuildClassificationPrompt(batch []domain.MergedArticle, known []domain.TopicRef) string {
	var b strings.Builder

	b.WriteString("You are an editor for an environmental news monitor.\n\n")
	b.WriteString("Step 1 - filter. Reject every article that is not genuinely newsworthy environmental reporting. ")
	b.WriteString("Always reject generic educational Q&A content, listicles (\"10 ways to...\", \"top 5...\"), ")
	b.WriteString("product or shopping pages, and any item whose title is phrased as a question.\n")
	b.WriteString("Step 2 - group. Assign each remaining article to a topic: a short name for a concrete environmental issue ")
	b.WriteString("(e.g. \"Amazon Deforestation\"). Reuse an existing topic name exactly when the article fits it; ")
	b.WriteString("otherwise propose a new concise name.\n\n")

	b.WriteString("Existing topics:\n")
	if len(known) == 0 {
		b.WriteString("(none)\n")
	}
	for _, ref := range known {
		b.WriteString("- ")
		b.WriteString(ref.Name)
		if len(ref.Keywords) > 0 {
			b.WriteString(" [keywords: ")
			b.WriteString(strings.Join(ref.Keywords, ", "))
			b.WriteString("]")
		}
		b.WriteString("\n")
	}

	b.WriteString("\nArticles:\n")
	for i, a := range batch {
		fmt.Fprintf(&b, "[%d] %s (%s)\n", i, a.Title, a.Source)
		if a.Description != "" {
			fmt.Fprintf(&b, "    %s\n", logging.Truncate(a.Description, promptDescriptionLimit))
		}
	}

	b.WriteString("\nRespond with JSON only, in this exact shape:\n")
	b.WriteString(`{"classifications": [{"articleIndex": 0, "topicName": "Topic Name", "isNew": false}], `)
	b.WriteString(`"rejected": [1], "rejectionReasons": {"1": "listicle"}}`)
	b.WriteString("\nEvery article index must appear either in classifications or in rejected.\n")

	return b.String()
}
