package usecase

import (
	"strings"

	"EcoPulse/internal/domain"
)

// MergeResult is the deduplicated article pool plus its bookkeeping.
type MergeResult struct {
	Articles    []domain.MergedArticle
	Provenance  map[string]domain.Provenance
	FeedCount   int
	SearchCount int
}

// MergeArticles combines feed and search articles. Feed URLs are registered
// first, so a URL found by both fetchers is attributed to the feed; the
// concatenation is then filtered for repeated and denylisted URLs.
func MergeArticles(feed, search []domain.RawArticle, denylist domain.Denylist) MergeResult {
	provenance := make(map[string]domain.Provenance, len(feed)+len(search))
	for _, a := range feed {
		if key := urlKey(a.URL); key != "" {
			if _, ok := provenance[key]; !ok {
				provenance[key] = domain.ProvenanceFeed
			}
		}
	}
	for _, a := range search {
		if key := urlKey(a.URL); key != "" {
			if _, ok := provenance[key]; !ok {
				provenance[key] = domain.ProvenanceSearch
			}
		}
	}

	combined := make([]domain.RawArticle, 0, len(feed)+len(search))
	combined = append(combined, feed...)
	combined = append(combined, search...)

	seen := make(map[string]struct{}, len(combined))
	merged := make([]domain.MergedArticle, 0, len(combined))
	for _, a := range combined {
		key := urlKey(a.URL)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if denylist.BlocksURL(key) {
			continue
		}
		a.URL = key
		merged = append(merged, domain.MergedArticle{
			RawArticle: a,
			Provenance: provenance[key],
		})
	}

	return MergeResult{
		Articles:    merged,
		Provenance:  provenance,
		FeedCount:   len(feed),
		SearchCount: len(search),
	}
}

func urlKey(raw string) string {
	return strings.TrimSpace(raw)
}
