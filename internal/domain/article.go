package domain

import "time"

// Provenance records which fetcher supplied an article first.
type Provenance string

const (
	ProvenanceFeed   Provenance = "feed"
	ProvenanceSearch Provenance = "search"
)

// RawArticle is one discovered news item as returned by a fetcher.
type RawArticle struct {
	Title       string
	URL         string
	Source      string
	Description string
	ImageURL    string
	PublishedAt time.Time
}

// MergedArticle is a RawArticle that survived merge/dedup, tagged with its provenance.
type MergedArticle struct {
	RawArticle
	Provenance Provenance
}

// FeedStatus is the outcome of fetching a single feed.
type FeedStatus string

const (
	FeedStatusOK    FeedStatus = "ok"
	FeedStatusError FeedStatus = "error"
)

// FeedHealth is the per-feed health record produced by the feed fetcher.
type FeedHealth struct {
	Name      string        `json:"name"`
	URL       string        `json:"url"`
	Status    FeedStatus    `json:"status"`
	ItemCount int           `json:"item_count"`
	Elapsed   time.Duration `json:"elapsed"`
	Error     string        `json:"error,omitempty"`
}

// FeedResult bundles everything the feed fetcher collected in one pass.
type FeedResult struct {
	Articles []RawArticle
	Health   []FeedHealth
}

// SearchResult bundles search articles with the raw/filtered counters.
type SearchResult struct {
	Articles      []RawArticle
	RawCount      int
	FilteredCount int
	FailedGroups  int
}
