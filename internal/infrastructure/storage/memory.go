package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"EcoPulse/internal/domain"
	"EcoPulse/internal/ports"
)

// MemoryStore keeps everything in process memory. It backs the "memory"
// driver and tests; nothing survives a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	topics   map[string]domain.TopicState
	history  map[string][]domain.TopicScoreSnapshot
	articles map[string]domain.StoredArticle
}

var (
	_ ports.TopicStore  = (*MemoryStore)(nil)
	_ ports.TopicReader = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		topics:   map[string]domain.TopicState{},
		history:  map[string][]domain.TopicScoreSnapshot{},
		articles: map[string]domain.StoredArticle{},
	}
}

// KnownTopics lists topics most recently updated first.
func (m *MemoryStore) KnownTopics(_ context.Context) ([]domain.TopicRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	states := make([]domain.TopicState, 0, len(m.topics))
	for _, t := range m.topics {
		states = append(states, t)
	}
	sort.Slice(states, func(i, j int) bool {
		if !states[i].UpdatedAt.Equal(states[j].UpdatedAt) {
			return states[i].UpdatedAt.After(states[j].UpdatedAt)
		}
		return states[i].Name < states[j].Name
	})

	refs := make([]domain.TopicRef, 0, len(states))
	for _, t := range states {
		refs = append(refs, domain.TopicRef{Name: t.Name, Keywords: append([]string(nil), t.Keywords...)})
	}
	return refs, nil
}

func (m *MemoryStore) GetTopic(_ context.Context, name string) (domain.TopicState, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.topics[name]
	if !ok {
		return domain.TopicState{}, false, nil
	}
	t.Keywords = append([]string(nil), t.Keywords...)
	return t, true, nil
}

// SaveTopicRun applies the same semantics as the SQL store: the first insert
// fixes slug and creation time, and duplicate article URLs are ignored.
func (m *MemoryStore) SaveTopicRun(ctx context.Context, state domain.TopicState, snapshot domain.TopicScoreSnapshot, articles []domain.StoredArticle) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	state.Keywords = append([]string(nil), state.Keywords...)
	if prev, ok := m.topics[state.Name]; ok {
		state.Slug = prev.Slug
		state.CreatedAt = prev.CreatedAt
	}
	m.topics[state.Name] = state

	snapshot.Keywords = append([]string(nil), snapshot.Keywords...)
	m.history[snapshot.TopicName] = append(m.history[snapshot.TopicName], snapshot)

	inserted := 0
	for _, a := range articles {
		if _, dup := m.articles[a.URL]; dup {
			continue
		}
		m.articles[a.URL] = a
		inserted++
	}
	return inserted, nil
}

// History returns up to limit snapshots of name, newest first.
func (m *MemoryStore) History(_ context.Context, name string, limit int) ([]domain.TopicScoreSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.history[name]
	out := make([]domain.TopicScoreSnapshot, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		out = append(out, all[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Article loads one stored article by URL.
func (m *MemoryStore) Article(_ context.Context, url string) (domain.StoredArticle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.articles[url]
	if !ok {
		return domain.StoredArticle{}, fmt.Errorf("article %q: %w", url, ErrNotFound)
	}
	return a, nil
}

// ArticleCount reports how many article rows are stored. Tests use it to check dedup.
func (m *MemoryStore) ArticleCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.articles)
}
