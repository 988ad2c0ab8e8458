package usecase

import (
	"strings"
	"time"

	"github.com/gosimple/slug"

	"EcoPulse/internal/domain"
)

// MergeTopicState applies one snapshot to the topic's current state. A nil
// existing state creates the topic with a zero previous score.
func MergeTopicState(existing *domain.TopicState, snap domain.TopicScoreSnapshot, now time.Time) domain.TopicState {
	var state domain.TopicState
	if existing == nil {
		state = domain.TopicState{
			Name:          snap.TopicName,
			Slug:          slug.Make(snap.TopicName),
			PreviousScore: 0,
			CreatedAt:     now,
		}
	} else {
		state = *existing
		state.Keywords = append([]string(nil), existing.Keywords...)
		state.PreviousScore = existing.CurrentScore
		if state.Slug == "" {
			state.Slug = slug.Make(state.Name)
		}
	}

	state.CurrentScore = snap.OverallScore
	state.ArticleCount += snap.ArticleCount
	state.Category = snap.Category
	state.Region = snap.Region
	state.Urgency = snap.Urgency
	state.Summary = snap.Summary
	state.HealthScore, state.HealthLevel = snap.Health.Score, snap.Health.Level
	state.EcoScore, state.EcoLevel = snap.Ecological.Score, snap.Ecological.Level
	state.EconScore, state.EconLevel = snap.Economic.Score, snap.Economic.Level
	if snap.ImageURL != "" {
		state.ImageURL = snap.ImageURL
	}
	state.Keywords = MergeKeywords(state.Keywords, snap.Keywords)
	state.UpdatedAt = now

	return state
}

// MergeKeywords appends additions to existing, skipping case-insensitive duplicates.
// Existing entries are never removed or re-spelled.
func MergeKeywords(existing, additions []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(additions))
	out := make([]string, 0, len(existing)+len(additions))
	for _, list := range [][]string{existing, additions} {
		for _, k := range list {
			k = strings.Join(strings.Fields(k), " ")
			if k == "" {
				continue
			}
			key := strings.ToLower(k)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, k)
		}
	}
	return out
}
