package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"EcoPulse/internal/domain"
)

const (
	classifyPromptPrefix = "You are an editor"
	scoringPromptPrefix  = "Assess the severity"
)

// stubOracle answers classification and scoring prompts with canned replies.
type stubOracle struct {
	mu       sync.Mutex
	classify []string
	score    map[string]string
	err      error
	prompts  []string
}

func (s *stubOracle) Complete(_ context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}

	switch {
	case strings.HasPrefix(prompt, classifyPromptPrefix):
		if len(s.classify) == 0 {
			return "", errors.New("no classification reply scripted")
		}
		reply := s.classify[0]
		s.classify = s.classify[1:]
		return reply, nil
	case strings.HasPrefix(prompt, scoringPromptPrefix):
		for topic, reply := range s.score {
			if strings.Contains(prompt, `"`+topic+`"`) {
				return reply, nil
			}
		}
		return "I cannot assess this topic.", nil
	}
	return "", errors.New("unexpected prompt")
}

func (s *stubOracle) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

type stubFeeds struct {
	result domain.FeedResult
}

func (s stubFeeds) FetchFeeds(context.Context) domain.FeedResult { return s.result }

type stubSearch struct {
	result domain.SearchResult
}

func (s stubSearch) Search(context.Context) domain.SearchResult { return s.result }

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (n *recordingNotifier) PublishAlert(_ context.Context, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	return n.err
}

func rawArticle(title, url string, published time.Time) domain.RawArticle {
	return domain.RawArticle{
		Title:       title,
		URL:         url,
		Source:      "Mongabay",
		Description: "Coverage of " + title,
		PublishedAt: published,
	}
}

func merged(a domain.RawArticle, p domain.Provenance) domain.MergedArticle {
	return domain.MergedArticle{RawArticle: a, Provenance: p}
}
