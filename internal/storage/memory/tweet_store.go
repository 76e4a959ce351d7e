package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/replyrank/crawler/internal/crawl"
)

// TweetStore implements crawl.TweetStore in memory with merge-upsert
// semantics matching the Postgres implementation.
type TweetStore struct {
	mu     sync.Mutex
	tweets map[string]crawl.Tweet
}

// NewTweetStore creates an empty TweetStore.
func NewTweetStore() *TweetStore {
	return &TweetStore{tweets: make(map[string]crawl.Tweet)}
}

// UpsertBatch merge-upserts the batch: crawl-owned fields are overwritten,
// sentiment and embedding survive from any existing record.
func (s *TweetStore) UpsertBatch(_ context.Context, tweets []crawl.Tweet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tweets {
		if existing, ok := s.tweets[t.ID]; ok {
			t.Sentiment = existing.Sentiment
			t.Embedding = existing.Embedding
		}
		s.tweets[t.ID] = t
	}
	return nil
}

// ListUnscored returns tweets with no sentiment yet, oldest first.
func (s *TweetStore) ListUnscored(_ context.Context, limit int) ([]crawl.Tweet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []crawl.Tweet
	for _, t := range s.tweets {
		if t.Sentiment == nil {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Get returns a stored tweet by ID, for test assertions.
func (s *TweetStore) Get(id string) (crawl.Tweet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tweets[id]
	return t, ok
}

// Len returns the number of stored tweets.
func (s *TweetStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tweets)
}

// All returns every stored tweet keyed by ID, for idempotence assertions.
func (s *TweetStore) All() map[string]crawl.Tweet {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]crawl.Tweet, len(s.tweets))
	for id, t := range s.tweets {
		out[id] = t
	}
	return out
}
