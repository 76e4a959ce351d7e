package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/replyrank/crawler/internal/crawl"
)

// ListStore implements crawl.ListStore in memory.
type ListStore struct {
	mu    sync.Mutex
	lists map[string]crawl.List
}

// NewListStore creates a ListStore seeded with the given lists.
func NewListStore(lists ...crawl.List) *ListStore {
	s := &ListStore{lists: make(map[string]crawl.List)}
	for _, l := range lists {
		s.lists[l.ID] = l
	}
	return s
}

// ListAll returns all lists ordered by ID.
func (s *ListStore) ListAll(_ context.Context) ([]crawl.List, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]crawl.List, 0, len(s.lists))
	for _, l := range s.lists {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Put inserts or replaces a list.
func (s *ListStore) Put(_ context.Context, list crawl.List) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists[list.ID] = list
	return nil
}
