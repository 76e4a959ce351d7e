// Package memory provides in-memory store implementations for local
// development and tests. All stores are safe for concurrent use.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/replyrank/crawler/internal/crawl"
)

// CheckpointStore implements crawl.CheckpointStore in memory.
type CheckpointStore struct {
	mu          sync.Mutex
	checkpoints map[string]*crawl.Checkpoint
}

// NewCheckpointStore creates an empty CheckpointStore.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{checkpoints: make(map[string]*crawl.Checkpoint)}
}

// Latest returns the checkpoint with the most recent start time.
func (s *CheckpointStore) Latest(_ context.Context) (crawl.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *crawl.Checkpoint
	for _, cp := range s.checkpoints {
		if latest == nil || cp.StartedAt.After(latest.StartedAt) {
			latest = cp
		}
	}
	if latest == nil {
		return crawl.Checkpoint{}, crawl.ErrNotFound
	}
	return cloneCheckpoint(latest), nil
}

// LatestCompleted returns the most recently finalized checkpoint.
func (s *CheckpointStore) LatestCompleted(_ context.Context) (crawl.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *crawl.Checkpoint
	for _, cp := range s.checkpoints {
		if cp.CompletedAt == nil {
			continue
		}
		if latest == nil || cp.CompletedAt.After(*latest.CompletedAt) {
			latest = cp
		}
	}
	if latest == nil {
		return crawl.Checkpoint{}, crawl.ErrNotFound
	}
	return cloneCheckpoint(latest), nil
}

// Create stores a new checkpoint.
func (s *CheckpointStore) Create(_ context.Context, cp crawl.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := cloneCheckpoint(&cp)
	s.checkpoints[cp.ID] = &stored
	return nil
}

// AddCrawledUser adds the member to the checkpoint's crawled set.
func (s *CheckpointStore) AddCrawledUser(_ context.Context, checkpointID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.checkpoints[checkpointID]
	if !ok {
		return crawl.ErrNotFound
	}
	cp.CrawledUsers = addToSet(cp.CrawledUsers, userID)
	return nil
}

// AddCrawledList adds the list to the checkpoint's crawled set.
func (s *CheckpointStore) AddCrawledList(_ context.Context, checkpointID, listID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.checkpoints[checkpointID]
	if !ok {
		return crawl.ErrNotFound
	}
	cp.CrawledLists = addToSet(cp.CrawledLists, listID)
	return nil
}

// Complete finalizes the checkpoint.
func (s *CheckpointStore) Complete(_ context.Context, checkpointID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.checkpoints[checkpointID]
	if !ok {
		return crawl.ErrNotFound
	}
	completed := at.UTC()
	cp.CompletedAt = &completed
	return nil
}

// Get returns a checkpoint by ID, for test assertions.
func (s *CheckpointStore) Get(checkpointID string) (crawl.Checkpoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.checkpoints[checkpointID]
	if !ok {
		return crawl.Checkpoint{}, false
	}
	return cloneCheckpoint(cp), true
}

func addToSet(set []string, v string) []string {
	for _, s := range set {
		if s == v {
			return set
		}
	}
	return append(set, v)
}

func cloneCheckpoint(cp *crawl.Checkpoint) crawl.Checkpoint {
	out := *cp
	out.CrawledLists = append([]string(nil), cp.CrawledLists...)
	out.CrawledUsers = append([]string(nil), cp.CrawledUsers...)
	sort.Strings(out.CrawledLists)
	sort.Strings(out.CrawledUsers)
	if cp.CompletedAt != nil {
		completed := *cp.CompletedAt
		out.CompletedAt = &completed
	}
	return out
}
