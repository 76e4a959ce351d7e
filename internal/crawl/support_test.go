package crawl_test

import (
	"context"
	"sync"
	"time"

	"github.com/replyrank/crawler/internal/crawl"
	"github.com/replyrank/crawler/internal/storage/memory"
	"github.com/replyrank/crawler/internal/twitter"
)

// stubSource is a concurrency-safe canned tweet source shared by the engine
// tests. Pages are served per user in order; an entry in errFor fails every
// request for that user.
type stubSource struct {
	mu      sync.Mutex
	pages   map[string][]twitter.TweetPage
	queries map[string][]twitter.TweetQuery
	errFor  map[string]error
	err     error
}

func newStubSource() *stubSource {
	return &stubSource{
		pages:   make(map[string][]twitter.TweetPage),
		queries: make(map[string][]twitter.TweetQuery),
		errFor:  make(map[string]error),
	}
}

func (s *stubSource) UserTweets(_ context.Context, userID string, q twitter.TweetQuery) (twitter.TweetPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries[userID] = append(s.queries[userID], q)
	if s.err != nil {
		return twitter.TweetPage{}, s.err
	}
	if err := s.errFor[userID]; err != nil {
		return twitter.TweetPage{}, err
	}
	pages := s.pages[userID]
	idx := len(s.queries[userID]) - 1
	if idx >= len(pages) {
		return twitter.TweetPage{}, nil
	}
	return pages[idx], nil
}

func (s *stubSource) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// firstQuery returns the StartTime of the user's first recorded request.
func (s *stubSource) firstQuery(userID string) (twitter.TweetQuery, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	qs := s.queries[userID]
	if len(qs) == 0 {
		return twitter.TweetQuery{}, false
	}
	return qs[0], true
}

func (s *stubSource) queryCount(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queries[userID])
}

// pageFor builds a single-page response where each id is a reply from author
// to a distinct other user, created at ts.
func pageFor(author string, ts time.Time, ids ...string) twitter.TweetPage {
	page := twitter.TweetPage{Meta: twitter.PageMeta{ResultCount: len(ids)}}
	for _, id := range ids {
		refID := "orig-" + id
		page.Tweets = append(page.Tweets, twitter.RawTweet{
			ID:              id,
			AuthorID:        author,
			InReplyToUserID: "other",
			Text:            "reply " + id,
			CreatedAt:       ts,
			ReferencedRefs:  []twitter.TweetReference{{Type: "replied_to", ID: refID}},
		})
		page.Included = append(page.Included, twitter.IncludedTweet{
			ID:       refID,
			AuthorID: "other",
			Text:     "original " + refID,
		})
	}
	return page
}

// recordingTweetStore wraps the in-memory store with call accounting and
// failure injection for chunking assertions.
type recordingTweetStore struct {
	*memory.TweetStore
	mu         sync.Mutex
	batchSizes []int
	failOnCall int
	err        error
}

func newRecordingTweetStore() *recordingTweetStore {
	return &recordingTweetStore{TweetStore: memory.NewTweetStore()}
}

func (s *recordingTweetStore) UpsertBatch(ctx context.Context, tweets []crawl.Tweet) error {
	s.mu.Lock()
	s.batchSizes = append(s.batchSizes, len(tweets))
	call := len(s.batchSizes)
	s.mu.Unlock()
	if s.failOnCall > 0 && call == s.failOnCall {
		return s.err
	}
	return s.TweetStore.UpsertBatch(ctx, tweets)
}

func (s *recordingTweetStore) calls() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.batchSizes...)
}

// fakeClock hands out a controllable time.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(at time.Time) *fakeClock { return &fakeClock{now: at} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingPublisher captures published cycle summaries.
type recordingPublisher struct {
	mu        sync.Mutex
	summaries []crawl.CycleSummary
}

func (p *recordingPublisher) Publish(_ context.Context, s crawl.CycleSummary) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.summaries = append(p.summaries, s)
	return nil
}

func (p *recordingPublisher) published() []crawl.CycleSummary {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]crawl.CycleSummary(nil), p.summaries...)
}
