package crawl

import (
	"context"
	"fmt"

	"github.com/replyrank/crawler/internal/metrics"
)

// DefaultChunkSize matches the storage backend's atomic write-group ceiling.
const DefaultChunkSize = 500

// Persister commits tweet upserts in bounded chunks. Each chunk commit is
// independent: a mid-sequence failure leaves earlier chunks durable, which is
// safe because every write is an idempotent merge-upsert keyed by tweet ID.
type Persister struct {
	store     TweetStore
	chunkSize int
}

// NewPersister constructs a Persister with the given chunk ceiling.
func NewPersister(store TweetStore, chunkSize int) *Persister {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Persister{store: store, chunkSize: chunkSize}
}

// UpsertAll writes all tweets in order, one chunk at a time.
func (p *Persister) UpsertAll(ctx context.Context, tweets []Tweet) error {
	for start := 0; start < len(tweets); start += p.chunkSize {
		end := start + p.chunkSize
		if end > len(tweets) {
			end = len(tweets)
		}
		chunk := tweets[start:end]
		if err := p.store.UpsertBatch(ctx, chunk); err != nil {
			return fmt.Errorf("upsert chunk [%d:%d): %w", start, end, err)
		}
		metrics.AddTweetsPersisted(len(chunk))
	}
	return nil
}
