package crawl

import (
	"context"
	"errors"
	"time"

	"github.com/replyrank/crawler/internal/twitter"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// CheckpointStore persists crawl cycle progress.
//
// AddCrawledUser and AddCrawledList must be atomic single-field set-union
// updates, not read-modify-write of the whole row: sibling member fetches
// within a batch apply them concurrently, and last-writer-wins on a full-row
// update would lose progress.
type CheckpointStore interface {
	// Latest returns the most recent checkpoint by start time, or
	// ErrNotFound if none exists.
	Latest(ctx context.Context) (Checkpoint, error)
	// LatestCompleted returns the most recently finalized checkpoint, or
	// ErrNotFound if no cycle ever completed.
	LatestCompleted(ctx context.Context) (Checkpoint, error)
	// Create persists a new checkpoint record.
	Create(ctx context.Context, cp Checkpoint) error
	// AddCrawledUser adds the member to the checkpoint's crawled set.
	// Adding an already-present member is a no-op.
	AddCrawledUser(ctx context.Context, checkpointID, userID string) error
	// AddCrawledList adds the list to the checkpoint's crawled set.
	AddCrawledList(ctx context.Context, checkpointID, listID string) error
	// Complete finalizes the checkpoint with the given completion time.
	Complete(ctx context.Context, checkpointID string, at time.Time) error
}

// TweetStore persists reply tweets.
//
// UpsertBatch must be a merge-write keyed by tweet ID: crawl-owned fields are
// overwritten on re-sighting, but sentiment and embedding belong to the
// scoring service and are never clobbered once set.
type TweetStore interface {
	UpsertBatch(ctx context.Context, tweets []Tweet) error
	// ListUnscored returns tweets whose sentiment has not been computed
	// yet, for consumption by the scoring service.
	ListUnscored(ctx context.Context, limit int) ([]Tweet, error)
}

// ListStore reads the list membership snapshot.
type ListStore interface {
	ListAll(ctx context.Context) ([]List, error)
}

// TweetSource fetches one page of a member's recent tweets. The production
// implementation is the Twitter API client.
type TweetSource interface {
	UserTweets(ctx context.Context, userID string, q twitter.TweetQuery) (twitter.TweetPage, error)
}

// Archiver stores raw API pages for replay and debugging. Implementations
// must be best-effort safe to call concurrently.
type Archiver interface {
	Save(ctx context.Context, objectName string, data []byte) error
}

// Publisher announces completed crawl cycles to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, summary CycleSummary) error
}

// Clock returns the current time (swapped out in tests).
type Clock interface {
	Now() time.Time
}
