package crawl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/replyrank/crawler/internal/metrics"
	"github.com/replyrank/crawler/internal/twitter"
)

// Coordinator owns the checkpoint lifecycle and drives the list crawler over
// all pending lists. One invocation performs as much of the active cycle as
// the rate limit allows; repeated invocations converge on a finalized
// checkpoint.
type Coordinator struct {
	checkpoints CheckpointStore
	lists       ListStore
	listCrawler *ListCrawler
	publisher   Publisher
	clock       Clock
	genesis     time.Time
	logger      *zap.Logger
}

// NewCoordinator constructs a Coordinator.
func NewCoordinator(
	checkpoints CheckpointStore,
	lists ListStore,
	listCrawler *ListCrawler,
	publisher Publisher,
	clock Clock,
	genesis time.Time,
	logger *zap.Logger,
) *Coordinator {
	return &Coordinator{
		checkpoints: checkpoints,
		lists:       lists,
		listCrawler: listCrawler,
		publisher:   publisher,
		clock:       clock,
		genesis:     genesis,
		logger:      logger,
	}
}

// RunCycle resumes the active checkpoint (or starts a new cycle) and crawls
// every pending list sequentially. Hitting the API rate limit ends the
// invocation cleanly with partial progress recorded; any other error aborts
// without finalizing the checkpoint so the next invocation resumes it.
func (c *Coordinator) RunCycle(ctx context.Context) (CycleSummary, error) {
	started := c.clock.Now()
	summary := CycleSummary{}

	cp, err := c.resumeOrCreateCheckpoint(ctx)
	if err != nil {
		return summary, err
	}
	summary.CheckpointID = cp.ID

	prev, err := c.previousCheckpoint(ctx, cp)
	if err != nil {
		return summary, err
	}

	lists, err := c.lists.ListAll(ctx)
	if err != nil {
		return summary, fmt.Errorf("load list snapshot: %w", err)
	}

	// Lists run strictly sequentially; concurrency lives inside the list
	// crawler so peak API pressure stays bounded and predictable.
	for _, list := range lists {
		if cp.HasCrawledList(list.ID) {
			continue
		}
		result, err := c.listCrawler.CrawlList(ctx, list, cp, prev)
		summary.UsersCrawled += result.UsersCrawled
		summary.TweetsWritten += result.TweetsWritten
		if err != nil {
			summary.Elapsed = c.clock.Now().Sub(started)
			if errors.Is(err, twitter.ErrRateLimited) {
				metrics.IncRateLimitHit()
				summary.RateLimited = true
				c.logger.Info("rate limited, ending cycle early",
					zap.String("checkpoint_id", cp.ID),
					zap.Int("users_crawled", summary.UsersCrawled))
				return summary, nil
			}
			return summary, fmt.Errorf("crawl list %s: %w", list.ID, err)
		}
		summary.ListsCrawled++
	}

	completedAt := c.clock.Now()
	if err := c.checkpoints.Complete(ctx, cp.ID, completedAt); err != nil {
		return summary, fmt.Errorf("finalize checkpoint %s: %w", cp.ID, err)
	}
	summary.Completed = true
	summary.Elapsed = completedAt.Sub(started)
	metrics.ObserveCycleDuration(summary.Elapsed)

	c.logger.Info("crawl cycle complete",
		zap.String("checkpoint_id", cp.ID),
		zap.Int("lists_crawled", summary.ListsCrawled),
		zap.Int("users_crawled", summary.UsersCrawled),
		zap.Int("tweets_written", summary.TweetsWritten),
		zap.Duration("elapsed", summary.Elapsed))

	if c.publisher != nil {
		if err := c.publisher.Publish(ctx, summary); err != nil {
			// Completion events are advisory; the checkpoint is already final.
			c.logger.Warn("publish cycle summary failed", zap.Error(err))
		}
	}
	return summary, nil
}

// resumeOrCreateCheckpoint returns the active checkpoint if one exists, else
// creates a new cycle. A new cycle's start time is the prior cycle's
// completion time (the genesis timestamp on the very first run), and it is
// persisted before any crawling so a crash right after creation still leaves
// a resumable record.
func (c *Coordinator) resumeOrCreateCheckpoint(ctx context.Context) (Checkpoint, error) {
	latest, err := c.checkpoints.Latest(ctx)
	switch {
	case err == nil && latest.Active():
		c.logger.Info("resuming active checkpoint",
			zap.String("checkpoint_id", latest.ID),
			zap.Int("crawled_lists", len(latest.CrawledLists)),
			zap.Int("crawled_users", len(latest.CrawledUsers)))
		return latest, nil
	case err != nil && !errors.Is(err, ErrNotFound):
		return Checkpoint{}, fmt.Errorf("load latest checkpoint: %w", err)
	}

	start := c.genesis
	if err == nil && latest.CompletedAt != nil {
		start = *latest.CompletedAt
	}
	cp := Checkpoint{
		ID:           CheckpointID(start),
		StartedAt:    start.UTC(),
		CrawledLists: []string{},
		CrawledUsers: []string{},
	}
	if err := c.checkpoints.Create(ctx, cp); err != nil {
		return Checkpoint{}, fmt.Errorf("create checkpoint %s: %w", cp.ID, err)
	}
	c.logger.Info("created checkpoint", zap.String("checkpoint_id", cp.ID))
	return cp, nil
}

// previousCheckpoint loads the most recent completed cycle, used to decide
// each member's resume cursor. Nil means no cycle ever completed.
func (c *Coordinator) previousCheckpoint(ctx context.Context, current Checkpoint) (*Checkpoint, error) {
	prev, err := c.checkpoints.LatestCompleted(ctx)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load previous checkpoint: %w", err)
	}
	if prev.ID == current.ID {
		return nil, nil
	}
	return &prev, nil
}
