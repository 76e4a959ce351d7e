package crawl

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/replyrank/crawler/internal/metrics"
	"github.com/replyrank/crawler/internal/twitter"
)

// FetcherConfig bounds one member's pagination walk.
type FetcherConfig struct {
	// PageSize is the max_results per API call (API ceiling is 100).
	PageSize int
	// MaxPages caps pages per member per invocation so a pathological
	// history cannot stall the rest of the list.
	MaxPages int
	// StopAtCursor ends pagination early once a page's oldest tweet
	// already precedes the since cursor; remaining pages are redundant.
	StopAtCursor bool
}

// Fetcher pulls a member's recent reply tweets page by page and resolves each
// reply into an edge against the response's includes side-table.
type Fetcher struct {
	source   TweetSource
	archiver Archiver
	cfg      FetcherConfig
	logger   *zap.Logger
}

// NewFetcher constructs a Fetcher. The archiver may be a no-op provider.
func NewFetcher(source TweetSource, archiver Archiver, cfg FetcherConfig, logger *zap.Logger) *Fetcher {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 100
	}
	return &Fetcher{
		source:   source,
		archiver: archiver,
		cfg:      cfg,
		logger:   logger,
	}
}

// FetchReplyTweets accumulates the member's qualifying reply tweets created
// after since. Pagination stops when the API runs out of continuation tokens,
// the page ceiling is hit, or (when enabled) the pages walk past the cursor.
// A rate-limited response propagates as twitter.ErrRateLimited.
func (f *Fetcher) FetchReplyTweets(ctx context.Context, userID string, since time.Time) ([]Tweet, error) {
	var (
		accumulated []Tweet
		token       string
	)

	for pageNum := 1; pageNum <= f.cfg.MaxPages; pageNum++ {
		page, err := f.source.UserTweets(ctx, userID, twitter.TweetQuery{
			StartTime:       since,
			MaxResults:      f.cfg.PageSize,
			PaginationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("fetch tweets page %d for user %s: %w", pageNum, userID, err)
		}
		metrics.IncPageFetched()
		f.archivePage(ctx, userID, pageNum, page)

		accumulated = append(accumulated, f.extractReplyEdges(page)...)

		if page.Meta.NextToken == "" {
			break
		}
		if f.cfg.StopAtCursor {
			if oldest := page.OldestCreatedAt(); !oldest.IsZero() && oldest.Before(since) {
				break
			}
		}
		token = page.Meta.NextToken
	}

	return accumulated, nil
}

// extractReplyEdges resolves each tweet's first referenced tweet from the
// includes side-table and keeps only genuine edges: a resolvable reference
// whose author differs from the replying author. Unresolvable references
// (e.g. the referenced tweet was deleted) are dropped and logged; that is an
// expected data-quality outcome, not an error.
func (f *Fetcher) extractReplyEdges(page twitter.TweetPage) []Tweet {
	var out []Tweet
	for _, raw := range page.Tweets {
		if len(raw.ReferencedRefs) == 0 {
			continue
		}
		refID := raw.ReferencedRefs[0].ID
		included, ok := page.Lookup(refID)
		if !ok {
			metrics.IncUnresolvedReference()
			f.logger.Debug("dropping tweet with unresolvable reference",
				zap.String("tweet_id", raw.ID),
				zap.String("referenced_id", refID))
			continue
		}
		if included.AuthorID == raw.AuthorID {
			// Self-replies are not edges.
			continue
		}
		out = append(out, Tweet{
			ID:              raw.ID,
			AuthorID:        raw.AuthorID,
			InReplyToUserID: raw.InReplyToUserID,
			Text:            raw.Text,
			CreatedAt:       raw.CreatedAt,
			Referenced: &ReferencedTweet{
				ID:       included.ID,
				AuthorID: included.AuthorID,
				Text:     included.Text,
			},
		})
	}
	return out
}

func (f *Fetcher) archivePage(ctx context.Context, userID string, pageNum int, page twitter.TweetPage) {
	if f.archiver == nil || len(page.Raw) == 0 {
		return
	}
	name := fmt.Sprintf("raw/%s/page-%04d.json", userID, pageNum)
	if err := f.archiver.Save(ctx, name, page.Raw); err != nil {
		// Archival is best-effort; a failed save never fails the crawl.
		f.logger.Warn("archive raw page failed",
			zap.String("object", name),
			zap.Error(err))
	}
}
