// Package crawl implements the resumable reply-graph crawl engine: checkpoint
// lifecycle, per-list fan-out, paginated tweet fetching and chunked persistence.
package crawl

import (
	"time"
)

// Checkpoint records the progress of one crawl cycle. A cycle is active while
// CompletedAt is nil; at most one active checkpoint exists at a time.
type Checkpoint struct {
	// ID is the ISO-8601 rendering of StartedAt, so checkpoint IDs sort
	// chronologically.
	ID           string     `json:"id"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CrawledLists []string   `json:"crawled_lists"`
	CrawledUsers []string   `json:"crawled_users"`
}

// Active reports whether the cycle is still in progress.
func (c *Checkpoint) Active() bool {
	return c.CompletedAt == nil
}

// HasCrawledList reports whether the list was already finished this cycle.
func (c *Checkpoint) HasCrawledList(listID string) bool {
	return contains(c.CrawledLists, listID)
}

// HasCrawledUser reports whether the member was already finished this cycle.
func (c *Checkpoint) HasCrawledUser(userID string) bool {
	return contains(c.CrawledUsers, userID)
}

// CheckpointID renders a start time as a checkpoint identifier.
func CheckpointID(startedAt time.Time) string {
	return startedAt.UTC().Format(time.RFC3339)
}

// Member is one account belonging to a curated list.
type Member struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

// List is a curated group of members. Membership is read once per cycle and
// treated as a snapshot.
type List struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	OwnerID string   `json:"owner_id"`
	Members []Member `json:"members"`
}

// ReferencedTweet is the tweet a reply points at, resolved from the API
// response's includes side-table.
type ReferencedTweet struct {
	ID       string `json:"id"`
	AuthorID string `json:"author_id"`
	Text     string `json:"text"`
}

// Tweet is a persisted reply edge: the author replied to the referenced
// tweet's author. Sentiment and Embedding start nil and are filled in later
// by the scoring service; the crawler never writes them.
type Tweet struct {
	ID              string           `json:"id"`
	AuthorID        string           `json:"author_id"`
	InReplyToUserID string           `json:"in_reply_to_user_id,omitempty"`
	Text            string           `json:"text"`
	CreatedAt       time.Time        `json:"created_at"`
	Sentiment       *float64         `json:"sentiment,omitempty"`
	Embedding       []float32        `json:"embedding,omitempty"`
	Referenced      *ReferencedTweet `json:"referenced_tweet,omitempty"`
}

// CycleSummary reports what one coordinator invocation accomplished.
type CycleSummary struct {
	CheckpointID  string        `json:"checkpoint_id"`
	Completed     bool          `json:"completed"`
	RateLimited   bool          `json:"rate_limited"`
	ListsCrawled  int           `json:"lists_crawled"`
	UsersCrawled  int           `json:"users_crawled"`
	TweetsWritten int           `json:"tweets_written"`
	Elapsed       time.Duration `json:"elapsed"`
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
