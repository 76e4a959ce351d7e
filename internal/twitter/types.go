package twitter

import "time"

// TweetQuery parameterizes one page request against the user-tweets endpoint.
type TweetQuery struct {
	// StartTime excludes tweets created before the resume cursor.
	StartTime time.Time
	// MaxResults is the page size (the API caps this at 100).
	MaxResults int
	// PaginationToken continues from a prior page; empty on the first call.
	PaginationToken string
}

// RawTweet is a tweet as returned on the wire, before reply-edge resolution.
type RawTweet struct {
	ID              string           `json:"id"`
	AuthorID        string           `json:"author_id"`
	InReplyToUserID string           `json:"in_reply_to_user_id,omitempty"`
	Text            string           `json:"text"`
	CreatedAt       time.Time        `json:"created_at"`
	ReferencedRefs  []TweetReference `json:"referenced_tweets,omitempty"`
}

// TweetReference names a tweet another tweet points at.
type TweetReference struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// IncludedTweet is a referenced tweet expanded into the includes side-table.
type IncludedTweet struct {
	ID       string `json:"id"`
	AuthorID string `json:"author_id"`
	Text     string `json:"text"`
}

// PageMeta carries the pagination state of one response.
type PageMeta struct {
	OldestID    string `json:"oldest_id,omitempty"`
	NewestID    string `json:"newest_id,omitempty"`
	ResultCount int    `json:"result_count"`
	NextToken   string `json:"next_token,omitempty"`
}

// TweetPage is one page of a user's recent tweets plus the side-table of
// tweets they reference.
type TweetPage struct {
	Tweets   []RawTweet      `json:"data"`
	Included []IncludedTweet `json:"-"`
	Meta     PageMeta        `json:"meta"`

	// Raw is the undecoded response body, kept for archival.
	Raw []byte `json:"-"`
}

// OldestCreatedAt returns the creation time of the oldest tweet on the page,
// or the zero time if the page is empty. The API returns tweets in reverse
// chronological order.
func (p TweetPage) OldestCreatedAt() time.Time {
	if len(p.Tweets) == 0 {
		return time.Time{}
	}
	return p.Tweets[len(p.Tweets)-1].CreatedAt
}

// Lookup resolves a referenced tweet ID against the includes side-table.
func (p TweetPage) Lookup(id string) (IncludedTweet, bool) {
	for _, t := range p.Included {
		if t.ID == id {
			return t, true
		}
	}
	return IncludedTweet{}, false
}
