package twitter

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(Config{
		BearerToken: "test-token",
		BaseURL:     srv.URL,
	}, zap.NewNop())
	require.NoError(t, err)
	return client, srv
}

func TestNewClientRequiresToken(t *testing.T) {
	t.Parallel()
	_, err := NewClient(Config{}, zap.NewNop())
	require.Error(t, err)
}

func TestUserTweetsDecodesPage(t *testing.T) {
	t.Parallel()

	var gotPath, gotAuth string
	var gotQuery map[string][]string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.Query()
		fmt.Fprint(w, `{
			"data": [
				{
					"id": "100",
					"author_id": "alice",
					"in_reply_to_user_id": "bob",
					"text": "nice take",
					"created_at": "2024-05-01T10:00:00Z",
					"referenced_tweets": [{"type": "replied_to", "id": "99"}]
				}
			],
			"includes": {
				"tweets": [{"id": "99", "author_id": "bob", "text": "hot take"}]
			},
			"meta": {"result_count": 1, "next_token": "tok-2", "oldest_id": "100", "newest_id": "100"}
		}`)
	}))

	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	page, err := client.UserTweets(context.Background(), "alice", TweetQuery{
		StartTime:       since,
		MaxResults:      100,
		PaginationToken: "tok-1",
	})
	require.NoError(t, err)

	require.Equal(t, "/users/alice/tweets", gotPath)
	require.Equal(t, "Bearer test-token", gotAuth)
	require.Equal(t, []string{"100"}, gotQuery["max_results"])
	require.Equal(t, []string{"2024-01-01T00:00:00Z"}, gotQuery["start_time"])
	require.Equal(t, []string{"tok-1"}, gotQuery["pagination_token"])
	require.Equal(t, []string{"retweets"}, gotQuery["exclude"])

	require.Len(t, page.Tweets, 1)
	require.Equal(t, "100", page.Tweets[0].ID)
	require.Equal(t, "bob", page.Tweets[0].InReplyToUserID)
	require.Len(t, page.Tweets[0].ReferencedRefs, 1)
	require.Equal(t, "99", page.Tweets[0].ReferencedRefs[0].ID)
	require.Equal(t, "tok-2", page.Meta.NextToken)
	require.NotEmpty(t, page.Raw)

	included, ok := page.Lookup("99")
	require.True(t, ok)
	require.Equal(t, "bob", included.AuthorID)
}

func TestUserTweetsRateLimitIsTerminal(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("x-rate-limit-reset", "1714560000")
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	_, err := client.UserTweets(context.Background(), "alice", TweetQuery{MaxResults: 100})
	require.ErrorIs(t, err, ErrRateLimited)
	// No retries on 429: the crawl ends and resumes later.
	require.EqualValues(t, 1, calls.Load())
}

func TestUserTweetsRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"data": [], "meta": {"result_count": 0}}`)
	}))

	page, err := client.UserTweets(context.Background(), "alice", TweetQuery{MaxResults: 100})
	require.NoError(t, err)
	require.Empty(t, page.Tweets)
	require.EqualValues(t, 3, calls.Load())
}

func TestUserTweetsExhaustsRetryBudget(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := client.UserTweets(context.Background(), "alice", TweetQuery{MaxResults: 100})
	require.Error(t, err)
	var srvErr *serverError
	require.ErrorAs(t, err, &srvErr)
	// Initial attempt plus the default retry budget.
	require.EqualValues(t, 4, calls.Load())
}

func TestUserTweetsClientErrorIsFatal(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := client.UserTweets(context.Background(), "ghost", TweetQuery{MaxResults: 100})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrRateLimited)
	var reqErr *apiError
	require.ErrorAs(t, err, &reqErr)
	require.Equal(t, http.StatusNotFound, reqErr.status)
	require.EqualValues(t, 1, calls.Load())
}

func TestRetryPolicyClassification(t *testing.T) {
	t.Parallel()

	p := newRetryPolicy(3)
	require.True(t, p.shouldRetry(&serverError{status: 502}, 0))
	require.False(t, p.shouldRetry(&serverError{status: 502}, 3))
	require.False(t, p.shouldRetry(ErrRateLimited, 0))
	require.False(t, p.shouldRetry(context.Canceled, 0))
	require.False(t, p.shouldRetry(nil, 0))
}

func TestBackoffStaysWithinCeiling(t *testing.T) {
	t.Parallel()

	p := newRetryPolicy(10)
	for attempt := 0; attempt < 12; attempt++ {
		d := p.backoff(attempt)
		require.GreaterOrEqual(t, d, time.Duration(0))
		require.LessOrEqual(t, d, p.maxDelay)
	}
}
