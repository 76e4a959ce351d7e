// Package twitter implements a minimal client for the v2 user-tweets endpoint.
package twitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrRateLimited signals the API returned 429. Callers treat it as a clean
// stop: the crawl resumes from its checkpoint on the next invocation.
var ErrRateLimited = errors.New("twitter: rate limited")

const defaultBaseURL = "https://api.twitter.com/2"

// Config controls client behavior.
type Config struct {
	BearerToken string
	BaseURL     string
	// RequestsPerSecond paces outbound calls client-side so a burst of
	// member fetches does not immediately trip the API's own limiter.
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
	MaxRetries        int
}

// Client calls the Twitter v2 API with pacing and bounded retries.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	limiter    *rate.Limiter
	retry      *retryPolicy
	logger     *zap.Logger
}

// NewClient builds a Client from config. The bearer token is required.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.BearerToken == "" {
		return nil, errors.New("twitter: bearer token is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	limit := rate.Limit(cfg.RequestsPerSecond)
	if cfg.RequestsPerSecond <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		token:      cfg.BearerToken,
		limiter:    rate.NewLimiter(limit, burst),
		retry:      newRetryPolicy(cfg.MaxRetries),
		logger:     logger,
	}, nil
}

// UserTweets fetches one page of a user's recent tweets, expanding referenced
// tweets into the includes side-table. A 429 response surfaces as
// ErrRateLimited; 5xx and timeouts are retried with jittered backoff before
// becoming fatal.
func (c *Client) UserTweets(ctx context.Context, userID string, q TweetQuery) (TweetPage, error) {
	endpoint := fmt.Sprintf("%s/users/%s/tweets", c.baseURL, url.PathEscape(userID))

	params := url.Values{}
	params.Set("max_results", strconv.Itoa(q.MaxResults))
	params.Set("exclude", "retweets")
	params.Set("expansions", "author_id,referenced_tweets.id,in_reply_to_user_id")
	params.Set("tweet.fields", "author_id,referenced_tweets,in_reply_to_user_id,text,created_at")
	if !q.StartTime.IsZero() {
		params.Set("start_time", q.StartTime.UTC().Format(time.RFC3339))
	}
	if q.PaginationToken != "" {
		params.Set("pagination_token", q.PaginationToken)
	}

	var page TweetPage
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return TweetPage{}, fmt.Errorf("rate limiter wait: %w", err)
		}

		body, err := c.doRequest(ctx, endpoint+"?"+params.Encode())
		if err == nil {
			page, err = decodePage(body)
			if err != nil {
				return TweetPage{}, err
			}
			return page, nil
		}
		if errors.Is(err, ErrRateLimited) {
			return TweetPage{}, err
		}
		if !c.retry.shouldRetry(err, attempt) {
			return TweetPage{}, err
		}
		delay := c.retry.backoff(attempt)
		c.logger.Warn("transient fetch error, retrying",
			zap.String("user_id", userID),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return TweetPage{}, ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (c *Client) doRequest(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("user tweets request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // read side only

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		reset := resp.Header.Get("x-rate-limit-reset")
		return nil, fmt.Errorf("%w (reset %s)", ErrRateLimited, reset)
	case resp.StatusCode >= 500:
		return nil, &serverError{status: resp.StatusCode}
	case resp.StatusCode != http.StatusOK:
		return nil, &apiError{status: resp.StatusCode, body: string(body)}
	}
	return body, nil
}

func decodePage(body []byte) (TweetPage, error) {
	var envelope struct {
		Data     []RawTweet `json:"data"`
		Includes struct {
			Tweets []IncludedTweet `json:"tweets"`
		} `json:"includes"`
		Meta PageMeta `json:"meta"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return TweetPage{}, fmt.Errorf("decode tweets response: %w", err)
	}
	return TweetPage{
		Tweets:   envelope.Data,
		Included: envelope.Includes.Tweets,
		Meta:     envelope.Meta,
		Raw:      body,
	}, nil
}

// serverError marks a 5xx response as retryable.
type serverError struct {
	status int
}

func (e *serverError) Error() string {
	return fmt.Sprintf("twitter: server error %d", e.status)
}

// apiError marks a non-429 4xx response; retrying cannot help.
type apiError struct {
	status int
	body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("twitter: unexpected status %d: %s", e.status, e.body)
}
