// Package metrics exposes Prometheus collectors for the crawler service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlPagesTotal         prometheus.Counter
	crawlTweetsTotal        prometheus.Counter
	crawlDroppedRefsTotal   prometheus.Counter
	crawlMembersTotal       *prometheus.CounterVec
	crawlRateLimitHitsTotal prometheus.Counter
	crawlCycleSeconds       prometheus.Histogram
	httpRequestsTotal       *prometheus.CounterVec
	httpRequestSeconds      *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlPagesTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "crawl_pages_fetched_total",
			Help: "Total number of tweet pages fetched from the API.",
		})
		crawlTweetsTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "crawl_tweets_persisted_total",
			Help: "Total number of reply tweets upserted.",
		})
		crawlDroppedRefsTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "crawl_unresolved_references_total",
			Help: "Tweets dropped because their referenced tweet could not be resolved.",
		})
		crawlMembersTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawl_members_total",
				Help: "Members crawled, labeled by outcome.",
			},
			[]string{"outcome"},
		)
		crawlRateLimitHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "crawl_rate_limit_hits_total",
			Help: "Crawl cycles cut short by the API rate limit.",
		})
		crawlCycleSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "crawl_cycle_duration_seconds",
			Help:    "Wall-clock duration of one crawl invocation.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		})
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)
		httpRequestSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency, labeled by method and route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// IncPageFetched counts one fetched tweet page.
func IncPageFetched() {
	if crawlPagesTotal != nil {
		crawlPagesTotal.Inc()
	}
}

// AddTweetsPersisted counts upserted tweets.
func AddTweetsPersisted(n int) {
	if crawlTweetsTotal != nil {
		crawlTweetsTotal.Add(float64(n))
	}
}

// IncUnresolvedReference counts a tweet dropped for an unresolvable reference.
func IncUnresolvedReference() {
	if crawlDroppedRefsTotal != nil {
		crawlDroppedRefsTotal.Inc()
	}
}

// IncMemberCrawled counts a member fetch by outcome ("ok" or "error").
func IncMemberCrawled(outcome string) {
	if crawlMembersTotal != nil {
		crawlMembersTotal.WithLabelValues(outcome).Inc()
	}
}

// IncRateLimitHit counts a cycle ended early by the API rate limit.
func IncRateLimitHit() {
	if crawlRateLimitHitsTotal != nil {
		crawlRateLimitHitsTotal.Inc()
	}
}

// ObserveCycleDuration records the wall-clock time of a crawl invocation.
func ObserveCycleDuration(d time.Duration) {
	if crawlCycleSeconds != nil {
		crawlCycleSeconds.Observe(d.Seconds())
	}
}

// ObserveHTTPRequest records one served HTTP request.
func ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	if httpRequestsTotal != nil {
		httpRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	}
	if httpRequestSeconds != nil {
		httpRequestSeconds.WithLabelValues(method, route).Observe(d.Seconds())
	}
}
