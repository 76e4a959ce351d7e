// Package api exposes the HTTP interface for the crawler service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/replyrank/crawler/internal/crawl"
	"github.com/replyrank/crawler/internal/metrics"
)

// CycleRunner triggers one crawl invocation.
type CycleRunner interface {
	RunCycle(ctx context.Context) (crawl.CycleSummary, error)
}

// Server wires HTTP handlers to the coordinator and stores.
type Server struct {
	router      chi.Router
	runner      CycleRunner
	checkpoints crawl.CheckpointStore
	lists       crawl.ListStore
	tweets      crawl.TweetStore
	logger      *zap.Logger

	// crawling serializes API-triggered cycles; concurrent invocations
	// would race on the active checkpoint.
	crawling atomic.Bool
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	runner CycleRunner,
	checkpoints crawl.CheckpointStore,
	lists crawl.ListStore,
	tweets crawl.TweetStore,
	logger *zap.Logger,
) *Server {
	s := &Server{
		runner:      runner,
		checkpoints: checkpoints,
		lists:       lists,
		tweets:      tweets,
		logger:      logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metricsMiddleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/crawl", s.triggerCrawl)
		r.Get("/checkpoints/latest", s.latestCheckpoint)
		r.Get("/lists", s.getLists)
		r.Get("/tweets/unscored", s.unscoredTweets)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.lists.ListAll(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "list store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// triggerCrawl runs one cycle synchronously. A 409 means a cycle is already
// in flight; the caller should retry after it finishes.
func (s *Server) triggerCrawl(w http.ResponseWriter, r *http.Request) {
	if !s.crawling.CompareAndSwap(false, true) {
		writeError(w, http.StatusConflict, "a crawl cycle is already running")
		return
	}
	defer s.crawling.Store(false)

	summary, err := s.runner.RunCycle(r.Context())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			status = http.StatusRequestTimeout
		}
		s.logger.Error("crawl cycle failed", zap.Error(err))
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) latestCheckpoint(w http.ResponseWriter, r *http.Request) {
	cp, err := s.checkpoints.Latest(r.Context())
	if err != nil {
		if errors.Is(err, crawl.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no checkpoint exists yet")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load checkpoint")
		return
	}
	writeJSON(w, http.StatusOK, cp)
}

func (s *Server) getLists(w http.ResponseWriter, r *http.Request) {
	lists, err := s.lists.ListAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load lists")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lists": lists})
}

func (s *Server) unscoredTweets(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	tweets, err := s.tweets.ListUnscored(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load tweets")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tweets": tweets})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload) //nolint:errcheck // headers already sent
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ListenAndServe runs the HTTP server until the context is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
