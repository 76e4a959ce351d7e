// Package scheduler runs crawl cycles on a cron schedule.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/replyrank/crawler/internal/crawl"
)

// CycleRunner triggers one crawl invocation.
type CycleRunner interface {
	RunCycle(ctx context.Context) (crawl.CycleSummary, error)
}

// Scheduler drives the coordinator from a cron spec. Overlapping runs are
// skipped rather than queued: the checkpoint design assumes invocations are
// serialized, and a skipped tick simply resumes on the next one.
type Scheduler struct {
	cron   *cron.Cron
	runner CycleRunner
	logger *zap.Logger
}

// New builds a Scheduler for the given cron spec (e.g. "@hourly").
func New(spec string, runner CycleRunner, logger *zap.Logger) (*Scheduler, error) {
	s := &Scheduler{
		runner: runner,
		logger: logger,
	}
	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cronLogger{logger}),
		cron.Recover(cronLogger{logger}),
	))
	if _, err := c.AddFunc(spec, s.runOnce); err != nil {
		return nil, fmt.Errorf("parse cron spec %q: %w", spec, err)
	}
	s.cron = c
	return s, nil
}

// Run starts the schedule and blocks until the context is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	s.cron.Start()
	<-ctx.Done()
	// Stop returns a context that finishes when in-flight jobs do.
	<-s.cron.Stop().Done()
}

func (s *Scheduler) runOnce() {
	summary, err := s.runner.RunCycle(context.Background())
	if err != nil {
		s.logger.Error("scheduled crawl cycle failed", zap.Error(err))
		return
	}
	s.logger.Info("scheduled crawl cycle finished",
		zap.String("checkpoint_id", summary.CheckpointID),
		zap.Bool("completed", summary.Completed),
		zap.Bool("rate_limited", summary.RateLimited))
}

// cronLogger adapts zap to the cron.Logger interface.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Sugar().Infow(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
