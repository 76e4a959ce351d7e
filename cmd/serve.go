package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/replyrank/crawler/internal/api"
	"github.com/replyrank/crawler/internal/scheduler"
)

// newServeCmd creates the 'serve' subcommand: run the HTTP API and,
// optionally, the cron scheduler until interrupted.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and scheduled crawls",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := appInstance.Config()
			logger := appInstance.Logger()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			server := api.NewServer(
				appInstance.Coordinator(),
				appInstance.Checkpoints(),
				appInstance.Lists(),
				appInstance.Tweets(),
				logger,
			)

			g, gctx := errgroup.WithContext(ctx)
			addr := fmt.Sprintf(":%d", cfg.Server.Port)
			g.Go(func() error {
				logger.Info("starting HTTP server", zap.String("addr", addr))
				if err := server.ListenAndServe(gctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http server: %w", err)
				}
				return nil
			})

			if cfg.Scheduler.Enabled {
				sched, err := scheduler.New(cfg.Scheduler.Spec, appInstance.Coordinator(), logger)
				if err != nil {
					return err
				}
				g.Go(func() error {
					logger.Info("starting crawl scheduler", zap.String("spec", cfg.Scheduler.Spec))
					sched.Run(gctx)
					return nil
				})
			}

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			logger.Info("shutdown complete")
			return nil
		},
	}
}
