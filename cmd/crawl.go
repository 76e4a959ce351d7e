package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newCrawlCmd creates the 'crawl' subcommand: run one crawl cycle and exit.
// Designed for invocation from an external scheduler (e.g. Cloud Scheduler or
// cron); a run cut short by the API rate limit exits zero, since the next
// invocation resumes the same checkpoint.
func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Run one crawl cycle and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			summary, err := appInstance.Coordinator().RunCycle(cmd.Context())
			if err != nil {
				return fmt.Errorf("run crawl cycle: %w", err)
			}
			appInstance.Logger().Info("crawl invocation finished",
				zap.String("checkpoint_id", summary.CheckpointID),
				zap.Bool("completed", summary.Completed),
				zap.Bool("rate_limited", summary.RateLimited),
				zap.Int("lists_crawled", summary.ListsCrawled),
				zap.Int("users_crawled", summary.UsersCrawled),
				zap.Int("tweets_written", summary.TweetsWritten),
				zap.Duration("elapsed", summary.Elapsed))
			return nil
		},
	}
}
