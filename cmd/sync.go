package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/marketflow-cli/internal/collector"
	"github.com/sells-group/marketflow-cli/internal/fetch"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Mirror the configured exchange drops into the data directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(cfg.Sync.Jobs) == 0 {
			return fmt.Errorf("no sync jobs configured")
		}

		httpFetcher := fetch.NewHTTPFetcher(fetch.HTTPOptions{
			RateLimiters: fetch.DefaultRateLimiters(),
		})
		ftpFetcher := fetch.NewFTPFetcher(fetch.FTPOptions{})

		s := collector.NewSyncer(httpFetcher, ftpFetcher, cfg.DataDir)
		report, err := s.Sync(cmd.Context(), cfg.Sync.Jobs)
		if err != nil {
			return err
		}

		fmt.Printf("downloaded %d, unchanged %d, failed %d\n",
			report.Downloaded, report.Unchanged, report.Failed)
		if report.Failed > 0 {
			return fmt.Errorf("%d sync jobs failed", report.Failed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
