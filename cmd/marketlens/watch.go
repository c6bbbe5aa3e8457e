package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Refresh the configured watchlist on a schedule and expose metrics",
	RunE:  runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, cfg, log, err := setup(ctx)
	defer log.Sync()
	if err != nil {
		return err
	}
	defer a.Close()

	log.Info("starting watch",
		zap.Strings("symbols", cfg.Watchlist.Symbols),
		zap.Bool("metrics", cfg.Metrics.Enabled),
		zap.String("metrics_addr", cfg.Metrics.Addr),
	)
	return a.Start(ctx)
}
