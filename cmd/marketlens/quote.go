package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var quoteUseCache bool

var quoteCmd = &cobra.Command{
	Use:   "quote SYMBOL...",
	Short: "Fetch the latest quote for one or more symbols",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQuote,
}

func init() {
	quoteCmd.Flags().BoolVar(&quoteUseCache, "cache", true, "serve fresh cached quotes when available")
	rootCmd.AddCommand(quoteCmd)
}

func runQuote(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, _, log, err := setup(ctx)
	defer log.Sync()
	if err != nil {
		return err
	}
	defer a.Close()

	if len(args) == 1 {
		res, err := a.Service().Quote(ctx, args[0], quoteUseCache)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), res)
	}

	items, err := a.Service().Batch(ctx, args, quoteUseCache)
	if err != nil {
		return err
	}
	for _, it := range items {
		if it.Err != nil {
			log.Warn("quote failed", zap.String("symbol", it.Symbol), zap.Error(it.Err))
		}
	}
	return writeJSON(cmd.OutOrStdout(), items)
}
