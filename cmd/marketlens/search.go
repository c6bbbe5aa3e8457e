package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search QUERY...",
	Short: "Look up symbols by ticker or company name",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
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

	matches, err := a.Service().Search(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), matches)
}
