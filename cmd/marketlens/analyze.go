package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/newthinker/marketlens/internal/collector"
	"github.com/newthinker/marketlens/internal/core"
	"github.com/newthinker/marketlens/internal/pipeline"
)

var (
	analyzePeriod   string
	analyzeRisk     string
	analyzeUseCache bool
	analyzeRules    []string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze SYMBOL",
	Short: "Compute indicators, signals and an allocation for a symbol",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzePeriod, "period", "", "history window (1d, 5d, 1mo, 3mo, 6mo, 1y, 2y, 5y, 10y)")
	analyzeCmd.Flags().StringVar(&analyzeRisk, "risk", "", "risk profile (conservative, moderate, aggressive)")
	analyzeCmd.Flags().BoolVar(&analyzeUseCache, "cache", true, "serve fresh cached data when available")
	analyzeCmd.Flags().StringSliceVar(&analyzeRules, "rules", nil, "only evaluate these rules")
	rootCmd.AddCommand(analyzeCmd)
}

func analyzeOptions() (pipeline.AnalyzeOptions, error) {
	opts := pipeline.AnalyzeOptions{UseCache: analyzeUseCache, Rules: analyzeRules}

	if analyzePeriod != "" {
		n, err := collector.LookbackForPeriod(analyzePeriod)
		if err != nil {
			return opts, err
		}
		opts.Lookback = n
	}
	if analyzeRisk != "" {
		p, ok := core.ParseRiskProfile(analyzeRisk)
		if !ok {
			return opts, fmt.Errorf("unknown risk profile %q", analyzeRisk)
		}
		opts.RiskProfile = p
	}
	return opts, nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	opts, err := analyzeOptions()
	if err != nil {
		return err
	}

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

	res, err := a.Service().Analyze(ctx, args[0], opts)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), res)
}
