package main

import (
	"fmt"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/shiok-scout/gems-cli/internal/pipeline"
	"github.com/shiok-scout/gems-cli/pkg/anthropic"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Dedupe, classify, train, and score the collected corpus",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cfg.Anthropic.Key == "" {
			return eris.New("anthropic API key is required (GEMS_ANTHROPIC_KEY)")
		}

		st, err := openStore(cmd)
		if err != nil {
			return eris.Wrap(err, "open store")
		}
		defer st.Close()

		p, err := pipeline.New(cfg, st, anthropic.NewClient(cfg.Anthropic.Key))
		if err != nil {
			return err
		}

		stats, err := p.Run(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Run %s complete in %s\n", stats.RunID, stats.Duration.Round(time.Millisecond))
		fmt.Printf("  %d raw -> %d canonical (%.2fx compression)\n",
			stats.RawEntities, stats.CanonicalEntities, stats.CompressionRatio)
		fmt.Printf("  %d training rows, CV RMSE %.4f\n", stats.TrainingRows, stats.CVRMSE)
		fmt.Printf("  %d scored, %d hidden gems\n", stats.Scored, stats.HiddenGems)

		categories := make([]string, 0, len(stats.CategoryDistribution))
		for c := range stats.CategoryDistribution {
			categories = append(categories, c)
		}
		sort.Strings(categories)
		for _, c := range categories {
			fmt.Printf("    %-16s %d\n", c, stats.CategoryDistribution[c])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scoreCmd)
}
