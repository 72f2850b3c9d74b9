package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/shiok-scout/gems-cli/internal/collector"
	"github.com/shiok-scout/gems-cli/internal/seeds"
	"github.com/shiok-scout/gems-cli/pkg/places"
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Sweep the region for restaurant listings",
	Long:  "Queries the listings source at every seed point not yet checkpointed. Safe to interrupt and re-run: completed seeds are skipped, failed seeds are retried.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cfg.Places.Key == "" {
			return eris.New("places API key is required (GEMS_PLACES_KEY)")
		}

		plan, err := seeds.Generate(cfg.Region)
		if err != nil {
			return eris.Wrap(err, "generate seeds")
		}

		st, err := openStore(cmd)
		if err != nil {
			return eris.Wrap(err, "open store")
		}
		defer st.Close()

		var opts []places.Option
		if cfg.Places.BaseURL != "" {
			opts = append(opts, places.WithBaseURL(cfg.Places.BaseURL))
		}
		source := places.NewClient(cfg.Places.Key, opts...)

		stats, err := collector.New(st, source, cfg.Collect).Run(ctx, plan)
		if err != nil {
			return eris.Wrap(err, "sweep")
		}

		fmt.Printf("Swept %d seeds (%d skipped, %d failed), %d entities stored\n",
			stats.Swept, stats.Skipped, stats.Failed, stats.Entities)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(collectCmd)
}
