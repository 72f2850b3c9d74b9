package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/shiok-scout/gems-cli/internal/model"
	"github.com/shiok-scout/gems-cli/internal/seeds"
)

var seedsJSON bool

var seedsCmd = &cobra.Command{
	Use:   "seeds",
	Short: "Show the seed-point plan for the configured region",
	RunE: func(cmd *cobra.Command, args []string) error {
		plan, err := seeds.Generate(cfg.Region)
		if err != nil {
			return eris.Wrap(err, "generate seeds")
		}

		if seedsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(plan)
		}

		gridCount, landmarkCount := 0, 0
		for _, s := range plan {
			if s.Kind == model.SeedKindLandmark {
				landmarkCount++
			} else {
				gridCount++
			}
		}

		fmt.Printf("Region: [%.4f, %.4f] x [%.4f, %.4f], %.0fm spacing\n",
			cfg.Region.LatMin, cfg.Region.LatMax,
			cfg.Region.LonMin, cfg.Region.LonMax,
			cfg.Region.SpacingMeters,
		)
		fmt.Printf("Seeds: %d total (%d grid, %d landmark)\n", len(plan), gridCount, landmarkCount)
		return nil
	},
}

func init() {
	seedsCmd.Flags().BoolVar(&seedsJSON, "json", false, "print the full seed list as JSON")
	rootCmd.AddCommand(seedsCmd)
}
