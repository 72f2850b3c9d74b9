package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/shiok-scout/gems-cli/internal/model"
	"github.com/shiok-scout/gems-cli/internal/seeds"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sweep and scoring progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd)
		if err != nil {
			return eris.Wrap(err, "open store")
		}
		defer st.Close()

		counts, err := st.Counts(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "load counts")
		}

		total := "?"
		if plan, planErr := seeds.Generate(cfg.Region); planErr == nil {
			total = fmt.Sprintf("%d", len(plan))
		}

		fmt.Printf("Seeds: %d/%s complete, %d failed\n", counts.Complete, total, counts.Failed)
		fmt.Printf("Raw entities: %d\n", counts.Entities)

		scored, err := st.LoadScored(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "load scored entities")
		}
		if len(scored) == 0 {
			fmt.Println("Scored: none (run score)")
			return nil
		}

		gems := 0
		for _, s := range scored {
			if s.Tier == model.TierHiddenGem {
				gems++
			}
		}
		fmt.Printf("Scored: %d entities, %d hidden gems\n", len(scored), gems)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
