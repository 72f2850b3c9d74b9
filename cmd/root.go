package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shiok-scout/gems-cli/internal/checkpoint"
	"github.com/shiok-scout/gems-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "gems",
	Short: "Context-adjusted restaurant discovery pipeline",
	Long:  "Sweeps a geographic region for restaurant listings, classifies cuisines, trains an expectation model, and surfaces hidden gems by rating residual.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// openStore opens the configured checkpoint store and runs migrations.
func openStore(cmd *cobra.Command) (checkpoint.Store, error) {
	st, err := checkpoint.New(cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(cmd.Context()); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
