package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/shiok-scout/gems-cli/internal/export"
)

var (
	exportFormat string
	exportOut    string
	exportFilter export.Filter
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the scored table (json, csv, or xlsx)",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd)
		if err != nil {
			return eris.Wrap(err, "open store")
		}
		defer st.Close()

		scored, err := st.LoadScored(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "load scored entities")
		}
		if len(scored) == 0 {
			return eris.New("no scored entities; run score first")
		}

		if exportFilter.MinReviews == 0 {
			exportFilter.MinReviews = cfg.Scoring.MinReviews
		}
		rows := export.Apply(scored, exportFilter)

		format := strings.ToLower(exportFormat)
		if format == "xlsx" {
			if exportOut == "" {
				return eris.New("--out is required for xlsx")
			}
			if err := export.WriteXLSX(exportOut, rows); err != nil {
				return err
			}
			fmt.Printf("Wrote %d rows to %s\n", len(rows), exportOut)
			return nil
		}

		w := os.Stdout
		if exportOut != "" {
			f, err := os.Create(exportOut)
			if err != nil {
				return eris.Wrap(err, "create output file")
			}
			defer f.Close()
			w = f
		}

		switch format {
		case "json":
			err = export.WriteJSON(w, rows)
		case "csv":
			err = export.WriteCSV(w, rows)
		default:
			return eris.Errorf("unknown format %q (want json, csv, or xlsx)", exportFormat)
		}
		if err != nil {
			return err
		}
		if exportOut != "" {
			fmt.Printf("Wrote %d rows to %s\n", len(rows), exportOut)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "output format: json, csv, xlsx")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output file (default stdout; required for xlsx)")
	exportCmd.Flags().StringVar(&exportFilter.Tier, "tier", "", "filter by tier")
	exportCmd.Flags().StringVar(&exportFilter.Zone, "zone", "", "filter by zone")
	exportCmd.Flags().StringVar(&exportFilter.Category, "category", "", "filter by cuisine category")
	exportCmd.Flags().Float64Var(&exportFilter.MinRating, "min-rating", 0, "minimum rating")
	exportCmd.Flags().IntVar(&exportFilter.MinReviews, "min-reviews", 0, "minimum review count (default from config)")
	exportCmd.Flags().IntVar(&exportFilter.Top, "top", 0, "keep only the top N rows")
	rootCmd.AddCommand(exportCmd)
}
