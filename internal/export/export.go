// Package export renders the scored table to JSON, CSV, or XLSX with
// optional downstream filtering (tier, zone, category, floors, top-N).
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/shiok-scout/gems-cli/internal/model"
)

// Filter narrows the scored table before rendering. Zero values mean
// "no constraint". String matches are case-insensitive.
type Filter struct {
	Tier       string
	Zone       string
	Category   string
	MinRating  float64
	MinReviews int
	Top        int // keep the first N rows after filtering
}

// Apply filters the scored table, preserving its order (residual
// descending, as persisted).
func Apply(entities []model.ScoredEntity, f Filter) []model.ScoredEntity {
	out := make([]model.ScoredEntity, 0, len(entities))
	for _, e := range entities {
		if f.Tier != "" && !strings.EqualFold(string(e.Tier), f.Tier) {
			continue
		}
		if f.Zone != "" && !strings.EqualFold(e.Zone, f.Zone) {
			continue
		}
		if f.Category != "" && !strings.EqualFold(e.Category, f.Category) {
			continue
		}
		if e.Rating < f.MinRating {
			continue
		}
		if e.ReviewCount < f.MinReviews {
			continue
		}
		out = append(out, e)
	}
	if f.Top > 0 && len(out) > f.Top {
		out = out[:f.Top]
	}
	return out
}

// header is the column contract shared by the CSV and XLSX renderers.
var header = []string{
	"name", "rating", "predicted_rating", "residual", "tier", "zone",
	"category", "review_count", "is_chain", "cluster_density",
	"lat", "lon", "explanation",
}

func rowStrings(e model.ScoredEntity) []string {
	return []string{
		e.DisplayName,
		strconv.FormatFloat(e.Rating, 'f', 1, 64),
		strconv.FormatFloat(e.PredictedRating, 'f', 3, 64),
		strconv.FormatFloat(e.Residual, 'f', 3, 64),
		string(e.Tier),
		e.Zone,
		e.Category,
		strconv.Itoa(e.ReviewCount),
		strconv.FormatBool(e.IsChain),
		strconv.Itoa(e.ClusterDensity),
		strconv.FormatFloat(e.Coordinates.Lat, 'f', 5, 64),
		strconv.FormatFloat(e.Coordinates.Lon, 'f', 5, 64),
		e.Explanation,
	}
}

// WriteJSON renders the scored table as an indented JSON array.
func WriteJSON(w io.Writer, entities []model.ScoredEntity) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entities); err != nil {
		return eris.Wrap(err, "export: encode json")
	}
	return nil
}

// WriteCSV renders the scored table as CSV with a header row.
func WriteCSV(w io.Writer, entities []model.ScoredEntity) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	for _, e := range entities {
		if err := cw.Write(rowStrings(e)); err != nil {
			return eris.Wrap(err, "export: write csv row")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrap(err, "export: flush csv")
	}
	return nil
}

// WriteXLSX renders the scored table as a single-sheet workbook.
func WriteXLSX(path string, entities []model.ScoredEntity) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Scored")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	hr := sheet.AddRow()
	for _, h := range header {
		hr.AddCell().SetString(h)
	}
	for _, e := range entities {
		row := sheet.AddRow()
		for _, v := range rowStrings(e) {
			row.AddCell().SetString(v)
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrap(err, "export: save workbook")
	}
	return nil
}
