// Package seeds generates the deterministic seed-point set for the tile
// sweep: a square grid covering the configured region plus optional
// landmark points loaded from GeoJSON.
package seeds

import (
	"math"
	"os"

	"github.com/rotisserie/eris"
	geojson "github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/shiok-scout/gems-cli/internal/config"
	"github.com/shiok-scout/gems-cli/internal/model"
)

// MetersPerDegreeLat is the approximate north-south extent of one degree
// of latitude. Adequate near the equator where the sweep regions live.
const MetersPerDegreeLat = 111_320.0

// Generate builds the full seed list for a region: grid points in
// row-major order (south to north, west to east), then landmark points.
// Seed indexes are assigned by position, so the same config always
// produces the same seed at the same index. Checkpoint identity depends
// on that.
func Generate(cfg config.RegionConfig) ([]model.Seed, error) {
	if cfg.SpacingMeters <= 0 {
		return nil, eris.New("seeds: spacing_meters must be positive")
	}
	if cfg.LatMax <= cfg.LatMin || cfg.LonMax <= cfg.LonMin {
		return nil, eris.New("seeds: region bounds are empty")
	}

	seeds := grid(cfg)

	if cfg.LandmarkFile != "" {
		landmarks, err := loadLandmarks(cfg.LandmarkFile)
		if err != nil {
			return nil, err
		}
		for _, lm := range landmarks {
			lm.Index = len(seeds)
			seeds = append(seeds, lm)
		}
	}

	zap.L().Info("generated seed points",
		zap.Int("total", len(seeds)),
		zap.Float64("spacing_m", cfg.SpacingMeters),
	)
	return seeds, nil
}

func grid(cfg config.RegionConfig) []model.Seed {
	latStep := cfg.SpacingMeters / MetersPerDegreeLat
	// Longitude degrees shrink with latitude; use the region midpoint.
	midLat := (cfg.LatMin + cfg.LatMax) / 2
	lonStep := cfg.SpacingMeters / (MetersPerDegreeLat * math.Cos(midLat*math.Pi/180))

	var seeds []model.Seed
	for lat := cfg.LatMin; lat <= cfg.LatMax; lat += latStep {
		for lon := cfg.LonMin; lon <= cfg.LonMax; lon += lonStep {
			seeds = append(seeds, model.Seed{
				Index: len(seeds),
				Lat:   lat,
				Lon:   lon,
				Kind:  model.SeedKindGrid,
			})
		}
	}
	return seeds
}

// loadLandmarks reads Point features from a GeoJSON FeatureCollection.
// Landmark seeds densify the sweep where the grid alone under-samples,
// such as food centres packed with more listings than one query returns.
func loadLandmarks(path string) ([]model.Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "seeds: read landmark file %s", path)
	}

	var fc geojson.FeatureCollection
	if err := fc.UnmarshalJSON(data); err != nil {
		return nil, eris.Wrapf(err, "seeds: parse landmark file %s", path)
	}

	var seeds []model.Seed
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		coords := f.Geometry.FlatCoords()
		if f.Geometry.Layout().Stride() < 2 || len(coords) < 2 {
			continue
		}
		// GeoJSON is lon-lat ordered.
		seeds = append(seeds, model.Seed{
			Lon:  coords[0],
			Lat:  coords[1],
			Kind: model.SeedKindLandmark,
		})
	}
	return seeds, nil
}
