// Package features turns canonical entities into the fixed-order numeric
// matrix the expectation model consumes.
package features

import (
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/shiok-scout/gems-cli/internal/config"
	"github.com/shiok-scout/gems-cli/internal/geo"
	"github.com/shiok-scout/gems-cli/internal/model"
)

// Column indexes of the feature matrix. Order is part of the model
// contract: a model trained on one layout cannot score another.
const (
	ColCategory = iota
	ColZone
	ColLogReviews
	ColIsChain
	ColClusterDensity
	NumColumns
)

// CategoricalColumns marks which matrix columns hold encoded categories.
var CategoricalColumns = [NumColumns]bool{
	ColCategory: true,
	ColZone:     true,
}

// unknownCode is the encoding for category/zone levels never seen during
// encoder fitting.
const unknownCode = -1

// Annotate computes the corpus-relative fields on each entity in place:
// IsChain from sighting counts and ClusterDensity from neighbors within
// the configured radius (excluding the entity itself).
func Annotate(entities []model.CanonicalEntity, cfg config.FeaturesConfig) {
	minSightings := cfg.ChainMinSightings
	if minSightings <= 0 {
		minSightings = 3
	}
	for i := range entities {
		entities[i].IsChain = entities[i].Sightings >= minSightings
	}

	annotateDensity(entities, cfg.ClusterRadiusMeters)

	chains := 0
	for i := range entities {
		if entities[i].IsChain {
			chains++
		}
	}
	zap.L().Info("annotated features",
		zap.Int("entities", len(entities)),
		zap.Int("chains", chains),
	)
}

// annotateDensity counts neighbors within radiusMeters using a degree
// grid so the pass stays near-linear in corpus size.
func annotateDensity(entities []model.CanonicalEntity, radiusMeters float64) {
	if radiusMeters <= 0 {
		radiusMeters = 200
	}
	// Cell size of one radius in degrees means any neighbor lies in the
	// 3x3 cell block around a point.
	cellDeg := radiusMeters / 111_320.0

	type cell struct{ x, y int }
	grid := make(map[cell][]int, len(entities))
	cellOf := func(lat, lon float64) cell {
		return cell{int(math.Floor(lon / cellDeg)), int(math.Floor(lat / cellDeg))}
	}
	for i := range entities {
		c := cellOf(entities[i].Lat, entities[i].Lon)
		grid[c] = append(grid[c], i)
	}

	for i := range entities {
		c := cellOf(entities[i].Lat, entities[i].Lon)
		count := 0
		for dx := -1; dx <= 1; dx++ {
			for dy := -1; dy <= 1; dy++ {
				for _, j := range grid[cell{c.x + dx, c.y + dy}] {
					if j == i {
						continue
					}
					d := geo.HaversineMeters(entities[i].Lat, entities[i].Lon, entities[j].Lat, entities[j].Lon)
					if d <= radiusMeters {
						count++
					}
				}
			}
		}
		entities[i].ClusterDensity = count
	}
}

// Encoder assigns stable ordinal codes to category and zone levels. Codes
// are fit on the training corpus; unseen levels encode as -1, which the
// model treats as its own level.
type Encoder struct {
	categories map[string]float64
	zones      map[string]float64
}

// FitEncoder learns the level sets from the given entities. Levels are
// coded in sorted order so the encoding is deterministic.
func FitEncoder(entities []model.CanonicalEntity) *Encoder {
	catSet := map[string]bool{}
	zoneSet := map[string]bool{}
	for _, e := range entities {
		catSet[e.Category] = true
		zoneSet[e.Zone] = true
	}
	return &Encoder{
		categories: codeLevels(catSet),
		zones:      codeLevels(zoneSet),
	}
}

func codeLevels(set map[string]bool) map[string]float64 {
	levels := make([]string, 0, len(set))
	for l := range set {
		levels = append(levels, l)
	}
	sort.Strings(levels)
	codes := make(map[string]float64, len(levels))
	for i, l := range levels {
		codes[l] = float64(i)
	}
	return codes
}

// CategoryLevels returns the number of distinct category codes.
func (enc *Encoder) CategoryLevels() int { return len(enc.categories) }

// ZoneLevels returns the number of distinct zone codes.
func (enc *Encoder) ZoneLevels() int { return len(enc.zones) }

// Row encodes one entity into the fixed-order feature vector.
func (enc *Encoder) Row(e model.CanonicalEntity) [NumColumns]float64 {
	var row [NumColumns]float64
	row[ColCategory] = enc.code(enc.categories, e.Category)
	row[ColZone] = enc.code(enc.zones, e.Zone)
	row[ColLogReviews] = math.Log1p(float64(e.ReviewCount))
	if e.IsChain {
		row[ColIsChain] = 1
	}
	row[ColClusterDensity] = float64(e.ClusterDensity)
	return row
}

func (enc *Encoder) code(codes map[string]float64, level string) float64 {
	if c, ok := codes[level]; ok {
		return c
	}
	return unknownCode
}

// Matrix builds the feature matrix and rating target for the given
// entities. Every entity must have a rating; callers filter first.
func (enc *Encoder) Matrix(entities []model.CanonicalEntity) (x [][]float64, y []float64) {
	x = make([][]float64, 0, len(entities))
	y = make([]float64, 0, len(entities))
	for _, e := range entities {
		row := enc.Row(e)
		x = append(x, row[:])
		if e.Rating != nil {
			y = append(y, *e.Rating)
		} else {
			y = append(y, 0)
		}
	}
	return x, y
}

// TrainingSet filters to trainable entities and returns them with their
// feature matrix and targets.
func TrainingSet(entities []model.CanonicalEntity, enc *Encoder) (rows []model.CanonicalEntity, x [][]float64, y []float64) {
	for _, e := range entities {
		if e.Trainable() {
			rows = append(rows, e)
		}
	}
	x, y = enc.Matrix(rows)
	return rows, x, y
}
