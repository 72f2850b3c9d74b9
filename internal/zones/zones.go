// Package zones resolves coordinates to named planning zones from
// GeoJSON or shapefile boundaries.
package zones

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	geom "github.com/twpayne/go-geom"
	geojson "github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"

	"github.com/shiok-scout/gems-cli/internal/geo"
	"github.com/shiok-scout/gems-cli/internal/model"
)

// Zone is one named boundary polygon set.
type Zone struct {
	Name  string
	rings [][]float64 // flat XY exterior rings
	holes [][]float64 // flat XY interior rings

	// Centroid of the first exterior ring, for the nearest-zone fallback.
	centroidLat float64
	centroidLon float64
}

// Resolver maps coordinates to zone names.
type Resolver struct {
	zones        []Zone
	bufferMeters float64
}

// nameFields lists property/attribute keys tried in order for a zone's name.
var nameFields = []string{"PLN_AREA_N", "name", "NAME", "Name"}

// Load reads zone boundaries from a .geojson/.json or .shp file.
func Load(path string, bufferMeters float64) (*Resolver, error) {
	var (
		zones []Zone
		err   error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojson", ".json":
		zones, err = loadGeoJSON(path)
	case ".shp":
		zones, err = loadShapefile(path)
	default:
		return nil, eris.Errorf("zones: unsupported boundary format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	if len(zones) == 0 {
		return nil, eris.Errorf("zones: no zones found in %s", path)
	}

	zap.L().Info("loaded zone boundaries",
		zap.String("file", path),
		zap.Int("zones", len(zones)),
	)
	return &Resolver{zones: zones, bufferMeters: bufferMeters}, nil
}

// Resolve returns the zone containing the point. Points outside every
// polygon snap to the nearest zone centroid when within the buffer
// distance; beyond it the point is outside the covered region.
func (r *Resolver) Resolve(lat, lon float64) string {
	p := geom.Coord{lon, lat}
	for _, z := range r.zones {
		if z.contains(p) {
			return z.Name
		}
	}

	// Nearest-centroid fallback covers coastline and boundary-gap points.
	best := ""
	bestDist := r.bufferMeters
	for _, z := range r.zones {
		d := geo.HaversineMeters(lat, lon, z.centroidLat, z.centroidLon)
		if d <= bestDist {
			best = z.Name
			bestDist = d
		}
	}
	if best != "" {
		return best
	}
	return model.ZoneOutside
}

// Annotate resolves each entity's zone in place and flags entities that
// fall outside the covered region.
func (r *Resolver) Annotate(entities []model.CanonicalEntity) {
	outside := 0
	for i := range entities {
		zone := r.Resolve(entities[i].Lat, entities[i].Lon)
		entities[i].Zone = zone
		if zone == model.ZoneOutside {
			outside++
			if !entities[i].Flagged(model.QualityOutsideRegion) {
				entities[i].Flags = append(entities[i].Flags, model.QualityOutsideRegion)
			}
		}
	}
	if outside > 0 {
		zap.L().Info("entities outside covered region", zap.Int("count", outside))
	}
}

func (z *Zone) contains(p geom.Coord) bool {
	inAny := false
	for _, ring := range z.rings {
		if xy.IsPointInRing(geom.XY, p, ring) {
			inAny = true
			break
		}
	}
	if !inAny {
		return false
	}
	for _, hole := range z.holes {
		if xy.IsPointInRing(geom.XY, p, hole) {
			return false
		}
	}
	return true
}

func newZone(name string, rings, holes [][]float64) Zone {
	z := Zone{Name: name, rings: rings, holes: holes}
	if len(rings) > 0 {
		var sumLat, sumLon float64
		n := len(rings[0]) / 2
		for i := 0; i < n; i++ {
			sumLon += rings[0][2*i]
			sumLat += rings[0][2*i+1]
		}
		if n > 0 {
			z.centroidLon = sumLon / float64(n)
			z.centroidLat = sumLat / float64(n)
		}
	}
	return z
}

func loadGeoJSON(path string) ([]Zone, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "zones: read %s", path)
	}

	var fc geojson.FeatureCollection
	if err := fc.UnmarshalJSON(data); err != nil {
		return nil, eris.Wrapf(err, "zones: parse %s", path)
	}

	var zones []Zone
	for _, f := range fc.Features {
		name := featureName(f.Properties)
		if name == "" || f.Geometry == nil {
			continue
		}

		var rings, holes [][]float64
		switch g := f.Geometry.(type) {
		case *geom.Polygon:
			rings, holes = polygonRings(g, rings, holes)
		case *geom.MultiPolygon:
			for i := 0; i < g.NumPolygons(); i++ {
				rings, holes = polygonRings(g.Polygon(i), rings, holes)
			}
		default:
			continue
		}
		if len(rings) > 0 {
			zones = append(zones, newZone(name, rings, holes))
		}
	}
	return zones, nil
}

// polygonRings appends a polygon's exterior ring to rings and interior
// rings to holes, projected down to flat XY.
func polygonRings(p *geom.Polygon, rings, holes [][]float64) ([][]float64, [][]float64) {
	stride := p.Layout().Stride()
	for i := 0; i < p.NumLinearRings(); i++ {
		flat := flattenXY(p.LinearRing(i).FlatCoords(), stride)
		if i == 0 {
			rings = append(rings, flat)
		} else {
			holes = append(holes, flat)
		}
	}
	return rings, holes
}

func flattenXY(coords []float64, stride int) []float64 {
	if stride == 2 {
		return coords
	}
	out := make([]float64, 0, len(coords)/stride*2)
	for i := 0; i+1 < len(coords); i += stride {
		out = append(out, coords[i], coords[i+1])
	}
	return out
}

func featureName(props map[string]any) string {
	for _, field := range nameFields {
		if v, ok := props[field]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}
