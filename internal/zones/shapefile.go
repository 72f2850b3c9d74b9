package zones

import (
	"strings"

	shp "github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
)

func loadShapefile(path string) ([]Zone, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "zones: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	nameIdx := -1
	for _, field := range nameFields {
		if idx := fieldIndex(reader, field); idx >= 0 {
			nameIdx = idx
			break
		}
	}
	if nameIdx < 0 {
		return nil, eris.Errorf("zones: no name field in %s (tried %s)", path, strings.Join(nameFields, ", "))
	}

	var zones []Zone
	for reader.Next() {
		_, shape := reader.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok {
			continue
		}

		name := strings.TrimSpace(strings.TrimRight(reader.Attribute(nameIdx), "\x00"))
		if name == "" {
			continue
		}

		// Shapefile part rings don't mark holes explicitly; all parts are
		// treated as exterior rings, which is adequate for planning-area
		// boundaries without enclaves.
		var rings [][]float64
		parts := append([]int32{}, poly.Parts...)
		parts = append(parts, int32(len(poly.Points)))
		for p := 0; p+1 < len(parts); p++ {
			ring := make([]float64, 0, (parts[p+1]-parts[p])*2)
			for _, pt := range poly.Points[parts[p]:parts[p+1]] {
				ring = append(ring, pt.X, pt.Y)
			}
			if len(ring) >= 6 {
				rings = append(rings, ring)
			}
		}
		if len(rings) > 0 {
			zones = append(zones, newZone(name, rings, nil))
		}
	}
	return zones, nil
}

// fieldIndex returns the index of a named field in the shapefile, or -1 if not found.
func fieldIndex(reader *shp.Reader, name string) int {
	for i, f := range reader.Fields() {
		if strings.EqualFold(strings.TrimRight(f.String(), "\x00"), name) {
			return i
		}
	}
	return -1
}
