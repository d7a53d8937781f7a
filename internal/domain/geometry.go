package domain

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// Mask is the clip geometry for a job: one multipolygon with the reference
// system its coordinates are expressed in. Multiple input features are
// combined into a single multipolygon; the mask is immutable after parsing.
type Mask struct {
	Geometry orb.MultiPolygon
	CRS      CRS
}

// DefaultMaskCRS is assumed when the caller supplies no CRS hint, per the
// GeoJSON convention (RFC 7946 mandates WGS 84).
var DefaultMaskCRS = CRS{Code: 4326}

// ParseMask decodes a GeoJSON document into a Mask. The document may be a
// FeatureCollection, a single Feature, or a bare geometry; only Polygon and
// MultiPolygon geometries are accepted. crsHint names the reference system of
// the coordinates ("" means EPSG:4326).
func ParseMask(data []byte, crsHint string) (Mask, error) {
	crs := DefaultMaskCRS
	if crsHint != "" {
		parsed, err := ParseCRS(crsHint)
		if err != nil {
			return Mask{}, err
		}
		crs = parsed
	}

	geoms, err := decodeGeometries(data)
	if err != nil {
		return Mask{}, err
	}

	var mp orb.MultiPolygon
	for _, g := range geoms {
		switch geom := g.(type) {
		case orb.Polygon:
			mp = append(mp, geom)
		case orb.MultiPolygon:
			mp = append(mp, geom...)
		default:
			return Mask{}, fmt.Errorf("%w: mask geometry must be Polygon or MultiPolygon, got %s", ErrInvalidInput, g.GeoJSONType())
		}
	}
	if len(mp) == 0 {
		return Mask{}, fmt.Errorf("%w: mask contains no polygon geometry", ErrInvalidInput)
	}
	return Mask{Geometry: mp, CRS: crs}, nil
}

// decodeGeometries accepts the three GeoJSON top-level shapes a caller might
// reasonably send and flattens them to a geometry list.
func decodeGeometries(data []byte) ([]orb.Geometry, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: mask is not valid JSON: %v", ErrInvalidInput, err)
	}

	switch probe.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		geoms := make([]orb.Geometry, 0, len(fc.Features))
		for _, f := range fc.Features {
			geoms = append(geoms, f.Geometry)
		}
		return geoms, nil
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return []orb.Geometry{f.Geometry}, nil
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return []orb.Geometry{g.Geometry()}, nil
	}
}

// Bound returns the mask's bounding envelope in its own reference system.
func (m Mask) Bound() Bound {
	b := m.Geometry.Bound()
	return Bound{MinX: b.Min[0], MinY: b.Min[1], MaxX: b.Max[0], MaxY: b.Max[1]}
}

// Contains reports whether the world coordinate (x, y), expressed in the
// mask's reference system, falls inside the mask polygons.
func (m Mask) Contains(x, y float64) bool {
	return planar.MultiPolygonContains(m.Geometry, orb.Point{x, y})
}

// To reprojects the mask's coordinates into the target reference system.
// Returns the mask unchanged when it is already in that system.
func (m Mask) To(target CRS) (Mask, error) {
	if m.CRS.Code == target.Code {
		return m, nil
	}
	tr, err := NewCoordTransformer(m.CRS, target)
	if err != nil {
		return Mask{}, err
	}
	out := make(orb.MultiPolygon, len(m.Geometry))
	for i, poly := range m.Geometry {
		outPoly := make(orb.Polygon, len(poly))
		for j, ring := range poly {
			outRing := make(orb.Ring, len(ring))
			for k, pt := range ring {
				x, y := tr.Transform(pt[0], pt[1])
				outRing[k] = orb.Point{x, y}
			}
			outPoly[j] = outRing
		}
		out[i] = outPoly
	}
	return Mask{Geometry: out, CRS: target}, nil
}
