package export

import (
	"encoding/json"

	"github.com/jobrunner/atlas/internal/domain"
)

// geoJSONFeatureCollection is the top-level GeoJSON document.
type geoJSONFeatureCollection struct {
	Type     string           `json:"type"`
	Features []geoJSONFeature `json:"features"`
}

type geoJSONFeature struct {
	Type       string                 `json:"type"`
	Geometry   *geoJSONGeometry       `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

type geoJSONGeometry struct {
	Type        string      `json:"type"`
	Coordinates interface{} `json:"coordinates"`
}

// GeoJSON renders the result as an RFC 7946 FeatureCollection. Features
// without geometry carry a null geometry member.
func GeoJSON(result *domain.FeatureResult) ([]byte, error) {
	fc := geoJSONFeatureCollection{
		Type:     "FeatureCollection",
		Features: make([]geoJSONFeature, 0, result.Count()),
	}

	for i := range result.Features {
		f := &result.Features[i]
		props := f.Attributes
		if props == nil {
			props = map[string]interface{}{}
		}

		gf := geoJSONFeature{Type: "Feature", Properties: props}
		if result.WithGeom && f.Geometry != nil {
			g, err := geoJSONGeometryOf(f.Geometry)
			if err != nil {
				return nil, err
			}
			gf.Geometry = g
		}
		fc.Features = append(fc.Features, gf)
	}

	return json.Marshal(fc)
}

// geoJSONGeometryOf converts a domain geometry. Single-path lines render as
// LineString, multi-path as MultiLineString.
func geoJSONGeometryOf(g *domain.Geometry) (*geoJSONGeometry, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	switch g.Type {
	case domain.GeomPoint:
		return &geoJSONGeometry{Type: "Point", Coordinates: position(*g.Point)}, nil
	case domain.GeomLine:
		if len(g.Paths) == 1 {
			return &geoJSONGeometry{Type: "LineString", Coordinates: positions(g.Paths[0])}, nil
		}
		return &geoJSONGeometry{Type: "MultiLineString", Coordinates: positionsOf(g.Paths)}, nil
	case domain.GeomPolygon:
		return &geoJSONGeometry{Type: "Polygon", Coordinates: positionsOf(g.Rings)}, nil
	case domain.GeomEnvelope:
		box := *g.Box
		ring := []domain.Point{
			{X: box.XMin, Y: box.YMin},
			{X: box.XMax, Y: box.YMin},
			{X: box.XMax, Y: box.YMax},
			{X: box.XMin, Y: box.YMax},
			{X: box.XMin, Y: box.YMin},
		}
		return &geoJSONGeometry{Type: "Polygon", Coordinates: [][][]float64{positions(ring)}}, nil
	}
	return nil, domain.ErrInvalidGeometry
}

func position(p domain.Point) []float64 {
	return []float64{p.X, p.Y}
}

func positions(points []domain.Point) [][]float64 {
	out := make([][]float64, len(points))
	for i, p := range points {
		out[i] = position(p)
	}
	return out
}

func positionsOf(parts [][]domain.Point) [][][]float64 {
	out := make([][][]float64, len(parts))
	for i, part := range parts {
		out[i] = positions(part)
	}
	return out
}
