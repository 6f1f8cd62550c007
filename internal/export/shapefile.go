package export

import (
	"encoding/json"
	"fmt"

	"github.com/jobrunner/atlas/internal/domain"
)

// shapefileDoc mirrors the structure of a shapefile: one shape type for the
// whole file, a fixed field schema, and per-record shape plus attributes.
// Rendered as JSON so downstream tooling can assemble the binary sidecars.
type shapefileDoc struct {
	ShapeType string            `json:"shapeType"`
	Fields    []shapefileField  `json:"fields"`
	Records   []shapefileRecord `json:"records"`
}

type shapefileField struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type shapefileRecord struct {
	Shape      interface{}            `json:"shape"`
	Attributes map[string]interface{} `json:"attributes"`
}

// ShapefileStructure renders the result as a shapefile-compatible structure.
// Shapefiles hold a single shape type, so a result mixing geometry types is
// rejected.
func ShapefileStructure(result *domain.FeatureResult) ([]byte, error) {
	doc := shapefileDoc{
		Records: make([]shapefileRecord, 0, result.Count()),
	}

	shapeType := domain.GeomNone
	for i := range result.Features {
		f := &result.Features[i]

		var shape interface{}
		if result.WithGeom && f.Geometry != nil {
			t := f.Geometry.Type
			if t == domain.GeomEnvelope {
				t = domain.GeomPolygon
			}
			if shapeType == domain.GeomNone {
				shapeType = t
			} else if shapeType != t {
				return nil, fmt.Errorf("%w: %q and %q in one shapefile",
					domain.ErrUnsupportedGeometry, shapeType, t)
			}
			shape = shapefileShape(f.Geometry)
		}

		doc.Records = append(doc.Records, shapefileRecord{Shape: shape, Attributes: f.Attributes})
	}

	doc.ShapeType = shapefileShapeType(shapeType)
	doc.Fields = shapefileFields(result)

	return json.Marshal(doc)
}

func shapefileShapeType(t domain.GeometryType) string {
	switch t {
	case domain.GeomPoint:
		return "Point"
	case domain.GeomLine:
		return "PolyLine"
	case domain.GeomPolygon:
		return "Polygon"
	}
	return "Null"
}

// shapefileShape renders a geometry as coordinate arrays in shapefile part
// order: points as a pair, lines and polygons as parts of pairs.
func shapefileShape(g *domain.Geometry) interface{} {
	switch g.Type {
	case domain.GeomPoint:
		return []float64{g.Point.X, g.Point.Y}
	case domain.GeomLine:
		return pairParts(g.Paths)
	case domain.GeomPolygon:
		return pairParts(g.Rings)
	case domain.GeomEnvelope:
		box := *g.Box
		return pairParts([][]domain.Point{{
			{X: box.XMin, Y: box.YMin},
			{X: box.XMax, Y: box.YMin},
			{X: box.XMax, Y: box.YMax},
			{X: box.XMin, Y: box.YMax},
			{X: box.XMin, Y: box.YMin},
		}})
	}
	return nil
}

func pairParts(parts [][]domain.Point) [][][]float64 {
	out := make([][][]float64, len(parts))
	for i, part := range parts {
		out[i] = make([][]float64, len(part))
		for j, p := range part {
			out[i][j] = []float64{p.X, p.Y}
		}
	}
	return out
}

// shapefileFields derives a fixed field schema from the attribute values.
// The type of the first non-nil value wins per column.
func shapefileFields(result *domain.FeatureResult) []shapefileField {
	types := make(map[string]string)
	for i := range result.Features {
		for name, v := range result.Features[i].Attributes {
			if _, seen := types[name]; seen && types[name] != "" {
				continue
			}
			types[name] = shapefileFieldType(v)
		}
	}

	fields := make([]shapefileField, 0, len(types))
	for _, name := range attributeColumns(result) {
		t := types[name]
		if t == "" {
			t = "C"
		}
		fields = append(fields, shapefileField{Name: name, Type: t})
	}
	return fields
}

// shapefileFieldType maps a value to a dBASE field type code.
func shapefileFieldType(v interface{}) string {
	switch v.(type) {
	case float64, int, int64:
		return "N"
	case bool:
		return "L"
	case nil:
		return ""
	}
	return "C"
}
