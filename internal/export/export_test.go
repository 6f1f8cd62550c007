package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/jobrunner/atlas/internal/domain"
)

func pointResult(withGeom bool) *domain.FeatureResult {
	return &domain.FeatureResult{
		Features: []domain.Feature{
			{
				Geometry:   &domain.Geometry{Type: domain.GeomPoint, Point: &domain.Point{X: 31.0, Y: -29.8}},
				Attributes: map[string]interface{}{"OBJECTID": float64(1), "NAME": "Depot"},
			},
			{
				Geometry:   &domain.Geometry{Type: domain.GeomPoint, Point: &domain.Point{X: 30.9, Y: -29.9}},
				Attributes: map[string]interface{}{"OBJECTID": float64(2), "NAME": "Clinic", "WARD": float64(12)},
			},
		},
		Layer:    domain.LayerRef{LayerName: "Facilities"},
		WithGeom: withGeom,
	}
}

func TestGeoJSONFeatureCollection(t *testing.T) {
	b, err := GeoJSON(pointResult(true))
	if err != nil {
		t.Fatalf("GeoJSON failed: %v", err)
	}

	var doc struct {
		Type     string `json:"type"`
		Features []struct {
			Type     string `json:"type"`
			Geometry *struct {
				Type        string    `json:"type"`
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]interface{} `json:"properties"`
		} `json:"features"`
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}

	if doc.Type != "FeatureCollection" || len(doc.Features) != 2 {
		t.Fatalf("doc = %+v", doc)
	}
	f := doc.Features[0]
	if f.Geometry == nil || f.Geometry.Type != "Point" {
		t.Fatalf("geometry = %+v", f.Geometry)
	}
	if f.Geometry.Coordinates[0] != 31.0 || f.Geometry.Coordinates[1] != -29.8 {
		t.Errorf("coordinates = %v", f.Geometry.Coordinates)
	}
	if f.Properties["NAME"] != "Depot" {
		t.Errorf("properties = %v", f.Properties)
	}
}

func TestGeoJSONNullGeometryWhenSuppressed(t *testing.T) {
	b, err := GeoJSON(pointResult(false))
	if err != nil {
		t.Fatalf("GeoJSON failed: %v", err)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(b, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	features := doc["features"].([]interface{})
	first := features[0].(map[string]interface{})
	if first["geometry"] != nil {
		t.Errorf("geometry = %v, want null", first["geometry"])
	}
}

func TestGeoJSONPolygon(t *testing.T) {
	ring := []domain.Point{{X: 0, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1}, {X: 0, Y: 0}}
	result := &domain.FeatureResult{
		Features: []domain.Feature{{
			Geometry:   &domain.Geometry{Type: domain.GeomPolygon, Rings: [][]domain.Point{ring}},
			Attributes: map[string]interface{}{"ZONE": "R1"},
		}},
		WithGeom: true,
	}

	b, err := GeoJSON(result)
	if err != nil {
		t.Fatalf("GeoJSON failed: %v", err)
	}
	if !strings.Contains(string(b), `"type":"Polygon"`) {
		t.Errorf("output = %s", b)
	}
}

func TestCSVColumnsAndGeometry(t *testing.T) {
	b, err := CSV(pointResult(true))
	if err != nil {
		t.Fatalf("CSV failed: %v", err)
	}

	rows, err := csv.NewReader(strings.NewReader(string(b))).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(rows))
	}

	header := rows[0]
	want := []string{"NAME", "OBJECTID", "WARD", "WKT"}
	if len(header) != len(want) {
		t.Fatalf("header = %v, want %v", header, want)
	}
	for i := range want {
		if header[i] != want[i] {
			t.Errorf("header[%d] = %q, want %q", i, header[i], want[i])
		}
	}

	// Sparse attribute yields an empty cell, not a ragged row.
	if rows[1][2] != "" {
		t.Errorf("WARD cell = %q, want empty", rows[1][2])
	}
	if rows[1][3] != "POINT (31 -29.8)" {
		t.Errorf("WKT cell = %q", rows[1][3])
	}
}

func TestCSVNoGeometryColumnWhenSuppressed(t *testing.T) {
	b, err := CSV(pointResult(false))
	if err != nil {
		t.Fatalf("CSV failed: %v", err)
	}

	rows, err := csv.NewReader(strings.NewReader(string(b))).ReadAll()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for _, col := range rows[0] {
		if col == wktColumn {
			t.Error("WKT column present despite suppressed geometry")
		}
	}
}

func TestKMLPlacemarks(t *testing.T) {
	b, err := KML(pointResult(true))
	if err != nil {
		t.Fatalf("KML failed: %v", err)
	}

	out := string(b)
	if !strings.Contains(out, "<kml") || !strings.Contains(out, "http://www.opengis.net/kml/2.2") {
		t.Errorf("missing kml root: %s", out)
	}
	if strings.Count(out, "<Placemark>") != 2 {
		t.Errorf("placemarks = %d, want 2", strings.Count(out, "<Placemark>"))
	}
	if !strings.Contains(out, "<name>Depot</name>") {
		t.Error("placemark name missing")
	}
	if !strings.Contains(out, "<coordinates>31,-29.8</coordinates>") {
		t.Errorf("point coordinates missing: %s", out)
	}
}

func TestKMLPolygonRings(t *testing.T) {
	outer := []domain.Point{{X: 0, Y: 0}, {X: 0, Y: 4}, {X: 4, Y: 4}, {X: 0, Y: 0}}
	inner := []domain.Point{{X: 1, Y: 1}, {X: 1, Y: 2}, {X: 2, Y: 2}, {X: 1, Y: 1}}
	result := &domain.FeatureResult{
		Features: []domain.Feature{{
			Geometry: &domain.Geometry{Type: domain.GeomPolygon, Rings: [][]domain.Point{outer, inner}},
		}},
		WithGeom: true,
	}

	b, err := KML(result)
	if err != nil {
		t.Fatalf("KML failed: %v", err)
	}
	out := string(b)
	if !strings.Contains(out, "<outerBoundaryIs>") || !strings.Contains(out, "<innerBoundaryIs>") {
		t.Errorf("ring boundaries missing: %s", out)
	}
}

func TestShapefileStructure(t *testing.T) {
	b, err := ShapefileStructure(pointResult(true))
	if err != nil {
		t.Fatalf("ShapefileStructure failed: %v", err)
	}

	var doc struct {
		ShapeType string `json:"shapeType"`
		Fields    []struct {
			Name string `json:"name"`
			Type string `json:"type"`
		} `json:"fields"`
		Records []struct {
			Shape      []float64              `json:"shape"`
			Attributes map[string]interface{} `json:"attributes"`
		} `json:"records"`
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if doc.ShapeType != "Point" {
		t.Errorf("shapeType = %q, want Point", doc.ShapeType)
	}
	if len(doc.Records) != 2 {
		t.Fatalf("records = %d", len(doc.Records))
	}
	if doc.Records[0].Shape[0] != 31.0 {
		t.Errorf("shape = %v", doc.Records[0].Shape)
	}

	fieldTypes := make(map[string]string)
	for _, f := range doc.Fields {
		fieldTypes[f.Name] = f.Type
	}
	if fieldTypes["NAME"] != "C" || fieldTypes["OBJECTID"] != "N" {
		t.Errorf("fields = %v", fieldTypes)
	}
}

func TestShapefileMixedGeometryRejected(t *testing.T) {
	result := &domain.FeatureResult{
		Features: []domain.Feature{
			{Geometry: &domain.Geometry{Type: domain.GeomPoint, Point: &domain.Point{X: 1, Y: 1}}},
			{Geometry: &domain.Geometry{Type: domain.GeomLine, Paths: [][]domain.Point{{{X: 0, Y: 0}, {X: 1, Y: 1}}}}},
		},
		WithGeom: true,
	}

	if _, err := ShapefileStructure(result); !errors.Is(err, domain.ErrUnsupportedGeometry) {
		t.Errorf("err = %v, want ErrUnsupportedGeometry", err)
	}
}

func TestEncodeDispatch(t *testing.T) {
	tests := []struct {
		target    domain.ExportTarget
		mediaType string
	}{
		{domain.ExportGeoJSON, "application/geo+json"},
		{domain.ExportCSV, "text/csv"},
		{domain.ExportKML, "application/vnd.google-earth.kml+xml"},
		{domain.ExportShapefile, "application/json"},
	}

	for _, tt := range tests {
		_, mediaType, err := Encode(pointResult(true), tt.target)
		if err != nil {
			t.Errorf("Encode(%q) failed: %v", tt.target, err)
			continue
		}
		if mediaType != tt.mediaType {
			t.Errorf("Encode(%q) media type = %q, want %q", tt.target, mediaType, tt.mediaType)
		}
	}

	if _, _, err := Encode(pointResult(true), "dwg"); !errors.Is(err, domain.ErrUnsupported) {
		t.Errorf("unknown target should be rejected, got %v", err)
	}
}
