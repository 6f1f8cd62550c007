package arcgis

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/jobrunner/atlas/internal/domain"
)

// Wire types for the REST backend. The backend's JSON is loosely structured;
// these types are the only place it is parsed, and everything is projected
// into the fixed domain shapes before leaving the adapter.

// CatalogPage is one page of the portal's service enumeration.
type CatalogPage struct {
	Folders  []string       `json:"folders"`
	Services []ServiceEntry `json:"services"`
}

// ServiceEntry is one service listed by the portal.
type ServiceEntry struct {
	Name string `json:"name"`
	Type string `json:"type"`
	URL  string `json:"url"`
}

// ServiceInfo is the metadata document of a single service.
type ServiceInfo struct {
	ServiceDescription string       `json:"serviceDescription"`
	Description        string       `json:"description"`
	MaxRecordCount     int          `json:"maxRecordCount"`
	Layers             []LayerEntry `json:"layers"`
	Error              *WireError   `json:"error"`
}

// LayerEntry is one layer listed in a service's metadata.
type LayerEntry struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	GeometryType string `json:"geometryType"`
}

// LayerDetail is the schema document of a single layer.
type LayerDetail struct {
	ID             int         `json:"id"`
	Name           string      `json:"name"`
	Description    string      `json:"description"`
	GeometryType   string      `json:"geometryType"`
	MaxRecordCount int         `json:"maxRecordCount"`
	Fields         []FieldInfo `json:"fields"`
	Error          *WireError  `json:"error"`
}

// FieldInfo is one field of a layer schema.
type FieldInfo struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Alias string `json:"alias"`
}

// QueryResponse is the result document of a layer query.
type QueryResponse struct {
	Features              []WireFeature `json:"features"`
	ExceededTransferLimit bool          `json:"exceededTransferLimit"`
	Error                 *WireError    `json:"error"`
}

// WireFeature is one feature record on the wire.
type WireFeature struct {
	Attributes map[string]interface{} `json:"attributes"`
	Geometry   *WireGeometry          `json:"geometry"`
}

// WireGeometry is the backend's geometry encoding. Which fields are set
// depends on the layer's geometry type.
type WireGeometry struct {
	X     *float64      `json:"x,omitempty"`
	Y     *float64      `json:"y,omitempty"`
	Paths [][][]float64 `json:"paths,omitempty"`
	Rings [][][]float64 `json:"rings,omitempty"`
}

// WireError is the backend's in-band error document. The backend reports
// many failures with HTTP 200 and an error object in the body.
type WireError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Err converts a wire error to a Go error.
func (e *WireError) Err() error {
	if e == nil {
		return nil
	}
	return fmt.Errorf("backend error %d: %s", e.Code, e.Message)
}

// SpatialReference names the coordinate system of a request geometry.
type SpatialReference struct {
	WKID int `json:"wkid"`
}

// Decode unmarshals a wire document, surfacing in-band backend errors.
func Decode(body []byte, v interface{}) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decoding backend response: %w", err)
	}
	return nil
}

// GeometryType maps a backend geometry type string to the domain type.
func GeometryType(wire string) domain.GeometryType {
	switch wire {
	case "esriGeometryPoint", "esriGeometryMultipoint":
		return domain.GeomPoint
	case "esriGeometryPolyline":
		return domain.GeomLine
	case "esriGeometryPolygon":
		return domain.GeomPolygon
	case "esriGeometryEnvelope":
		return domain.GeomEnvelope
	case "":
		return domain.GeomNone
	}
	return domain.GeomNone
}

// FieldType maps a backend field type string to the domain type.
func FieldType(wire string) domain.FieldType {
	switch wire {
	case "esriFieldTypeString", "esriFieldTypeGUID", "esriFieldTypeGlobalID":
		return domain.FieldString
	case "esriFieldTypeInteger", "esriFieldTypeSmallInteger", "esriFieldTypeBigInteger":
		return domain.FieldInteger
	case "esriFieldTypeDouble", "esriFieldTypeSingle":
		return domain.FieldDouble
	case "esriFieldTypeDate":
		return domain.FieldDate
	case "esriFieldTypeOID":
		return domain.FieldOID
	}
	return domain.FieldOther
}

// WireGeometryType returns the backend type string for a domain geometry.
func WireGeometryType(t domain.GeometryType) string {
	switch t {
	case domain.GeomPoint:
		return "esriGeometryPoint"
	case domain.GeomLine:
		return "esriGeometryPolyline"
	case domain.GeomPolygon:
		return "esriGeometryPolygon"
	case domain.GeomEnvelope:
		return "esriGeometryEnvelope"
	}
	return ""
}

// WireSpatialRel returns the backend relationship string.
func WireSpatialRel(rel domain.SpatialRel) string {
	switch rel {
	case domain.RelContains:
		return "esriSpatialRelContains"
	case domain.RelWithin:
		return "esriSpatialRelWithin"
	case domain.RelEnvelope:
		return "esriSpatialRelEnvelopeIntersects"
	default:
		return "esriSpatialRelIntersects"
	}
}

// EncodeGeometry renders a domain geometry in the backend's JSON encoding.
func EncodeGeometry(g *domain.Geometry) (string, error) {
	if err := g.Validate(); err != nil {
		return "", err
	}

	switch g.Type {
	case domain.GeomPoint:
		doc := map[string]interface{}{"x": g.Point.X, "y": g.Point.Y}
		addSR(doc, g.SRID)
		return marshal(doc)
	case domain.GeomEnvelope:
		doc := map[string]interface{}{
			"xmin": g.Box.XMin, "ymin": g.Box.YMin,
			"xmax": g.Box.XMax, "ymax": g.Box.YMax,
		}
		addSR(doc, g.SRID)
		return marshal(doc)
	case domain.GeomLine:
		doc := map[string]interface{}{"paths": encodeParts(g.Paths)}
		addSR(doc, g.SRID)
		return marshal(doc)
	case domain.GeomPolygon:
		doc := map[string]interface{}{"rings": encodeParts(g.Rings)}
		addSR(doc, g.SRID)
		return marshal(doc)
	}
	return "", domain.ErrInvalidGeometry
}

func addSR(doc map[string]interface{}, srid int) {
	if srid != 0 {
		doc["spatialReference"] = SpatialReference{WKID: srid}
	}
}

func marshal(doc map[string]interface{}) (string, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func encodeParts(parts [][]domain.Point) [][][]float64 {
	out := make([][][]float64, len(parts))
	for i, part := range parts {
		out[i] = make([][]float64, len(part))
		for j, p := range part {
			out[i][j] = []float64{p.X, p.Y}
		}
	}
	return out
}

// DecodeGeometry projects a wire geometry into its domain shape.
// Returns nil for an absent or empty geometry.
func DecodeGeometry(w *WireGeometry) *domain.Geometry {
	if w == nil {
		return nil
	}

	switch {
	case w.X != nil && w.Y != nil:
		return &domain.Geometry{Type: domain.GeomPoint, Point: &domain.Point{X: *w.X, Y: *w.Y}}
	case len(w.Rings) > 0:
		return &domain.Geometry{Type: domain.GeomPolygon, Rings: decodeParts(w.Rings)}
	case len(w.Paths) > 0:
		return &domain.Geometry{Type: domain.GeomLine, Paths: decodeParts(w.Paths)}
	}

	return nil
}

func decodeParts(parts [][][]float64) [][]domain.Point {
	out := make([][]domain.Point, 0, len(parts))
	for _, part := range parts {
		points := make([]domain.Point, 0, len(part))
		for _, pair := range part {
			if len(pair) < 2 {
				continue
			}
			points = append(points, domain.Point{X: pair[0], Y: pair[1]})
		}
		out = append(out, points)
	}
	return out
}

// NormalizeServiceURL canonicalizes a service URL for deduplication:
// lowercase scheme/host, no trailing slash, no query string.
func NormalizeServiceURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.RawQuery = ""
	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("malformed service url %q", raw)
	}
	return u.String(), nil
}
