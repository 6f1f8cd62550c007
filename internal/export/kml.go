package export

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jobrunner/atlas/internal/domain"
)

type kmlDocument struct {
	XMLName    xml.Name       `xml:"kml"`
	Namespace  string         `xml:"xmlns,attr"`
	Placemarks []kmlPlacemark `xml:"Document>Placemark"`
}

type kmlPlacemark struct {
	Name         string       `xml:"name,omitempty"`
	ExtendedData []kmlData    `xml:"ExtendedData>Data"`
	Point        *kmlGeometry `xml:"Point,omitempty"`
	LineString   *kmlGeometry `xml:"LineString,omitempty"`
	Polygon      *kmlPolygon  `xml:"Polygon,omitempty"`
}

type kmlData struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value"`
}

type kmlGeometry struct {
	Coordinates string `xml:"coordinates"`
}

type kmlPolygon struct {
	OuterRing  kmlGeometry   `xml:"outerBoundaryIs>LinearRing"`
	InnerRings []kmlGeometry `xml:"innerBoundaryIs>LinearRing"`
}

// Attribute names tried, in order, for a placemark's display name.
var kmlNameFields = []string{"NAME", "Name", "name", "TITLE"}

// KML renders the result as a KML document with one placemark per feature.
func KML(result *domain.FeatureResult) ([]byte, error) {
	doc := kmlDocument{
		Namespace:  "http://www.opengis.net/kml/2.2",
		Placemarks: make([]kmlPlacemark, 0, result.Count()),
	}

	for i := range result.Features {
		f := &result.Features[i]
		pm := kmlPlacemark{Name: placemarkName(f)}

		for _, name := range sortedKeys(f.Attributes) {
			pm.ExtendedData = append(pm.ExtendedData, kmlData{Name: name, Value: cellValue(f.Attributes[name])})
		}

		if result.WithGeom && f.Geometry != nil {
			if err := attachKMLGeometry(&pm, f.Geometry); err != nil {
				return nil, err
			}
		}

		doc.Placemarks = append(doc.Placemarks, pm)
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func attachKMLGeometry(pm *kmlPlacemark, g *domain.Geometry) error {
	if err := g.Validate(); err != nil {
		return err
	}

	switch g.Type {
	case domain.GeomPoint:
		pm.Point = &kmlGeometry{Coordinates: kmlCoord(*g.Point)}
	case domain.GeomLine:
		pm.LineString = &kmlGeometry{Coordinates: kmlCoords(g.Paths[0])}
	case domain.GeomPolygon:
		poly := &kmlPolygon{OuterRing: kmlGeometry{Coordinates: kmlCoords(g.Rings[0])}}
		for _, inner := range g.Rings[1:] {
			poly.InnerRings = append(poly.InnerRings, kmlGeometry{Coordinates: kmlCoords(inner)})
		}
		pm.Polygon = poly
	case domain.GeomEnvelope:
		box := *g.Box
		ring := []domain.Point{
			{X: box.XMin, Y: box.YMin},
			{X: box.XMax, Y: box.YMin},
			{X: box.XMax, Y: box.YMax},
			{X: box.XMin, Y: box.YMax},
			{X: box.XMin, Y: box.YMin},
		}
		pm.Polygon = &kmlPolygon{OuterRing: kmlGeometry{Coordinates: kmlCoords(ring)}}
	default:
		return fmt.Errorf("%w: %q in KML", domain.ErrUnsupportedGeometry, g.Type)
	}
	return nil
}

func placemarkName(f *domain.Feature) string {
	for _, field := range kmlNameFields {
		if v, ok := f.Attribute(field); ok {
			return cellValue(v)
		}
	}
	return ""
}

func kmlCoord(p domain.Point) string {
	return strconv.FormatFloat(p.X, 'f', -1, 64) + "," + strconv.FormatFloat(p.Y, 'f', -1, 64)
}

func kmlCoords(points []domain.Point) string {
	parts := make([]string, len(points))
	for i, p := range points {
		parts[i] = kmlCoord(p)
	}
	return strings.Join(parts, " ")
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
