package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jobrunner/atlas/internal/domain"
)

// Name of the trailing geometry column.
const wktColumn = "WKT"

// CSV renders the result as a flat table: one column per attribute seen
// anywhere in the result set, sorted by name, plus a trailing WKT geometry
// column when the result carries geometry.
func CSV(result *domain.FeatureResult) ([]byte, error) {
	columns := attributeColumns(result)
	withGeom := result.WithGeom

	header := make([]string, 0, len(columns)+1)
	header = append(header, columns...)
	if withGeom {
		header = append(header, wktColumn)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}

	row := make([]string, 0, len(header))
	for i := range result.Features {
		f := &result.Features[i]
		row = row[:0]
		for _, col := range columns {
			row = append(row, cellValue(f.Attributes[col]))
		}
		if withGeom {
			row = append(row, wkt(f.Geometry))
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}

	w.Flush()
	return buf.Bytes(), w.Error()
}

// attributeColumns returns the sorted union of attribute names across all
// features; sparse attributes yield empty cells, not ragged rows.
func attributeColumns(result *domain.FeatureResult) []string {
	set := make(map[string]struct{})
	for i := range result.Features {
		for name := range result.Features[i].Attributes {
			set[name] = struct{}{}
		}
	}

	columns := make([]string, 0, len(set))
	for name := range set {
		columns = append(columns, name)
	}
	sort.Strings(columns)
	return columns
}

func cellValue(v interface{}) string {
	switch n := v.(type) {
	case nil:
		return ""
	case string:
		return n
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(n)
	}
	return fmt.Sprint(v)
}

// wkt renders a geometry as well-known text. Nil geometries yield an empty cell.
func wkt(g *domain.Geometry) string {
	if g == nil || g.IsZero() {
		return ""
	}

	switch g.Type {
	case domain.GeomPoint:
		return fmt.Sprintf("POINT (%s)", wktPoint(*g.Point))
	case domain.GeomLine:
		if len(g.Paths) == 1 {
			return fmt.Sprintf("LINESTRING (%s)", wktPoints(g.Paths[0]))
		}
		return fmt.Sprintf("MULTILINESTRING (%s)", wktParts(g.Paths))
	case domain.GeomPolygon:
		return fmt.Sprintf("POLYGON (%s)", wktParts(g.Rings))
	case domain.GeomEnvelope:
		box := *g.Box
		ring := []domain.Point{
			{X: box.XMin, Y: box.YMin},
			{X: box.XMax, Y: box.YMin},
			{X: box.XMax, Y: box.YMax},
			{X: box.XMin, Y: box.YMax},
			{X: box.XMin, Y: box.YMin},
		}
		return fmt.Sprintf("POLYGON ((%s))", wktPoints(ring))
	}
	return ""
}

func wktPoint(p domain.Point) string {
	return strconv.FormatFloat(p.X, 'f', -1, 64) + " " + strconv.FormatFloat(p.Y, 'f', -1, 64)
}

func wktPoints(points []domain.Point) string {
	parts := make([]string, len(points))
	for i, p := range points {
		parts[i] = wktPoint(p)
	}
	return strings.Join(parts, ", ")
}

func wktParts(parts [][]domain.Point) string {
	out := make([]string, len(parts))
	for i, part := range parts {
		out[i] = "(" + wktPoints(part) + ")"
	}
	return strings.Join(out, ", ")
}
