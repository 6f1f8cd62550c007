package domain

import "math"

// GeometryType classifies a layer's or geometry's shape family.
type GeometryType string

// Geometry type constants.
const (
	GeomPoint    GeometryType = "point"
	GeomLine     GeometryType = "polyline"
	GeomPolygon  GeometryType = "polygon"
	GeomEnvelope GeometryType = "envelope"
	GeomNone     GeometryType = "none"
)

// Point is a planar coordinate pair in the service's spatial reference.
type Point struct {
	X float64
	Y float64
}

// Valid reports whether both ordinates are finite numbers.
func (p Point) Valid() bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) &&
		!math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}

// Envelope is an axis-aligned bounding box.
type Envelope struct {
	XMin float64
	YMin float64
	XMax float64
	YMax float64
}

// Valid reports whether the envelope has positive extent in both axes.
func (e Envelope) Valid() bool {
	return e.XMin < e.XMax && e.YMin < e.YMax
}

// Contains reports whether the point lies strictly inside the envelope.
func (e Envelope) Contains(p Point) bool {
	return p.X > e.XMin && p.X < e.XMax && p.Y > e.YMin && p.Y < e.YMax
}

// Expand returns the envelope grown by d on every side.
func (e Envelope) Expand(d float64) Envelope {
	return Envelope{XMin: e.XMin - d, YMin: e.YMin - d, XMax: e.XMax + d, YMax: e.YMax + d}
}

// Geometry is a validated geometry in the service's spatial reference.
// Exactly one of the shape fields is populated according to Type.
type Geometry struct {
	Type  GeometryType
	Point *Point    // GeomPoint
	Paths [][]Point // GeomLine: one or more paths
	Rings [][]Point // GeomPolygon: outer ring first, closed
	Box   *Envelope // GeomEnvelope
	SRID  int       // Spatial reference well-known id (0 = service native)
}

// IsZero reports whether no shape is populated.
func (g *Geometry) IsZero() bool {
	return g == nil || (g.Point == nil && len(g.Paths) == 0 && len(g.Rings) == 0 && g.Box == nil)
}

// Validate checks internal consistency between Type and the populated shape.
func (g *Geometry) Validate() error {
	if g.IsZero() {
		return ErrInvalidGeometry
	}
	switch g.Type {
	case GeomPoint:
		if g.Point == nil || !g.Point.Valid() {
			return ErrInvalidGeometry
		}
	case GeomLine:
		if len(g.Paths) == 0 {
			return ErrInvalidGeometry
		}
		for _, path := range g.Paths {
			if len(path) < 2 {
				return ErrInvalidGeometry
			}
		}
	case GeomPolygon:
		if len(g.Rings) == 0 {
			return ErrInvalidGeometry
		}
		for _, ring := range g.Rings {
			if len(ring) < 4 {
				return ErrInvalidGeometry
			}
		}
	case GeomEnvelope:
		if g.Box == nil || !g.Box.Valid() {
			return ErrInvalidGeometry
		}
	default:
		return ErrInvalidGeometry
	}
	return nil
}

// Bounds returns the envelope enclosing the geometry.
func (g *Geometry) Bounds() (Envelope, error) {
	if err := g.Validate(); err != nil {
		return Envelope{}, err
	}
	switch g.Type {
	case GeomPoint:
		return Envelope{XMin: g.Point.X, YMin: g.Point.Y, XMax: g.Point.X, YMax: g.Point.Y}, nil
	case GeomEnvelope:
		return *g.Box, nil
	case GeomLine:
		return boundsOf(g.Paths), nil
	case GeomPolygon:
		return boundsOf(g.Rings), nil
	}
	return Envelope{}, ErrInvalidGeometry
}

func boundsOf(parts [][]Point) Envelope {
	e := Envelope{
		XMin: math.Inf(1), YMin: math.Inf(1),
		XMax: math.Inf(-1), YMax: math.Inf(-1),
	}
	for _, part := range parts {
		for _, p := range part {
			e.XMin = math.Min(e.XMin, p.X)
			e.YMin = math.Min(e.YMin, p.Y)
			e.XMax = math.Max(e.XMax, p.X)
			e.YMax = math.Max(e.YMax, p.Y)
		}
	}
	return e
}

// Feature is a single record returned by a query: a geometry (possibly nil
// when the request suppressed geometry) plus its attribute mapping.
type Feature struct {
	Geometry   *Geometry
	Attributes map[string]interface{}
}

// Attribute returns an attribute value by name.
func (f *Feature) Attribute(name string) (interface{}, bool) {
	if f.Attributes == nil {
		return nil, false
	}
	v, ok := f.Attributes[name]
	return v, ok
}

// LayerRef identifies the layer a result came from.
type LayerRef struct {
	ServiceURL string
	LayerID    int
	LayerName  string
}

// FeatureResult is the normalized result of one query. Ephemeral: constructed
// per query, never cached.
type FeatureResult struct {
	Features []Feature // Backend native order, concatenated across pages
	Exceeded bool      // True if the caller's cap truncated the result
	Layer    LayerRef  // Source layer
	WithGeom bool      // Whether the originating request asked for geometry
}

// Count returns the number of features.
func (r *FeatureResult) Count() int {
	return len(r.Features)
}
