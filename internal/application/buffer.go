package application

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/jobrunner/atlas/internal/domain"
	"github.com/jobrunner/atlas/internal/ports/input"
)

// Segments used to approximate a circular buffer around a point.
const bufferCircleSegments = 32

// Approximate planar degrees per meter at the equator. Buffer distances are
// converted with this factor when the input is in geographic coordinates.
const degreesPerMeter = 1.0 / 111320.0

// BufferEngine answers "what is near this location" by buffering the input
// geometry in the plane and dispatching an intersects query with the buffer
// polygon as the spatial filter.
type BufferEngine struct {
	queries input.QueryService
	logger  *slog.Logger
}

// NewBufferEngine creates a new buffer query engine.
func NewBufferEngine(queries input.QueryService, logger *slog.Logger) *BufferEngine {
	return &BufferEngine{queries: queries, logger: logger}
}

// BufferQuery buffers the geometry by the given distance and queries features
// intersecting the buffer polygon. The template supplies the target layer,
// attribute filter and projection; its spatial filter is replaced.
func (b *BufferEngine) BufferQuery(
	ctx context.Context,
	center domain.Geometry,
	distance float64,
	unit domain.BufferUnit,
	template domain.QueryRequest,
) (*domain.FeatureResult, error) {
	if distance <= 0 {
		return nil, fmt.Errorf("%w: buffer distance must be positive", domain.ErrInvalidGeometry)
	}
	meters, ok := unit.Meters(distance)
	if !ok {
		return nil, fmt.Errorf("%w: unknown distance unit %q", domain.ErrInvalidInput, unit)
	}
	if err := center.Validate(); err != nil {
		return nil, err
	}

	buffer, err := bufferGeometry(&center, planarDistance(&center, meters))
	if err != nil {
		return nil, err
	}

	template.Spatial = &domain.SpatialFilter{Geometry: buffer, Rel: domain.RelIntersects}

	b.logger.Debug("buffer query",
		"service", template.ServiceURL,
		"layer", template.LayerID,
		"distance_m", meters,
		"shape", center.Type,
	)

	return b.queries.Execute(ctx, template)
}

// planarDistance converts a metric distance into the geometry's coordinate
// units. SRID 4326 coordinates are degrees; everything else is assumed to be
// a projected metric system.
func planarDistance(g *domain.Geometry, meters float64) float64 {
	if g.SRID == 4326 || g.SRID == 0 {
		return meters * degreesPerMeter
	}
	return meters
}

// bufferGeometry builds the buffer polygon. Points buffer into a regular
// polygon approximating a circle; lines, polygons and envelopes buffer into
// their envelope expanded on every side.
func bufferGeometry(g *domain.Geometry, d float64) (*domain.Geometry, error) {
	if g.Type == domain.GeomPoint {
		return &domain.Geometry{
			Type:  domain.GeomPolygon,
			Rings: [][]domain.Point{circleRing(*g.Point, d)},
			SRID:  g.SRID,
		}, nil
	}

	bounds, err := g.Bounds()
	if err != nil {
		return nil, err
	}
	box := bounds.Expand(d)

	ring := []domain.Point{
		{X: box.XMin, Y: box.YMin},
		{X: box.XMin, Y: box.YMax},
		{X: box.XMax, Y: box.YMax},
		{X: box.XMax, Y: box.YMin},
		{X: box.XMin, Y: box.YMin},
	}
	return &domain.Geometry{Type: domain.GeomPolygon, Rings: [][]domain.Point{ring}, SRID: g.SRID}, nil
}

// circleRing approximates a circle of radius r around c as a closed ring.
func circleRing(c domain.Point, r float64) []domain.Point {
	ring := make([]domain.Point, 0, bufferCircleSegments+1)
	for i := 0; i < bufferCircleSegments; i++ {
		angle := 2 * math.Pi * float64(i) / bufferCircleSegments
		ring = append(ring, domain.Point{
			X: c.X + r*math.Cos(angle),
			Y: c.Y + r*math.Sin(angle),
		})
	}
	ring = append(ring, ring[0])
	return ring
}
