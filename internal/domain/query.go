package domain

import "strings"

// SpatialRel is the spatial relationship applied between the filter geometry
// and layer features.
type SpatialRel string

// Spatial relationships supported by the backend query endpoint.
const (
	RelIntersects SpatialRel = "intersects"
	RelContains   SpatialRel = "contains"
	RelWithin     SpatialRel = "within"
	RelEnvelope   SpatialRel = "envelope-intersects"
)

// SpatialFilter restricts a query to features with a spatial relationship to
// a geometry. Exactly one of Box or Geometry is set.
type SpatialFilter struct {
	Box      *Envelope  // Bounding-box filter
	Geometry *Geometry  // Buffer polygon or raw geometry
	Rel      SpatialRel // Defaults to RelIntersects when empty
}

// Validate checks that the filter carries exactly one usable geometry.
func (f *SpatialFilter) Validate() error {
	if f == nil {
		return nil
	}
	if f.Box != nil && f.Geometry != nil {
		return ErrInvalidGeometry
	}
	if f.Box != nil {
		if !f.Box.Valid() {
			return ErrInvalidGeometry
		}
		return nil
	}
	if f.Geometry != nil {
		return f.Geometry.Validate()
	}
	return ErrInvalidGeometry
}

// Relationship returns the effective spatial relationship.
func (f *SpatialFilter) Relationship() SpatialRel {
	if f == nil || f.Rel == "" {
		return RelIntersects
	}
	return f.Rel
}

// StatisticType is a server-side aggregate over a numeric layer field.
type StatisticType string

// Supported statistic types.
const (
	StatCount  StatisticType = "count"
	StatSum    StatisticType = "sum"
	StatMin    StatisticType = "min"
	StatMax    StatisticType = "max"
	StatAvg    StatisticType = "avg"
	StatStdDev StatisticType = "stddev"
)

// ParseStatisticType matches a string against the supported statistics.
func ParseStatisticType(s string) (StatisticType, bool) {
	switch StatisticType(strings.ToLower(s)) {
	case StatCount, StatSum, StatMin, StatMax, StatAvg, StatStdDev:
		return StatisticType(strings.ToLower(s)), true
	}
	return "", false
}

// ExportTarget selects the output encoding of a formatted result.
type ExportTarget string

// Export targets.
const (
	ExportGeoJSON   ExportTarget = "geojson"
	ExportCSV       ExportTarget = "csv"
	ExportKML       ExportTarget = "kml"
	ExportShapefile ExportTarget = "shapefile"
)

// ParseExportTarget matches a string against the supported targets.
func ParseExportTarget(s string) (ExportTarget, bool) {
	switch ExportTarget(strings.ToLower(s)) {
	case ExportGeoJSON, ExportCSV, ExportKML, ExportShapefile:
		return ExportTarget(strings.ToLower(s)), true
	}
	return "", false
}

// QueryRequest is an abstract feature query against one discovered layer.
type QueryRequest struct {
	ServiceURL     string         // Target service base URL
	LayerID        int            // Target layer id within the service
	Where          string         // Attribute filter, passed through as-is
	Spatial        *SpatialFilter // Optional spatial filter
	OutFields      []string       // Field projection; empty = all fields
	ReturnGeometry bool           // Include geometry in results
	MaxRecords     int            // Caller's cap; 0 = engine default
	Format         ExportTarget   // Output encoding (used by the export layer)
}

// EffectiveWhere returns the attribute filter, defaulting to match-all.
func (q *QueryRequest) EffectiveWhere() string {
	if strings.TrimSpace(q.Where) == "" {
		return "1=1"
	}
	return q.Where
}

// BufferUnit is the distance unit of a buffer query.
type BufferUnit string

// Buffer distance units.
const (
	UnitMeters     BufferUnit = "meters"
	UnitKilometers BufferUnit = "kilometers"
	UnitFeet       BufferUnit = "feet"
	UnitMiles      BufferUnit = "miles"
)

// Meters converts a distance in this unit to meters. Returns false for an
// unknown unit.
func (u BufferUnit) Meters(distance float64) (float64, bool) {
	switch u {
	case UnitMeters, "":
		return distance, true
	case UnitKilometers:
		return distance * 1000, true
	case UnitFeet:
		return distance * 0.3048, true
	case UnitMiles:
		return distance * 1609.344, true
	}
	return 0, false
}
