// Package domain contains the core domain types of the catalog engine.
package domain

import (
	"sort"
	"strings"
	"time"
)

// Category is one of the enumerated municipal service categories.
type Category string

// Municipal service categories.
const (
	CategoryMunicipalServices Category = "Municipal Services"
	CategoryTransportation    Category = "Transportation"
	CategoryEnvironment       Category = "Environment"
	CategoryUtilities         Category = "Utilities"
	CategoryPlanning          Category = "Planning"
	CategoryHealth            Category = "Health"
	CategorySafety            Category = "Safety"
	CategoryProperty          Category = "Property"
)

// Categories lists all known categories in a stable order.
func Categories() []Category {
	return []Category{
		CategoryMunicipalServices,
		CategoryTransportation,
		CategoryEnvironment,
		CategoryUtilities,
		CategoryPlanning,
		CategoryHealth,
		CategorySafety,
		CategoryProperty,
	}
}

// ParseCategory matches a string against the enumerated categories,
// case-insensitively. Returns false if the string names no known category.
func ParseCategory(s string) (Category, bool) {
	for _, c := range Categories() {
		if strings.EqualFold(string(c), s) {
			return c, true
		}
	}
	return "", false
}

// ServiceType is the kind of remote service backing a dataset.
type ServiceType string

// Service types recognized during discovery.
const (
	ServiceFeature       ServiceType = "FeatureServer"
	ServiceMap           ServiceType = "MapServer"
	ServiceImage         ServiceType = "ImageServer"
	ServiceGeoprocessing ServiceType = "GPServer"
)

// ParseServiceType returns the service type for a backend type string.
// Returns false for types the engine does not catalog.
func ParseServiceType(s string) (ServiceType, bool) {
	switch ServiceType(s) {
	case ServiceFeature, ServiceMap, ServiceImage, ServiceGeoprocessing:
		return ServiceType(s), true
	}
	return "", false
}

// FieldType is the declared type of a layer attribute field.
type FieldType string

// Field types as advertised by the backend schema.
const (
	FieldString  FieldType = "string"
	FieldInteger FieldType = "integer"
	FieldDouble  FieldType = "double"
	FieldDate    FieldType = "date"
	FieldOID     FieldType = "oid"
	FieldOther   FieldType = "other"
)

// LayerInfo describes a single queryable layer. Immutable once discovered;
// replaced wholesale on the next refresh, never patched in place.
type LayerInfo struct {
	ID             int                  // Layer id within the service
	Name           string               // Display name
	GeometryType   GeometryType         // Point, line, polygon or none
	Fields         map[string]FieldType // Field name -> field type
	MaxRecordCount int                  // Page limit advertised by the service
}

// HasField reports whether the layer schema declares the field.
func (l *LayerInfo) HasField(name string) bool {
	_, ok := l.Fields[name]
	return ok
}

// FieldNames returns the layer's field names sorted ascending.
func (l *LayerInfo) FieldNames() []string {
	names := make([]string, 0, len(l.Fields))
	for name := range l.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ServiceDescriptor describes one remote service backing a dataset.
// Owned exclusively by its Dataset.
type ServiceDescriptor struct {
	URL    string      // Normalized base URL of the service
	Type   ServiceType // Service kind
	Layers []LayerInfo // Ordered as advertised by the service
}

// Layer returns the layer with the given id.
func (s *ServiceDescriptor) Layer(id int) (*LayerInfo, bool) {
	for i := range s.Layers {
		if s.Layers[i].ID == id {
			return &s.Layers[i], true
		}
	}
	return nil, false
}

// Dataset is a named, categorized unit of municipal geographic data backed
// by one or more services. Created in bulk during a discovery run and never
// mutated afterwards.
type Dataset struct {
	ID           string              // Stable identifier, unique within a snapshot
	Name         string              // Display name
	Description  string              // Free-text description
	Category     Category            // Enumerated municipal category
	Tags         []string            // Keyword tags
	Services     []ServiceDescriptor // One or more backing services
	DiscoveredAt time.Time           // When this record was built
	Queryable    bool                // False if no service resolved any layers
}

// Service returns the descriptor whose URL matches.
func (d *Dataset) Service(url string) (*ServiceDescriptor, bool) {
	for i := range d.Services {
		if d.Services[i].URL == url {
			return &d.Services[i], true
		}
	}
	return nil, false
}

// LayerCount returns the total layer count across all services.
func (d *Dataset) LayerCount() int {
	n := 0
	for i := range d.Services {
		n += len(d.Services[i].Layers)
	}
	return n
}

// DiscoveryIssue records a portal item that could not be cataloged.
// Issues are collected alongside a successful snapshot, never raised.
type DiscoveryIssue struct {
	ItemID string // Portal item or service name
	Reason string // Human-readable reason
}

// Catalog is an immutable point-in-time view of all discovered datasets.
// Replaced atomically as a whole; readers always see either the old or the
// fully-built new snapshot.
type Catalog struct {
	Datasets map[string]Dataset // Keyed by dataset ID
	BuiltAt  time.Time          // When the snapshot was built
	TTL      time.Duration      // Freshness window
}

// Fresh reports whether the snapshot is still within its TTL at the given time.
func (c *Catalog) Fresh(now time.Time) bool {
	return now.Sub(c.BuiltAt) < c.TTL
}

// Dataset returns the dataset with the given ID.
func (c *Catalog) Dataset(id string) (*Dataset, bool) {
	d, ok := c.Datasets[id]
	if !ok {
		return nil, false
	}
	return &d, true
}

// DatasetIDs returns all dataset IDs sorted ascending.
func (c *Catalog) DatasetIDs() []string {
	ids := make([]string, 0, len(c.Datasets))
	for id := range c.Datasets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// FindLayer locates a layer by service URL and layer id across the snapshot.
func (c *Catalog) FindLayer(serviceURL string, layerID int) (*LayerInfo, error) {
	for _, d := range c.Datasets {
		svc, ok := d.Service(serviceURL)
		if !ok {
			continue
		}
		layer, ok := svc.Layer(layerID)
		if !ok {
			return nil, ErrLayerNotFound
		}
		return layer, nil
	}
	return nil, ErrServiceNotFound
}

// RefreshWarning reports a refresh failure that was absorbed by serving a
// stale snapshot. It is informational, not an error.
type RefreshWarning struct {
	Reason   string    // Why the refresh failed
	ServedAt time.Time // BuiltAt of the stale snapshot served instead
}
