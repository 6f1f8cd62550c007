// Package input defines the primary/driving ports of the application.
package input

import (
	"context"

	"github.com/jobrunner/atlas/internal/domain"
)

// CatalogService defines the primary port for catalog access.
type CatalogService interface {
	// GetCatalog returns a fresh snapshot, refreshing through discovery when
	// the current one is stale or force is set. A non-nil warning means a
	// refresh failed and a stale snapshot was served instead.
	GetCatalog(ctx context.Context, force bool) (*domain.Catalog, *domain.RefreshWarning, error)

	// GetDataset returns a dataset from the current snapshot by ID or name.
	GetDataset(ctx context.Context, id string) (*domain.Dataset, error)

	// Issues returns the issue list of the last completed discovery run.
	Issues() []domain.DiscoveryIssue
}

// SearchService defines the primary port for keyword search.
type SearchService interface {
	// Search returns datasets ranked by keyword relevance. An empty category
	// disables category filtering; limit <= 0 means no limit.
	Search(ctx context.Context, keywords []string, category string, limit int) ([]domain.Dataset, error)

	// Categories returns the dataset count per category in the snapshot.
	Categories(ctx context.Context) (map[domain.Category]int, error)
}

// QueryService defines the primary port for feature queries.
type QueryService interface {
	// Execute runs an attribute/spatial query and returns a normalized result.
	Execute(ctx context.Context, req domain.QueryRequest) (*domain.FeatureResult, error)

	// LayerFields returns the discovered schema of a layer.
	LayerFields(ctx context.Context, serviceURL string, layerID int) (*domain.LayerInfo, error)

	// LayerStatistics computes a server-side aggregate over a numeric field.
	LayerStatistics(ctx context.Context, serviceURL string, layerID int, field string, stat domain.StatisticType, where string) (float64, error)
}

// BufferQueryService defines the primary port for buffered spatial queries.
type BufferQueryService interface {
	// BufferQuery buffers the input geometry and queries features
	// intersecting the buffer polygon.
	BufferQuery(ctx context.Context, center domain.Geometry, distance float64, unit domain.BufferUnit, template domain.QueryRequest) (*domain.FeatureResult, error)
}

// HealthChecker defines the primary port for health checks.
type HealthChecker interface {
	// IsHealthy returns true if the service is healthy.
	IsHealthy(ctx context.Context) bool

	// IsReady returns true once a catalog snapshot exists.
	IsReady(ctx context.Context) bool

	// GetHealthDetails returns detailed health information.
	GetHealthDetails(ctx context.Context) HealthDetails
}

// HealthDetails contains detailed health information.
type HealthDetails struct {
	Healthy           bool              // Overall health status
	Ready             bool              // Ready to accept requests
	DatasetsCataloged int               // Dataset count of the current snapshot
	SnapshotAge       string            // Age of the current snapshot
	Components        map[string]string // Component statuses
}
