package application

import (
	"context"
	"fmt"
	"time"

	"github.com/jobrunner/atlas/internal/domain"
	"github.com/jobrunner/atlas/internal/ports/input"
)

// HealthService reports liveness and readiness. The engine is live as soon
// as it runs and ready once a catalog snapshot exists.
type HealthService struct {
	catalog interface {
		SnapshotProvider
		Issues() []domain.DiscoveryIssue
	}
	now func() time.Time
}

// NewHealthService creates a new health service.
func NewHealthService(catalog *CatalogManager) *HealthService {
	return &HealthService{catalog: catalog, now: time.Now}
}

// IsHealthy returns true if the service is healthy.
func (h *HealthService) IsHealthy(_ context.Context) bool {
	return true
}

// IsReady returns true once a catalog snapshot exists.
func (h *HealthService) IsReady(_ context.Context) bool {
	return h.catalog.Snapshot() != nil
}

// GetHealthDetails returns detailed health information.
func (h *HealthService) GetHealthDetails(_ context.Context) input.HealthDetails {
	details := input.HealthDetails{
		Healthy:    true,
		Components: make(map[string]string),
	}

	snapshot := h.catalog.Snapshot()
	if snapshot == nil {
		details.Components["catalog"] = "no snapshot yet"
		return details
	}

	details.Ready = true
	details.DatasetsCataloged = len(snapshot.Datasets)
	details.SnapshotAge = h.now().Sub(snapshot.BuiltAt).Round(time.Second).String()

	if snapshot.Fresh(h.now()) {
		details.Components["catalog"] = "fresh"
	} else {
		details.Components["catalog"] = "stale"
	}
	if issues := h.catalog.Issues(); len(issues) > 0 {
		details.Components["discovery"] = fmt.Sprintf("%d items not cataloged", len(issues))
	} else {
		details.Components["discovery"] = "clean"
	}

	return details
}
