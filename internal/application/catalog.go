package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jobrunner/atlas/internal/domain"
	"github.com/jobrunner/atlas/internal/ports/output"
)

// Discoverer is implemented by the discovery engine.
type Discoverer interface {
	Discover(ctx context.Context) (*domain.Catalog, []domain.DiscoveryIssue, error)
}

// CatalogManager holds the current catalog snapshot and refreshes it through
// discovery. Reads are lock-free against an atomically swapped snapshot;
// concurrent refresh triggers collapse into a single discovery run.
type CatalogManager struct {
	discovery Discoverer
	metrics   output.MetricsCollector
	logger    *slog.Logger

	snapshot atomic.Pointer[domain.Catalog]
	flight   singleflight.Group

	mu     sync.RWMutex
	issues []domain.DiscoveryIssue

	onSwap func(*domain.Catalog)
	now    func() time.Time
}

// NewCatalogManager creates a new catalog manager.
func NewCatalogManager(discovery Discoverer, metrics output.MetricsCollector, logger *slog.Logger) *CatalogManager {
	return &CatalogManager{
		discovery: discovery,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// OnSwap registers a callback invoked with each newly installed snapshot.
// Must be called before the manager serves traffic.
func (m *CatalogManager) OnSwap(fn func(*domain.Catalog)) {
	m.onSwap = fn
}

// Snapshot returns the current catalog without triggering a refresh.
// Returns nil if no discovery run has completed yet.
func (m *CatalogManager) Snapshot() *domain.Catalog {
	return m.snapshot.Load()
}

// GetCatalog returns a fresh snapshot, running discovery when the current
// one is stale or force is set. A refresh failure with a prior snapshot in
// place degrades to serving the stale snapshot with a warning; with no prior
// snapshot it is an error.
func (m *CatalogManager) GetCatalog(ctx context.Context, force bool) (*domain.Catalog, *domain.RefreshWarning, error) {
	current := m.snapshot.Load()
	if !force && current != nil && current.Fresh(m.now()) {
		m.metrics.IncCatalogServed(false)
		return current, nil, nil
	}

	fresh, err := m.refresh(ctx)
	if err != nil {
		if current == nil {
			return nil, nil, fmt.Errorf("%w: %v", domain.ErrCatalogUnavailable, err)
		}
		m.logger.Warn("refresh failed, serving stale snapshot",
			"error", err,
			"snapshot_age", m.now().Sub(current.BuiltAt),
		)
		m.metrics.IncCatalogServed(true)
		return current, &domain.RefreshWarning{Reason: err.Error(), ServedAt: current.BuiltAt}, nil
	}

	m.metrics.IncCatalogServed(false)
	return fresh, nil, nil
}

// refresh runs discovery, collapsing concurrent callers into one run. Every
// waiter receives the same snapshot or the same error.
func (m *CatalogManager) refresh(ctx context.Context) (*domain.Catalog, error) {
	v, err, _ := m.flight.Do("refresh", func() (interface{}, error) {
		catalog, issues, err := m.discovery.Discover(ctx)
		if err != nil {
			return nil, err
		}

		m.snapshot.Store(catalog)
		m.mu.Lock()
		m.issues = issues
		m.mu.Unlock()

		if m.onSwap != nil {
			m.onSwap(catalog)
		}
		return catalog, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Catalog), nil
}

// GetDataset returns a dataset from the current snapshot by ID, falling back
// to a case-insensitive name match. Does not trigger a refresh.
func (m *CatalogManager) GetDataset(_ context.Context, id string) (*domain.Dataset, error) {
	catalog := m.snapshot.Load()
	if catalog == nil {
		return nil, domain.ErrCatalogUnavailable
	}

	if d, ok := catalog.Dataset(id); ok {
		return d, nil
	}

	for key := range catalog.Datasets {
		d := catalog.Datasets[key]
		if strings.EqualFold(d.Name, id) {
			return &d, nil
		}
	}

	return nil, fmt.Errorf("%w: %q", domain.ErrDatasetNotFound, id)
}

// Issues returns the issue list of the last completed discovery run.
func (m *CatalogManager) Issues() []domain.DiscoveryIssue {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.DiscoveryIssue, len(m.issues))
	copy(out, m.issues)
	return out
}

// Warm runs an initial refresh, logging rather than failing when the portal
// is unreachable at startup.
func (m *CatalogManager) Warm(ctx context.Context) {
	if _, err := m.refresh(ctx); err != nil {
		m.logger.Warn("initial catalog refresh failed", "error", err)
	}
}

// RunPeriodicRefresh refreshes the snapshot on the given interval until the
// context is canceled. Failures are absorbed: the old snapshot stays.
func (m *CatalogManager) RunPeriodicRefresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.refresh(ctx); err != nil && !errors.Is(err, context.Canceled) {
				m.logger.Warn("periodic refresh failed", "error", err)
			}
		}
	}
}
