package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jobrunner/atlas/internal/adapters/arcgis"
	"github.com/jobrunner/atlas/internal/domain"
)

// SeedPersister writes the seed list to durable storage. Nil keeps the list
// in memory only.
type SeedPersister func(seeds []KnownService) error

// SeedRegistry owns the known-services seed list: the services merged into
// every discovery run ahead of portal enumeration. Additions are persisted
// and trigger a forced refresh so the new service is cataloged immediately.
type SeedRegistry struct {
	engine  *DiscoveryEngine
	catalog *CatalogManager
	persist SeedPersister
	logger  *slog.Logger

	mu    sync.Mutex
	seeds []KnownService
}

// NewSeedRegistry creates a seed registry and installs the initial list on
// the discovery engine.
func NewSeedRegistry(
	initial []KnownService,
	engine *DiscoveryEngine,
	catalog *CatalogManager,
	persist SeedPersister,
	logger *slog.Logger,
) *SeedRegistry {
	engine.SetKnownServices(initial)
	return &SeedRegistry{
		engine:  engine,
		catalog: catalog,
		persist: persist,
		logger:  logger,
		seeds:   append([]KnownService(nil), initial...),
	}
}

// AddService registers a service URL at runtime, persists the updated seed
// list and forces a refresh. Adding an already-registered URL is a no-op.
func (r *SeedRegistry) AddService(ctx context.Context, name, rawURL string) error {
	normalized, err := arcgis.NormalizeServiceURL(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if name == "" {
		name = normalized
	}

	r.mu.Lock()
	for _, s := range r.seeds {
		if existing, err := arcgis.NormalizeServiceURL(s.URL); err == nil && existing == normalized {
			r.mu.Unlock()
			r.logger.Debug("seed already registered", "url", normalized)
			return nil
		}
	}
	r.seeds = append(r.seeds, KnownService{Name: name, URL: normalized})
	seeds := append([]KnownService(nil), r.seeds...)
	r.mu.Unlock()

	r.engine.SetKnownServices(seeds)
	if r.persist != nil {
		if err := r.persist(seeds); err != nil {
			r.logger.Warn("persisting seed list failed", "error", err)
		}
	}

	r.logger.Info("seed service added", "name", name, "url", normalized)
	_, _, err = r.catalog.GetCatalog(ctx, true)
	return err
}

// Replace swaps the whole seed list, used when the seed file changes on
// disk, and forces a refresh.
func (r *SeedRegistry) Replace(ctx context.Context, seeds []KnownService) error {
	r.mu.Lock()
	r.seeds = append([]KnownService(nil), seeds...)
	copied := append([]KnownService(nil), r.seeds...)
	r.mu.Unlock()

	r.engine.SetKnownServices(copied)
	r.logger.Info("seed list replaced", "services", len(copied))
	_, _, err := r.catalog.GetCatalog(ctx, true)
	return err
}

// Services returns a copy of the current seed list.
func (r *SeedRegistry) Services() []KnownService {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]KnownService(nil), r.seeds...)
}
