// Package app provides application initialization and wiring.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jobrunner/atlas/internal/adapters/arcgis"
	httpAdapter "github.com/jobrunner/atlas/internal/adapters/http"
	"github.com/jobrunner/atlas/internal/adapters/metrics"
	"github.com/jobrunner/atlas/internal/adapters/watcher"
	"github.com/jobrunner/atlas/internal/application"
	"github.com/jobrunner/atlas/internal/config"
	"github.com/jobrunner/atlas/internal/ports/output"
)

// App holds all application components.
type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Transport     *arcgis.Transport
	Discovery     *application.DiscoveryEngine
	Catalog       *application.CatalogManager
	Search        *application.SearchEngine
	Dispatcher    *application.QueryDispatcher
	Buffer        *application.BufferEngine
	HealthService *application.HealthService
	Seeds         *application.SeedRegistry
	HTTPServer    *httpAdapter.Server
	Watcher       *watcher.SeedWatcher
	Metrics       *metrics.Collector

	refreshCancel context.CancelFunc
}

// New creates and initializes a new application.
func New(_ context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	// Initialize metrics
	var metricsCollector output.MetricsCollector = &output.NoOpMetrics{}
	if cfg.Metrics.Enabled {
		app.Metrics = metrics.NewCollector("atlas")
		metricsCollector = app.Metrics
	}

	// Initialize the portal transport
	app.Transport = arcgis.NewTransport(arcgis.TransportConfig{
		Timeout: cfg.Portal.Timeout,
	})

	// Load the known-services seed list
	seedEntries, err := config.LoadSeeds(cfg.Portal.KnownServicesFile)
	if err != nil {
		return nil, fmt.Errorf("loading seed file: %w", err)
	}
	seeds := toKnownServices(seedEntries)

	// Initialize the discovery engine
	app.Discovery = application.NewDiscoveryEngine(
		app.Transport,
		metricsCollector,
		logger,
		application.DiscoveryConfig{
			PortalURL:   cfg.Portal.URL,
			Known:       seeds,
			TTL:         cfg.Discovery.RefreshInterval,
			MaxInFlight: cfg.Discovery.Concurrency,
		},
	)

	// Initialize the catalog manager and wire the search index to follow
	// snapshot swaps
	app.Catalog = application.NewCatalogManager(app.Discovery, metricsCollector, logger)
	app.Search = application.NewSearchEngine(logger)
	app.Catalog.OnSwap(app.Search.Reindex)

	// Initialize the query dispatcher
	app.Dispatcher = application.NewQueryDispatcher(
		app.Transport,
		app.Catalog,
		metricsCollector,
		logger,
		application.DispatcherConfig{
			Retry: application.RetryPolicy{
				MaxAttempts: cfg.Query.RetryAttempts,
				BaseDelay:   cfg.Query.RetryBaseDelay,
			},
			MaxRecords: cfg.Query.MaxRecords,
		},
	)

	// Initialize the buffer query engine
	app.Buffer = application.NewBufferEngine(app.Dispatcher, logger)

	// Initialize the health service
	app.HealthService = application.NewHealthService(app.Catalog)

	// Initialize the seed registry; additions are persisted back to the
	// seed file when one is configured
	var persist application.SeedPersister
	if cfg.Portal.KnownServicesFile != "" {
		file := cfg.Portal.KnownServicesFile
		persist = func(seeds []application.KnownService) error {
			return config.SaveSeeds(file, toSeedEntries(seeds))
		}
	}
	app.Seeds = application.NewSeedRegistry(seeds, app.Discovery, app.Catalog, persist, logger)

	// Initialize HTTP server
	app.HTTPServer = httpAdapter.NewServer(
		cfg.Server,
		app.Catalog,
		app.Search,
		app.Dispatcher,
		app.Buffer,
		app.HealthService,
		app.Seeds,
		logger,
	)

	// Mount the metrics endpoint on the API router
	if app.Metrics != nil {
		router := app.HTTPServer.Router()
		router.Use(app.Metrics.Middleware)
		router.Handle(cfg.Metrics.Path, metrics.Handler()).Methods(http.MethodGet)
	}

	// Initialize the seed file watcher for hot-reload
	if cfg.Portal.KnownServicesFile != "" {
		w, err := watcher.New(
			watcher.Config{Path: cfg.Portal.KnownServicesFile},
			app.reloadSeeds,
			logger,
		)
		if err != nil {
			logger.Warn("failed to initialize seed file watcher", "error", err)
		} else {
			app.Watcher = w
		}
	}

	return app, nil
}

// Start warms the catalog and starts all application components.
func (a *App) Start(ctx context.Context) error {
	// First discovery run; an unreachable portal is logged, not fatal
	a.Catalog.Warm(ctx)

	// Start background refresh
	if a.Config.Discovery.BackgroundRefresh {
		refreshCtx, cancel := context.WithCancel(context.Background())
		a.refreshCancel = cancel
		go a.Catalog.RunPeriodicRefresh(refreshCtx, a.Config.Discovery.RefreshInterval)
	}

	// Start seed file watcher
	if a.Watcher != nil {
		if err := a.Watcher.Start(ctx); err != nil {
			a.Logger.Warn("failed to start seed file watcher", "error", err)
		}
	}

	return a.HTTPServer.Start()
}

// Shutdown gracefully shuts down all components.
func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Info("shutting down application")

	if a.refreshCancel != nil {
		a.refreshCancel()
	}

	if a.Watcher != nil {
		_ = a.Watcher.Stop()
	}

	if err := a.HTTPServer.Shutdown(ctx); err != nil {
		a.Logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	return nil
}

// reloadSeeds re-reads the seed file after it changed on disk and swaps the
// registry's list.
func (a *App) reloadSeeds(ctx context.Context) error {
	entries, err := config.LoadSeeds(a.Config.Portal.KnownServicesFile)
	if err != nil {
		return err
	}
	return a.Seeds.Replace(ctx, toKnownServices(entries))
}

// toKnownServices converts seed file entries to discovery seeds.
func toKnownServices(entries []config.SeedService) []application.KnownService {
	out := make([]application.KnownService, len(entries))
	for i, e := range entries {
		out[i] = application.KnownService{Name: e.Name, URL: e.URL}
	}
	return out
}

// toSeedEntries converts discovery seeds back to seed file entries.
func toSeedEntries(seeds []application.KnownService) []config.SeedService {
	out := make([]config.SeedService, len(seeds))
	for i, s := range seeds {
		out[i] = config.SeedService{Name: s.Name, URL: s.URL}
	}
	return out
}
