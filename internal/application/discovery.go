// Package application contains the application services.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jobrunner/atlas/internal/adapters/arcgis"
	"github.com/jobrunner/atlas/internal/domain"
	"github.com/jobrunner/atlas/internal/ports/output"
)

// KnownService is a seed entry resolved alongside portal enumeration.
type KnownService struct {
	Name string
	URL  string
}

// DiscoveryEngine enumerates the portal and resolves each service into a
// cataloged dataset. Per-item failures degrade the result; only a failed
// portal enumeration aborts a run.
type DiscoveryEngine struct {
	transport output.Transport
	metrics   output.MetricsCollector
	logger    *slog.Logger

	portalURL   string
	ttl         time.Duration
	maxInFlight int
	pageSize    int

	mu    sync.RWMutex
	known []KnownService
}

// DiscoveryConfig holds discovery engine configuration.
type DiscoveryConfig struct {
	PortalURL   string          // Root services endpoint of the portal
	Known       []KnownService  // Seed services merged into every run
	TTL         time.Duration   // TTL stamped on built snapshots
	MaxInFlight int             // Bounded fetch pool size, default 8
	PageSize    int             // Enumeration page size, default 100
}

// NewDiscoveryEngine creates a new discovery engine.
func NewDiscoveryEngine(
	transport output.Transport,
	metrics output.MetricsCollector,
	logger *slog.Logger,
	cfg DiscoveryConfig,
) *DiscoveryEngine {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 8
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 15 * time.Minute
	}

	return &DiscoveryEngine{
		transport:   transport,
		metrics:     metrics,
		logger:      logger,
		portalURL:   strings.TrimSuffix(cfg.PortalURL, "/"),
		known:       cfg.Known,
		ttl:         cfg.TTL,
		maxInFlight: cfg.MaxInFlight,
		pageSize:    cfg.PageSize,
	}
}

// SetKnownServices replaces the seed list used by subsequent runs.
func (e *DiscoveryEngine) SetKnownServices(known []KnownService) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.known = append([]KnownService(nil), known...)
}

func (e *DiscoveryEngine) knownServices() []KnownService {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.known
}

// candidate is one portal item awaiting resolution.
type candidate struct {
	itemID string
	name   string
	url    string
	folder string
	svcTyp domain.ServiceType
}

// Discover enumerates the portal, resolves each item and builds a snapshot.
func (e *DiscoveryEngine) Discover(ctx context.Context) (*domain.Catalog, []domain.DiscoveryIssue, error) {
	start := time.Now()
	e.logger.Info("starting discovery", "portal", e.portalURL, "known_services", len(e.knownServices()))

	candidates, issues, err := e.enumerate(ctx)
	if err != nil {
		e.metrics.IncDiscoveryRuns(false)
		return nil, nil, err
	}

	datasets, resolveIssues := e.resolveAll(ctx, candidates)
	issues = append(issues, resolveIssues...)

	catalog := &domain.Catalog{
		Datasets: datasets,
		BuiltAt:  time.Now(),
		TTL:      e.ttl,
	}

	e.metrics.IncDiscoveryRuns(true)
	e.metrics.ObserveDiscoveryDuration(time.Since(start))
	e.metrics.SetDatasetsCataloged(len(datasets))
	e.metrics.SetDiscoveryIssues(len(issues))

	e.logger.Info("discovery completed",
		"datasets", len(datasets),
		"issues", len(issues),
		"duration", time.Since(start),
	)

	return catalog, issues, nil
}

// enumerate lists portal items: seed services first, then the root service
// listing and each folder. Candidates are deduplicated by normalized URL;
// the first discovered wins and duplicates become issues.
func (e *DiscoveryEngine) enumerate(ctx context.Context) ([]candidate, []domain.DiscoveryIssue, error) {
	var issues []domain.DiscoveryIssue
	seen := make(map[string]string) // normalized URL -> item id
	var out []candidate

	add := func(c candidate) {
		normalized, err := arcgis.NormalizeServiceURL(c.url)
		if err != nil {
			issues = append(issues, domain.DiscoveryIssue{ItemID: c.itemID, Reason: fmt.Sprintf("malformed service url: %v", err)})
			return
		}
		if first, dup := seen[normalized]; dup {
			issues = append(issues, domain.DiscoveryIssue{ItemID: c.itemID, Reason: fmt.Sprintf("duplicate of %s (same service url)", first)})
			return
		}
		seen[normalized] = c.itemID
		c.url = normalized
		out = append(out, c)
	}

	for _, ks := range e.knownServices() {
		typ := serviceTypeFromURL(ks.URL)
		add(candidate{itemID: ks.Name, name: ks.Name, url: ks.URL, svcTyp: typ})
	}

	rootPage, err := e.listServices(ctx, e.portalURL)
	if err != nil {
		return nil, nil, &domain.DiscoveryError{Endpoint: e.portalURL, Err: err}
	}

	folders := rootPage.Folders
	e.addEntries(rootPage.Services, "", add, &issues)

	for _, folder := range folders {
		folderURL := e.portalURL + "/" + folder
		page, err := e.listServices(ctx, folderURL)
		if err != nil {
			issues = append(issues, domain.DiscoveryIssue{ItemID: folder, Reason: fmt.Sprintf("folder enumeration failed: %v", err)})
			continue
		}
		e.addEntries(page.Services, folder, add, &issues)
	}

	return out, issues, nil
}

// addEntries converts service entries into candidates, skipping types the
// engine does not catalog.
func (e *DiscoveryEngine) addEntries(entries []arcgis.ServiceEntry, folder string, add func(candidate), issues *[]domain.DiscoveryIssue) {
	for _, entry := range entries {
		itemID := entry.Name
		if folder != "" && !strings.Contains(entry.Name, "/") {
			itemID = folder + "/" + entry.Name
		}

		typ, ok := domain.ParseServiceType(entry.Type)
		if !ok {
			*issues = append(*issues, domain.DiscoveryIssue{ItemID: itemID, Reason: fmt.Sprintf("unsupported service type %q", entry.Type)})
			continue
		}

		svcURL := entry.URL
		if svcURL == "" {
			svcURL = e.portalURL + "/" + itemID + "/" + string(typ)
		}

		add(candidate{itemID: itemID, name: entry.Name, url: svcURL, folder: folder, svcTyp: typ})
	}
}

// listServices fetches one endpoint's service listing, following the
// backend's paging cursor until it reports no further pages.
func (e *DiscoveryEngine) listServices(ctx context.Context, endpoint string) (*arcgis.CatalogPage, error) {
	var merged arcgis.CatalogPage
	start := 1

	for {
		params := url.Values{"f": {"json"}}
		if start > 1 {
			params.Set("start", fmt.Sprint(start))
			params.Set("num", fmt.Sprint(e.pageSize))
		}

		resp, err := e.transport.Get(ctx, endpoint, params)
		if err != nil {
			return nil, err
		}
		if !resp.OK() {
			return nil, output.HTTPStatusError(endpoint, resp.Status)
		}

		var page struct {
			arcgis.CatalogPage
			NextStart int               `json:"nextStart"`
			Error     *arcgis.WireError `json:"error"`
		}
		if err := arcgis.Decode(resp.Body, &page); err != nil {
			return nil, err
		}
		if err := page.Error.Err(); err != nil {
			return nil, err
		}

		merged.Folders = append(merged.Folders, page.Folders...)
		merged.Services = append(merged.Services, page.Services...)

		if page.NextStart <= start || len(page.Services) == 0 {
			break
		}
		start = page.NextStart
	}

	return &merged, nil
}

// resolveAll fetches service metadata and layer schemas for all candidates,
// bounded by the in-flight limit. Individual failures become issues.
func (e *DiscoveryEngine) resolveAll(ctx context.Context, candidates []candidate) (map[string]domain.Dataset, []domain.DiscoveryIssue) {
	var mu sync.Mutex
	datasets := make(map[string]domain.Dataset, len(candidates))
	var issues []domain.DiscoveryIssue

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxInFlight)

	for _, c := range candidates {
		c := c
		g.Go(func() error {
			ds, err := e.resolve(gctx, c)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				e.logger.Warn("service resolution failed", "item", c.itemID, "error", err)
				issues = append(issues, domain.DiscoveryIssue{ItemID: c.itemID, Reason: err.Error()})
				return nil
			}
			datasets[ds.ID] = *ds
			return nil
		})
	}

	// Workers never return errors; per-item failures are collected as issues.
	_ = g.Wait()

	return datasets, issues
}

// resolve fetches one service's metadata and the schema of each layer,
// projecting the loosely-typed backend documents into the domain shape.
func (e *DiscoveryEngine) resolve(ctx context.Context, c candidate) (*domain.Dataset, error) {
	resp, err := e.transport.Get(ctx, c.url, url.Values{"f": {"json"}})
	if err != nil {
		return nil, fmt.Errorf("unreachable service: %w", err)
	}
	if !resp.OK() {
		return nil, output.HTTPStatusError(c.url, resp.Status)
	}

	var info arcgis.ServiceInfo
	if err := arcgis.Decode(resp.Body, &info); err != nil {
		return nil, err
	}
	if err := info.Error.Err(); err != nil {
		return nil, err
	}

	layers := make([]domain.LayerInfo, 0, len(info.Layers))
	for _, entry := range info.Layers {
		layer, err := e.resolveLayer(ctx, c.url, entry, info.MaxRecordCount)
		if err != nil {
			e.logger.Debug("layer schema fetch failed", "item", c.itemID, "layer", entry.ID, "error", err)
			continue
		}
		layers = append(layers, *layer)
	}
	sort.Slice(layers, func(i, j int) bool { return layers[i].ID < layers[j].ID })

	name := c.name
	if name == "" {
		name = c.itemID
	}
	description := info.Description
	if description == "" {
		description = info.ServiceDescription
	}

	ds := &domain.Dataset{
		ID:          datasetID(c.itemID),
		Name:        name,
		Description: description,
		Category:    categoryForFolder(c.folder),
		Tags:        tagsFor(c),
		Services: []domain.ServiceDescriptor{
			{URL: c.url, Type: c.svcTyp, Layers: layers},
		},
		DiscoveredAt: time.Now(),
		Queryable:    len(layers) > 0,
	}

	return ds, nil
}

// resolveLayer fetches one layer's schema document.
func (e *DiscoveryEngine) resolveLayer(ctx context.Context, serviceURL string, entry arcgis.LayerEntry, serviceMax int) (*domain.LayerInfo, error) {
	layerURL := fmt.Sprintf("%s/%d", serviceURL, entry.ID)

	resp, err := e.transport.Get(ctx, layerURL, url.Values{"f": {"json"}})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, output.HTTPStatusError(layerURL, resp.Status)
	}

	var detail arcgis.LayerDetail
	if err := arcgis.Decode(resp.Body, &detail); err != nil {
		return nil, err
	}
	if err := detail.Error.Err(); err != nil {
		return nil, err
	}

	fields := make(map[string]domain.FieldType, len(detail.Fields))
	for _, f := range detail.Fields {
		if f.Name == "" {
			continue
		}
		fields[f.Name] = arcgis.FieldType(f.Type)
	}

	maxRecords := detail.MaxRecordCount
	if maxRecords == 0 {
		maxRecords = serviceMax
	}

	name := detail.Name
	if name == "" {
		name = entry.Name
	}
	geomType := detail.GeometryType
	if geomType == "" {
		geomType = entry.GeometryType
	}

	return &domain.LayerInfo{
		ID:             entry.ID,
		Name:           name,
		GeometryType:   arcgis.GeometryType(geomType),
		Fields:         fields,
		MaxRecordCount: maxRecords,
	}, nil
}

// datasetID derives the stable dataset identifier from a portal item id.
func datasetID(itemID string) string {
	return strings.ToLower(strings.ReplaceAll(itemID, "/", "_"))
}

// categoryForFolder maps a portal folder to a municipal category. Folders
// that do not name a known category fall back to the general bucket.
func categoryForFolder(folder string) domain.Category {
	if c, ok := domain.ParseCategory(folder); ok {
		return c
	}
	return domain.CategoryMunicipalServices
}

// tagsFor builds the tag set for a discovered dataset.
func tagsFor(c candidate) []string {
	tags := []string{"municipality", "gis"}
	if c.folder != "" {
		tags = append(tags, strings.ToLower(c.folder))
	}
	tags = append(tags, string(c.svcTyp))
	return tags
}

// serviceTypeFromURL infers the service type from a seed URL's last path
// segment; seeds without a recognizable suffix default to feature services.
func serviceTypeFromURL(raw string) domain.ServiceType {
	trimmed := strings.TrimSuffix(raw, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx >= 0 {
		if typ, ok := domain.ParseServiceType(trimmed[idx+1:]); ok {
			return typ
		}
	}
	return domain.ServiceFeature
}
