package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jobrunner/atlas/internal/adapters/arcgis"
	"github.com/jobrunner/atlas/internal/domain"
	"github.com/jobrunner/atlas/internal/ports/output"
)

// Fallback page size when a layer does not advertise a record limit.
const defaultPageSize = 1000

// SnapshotProvider yields the current catalog snapshot.
type SnapshotProvider interface {
	Snapshot() *domain.Catalog
}

// QueryDispatcher executes feature queries against discovered layers. It
// validates requests against the cataloged schema before any network call,
// retries transient failures and follows the backend's paging cursor.
type QueryDispatcher struct {
	transport  output.Transport
	catalog    SnapshotProvider
	metrics    output.MetricsCollector
	logger     *slog.Logger
	retry      RetryPolicy
	maxRecords int
}

// DispatcherConfig holds query dispatcher configuration.
type DispatcherConfig struct {
	Retry      RetryPolicy
	MaxRecords int // Default result cap when the request does not set one
}

// NewQueryDispatcher creates a new query dispatcher.
func NewQueryDispatcher(
	transport output.Transport,
	catalog SnapshotProvider,
	metrics output.MetricsCollector,
	logger *slog.Logger,
	cfg DispatcherConfig,
) *QueryDispatcher {
	if cfg.MaxRecords <= 0 {
		cfg.MaxRecords = 100
	}

	return &QueryDispatcher{
		transport:  transport,
		catalog:    catalog,
		metrics:    metrics,
		logger:     logger,
		retry:      cfg.Retry.normalized(),
		maxRecords: cfg.MaxRecords,
	}
}

// Execute runs an attribute/spatial query and returns a normalized result.
// All validation happens against the cataloged schema before the first
// network call; pagination follows the backend cursor until the caller's
// cap is reached or the backend reports no further pages.
func (d *QueryDispatcher) Execute(ctx context.Context, req domain.QueryRequest) (*domain.FeatureResult, error) {
	start := time.Now()

	layer, serviceURL, err := d.resolveLayer(req.ServiceURL, req.LayerID)
	if err != nil {
		return nil, err
	}

	fields, err := projectFields(layer, req.OutFields)
	if err != nil {
		return nil, domain.NewQueryError(domain.KindInvalidRequest, serviceURL, req.LayerID, err)
	}
	if req.Spatial != nil {
		if err := req.Spatial.Validate(); err != nil {
			return nil, domain.NewQueryError(domain.KindInvalidRequest, serviceURL, req.LayerID, err)
		}
	}

	limit := req.MaxRecords
	if limit <= 0 {
		limit = d.maxRecords
	}
	pageSize := layer.MaxRecordCount
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	result := &domain.FeatureResult{
		Layer:    domain.LayerRef{ServiceURL: serviceURL, LayerID: layer.ID, LayerName: layer.Name},
		WithGeom: req.ReturnGeometry,
	}

	offset := 0
	for {
		remaining := limit - len(result.Features)
		if remaining <= 0 {
			result.Exceeded = true
			break
		}
		size := pageSize
		if remaining < size {
			size = remaining
		}

		page, err := d.fetchPage(ctx, serviceURL, req, fields, offset, size)
		if err != nil {
			d.observe(serviceURL, start, false)
			return nil, err
		}

		for _, wf := range page.Features {
			f := domain.Feature{Attributes: wf.Attributes}
			if req.ReturnGeometry {
				f.Geometry = arcgis.DecodeGeometry(wf.Geometry)
			}
			result.Features = append(result.Features, f)
		}

		if !page.ExceededTransferLimit || len(page.Features) == 0 {
			break
		}
		if len(result.Features) >= limit {
			result.Exceeded = true
			break
		}
		offset += len(page.Features)
	}

	d.observe(serviceURL, start, true)
	d.logger.Debug("query executed",
		"service", serviceURL,
		"layer", layer.ID,
		"features", result.Count(),
		"truncated", result.Exceeded,
	)

	return result, nil
}

// fetchPage performs one paged query exchange under the retry policy.
func (d *QueryDispatcher) fetchPage(
	ctx context.Context,
	serviceURL string,
	req domain.QueryRequest,
	fields []string,
	offset, size int,
) (*arcgis.QueryResponse, error) {
	params, usePost, err := d.queryParams(req, fields, offset, size)
	if err != nil {
		return nil, domain.NewQueryError(domain.KindInvalidRequest, serviceURL, req.LayerID, err)
	}
	queryURL := fmt.Sprintf("%s/%d/query", serviceURL, req.LayerID)

	var page arcgis.QueryResponse
	err = d.retry.Do(ctx, func(ctx context.Context) error {
		var (
			resp *output.Response
			err  error
		)
		if usePost {
			resp, err = d.transport.Post(ctx, queryURL, params)
		} else {
			resp, err = d.transport.Get(ctx, queryURL, params)
		}
		d.metrics.IncUpstreamRequests(upstreamOutcome(resp, err))
		if err != nil {
			return err
		}
		if !resp.OK() {
			return output.HTTPStatusError(queryURL, resp.Status)
		}
		return arcgis.Decode(resp.Body, &page)
	})
	if err != nil {
		return nil, d.classifyFailure(serviceURL, req.LayerID, err)
	}
	if werr := page.Error.Err(); werr != nil {
		return nil, domain.NewQueryError(domain.KindServiceRejected, serviceURL, req.LayerID, werr)
	}

	return &page, nil
}

// queryParams builds the wire parameter set for one page. Spatial filters
// with a full geometry switch the exchange to POST since encoded polygons
// do not fit a query string.
func (d *QueryDispatcher) queryParams(req domain.QueryRequest, fields []string, offset, size int) (map[string][]string, bool, error) {
	params := map[string][]string{
		"f":                 {"json"},
		"where":             {req.EffectiveWhere()},
		"outFields":         {outFieldsParam(fields)},
		"returnGeometry":    {strconv.FormatBool(req.ReturnGeometry)},
		"resultOffset":      {strconv.Itoa(offset)},
		"resultRecordCount": {strconv.Itoa(size)},
	}

	usePost := false
	if req.Spatial != nil {
		geom := req.Spatial.Geometry
		if geom == nil && req.Spatial.Box != nil {
			geom = &domain.Geometry{Type: domain.GeomEnvelope, Box: req.Spatial.Box}
		}
		encoded, err := arcgis.EncodeGeometry(geom)
		if err != nil {
			return nil, false, err
		}
		params["geometry"] = []string{encoded}
		params["geometryType"] = []string{arcgis.WireGeometryType(geom.Type)}
		params["spatialRel"] = []string{arcgis.WireSpatialRel(req.Spatial.Relationship())}
		if geom.SRID != 0 {
			params["inSR"] = []string{strconv.Itoa(geom.SRID)}
		}
		usePost = geom.Type == domain.GeomPolygon || geom.Type == domain.GeomLine
	}

	return params, usePost, nil
}

// LayerFields returns the discovered schema of a layer.
func (d *QueryDispatcher) LayerFields(_ context.Context, serviceURL string, layerID int) (*domain.LayerInfo, error) {
	layer, _, err := d.resolveLayer(serviceURL, layerID)
	return layer, err
}

// LayerStatistics computes a server-side aggregate over a field. COUNT works
// on any field; the other statistics require a numeric field.
func (d *QueryDispatcher) LayerStatistics(
	ctx context.Context,
	serviceURL string,
	layerID int,
	field string,
	stat domain.StatisticType,
	where string,
) (float64, error) {
	start := time.Now()

	layer, normalized, err := d.resolveLayer(serviceURL, layerID)
	if err != nil {
		return 0, err
	}
	if !layer.HasField(field) {
		return 0, domain.NewQueryError(domain.KindInvalidRequest, normalized, layerID,
			fmt.Errorf("%w: %q", domain.ErrFieldNotFound, field))
	}
	if stat != domain.StatCount && !numericField(layer.Fields[field]) {
		return 0, domain.NewQueryError(domain.KindInvalidRequest, normalized, layerID,
			fmt.Errorf("%w: statistic %s requires a numeric field, %q is %s",
				domain.ErrInvalidInput, stat, field, layer.Fields[field]))
	}

	outStats, err := json.Marshal([]map[string]string{{
		"statisticType":         string(stat),
		"onStatisticField":      field,
		"outStatisticFieldName": "stat_value",
	}})
	if err != nil {
		return 0, err
	}

	effectiveWhere := where
	if strings.TrimSpace(effectiveWhere) == "" {
		effectiveWhere = "1=1"
	}
	params := map[string][]string{
		"f":             {"json"},
		"where":         {effectiveWhere},
		"outStatistics": {string(outStats)},
	}
	queryURL := fmt.Sprintf("%s/%d/query", normalized, layerID)

	var page arcgis.QueryResponse
	err = d.retry.Do(ctx, func(ctx context.Context) error {
		resp, err := d.transport.Get(ctx, queryURL, params)
		d.metrics.IncUpstreamRequests(upstreamOutcome(resp, err))
		if err != nil {
			return err
		}
		if !resp.OK() {
			return output.HTTPStatusError(queryURL, resp.Status)
		}
		return arcgis.Decode(resp.Body, &page)
	})
	if err != nil {
		d.observe(normalized, start, false)
		return 0, d.classifyFailure(normalized, layerID, err)
	}
	if werr := page.Error.Err(); werr != nil {
		d.observe(normalized, start, false)
		return 0, domain.NewQueryError(domain.KindServiceRejected, normalized, layerID, werr)
	}
	if len(page.Features) == 0 {
		d.observe(normalized, start, false)
		return 0, domain.NewQueryError(domain.KindServiceRejected, normalized, layerID,
			fmt.Errorf("statistics response carried no rows"))
	}

	value, err := statValue(page.Features[0].Attributes)
	if err != nil {
		d.observe(normalized, start, false)
		return 0, domain.NewQueryError(domain.KindServiceRejected, normalized, layerID, err)
	}

	d.observe(normalized, start, true)
	return value, nil
}

// resolveLayer validates the target against the current snapshot.
func (d *QueryDispatcher) resolveLayer(serviceURL string, layerID int) (*domain.LayerInfo, string, error) {
	snapshot := d.catalog.Snapshot()
	if snapshot == nil {
		return nil, "", domain.ErrCatalogUnavailable
	}

	normalized, err := arcgis.NormalizeServiceURL(serviceURL)
	if err != nil {
		return nil, "", domain.NewQueryError(domain.KindInvalidRequest, serviceURL, layerID, err)
	}

	layer, err := snapshot.FindLayer(normalized, layerID)
	if err != nil {
		return nil, "", domain.NewQueryError(domain.KindInvalidRequest, normalized, layerID, err)
	}
	return layer, normalized, nil
}

// classifyFailure maps an exhausted or rejected exchange to a QueryError.
func (d *QueryDispatcher) classifyFailure(serviceURL string, layerID int, err error) error {
	kind := domain.KindServiceRejected
	if te, ok := output.ClassifyTransportError(err); ok {
		switch {
		case te.Kind == output.TransportTimeout:
			kind = domain.KindTimeout
		case te.Transient():
			kind = domain.KindTimeout
		}
	}
	return domain.NewQueryError(kind, serviceURL, layerID, err)
}

func (d *QueryDispatcher) observe(serviceURL string, start time.Time, success bool) {
	d.metrics.IncQueryCount(serviceURL, success)
	d.metrics.ObserveQueryDuration(serviceURL, time.Since(start))
}

// projectFields intersects the requested projection with the layer schema.
// Unknown fields are dropped; a projection with no surviving field is an
// error, an empty projection selects all fields.
func projectFields(layer *domain.LayerInfo, requested []string) ([]string, error) {
	if len(requested) == 0 {
		return nil, nil
	}

	kept := make([]string, 0, len(requested))
	for _, name := range requested {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if layer.HasField(name) {
			kept = append(kept, name)
		}
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("%w: none of the requested fields exist on layer %q",
			domain.ErrFieldNotFound, layer.Name)
	}
	return kept, nil
}

func outFieldsParam(fields []string) string {
	if len(fields) == 0 {
		return "*"
	}
	return strings.Join(fields, ",")
}

func numericField(t domain.FieldType) bool {
	switch t {
	case domain.FieldInteger, domain.FieldDouble, domain.FieldOID:
		return true
	}
	return false
}

// statValue extracts the single aggregate value from a statistics row.
func statValue(attrs map[string]interface{}) (float64, error) {
	v, ok := attrs["stat_value"]
	if !ok {
		// Some backends upper-case the output field name.
		for key, candidate := range attrs {
			if strings.EqualFold(key, "stat_value") {
				v, ok = candidate, true
				break
			}
		}
	}
	if !ok {
		return 0, fmt.Errorf("statistics row missing aggregate column")
	}

	switch n := v.(type) {
	case float64:
		return n, nil
	case json.Number:
		return n.Float64()
	case nil:
		return 0, nil
	}
	return 0, fmt.Errorf("aggregate column has non-numeric value %v", v)
}

func upstreamOutcome(resp *output.Response, err error) string {
	switch {
	case err != nil:
		return "error"
	case !resp.OK():
		return "http_" + strconv.Itoa(resp.Status)
	default:
		return "ok"
	}
}
