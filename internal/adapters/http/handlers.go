package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/jobrunner/atlas/internal/domain"
	"github.com/jobrunner/atlas/internal/export"
)

// handleListDatasets returns the current catalog. A refresh=true parameter
// forces a discovery run before answering.
func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("refresh") == "true"

	catalog, warning, err := s.catalog.GetCatalog(r.Context(), force)
	if err != nil {
		s.handleServiceError(w, err)
		return
	}

	datasets := make([]map[string]interface{}, 0, len(catalog.Datasets))
	for _, id := range catalog.DatasetIDs() {
		d := catalog.Datasets[id]
		datasets = append(datasets, s.formatDataset(&d, false))
	}

	response := map[string]interface{}{
		"datasets": datasets,
		"count":    len(datasets),
		"built_at": catalog.BuiltAt,
	}
	if warning != nil {
		response["warning"] = map[string]interface{}{
			"reason":    warning.Reason,
			"served_at": warning.ServedAt,
		}
	}

	s.writeJSON(w, http.StatusOK, response)
}

// handleGetDataset returns a single dataset with its full layer inventory.
func (s *Server) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["datasetId"]

	dataset, err := s.catalog.GetDataset(r.Context(), id)
	if err != nil {
		s.handleServiceError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, s.formatDataset(dataset, true))
}

// handleRefresh forces a discovery run.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	catalog, warning, err := s.catalog.GetCatalog(r.Context(), true)
	if err != nil {
		s.handleServiceError(w, err)
		return
	}

	response := map[string]interface{}{
		"datasets": len(catalog.Datasets),
		"issues":   len(s.catalog.Issues()),
		"built_at": catalog.BuiltAt,
	}
	if warning != nil {
		response["warning"] = warning.Reason
	}

	s.writeJSON(w, http.StatusOK, response)
}

// handleIssues returns the issue list of the last discovery run.
func (s *Server) handleIssues(w http.ResponseWriter, _ *http.Request) {
	issues := s.catalog.Issues()

	formatted := make([]map[string]string, len(issues))
	for i, issue := range issues {
		formatted[i] = map[string]string{
			"item":   issue.ItemID,
			"reason": issue.Reason,
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"issues": formatted,
		"count":  len(formatted),
	})
}

// handleSearch ranks datasets by keyword relevance.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	keywords := strings.Fields(q.Get("q"))
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit parameter")
			return
		}
		limit = v
	}

	results, err := s.search.Search(r.Context(), keywords, q.Get("category"), limit)
	if err != nil {
		s.handleServiceError(w, err)
		return
	}

	formatted := make([]map[string]interface{}, len(results))
	for i := range results {
		formatted[i] = s.formatDataset(&results[i], false)
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": formatted,
		"count":   len(formatted),
	})
}

// handleCategories returns the dataset count per category.
func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	census, err := s.search.Categories(r.Context())
	if err != nil {
		s.handleServiceError(w, err)
		return
	}

	counts := make(map[string]int, len(census))
	for category, n := range census {
		counts[string(category)] = n
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"categories": counts})
}

// handleQuery runs a feature query and renders it in the requested format.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseQueryRequest(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.queries.Execute(r.Context(), *req)
	if err != nil {
		s.handleServiceError(w, err)
		return
	}

	s.writeResult(w, result, req.Format)
}

// handleBufferQuery buffers a point and queries features around it.
func (s *Server) handleBufferQuery(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseQueryRequest(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	q := r.URL.Query()
	x, errX := strconv.ParseFloat(q.Get("x"), 64)
	y, errY := strconv.ParseFloat(q.Get("y"), 64)
	if errX != nil || errY != nil {
		s.writeError(w, http.StatusBadRequest, "x and y coordinates are required")
		return
	}

	distance, err := strconv.ParseFloat(q.Get("distance"), 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "distance is required")
		return
	}

	unit := domain.BufferUnit(q.Get("unit"))
	if unit == "" {
		unit = domain.UnitMeters
	}

	srid := 4326
	if raw := q.Get("srid"); raw != "" {
		if srid, err = strconv.Atoi(raw); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid srid parameter")
			return
		}
	}

	center := domain.Geometry{
		Type:  domain.GeomPoint,
		Point: &domain.Point{X: x, Y: y},
		SRID:  srid,
	}

	result, err := s.buffer.BufferQuery(r.Context(), center, distance, unit, *req)
	if err != nil {
		s.handleServiceError(w, err)
		return
	}

	s.writeResult(w, result, req.Format)
}

// handleLayerFields returns the discovered schema of a layer.
func (s *Server) handleLayerFields(w http.ResponseWriter, r *http.Request) {
	serviceURL, layerID, err := parseLayerTarget(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	layer, err := s.queries.LayerFields(r.Context(), serviceURL, layerID)
	if err != nil {
		s.handleServiceError(w, err)
		return
	}

	fields := make(map[string]string, len(layer.Fields))
	for name, t := range layer.Fields {
		fields[name] = string(t)
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"layer_id":         layer.ID,
		"layer_name":       layer.Name,
		"geometry_type":    string(layer.GeometryType),
		"max_record_count": layer.MaxRecordCount,
		"fields":           fields,
	})
}

// handleLayerStatistics computes a server-side aggregate over a field.
func (s *Server) handleLayerStatistics(w http.ResponseWriter, r *http.Request) {
	serviceURL, layerID, err := parseLayerTarget(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	q := r.URL.Query()
	field := q.Get("field")
	if field == "" {
		s.writeError(w, http.StatusBadRequest, "field parameter is required")
		return
	}

	stat, ok := domain.ParseStatisticType(q.Get("stat"))
	if !ok {
		s.writeError(w, http.StatusBadRequest, "unknown stat; use count, sum, min, max, avg or stddev")
		return
	}

	value, err := s.queries.LayerStatistics(r.Context(), serviceURL, layerID, field, stat, q.Get("where"))
	if err != nil {
		s.handleServiceError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"field": field,
		"stat":  string(stat),
		"value": value,
	})
}

// handleListServices returns the seed service list.
func (s *Server) handleListServices(w http.ResponseWriter, _ *http.Request) {
	seeds := s.seeds.Services()

	services := make([]map[string]string, len(seeds))
	for i, seed := range seeds {
		services[i] = map[string]string{"name": seed.Name, "url": seed.URL}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"services": services,
		"count":    len(services),
	})
}

// handleAddService registers a seed service at runtime.
func (s *Server) handleAddService(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.URL == "" {
		s.writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	if err := s.seeds.AddService(r.Context(), body.Name, body.URL); err != nil {
		s.handleServiceError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]string{
		"status": "registered",
		"url":    body.URL,
	})
}

// handleHealth returns detailed health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	details := s.health.GetHealthDetails(r.Context())

	status := http.StatusOK
	if !details.Healthy {
		status = http.StatusServiceUnavailable
	}

	s.writeJSON(w, status, map[string]interface{}{
		"status":             boolToStatus(details.Healthy),
		"ready":              details.Ready,
		"datasets_cataloged": details.DatasetsCataloged,
		"snapshot_age":       details.SnapshotAge,
		"components":         details.Components,
	})
}

// handleLiveness returns liveness status.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	if s.health.IsHealthy(r.Context()) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	} else {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
	}
}

// handleReadiness returns readiness status.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.health.IsReady(r.Context()) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	} else {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
	}
}

// parseQueryRequest extracts the shared query parameters.
func (s *Server) parseQueryRequest(r *http.Request) (*domain.QueryRequest, error) {
	q := r.URL.Query()

	serviceURL := q.Get("service")
	if serviceURL == "" {
		return nil, errors.New("service parameter is required")
	}

	layerID := 0
	if raw := q.Get("layer"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return nil, errors.New("invalid layer parameter")
		}
		layerID = v
	}

	req := &domain.QueryRequest{
		ServiceURL: serviceURL,
		LayerID:    layerID,
		Where:      q.Get("where"),
	}

	if fields := q.Get("fields"); fields != "" {
		req.OutFields = strings.Split(fields, ",")
	}

	req.ReturnGeometry = q.Get("geometry") != "false"

	if raw := q.Get("max_records"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return nil, errors.New("invalid max_records parameter")
		}
		req.MaxRecords = v
	}

	if raw := q.Get("bbox"); raw != "" {
		box, err := parseBBox(raw)
		if err != nil {
			return nil, err
		}
		req.Spatial = &domain.SpatialFilter{Box: box, Rel: domain.SpatialRel(q.Get("rel"))}
	}

	if raw := q.Get("format"); raw != "" {
		format, ok := domain.ParseExportTarget(raw)
		if !ok {
			return nil, errors.New("unknown format; use geojson, csv, kml or shapefile")
		}
		req.Format = format
	}

	return req, nil
}

// parseLayerTarget extracts the service/layer pair shared by the layer
// endpoints.
func parseLayerTarget(r *http.Request) (string, int, error) {
	q := r.URL.Query()

	serviceURL := q.Get("service")
	if serviceURL == "" {
		return "", 0, errors.New("service parameter is required")
	}

	layerID := 0
	if raw := q.Get("layer"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return "", 0, errors.New("invalid layer parameter")
		}
		layerID = v
	}

	return serviceURL, layerID, nil
}

// parseBBox parses an xmin,ymin,xmax,ymax bounding box.
func parseBBox(raw string) (*domain.Envelope, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return nil, errors.New("bbox must be xmin,ymin,xmax,ymax")
	}

	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, errors.New("bbox must be xmin,ymin,xmax,ymax")
		}
		vals[i] = v
	}

	box := &domain.Envelope{XMin: vals[0], YMin: vals[1], XMax: vals[2], YMax: vals[3]}
	if !box.Valid() {
		return nil, errors.New("bbox has no extent")
	}
	return box, nil
}

// writeResult renders a feature result in the requested export format.
func (s *Server) writeResult(w http.ResponseWriter, result *domain.FeatureResult, format domain.ExportTarget) {
	body, mediaType, err := export.Encode(result, format)
	if err != nil {
		s.handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", mediaType)
	if result.Exceeded {
		w.Header().Set("X-Result-Truncated", "true")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// formatDataset formats a dataset for JSON output. The full form includes
// the per-service layer inventory.
func (s *Server) formatDataset(d *domain.Dataset, full bool) map[string]interface{} {
	out := map[string]interface{}{
		"id":            d.ID,
		"name":          d.Name,
		"description":   d.Description,
		"category":      string(d.Category),
		"tags":          d.Tags,
		"queryable":     d.Queryable,
		"layer_count":   d.LayerCount(),
		"discovered_at": d.DiscoveredAt,
	}

	if !full {
		return out
	}

	services := make([]map[string]interface{}, len(d.Services))
	for i := range d.Services {
		svc := &d.Services[i]
		layers := make([]map[string]interface{}, len(svc.Layers))
		for j := range svc.Layers {
			l := &svc.Layers[j]
			layers[j] = map[string]interface{}{
				"id":               l.ID,
				"name":             l.Name,
				"geometry_type":    string(l.GeometryType),
				"fields":           l.FieldNames(),
				"max_record_count": l.MaxRecordCount,
			}
		}
		services[i] = map[string]interface{}{
			"url":    svc.URL,
			"type":   string(svc.Type),
			"layers": layers,
		}
	}
	out["services"] = services

	return out
}

// handleServiceError maps domain errors to HTTP statuses. A QueryError's
// explicit kind wins over the sentinel its cause wraps.
func (s *Server) handleServiceError(w http.ResponseWriter, err error) {
	if kind, ok := domain.QueryErrorKindOf(err); ok {
		switch kind {
		case domain.KindInvalidRequest:
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		case domain.KindTimeout:
			s.writeError(w, http.StatusGatewayTimeout, err.Error())
			return
		case domain.KindServiceRejected:
			s.writeError(w, http.StatusBadGateway, err.Error())
			return
		}
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUnsupported):
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrUnavailable):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "request failed")
	}
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
	})
}

func boolToStatus(b bool) string {
	if b {
		return "ok"
	}
	return "unhealthy"
}
