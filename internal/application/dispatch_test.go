package application

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/jobrunner/atlas/internal/domain"
	"github.com/jobrunner/atlas/internal/ports/output"
)

type snapshotStub struct {
	catalog *domain.Catalog
}

func (s *snapshotStub) Snapshot() *domain.Catalog { return s.catalog }

func newTestDispatcher(tr *mockTransport, catalog *domain.Catalog, maxRecords int) *QueryDispatcher {
	return NewQueryDispatcher(tr, &snapshotStub{catalog: catalog}, &output.NoOpMetrics{}, testLogger(), DispatcherConfig{
		Retry:      RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
		MaxRecords: maxRecords,
	})
}

func featurePage(from, count int, exceeded bool) string {
	var rows []string
	for i := 0; i < count; i++ {
		rows = append(rows, fmt.Sprintf(
			`{"attributes": {"OBJECTID": %d, "NAME": "Road %d"}, "geometry": {"paths": [[[0,0],[1,1]]]}}`,
			from+i, from+i,
		))
	}
	return fmt.Sprintf(`{"features": [%s], "exceededTransferLimit": %t}`, strings.Join(rows, ","), exceeded)
}

func TestExecuteAggregatesPages(t *testing.T) {
	// Layer page limit is 2; three features require two exchanges.
	tr := &mockTransport{handler: func(_, _ string, params url.Values) (*output.Response, error) {
		switch params.Get("resultOffset") {
		case "0":
			return jsonResponse(featurePage(1, 2, true))
		case "2":
			return jsonResponse(featurePage(3, 1, false))
		}
		return nil, fmt.Errorf("unexpected offset %q", params.Get("resultOffset"))
	}}
	d := newTestDispatcher(tr, testCatalog(time.Hour), 100)

	result, err := d.Execute(context.Background(), domain.QueryRequest{
		ServiceURL:     roadsServiceURL,
		LayerID:        0,
		ReturnGeometry: true,
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if result.Count() != 3 {
		t.Errorf("features = %d, want 3 across both pages", result.Count())
	}
	if result.Exceeded {
		t.Error("result should not be truncated")
	}
	if tr.callCount() != 2 {
		t.Errorf("exchanges = %d, want 2", tr.callCount())
	}
	if result.Features[0].Geometry == nil || result.Features[0].Geometry.Type != domain.GeomLine {
		t.Errorf("geometry = %+v", result.Features[0].Geometry)
	}
	if result.Layer.LayerName != "Road Centerlines" {
		t.Errorf("layer ref = %+v", result.Layer)
	}
}

func TestExecuteCapTruncatesAndFlags(t *testing.T) {
	tr := &mockTransport{handler: func(_, _ string, params url.Values) (*output.Response, error) {
		if params.Get("resultRecordCount") != "2" {
			t.Errorf("resultRecordCount = %q, want the cap", params.Get("resultRecordCount"))
		}
		return jsonResponse(featurePage(1, 2, true))
	}}
	d := newTestDispatcher(tr, testCatalog(time.Hour), 100)

	result, err := d.Execute(context.Background(), domain.QueryRequest{
		ServiceURL: roadsServiceURL,
		MaxRecords: 2,
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Count() != 2 || !result.Exceeded {
		t.Errorf("count = %d exceeded = %t, want 2/true", result.Count(), result.Exceeded)
	}
	if tr.callCount() != 1 {
		t.Errorf("exchanges = %d, want 1 (cap reached)", tr.callCount())
	}
}

func TestExecuteGeometrySuppressed(t *testing.T) {
	tr := &mockTransport{handler: func(_, _ string, params url.Values) (*output.Response, error) {
		if params.Get("returnGeometry") != "false" {
			t.Errorf("returnGeometry = %q", params.Get("returnGeometry"))
		}
		return jsonResponse(featurePage(1, 1, false))
	}}
	d := newTestDispatcher(tr, testCatalog(time.Hour), 100)

	result, err := d.Execute(context.Background(), domain.QueryRequest{ServiceURL: roadsServiceURL})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.WithGeom {
		t.Error("WithGeom should be false")
	}
	if result.Features[0].Geometry != nil {
		t.Error("geometry should be dropped when not requested")
	}
}

func TestExecuteProjectionDropsUnknownFields(t *testing.T) {
	tr := &mockTransport{handler: func(_, _ string, params url.Values) (*output.Response, error) {
		if params.Get("outFields") != "NAME" {
			t.Errorf("outFields = %q, want NAME only", params.Get("outFields"))
		}
		return jsonResponse(featurePage(1, 1, false))
	}}
	d := newTestDispatcher(tr, testCatalog(time.Hour), 100)

	_, err := d.Execute(context.Background(), domain.QueryRequest{
		ServiceURL: roadsServiceURL,
		OutFields:  []string{"NAME", "NO_SUCH_FIELD"},
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
}

func TestExecuteAllFieldsUnknownRejected(t *testing.T) {
	tr := &mockTransport{handler: func(_, _ string, _ url.Values) (*output.Response, error) {
		t.Error("no exchange expected for an invalid request")
		return nil, errors.New("unexpected")
	}}
	d := newTestDispatcher(tr, testCatalog(time.Hour), 100)

	_, err := d.Execute(context.Background(), domain.QueryRequest{
		ServiceURL: roadsServiceURL,
		OutFields:  []string{"NOPE"},
	})
	if kind, ok := domain.QueryErrorKindOf(err); !ok || kind != domain.KindInvalidRequest {
		t.Errorf("err = %v, want invalid_request", err)
	}
}

func TestExecuteUnknownLayerRejected(t *testing.T) {
	d := newTestDispatcher(&mockTransport{}, testCatalog(time.Hour), 100)

	_, err := d.Execute(context.Background(), domain.QueryRequest{
		ServiceURL: roadsServiceURL,
		LayerID:    99,
	})
	if !errors.Is(err, domain.ErrLayerNotFound) {
		t.Errorf("err = %v, want ErrLayerNotFound", err)
	}
	if kind, _ := domain.QueryErrorKindOf(err); kind != domain.KindInvalidRequest {
		t.Errorf("kind = %q, want invalid_request", kind)
	}
}

func TestExecuteNoSnapshot(t *testing.T) {
	d := newTestDispatcher(&mockTransport{}, nil, 100)

	_, err := d.Execute(context.Background(), domain.QueryRequest{ServiceURL: roadsServiceURL})
	if !errors.Is(err, domain.ErrCatalogUnavailable) {
		t.Errorf("err = %v, want ErrCatalogUnavailable", err)
	}
}

func TestExecuteInBandErrorIsRejection(t *testing.T) {
	tr := &mockTransport{handler: func(_, _ string, _ url.Values) (*output.Response, error) {
		return jsonResponse(`{"error": {"code": 400, "message": "Invalid where clause"}}`)
	}}
	d := newTestDispatcher(tr, testCatalog(time.Hour), 100)

	_, err := d.Execute(context.Background(), domain.QueryRequest{
		ServiceURL: roadsServiceURL,
		Where:      "NOT SQL",
	})
	if kind, _ := domain.QueryErrorKindOf(err); kind != domain.KindServiceRejected {
		t.Errorf("err = %v, want service_rejected", err)
	}
	if tr.callCount() != 1 {
		t.Errorf("exchanges = %d, in-band rejections must not be retried", tr.callCount())
	}
}

func TestExecuteRetriesTransientThenSucceeds(t *testing.T) {
	failures := 2
	tr := &mockTransport{handler: func(_, rawURL string, _ url.Values) (*output.Response, error) {
		if failures > 0 {
			failures--
			return nil, &output.TransportError{Kind: output.TransportConnection, URL: rawURL, Err: errors.New("refused")}
		}
		return jsonResponse(featurePage(1, 1, false))
	}}
	d := newTestDispatcher(tr, testCatalog(time.Hour), 100)

	result, err := d.Execute(context.Background(), domain.QueryRequest{ServiceURL: roadsServiceURL})
	if err != nil {
		t.Fatalf("Execute failed after retries: %v", err)
	}
	if result.Count() != 1 {
		t.Errorf("features = %d", result.Count())
	}
	if tr.callCount() != 3 {
		t.Errorf("exchanges = %d, want 3", tr.callCount())
	}
}

func TestExecuteTimeoutClassified(t *testing.T) {
	tr := &mockTransport{handler: func(_, rawURL string, _ url.Values) (*output.Response, error) {
		return nil, &output.TransportError{Kind: output.TransportTimeout, URL: rawURL, Err: context.DeadlineExceeded}
	}}
	d := newTestDispatcher(tr, testCatalog(time.Hour), 100)

	_, err := d.Execute(context.Background(), domain.QueryRequest{ServiceURL: roadsServiceURL})
	if kind, _ := domain.QueryErrorKindOf(err); kind != domain.KindTimeout {
		t.Errorf("err = %v, want timeout kind", err)
	}
	if tr.callCount() != 3 {
		t.Errorf("exchanges = %d, timeouts should exhaust the retry budget", tr.callCount())
	}
}

func TestExecuteSpatialFilterOnWire(t *testing.T) {
	tr := &mockTransport{handler: func(method, _ string, params url.Values) (*output.Response, error) {
		if method != "POST" {
			t.Errorf("method = %s, want POST for a polygon filter", method)
		}
		if params.Get("spatialRel") != "esriSpatialRelIntersects" {
			t.Errorf("spatialRel = %q", params.Get("spatialRel"))
		}
		if params.Get("geometryType") != "esriGeometryPolygon" {
			t.Errorf("geometryType = %q", params.Get("geometryType"))
		}
		if params.Get("geometry") == "" {
			t.Error("geometry missing")
		}
		return jsonResponse(featurePage(1, 1, false))
	}}
	d := newTestDispatcher(tr, testCatalog(time.Hour), 100)

	ring := []domain.Point{{X: 0, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1}, {X: 0, Y: 0}}
	_, err := d.Execute(context.Background(), domain.QueryRequest{
		ServiceURL: roadsServiceURL,
		Spatial: &domain.SpatialFilter{
			Geometry: &domain.Geometry{Type: domain.GeomPolygon, Rings: [][]domain.Point{ring}},
		},
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
}

func TestExecuteEnvelopeFilterStaysGet(t *testing.T) {
	tr := &mockTransport{handler: func(method, _ string, params url.Values) (*output.Response, error) {
		if method != "GET" {
			t.Errorf("method = %s, want GET for an envelope filter", method)
		}
		if params.Get("geometryType") != "esriGeometryEnvelope" {
			t.Errorf("geometryType = %q", params.Get("geometryType"))
		}
		return jsonResponse(featurePage(1, 1, false))
	}}
	d := newTestDispatcher(tr, testCatalog(time.Hour), 100)

	_, err := d.Execute(context.Background(), domain.QueryRequest{
		ServiceURL: roadsServiceURL,
		Spatial: &domain.SpatialFilter{
			Box: &domain.Envelope{XMin: 30, YMin: -30, XMax: 31, YMax: -29},
		},
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
}

func TestExecuteInvalidSpatialFilterRejected(t *testing.T) {
	d := newTestDispatcher(&mockTransport{}, testCatalog(time.Hour), 100)

	_, err := d.Execute(context.Background(), domain.QueryRequest{
		ServiceURL: roadsServiceURL,
		Spatial:    &domain.SpatialFilter{},
	})
	if kind, _ := domain.QueryErrorKindOf(err); kind != domain.KindInvalidRequest {
		t.Errorf("err = %v, want invalid_request", err)
	}
}

func TestLayerFields(t *testing.T) {
	d := newTestDispatcher(&mockTransport{}, testCatalog(time.Hour), 100)

	layer, err := d.LayerFields(context.Background(), roadsServiceURL, 0)
	if err != nil {
		t.Fatalf("LayerFields failed: %v", err)
	}
	if layer.Name != "Road Centerlines" || len(layer.Fields) != 3 {
		t.Errorf("layer = %+v", layer)
	}
}

func TestLayerStatistics(t *testing.T) {
	tr := &mockTransport{handler: func(_, _ string, params url.Values) (*output.Response, error) {
		if !strings.Contains(params.Get("outStatistics"), `"statisticType":"sum"`) {
			t.Errorf("outStatistics = %q", params.Get("outStatistics"))
		}
		if params.Get("where") != "NAME IS NOT NULL" {
			t.Errorf("where = %q", params.Get("where"))
		}
		return jsonResponse(`{"features": [{"attributes": {"stat_value": 1234.5}}]}`)
	}}
	d := newTestDispatcher(tr, testCatalog(time.Hour), 100)

	value, err := d.LayerStatistics(context.Background(), roadsServiceURL, 0, "LENGTH_KM", domain.StatSum, "NAME IS NOT NULL")
	if err != nil {
		t.Fatalf("LayerStatistics failed: %v", err)
	}
	if value != 1234.5 {
		t.Errorf("value = %v, want 1234.5", value)
	}
}

func TestLayerStatisticsNonNumericFieldRejected(t *testing.T) {
	d := newTestDispatcher(&mockTransport{}, testCatalog(time.Hour), 100)

	_, err := d.LayerStatistics(context.Background(), roadsServiceURL, 0, "NAME", domain.StatSum, "")
	if kind, _ := domain.QueryErrorKindOf(err); kind != domain.KindInvalidRequest {
		t.Errorf("err = %v, want invalid_request", err)
	}
}

func TestLayerStatisticsCountOnAnyField(t *testing.T) {
	tr := &mockTransport{handler: func(_, _ string, _ url.Values) (*output.Response, error) {
		return jsonResponse(`{"features": [{"attributes": {"STAT_VALUE": 42}}]}`)
	}}
	d := newTestDispatcher(tr, testCatalog(time.Hour), 100)

	value, err := d.LayerStatistics(context.Background(), roadsServiceURL, 0, "NAME", domain.StatCount, "")
	if err != nil {
		t.Fatalf("LayerStatistics failed: %v", err)
	}
	if value != 42 {
		t.Errorf("value = %v, want 42", value)
	}
}

func TestLayerStatisticsUnknownFieldRejected(t *testing.T) {
	d := newTestDispatcher(&mockTransport{}, testCatalog(time.Hour), 100)

	_, err := d.LayerStatistics(context.Background(), roadsServiceURL, 0, "NOPE", domain.StatCount, "")
	if !errors.Is(err, domain.ErrFieldNotFound) {
		t.Errorf("err = %v, want ErrFieldNotFound", err)
	}
}
