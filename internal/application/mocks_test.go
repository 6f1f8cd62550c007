package application

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/jobrunner/atlas/internal/domain"
	"github.com/jobrunner/atlas/internal/ports/output"
)

// mockTransport delegates exchanges to a handler and records every call.
type mockTransport struct {
	mu      sync.Mutex
	handler func(method, rawURL string, params url.Values) (*output.Response, error)
	calls   []transportCall
}

type transportCall struct {
	method string
	url    string
	params url.Values
}

func (m *mockTransport) Get(_ context.Context, rawURL string, params url.Values) (*output.Response, error) {
	return m.exchange("GET", rawURL, params)
}

func (m *mockTransport) Post(_ context.Context, rawURL string, params url.Values) (*output.Response, error) {
	return m.exchange("POST", rawURL, params)
}

func (m *mockTransport) exchange(method, rawURL string, params url.Values) (*output.Response, error) {
	m.mu.Lock()
	m.calls = append(m.calls, transportCall{method: method, url: rawURL, params: params})
	m.mu.Unlock()
	return m.handler(method, rawURL, params)
}

func (m *mockTransport) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockTransport) lastCall() transportCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[len(m.calls)-1]
}

func jsonResponse(body string) (*output.Response, error) {
	return &output.Response{Status: 200, Body: []byte(body)}, nil
}

// mockDiscoverer counts runs and optionally blocks on a gate so tests can
// hold a discovery run open.
type mockDiscoverer struct {
	mu      sync.Mutex
	calls   int
	catalog *domain.Catalog
	issues  []domain.DiscoveryIssue
	err     error
	gate    chan struct{}
}

func (m *mockDiscoverer) Discover(_ context.Context) (*domain.Catalog, []domain.DiscoveryIssue, error) {
	m.mu.Lock()
	m.calls++
	gate := m.gate
	m.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if m.err != nil {
		return nil, nil, m.err
	}
	return m.catalog, m.issues, nil
}

func (m *mockDiscoverer) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// stubQueryService captures the dispatched request for buffer tests.
type stubQueryService struct {
	lastReq domain.QueryRequest
	result  *domain.FeatureResult
	err     error
}

func (s *stubQueryService) Execute(_ context.Context, req domain.QueryRequest) (*domain.FeatureResult, error) {
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	if s.result != nil {
		return s.result, nil
	}
	return &domain.FeatureResult{}, nil
}

func (s *stubQueryService) LayerFields(context.Context, string, int) (*domain.LayerInfo, error) {
	return nil, domain.ErrLayerNotFound
}

func (s *stubQueryService) LayerStatistics(context.Context, string, int, string, domain.StatisticType, string) (float64, error) {
	return 0, domain.ErrLayerNotFound
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testCatalog builds a snapshot with one queryable roads dataset.
func testCatalog(ttl time.Duration) *domain.Catalog {
	return &domain.Catalog{
		Datasets: map[string]domain.Dataset{
			"transportation_roads": {
				ID:       "transportation_roads",
				Name:     "Roads",
				Category: domain.CategoryTransportation,
				Tags:     []string{"gis", "transportation"},
				Services: []domain.ServiceDescriptor{{
					URL:  "https://gis.example.com/rest/services/Transportation/Roads/FeatureServer",
					Type: domain.ServiceFeature,
					Layers: []domain.LayerInfo{{
						ID:           0,
						Name:         "Road Centerlines",
						GeometryType: domain.GeomLine,
						Fields: map[string]domain.FieldType{
							"OBJECTID":  domain.FieldOID,
							"NAME":      domain.FieldString,
							"LENGTH_KM": domain.FieldDouble,
						},
						MaxRecordCount: 2,
					}},
				}},
				Queryable: true,
			},
		},
		BuiltAt: time.Now(),
		TTL:     ttl,
	}
}

const roadsServiceURL = "https://gis.example.com/rest/services/Transportation/Roads/FeatureServer"
