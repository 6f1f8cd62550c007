package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jobrunner/atlas/internal/domain"
)

func searchCatalog() *domain.Catalog {
	mk := func(id, name, desc string, cat domain.Category, tags ...string) domain.Dataset {
		return domain.Dataset{ID: id, Name: name, Description: desc, Category: cat, Tags: tags, Queryable: true}
	}
	return &domain.Catalog{
		Datasets: map[string]domain.Dataset{
			"roads":    mk("roads", "Road Network", "Arterial and local roads", domain.CategoryTransportation, "roads", "transport"),
			"bus":      mk("bus", "Bus Routes", "Public transport routes", domain.CategoryTransportation, "transport"),
			"parks":    mk("parks", "Parks and Gardens", "Open space and recreation", domain.CategoryEnvironment, "parks"),
			"sewer":    mk("sewer", "Sewer Lines", "Wastewater network", domain.CategoryUtilities, "water"),
			"cemetery": mk("cemetery", "Cemeteries", "Burial sites", domain.CategoryMunicipalServices),
		},
		BuiltAt: time.Now(),
		TTL:     time.Hour,
	}
}

func newTestSearch() *SearchEngine {
	s := NewSearchEngine(testLogger())
	s.Reindex(searchCatalog())
	return s
}

func TestSearchRanksNameAboveTagAboveDescription(t *testing.T) {
	s := newTestSearch()

	// "transport" matches bus by tag+description, roads by tag only.
	results, err := s.Search(context.Background(), []string{"transport"}, "", 0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].ID != "bus" || results[1].ID != "roads" {
		t.Errorf("order = [%s %s], want [bus roads]", results[0].ID, results[1].ID)
	}

	// A name match outranks tag and description matches.
	results, err = s.Search(context.Background(), []string{"road"}, "", 0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if results[0].ID != "roads" {
		t.Errorf("top result = %s, want roads", results[0].ID)
	}
}

func TestSearchTiesBreakByID(t *testing.T) {
	s := NewSearchEngine(testLogger())
	s.Reindex(&domain.Catalog{
		Datasets: map[string]domain.Dataset{
			"b_water": {ID: "b_water", Name: "Water Mains", Category: domain.CategoryUtilities},
			"a_water": {ID: "a_water", Name: "Water Meters", Category: domain.CategoryUtilities},
		},
		BuiltAt: time.Now(),
		TTL:     time.Hour,
	})

	results, err := s.Search(context.Background(), []string{"water"}, "", 0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 || results[0].ID != "a_water" {
		t.Errorf("results = %+v, want a_water first", results)
	}
}

func TestSearchCategoryFilter(t *testing.T) {
	s := newTestSearch()

	results, err := s.Search(context.Background(), []string{"network"}, "Utilities", 0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].ID != "sewer" {
		t.Errorf("results = %+v, want sewer only", results)
	}
}

func TestSearchUnknownCategoryRejected(t *testing.T) {
	s := newTestSearch()

	_, err := s.Search(context.Background(), []string{"roads"}, "Astronomy", 0)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestSearchLimit(t *testing.T) {
	s := newTestSearch()

	results, err := s.Search(context.Background(), []string{"transport"}, "", 1)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("results = %d, want 1", len(results))
	}
}

func TestSearchNoKeywordsRejected(t *testing.T) {
	s := newTestSearch()

	if _, err := s.Search(context.Background(), []string{" ", ""}, "", 0); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestSearchBeforeFirstSnapshot(t *testing.T) {
	s := NewSearchEngine(testLogger())

	if _, err := s.Search(context.Background(), []string{"roads"}, "", 0); !errors.Is(err, domain.ErrCatalogUnavailable) {
		t.Errorf("err = %v, want ErrCatalogUnavailable", err)
	}
	if _, err := s.Categories(context.Background()); !errors.Is(err, domain.ErrCatalogUnavailable) {
		t.Errorf("err = %v, want ErrCatalogUnavailable", err)
	}
}

func TestCategoriesCensus(t *testing.T) {
	s := newTestSearch()

	census, err := s.Categories(context.Background())
	if err != nil {
		t.Fatalf("Categories failed: %v", err)
	}
	if census[domain.CategoryTransportation] != 2 {
		t.Errorf("transportation = %d, want 2", census[domain.CategoryTransportation])
	}
	if census[domain.CategoryMunicipalServices] != 1 {
		t.Errorf("municipal services = %d, want 1", census[domain.CategoryMunicipalServices])
	}
}
