package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/jobrunner/atlas/internal/domain"
)

// Relevance weights for keyword matches.
const (
	weightName        = 4
	weightTag         = 2
	weightDescription = 1
)

// searchDoc is one dataset prepared for matching: all searchable text
// lowered once at index build time.
type searchDoc struct {
	id          string
	name        string
	description string
	tags        []string
	category    domain.Category
}

// searchIndex is an immutable index over one catalog snapshot.
type searchIndex struct {
	docs    []searchDoc
	catalog *domain.Catalog
	byCat   map[domain.Category]int
}

// buildSearchIndex prepares an index for the given snapshot. Documents are
// ordered by dataset ID so equal-score results rank deterministically.
func buildSearchIndex(catalog *domain.Catalog) *searchIndex {
	idx := &searchIndex{
		docs:    make([]searchDoc, 0, len(catalog.Datasets)),
		catalog: catalog,
		byCat:   make(map[domain.Category]int),
	}

	for _, id := range catalog.DatasetIDs() {
		d := catalog.Datasets[id]
		tags := make([]string, len(d.Tags))
		for i, t := range d.Tags {
			tags[i] = strings.ToLower(t)
		}
		idx.docs = append(idx.docs, searchDoc{
			id:          d.ID,
			name:        strings.ToLower(d.Name),
			description: strings.ToLower(d.Description),
			tags:        tags,
			category:    d.Category,
		})
		idx.byCat[d.Category]++
	}

	return idx
}

// score computes the relevance of one document against the keywords.
// Zero means no keyword matched.
func (idx *searchIndex) score(doc *searchDoc, keywords []string) int {
	total := 0
	for _, kw := range keywords {
		if strings.Contains(doc.name, kw) {
			total += weightName
		}
		for _, tag := range doc.tags {
			if strings.Contains(tag, kw) {
				total += weightTag
				break
			}
		}
		if strings.Contains(doc.description, kw) {
			total += weightDescription
		}
	}
	return total
}

// SearchEngine ranks cataloged datasets by keyword relevance. The index is
// rebuilt whenever the catalog manager installs a new snapshot.
type SearchEngine struct {
	logger *slog.Logger
	index  atomic.Pointer[searchIndex]
}

// NewSearchEngine creates a new search engine.
func NewSearchEngine(logger *slog.Logger) *SearchEngine {
	return &SearchEngine{logger: logger}
}

// Reindex rebuilds the index for a new snapshot. Registered as the catalog
// manager's swap callback.
func (s *SearchEngine) Reindex(catalog *domain.Catalog) {
	idx := buildSearchIndex(catalog)
	s.index.Store(idx)
	s.logger.Debug("search index rebuilt", "datasets", len(idx.docs))
}

// Search returns datasets ranked by keyword relevance, higher scores first
// and ties broken by dataset ID. An empty category disables filtering;
// limit <= 0 returns all matches.
func (s *SearchEngine) Search(_ context.Context, keywords []string, category string, limit int) ([]domain.Dataset, error) {
	idx := s.index.Load()
	if idx == nil {
		return nil, domain.ErrCatalogUnavailable
	}

	var catFilter domain.Category
	if category != "" {
		c, ok := domain.ParseCategory(category)
		if !ok {
			return nil, fmt.Errorf("%w: unknown category %q", domain.ErrInvalidInput, category)
		}
		catFilter = c
	}

	lowered := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			lowered = append(lowered, kw)
		}
	}
	if len(lowered) == 0 {
		return nil, fmt.Errorf("%w: no search keywords", domain.ErrInvalidInput)
	}

	type hit struct {
		id    string
		score int
	}
	var hits []hit
	for i := range idx.docs {
		doc := &idx.docs[i]
		if catFilter != "" && doc.category != catFilter {
			continue
		}
		if sc := idx.score(doc, lowered); sc > 0 {
			hits = append(hits, hit{id: doc.id, score: sc})
		}
	}

	// Docs are ID-ordered, so a stable sort by score keeps ties ID-ordered.
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}

	out := make([]domain.Dataset, 0, len(hits))
	for _, h := range hits {
		out = append(out, idx.catalog.Datasets[h.id])
	}
	return out, nil
}

// Categories returns the dataset count per category in the current snapshot.
func (s *SearchEngine) Categories(_ context.Context) (map[domain.Category]int, error) {
	idx := s.index.Load()
	if idx == nil {
		return nil, domain.ErrCatalogUnavailable
	}

	out := make(map[domain.Category]int, len(idx.byCat))
	for c, n := range idx.byCat {
		out[c] = n
	}
	return out, nil
}
