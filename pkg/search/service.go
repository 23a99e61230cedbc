package search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/thermaleye/backoffice/pkg/access"
	"github.com/thermaleye/backoffice/pkg/observability"
	"github.com/thermaleye/backoffice/pkg/registry"
	"github.com/thermaleye/backoffice/pkg/scope"
	"github.com/thermaleye/backoffice/pkg/store"
)

const (
	DefaultPageSize = 25
	MaxPageSize     = 100
)

// ErrUnavailable means neither the engine nor the database fallback could
// answer a query.
var ErrUnavailable = errors.New("search unavailable")

// Query is one search request against a single entity kind.
type Query struct {
	Kind      string
	Text      string
	Advanced  bool
	Approx    bool
	Ordering  string
	Page      int
	PageSize  int
	Selection scope.Selection
}

// Result is a page of scoped search results. Path records which route
// answered: "engine" or "database".
type Result struct {
	Records  []store.Record `json:"records"`
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
	Path     string         `json:"path"`
}

// Service answers entity searches. The engine path is preferred; when the
// breaker is open, the engine is unreachable or it returns nothing, the
// query reruns against the database under the exact same scope filter.
type Service struct {
	engine   Engine
	breaker  *Breaker
	store    *store.Store
	registry *registry.Registry
	scoper   *scope.Engine
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewService wires the search service. engine may be nil when external
// search is disabled; every query then takes the database path.
func NewService(engine Engine, breaker *Breaker, st *store.Store, reg *registry.Registry, scoper *scope.Engine, logger *observability.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		engine:   engine,
		breaker:  breaker,
		store:    st,
		registry: reg,
		scoper:   scoper,
		logger:   logger,
		metrics:  metrics,
	}
}

// Search runs one query for the given principal.
func (s *Service) Search(ctx context.Context, p *access.Principal, q Query) (*Result, error) {
	cfg := s.registry.Get(q.Kind)
	if cfg == nil {
		return nil, ErrUnknownKind
	}

	filter, err := s.scoper.ApplyRules(ctx, p, cfg, q.Selection)
	if err != nil {
		return nil, err
	}

	page, pageSize := normalizePage(q.Page, q.PageSize)
	result := &Result{Records: []store.Record{}, Page: page, PageSize: pageSize}
	if filter.MatchNone {
		result.Path = "database"
		return result, nil
	}

	if s.engine != nil && !s.breaker.Open() {
		engineResult, err := s.searchEngine(ctx, cfg, filter, q, page, pageSize)
		if err == nil && engineResult.Total > 0 {
			s.countQuery(q.Kind, "engine")
			return engineResult, nil
		}
		if err != nil {
			s.breaker.TripIfConnection(err)
			s.logger.WithError(err).WithField("kind", q.Kind).Warn("search engine path failed, using database")
			s.countFallback(q.Kind, "engine_error")
		} else {
			s.countFallback(q.Kind, "empty_result")
		}
	} else if s.engine != nil {
		s.countFallback(q.Kind, "breaker_open")
	}

	dbResult, err := s.searchDatabase(ctx, cfg, filter, q, page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	s.countQuery(q.Kind, "database")
	return dbResult, nil
}

// searchEngine runs the engine path and hydrates hits from storage. The
// scope filter applies twice, once inside the engine query and again on
// hydration, so a stale index entry can never leak a record the principal
// cannot see.
func (s *Service) searchEngine(ctx context.Context, cfg *registry.EntityConfig, filter scope.Filter, q Query, page, pageSize int) (*Result, error) {
	eq := EngineQuery{
		Text:            q.Text,
		Advanced:        q.Advanced,
		Fuzzy:           q.Approx,
		Fields:          cfg.SearchFields,
		ScopeFilters:    make(map[string][]int64, len(filter.Clauses)),
		EqualityFilters: make(map[string]interface{}, len(filter.Equalities)),
		From:            (page - 1) * pageSize,
		Size:            pageSize,
	}
	for _, clause := range filter.Clauses {
		eq.ScopeFilters[clause.Column] = clause.Values
	}
	for _, equality := range filter.Equalities {
		eq.EqualityFilters[equality.Column] = equality.Value
	}

	engineResult, err := s.engine.Search(ctx, cfg.Kind, eq)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Records:  []store.Record{},
		Total:    engineResult.Total,
		Page:     page,
		PageSize: pageSize,
		Path:     "engine",
	}
	if len(engineResult.Hits) == 0 {
		return result, nil
	}

	ids := make([]int64, 0, len(engineResult.Hits))
	for _, hit := range engineResult.Hits {
		ids = append(ids, hit.ID)
	}
	records, err := s.store.List(ctx, cfg, store.ListQuery{
		Filter: filter.And("id", ids),
		Limit:  len(ids),
	})
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]store.Record, len(records))
	for _, rec := range records {
		if id, ok := asDocInt64(rec["id"]); ok {
			byID[id] = rec
		}
	}
	for _, hit := range engineResult.Hits {
		if rec, ok := byID[hit.ID]; ok {
			if hit.Highlight != "" {
				rec["_highlight"] = hit.Highlight
			}
			result.Records = append(result.Records, rec)
		}
	}
	return result, nil
}

// searchTerms splits an advanced query into AND-ed terms; a simple query
// is one substring, spaces included.
func searchTerms(q Query) []string {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil
	}
	if q.Advanced {
		return strings.Fields(text)
	}
	return []string{text}
}

// searchDatabase answers the query with substring matching in storage.
func (s *Service) searchDatabase(ctx context.Context, cfg *registry.EntityConfig, filter scope.Filter, q Query, page, pageSize int) (*Result, error) {
	terms := searchTerms(q)
	records, err := s.store.List(ctx, cfg, store.ListQuery{
		Filter:   filter,
		Terms:    terms,
		Ordering: q.Ordering,
		Limit:    pageSize,
		Offset:   (page - 1) * pageSize,
	})
	if err != nil {
		return nil, err
	}
	total := len(records)
	if total == pageSize || page > 1 {
		total, err = s.countTerms(ctx, cfg, filter, terms)
		if err != nil {
			return nil, err
		}
	}
	return &Result{
		Records:  records,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		Path:     "database",
	}, nil
}

// countTerms counts fallback matches by scanning ids only. The store's
// Count covers the plain filter; term matching rides on List with the
// same predicate, so counting pages through matching ids.
func (s *Service) countTerms(ctx context.Context, cfg *registry.EntityConfig, filter scope.Filter, terms []string) (int, error) {
	if len(terms) == 0 {
		return s.store.Count(ctx, cfg, filter)
	}
	total := 0
	for offset := 0; ; offset += reindexBatchSize {
		records, err := s.store.List(ctx, cfg, store.ListQuery{
			Filter:   filter,
			Terms:    terms,
			Ordering: "id",
			Limit:    reindexBatchSize,
			Offset:   offset,
		})
		if err != nil {
			return 0, err
		}
		total += len(records)
		if len(records) < reindexBatchSize {
			return total, nil
		}
	}
}

// Ping satisfies the health checker. A disabled engine reports healthy.
func (s *Service) Ping(ctx context.Context) error {
	if s.engine == nil {
		return nil
	}
	if s.breaker.Open() {
		return errors.New("search breaker open")
	}
	return s.engine.Ping(ctx)
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}

func (s *Service) countQuery(kind, path string) {
	if s.metrics != nil {
		s.metrics.SearchQueriesTotal.WithLabelValues(kind, path).Inc()
	}
}

func (s *Service) countFallback(kind, reason string) {
	if s.metrics != nil {
		s.metrics.SearchFallbacksTotal.WithLabelValues(kind, reason).Inc()
	}
}
