package api

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/thermaleye/backoffice/pkg/access"
	"github.com/thermaleye/backoffice/pkg/async"
	"github.com/thermaleye/backoffice/pkg/contextkeys"
	"github.com/thermaleye/backoffice/pkg/fkcache"
	"github.com/thermaleye/backoffice/pkg/httputil"
	"github.com/thermaleye/backoffice/pkg/observability"
	"github.com/thermaleye/backoffice/pkg/registry"
	"github.com/thermaleye/backoffice/pkg/scope"
	"github.com/thermaleye/backoffice/pkg/search"
	"github.com/thermaleye/backoffice/pkg/store"
)

const afterWriteTimeout = 30 * time.Second

// EntityHandlers serves the materialized per-kind CRUD endpoints. One
// handler set covers every registered kind; the kind is bound at route
// registration time, not parsed from free-form input.
type EntityHandlers struct {
	registry *registry.Registry
	access   *access.Service
	scoper   *scope.Engine
	store    *store.Store
	cache    *fkcache.Service
	indexer  *search.Indexer
	logger   *observability.Logger
}

// NewEntityHandlers creates the generic entity handlers. cache and indexer
// may be nil in tests; post-write maintenance is skipped when they are.
func NewEntityHandlers(reg *registry.Registry, acc *access.Service, scoper *scope.Engine, st *store.Store, cache *fkcache.Service, indexer *search.Indexer, logger *observability.Logger) *EntityHandlers {
	return &EntityHandlers{
		registry: reg,
		access:   acc,
		scoper:   scoper,
		store:    st,
		cache:    cache,
		indexer:  indexer,
		logger:   logger,
	}
}

// ListResponse is the paginated list envelope.
type ListResponse struct {
	Records  []store.Record `json:"records"`
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

// HandlerFor returns the handler implementing one materialized route.
func (h *EntityHandlers) HandlerFor(route Route) http.HandlerFunc {
	switch {
	case strings.HasSuffix(route.Name, "_list"):
		return h.list(route.Kind)
	case strings.HasSuffix(route.Name, "_get"):
		return h.get(route.Kind)
	case strings.HasSuffix(route.Name, "_create"):
		return h.create(route.Kind)
	case strings.HasSuffix(route.Name, "_update"), strings.HasSuffix(route.Name, "_patch"):
		return h.update(route.Kind)
	case strings.HasSuffix(route.Name, "_delete"):
		return h.delete(route.Kind)
	case strings.HasSuffix(route.Name, "_export"):
		return h.export(route.Kind)
	case strings.HasSuffix(route.Name, "_fk_options"):
		return h.fkOptions(route.Kind)
	default:
		return func(w http.ResponseWriter, r *http.Request) {
			httputil.WriteNotFound(w, "unknown route")
		}
	}
}

// authorize resolves the principal and checks the action. It writes the 403
// itself and reports whether the request may proceed.
func (h *EntityHandlers) authorize(w http.ResponseWriter, r *http.Request, kind string, action access.Action) (*access.Principal, bool) {
	p := contextkeys.GetPrincipal(r.Context())
	if !h.access.CanAccess(r.Context(), kind, action, p) {
		httputil.WriteForbidden(w, fmt.Sprintf("%s on %s is not permitted", action, kind))
		return p, false
	}
	return p, true
}

func (h *EntityHandlers) list(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := h.authorize(w, r, kind, access.ActionView)
		if !ok {
			return
		}
		cfg := h.registry.Get(kind)

		filter, err := h.scoper.ApplyRules(r.Context(), p, cfg, parseSelection(r))
		if err != nil {
			h.logger.WithError(err).WithField("kind", kind).Error("scope resolution failed")
			httputil.WriteInternalError(w, err)
			return
		}

		page, _ := httputil.ParseQueryInt(r, "page", 1)
		pageSize, _ := httputil.ParseQueryInt(r, "page_size", search.DefaultPageSize)
		if page < 1 {
			page = 1
		}
		if pageSize < 1 || pageSize > search.MaxPageSize {
			pageSize = search.DefaultPageSize
		}
		ordering := httputil.ParseQueryString(r, "ordering", cfg.DefaultOrdering)

		records, err := h.store.List(r.Context(), cfg, store.ListQuery{
			Filter:   filter,
			Ordering: ordering,
			Limit:    pageSize,
			Offset:   (page - 1) * pageSize,
		})
		if err != nil {
			httputil.WriteInternalError(w, err)
			return
		}
		total, err := h.store.Count(r.Context(), cfg, filter)
		if err != nil {
			httputil.WriteInternalError(w, err)
			return
		}

		httputil.WriteSuccess(w, ListResponse{
			Records:  records,
			Total:    total,
			Page:     page,
			PageSize: pageSize,
		})
	}
}

func (h *EntityHandlers) get(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := h.authorize(w, r, kind, access.ActionView)
		if !ok {
			return
		}
		cfg := h.registry.Get(kind)

		id, err := httputil.ParsePathInt64(r, "id")
		if err != nil {
			httputil.WriteBadRequest(w, "invalid id")
			return
		}

		filter, err := h.scoper.ApplyRules(r.Context(), p, cfg, parseSelection(r))
		if err != nil {
			httputil.WriteInternalError(w, err)
			return
		}

		// An out-of-scope record reads exactly like a missing one.
		record, err := h.store.Get(r.Context(), cfg, id, filter)
		if errors.Is(err, store.ErrNotFound) {
			httputil.WriteNotFound(w, kind+" not found")
			return
		}
		if err != nil {
			httputil.WriteInternalError(w, err)
			return
		}
		httputil.WriteSuccess(w, record)
	}
}

func (h *EntityHandlers) create(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := h.authorize(w, r, kind, access.ActionAdd)
		if !ok {
			return
		}
		cfg := h.registry.Get(kind)

		record, err := h.parseRecord(r, cfg)
		if err != nil {
			httputil.WriteBadRequest(w, err.Error())
			return
		}
		if len(record) == 0 {
			httputil.WriteBadRequest(w, "empty record")
			return
		}

		filter, err := h.scoper.ApplyRules(r.Context(), p, cfg, nil)
		if err != nil {
			httputil.WriteInternalError(w, err)
			return
		}
		if !ownershipInScope(filter, record, true) {
			httputil.WriteForbidden(w, "record ownership is outside your scope")
			return
		}

		id, err := h.store.Insert(r.Context(), cfg, record)
		if err != nil {
			h.logger.WithError(err).WithField("kind", kind).Error("insert failed")
			httputil.WriteInternalError(w, err)
			return
		}

		h.afterWrite(r, kind, id, false)
		httputil.WriteCreated(w, map[string]interface{}{"id": id})
	}
}

func (h *EntityHandlers) update(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := h.authorize(w, r, kind, access.ActionEdit)
		if !ok {
			return
		}
		cfg := h.registry.Get(kind)

		id, err := httputil.ParsePathInt64(r, "id")
		if err != nil {
			httputil.WriteBadRequest(w, "invalid id")
			return
		}

		record, err := h.parseRecord(r, cfg)
		if err != nil {
			httputil.WriteBadRequest(w, err.Error())
			return
		}
		if len(record) == 0 {
			httputil.WriteBadRequest(w, "empty record")
			return
		}

		filter, err := h.scoper.ApplyRules(r.Context(), p, cfg, nil)
		if err != nil {
			httputil.WriteInternalError(w, err)
			return
		}

		// A row in scope must not be moved out of it.
		if !ownershipInScope(filter, record, false) {
			httputil.WriteForbidden(w, "record ownership is outside your scope")
			return
		}

		err = h.store.Update(r.Context(), cfg, id, record, filter)
		if errors.Is(err, store.ErrNotFound) {
			httputil.WriteNotFound(w, kind+" not found")
			return
		}
		if err != nil {
			httputil.WriteInternalError(w, err)
			return
		}

		h.afterWrite(r, kind, id, false)
		httputil.WriteSuccess(w, map[string]interface{}{"id": id})
	}
}

func (h *EntityHandlers) delete(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := h.authorize(w, r, kind, access.ActionDelete)
		if !ok {
			return
		}
		cfg := h.registry.Get(kind)

		id, err := httputil.ParsePathInt64(r, "id")
		if err != nil {
			httputil.WriteBadRequest(w, "invalid id")
			return
		}

		filter, err := h.scoper.ApplyRules(r.Context(), p, cfg, nil)
		if err != nil {
			httputil.WriteInternalError(w, err)
			return
		}

		err = h.store.Delete(r.Context(), cfg, id, filter)
		if errors.Is(err, store.ErrNotFound) {
			httputil.WriteNotFound(w, kind+" not found")
			return
		}
		if err != nil {
			httputil.WriteInternalError(w, err)
			return
		}

		h.afterWrite(r, kind, id, true)
		httputil.WriteNoContent(w)
	}
}

func (h *EntityHandlers) export(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := h.authorize(w, r, kind, access.ActionExport)
		if !ok {
			return
		}
		cfg := h.registry.Get(kind)

		filter, err := h.scoper.ApplyRules(r.Context(), p, cfg, parseSelection(r))
		if err != nil {
			httputil.WriteInternalError(w, err)
			return
		}

		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", kind+".csv"))

		writer := csv.NewWriter(w)
		columns := cfg.ColumnNames()
		if err := writer.Write(columns); err != nil {
			return
		}

		for offset := 0; ; offset += search.MaxPageSize {
			records, err := h.store.List(r.Context(), cfg, store.ListQuery{
				Filter:   filter,
				Ordering: "id",
				Limit:    search.MaxPageSize,
				Offset:   offset,
			})
			if err != nil {
				h.logger.WithError(err).WithField("kind", kind).Error("export aborted")
				return
			}
			for _, rec := range records {
				row := make([]string, len(columns))
				for i, col := range columns {
					if v := rec[col]; v != nil {
						row[i] = fmt.Sprintf("%v", v)
					}
				}
				if err := writer.Write(row); err != nil {
					return
				}
			}
			if len(records) < search.MaxPageSize {
				break
			}
		}
		writer.Flush()
	}
}

// fkOptions serves FK dropdown options for one form field of this kind.
func (h *EntityHandlers) fkOptions(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := h.authorize(w, r, kind, access.ActionView)
		if !ok {
			return
		}
		cfg := h.registry.Get(kind)

		field := httputil.ParseQueryString(r, "field", "")
		if field == "" {
			httputil.WriteBadRequest(w, "field query parameter is required")
			return
		}
		targetKind, isFK := cfg.FKFields[field]
		if !isFK {
			httputil.WriteBadRequest(w, fmt.Sprintf("%s is not a foreign key field of %s", field, kind))
			return
		}

		force := httputil.ParseQueryBool(r, "refresh", false)
		options, err := h.cache.GetOptions(r.Context(), targetKind, p, force)
		if err != nil {
			h.logger.WithError(err).WithField("kind", targetKind).Error("fk options unavailable")
			httputil.WriteInternalError(w, err)
			return
		}
		httputil.WriteSuccess(w, fkOptionsResponse{
			Field:          field,
			Options:        options.Options,
			Count:          options.Count,
			FactoriesCount: options.FactoriesCount,
			CacheAge:       options.CacheAge().Seconds(),
		})
	}
}

// fkOptionsResponse is the options payload for one form field. cache_age
// is seconds since the underlying option set was built.
type fkOptionsResponse struct {
	Field          string           `json:"field"`
	Options        []fkcache.Option `json:"options"`
	Count          int              `json:"count"`
	FactoriesCount int              `json:"factories_count"`
	CacheAge       float64          `json:"cache_age"`
}

// afterWrite runs post-response maintenance: FK option invalidation and an
// incremental index update, detached from the request lifecycle.
func (h *EntityHandlers) afterWrite(r *http.Request, kind string, id int64, deleted bool) {
	if h.cache != nil {
		async.SafeGoNoError(r.Context(), afterWriteTimeout, "fkcache invalidate "+kind, func(ctx context.Context) {
			h.cache.Invalidate(ctx, kind)
		})
	}
	if h.indexer != nil {
		async.SafeGo(r.Context(), afterWriteTimeout, "index update "+kind, func(ctx context.Context) error {
			if deleted {
				return h.indexer.DeleteRecord(ctx, kind, id)
			}
			return h.indexer.IndexRecord(ctx, kind, id)
		})
	}
}

// parseRecord decodes the request body into a record restricted to the
// kind's configured columns. Unknown fields are dropped; id is never
// client-assigned.
func (h *EntityHandlers) parseRecord(r *http.Request, cfg *registry.EntityConfig) (store.Record, error) {
	var body map[string]interface{}
	if err := httputil.ParseJSON(r, &body); err != nil {
		return nil, errors.New("invalid JSON body")
	}

	record := make(store.Record, len(body))
	for _, col := range cfg.Columns {
		if col.Name == "id" {
			continue
		}
		if v, ok := body[col.Name]; ok {
			record[col.Name] = v
		}
	}
	return record, nil
}

// ownershipInScope reports whether an incoming record's ownership columns
// stay inside the caller's visibility. Without this check, add rights on a
// kind would let a caller insert rows into a tenant they cannot read back.
// With requireAll unset, columns the record does not carry are left to the
// row filter on the eventual write.
func ownershipInScope(filter scope.Filter, record store.Record, requireAll bool) bool {
	if filter.MatchNone {
		return false
	}
	for _, clause := range filter.Clauses {
		if _, present := record[clause.Column]; !present {
			if requireAll {
				return false
			}
			continue
		}
		single := scope.Filter{Clauses: []scope.Clause{clause}}
		if !single.Allows(record) {
			return false
		}
	}
	return true
}

// parseSelection reads the explicit scope selection from query parameters.
// Values are comma-separated ids per scope level; non-numeric entries are
// ignored.
func parseSelection(r *http.Request) scope.Selection {
	sel := scope.Selection{}
	for param, level := range map[string]string{"company_id": "company", "factory_id": "factory"} {
		raw := r.URL.Query().Get(param)
		if raw == "" {
			continue
		}
		var ids []int64
		for _, part := range strings.Split(raw, ",") {
			if id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64); err == nil {
				ids = append(ids, id)
			}
		}
		if len(ids) > 0 {
			sel[level] = ids
		}
	}
	if len(sel) == 0 {
		return nil
	}
	return sel
}
