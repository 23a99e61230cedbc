package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/thermaleye/backoffice/pkg/access"
	"github.com/thermaleye/backoffice/pkg/contextkeys"
	"github.com/thermaleye/backoffice/pkg/httputil"
	"github.com/thermaleye/backoffice/pkg/observability"
	"github.com/thermaleye/backoffice/pkg/search"
)

// SearchHandlers serves entity search and index administration.
type SearchHandlers struct {
	service *search.Service
	indexer *search.Indexer
	access  *access.Service
	logger  *observability.Logger
}

// NewSearchHandlers creates the search handlers. indexer may be nil when
// the external engine is disabled; the reindex endpoint then answers 503.
func NewSearchHandlers(service *search.Service, indexer *search.Indexer, acc *access.Service, logger *observability.Logger) *SearchHandlers {
	return &SearchHandlers{service: service, indexer: indexer, access: acc, logger: logger}
}

// RegisterRoutes mounts the search routes.
func (h *SearchHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/search", h.Search).Methods(http.MethodGet)
	router.HandleFunc("/api/search/reindex/{kind}", h.Reindex).Methods(http.MethodPost)
}

// Search answers GET /api/search?view=<kind>&q=...&mode=...&approximate=...
func (h *SearchHandlers) Search(w http.ResponseWriter, r *http.Request) {
	kind := httputil.ParseQueryString(r, "view", "")
	if kind == "" {
		httputil.WriteBadRequest(w, "view query parameter is required")
		return
	}

	p := contextkeys.GetPrincipal(r.Context())
	if !h.access.CanAccess(r.Context(), kind, access.ActionView, p) {
		httputil.WriteForbidden(w, "view on "+kind+" is not permitted")
		return
	}

	result, err := h.service.Search(r.Context(), p, parseSearchQuery(r, kind))
	if errors.Is(err, search.ErrUnknownKind) {
		httputil.WriteNotFound(w, "unknown view "+kind)
		return
	}
	if errors.Is(err, search.ErrUnavailable) {
		h.logger.WithError(err).WithField("kind", kind).Error("both search paths failed")
		httputil.WriteServiceUnavailable(w, "search is temporarily unavailable")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, result)
}

// parseSearchQuery reads the search parameters from the request. Fuzzy
// matching answers to both spellings, approximate and approx.
func parseSearchQuery(r *http.Request, kind string) search.Query {
	page, _ := httputil.ParseQueryInt(r, "page", 1)
	pageSize, _ := httputil.ParseQueryInt(r, "page_size", search.DefaultPageSize)
	return search.Query{
		Kind:      kind,
		Text:      httputil.ParseQueryString(r, "q", ""),
		Advanced:  httputil.ParseQueryString(r, "mode", "simple") == "advanced",
		Approx:    httputil.ParseQueryBool(r, "approx", false) || httputil.ParseQueryBool(r, "approximate", false),
		Ordering:  httputil.ParseQueryString(r, "ordering", ""),
		Page:      page,
		PageSize:  pageSize,
		Selection: parseSelection(r),
	}
}

// Reindex rebuilds one kind's index from primary storage.
func (h *SearchHandlers) Reindex(w http.ResponseWriter, r *http.Request) {
	p := contextkeys.GetPrincipal(r.Context())
	if !p.Authenticated || (!p.IsAdmin && !p.IsSuperuser) {
		httputil.WriteForbidden(w, "reindexing requires an admin principal")
		return
	}
	if h.indexer == nil {
		httputil.WriteServiceUnavailable(w, "search engine is disabled")
		return
	}

	kind := mux.Vars(r)["kind"]
	indexed, err := h.indexer.ReindexKind(r.Context(), kind)
	if errors.Is(err, search.ErrUnknownKind) {
		httputil.WriteNotFound(w, "unknown view "+kind)
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("kind", kind).Error("reindex failed")
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"kind": kind, "indexed": indexed})
}
