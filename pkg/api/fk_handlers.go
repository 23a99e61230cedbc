package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/thermaleye/backoffice/pkg/contextkeys"
	"github.com/thermaleye/backoffice/pkg/fkcache"
	"github.com/thermaleye/backoffice/pkg/httputil"
	"github.com/thermaleye/backoffice/pkg/observability"
	"github.com/thermaleye/backoffice/pkg/store"
)

// FKAdminHandlers exposes the FK options cache maintenance operations:
// forced rebuilds, per-user scope rebuilds and the durable snapshot view.
type FKAdminHandlers struct {
	cache  *fkcache.Service
	store  *store.Store
	logger *observability.Logger
}

// NewFKAdminHandlers creates the FK cache admin handlers.
func NewFKAdminHandlers(cache *fkcache.Service, st *store.Store, logger *observability.Logger) *FKAdminHandlers {
	return &FKAdminHandlers{cache: cache, store: st, logger: logger}
}

// RegisterRoutes mounts the admin routes.
func (h *FKAdminHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/fk-options/rebuild", h.Rebuild).Methods(http.MethodPost)
	router.HandleFunc("/api/fk-options/rebuild-scope", h.RebuildScope).Methods(http.MethodPost)
	router.HandleFunc("/api/fk-options/snapshot", h.Snapshot).Methods(http.MethodGet)
}

// requireAdmin gates cache maintenance to admin and superuser callers.
func (h *FKAdminHandlers) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	p := contextkeys.GetPrincipal(r.Context())
	if !p.Authenticated || (!p.IsAdmin && !p.IsSuperuser) {
		httputil.WriteForbidden(w, "cache maintenance requires an admin principal")
		return false
	}
	return true
}

// Rebuild forces a refresh of the global option set behind one form
// field.
func (h *FKAdminHandlers) Rebuild(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	field := httputil.ParseQueryString(r, "field", "")
	if field == "" {
		httputil.WriteBadRequest(w, "field query parameter is required")
		return
	}
	kind, ok := h.cache.KindForField(field)
	if !ok {
		httputil.WriteBadRequest(w, field+" is not a known foreign key field")
		return
	}

	if _, err := h.cache.GetOptions(r.Context(), kind, nil, true); err != nil {
		h.logger.WithError(err).WithField("kind", kind).Error("FK option rebuild failed")
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]string{"status": "rebuilt", "field": field, "kind": kind})
}

type rebuildScopeRequest struct {
	UserID int64 `json:"user_id"`
}

// RebuildScope rebuilds the scoped option sets of every FK-label-bearing
// kind for one principal, typically after company memberships changed.
// Without a user_id in the body it acts on the caller themselves.
func (h *FKAdminHandlers) RebuildScope(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	var body rebuildScopeRequest
	if r.ContentLength != 0 {
		if err := httputil.ParseJSON(r, &body); err != nil {
			httputil.WriteBadRequest(w, "invalid JSON body")
			return
		}
	}

	principal := contextkeys.GetPrincipal(r.Context())
	if body.UserID > 0 {
		var err error
		principal, err = h.store.PrincipalByID(r.Context(), body.UserID)
		if errors.Is(err, store.ErrNotFound) {
			httputil.WriteNotFound(w, "user not found")
			return
		}
		if err != nil {
			httputil.WriteInternalError(w, err)
			return
		}
	}

	if err := h.cache.RebuildScope(r.Context(), principal); err != nil {
		h.logger.WithError(err).WithField("user_id", principal.ID).Error("scoped FK option rebuild failed")
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"status": "rebuilt", "user_id": principal.ID})
}

// Snapshot serves the durable global option snapshot for one kind. It
// answers even when redis is down, which is the point.
func (h *FKAdminHandlers) Snapshot(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	kind := httputil.ParseQueryString(r, "kind", "")
	if kind == "" {
		httputil.WriteBadRequest(w, "kind query parameter is required")
		return
	}

	snapshot, err := h.cache.GetSnapshot(r.Context(), kind)
	if errors.Is(err, fkcache.ErrNoSnapshot) {
		httputil.WriteNotFound(w, "no snapshot for kind")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, snapshot)
}
