package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/thermaleye/backoffice/pkg/access"
	"github.com/thermaleye/backoffice/pkg/contextkeys"
	"github.com/thermaleye/backoffice/pkg/httputil"
)

// AccessHandlers exposes the batch access matrix used by clients to build
// menus and toggle action buttons without probing every endpoint.
type AccessHandlers struct {
	access *access.Service
}

// NewAccessHandlers creates the access handlers.
func NewAccessHandlers(acc *access.Service) *AccessHandlers {
	return &AccessHandlers{access: acc}
}

// RegisterRoutes mounts the access routes.
func (h *AccessHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/access-matrix", h.Matrix).Methods(http.MethodGet)
}

// Matrix answers GET /api/access-matrix?kinds=a,b with the caller's
// per-kind, per-action grants. Without kinds it covers every registered
// kind. The matrix is computed for the caller, so no extra authorization
// applies; an anonymous caller simply gets a mostly-false matrix.
func (h *AccessHandlers) Matrix(w http.ResponseWriter, r *http.Request) {
	p := contextkeys.GetPrincipal(r.Context())

	var kinds []string
	if raw := httputil.ParseQueryString(r, "kinds", ""); raw != "" {
		for _, kind := range strings.Split(raw, ",") {
			if kind = strings.TrimSpace(kind); kind != "" {
				kinds = append(kinds, kind)
			}
		}
	}

	matrix := h.access.AccessMatrix(r.Context(), p, kinds...)
	httputil.WriteSuccess(w, matrix)
}
