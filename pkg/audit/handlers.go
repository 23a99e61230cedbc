package audit

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/thermaleye/backoffice/pkg/contextkeys"
	"github.com/thermaleye/backoffice/pkg/httputil"
)

// Handlers exposes the denial trail for security review.
type Handlers struct {
	sink *DBSink
}

// NewHandlers creates the audit handlers.
func NewHandlers(sink *DBSink) *Handlers {
	return &Handlers{sink: sink}
}

// RegisterRoutes mounts the audit routes.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/audit/denials", h.Denials).Methods(http.MethodGet)
}

// Denials serves the newest access denials, admin only.
func (h *Handlers) Denials(w http.ResponseWriter, r *http.Request) {
	p := contextkeys.GetPrincipal(r.Context())
	if !p.Authenticated || (!p.IsAdmin && !p.IsSuperuser) {
		httputil.WriteForbidden(w, "audit review requires an admin principal")
		return
	}

	kind := httputil.ParseQueryString(r, "kind", "")
	limit, _ := httputil.ParseQueryInt(r, "limit", 100)

	denials, err := h.sink.RecentDenials(r.Context(), kind, limit)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if denials == nil {
		denials = []Denial{}
	}
	httputil.WriteSuccess(w, denials)
}
