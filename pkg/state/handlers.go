package state

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/thermaleye/backoffice/pkg/contextkeys"
	"github.com/thermaleye/backoffice/pkg/httputil"
	"github.com/thermaleye/backoffice/pkg/observability"
)

// Handlers exposes saved state over HTTP. All routes require an
// authenticated principal; saved state is personal by definition.
type Handlers struct {
	store  *Store
	logger *observability.Logger
}

// NewHandlers creates the state handlers.
func NewHandlers(store *Store, logger *observability.Logger) *Handlers {
	return &Handlers{store: store, logger: logger}
}

// Register mounts the state routes on the router.
func (h *Handlers) Register(router *mux.Router) {
	router.HandleFunc("/api/state", h.List).Methods(http.MethodGet)
	router.HandleFunc("/api/state/{key:.+}", h.Get).Methods(http.MethodGet)
	router.HandleFunc("/api/state/{key:.+}", h.Save).Methods(http.MethodPut)
	router.HandleFunc("/api/state/{key:.+}", h.Delete).Methods(http.MethodDelete)
}

type savePayload struct {
	Payload json.RawMessage `json:"payload"`
	Shared  bool            `json:"shared"`
}

// Get serves one state by key.
func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) {
	p := contextkeys.GetPrincipal(r.Context())
	if !p.Authenticated {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	key := mux.Vars(r)["key"]
	st, err := h.store.Get(r.Context(), p.ID, key)
	if errors.Is(err, ErrNotFound) {
		httputil.WriteNotFound(w, "no saved state for key")
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("saved state read failed")
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, st)
}

// Save upserts one state by key.
func (h *Handlers) Save(w http.ResponseWriter, r *http.Request) {
	p := contextkeys.GetPrincipal(r.Context())
	if !p.Authenticated {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var body savePayload
	if err := httputil.ParseJSON(r, &body); err != nil {
		httputil.WriteBadRequest(w, "invalid JSON body")
		return
	}
	if len(body.Payload) == 0 {
		httputil.WriteBadRequest(w, "payload is required")
		return
	}

	key := mux.Vars(r)["key"]
	st, err := h.store.Save(r.Context(), p.ID, key, body.Payload, body.Shared)
	if err != nil {
		h.logger.WithError(err).Error("saved state write failed")
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, st)
}

// Delete removes one of the caller's own states.
func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	p := contextkeys.GetPrincipal(r.Context())
	if !p.Authenticated {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	key := mux.Vars(r)["key"]
	err := h.store.Delete(r.Context(), p.ID, key)
	if errors.Is(err, ErrNotFound) {
		httputil.WriteNotFound(w, "no saved state for key")
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("saved state delete failed")
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// List serves the caller's visible states under an optional key prefix.
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	p := contextkeys.GetPrincipal(r.Context())
	if !p.Authenticated {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	prefix := httputil.ParseQueryString(r, "prefix", "")
	states, err := h.store.List(r.Context(), p.ID, prefix)
	if err != nil {
		h.logger.WithError(err).Error("saved state list failed")
		httputil.WriteInternalError(w, err)
		return
	}
	if states == nil {
		states = []*SavedState{}
	}
	httputil.WriteSuccess(w, states)
}
