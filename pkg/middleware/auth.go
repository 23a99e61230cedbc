package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/thermaleye/backoffice/pkg/access"
	"github.com/thermaleye/backoffice/pkg/contextkeys"
	"github.com/thermaleye/backoffice/pkg/observability"
	"github.com/thermaleye/backoffice/pkg/store"
)

// TokenAuth resolves the request principal from an API token. Every request
// gets a principal: an absent, unknown or inactive token resolves to the
// anonymous principal instead of a 401, because anonymous is a policy role
// like any other and endpoint handlers authorize per action.
type TokenAuth struct {
	store  *store.Store
	logger *observability.Logger
}

// NewTokenAuth creates the auth middleware.
func NewTokenAuth(st *store.Store, logger *observability.Logger) *TokenAuth {
	return &TokenAuth{store: st, logger: logger}
}

// Handler wraps an HTTP handler with principal resolution.
func (m *TokenAuth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := access.Anonymous()

		if token := extractToken(r); token != "" {
			p, err := m.store.PrincipalByToken(r.Context(), token)
			switch {
			case err == nil:
				principal = p
			case errors.Is(err, store.ErrNotFound):
				// Unknown token, continue anonymous.
			default:
				// Resolver failure also stays anonymous: fail closed
				// on identity, not open.
				m.logger.WithError(err).Warn("principal resolution failed")
			}
		}

		ctx := contextkeys.WithPrincipal(r.Context(), principal)
		if principal.Authenticated {
			ctx = observability.WithUserID(ctx, strconv.FormatInt(principal.ID, 10))
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractToken pulls the API token from "Authorization: Bearer <token>" or
// the X-API-Token header.
func extractToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return strings.TrimSpace(r.Header.Get("X-API-Token"))
}
