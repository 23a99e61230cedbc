// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined
// here, except the logging/request-id keys owned by pkg/observability.
// This prevents typos, documents dependencies, and makes key usage
// discoverable.
package contextkeys

import (
	"context"

	"github.com/thermaleye/backoffice/pkg/access"
)

// Key is the type for context keys to prevent collisions
type Key string

const (
	// PrincipalKey contains *access.Principal
	// Set by: middleware.TokenAuth (pkg/middleware/auth.go), always;
	// unauthenticated requests carry the anonymous principal
	// Required by: entity handlers, search handlers, state handlers
	// Type: *access.Principal
	PrincipalKey Key = "principal"
)

// WithPrincipal adds the resolved principal to the context.
func WithPrincipal(ctx context.Context, p *access.Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, p)
}

// GetPrincipal retrieves the principal from context. A context that never
// passed through the auth middleware yields the anonymous principal, so
// callers always authorize against something.
func GetPrincipal(ctx context.Context) *access.Principal {
	if p, ok := ctx.Value(PrincipalKey).(*access.Principal); ok && p != nil {
		return p
	}
	return access.Anonymous()
}
