// Package middleware provides HTTP middleware for principal resolution and rate limiting.
//
// # Middleware Components
//
// TokenAuth: API-token principal resolution
//
//	auth := middleware.NewTokenAuth(store, logger)
//	router.Use(auth.Handler)
//	// Resolves Bearer/X-API-Token to *access.Principal; absent or
//	// invalid tokens carry the anonymous principal, never a 401
//
// RateLimitMiddleware: Redis-backed rate limiting
//
//	rl := middleware.NewRateLimitMiddleware(redisClient, logger)
//	router.Use(rl.Handler)
//
// # Rate Limiting
//
// Anonymous (by client IP): 100 req/min
// Authenticated (by user id): 1000 req/min
//
// Redis failures fail open. Authorization is per-action in the handlers,
// not here; this layer only identifies and throttles.
//
// # Related Packages
//
//   - pkg/contextkeys: Principal context key
//   - pkg/store: Token to principal lookup
//   - pkg/access: Action authorization
package middleware
