// Package api provides the HTTP REST API server for the Thermal Eye back office.
//
// # Overview
//
// This package implements the HTTP layer over the generic entity machinery:
// every endpoint family is materialized from the entity configuration
// registry rather than hand-written per kind. Adding an entity kind to the
// views matrix yields its full endpoint set with authorization, tenant
// scoping, FK option lookups and search already wired.
//
// # Architecture
//
// The API is built on gorilla/mux and organized into handler groups:
//
//   - Entity CRUD: list/get/create/update/delete/export per registered kind
//   - FK Options: scoped dropdown option sets with cache administration
//   - Search: dual-path entity search (engine or database fallback)
//   - Access Matrix: batch per-kind, per-action grants for menu building
//   - Saved State: per-user UI state snapshots (pkg/state)
//
// # Route Materialization
//
// BuildRoutes derives the route table from the registry:
//
//	GET    /api/{kind}               - List records (scoped, paginated)
//	GET    /api/{kind}/{id}          - Get one record (scoped)
//	POST   /api/{kind}               - Create record
//	PUT    /api/{kind}/{id}          - Update record (scoped)
//	PATCH  /api/{kind}/{id}          - Update record (scoped)
//	DELETE /api/{kind}/{id}          - Delete record (scoped, soft if configured)
//	GET    /api/{kind}/export        - CSV export (scoped)
//	GET    /api/{kind}/fk-options    - FK dropdown options for a form field
//
// Fixed service routes:
//
//	GET    /api/routes                     - The materialized route table
//	GET    /api/access-matrix              - Caller's access matrix
//	GET    /api/search                     - Entity search (?view=<kind>&q=...)
//	POST   /api/search/reindex/{kind}      - Rebuild one index (admin)
//	POST   /api/fk-options/rebuild         - Force a rebuild for one FK field (admin)
//	POST   /api/fk-options/rebuild-scope   - Rebuild a principal's options (admin)
//	GET    /api/fk-options/snapshot        - Durable option snapshot (admin)
//	GET    /api/state/{key}                - Saved UI state (authenticated)
//
// # Authorization
//
// Every entity request is authorized twice: the access service decides
// whether the principal's role may perform the action on the kind at all
// (403 on denial), and the scoping engine then narrows the queryable set to
// the records the principal can see. An out-of-scope record is
// indistinguishable from a missing one (404).
//
// Requests without a valid API token run as the anonymous principal; routes
// exist for every kind regardless, so the route table leaks nothing.
//
// # Usage Example
//
//	server := api.NewServer(api.Deps{
//		Registry: reg,
//		Access:   accessService,
//		Scoper:   scopeEngine,
//		Store:    entityStore,
//		Auth:     middleware.NewTokenAuth(entityStore, logger),
//		Logger:   logger,
//	})
//	http.ListenAndServe(":8080", server)
//
// # Design Decisions
//
// Modular Handler Design: feature handlers (SearchHandlers, FKAdminHandlers,
// state.Handlers) register themselves on the router. This keeps concerns
// separated and makes testing easier.
//
// Optional Features: cache, search and state are only mounted when their
// dependencies are provided, so the server runs in a reduced mode for
// development and tests.
//
// Post-Write Maintenance: FK option invalidation and incremental index
// updates run detached from the request (pkg/async), so a slow cache or
// engine never delays the write response.
//
// # Related Packages
//
//   - pkg/registry: Entity configuration driving route materialization
//   - pkg/access: Action-level authorization
//   - pkg/scope: Tenant visibility predicates
//   - pkg/store: Generic SQL persistence
//   - pkg/fkcache: FK dropdown option caching
//   - pkg/search: Dual-path entity search
package api
