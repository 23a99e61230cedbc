package api

import (
	"net/http"
	"sort"

	"github.com/thermaleye/backoffice/pkg/access"
	"github.com/thermaleye/backoffice/pkg/registry"
)

// Route is one materialized entity endpoint. The full route table is a pure
// function of the entity configuration registry, so it can be enumerated
// without starting a server.
type Route struct {
	Name   string
	Method string
	Path   string
	Kind   string
	Action access.Action
}

// BuildRoutes materializes the per-kind entity routes from the registry.
// Every registered kind gets the same endpoint family; which of them a
// caller may actually use is the access service's decision at request time,
// so route existence leaks nothing.
func BuildRoutes(reg *registry.Registry) []Route {
	var routes []Route
	for _, kind := range reg.Kinds() {
		base := "/api/" + kind
		item := base + "/{id:[0-9]+}"
		routes = append(routes,
			Route{Name: kind + "_list", Method: http.MethodGet, Path: base, Kind: kind, Action: access.ActionView},
			Route{Name: kind + "_get", Method: http.MethodGet, Path: item, Kind: kind, Action: access.ActionView},
			Route{Name: kind + "_create", Method: http.MethodPost, Path: base, Kind: kind, Action: access.ActionAdd},
			Route{Name: kind + "_update", Method: http.MethodPut, Path: item, Kind: kind, Action: access.ActionEdit},
			Route{Name: kind + "_patch", Method: http.MethodPatch, Path: item, Kind: kind, Action: access.ActionEdit},
			Route{Name: kind + "_delete", Method: http.MethodDelete, Path: item, Kind: kind, Action: access.ActionDelete},
			Route{Name: kind + "_export", Method: http.MethodGet, Path: base + "/export", Kind: kind, Action: access.ActionExport},
			Route{Name: kind + "_fk_options", Method: http.MethodGet, Path: base + "/fk-options", Kind: kind, Action: access.ActionView},
		)
	}
	sort.Slice(routes, func(i, j int) bool { return routes[i].Name < routes[j].Name })
	return routes
}
