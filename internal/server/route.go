package server

import (
	"net/http"

	"go.uber.org/fx"
)

// Route mounts Handler on the server mux under Pattern, a net/http
// pattern such as "/health".
type Route struct {
	Pattern string
	Handler http.Handler
}

type RouteResult struct {
	fx.Out

	Route Route `group:"routes"`
}

// AsRoute contributes handler to the routes of the server module.
func AsRoute(pattern string, handler http.Handler) RouteResult {
	return RouteResult{Route: Route{Pattern: pattern, Handler: handler}}
}
