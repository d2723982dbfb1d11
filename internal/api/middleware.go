package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/inflatable-cookie/convergence-sub001/internal/metrics"
)

// withMetrics records one metrics.ObserveRequest call per served
// request, keyed by the matched route template so cardinality stays
// bounded regardless of how many path variables a route has.
func (app *App) withMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		route := routeTemplate(r)
		var match mux.RouteMatch
		if app.router.Match(r, &match) && match.Route != nil {
			if tpl, err := match.Route.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		metrics.ObserveRequest(r.Method, route, sw.status)
	})
}
