// Package metrics wires the server's request and GC counters into
// docker/go-metrics, the same Prometheus-namespace library the teacher
// uses for its storage/middleware namespaces
// (distribution/metrics/prometheus.go), generalized here to this
// system's own namespace ("converge") and its own counters.
package metrics

import (
	"net/http"

	gometrics "github.com/docker/go-metrics"
)

// NamespacePrefix is the Prometheus namespace every metric below lives
// under.
const NamespacePrefix = "converge"

// HTTPNamespace covers request counters, one per (method, route, code).
var HTTPNamespace = gometrics.NewNamespace(NamespacePrefix, "http", nil)

// GCNamespace covers garbage-collection run counters and the
// most-recent-run deleted-objects gauge.
var GCNamespace = gometrics.NewNamespace(NamespacePrefix, "gc", nil)

var (
	requestsTotal = HTTPNamespace.NewLabeledCounter("requests_total", "Total HTTP requests served", "method", "route", "code")
	gcRunsTotal   = GCNamespace.NewLabeledCounter("runs_total", "Total garbage collection runs", "dry_run")
	gcDeletedLast = GCNamespace.NewLabeledGauge("deleted_last_run", "Objects deleted by category in the most recent GC run", gometrics.Total, "category")
)

func init() {
	gometrics.Register(HTTPNamespace)
	gometrics.Register(GCNamespace)
}

// ObserveRequest records one served HTTP request.
func ObserveRequest(method, route string, code int) {
	requestsTotal.WithValues(method, route, http.StatusText(code)).Inc(1)
}

// ObserveGCRun records a completed GC run and the number of objects
// deleted per category, so an operator can watch sweep volume over
// time on /debug/metrics without parsing server logs.
func ObserveGCRun(dryRun bool, deletedByCategory map[string]int) {
	gcRunsTotal.WithValues(boolLabel(dryRun)).Inc(1)
	for category, n := range deletedByCategory {
		gcDeletedLast.WithValues(category).Set(float64(n))
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// Handler exposes the registered namespaces in Prometheus text format,
// mounted at /debug/metrics by the HTTP surface (§6).
func Handler() http.Handler {
	return gometrics.Handler()
}
