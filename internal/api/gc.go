package api

import (
	"net/http"

	"github.com/inflatable-cookie/convergence-sub001/internal/gc"
	"github.com/inflatable-cookie/convergence-sub001/internal/identity"
	"github.com/inflatable-cookie/convergence-sub001/internal/metrics"
	"github.com/inflatable-cookie/convergence-sub001/internal/ops"
)

type runGCRequest struct {
	DryRun                bool `json:"dry_run"`
	PruneMetadata         bool `json:"prune_metadata"`
	PruneReleasesKeepLast int  `json:"prune_releases_keep_last"`
}

// handleRunGC runs one garbage collection pass (§6 POST
// /repos/:id/gc), owner/admin-only.
func (app *App) handleRunGC(w http.ResponseWriter, r *http.Request, subject identity.Subject) {
	rs, err := app.repoFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req runGCRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	result, err := ops.RunGC(rs, subject, gc.Options{
		DryRun:                req.DryRun,
		PruneMetadata:         req.PruneMetadata,
		PruneReleasesKeepLast: req.PruneReleasesKeepLast,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	metrics.ObserveGCRun(result.DryRun, map[string]int{
		"blobs":     result.Blobs.Deleted,
		"manifests": result.Manifests.Deleted,
		"recipes":   result.Recipes.Deleted,
		"snaps":     result.Snaps.Deleted,
		"bundles":   result.Bundles.Deleted,
		"releases":  result.Releases.Deleted,
	})
	writeJSON(w, http.StatusOK, result)
}
