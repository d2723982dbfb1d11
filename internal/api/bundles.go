package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/inflatable-cookie/convergence-sub001/internal/apierr"
	"github.com/inflatable-cookie/convergence-sub001/internal/identity"
	"github.com/inflatable-cookie/convergence-sub001/internal/model"
	"github.com/inflatable-cookie/convergence-sub001/internal/objectid"
	"github.com/inflatable-cookie/convergence-sub001/internal/ops"
)

type createPublicationRequest struct {
	SnapID       objectid.ID `json:"snap_id"`
	Scope        string      `json:"scope"`
	Gate         string      `json:"gate"`
	MetadataOnly bool        `json:"metadata_only"`
}

// handleListPublications lists publications visible to subject (§6 GET
// /repos/:id/publications).
func (app *App) handleListPublications(w http.ResponseWriter, r *http.Request, subject identity.Subject) {
	rs, err := app.repoFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var out []*model.Publication
	viewErr := rs.View(func(repo *model.Repo) error {
		if !identity.CanRead(repo, subject) {
			return apierr.Forbidden("not authorized to read this repo")
		}
		out = repo.Publications
		return nil
	})
	if viewErr != nil {
		writeError(w, viewErr)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleCreatePublication binds a snap to a (scope, gate) coordinate
// (§6 POST /repos/:id/publications).
func (app *App) handleCreatePublication(w http.ResponseWriter, r *http.Request, subject identity.Subject) {
	rs, err := app.repoFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req createPublicationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	pub, err := ops.CreatePublication(rs, subject, ops.CreatePublicationInput{
		SnapID:       req.SnapID,
		Scope:        req.Scope,
		Gate:         req.Gate,
		MetadataOnly: req.MetadataOnly,
	}, time.Now(), app.notify)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, pub)
}

type createBundleRequest struct {
	Scope          string   `json:"scope"`
	Gate           string   `json:"gate"`
	PublicationIDs []string `json:"publication_ids"`
}

// handleListBundles lists bundles visible to subject (§6 GET
// /repos/:id/bundles).
func (app *App) handleListBundles(w http.ResponseWriter, r *http.Request, subject identity.Subject) {
	rs, err := app.repoFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var out []*model.Bundle
	viewErr := rs.View(func(repo *model.Repo) error {
		if !identity.CanRead(repo, subject) {
			return apierr.Forbidden("not authorized to read this repo")
		}
		out = repo.Bundles
		return nil
	})
	if viewErr != nil {
		writeError(w, viewErr)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleCreateBundle merges input publications into a new bundle (§6
// POST /repos/:id/bundles).
func (app *App) handleCreateBundle(w http.ResponseWriter, r *http.Request, subject identity.Subject) {
	rs, err := app.repoFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req createBundleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	bundle, err := ops.CreateBundle(rs, subject, req.Scope, req.Gate, req.PublicationIDs, time.Now(), app.notify)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, bundle)
}

// handleGetBundle returns one bundle by id (§6 GET
// /repos/:id/bundles/:bundle).
func (app *App) handleGetBundle(w http.ResponseWriter, r *http.Request, subject identity.Subject) {
	rs, err := app.repoFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	bundleID := mux.Vars(r)["bundle"]
	var out *model.Bundle
	viewErr := rs.View(func(repo *model.Repo) error {
		if !identity.CanRead(repo, subject) {
			return apierr.Forbidden("not authorized to read this repo")
		}
		for _, b := range repo.Bundles {
			if b.ID == bundleID {
				out = b
				return nil
			}
		}
		return apierr.NotFound("bundle %s not found", bundleID)
	})
	if viewErr != nil {
		writeError(w, viewErr)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleApproveBundle records subject's approval (§6 POST
// /repos/:id/bundles/:bundle/approve).
func (app *App) handleApproveBundle(w http.ResponseWriter, r *http.Request, subject identity.Subject) {
	rs, err := app.repoFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	bundleID := mux.Vars(r)["bundle"]
	bundle, err := ops.ApproveBundle(rs, subject, bundleID, time.Now(), app.notify)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

// handlePinBundle adds bundle to the GC retention set (§6 POST
// /repos/:id/bundles/:bundle/pin).
func (app *App) handlePinBundle(w http.ResponseWriter, r *http.Request, subject identity.Subject) {
	rs, err := app.repoFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	bundleID := mux.Vars(r)["bundle"]
	if err := ops.PinBundle(rs, subject, bundleID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "pinned"})
}

// handleUnpinBundle removes bundle from the GC retention set (§6 POST
// /repos/:id/bundles/:bundle/unpin).
func (app *App) handleUnpinBundle(w http.ResponseWriter, r *http.Request, subject identity.Subject) {
	rs, err := app.repoFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	bundleID := mux.Vars(r)["bundle"]
	if err := ops.UnpinBundle(rs, subject, bundleID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "unpinned"})
}

// handleListPins lists the repo's pinned bundle ids (§6 GET
// /repos/:id/pins).
func (app *App) handleListPins(w http.ResponseWriter, r *http.Request, subject identity.Subject) {
	rs, err := app.repoFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var out []string
	viewErr := rs.View(func(repo *model.Repo) error {
		if !identity.CanRead(repo, subject) {
			return apierr.Forbidden("not authorized to read this repo")
		}
		out = handleSet(repo.PinnedBundles)
		return nil
	})
	if viewErr != nil {
		writeError(w, viewErr)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type createPromotionRequest struct {
	BundleID string `json:"bundle_id"`
	ToGate   string `json:"to_gate"`
}

// handleListPromotions lists the repo's promotion log (§6 GET
// /repos/:id/promotions).
func (app *App) handleListPromotions(w http.ResponseWriter, r *http.Request, subject identity.Subject) {
	rs, err := app.repoFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var out []*model.Promotion
	viewErr := rs.View(func(repo *model.Repo) error {
		if !identity.CanRead(repo, subject) {
			return apierr.Forbidden("not authorized to read this repo")
		}
		out = repo.Promotions
		return nil
	})
	if viewErr != nil {
		writeError(w, viewErr)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleCreatePromotion advances a bundle across a gate edge (§6 POST
// /repos/:id/promotions).
func (app *App) handleCreatePromotion(w http.ResponseWriter, r *http.Request, subject identity.Subject) {
	rs, err := app.repoFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req createPromotionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	promo, err := ops.CreatePromotion(rs, subject, req.BundleID, req.ToGate, time.Now(), app.notify)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, promo)
}

// handleGetPromotionState returns the per-(scope, gate) promotion
// pointer table (§6 GET /repos/:id/promotion-state).
func (app *App) handleGetPromotionState(w http.ResponseWriter, r *http.Request, subject identity.Subject) {
	rs, err := app.repoFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var out map[string]map[string]string
	viewErr := rs.View(func(repo *model.Repo) error {
		if !identity.CanRead(repo, subject) {
			return apierr.Forbidden("not authorized to read this repo")
		}
		out = repo.PromotionState
		return nil
	})
	if viewErr != nil {
		writeError(w, viewErr)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type createReleaseRequest struct {
	Channel  string `json:"channel"`
	BundleID string `json:"bundle_id"`
	Notes    string `json:"notes"`
}

// handleListReleases lists the repo's release log (§6 GET
// /repos/:id/releases).
func (app *App) handleListReleases(w http.ResponseWriter, r *http.Request, subject identity.Subject) {
	rs, err := app.repoFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var out []*model.Release
	viewErr := rs.View(func(repo *model.Repo) error {
		if !identity.CanRead(repo, subject) {
			return apierr.Forbidden("not authorized to read this repo")
		}
		out = repo.Releases
		return nil
	})
	if viewErr != nil {
		writeError(w, viewErr)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleCreateRelease points a channel at a bundle (§6 POST
// /repos/:id/releases).
func (app *App) handleCreateRelease(w http.ResponseWriter, r *http.Request, subject identity.Subject) {
	rs, err := app.repoFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req createReleaseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	rel, err := ops.CreateRelease(rs, subject, req.Channel, req.BundleID, req.Notes, time.Now(), app.notify)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rel)
}

// handleGetChannelHead returns a channel's most recent release (§6 GET
// /repos/:id/releases/:channel).
func (app *App) handleGetChannelHead(w http.ResponseWriter, r *http.Request, subject identity.Subject) {
	rs, err := app.repoFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	channel := mux.Vars(r)["channel"]
	var out *model.Release
	viewErr := rs.View(func(repo *model.Repo) error {
		if !identity.CanRead(repo, subject) {
			return apierr.Forbidden("not authorized to read this repo")
		}
		head, ok := ops.ChannelHead(repo, channel)
		if !ok {
			return apierr.NotFound("channel %q has no releases", channel)
		}
		out = head
		return nil
	})
	if viewErr != nil {
		writeError(w, viewErr)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
