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

// handleListLanes lists the repo's lanes and their membership.
func (app *App) handleListLanes(w http.ResponseWriter, r *http.Request, subject identity.Subject) {
	rs, err := app.repoFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var out map[string]*model.Lane
	viewErr := rs.View(func(repo *model.Repo) error {
		if !identity.CanRead(repo, subject) {
			return apierr.Forbidden("not authorized to read this repo")
		}
		out = repo.Lanes
		return nil
	})
	if viewErr != nil {
		writeError(w, viewErr)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type createLaneRequest struct {
	ID string `json:"id"`
}

// handleCreateLane creates an empty lane (§6 POST /repos/:id/lanes).
func (app *App) handleCreateLane(w http.ResponseWriter, r *http.Request, subject identity.Subject) {
	rs, err := app.repoFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req createLaneRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	lane, err := ops.CreateLane(rs, subject, req.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, lane)
}

type laneMemberRequest struct {
	Handle string `json:"handle"`
}

// handleAddLaneMember adds a member to a lane (§6 POST
// /repos/:id/lanes/:lane/members).
func (app *App) handleAddLaneMember(w http.ResponseWriter, r *http.Request, subject identity.Subject) {
	rs, err := app.repoFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req laneMemberRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	userID := ""
	if u, ok := app.identity.UserByHandle(req.Handle); ok {
		userID = u.ID
	}
	lane := mux.Vars(r)["lane"]
	if err := ops.AddLaneMember(rs, subject, lane, req.Handle, userID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleRemoveLaneMember removes a member from a lane (§6 DELETE
// /repos/:id/lanes/:lane/members/:handle).
func (app *App) handleRemoveLaneMember(w http.ResponseWriter, r *http.Request, subject identity.Subject) {
	rs, err := app.repoFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	vars := mux.Vars(r)
	if err := ops.RemoveLaneMember(rs, subject, vars["lane"], vars["handle"]); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type updateLaneHeadRequest struct {
	SnapID   objectid.ID `json:"snap_id"`
	ClientID string      `json:"client_id"`
}

// handleUpdateOwnLaneHead pushes the caller's own new head (§6 POST
// /repos/:id/lanes/:lane/heads/me).
func (app *App) handleUpdateOwnLaneHead(w http.ResponseWriter, r *http.Request, subject identity.Subject) {
	rs, err := app.repoFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req updateLaneHeadRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	lane := mux.Vars(r)["lane"]
	if err := ops.UpdateLaneHead(rs, subject, lane, req.SnapID, req.ClientID, time.Now()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleGetLaneHead reads a handle's current lane head (§6 GET
// /repos/:id/lanes/:lane/heads/:user).
func (app *App) handleGetLaneHead(w http.ResponseWriter, r *http.Request, subject identity.Subject) {
	rs, err := app.repoFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	vars := mux.Vars(r)
	head, err := ops.LaneHead(rs, subject, vars["lane"], vars["user"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, head)
}
