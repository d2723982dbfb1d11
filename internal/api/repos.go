package api

import (
	"net/http"
	"sort"

	"github.com/gorilla/mux"

	"github.com/inflatable-cookie/convergence-sub001/internal/apierr"
	"github.com/inflatable-cookie/convergence-sub001/internal/gates"
	"github.com/inflatable-cookie/convergence-sub001/internal/identity"
	"github.com/inflatable-cookie/convergence-sub001/internal/model"
	"github.com/inflatable-cookie/convergence-sub001/internal/ops"
	"github.com/inflatable-cookie/convergence-sub001/internal/repostate"
	"github.com/inflatable-cookie/convergence-sub001/internal/store"
)

type createRepoRequest struct {
	ID string `json:"id"`
}

// handleCreateRepo provisions a brand new repo at id, seeded with
// DefaultRepoState (§4.E), owned by the creating subject. Repo ids
// share the gate/scope id syntax (§6).
func (app *App) handleCreateRepo(w http.ResponseWriter, r *http.Request, subject identity.Subject) {
	var req createRepoRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if !gates.ValidID(req.ID) {
		writeError(w, apierr.Validation("invalid repo id %q", req.ID))
		return
	}

	st := store.New(app.repoDir(req.ID), app.cache)
	rs, err := app.repos.Create(st, req.ID, subject.Handle)
	if err != nil {
		writeError(w, err)
		return
	}

	var out *model.Repo
	_ = rs.View(func(repo *model.Repo) error { out = repo; return nil })
	writeJSON(w, http.StatusCreated, out)
}

// handleListRepos lists the ids of every repo the subject can read.
func (app *App) handleListRepos(w http.ResponseWriter, r *http.Request, subject identity.Subject) {
	var visible []string
	for _, id := range app.repos.IDs() {
		rs, err := app.repos.Get(id)
		if err != nil {
			continue
		}
		_ = rs.View(func(repo *model.Repo) error {
			if identity.CanRead(repo, subject) {
				visible = append(visible, id)
			}
			return nil
		})
	}
	sort.Strings(visible)
	writeJSON(w, http.StatusOK, visible)
}

// repoFromRequest resolves the :id path variable to a RepoState,
// returning a NotFound apierr if it doesn't exist.
func (app *App) repoFromRequest(r *http.Request) (*repostate.RepoState, error) {
	return app.repos.Get(mux.Vars(r)["id"])
}

// handleGetRepo returns the full repo aggregate, gated on CanRead.
func (app *App) handleGetRepo(w http.ResponseWriter, r *http.Request, subject identity.Subject) {
	rs, err := app.repoFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var out *model.Repo
	viewErr := rs.View(func(repo *model.Repo) error {
		if !identity.CanRead(repo, subject) {
			return apierr.Forbidden("not authorized to read this repo")
		}
		out = repo
		return nil
	})
	if viewErr != nil {
		writeError(w, viewErr)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type membershipRequest struct {
	Handle string `json:"handle"`
	Role   string `json:"role"` // "reader" or "publisher"
}

// handleListMembers returns the repo's readers and publishers.
func (app *App) handleListMembers(w http.ResponseWriter, r *http.Request, subject identity.Subject) {
	rs, err := app.repoFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	type membersView struct {
		Readers    []string `json:"readers"`
		Publishers []string `json:"publishers"`
	}
	var out membersView
	viewErr := rs.View(func(repo *model.Repo) error {
		if !identity.CanRead(repo, subject) {
			return apierr.Forbidden("not authorized to read this repo")
		}
		out = membersView{Readers: handleSet(repo.Readers), Publishers: handleSet(repo.Publishers)}
		return nil
	})
	if viewErr != nil {
		writeError(w, viewErr)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleAddMember grants handle reader or publisher access (§6 POST
// /repos/:id/members).
func (app *App) handleAddMember(w http.ResponseWriter, r *http.Request, subject identity.Subject) {
	rs, err := app.repoFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req membershipRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	userID := ""
	if u, ok := app.identity.UserByHandle(req.Handle); ok {
		userID = u.ID
	}

	switch req.Role {
	case "publisher":
		err = ops.AddPublisher(rs, subject, req.Handle, userID)
	default:
		err = ops.AddReader(rs, subject, req.Handle, userID)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleRemoveMember revokes handle's access (§6 DELETE
// /repos/:id/members/:handle). Removes from both reader and publisher
// sets; RemovePublisher/RemoveReader are each no-ops if handle isn't
// present in that particular set.
func (app *App) handleRemoveMember(w http.ResponseWriter, r *http.Request, subject identity.Subject) {
	rs, err := app.repoFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	handle := mux.Vars(r)["handle"]
	if err := ops.RemoveReader(rs, subject, handle); err != nil {
		writeError(w, err)
		return
	}
	if err := ops.RemovePublisher(rs, subject, handle); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for h := range set {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// handleListScopes returns the repo's registered scopes.
func (app *App) handleListScopes(w http.ResponseWriter, r *http.Request, subject identity.Subject) {
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
		out = handleSet(repo.Scopes)
		return nil
	})
	if viewErr != nil {
		writeError(w, viewErr)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type addScopeRequest struct {
	Scope string `json:"scope"`
}

// handleAddScope registers a new scope (§6 POST /repos/:id/scopes).
func (app *App) handleAddScope(w http.ResponseWriter, r *http.Request, subject identity.Subject) {
	rs, err := app.repoFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req addScopeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := ops.AddScope(rs, subject, req.Scope); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleGetGateGraph returns the repo's gate DAG.
func (app *App) handleGetGateGraph(w http.ResponseWriter, r *http.Request, subject identity.Subject) {
	rs, err := app.repoFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var out model.GateGraph
	viewErr := rs.View(func(repo *model.Repo) error {
		if !identity.CanRead(repo, subject) {
			return apierr.Forbidden("not authorized to read this repo")
		}
		out = repo.GateGraph
		return nil
	})
	if viewErr != nil {
		writeError(w, viewErr)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handlePutGateGraph replaces the repo's gate DAG (§6 PUT
// /repos/:id/gate-graph), owner/admin-only (ops.UpdateGateGraph).
func (app *App) handlePutGateGraph(w http.ResponseWriter, r *http.Request, subject identity.Subject) {
	rs, err := app.repoFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var graph model.GateGraph
	if err := decodeJSON(r, &graph); err != nil {
		writeError(w, err)
		return
	}
	if err := ops.UpdateGateGraph(rs, subject, graph); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, graph)
}
