package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/inflatable-cookie/convergence-sub001/internal/apierr"
	"github.com/inflatable-cookie/convergence-sub001/internal/identity"
	"github.com/inflatable-cookie/convergence-sub001/internal/model"
	"github.com/inflatable-cookie/convergence-sub001/internal/objectid"
	"github.com/inflatable-cookie/convergence-sub001/internal/ops"
	"github.com/inflatable-cookie/convergence-sub001/internal/repostate"
	"github.com/inflatable-cookie/convergence-sub001/internal/store"
)

// objectID parses and validates the :oid path variable as a 64-hex
// object id (§6).
func objectID(r *http.Request) (objectid.ID, error) {
	id := objectid.ID(mux.Vars(r)["oid"])
	if !id.Valid() {
		return "", apierr.Validation("malformed object id %q", id)
	}
	return id, nil
}

func (app *App) checkCanPublish(rs *repostate.RepoState, subject identity.Subject) error {
	return rs.View(func(repo *model.Repo) error {
		if !identity.CanPublish(repo, subject) {
			return apierr.Forbidden("must be a publisher to write objects")
		}
		return nil
	})
}

func (app *App) checkCanRead(rs *repostate.RepoState, subject identity.Subject) error {
	return rs.View(func(repo *model.Repo) error {
		if !identity.CanRead(repo, subject) {
			return apierr.Forbidden("not authorized to read this repo")
		}
		return nil
	})
}

// handlePutBlob ingests one content-addressed blob (§4.A PutBlob, §6
// PUT /repos/:id/objects/blobs/:id). The repo write lock is never taken
// (§5) — only the ACL pre-check above takes (briefly) the read lock.
// The whole body is read into memory before it is verified and
// written; uploads are not streamed to the object store.
func (app *App) handlePutBlob(w http.ResponseWriter, r *http.Request, subject identity.Subject) {
	rs, err := app.repoFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := app.checkCanPublish(rs, subject); err != nil {
		writeError(w, err)
		return
	}
	id, err := objectID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	data, err := readBody(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := rs.Store().PutBlob(id, data); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id.String()})
}

func (app *App) handleGetBlob(w http.ResponseWriter, r *http.Request, subject identity.Subject) {
	rs, err := app.repoFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := app.checkCanRead(rs, subject); err != nil {
		writeError(w, err)
		return
	}
	id, err := objectID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	data, err := rs.Store().GetBlob(id)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// handlePutManifest ingests client-supplied canonical manifest bytes
// (§4.A PutManifest: "the server never re-serializes").
func (app *App) handlePutManifest(w http.ResponseWriter, r *http.Request, subject identity.Subject) {
	rs, err := app.repoFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := app.checkCanPublish(rs, subject); err != nil {
		writeError(w, err)
		return
	}
	id, err := objectID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	data, err := readBody(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := rs.Store().PutManifestBytes(id, data); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id.String()})
}

func (app *App) handleGetManifest(w http.ResponseWriter, r *http.Request, subject identity.Subject) {
	rs, err := app.repoFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := app.checkCanRead(rs, subject); err != nil {
		writeError(w, err)
		return
	}
	id, err := objectID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	data, err := rs.Store().GetManifestBytes(id)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (app *App) handlePutRecipe(w http.ResponseWriter, r *http.Request, subject identity.Subject) {
	rs, err := app.repoFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := app.checkCanPublish(rs, subject); err != nil {
		writeError(w, err)
		return
	}
	id, err := objectID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	data, err := readBody(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := rs.Store().PutRecipeBytes(id, data); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id.String()})
}

func (app *App) handleGetRecipe(w http.ResponseWriter, r *http.Request, subject identity.Subject) {
	rs, err := app.repoFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := app.checkCanRead(rs, subject); err != nil {
		writeError(w, err)
		return
	}
	id, err := objectID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	data, err := rs.Store().GetRecipeBytes(id)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// handlePutSnap ingests a snap record (§4.A PutSnap), recording it in
// the repo's known-snaps index via ops.IngestSnap.
func (app *App) handlePutSnap(w http.ResponseWriter, r *http.Request, subject identity.Subject) {
	rs, err := app.repoFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := objectID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var rec model.SnapRecord
	if err := decodeJSON(r, &rec); err != nil {
		writeError(w, err)
		return
	}
	if err := ops.IngestSnap(rs, subject, id, &rec); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id.String()})
}

func (app *App) handleGetSnap(w http.ResponseWriter, r *http.Request, subject identity.Subject) {
	rs, err := app.repoFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := app.checkCanRead(rs, subject); err != nil {
		writeError(w, err)
		return
	}
	id, err := objectID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	rec, err := rs.Store().GetSnap(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type missingRequest struct {
	Kind store.Kind    `json:"kind"`
	IDs  []objectid.ID `json:"ids"`
}

// handleMissingObjects answers the batched existence query (§4.A, §6
// POST /repos/:id/objects/missing).
func (app *App) handleMissingObjects(w http.ResponseWriter, r *http.Request, subject identity.Subject) {
	rs, err := app.repoFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := app.checkCanRead(rs, subject); err != nil {
		writeError(w, err)
		return
	}
	var req missingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	missing := rs.Store().Missing(req.Kind, req.IDs)
	writeJSON(w, http.StatusOK, map[string]any{"missing": missing})
}
