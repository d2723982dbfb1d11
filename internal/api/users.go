package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/inflatable-cookie/convergence-sub001/internal/apierr"
	"github.com/inflatable-cookie/convergence-sub001/internal/identity"
	"github.com/inflatable-cookie/convergence-sub001/internal/model"
)

// handleHealthz is the liveness probe (§6): no auth, no dependencies.
func (app *App) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type bootstrapRequest struct {
	Token  string `json:"token"`
	Handle string `json:"handle"`
}

type bootstrapResponse struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}

// handleBootstrap creates the first admin handle via the single-use
// bootstrap token (§4.D, §6 POST /bootstrap). Rejected once any admin
// already exists, and rejected outright when the server wasn't started
// with a bootstrap token configured at all.
func (app *App) handleBootstrap(w http.ResponseWriter, r *http.Request) {
	var req bootstrapRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	app.bootstrapMu.Lock()
	defer app.bootstrapMu.Unlock()

	if app.cfg.Identity.BootstrapToken == "" {
		writeError(w, apierr.Forbidden("bootstrap is not configured on this server"))
		return
	}
	if app.bootstrapUsed {
		writeError(w, apierr.Forbidden("bootstrap has already been used"))
		return
	}
	for _, u := range app.identity.ListUsers() {
		if u.Admin {
			writeError(w, apierr.Forbidden("an admin already exists"))
			return
		}
	}
	if req.Token != app.cfg.Identity.BootstrapToken {
		writeError(w, apierr.Unauthorized("invalid bootstrap token"))
		return
	}
	if req.Handle == "" {
		writeError(w, apierr.Validation("handle is required"))
		return
	}

	user, plaintext, _, err := app.identity.Bootstrap(req.Handle, time.Now())
	if err != nil {
		writeError(w, err)
		return
	}
	app.bootstrapUsed = true
	if err := app.persistIdentity(); err != nil {
		writeError(w, apierr.Internal(err))
		return
	}

	writeJSON(w, http.StatusOK, bootstrapResponse{User: user, Token: plaintext})
}

// handleWhoami identifies the authenticated subject (§6 GET /whoami).
func (app *App) handleWhoami(w http.ResponseWriter, r *http.Request, subject identity.Subject) {
	writeJSON(w, http.StatusOK, subject)
}

type createUserRequest struct {
	Handle      string `json:"handle"`
	DisplayName string `json:"display_name"`
	Admin       bool   `json:"admin"`
}

// handleListUsers returns every known user (§6 GET /users). Any
// authenticated subject may list users; only an admin may create one.
func (app *App) handleListUsers(w http.ResponseWriter, r *http.Request, subject identity.Subject) {
	writeJSON(w, http.StatusOK, app.identity.ListUsers())
}

// handleCreateUser registers a new handle (§6 POST /users), admin-only.
func (app *App) handleCreateUser(w http.ResponseWriter, r *http.Request, subject identity.Subject) {
	if err := requireAdmin(subject); err != nil {
		writeError(w, err)
		return
	}
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Handle == "" {
		writeError(w, apierr.Validation("handle is required"))
		return
	}
	user, err := app.identity.CreateUser(req.Handle, req.DisplayName, req.Admin, time.Now())
	if err != nil {
		writeError(w, err)
		return
	}
	if err := app.persistIdentity(); err != nil {
		writeError(w, apierr.Internal(err))
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

type mintTokenRequest struct {
	Label string `json:"label"`
}

type mintTokenResponse struct {
	Token string `json:"token"`
	ID    string `json:"id"`
	Label string `json:"label,omitempty"`
}

// handleMintTokenForUser mints a delegated token on behalf of the user
// named by :id (§6 POST /users/:id/tokens), admin-only — the
// supplemented delegated-issuance feature from original_source's
// handlers_identity/tokens.rs.
func (app *App) handleMintTokenForUser(w http.ResponseWriter, r *http.Request, subject identity.Subject) {
	if err := requireAdmin(subject); err != nil {
		writeError(w, err)
		return
	}
	userID := mux.Vars(r)["id"]
	if _, ok := app.identity.UserByID(userID); !ok {
		writeError(w, apierr.NotFound("user %s not found", userID))
		return
	}
	var req mintTokenRequest
	_ = decodeJSON(r, &req) // label is optional; an empty/malformed body just mints unlabeled

	plaintext, tok, err := app.identity.MintToken(userID, req.Label, time.Now())
	if err != nil {
		writeError(w, err)
		return
	}
	if err := app.persistIdentity(); err != nil {
		writeError(w, apierr.Internal(err))
		return
	}
	writeJSON(w, http.StatusCreated, mintTokenResponse{Token: plaintext, ID: tok.ID, Label: tok.Label})
}

// handleListTokensForUser lists every token minted for :id (§6 GET
// /users/:id/tokens), hashes never included.
func (app *App) handleListTokensForUser(w http.ResponseWriter, r *http.Request, subject identity.Subject) {
	userID := mux.Vars(r)["id"]
	if !subject.Admin && subject.UserID != userID {
		writeError(w, apierr.Forbidden("may only list your own tokens"))
		return
	}
	writeJSON(w, http.StatusOK, redactTokens(app.identity.TokensForUser(userID)))
}

// handleMintSelfToken mints a token for the caller themself (§6 POST
// /tokens).
func (app *App) handleMintSelfToken(w http.ResponseWriter, r *http.Request, subject identity.Subject) {
	var req mintTokenRequest
	_ = decodeJSON(r, &req)

	plaintext, tok, err := app.identity.MintToken(subject.UserID, req.Label, time.Now())
	if err != nil {
		writeError(w, err)
		return
	}
	if err := app.persistIdentity(); err != nil {
		writeError(w, apierr.Internal(err))
		return
	}
	writeJSON(w, http.StatusCreated, mintTokenResponse{Token: plaintext, ID: tok.ID, Label: tok.Label})
}

// handleListSelfTokens lists the caller's own tokens (§6 GET /tokens).
func (app *App) handleListSelfTokens(w http.ResponseWriter, r *http.Request, subject identity.Subject) {
	writeJSON(w, http.StatusOK, redactTokens(app.identity.TokensForUser(subject.UserID)))
}

// handleRevokeToken revokes :id (§6 POST /tokens/:id/revoke):
// identity.Store.RevokeToken itself enforces that the caller owns the
// token or is an admin.
func (app *App) handleRevokeToken(w http.ResponseWriter, r *http.Request, subject identity.Subject) {
	tokenID := mux.Vars(r)["id"]
	if err := app.identity.RevokeToken(tokenID, subject.UserID, subject.Admin, time.Now()); err != nil {
		writeError(w, err)
		return
	}
	if err := app.persistIdentity(); err != nil {
		writeError(w, apierr.Internal(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

// tokenView is an AccessToken with its hash omitted — no handler ever
// serializes a model.AccessToken directly over the wire.
type tokenView struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	Label      string `json:"label,omitempty"`
	CreatedAt  string `json:"created_at"`
	LastUsedAt string `json:"last_used_at,omitempty"`
	RevokedAt  string `json:"revoked_at,omitempty"`
	ExpiresAt  string `json:"expires_at,omitempty"`
}

func redactTokens(tokens []*model.AccessToken) []tokenView {
	out := make([]tokenView, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, tokenView{
			ID:         t.ID,
			UserID:     t.UserID,
			Label:      t.Label,
			CreatedAt:  t.CreatedAt,
			LastUsedAt: t.LastUsedAt,
			RevokedAt:  t.RevokedAt,
			ExpiresAt:  t.ExpiresAt,
		})
	}
	return out
}
