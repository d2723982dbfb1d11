package api

import (
	"net/http"
	"time"

	"github.com/inflatable-cookie/convergence-sub001/internal/apierr"
	"github.com/inflatable-cookie/convergence-sub001/internal/identity"
)

// subject resolves the bearer token on r into an identity.Subject,
// updating the token's last_used_at as a side effect of
// identity.Store.Authenticate (§4.D).
func (app *App) subject(r *http.Request) (identity.Subject, error) {
	bearer, ok := normalizeBearer(r.Header.Get("Authorization"))
	if !ok {
		return identity.Subject{}, apierr.Unauthorized("missing bearer token")
	}
	user, _, err := app.identity.Authenticate(bearer, time.Now())
	if err != nil {
		return identity.Subject{}, err
	}
	return identity.Subject{UserID: user.ID, Handle: user.Handle, Admin: user.Admin}, nil
}

// withSubject resolves the caller's bearer token before calling next,
// writing a 401 response itself on failure so every protected handler
// can assume a valid subject is already in hand.
func (app *App) withSubject(next func(w http.ResponseWriter, r *http.Request, subject identity.Subject)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subj, err := app.subject(r)
		if err != nil {
			writeError(w, err)
			return
		}
		next(w, r, subj)
	}
}

// requireAdmin is a small guard used by server-wide admin operations
// (user creation) that have no repo to anchor an owner/admin check to.
func requireAdmin(subject identity.Subject) error {
	if !subject.Admin {
		return apierr.Forbidden("admin privileges required")
	}
	return nil
}
