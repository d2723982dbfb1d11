package api

import "github.com/inflatable-cookie/convergence-sub001/internal/metrics"

// registerRoutes wires every resource in the HTTP surface onto
// app.router. Unauthenticated routes (/healthz, /bootstrap) register
// their handler directly; everything else goes through withSubject so
// each handler can assume a resolved identity.Subject.
func (app *App) registerRoutes() {
	r := app.router

	r.HandleFunc("/healthz", app.handleHealthz).Methods("GET")
	r.HandleFunc("/bootstrap", app.handleBootstrap).Methods("POST")
	r.Handle("/debug/metrics", metrics.Handler()).Methods("GET")

	r.HandleFunc("/whoami", app.withSubject(app.handleWhoami)).Methods("GET")

	r.HandleFunc("/users", app.withSubject(app.handleListUsers)).Methods("GET")
	r.HandleFunc("/users", app.withSubject(app.handleCreateUser)).Methods("POST")
	r.HandleFunc("/users/{id}/tokens", app.withSubject(app.handleMintTokenForUser)).Methods("POST")
	r.HandleFunc("/users/{id}/tokens", app.withSubject(app.handleListTokensForUser)).Methods("GET")

	r.HandleFunc("/tokens", app.withSubject(app.handleMintSelfToken)).Methods("POST")
	r.HandleFunc("/tokens", app.withSubject(app.handleListSelfTokens)).Methods("GET")
	r.HandleFunc("/tokens/{id}/revoke", app.withSubject(app.handleRevokeToken)).Methods("POST")

	r.HandleFunc("/repos", app.withSubject(app.handleListRepos)).Methods("GET")
	r.HandleFunc("/repos", app.withSubject(app.handleCreateRepo)).Methods("POST")
	r.HandleFunc("/repos/{id}", app.withSubject(app.handleGetRepo)).Methods("GET")

	r.HandleFunc("/repos/{id}/members", app.withSubject(app.handleListMembers)).Methods("GET")
	r.HandleFunc("/repos/{id}/members", app.withSubject(app.handleAddMember)).Methods("POST")
	r.HandleFunc("/repos/{id}/members/{handle}", app.withSubject(app.handleRemoveMember)).Methods("DELETE")

	r.HandleFunc("/repos/{id}/scopes", app.withSubject(app.handleListScopes)).Methods("GET")
	r.HandleFunc("/repos/{id}/scopes", app.withSubject(app.handleAddScope)).Methods("POST")

	r.HandleFunc("/repos/{id}/gate-graph", app.withSubject(app.handleGetGateGraph)).Methods("GET")
	r.HandleFunc("/repos/{id}/gate-graph", app.withSubject(app.handlePutGateGraph)).Methods("PUT")

	r.HandleFunc("/repos/{id}/lanes", app.withSubject(app.handleListLanes)).Methods("GET")
	r.HandleFunc("/repos/{id}/lanes", app.withSubject(app.handleCreateLane)).Methods("POST")
	r.HandleFunc("/repos/{id}/lanes/{lane}/members", app.withSubject(app.handleAddLaneMember)).Methods("POST")
	r.HandleFunc("/repos/{id}/lanes/{lane}/members/{handle}", app.withSubject(app.handleRemoveLaneMember)).Methods("DELETE")
	r.HandleFunc("/repos/{id}/lanes/{lane}/heads/me", app.withSubject(app.handleUpdateOwnLaneHead)).Methods("POST")
	r.HandleFunc("/repos/{id}/lanes/{lane}/heads/{user}", app.withSubject(app.handleGetLaneHead)).Methods("GET")

	r.HandleFunc("/repos/{id}/objects/blobs/{oid}", app.withSubject(app.handlePutBlob)).Methods("PUT")
	r.HandleFunc("/repos/{id}/objects/blobs/{oid}", app.withSubject(app.handleGetBlob)).Methods("GET")
	r.HandleFunc("/repos/{id}/objects/manifests/{oid}", app.withSubject(app.handlePutManifest)).Methods("PUT")
	r.HandleFunc("/repos/{id}/objects/manifests/{oid}", app.withSubject(app.handleGetManifest)).Methods("GET")
	r.HandleFunc("/repos/{id}/objects/recipes/{oid}", app.withSubject(app.handlePutRecipe)).Methods("PUT")
	r.HandleFunc("/repos/{id}/objects/recipes/{oid}", app.withSubject(app.handleGetRecipe)).Methods("GET")
	r.HandleFunc("/repos/{id}/objects/snaps/{oid}", app.withSubject(app.handlePutSnap)).Methods("PUT")
	r.HandleFunc("/repos/{id}/objects/snaps/{oid}", app.withSubject(app.handleGetSnap)).Methods("GET")
	r.HandleFunc("/repos/{id}/objects/missing", app.withSubject(app.handleMissingObjects)).Methods("POST")

	r.HandleFunc("/repos/{id}/publications", app.withSubject(app.handleListPublications)).Methods("GET")
	r.HandleFunc("/repos/{id}/publications", app.withSubject(app.handleCreatePublication)).Methods("POST")

	r.HandleFunc("/repos/{id}/bundles", app.withSubject(app.handleListBundles)).Methods("GET")
	r.HandleFunc("/repos/{id}/bundles", app.withSubject(app.handleCreateBundle)).Methods("POST")
	r.HandleFunc("/repos/{id}/bundles/{bundle}", app.withSubject(app.handleGetBundle)).Methods("GET")
	r.HandleFunc("/repos/{id}/bundles/{bundle}/approve", app.withSubject(app.handleApproveBundle)).Methods("POST")
	r.HandleFunc("/repos/{id}/bundles/{bundle}/pin", app.withSubject(app.handlePinBundle)).Methods("POST")
	r.HandleFunc("/repos/{id}/bundles/{bundle}/unpin", app.withSubject(app.handleUnpinBundle)).Methods("POST")
	r.HandleFunc("/repos/{id}/pins", app.withSubject(app.handleListPins)).Methods("GET")

	r.HandleFunc("/repos/{id}/promotions", app.withSubject(app.handleListPromotions)).Methods("GET")
	r.HandleFunc("/repos/{id}/promotions", app.withSubject(app.handleCreatePromotion)).Methods("POST")
	r.HandleFunc("/repos/{id}/promotion-state", app.withSubject(app.handleGetPromotionState)).Methods("GET")

	r.HandleFunc("/repos/{id}/releases", app.withSubject(app.handleListReleases)).Methods("GET")
	r.HandleFunc("/repos/{id}/releases", app.withSubject(app.handleCreateRelease)).Methods("POST")
	r.HandleFunc("/repos/{id}/releases/{channel}", app.withSubject(app.handleGetChannelHead)).Methods("GET")

	r.HandleFunc("/repos/{id}/gc", app.withSubject(app.handleRunGC)).Methods("POST")
}
