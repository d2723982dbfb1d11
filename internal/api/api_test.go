package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/inflatable-cookie/convergence-sub001/configuration"
	"github.com/inflatable-cookie/convergence-sub001/internal/api"
	"github.com/inflatable-cookie/convergence-sub001/internal/model"
	"github.com/inflatable-cookie/convergence-sub001/internal/objectid"
)

func newTestApp(t *testing.T) *api.App {
	t.Helper()
	cfg := &configuration.Configuration{
		Version: configuration.CurrentVersion,
		DataDir: t.TempDir(),
		HTTP:    configuration.HTTP{Secret: "test-signing-secret"},
		Identity: configuration.Identity{
			BootstrapToken: "bootstrap-secret",
		},
	}
	app, err := api.NewApp(cfg, nil)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	return app
}

func doJSON(t *testing.T, app *api.App, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	app.Router().ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decoding response body %q: %v", rec.Body.String(), err)
		}
	}
	return rec, decoded
}

// bootstrapAdmin drives POST /bootstrap and returns the admin's bearer
// token.
func bootstrapAdmin(t *testing.T, app *api.App) string {
	t.Helper()
	rec, resp := doJSON(t, app, http.MethodPost, "/bootstrap", "", map[string]string{
		"token": "bootstrap-secret", "handle": "alice",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("bootstrap: status %d, body %v", rec.Code, resp)
	}
	token, _ := resp["token"].(string)
	if token == "" {
		t.Fatalf("bootstrap response missing token: %v", resp)
	}
	return token
}

func TestBootstrapIsSingleUse(t *testing.T) {
	app := newTestApp(t)
	_ = bootstrapAdmin(t, app)

	rec, _ := doJSON(t, app, http.MethodPost, "/bootstrap", "", map[string]string{
		"token": "bootstrap-secret", "handle": "mallory",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("second bootstrap: status %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestWhoamiRequiresBearerToken(t *testing.T) {
	app := newTestApp(t)
	rec, _ := doJSON(t, app, http.MethodGet, "/whoami", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated /whoami: status %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	token := bootstrapAdmin(t, app)
	rec, resp := doJSON(t, app, http.MethodGet, "/whoami", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("/whoami: status %d, body %v", rec.Code, resp)
	}
	if resp["Handle"] != "alice" {
		t.Fatalf("/whoami handle = %v, want alice", resp["Handle"])
	}
}

func TestCreateRepoRejectsInvalidID(t *testing.T) {
	app := newTestApp(t)
	token := bootstrapAdmin(t, app)

	rec, _ := doJSON(t, app, http.MethodPost, "/repos", token, map[string]string{"id": "Not Valid!"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid repo id: status %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

// TestPublishBundlePromoteOverHTTP drives a full end-to-end flow
// through the HTTP surface: create a repo, upload a blob and manifest,
// upload a snap, publish it, bundle it, and promote it across an added
// downstream gate.
func TestPublishBundlePromoteOverHTTP(t *testing.T) {
	app := newTestApp(t)
	token := bootstrapAdmin(t, app)

	if rec, resp := doJSON(t, app, http.MethodPost, "/repos", token, map[string]string{"id": "proj"}); rec.Code != http.StatusCreated {
		t.Fatalf("create repo: status %d, body %v", rec.Code, resp)
	}

	var gateGraph model.GateGraph
	if rec, resp := doJSON(t, app, http.MethodGet, "/repos/proj/gate-graph", token, nil); rec.Code != http.StatusOK {
		t.Fatalf("get gate-graph: status %d, body %v", rec.Code, resp)
	} else {
		raw, _ := json.Marshal(resp)
		if err := json.Unmarshal(raw, &gateGraph); err != nil {
			t.Fatalf("re-decoding gate-graph: %v", err)
		}
	}
	gateGraph.Gates = append(gateGraph.Gates, model.GateDef{
		ID: "team", Upstream: []string{"dev-intake"}, AllowReleases: true,
	})
	if rec, resp := doJSON(t, app, http.MethodPut, "/repos/proj/gate-graph", token, gateGraph); rec.Code != http.StatusOK {
		t.Fatalf("put gate-graph: status %d, body %v", rec.Code, resp)
	}

	content := []byte("hello world")
	blobID := objectid.FromBytes(content)
	blobReq := httptest.NewRequest(http.MethodPut, "/repos/proj/objects/blobs/"+blobID.String(), bytes.NewReader(content))
	blobReq.Header.Set("Authorization", "Bearer "+token)
	blobRec := httptest.NewRecorder()
	app.Router().ServeHTTP(blobRec, blobReq)
	if blobRec.Code != http.StatusCreated {
		t.Fatalf("put blob: status %d, body %s", blobRec.Code, blobRec.Body.String())
	}

	manifest := &model.Manifest{Entries: []model.ManifestEntry{{
		Name: "hello.txt",
		Kind: model.EntryKind{Type: model.KindFile, File: &model.FileRef{Blob: blobID}},
	}}}
	manifest.SortEntries()
	manifestBytes, err := json.Marshal(manifest)
	if err != nil {
		t.Fatalf("marshal manifest: %v", err)
	}
	manifestID := objectid.FromBytes(manifestBytes)
	manifestReq := httptest.NewRequest(http.MethodPut, "/repos/proj/objects/manifests/"+manifestID.String(), bytes.NewReader(manifestBytes))
	manifestReq.Header.Set("Authorization", "Bearer "+token)
	manifestRec := httptest.NewRecorder()
	app.Router().ServeHTTP(manifestRec, manifestReq)
	if manifestRec.Code != http.StatusCreated {
		t.Fatalf("put manifest: status %d, body %s", manifestRec.Code, manifestRec.Body.String())
	}

	snapCreatedAt := "2026-01-01T00:00:00Z"
	snapID := model.ComputeSnapID(snapCreatedAt, manifestID)
	snapRec := &model.SnapRecord{ID: snapID, CreatedAt: snapCreatedAt, RootManifest: manifestID}
	snapBytes, err := json.Marshal(snapRec)
	if err != nil {
		t.Fatalf("marshal snap: %v", err)
	}
	snapReq := httptest.NewRequest(http.MethodPut, "/repos/proj/objects/snaps/"+snapID.String(), bytes.NewReader(snapBytes))
	snapReq.Header.Set("Authorization", "Bearer "+token)
	snapPutRec := httptest.NewRecorder()
	app.Router().ServeHTTP(snapPutRec, snapReq)
	if snapPutRec.Code != http.StatusCreated {
		t.Fatalf("put snap: status %d, body %s", snapPutRec.Code, snapPutRec.Body.String())
	}

	rec, pubResp := doJSON(t, app, http.MethodPost, "/repos/proj/publications", token, map[string]any{
		"snap_id": snapID.String(), "scope": "main", "gate": "dev-intake",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create publication: status %d, body %v", rec.Code, pubResp)
	}
	pubID, _ := pubResp["id"].(string)
	if pubID == "" {
		t.Fatalf("publication response missing id: %v", pubResp)
	}

	rec, bundleResp := doJSON(t, app, http.MethodPost, "/repos/proj/bundles", token, map[string]any{
		"scope": "main", "gate": "dev-intake", "publication_ids": []string{pubID},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create bundle: status %d, body %v", rec.Code, bundleResp)
	}
	bundleID, _ := bundleResp["id"].(string)
	if bundleID == "" {
		t.Fatalf("bundle response missing id: %v", bundleResp)
	}
	if promotable, _ := bundleResp["promotable"].(bool); !promotable {
		t.Fatalf("expected single-publication bundle to be promotable, got: %v", bundleResp)
	}

	rec, promoResp := doJSON(t, app, http.MethodPost, "/repos/proj/promotions", token, map[string]any{
		"bundle_id": bundleID, "to_gate": "team",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create promotion: status %d, body %v", rec.Code, promoResp)
	}

	rec, stateResp := doJSON(t, app, http.MethodGet, "/repos/proj/promotion-state", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get promotion-state: status %d, body %v", rec.Code, stateResp)
	}
	main, _ := stateResp["main"].(map[string]any)
	if main == nil || main["team"] != bundleID {
		t.Fatalf("promotion-state = %v, want main.team = %s", stateResp, bundleID)
	}
}
