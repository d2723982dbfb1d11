// Package api implements Component I: HTTP resource routing, request
// parsing, subject extraction, and error mapping for every operation in
// §6's resource surface. It is a thin layer — no state mutation happens
// here directly; every handler calls into internal/ops (or
// internal/identity, internal/gc) while that package holds the
// relevant lock, exactly as §4.I requires.
//
// Grounded on the teacher's registry/handlers/app.go (an App struct
// carrying the router, storage, and event configuration, with handlers
// registered by route name) and registry/api/v2 (gorilla/mux route
// patterns), adapted from the teacher's image-registry resource set to
// this system's repo/publication/bundle/promotion/release resources.
package api

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	events "github.com/docker/go-events"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/inflatable-cookie/convergence-sub001/configuration"
	"github.com/inflatable-cookie/convergence-sub001/internal/dcontext"
	"github.com/inflatable-cookie/convergence-sub001/internal/identity"
	"github.com/inflatable-cookie/convergence-sub001/internal/notifications"
	"github.com/inflatable-cookie/convergence-sub001/internal/repostate"
	"github.com/inflatable-cookie/convergence-sub001/internal/store"
)

// App is the server-wide application object: the identity store, the
// per-repo state manager, and the shared event broadcaster. Handlers
// reach all of it through the methods below; nothing here is a package
// singleton (§9 "Global mutable state" — an explicit App is always
// passed or held by closure, never reached via a package-level var).
type App struct {
	cfg        *configuration.Configuration
	dataDir    string
	instanceID string

	identity *identity.Store
	repos    *repostate.Manager
	notify   *notifications.Broadcaster

	router *mux.Router

	bootstrapMu   sync.Mutex
	bootstrapUsed bool

	cache *store.Cache
}

// NewApp builds an App from cfg, hydrating identity and every
// already-known repo from dataDir (teacher: NewApp's driver/registry
// construction, generalized from a single storage driver to this
// system's per-repo Manager). Seeds a dev user/token when configured,
// for local development and test harnesses only.
func NewApp(cfg *configuration.Configuration, cache *store.Cache) (*App, error) {
	app := &App{
		cfg:        cfg,
		dataDir:    cfg.DataDir,
		instanceID: uuid.NewString(),
		identity:   identity.NewStore(signingKey(cfg)),
		repos:      repostate.NewManager(),
		notify:     notifications.NewBroadcaster(notifications.LoggingSink{}),
		cache:      cache,
	}

	if err := app.loadIdentity(); err != nil {
		return nil, fmt.Errorf("loading identity: %w", err)
	}
	if err := app.loadRepos(); err != nil {
		return nil, fmt.Errorf("loading repos: %w", err)
	}
	if cfg.Identity.DevUser != "" && cfg.Identity.DevToken != "" {
		if err := app.seedDevUser(cfg.Identity.DevUser, cfg.Identity.DevToken); err != nil {
			return nil, fmt.Errorf("seeding dev user: %w", err)
		}
	}

	app.router = mux.NewRouter()
	app.registerRoutes()

	return app, nil
}

// signingKey resolves the HMAC key access tokens are signed with. A
// blank configured secret gets a random key generated at startup — a
// convenience for first-run/testing, at the documented cost (§6
// configuration) that tokens won't survive a restart without an
// explicit secret.
func signingKey(cfg *configuration.Configuration) []byte {
	if cfg.HTTP.Secret != "" {
		return []byte(cfg.HTTP.Secret)
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is fatal to the whole process anyway; a
		// fixed fallback key at least keeps the server from panicking here.
		return []byte("converge-insecure-random-key-unavailable")
	}
	return buf
}

// Router returns the configured http.Handler, wrapped by the request
// metrics and per-request logging middleware (withMetrics,
// withRequestLogger). The gorilla/handlers access logging and panic
// recovery are not applied here; the serve command adds them around it.
func (app *App) Router() http.Handler {
	var h http.Handler = app.router
	h = app.withMetrics(h)
	h = app.withRequestLogger(h)
	return h
}

func (app *App) identityDir() string      { return app.dataDir }
func (app *App) usersJSONPath() string    { return filepath.Join(app.identityDir(), "users.json") }
func (app *App) tokensJSONPath() string   { return filepath.Join(app.identityDir(), "tokens.json") }
func (app *App) repoDir(id string) string { return filepath.Join(app.dataDir, "repos", id) }
func (app *App) reposRootDir() string     { return filepath.Join(app.dataDir, "repos") }

func (app *App) reposManager() *repostate.Manager { return app.repos }

func (app *App) loadRepos() error {
	entries, err := os.ReadDir(app.reposRootDir())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	handleToID := app.identity.HandleIndex()
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id := e.Name()
		st := store.New(app.repoDir(id), app.cache)
		rs, err := repostate.Load(st, id, "", handleToID)
		if err != nil {
			return fmt.Errorf("repo %s: %w", id, err)
		}
		app.repos.Put(id, rs)
	}
	return nil
}

func (app *App) seedDevUser(handle, plaintext string) error {
	if _, ok := app.identity.UserByHandle(handle); ok {
		return nil
	}
	user, err := app.identity.CreateUser(handle, "", true, time.Now())
	if err != nil {
		return err
	}
	hash := identity.HashToken(plaintext)
	app.identity.InstallFixedToken(user.ID, hash, "dev")
	return app.persistIdentity()
}

func (app *App) persistIdentity() error {
	users, tokens := app.identity.Snapshot()
	return writeIdentitySnapshot(app.usersJSONPath(), app.tokensJSONPath(), users, tokens)
}

func (app *App) loadIdentity() error {
	users, tokens, err := readIdentitySnapshot(app.usersJSONPath(), app.tokensJSONPath())
	if err != nil {
		return err
	}
	app.identity.Load(users, tokens)
	return nil
}

// InstanceID identifies this process in logs; a new one is generated
// each time an App is built, so it changes across restarts.
func (app *App) InstanceID() string { return app.instanceID }

// Compile-time check that notifications.LoggingSink, the sink NewApp
// hands to the event broadcaster, satisfies events.Sink.
var _ events.Sink = notifications.LoggingSink{}

func (app *App) withRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := dcontext.WithValues(r.Context(), map[string]any{
			"route":  r.URL.Path,
			"method": r.Method,
		})
		logger := dcontext.GetLogger(ctx)
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r.WithContext(ctx))
		logger.WithFields(logrus.Fields{
			"status":   sw.status,
			"duration": time.Since(start).String(),
		}).Info("handled request")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}

func normalizeBearer(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix)), true
}

func randomHex(n int) string {
	buf := make([]byte, n)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
