// Package configuration holds the versioned, YAML-loaded configuration
// for the converged server binary, adapted from the teacher's
// configuration.Configuration to this system's own section set: Log,
// DataDir, HTTP, Identity (bootstrap/dev credentials), Cache (optional
// redis existence cache), and GC (default sweep knobs).
package configuration

import (
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v2"
)

// Version is a major.minor configuration format version, kept for the
// same reason the teacher keeps one: so a future structural change can
// be detected and migrated deliberately rather than silently
// misparsed.
type Version string

// CurrentVersion is the only version this build understands.
const CurrentVersion = Version("0.1")

// Configuration is the top-level, versioned server configuration.
type Configuration struct {
	Version Version `yaml:"version"`

	Log Log `yaml:"log"`

	// DataDir is the root directory under which every repository's
	// object store and repo.json lives, and identity's users.json and
	// tokens.json sit directly.
	DataDir string `yaml:"datadir"`

	HTTP HTTP `yaml:"http,omitempty"`

	Identity Identity `yaml:"identity,omitempty"`

	Cache Cache `yaml:"cache,omitempty"`

	GC GC `yaml:"gc,omitempty"`
}

// Log configures the structured logger every component logs through.
type Log struct {
	// Level is one of logrus's level names: "debug", "info", "warn",
	// "error". Defaults to "info" when empty.
	Level string `yaml:"level,omitempty"`

	// Formatter selects "text" or "json". Defaults to "text".
	Formatter string `yaml:"formatter,omitempty"`
}

// HTTP configures the server's listener and request-handling middleware.
type HTTP struct {
	// Addr is the bind address, e.g. "127.0.0.1:5050".
	Addr string `yaml:"addr,omitempty"`

	// AddrFile, if set, receives the actually-bound address after
	// listen (useful for tests that bind to ":0").
	AddrFile string `yaml:"addrfile,omitempty"`

	// Secret signs issued bearer tokens (see internal/identity). If
	// empty at startup, a random secret is generated and tokens from a
	// prior run will fail to verify — operators running more than one
	// instance, or restarting and expecting existing tokens to keep
	// working, must set this explicitly.
	Secret string `yaml:"secret,omitempty"`

	// DrainTimeout bounds graceful shutdown (§6 CLI surface: SIGINT).
	DrainTimeout time.Duration `yaml:"draintimeout,omitempty"`
}

// Identity configures the one-time bootstrap handshake and an optional
// development shortcut credential, mirroring the CLI surface's
// --bootstrap-token/--dev-user/--dev-token flags (§6).
type Identity struct {
	// BootstrapToken, when set, authenticates the one-time POST
	// /bootstrap call that creates the first admin (§4.D).
	BootstrapToken string `yaml:"bootstraptoken,omitempty"`

	// DevUser and DevToken, when both set, seed an admin user and a
	// fixed bearer token at startup — a convenience for local
	// development and tests, never for production use.
	DevUser  string `yaml:"devuser,omitempty"`
	DevToken string `yaml:"devtoken,omitempty"`
}

// Cache configures the optional Redis-backed object existence cache
// (internal/store.Cache). Leaving Redis.Addr empty disables caching
// entirely; every lookup falls through to disk either way.
type Cache struct {
	Redis Redis `yaml:"redis,omitempty"`
}

// Redis names the pool the existence cache dials.
type Redis struct {
	Addr     string        `yaml:"addr,omitempty"`
	Password string        `yaml:"password,omitempty"`
	DB       int           `yaml:"db,omitempty"`
	TTL      time.Duration `yaml:"ttl,omitempty"`
}

// GC configures the default flags the `garbage-collect` CLI subcommand
// applies when the operator doesn't override them.
type GC struct {
	PruneMetadata         bool `yaml:"prunemetadata,omitempty"`
	PruneReleasesKeepLast int  `yaml:"prunereleaseskeeplast,omitempty"`
}

// Parse decodes a YAML configuration document from rd and applies the
// CONVERGE_* environment overlay (see parser.go), returning a fully
// resolved Configuration.
func Parse(rd io.Reader) (*Configuration, error) {
	data, err := io.ReadAll(rd)
	if err != nil {
		return nil, err
	}

	var cfg Configuration
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("configuration: parsing yaml: %w", err)
	}
	if cfg.Version == "" {
		cfg.Version = CurrentVersion
	}
	if cfg.Version != CurrentVersion {
		return nil, fmt.Errorf("configuration: unsupported version %q (want %q)", cfg.Version, CurrentVersion)
	}

	if err := overlayEnv(&cfg, "CONVERGE"); err != nil {
		return nil, fmt.Errorf("configuration: applying environment overlay: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Configuration) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Formatter == "" {
		cfg.Log.Formatter = "text"
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":5050"
	}
	if cfg.HTTP.DrainTimeout == 0 {
		cfg.HTTP.DrainTimeout = 10 * time.Second
	}
	if cfg.Cache.Redis.TTL == 0 {
		cfg.Cache.Redis.TTL = 10 * time.Minute
	}
}
