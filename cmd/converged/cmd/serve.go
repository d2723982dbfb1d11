package cmd

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gomodule/redigo/redis"
	gorhandlers "github.com/gorilla/handlers"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inflatable-cookie/convergence-sub001/configuration"
	"github.com/inflatable-cookie/convergence-sub001/internal/api"
	"github.com/inflatable-cookie/convergence-sub001/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "serve stores and serves the staged-promotion artifact repository over HTTP",
	Long:  "serve stores and serves the staged-promotion artifact repository over HTTP.",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	configureLogging(cfg)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir %s: %w", cfg.DataDir, err)
	}

	cache := buildCache(cfg)

	app, err := api.NewApp(cfg, cache)
	if err != nil {
		return fmt.Errorf("constructing server: %w", err)
	}

	var handler = gorhandlers.CombinedLoggingHandler(os.Stdout, gorhandlers.RecoveryHandler()(app.Router()))

	ln, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("binding %s: %w", cfg.HTTP.Addr, err)
	}
	logrus.Infof("converged (instance %s) listening on %v", app.InstanceID(), ln.Addr())

	if cfg.HTTP.AddrFile != "" {
		if err := os.WriteFile(cfg.HTTP.AddrFile, []byte(ln.Addr().String()), 0o644); err != nil {
			return fmt.Errorf("writing --addr-file: %w", err)
		}
	}

	server := &http.Server{Handler: handler}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve(ln) }()

	select {
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-quit:
		logrus.Info("stopping server gracefully, draining connections for ", cfg.HTTP.DrainTimeout)
		ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.DrainTimeout)
		defer cancel()
		return server.Shutdown(ctx)
	}
}

func configureLogging(cfg *configuration.Configuration) {
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	switch cfg.Log.Formatter {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{TimestampFormat: time.RFC3339Nano})
	}
}

// buildCache returns an optional Redis-backed existence cache, nil when
// no Redis address is configured (correctness never depends on it).
func buildCache(cfg *configuration.Configuration) *store.Cache {
	if cfg.Cache.Redis.Addr == "" {
		return nil
	}
	pool := &redis.Pool{
		MaxIdle:     8,
		IdleTimeout: 240 * time.Second,
		Dial: func() (redis.Conn, error) {
			opts := []redis.DialOption{}
			if cfg.Cache.Redis.Password != "" {
				opts = append(opts, redis.DialPassword(cfg.Cache.Redis.Password))
			}
			if cfg.Cache.Redis.DB != 0 {
				opts = append(opts, redis.DialDatabase(cfg.Cache.Redis.DB))
			}
			return redis.Dial("tcp", cfg.Cache.Redis.Addr, opts...)
		},
	}
	return store.NewCache(pool, "global", cfg.Cache.Redis.TTL)
}
