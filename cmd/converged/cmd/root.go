// Package cmd implements the `converged` server binary's command-line
// surface: a root command that serves by default, plus a
// garbage-collect subcommand, in the same root/serve/gc shape as the
// teacher's registry/root.go RootCmd/ServeCmd/GCCmd.
package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inflatable-cookie/convergence-sub001/configuration"
)

var (
	flagConfig         string
	flagAddr           string
	flagAddrFile       string
	flagDataDir        string
	flagBootstrapToken string
	flagDevUser        string
	flagDevToken       string
)

// RootCmd is the main command for the `converged` binary. Running it
// with no subcommand serves, exactly like `serve` — operators almost
// never want to type a verb just to start the server.
var RootCmd = &cobra.Command{
	Use:   "converged",
	Short: "converged runs the staged-promotion artifact repository server",
	Long:  "converged runs the staged-promotion artifact repository server.",
	RunE:  runServe,
}

func init() {
	RootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to a YAML configuration file (optional)")
	RootCmd.PersistentFlags().StringVar(&flagAddr, "addr", "", "HTTP bind address, e.g. 127.0.0.1:5050")
	RootCmd.PersistentFlags().StringVar(&flagAddrFile, "addr-file", "", "write the actually-bound address here (for tests)")
	RootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "root directory for repo and identity storage")
	RootCmd.PersistentFlags().StringVar(&flagBootstrapToken, "bootstrap-token", "", "single-use token that authorizes creating the first admin")
	RootCmd.PersistentFlags().StringVar(&flagDevUser, "dev-user", "", "seed a development admin with this handle")
	RootCmd.PersistentFlags().StringVar(&flagDevToken, "dev-token", "", "fixed bearer token for --dev-user (dev/test only)")

	RootCmd.AddCommand(serveCmd)
	RootCmd.AddCommand(gcCmd)
}

// Execute runs the root command. Called once from main.main.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		logrus.Fatal(err)
	}
}

// loadConfig builds a Configuration from --config (if given) and
// overlays the CLI flags on top, which take precedence over both the
// file and the CONVERGE_* environment variables configuration.Parse
// already applies.
func loadConfig() (*configuration.Configuration, error) {
	var rd io.Reader
	if flagConfig != "" {
		f, err := os.Open(flagConfig)
		if err != nil {
			return nil, fmt.Errorf("opening --config %s: %w", flagConfig, err)
		}
		defer f.Close()
		rd = f
	} else {
		rd = strings.NewReader("version: \"" + string(configuration.CurrentVersion) + "\"\n")
	}

	cfg, err := configuration.Parse(rd)
	if err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if flagAddr != "" {
		cfg.HTTP.Addr = flagAddr
	}
	if flagAddrFile != "" {
		cfg.HTTP.AddrFile = flagAddrFile
	}
	if flagDataDir != "" {
		cfg.DataDir = flagDataDir
	}
	if flagBootstrapToken != "" {
		cfg.Identity.BootstrapToken = flagBootstrapToken
	}
	if flagDevUser != "" {
		cfg.Identity.DevUser = flagDevUser
	}
	if flagDevToken != "" {
		cfg.Identity.DevToken = flagDevToken
	}

	if cfg.DataDir == "" {
		return nil, fmt.Errorf("--data-dir (or configuration datadir) is required")
	}
	return cfg, nil
}

func reposRootDir(cfg *configuration.Configuration) string {
	return filepath.Join(cfg.DataDir, "repos")
}

func repoDir(cfg *configuration.Configuration, id string) string {
	return filepath.Join(reposRootDir(cfg), id)
}
