package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/inflatable-cookie/convergence-sub001/internal/gc"
	"github.com/inflatable-cookie/convergence-sub001/internal/identity"
	"github.com/inflatable-cookie/convergence-sub001/internal/ops"
	"github.com/inflatable-cookie/convergence-sub001/internal/repostate"
	"github.com/inflatable-cookie/convergence-sub001/internal/store"
)

var (
	gcRepo                  string
	gcDryRun                bool
	gcPruneMetadata         bool
	gcPruneReleasesKeepLast int
)

// gcCmd is the cobra command for the garbage-collect subcommand,
// generalized from the teacher's GCCmd (a single storage-wide sweep) to
// this system's per-repo retention model: with --repo unset it sweeps
// every repo under --data-dir in turn.
var gcCmd = &cobra.Command{
	Use:   "garbage-collect",
	Short: "garbage-collect deletes objects outside every repo's retention set",
	Long:  "garbage-collect deletes objects outside every repo's retention set.",
	RunE:  runGC,
}

func init() {
	gcCmd.Flags().StringVar(&gcRepo, "repo", "", "limit the sweep to a single repo id (default: every repo)")
	gcCmd.Flags().BoolVarP(&gcDryRun, "dry-run", "d", false, "report what would be deleted without deleting it")
	gcCmd.Flags().BoolVarP(&gcPruneMetadata, "prune-metadata", "m", false, "also prune unretained snap/bundle/release metadata")
	gcCmd.Flags().IntVar(&gcPruneReleasesKeepLast, "prune-releases-keep-last", 0, "keep only the N most recent releases per channel (0 disables)")
}

func runGC(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	configureLogging(cfg)

	opts := gc.Options{
		DryRun:                gcDryRun,
		PruneMetadata:         gcPruneMetadata,
		PruneReleasesKeepLast: gcPruneReleasesKeepLast,
	}
	if !cmd.Flags().Changed("prune-metadata") {
		opts.PruneMetadata = cfg.GC.PruneMetadata
	}
	if !cmd.Flags().Changed("prune-releases-keep-last") {
		opts.PruneReleasesKeepLast = cfg.GC.PruneReleasesKeepLast
	}
	subject := identity.Subject{Handle: "cli", Admin: true}

	var repoIDs []string
	if gcRepo != "" {
		repoIDs = []string{gcRepo}
	} else {
		entries, err := os.ReadDir(reposRootDir(cfg))
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("listing repos under %s: %w", cfg.DataDir, err)
		}
		for _, e := range entries {
			if e.IsDir() {
				repoIDs = append(repoIDs, e.Name())
			}
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for _, id := range repoIDs {
		st := store.New(repoDir(cfg, id), nil)
		rs, err := repostate.Load(st, id, "", nil)
		if err != nil {
			return fmt.Errorf("loading repo %s: %w", id, err)
		}
		result, err := ops.RunGC(rs, subject, opts)
		if err != nil {
			return fmt.Errorf("garbage collecting repo %s: %w", id, err)
		}
		_ = enc.Encode(map[string]any{"repo": id, "result": result})
	}
	return nil
}
