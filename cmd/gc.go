package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/arach/fabric/internal/app"
	"github.com/arach/fabric/internal/config"
	"github.com/arach/fabric/internal/logging"
	"github.com/arach/fabric/internal/sandbox"
)

var gcForce bool

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Garbage collect orphaned local sandbox resources",
	Long: `Reconciles session records with the local container runtime and removes
orphaned resources.

Without --force, prints what would be cleaned (dry run).
With --force, actually removes orphaned workspaces, destroys orphaned
containers and deletes stale records.

Detects:
  - Orphaned workspaces: host workspace directories with no session record and no container
  - Orphaned containers: local containers with no session record
  - Stale records: local session records whose container no longer exists`,
	Args: cobra.NoArgs,
	RunE: runGC,
}

func init() {
	gcCmd.Flags().BoolVar(&gcForce, "force", false, "Actually remove orphaned resources (default is dry run)")
	rootCmd.AddCommand(gcCmd)
}

// gcResult tracks what gc found and would/did clean up.
type gcResult struct {
	orphanedWorkspaces []string // host workspace dirs with no record and no container
	orphanedContainers []string // containers with no record
	staleRecords       []string // local records whose container is gone
}

func (r *gcResult) empty() bool {
	return len(r.orphanedWorkspaces) == 0 && len(r.orphanedContainers) == 0 && len(r.staleRecords) == 0
}

func runGC(cmd *cobra.Command, args []string) error {
	a := getApp()
	ctx := context.Background()

	if a.Local == nil {
		logWarning("No container runtime available; nothing to collect")
		return nil
	}

	result, err := findOrphans(ctx, a)
	if err != nil {
		return err
	}

	if result.empty() {
		logInfo("No orphaned resources found")
		return nil
	}

	if !gcForce {
		printGCDryRun(result)
		return nil
	}

	return executeGC(ctx, a, result)
}

func findOrphans(ctx context.Context, a *app.App) (*gcResult, error) {
	diskNames, err := workspaceNamesFromDisk(a.Config.WorkspaceRoot())
	if err != nil {
		return nil, fmt.Errorf("failed to scan workspaces directory: %w", err)
	}

	containers, err := a.Local.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}
	containerSet := make(map[string]bool)
	for _, c := range containers {
		containerSet[c.ID] = true
	}

	records, err := config.ListSessions(a.Paths.SessionsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list session records: %w", err)
	}
	recordSet := make(map[string]bool)
	for _, rec := range records {
		if rec.Backend != sandbox.BackendLocal {
			continue
		}
		recordSet[rec.SandboxID] = true
	}

	result := &gcResult{}

	for name := range diskNames {
		if !recordSet[name] && !containerSet[name] {
			result.orphanedWorkspaces = append(result.orphanedWorkspaces, name)
		}
	}
	for name := range containerSet {
		if !recordSet[name] {
			result.orphanedContainers = append(result.orphanedContainers, name)
		}
	}
	for _, rec := range records {
		if rec.Backend == sandbox.BackendLocal && !containerSet[rec.SandboxID] {
			result.staleRecords = append(result.staleRecords, rec.ID)
		}
	}

	sort.Strings(result.orphanedWorkspaces)
	sort.Strings(result.orphanedContainers)
	return result, nil
}

// workspaceNamesFromDisk returns the names of the host workspace
// directories that are valid session ids.
func workspaceNamesFromDisk(dir string) (map[string]bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	names := make(map[string]bool)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if config.ValidateName(entry.Name()) == nil {
			names[entry.Name()] = true
		}
	}
	return names, nil
}

func printGCDryRun(result *gcResult) {
	fmt.Println("Dry run (use --force to actually clean up):")
	fmt.Println()

	sections := []struct {
		title string
		names []string
	}{
		{"Orphaned workspaces (no session record or container):", result.orphanedWorkspaces},
		{"Orphaned containers (no session record):", result.orphanedContainers},
		{"Stale session records (container is gone):", result.staleRecords},
	}
	for _, s := range sections {
		if len(s.names) == 0 {
			continue
		}
		fmt.Println(s.title)
		for _, name := range s.names {
			fmt.Printf("  %s\n", name)
		}
		fmt.Println()
	}
}

func executeGC(ctx context.Context, a *app.App, result *gcResult) error {
	root := a.Config.WorkspaceRoot()
	for _, name := range result.orphanedWorkspaces {
		logInfo("Removing orphaned workspace: %s", name)
		path := filepath.Join(root, name)
		if err := os.RemoveAll(path); err != nil {
			logging.Warn("failed to remove workspace directory", "path", path, "error", err)
		}
	}

	for _, name := range result.orphanedContainers {
		logInfo("Destroying orphaned container: %s", name)
		if err := a.Local.Remove(ctx, name); err != nil {
			logWarning("Failed to destroy container %s: %v", name, err)
		} else {
			logging.Debug("destroyed orphaned container", "name", name)
		}
	}

	for _, id := range result.staleRecords {
		logInfo("Deleting stale session record: %s", id)
		if err := config.DeleteSession(a.Paths.SessionsDir, id); err != nil {
			logWarning("Failed to delete record %s: %v", id, err)
		}
		if err := a.Audit.Remove(id); err != nil {
			logging.Debug("failed to remove audit log", "session", id, "error", err)
		}
	}

	logSuccess("Garbage collection complete")
	return nil
}
