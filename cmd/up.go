package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/arach/fabric/internal/app"
	"github.com/arach/fabric/internal/audit"
	"github.com/arach/fabric/internal/config"
	"github.com/arach/fabric/internal/errors"
	"github.com/arach/fabric/internal/logging"
	"github.com/arach/fabric/internal/sandbox"
	"github.com/arach/fabric/internal/snapshot"
)

var upCmd = &cobra.Command{
	Use:   "up <session>",
	Short: "Start a session in a new sandbox",
	Long: `Start a session in a new sandbox, or resume the one already recorded
for it.

With --workspace the directory is captured and restored into the sandbox,
subject to the [snapshot] caps.`,
	Args: cobra.ExactArgs(1),
	RunE: runUp,
}

var (
	upWorkspace string
	upImage     string
	upBackend   string
)

func init() {
	upCmd.Flags().StringVarP(&upWorkspace, "workspace", "w", "", "Host directory to copy into the sandbox")
	upCmd.Flags().StringVar(&upImage, "image", "", "Image or template for the sandbox (default from config)")
	upCmd.Flags().StringVar(&upBackend, "on", string(sandbox.BackendLocal), "Backend to start on")
	rootCmd.AddCommand(upCmd)
}

func runUp(cmd *cobra.Command, args []string) error {
	id := args[0]
	ctx := context.Background()
	a := getApp()

	if err := validateID(id); err != nil {
		return err
	}

	if config.SessionExists(a.Paths.SessionsDir, id) {
		logging.Debug("resuming recorded session", "session", id)
		s, err := attach(ctx, id)
		if err != nil {
			return err
		}
		if err := s.save(); err != nil {
			return err
		}
		auditEvent(audit.EventUp, id, "resumed")
		logSuccess("Session %s ready on %s (resumed)", id, s.CurrentRuntime())
		return nil
	}

	backend := sandbox.BackendType(upBackend)
	if backend == sandbox.BackendMemory {
		return errors.ValidationError("memory sandboxes do not outlive the command; try: fabric demo")
	}
	factory, ok := a.Manager.Factory(backend)
	if !ok {
		return errors.FactoryNotRegistered(upBackend)
	}

	workspace := upWorkspace
	if workspace != "" {
		abs, err := filepath.Abs(workspace)
		if err != nil {
			return errors.ValidationError(fmt.Sprintf("invalid workspace %s: %v", workspace, err))
		}
		workspace = abs
	}

	logInfo("Creating sandbox %s on %s...", id, backend)

	sb, err := factory.Create(ctx, sandbox.CreateOptions{ID: id, Image: upImage})
	if err != nil {
		return err
	}

	s := a.NewSession(id, workspace)
	if err := s.Initialize(ctx, sb); err != nil {
		return err
	}

	if workspace != "" {
		if err := seedWorkspace(ctx, a, sb, workspace); err != nil {
			return err
		}
	}

	if err := config.SaveSession(a.Paths.SessionsDir, app.Record(s, nil)); err != nil {
		return err
	}

	auditEvent(audit.EventUp, id, string(backend))
	logSuccess("Session %s ready on %s", id, backend)
	fmt.Printf("  Sandbox: %s\n", sb.ID())
	if workspace != "" {
		fmt.Printf("  Workspace: %s\n", workspace)
	}
	return nil
}

// seedWorkspace copies a host directory into a fresh sandbox.
func seedWorkspace(ctx context.Context, a *app.App, sb sandbox.Sandbox, dir string) error {
	snap, err := snapshot.Capture(ctx, dir, a.Config.Snapshot)
	if err != nil {
		return fmt.Errorf("failed to capture workspace: %w", err)
	}
	if snap.Truncated() {
		logWarning("Workspace exceeds the snapshot caps; some files were not copied")
	}
	if err := sb.Restore(ctx, snap); err != nil {
		return err
	}
	fmt.Printf("  Files: %d copied\n", len(snap.Files))
	return nil
}
