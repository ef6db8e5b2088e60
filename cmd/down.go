package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/arach/fabric/internal/audit"
	"github.com/arach/fabric/internal/config"
	"github.com/arach/fabric/internal/logging"
	"github.com/arach/fabric/internal/sandbox"
)

var downCmd = &cobra.Command{
	Use:   "down <session>",
	Short: "Stop a session's sandbox",
	Args:  cobra.ExactArgs(1),
	RunE:  runDown,
}

var downRemove bool

func init() {
	downCmd.Flags().BoolVar(&downRemove, "rm", false, "Also remove the sandbox, its record and its audit log")
	rootCmd.AddCommand(downCmd)
}

// remover is implemented by factories that can destroy sandboxes.
type remover interface {
	Remove(ctx context.Context, id string) error
}

func runDown(cmd *cobra.Command, args []string) error {
	id := args[0]
	ctx := context.Background()
	a := getApp()

	rec, err := loadRecord(id)
	if err != nil {
		return err
	}

	logging.Debug("stopping session", "session", id, "backend", rec.Backend)
	logInfo("Stopping session %s...", id)

	factory, ok := a.Manager.Factory(rec.Backend)
	if ok {
		sb, err := factory.Resume(ctx, rec.SandboxID)
		if err != nil {
			return err
		}
		if sb != nil && sb.Status() != sandbox.StatusStopped {
			if err := sb.Stop(ctx); err != nil {
				return err
			}
		}
	} else {
		logWarning("Backend %s is not configured; leaving the sandbox alone", rec.Backend)
	}

	if !downRemove {
		rec.State = "stopped"
		if err := config.SaveSession(a.Paths.SessionsDir, rec); err != nil {
			return err
		}
		auditEvent(audit.EventDown, id, "")
		logSuccess("Stopped session %s", id)
		return nil
	}

	if r, ok := factory.(remover); ok {
		if err := r.Remove(ctx, rec.SandboxID); err != nil {
			logWarning("Failed to remove sandbox %s: %v", rec.SandboxID, err)
		}
	}
	if err := config.DeleteSession(a.Paths.SessionsDir, id); err != nil {
		return err
	}
	if err := a.Audit.Remove(id); err != nil {
		logging.Debug("failed to remove audit log", "session", id, "error", err)
	}

	logSuccess("Removed session %s", id)
	return nil
}
