package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/arach/fabric/internal/logging"
	"github.com/arach/fabric/internal/sandbox"
)

var delegateCmd = &cobra.Command{
	Use:   "delegate <session>",
	Short: "Hand the session off to the cloud backend",
	Long: `Snapshot the session's workspace, stop its sandbox, create a sandbox on
the cloud backend and restore the snapshot there.

A failed handoff is not rolled back: the session keeps its stopped
sandbox and "fabric up" restarts it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHandoff(args[0], getApp().CloudBackend(), func(ctx context.Context, s *attached) error {
			return s.DelegateToCloud(ctx)
		})
	},
}

var reclaimCmd = &cobra.Command{
	Use:   "reclaim <session>",
	Short: "Bring the session back to a local container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHandoff(args[0], sandbox.BackendLocal, func(ctx context.Context, s *attached) error {
			return s.ReclaimToLocal(ctx)
		})
	},
}

func init() {
	rootCmd.AddCommand(delegateCmd)
	rootCmd.AddCommand(reclaimCmd)
}

func runHandoff(id string, target sandbox.BackendType, move func(context.Context, *attached) error) error {
	ctx := context.Background()
	s, err := attach(ctx, id)
	if err != nil {
		return err
	}

	if s.CurrentRuntime() == target {
		logInfo("Session %s is already on %s", id, target)
		return nil
	}

	from := s.CurrentRuntime()
	logInfo("Moving session %s from %s to %s...", id, from, target)

	moveErr := move(ctx, s)
	if err := s.save(); err != nil {
		logging.Warn("failed to save session record", "session", id, "error", err)
	}
	if moveErr != nil {
		return moveErr
	}

	logSuccess("Session %s is now on %s", id, s.CurrentRuntime())
	if s.tokenID != "" {
		logging.Debug("handoff token", "token", s.tokenID)
	}
	return nil
}
