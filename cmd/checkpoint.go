package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/arach/fabric/internal/audit"
	"github.com/arach/fabric/internal/checkpoint"
	"github.com/arach/fabric/internal/errors"
	"github.com/arach/fabric/internal/logging"
	"github.com/arach/fabric/internal/tui"
)

var checkpointCmd = &cobra.Command{
	Use:     "checkpoint",
	Aliases: []string{"cp"},
	Short:   "Manage agent checkpoints",
	Long: `Checkpoints hold an agent's conversation state together with the files
of the session's workspace, one JSON file per checkpoint under the state
directory.`,
}

var checkpointListCmd = &cobra.Command{
	Use:   "list",
	Short: "List checkpoints, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		summaries, err := getApp().Checkpoints.Summaries()
		if err != nil {
			return err
		}
		fmt.Print(tui.SimpleList(summaries))
		return nil
	},
}

var checkpointShowCmd = &cobra.Command{
	Use:   "show <checkpoint>",
	Short: "Print a checkpoint as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cp, ok := getApp().Checkpoints.Load(args[0])
		if !ok {
			return errors.CheckpointError("checkpoint not found: "+args[0], nil)
		}
		data, err := sonic.ConfigStd.MarshalIndent(cp, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

var checkpointSaveCmd = &cobra.Command{
	Use:   "save <session>",
	Short: "Save a checkpoint of a session's conversation and workspace",
	Long: `Save a checkpoint of a session's conversation and workspace.

The conversation comes from --from (an AgentCheckpoint JSON document) and
from --message flags of the form role=content. The workspace files are
always captured from the session's sandbox.`,
	Args: cobra.ExactArgs(1),
	RunE: runCheckpointSave,
}

var checkpointRestoreCmd = &cobra.Command{
	Use:   "restore <session> <checkpoint>",
	Short: "Restore a checkpoint's files into a session's sandbox",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return restoreCheckpoint(args[0], args[1])
	},
}

var checkpointDeleteCmd = &cobra.Command{
	Use:   "delete <checkpoint>",
	Short: "Delete a checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := getApp().Checkpoints.Delete(args[0]); err != nil {
			return err
		}
		logSuccess("Deleted checkpoint %s", args[0])
		return nil
	},
}

var checkpointPickCmd = &cobra.Command{
	Use:   "pick",
	Short: "Interactive checkpoint picker",
	Long: `Opens an interactive TUI for browsing checkpoints.

Use arrow keys or j/k to navigate, / to filter.

Actions:
  Enter  - Restore into the session given with --session
  d      - Delete the selected checkpoint
  q/Esc  - Quit`,
	Args: cobra.NoArgs,
	RunE: runCheckpointPick,
}

var (
	cpSaveID       string
	cpSaveFrom     string
	cpSaveSystem   string
	cpSaveMessages []string
	cpPickSession  string
)

func init() {
	checkpointSaveCmd.Flags().StringVar(&cpSaveID, "id", "", "Checkpoint id (default: the session id)")
	checkpointSaveCmd.Flags().StringVar(&cpSaveFrom, "from", "", "Read conversation state from a JSON file")
	checkpointSaveCmd.Flags().StringVar(&cpSaveSystem, "system", "", "System prompt")
	checkpointSaveCmd.Flags().StringArrayVarP(&cpSaveMessages, "message", "m", nil, "Conversation turn as role=content (repeatable)")
	checkpointPickCmd.Flags().StringVarP(&cpPickSession, "session", "s", "", "Session to restore the selected checkpoint into")

	checkpointCmd.AddCommand(checkpointListCmd, checkpointShowCmd, checkpointSaveCmd,
		checkpointRestoreCmd, checkpointDeleteCmd, checkpointPickCmd)
	rootCmd.AddCommand(checkpointCmd)
}

// parseMessage splits a role=content flag value.
func parseMessage(s string) (checkpoint.Message, error) {
	role, content, ok := strings.Cut(s, "=")
	if !ok || role == "" {
		return checkpoint.Message{}, errors.ValidationError(fmt.Sprintf("invalid message %q (want role=content)", s))
	}
	return checkpoint.Message{Role: role, Content: content}, nil
}

func runCheckpointSave(cmd *cobra.Command, args []string) error {
	id := args[0]
	ctx := context.Background()

	cp := &checkpoint.AgentCheckpoint{}
	if cpSaveFrom != "" {
		data, err := os.ReadFile(cpSaveFrom)
		if err != nil {
			return errors.ValidationError(fmt.Sprintf("failed to read %s: %v", cpSaveFrom, err))
		}
		if err := sonic.Unmarshal(data, cp); err != nil {
			return errors.ValidationError(fmt.Sprintf("failed to parse %s: %v", cpSaveFrom, err))
		}
	}
	for _, m := range cpSaveMessages {
		msg, err := parseMessage(m)
		if err != nil {
			return err
		}
		cp.Messages = append(cp.Messages, msg)
	}
	if cpSaveSystem != "" {
		cp.SystemPrompt = cpSaveSystem
	}
	if cpSaveID != "" {
		cp.ID = cpSaveID
	}

	s, err := attach(ctx, id)
	if err != nil {
		return err
	}
	if err := s.SaveCheckpoint(ctx, getApp().Checkpoints, cp); err != nil {
		return err
	}

	auditEvent(audit.EventCheckpoint, id, "saved "+cp.ID)
	logSuccess("Saved checkpoint %s (%d messages, %d files)", cp.ID, len(cp.Messages), len(cp.Files))
	return nil
}

func restoreCheckpoint(id, checkpointID string) error {
	ctx := context.Background()
	s, err := attach(ctx, id)
	if err != nil {
		return err
	}

	cp, err := s.RestoreCheckpoint(ctx, getApp().Checkpoints, checkpointID)
	if err != nil {
		return err
	}

	auditEvent(audit.EventCheckpoint, id, "restored "+cp.ID)
	logSuccess("Restored checkpoint %s into %s (%d files)", cp.ID, id, len(cp.Files))
	return nil
}

func runCheckpointPick(cmd *cobra.Command, args []string) error {
	logging.Debug("picker mode started")

	summaries, err := getApp().Checkpoints.Summaries()
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		logInfo("No checkpoints found. Save one with: fabric checkpoint save <session>")
		return nil
	}

	result, err := tui.RunPicker(summaries)
	if err != nil {
		return fmt.Errorf("picker error: %w", err)
	}

	logging.Debug("picker result", "action", result.Action)

	switch result.Action {
	case tui.ActionRestore:
		if result.Checkpoint == nil {
			return nil
		}
		if cpPickSession == "" {
			fmt.Printf("\nTo restore checkpoint '%s', run:\n", result.Checkpoint.ID)
			fmt.Printf("  fabric checkpoint restore <session> %s\n", result.Checkpoint.ID)
			return nil
		}
		return restoreCheckpoint(cpPickSession, result.Checkpoint.ID)

	case tui.ActionDelete:
		if result.Checkpoint != nil {
			if err := getApp().Checkpoints.Delete(result.Checkpoint.ID); err != nil {
				return err
			}
			logSuccess("Deleted checkpoint %s", result.Checkpoint.ID)
		}
	}

	return nil
}
