package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arach/fabric/internal/audit"
	"github.com/arach/fabric/internal/errors"
)

var promptCmd = &cobra.Command{
	Use:   "prompt <session> <text>...",
	Short: "Send a prompt to the agent in the session's sandbox",
	Long: `Send a prompt to the agent CLI inside the session's sandbox.

The agent runs with the configured provider's environment. When its output
reports a rate limit, the next [[fallbacks]] provider is tried.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runPrompt,
}

func init() {
	rootCmd.AddCommand(promptCmd)
}

func runPrompt(cmd *cobra.Command, args []string) error {
	id := args[0]
	text := strings.Join(args[1:], " ")
	if strings.TrimSpace(text) == "" {
		return errors.ValidationError("prompt cannot be empty")
	}

	ctx := context.Background()
	s, err := attach(ctx, id)
	if err != nil {
		return err
	}

	res, err := s.RunPrompt(ctx, text)
	if err != nil {
		return err
	}
	auditEvent(audit.EventPrompt, id, s.Provider().String())

	if err := s.save(); err != nil {
		return err
	}
	return printExecResult(res)
}
