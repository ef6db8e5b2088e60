package cmd

import (
	"context"
	"fmt"
	"os"

	shellquote "github.com/kballard/go-shellquote"
	"github.com/spf13/cobra"

	"github.com/arach/fabric/internal/audit"
	"github.com/arach/fabric/internal/errors"
	"github.com/arach/fabric/internal/sandbox"
)

var execCmd = &cobra.Command{
	Use:   "exec <session> -- <command>",
	Short: "Execute command in the session's sandbox",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runExec,
}

func init() {
	rootCmd.AddCommand(execCmd)
}

func runExec(cmd *cobra.Command, args []string) error {
	id := args[0]

	dash := cmd.ArgsLenAtDash()
	if dash < 1 || dash >= len(args) {
		return errors.ValidationError("usage: fabric exec <session> -- <command>")
	}
	command := shellquote.Join(args[dash:]...)

	ctx := context.Background()
	s, err := attach(ctx, id)
	if err != nil {
		return err
	}

	res, err := s.Exec(ctx, command)
	if err != nil {
		return err
	}
	auditEvent(audit.EventExec, id, command)
	return printExecResult(res)
}

// printExecResult writes a command's output and turns a non-zero status
// into an error carrying it.
func printExecResult(res *sandbox.ExecResult) error {
	fmt.Fprint(os.Stdout, res.Stdout)
	fmt.Fprint(os.Stderr, res.Stderr)
	if res.ExitCode != 0 {
		return errors.New(errors.ExitGeneralError, fmt.Sprintf("command exited with status %d", res.ExitCode))
	}
	return nil
}
