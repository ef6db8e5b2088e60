package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/arach/fabric/internal/audit"
	"github.com/arach/fabric/internal/errors"
	"github.com/arach/fabric/internal/session"
)

var runCmd = &cobra.Command{
	Use:   "run <session> <file|->",
	Short: "Run a code snippet in the session's sandbox",
	Long: `Run a code snippet in the session's sandbox.

Backends with a native code runner execute it directly; otherwise the
snippet is written into the sandbox and run with the language's
interpreter. Read the snippet from stdin with "-".`,
	Args: cobra.ExactArgs(2),
	RunE: runRun,
}

var runLanguage string

func init() {
	runCmd.Flags().StringVarP(&runLanguage, "language", "l", session.DefaultLanguage, "Snippet language")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	id, src := args[0], args[1]

	code, err := readSource(src)
	if err != nil {
		return errors.ValidationError(fmt.Sprintf("failed to read %s: %v", src, err))
	}

	ctx := context.Background()
	s, err := attach(ctx, id)
	if err != nil {
		return err
	}

	res, err := s.RunCode(ctx, string(code), runLanguage)
	if err != nil {
		return err
	}
	auditEvent(audit.EventExec, id, runLanguage+" snippet")

	fmt.Print(res.Output)
	if res.Error != "" {
		return errors.New(errors.ExitGeneralError, res.Error)
	}
	return nil
}

func readSource(src string) ([]byte, error) {
	if src == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(src)
}
