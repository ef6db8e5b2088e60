package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/arach/fabric/internal/config"
)

var psCmd = &cobra.Command{
	Use:   "ps",
	Short: "List all sessions",
	RunE:  runPs,
}

func init() {
	rootCmd.AddCommand(psCmd)
}

func runPs(cmd *cobra.Command, args []string) error {
	records, err := config.ListSessions(getApp().Paths.SessionsDir)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	if len(records) == 0 {
		logInfo("No sessions found. Start one with: fabric up <session>")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tBACKEND\tSANDBOX\tSTATE\tPROVIDER\tUPDATED")
	fmt.Fprintln(w, "-------\t-------\t-------\t-----\t--------\t-------")

	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.ID, rec.Backend, rec.SandboxID, formatState(rec.State), rec.Provider,
			rec.UpdatedAt.Local().Format(time.DateTime))
	}

	return w.Flush()
}

func formatState(state string) string {
	switch state {
	case "ready":
		return "✓ ready"
	case "stopped":
		return "● stopped"
	case "delegating", "reclaiming":
		return "⇄ " + state
	default:
		return state
	}
}
