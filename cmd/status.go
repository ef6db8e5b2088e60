package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <session>",
	Short: "Show detailed status of a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var statusEvents int

func init() {
	statusCmd.Flags().IntVarP(&statusEvents, "events", "n", 10, "Number of recent events to show (0 for none)")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	id := args[0]
	a := getApp()

	rec, err := loadRecord(id)
	if err != nil {
		return err
	}

	fmt.Printf("Session: %s\n", rec.ID)
	fmt.Printf("Backend: %s\n", rec.Backend)
	fmt.Printf("Sandbox: %s\n", rec.SandboxID)
	fmt.Printf("State: %s\n", rec.State)
	if rec.Workspace != "" {
		fmt.Printf("Workspace: %s\n", rec.Workspace)
	}
	if rec.Provider != "" {
		fmt.Printf("Provider: %s\n", rec.Provider)
	}
	if rec.TokenID != "" {
		fmt.Printf("Last handoff: %s\n", rec.TokenID)
	}
	fmt.Printf("Created: %s\n", rec.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Println()

	fmt.Printf("Sandbox status: %s\n", sandboxStatus(context.Background(), rec.Backend, rec.SandboxID))

	if statusEvents <= 0 {
		return nil
	}
	events, err := a.Audit.Events(id)
	if err != nil {
		return err
	}
	if len(events) > statusEvents {
		events = events[len(events)-statusEvents:]
	}
	if len(events) > 0 {
		fmt.Println()
		fmt.Println("Recent events:")
	}
	for _, e := range events {
		line := fmt.Sprintf("  %s  %-28s", e.Timestamp.Local().Format("15:04:05"), e.Type)
		if e.Details != "" {
			line += "  " + e.Details
		}
		fmt.Println(line)
	}
	return nil
}
