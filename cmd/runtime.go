package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arach/fabric/internal/runtime"
	"github.com/arach/fabric/internal/sandbox"
)

var runtimeCmd = &cobra.Command{
	Use:   "runtime",
	Short: "Show container runtime and backend information",
	Long: `Display the container runtimes available for the local backend and the
backends sessions can move between.

The local backend supports:
  - podman:  Podman (rootless containers)
  - docker:  Docker Engine

The runtime is auto-detected unless [local] engine is set.`,
	Args: cobra.NoArgs,
	RunE: runRuntime,
}

func init() {
	rootCmd.AddCommand(runtimeCmd)
}

func runRuntime(cmd *cobra.Command, args []string) error {
	a := getApp()

	if a.Runtime != nil {
		fmt.Printf("Active runtime: %s\n", a.Runtime.Name())
	} else if detected, err := runtime.Detect(); err != nil {
		fmt.Printf("Detection failed: %s\n", err)
	} else {
		fmt.Printf("Detected runtime: %s\n", detected)
	}

	fmt.Println()

	available := runtime.Available()
	fmt.Println("Available runtimes:")
	if len(available) == 0 {
		fmt.Println("  (none)")
	}
	for _, rt := range available {
		fmt.Printf("  %s\n", rt)
	}

	fmt.Println()

	fmt.Println("Backends:")
	for _, bt := range a.Manager.Backends() {
		marker := "  "
		if bt == a.CloudBackend() {
			marker = "☁ "
		} else if bt == sandbox.BackendLocal {
			marker = "⌂ "
		}
		fmt.Printf("  %s%s\n", marker, bt)
	}
	return nil
}
