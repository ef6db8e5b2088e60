package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arach/fabric/internal/app"
	"github.com/arach/fabric/internal/backends/memory"
	"github.com/arach/fabric/internal/checkpoint"
	"github.com/arach/fabric/internal/sandbox"
	"github.com/arach/fabric/internal/session"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Walk a session through a delegate and reclaim in memory",
	Long: `Runs a session on in-memory local and cloud backends: writes a file,
delegates to the cloud, saves a checkpoint, reclaims back to local and
stops. Nothing outside a temporary state directory is touched.`,
	Args: cobra.NoArgs,
	RunE: runDemo,
}

func init() {
	rootCmd.AddCommand(demoCmd)
}

// demoExec answers "ls" and "cat <file>" against the in-memory workspace.
func demoExec(command string, files map[string][]byte) *sandbox.ExecResult {
	fields := strings.Fields(command)
	switch {
	case len(fields) == 1 && fields[0] == "ls":
		names := make([]string, 0, len(files))
		for name := range files {
			names = append(names, name)
		}
		sort.Strings(names)
		return &sandbox.ExecResult{Stdout: strings.Join(names, "\n") + "\n"}
	case len(fields) == 2 && fields[0] == "cat":
		if data, ok := files[fields[1]]; ok {
			return &sandbox.ExecResult{Stdout: string(data)}
		}
		return &sandbox.ExecResult{Stderr: "cat: " + fields[1] + ": No such file\n", ExitCode: 1}
	}
	return &sandbox.ExecResult{Stderr: "unsupported command: " + command + "\n", ExitCode: 127}
}

func runDemo(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	stateDir, err := os.MkdirTemp("", "fabric-demo-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(stateDir)

	cfg := *getApp().Config
	cfg.StateDir = stateDir
	cfg.Agent.DotEnv = ""

	cloudTag := getApp().CloudBackend()
	local := memory.NewFactory(memory.Options{Backend: sandbox.BackendLocal, Exec: demoExec})
	cloud := memory.NewFactory(memory.Options{Backend: cloudTag, Exec: demoExec})
	a := app.New(
		app.WithConfig(&cfg),
		app.WithFactory(sandbox.BackendLocal, local),
		app.WithFactory(cloudTag, cloud),
	)
	defer a.Close()

	sb, err := local.Create(ctx, sandbox.CreateOptions{ID: "demo"})
	if err != nil {
		return err
	}

	s := a.NewSession("demo", "")
	s.OnEvent(func(e session.Event) {
		line := fmt.Sprintf("  · %-18s %s", e.Type, e.Backend)
		if e.Error != "" {
			line += "  " + e.Error
		}
		fmt.Println(line)
	})

	logInfo("Starting session on %s", sandbox.BackendLocal)
	if err := s.Initialize(ctx, sb); err != nil {
		return err
	}

	logInfo("Writing a.txt")
	if err := s.WriteFile(ctx, "a.txt", []byte("hi")); err != nil {
		return err
	}

	logInfo("Delegating to %s", cloudTag)
	if err := s.DelegateToCloud(ctx); err != nil {
		return err
	}
	res, err := s.Exec(ctx, "cat a.txt")
	if err != nil {
		return err
	}
	fmt.Printf("  a.txt on %s: %q\n", s.CurrentRuntime(), res.Stdout)

	logInfo("Saving checkpoint")
	cp := &checkpoint.AgentCheckpoint{
		Messages: []checkpoint.Message{{Role: "user", Content: "write a.txt"}},
	}
	if err := s.SaveCheckpoint(ctx, a.Checkpoints, cp); err != nil {
		return err
	}
	if summaries, err := a.Checkpoints.Summaries(); err == nil && len(summaries) > 0 {
		fmt.Printf("  %s\n", summaries[0])
	}

	logInfo("Reclaiming to %s", sandbox.BackendLocal)
	if err := s.ReclaimToLocal(ctx); err != nil {
		return err
	}

	logInfo("Reclaiming an unknown token")
	if r := a.Manager.Reclaim(ctx, "nonexistent-token-id", sandbox.BackendLocal); !r.Success {
		fmt.Printf("  %s\n", r.Error)
	}

	logInfo("Stopping")
	if err := s.Stop(ctx); err != nil {
		return err
	}

	logSuccess("Demo finished on %s", s.CurrentRuntime())
	return nil
}
