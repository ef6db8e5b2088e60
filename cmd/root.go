package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/arach/fabric/internal/app"
	"github.com/arach/fabric/internal/config"
	"github.com/arach/fabric/internal/logging"
)

var (
	verbose    bool
	jsonOutput bool
	configPath string

	// appOptions are applied after the loaded config; tests inject mocks here.
	appOptions []app.Option
	current    *app.App
)

var rootCmd = &cobra.Command{
	Use:   "fabric",
	Short: "Portable execution sessions across sandbox backends",
	Long: `fabric runs an agent session in a sandbox and moves it between backends.

A session starts in a local container and can be delegated to a cloud
sandbox and reclaimed back, carrying its workspace files with it:
  - up        start a session in a local container
  - delegate  hand the session off to the cloud backend
  - reclaim   bring it back to a local container
  - down      stop it

Agent conversation state is kept with the checkpoint commands.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Setup(verbose, jsonOutput, os.Stderr)

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		logging.Debug("loaded config", "path", cfg.Path, "state", cfg.StateDir)

		opts := append([]app.Option{app.WithConfig(cfg)}, appOptions...)
		current = app.New(opts...)
		return nil
	},
}

// Execute runs the command line and flushes the app's metrics.
func Execute() error {
	err := rootCmd.Execute()
	if current != nil {
		if cerr := current.Close(); cerr != nil {
			logging.Debug("failed to write metrics", "error", cerr)
		}
		current = nil
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default $FABRIC_CONFIG or ~/.config/fabric/config.toml)")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// Helper aliases for user-facing output (delegates to logging package)
var (
	logInfo    = logging.UserInfo
	logSuccess = logging.UserSuccess
	logWarning = logging.UserWarning
)
